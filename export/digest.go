package export

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"

	"github.com/cbergoon/merkletree"

	"github.com/wippyai/emjs/bind"
	"github.com/wippyai/emjs/errors"
)

// leafContent implements merkletree.Content for one digest leaf.
type leafContent struct {
	hash []byte
}

func symbolLeaf(s Symbol) leafContent {
	h := sha256.New()
	h.Write([]byte("symbol\x00"))
	h.Write([]byte(s.Name))
	h.Write([]byte{0, byte(s.Mode), s.Flags(), 0})
	h.Write([]byte(s.Section))
	h.Write([]byte{0})
	h.Write(s.Bytes)
	return leafContent{hash: h.Sum(nil)}
}

// importLeaf covers what the object derives from a foreign declaration:
// the import module, the name and the wasm function type.
func importLeaf(imp bind.Import) leafContent {
	ft := imp.Sig.FuncType()
	h := sha256.New()
	h.Write([]byte("import\x00"))
	h.Write([]byte(imp.Module))
	h.Write([]byte{0})
	h.Write([]byte(imp.Name))
	h.Write([]byte{0, byte(len(ft.Params))})
	for _, t := range ft.Params {
		h.Write([]byte{byte(t)})
	}
	h.Write([]byte{byte(len(ft.Results))})
	for _, t := range ft.Results {
		h.Write([]byte{byte(t)})
	}
	return leafContent{hash: h.Sum(nil)}
}

func targetLeaf(target Target) leafContent {
	h := sha256.Sum256([]byte("target\x00" + string(target)))
	return leafContent{hash: h[:]}
}

func (c leafContent) CalculateHash() ([]byte, error) {
	return c.hash, nil
}

func (c leafContent) Equals(other merkletree.Content) (bool, error) {
	o, ok := other.(leafContent)
	if !ok {
		return false, nil
	}
	return bytes.Equal(c.hash, o.hash), nil
}

// Digest returns the merkle root over the target, the symbols in
// declaration order and the foreign declarations. Anything that changes the
// emitted object changes the digest.
func Digest(target Target, symbols []Symbol, imports []bind.Import) ([]byte, error) {
	contents := make([]merkletree.Content, 0, 1+len(symbols)+len(imports))
	contents = append(contents, targetLeaf(target))
	for _, s := range symbols {
		contents = append(contents, symbolLeaf(s))
	}
	for _, imp := range imports {
		contents = append(contents, importLeaf(imp))
	}

	tree, err := merkletree.NewTree(contents)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseExport, errors.KindInvalidData, err, "build merkle tree")
	}
	return tree.MerkleRoot(), nil
}

// DigestHex returns the digest as a hex string.
func (e *Export) DigestHex() string {
	return hex.EncodeToString(e.Digest)
}
