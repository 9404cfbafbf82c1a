package export

import (
	"fmt"

	"github.com/wippyai/emjs/errors"
	"github.com/wippyai/emjs/snippet"
	"github.com/wippyai/emjs/wasm"
)

// Custom section names carried by emitted objects.
const (
	SymbolsSection = "emjs.symbols"
	DigestSection  = "emjs.digest"
)

const symbolTableVersion = 1

// TableEntry is one record of the emjs.symbols custom section.
type TableEntry struct {
	Name    string
	Section string
	Address uint32
	Size    uint32
	Mode    snippet.Mode
	Flags   byte
}

// Ref reports whether the entry is a reference marker.
func (e TableEntry) Ref() bool {
	return e.Flags&FlagRef != 0
}

// EncodeSymbolTable serializes entries:
//
//	u8 version, u32 count, {name, section, u32 address, u32 size, u8 mode, u8 flags}*
func EncodeSymbolTable(entries []TableEntry) []byte {
	buf := []byte{symbolTableVersion}
	buf = wasm.AppendU32(buf, uint32(len(entries)))
	for _, e := range entries {
		buf = wasm.AppendName(buf, e.Name)
		buf = wasm.AppendName(buf, e.Section)
		buf = wasm.AppendU32(buf, e.Address)
		buf = wasm.AppendU32(buf, e.Size)
		buf = append(buf, byte(e.Mode), e.Flags)
	}
	return buf
}

// DecodeSymbolTable parses an emjs.symbols section payload.
func DecodeSymbolTable(data []byte) ([]TableEntry, error) {
	d := wasm.NewDecoder(data)
	fail := func(err error) error {
		return errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, d.Err(SymbolsSection, err), "decode symbol table")
	}

	version, err := d.Byte()
	if err != nil {
		return nil, fail(err)
	}
	if version != symbolTableVersion {
		return nil, errors.InvalidData(errors.PhaseLoad, "", fmt.Sprintf("unsupported symbol table version %d", version))
	}
	count, err := d.Count()
	if err != nil {
		return nil, fail(err)
	}

	entries := make([]TableEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		var e TableEntry
		if e.Name, err = d.Name(); err != nil {
			return nil, fail(err)
		}
		if e.Section, err = d.Name(); err != nil {
			return nil, fail(err)
		}
		if e.Address, err = d.U32(); err != nil {
			return nil, fail(err)
		}
		if e.Size, err = d.U32(); err != nil {
			return nil, fail(err)
		}
		mode, err := d.Byte()
		if err != nil {
			return nil, fail(err)
		}
		e.Mode = snippet.Mode(mode)
		if e.Flags, err = d.Byte(); err != nil {
			return nil, fail(err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
