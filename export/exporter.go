package export

import (
	"go.uber.org/zap"

	"github.com/wippyai/emjs/bind"
	"github.com/wippyai/emjs/errors"
	"github.com/wippyai/emjs/snippet"
	"github.com/wippyai/emjs/symbol"
)

// Target selects the object format sections are named for.
type Target string

const (
	TargetWasm32 Target = "wasm32"
	TargetELF    Target = "elf"
)

// ParseTarget converts a configuration value into a Target.
func ParseTarget(s string) (Target, error) {
	switch Target(s) {
	case "", TargetWasm32:
		return TargetWasm32, nil
	case TargetELF:
		return TargetELF, nil
	}
	return "", errors.InvalidInput(errors.PhaseExport, "unknown target "+s)
}

// Linkage of an exported symbol.
type Linkage uint8

const (
	LinkageExternal Linkage = iota
	LinkageInternal
)

// Flags recorded per symbol in the symbol table.
const (
	FlagExternal byte = 1 << iota
	FlagRetain
	FlagRef
)

// Symbol is one linker-visible data object.
type Symbol struct {
	Name         string
	Native       string
	Section      string
	Bytes        []byte
	DeclaredSize int
	Linkage      Linkage
	Retain       bool
	Ref          bool
	Mode         snippet.Mode
}

// Flags packs Linkage, Retain and Ref into the symbol table byte.
func (s Symbol) Flags() byte {
	var f byte
	if s.Linkage == LinkageExternal {
		f |= FlagExternal
	}
	if s.Retain {
		f |= FlagRetain
	}
	if s.Ref {
		f |= FlagRef
	}
	return f
}

// Unit is one compiled snippet ready for export. Import is nil when the
// snippet has no foreign declaration.
type Unit struct {
	Pair    symbol.Pair
	Payload *snippet.Payload
	Import  *bind.Import
	Site    snippet.Site
}

// Export is the complete set of symbols and foreign declarations of a build.
type Export struct {
	Target  Target
	Symbols []Symbol
	Imports []bind.Import
	Digest  []byte
}

// Build turns units into symbols. Every symbol's declared size must equal
// its byte count.
func Build(units []Unit, target Target) (*Export, error) {
	exp := &Export{
		Target:  target,
		Symbols: make([]Symbol, 0, 2*len(units)),
	}

	for _, u := range units {
		if u.Payload == nil {
			return nil, errors.InvalidInput(errors.PhaseExport, "unit "+u.Pair.Native+" has no payload")
		}

		ref := Symbol{
			Name:         u.Pair.Ref,
			Native:       u.Pair.Native,
			Section:      SectionName(target, u.Pair.Ref),
			Bytes:        []byte{0},
			DeclaredSize: 1,
			Linkage:      LinkageExternal,
			Retain:       true,
			Ref:          true,
			Mode:         u.Payload.Mode,
		}
		payload := Symbol{
			Name:         u.Pair.Payload,
			Native:       u.Pair.Native,
			Section:      SectionName(target, u.Pair.Payload),
			Bytes:        u.Payload.Bytes,
			DeclaredSize: u.Payload.Size,
			Linkage:      LinkageExternal,
			Retain:       true,
			Mode:         u.Payload.Mode,
		}

		for _, s := range []Symbol{ref, payload} {
			if err := CheckSize(s); err != nil {
				return nil, err
			}
			exp.Symbols = append(exp.Symbols, s)
		}

		if u.Import != nil {
			exp.Imports = append(exp.Imports, *u.Import)
		}

		Logger().Debug("exported snippet",
			zap.String("symbol", payload.Name),
			zap.Int("size", payload.DeclaredSize),
			zap.Stringer("mode", payload.Mode),
			zap.Stringer("site", u.Site))
	}

	digest, err := Digest(exp.Target, exp.Symbols, exp.Imports)
	if err != nil {
		return nil, err
	}
	exp.Digest = digest
	return exp, nil
}

// CheckSize fails with a size mismatch when the declared size of s differs
// from its byte count.
func CheckSize(s Symbol) error {
	if s.DeclaredSize != len(s.Bytes) {
		return errors.SizeMismatch(errors.PhaseExport, s.Name, s.DeclaredSize, len(s.Bytes))
	}
	return nil
}

// SectionName returns the unique data section for a symbol.
func SectionName(target Target, name string) string {
	if target == TargetELF {
		return ".rodata." + name
	}
	return ".data." + name
}

// Payloads returns the payload symbols in order.
func (e *Export) Payloads() []Symbol {
	out := make([]Symbol, 0, len(e.Symbols)/2)
	for _, s := range e.Symbols {
		if !s.Ref {
			out = append(out, s)
		}
	}
	return out
}
