package export

import (
	"go.uber.org/zap"

	"github.com/wippyai/emjs/errors"
	"github.com/wippyai/emjs/snippet"
	"github.com/wippyai/emjs/wasm"
)

// Layout constants of emitted objects.
const (
	DataBase      uint32 = 1024
	heapAlign     uint32 = 16
	MemoryExport         = "memory"
	HeapBaseName         = "__heap_base"
	DataEndName          = "__data_end"
	heapHeadPages uint32 = 1
)

var reservedExports = map[string]bool{
	MemoryExport: true,
	HeapBaseName: true,
	DataEndName:  true,
}

// ObjectBuilder assembles a WebAssembly module that carries exported data
// symbols and imports foreign functions from a host namespace, re-exporting
// each through a pass-through trampoline.
type ObjectBuilder struct {
	types   []wasm.FuncType
	imports []objectImport
	symbols []objectSymbol
	custom  []wasm.CustomSection
	next    uint32
	names   map[string]bool
}

type objectImport struct {
	module  string
	name    string
	typeIdx uint32
}

type objectSymbol struct {
	sym  Symbol
	addr uint32
}

// NewObjectBuilder creates a builder with data starting at DataBase.
func NewObjectBuilder() *ObjectBuilder {
	return &ObjectBuilder{
		next:  DataBase,
		names: make(map[string]bool),
	}
}

func (b *ObjectBuilder) claim(name string) error {
	if reservedExports[name] || b.names[name] {
		return errors.New(errors.PhaseExport, errors.KindNameConflict).
			Symbol(name).
			Detail("export name already used").
			Build()
	}
	b.names[name] = true
	return nil
}

func (b *ObjectBuilder) typeIndex(ft wasm.FuncType) uint32 {
	for i, t := range b.types {
		if t.Equal(ft) {
			return uint32(i)
		}
	}
	b.types = append(b.types, ft)
	return uint32(len(b.types) - 1)
}

// AddImport imports module.name with type ft and exports a trampoline that
// forwards its arguments unchanged under name.
func (b *ObjectBuilder) AddImport(module, name string, ft wasm.FuncType) error {
	if err := b.claim(name); err != nil {
		return err
	}
	b.imports = append(b.imports, objectImport{
		module:  module,
		name:    name,
		typeIdx: b.typeIndex(ft),
	})
	return nil
}

// AddSymbol places s at the next free address. It returns the address.
func (b *ObjectBuilder) AddSymbol(s Symbol) (uint32, error) {
	if err := CheckSize(s); err != nil {
		return 0, err
	}
	if err := b.claim(s.Name); err != nil {
		return 0, err
	}
	addr := b.next
	b.symbols = append(b.symbols, objectSymbol{sym: s, addr: addr})
	b.next += uint32(len(s.Bytes))
	return addr, nil
}

// AddCustomSection appends a custom section.
func (b *ObjectBuilder) AddCustomSection(name string, data []byte) {
	b.custom = append(b.custom, wasm.CustomSection{Name: name, Data: data})
}

// HeapBase returns the first address after the data, aligned to 16.
func (b *ObjectBuilder) HeapBase() uint32 {
	return (b.next + heapAlign - 1) &^ (heapAlign - 1)
}

// Table returns the symbol table entries for the symbols added so far.
func (b *ObjectBuilder) Table() []TableEntry {
	entries := make([]TableEntry, len(b.symbols))
	for i, placed := range b.symbols {
		entries[i] = TableEntry{
			Name:    placed.sym.Name,
			Section: placed.sym.Section,
			Address: placed.addr,
			Size:    uint32(placed.sym.DeclaredSize),
			Mode:    placed.sym.Mode,
			Flags:   placed.sym.Flags(),
		}
	}
	return entries
}

// Module builds the wasm module. The emjs.symbols section is added last.
func (b *ObjectBuilder) Module() *wasm.Module {
	m := &wasm.Module{Types: b.types}

	for _, imp := range b.imports {
		m.Imports = append(m.Imports, wasm.Import{
			Module: imp.module,
			Name:   imp.name,
			Desc:   wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: imp.typeIdx},
		})
	}

	heapBase := b.HeapBase()
	pages := (heapBase+wasm.PageSize-1)/wasm.PageSize + heapHeadPages
	m.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: uint64(pages)}}}
	m.Exports = append(m.Exports, wasm.Export{Name: MemoryExport, Kind: wasm.KindMemory, Idx: 0})

	for _, placed := range b.symbols {
		idx := uint32(len(m.Globals))
		m.Globals = append(m.Globals, wasm.Global{
			Type: wasm.GlobalType{ValType: wasm.ValI32},
			Init: wasm.I32ConstExpr(int32(placed.addr)),
		})
		m.Exports = append(m.Exports, wasm.Export{Name: placed.sym.Name, Kind: wasm.KindGlobal, Idx: idx})
		m.Data = append(m.Data, wasm.DataSegment{
			Flags:  wasm.DataActive,
			Offset: wasm.I32ConstExpr(int32(placed.addr)),
			Init:   placed.sym.Bytes,
		})
	}

	for _, g := range []struct {
		name  string
		value uint32
	}{{HeapBaseName, heapBase}, {DataEndName, b.next}} {
		idx := uint32(len(m.Globals))
		m.Globals = append(m.Globals, wasm.Global{
			Type: wasm.GlobalType{ValType: wasm.ValI32},
			Init: wasm.I32ConstExpr(int32(g.value)),
		})
		m.Exports = append(m.Exports, wasm.Export{Name: g.name, Kind: wasm.KindGlobal, Idx: idx})
	}

	numImports := uint32(len(b.imports))
	for i, imp := range b.imports {
		ft := b.types[imp.typeIdx]
		m.Funcs = append(m.Funcs, imp.typeIdx)
		m.Code = append(m.Code, wasm.FuncBody{Code: trampoline(uint32(i), len(ft.Params))})
		m.Exports = append(m.Exports, wasm.Export{Name: imp.name, Kind: wasm.KindFunc, Idx: numImports + uint32(i)})
	}

	m.CustomSections = append(m.CustomSections, b.custom...)
	m.CustomSections = append(m.CustomSections, wasm.CustomSection{
		Name: SymbolsSection,
		Data: EncodeSymbolTable(b.Table()),
	})
	return m
}

// Build encodes the module.
func (b *ObjectBuilder) Build() []byte {
	return b.Module().Encode()
}

// trampoline is `local.get 0 .. local.get n-1; call target; end`.
func trampoline(target uint32, params int) []byte {
	code := make([]byte, 0, 2*params+8)
	for i := 0; i < params; i++ {
		code = append(code, wasm.OpLocalGet)
		code = wasm.AppendU32(code, uint32(i))
	}
	code = append(code, wasm.OpCall)
	code = wasm.AppendU32(code, target)
	return append(code, wasm.OpEnd)
}

// BuildObject renders e as a WebAssembly object module.
func BuildObject(e *Export) ([]byte, error) {
	b := NewObjectBuilder()
	for _, imp := range e.Imports {
		if err := b.AddImport(imp.Module, imp.Name, imp.Sig.FuncType()); err != nil {
			return nil, err
		}
	}
	for _, s := range e.Symbols {
		if _, err := b.AddSymbol(s); err != nil {
			return nil, err
		}
	}
	if len(e.Digest) > 0 {
		b.AddCustomSection(DigestSection, e.Digest)
	}

	out := b.Build()
	Logger().Debug("built object",
		zap.Int("symbols", len(e.Symbols)),
		zap.Int("imports", len(e.Imports)),
		zap.Uint32("heap_base", b.HeapBase()),
		zap.Int("bytes", len(out)))
	return out, nil
}

// ModeOf returns the encoding mode recorded for a payload symbol.
func ModeOf(entries []TableEntry, name string) (snippet.Mode, bool) {
	for _, e := range entries {
		if e.Name == name {
			return e.Mode, true
		}
	}
	return snippet.ModeVerbatim, false
}
