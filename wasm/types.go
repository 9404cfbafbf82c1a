package wasm

import "fmt"

// Module is the subset of a WebAssembly module emjs writes and inspects.
// Sections the decoder does not model (tables, elements, start, tags) are
// skipped on read and never written.
type Module struct {
	Types          []FuncType
	Imports        []Import
	Funcs          []uint32 // type index per defined function
	Memories       []MemoryType
	Globals        []Global
	Exports        []Export
	Code           []FuncBody
	Data           []DataSegment
	CustomSections []CustomSection
}

// ValType is a WebAssembly value type.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValV128:
		return "v128"
	case ValFuncRef:
		return "funcref"
	case ValExternRef:
		return "externref"
	default:
		return fmt.Sprintf("valtype(0x%02x)", byte(v))
	}
}

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports whether two signatures are identical.
func (f FuncType) Equal(other FuncType) bool {
	if len(f.Params) != len(other.Params) || len(f.Results) != len(other.Results) {
		return false
	}
	for i := range f.Params {
		if f.Params[i] != other.Params[i] {
			return false
		}
	}
	for i := range f.Results {
		if f.Results[i] != other.Results[i] {
			return false
		}
	}
	return true
}

func (f FuncType) String() string {
	return fmt.Sprintf("(func (param %v) (result %v))", f.Params, f.Results)
}

// Limits bounds a memory.
type Limits struct {
	Max *uint64
	Min uint64
}

// MemoryType describes a linear memory.
type MemoryType struct {
	Limits Limits
}

// GlobalType describes a global variable.
type GlobalType struct {
	ValType ValType
	Mutable bool
}

// Global is a defined global with its constant initializer expression,
// including the trailing end opcode.
type Global struct {
	Init []byte
	Type GlobalType
}

// Import is a module import. Only TypeIdx, Memory or Global is set,
// depending on Desc.Kind.
type Import struct {
	Module string
	Name   string
	Desc   ImportDesc
}

// ImportDesc describes what an import provides.
type ImportDesc struct {
	Memory  *MemoryType
	Global  *GlobalType
	Kind    byte
	TypeIdx uint32
}

// Export is a module export.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// LocalEntry declares Count locals of one type.
type LocalEntry struct {
	Count   uint32
	ValType ValType
}

// FuncBody is a function's locals and raw instruction bytes, end included.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte
}

// DataSegment is a data section entry. Offset is the constant expression of
// an active segment, end opcode included.
type DataSegment struct {
	Offset []byte
	Init   []byte
	Flags  uint32
	MemIdx uint32
}

// Active reports whether the segment is copied into memory at instantiation.
func (d DataSegment) Active() bool {
	return d.Flags != DataPassive
}

// CustomSection is a named custom section.
type CustomSection struct {
	Name string
	Data []byte
}

// NumImportedFuncs counts function imports.
func (m *Module) NumImportedFuncs() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindFunc {
			n++
		}
	}
	return n
}

// NumImportedGlobals counts global imports.
func (m *Module) NumImportedGlobals() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindGlobal {
			n++
		}
	}
	return n
}

// GetGlobal returns the defined global at index idx in the global index
// space, or nil when idx refers to an import or is out of range.
func (m *Module) GetGlobal(idx uint32) *Global {
	imported := uint32(m.NumImportedGlobals())
	if idx < imported {
		return nil
	}
	local := idx - imported
	if int(local) >= len(m.Globals) {
		return nil
	}
	return &m.Globals[local]
}

// FuncTypeOf returns the signature of function idx in the function index space.
func (m *Module) FuncTypeOf(idx uint32) (FuncType, bool) {
	var typeIdx uint32
	found := false
	n := uint32(0)
	for _, imp := range m.Imports {
		if imp.Desc.Kind != KindFunc {
			continue
		}
		if n == idx {
			typeIdx = imp.Desc.TypeIdx
			found = true
			break
		}
		n++
	}
	if !found {
		local := idx - n
		if idx < n || int(local) >= len(m.Funcs) {
			return FuncType{}, false
		}
		typeIdx = m.Funcs[local]
	}
	if int(typeIdx) >= len(m.Types) {
		return FuncType{}, false
	}
	return m.Types[typeIdx], true
}

// CustomSection returns the first custom section named name.
func (m *Module) CustomSection(name string) (CustomSection, bool) {
	for _, cs := range m.CustomSections {
		if cs.Name == name {
			return cs, true
		}
	}
	return CustomSection{}, false
}

// ExportByName returns the export named name.
func (m *Module) ExportByName(name string) (Export, bool) {
	for _, e := range m.Exports {
		if e.Name == name {
			return e, true
		}
	}
	return Export{}, false
}
