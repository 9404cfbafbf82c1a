package wasm

import (
	"errors"
	"fmt"

	"github.com/wippyai/emjs/wasm/internal/binary"
)

var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("unsupported wasm version")
	ErrSectionOrder   = errors.New("section out of order")
	ErrUnsupported    = errors.New("unsupported encoding")
	ErrCount          = binary.ErrCount
)

// ParseModule decodes the sections emjs models. Table, start, element,
// data count and tag sections are skipped; their presence is still
// order-checked.
func ParseModule(data []byte) (*Module, error) {
	r := binary.NewReader(data)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}
	version, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if version != Version {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVersion, version)
	}

	m := &Module{}
	lastOrder := 0

	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, r.WrapError("section id", err)
		}
		content, err := r.ReadVec()
		if err != nil {
			return nil, r.WrapError(sectionName(id), err)
		}

		if id != SectionCustom {
			order, known := sectionOrder[id]
			if !known {
				return nil, fmt.Errorf("%w: unknown section id %d", ErrUnsupported, id)
			}
			if order <= lastOrder {
				return nil, fmt.Errorf("%w: %s", ErrSectionOrder, sectionName(id))
			}
			lastOrder = order
		}

		sr := binary.NewReader(content)
		switch id {
		case SectionCustom:
			name, err := sr.ReadName()
			if err != nil {
				return nil, sr.WrapError("custom", err)
			}
			rest, _ := sr.ReadBytes(sr.Len())
			m.CustomSections = append(m.CustomSections, CustomSection{Name: name, Data: append([]byte(nil), rest...)})
		case SectionType:
			err = parseTypes(sr, m)
		case SectionImport:
			err = parseImports(sr, m)
		case SectionFunction:
			err = parseFuncs(sr, m)
		case SectionMemory:
			err = parseMemories(sr, m)
		case SectionGlobal:
			err = parseGlobals(sr, m)
		case SectionExport:
			err = parseExports(sr, m)
		case SectionCode:
			err = parseCode(sr, m)
		case SectionData:
			err = parseData(sr, m)
		}
		if err != nil {
			return nil, err
		}
	}

	return m, nil
}

func sectionName(id byte) string {
	switch id {
	case SectionCustom:
		return "custom"
	case SectionType:
		return "type"
	case SectionImport:
		return "import"
	case SectionFunction:
		return "function"
	case SectionTable:
		return "table"
	case SectionMemory:
		return "memory"
	case SectionGlobal:
		return "global"
	case SectionExport:
		return "export"
	case SectionStart:
		return "start"
	case SectionElement:
		return "element"
	case SectionCode:
		return "code"
	case SectionData:
		return "data"
	case SectionDataCount:
		return "datacount"
	case SectionTag:
		return "tag"
	default:
		return fmt.Sprintf("section(%d)", id)
	}
}

func parseTypes(r *binary.Reader, m *Module) error {
	count, err := r.ReadCount()
	if err != nil {
		return r.WrapError("type", err)
	}
	m.Types = make([]FuncType, 0, count)
	for i := uint32(0); i < count; i++ {
		form, err := r.ReadByte()
		if err != nil {
			return r.WrapError("type", err)
		}
		if form != FuncTypeByte {
			return r.WrapError("type", fmt.Errorf("%w: type form 0x%02x", ErrUnsupported, form))
		}
		params, err := readValTypes(r)
		if err != nil {
			return r.WrapError("type", err)
		}
		results, err := readValTypes(r)
		if err != nil {
			return r.WrapError("type", err)
		}
		m.Types = append(m.Types, FuncType{Params: params, Results: results})
	}
	return nil
}

func readValTypes(r *binary.Reader) ([]ValType, error) {
	n, err := r.ReadCount()
	if err != nil {
		return nil, err
	}
	raw, err := r.ReadBytes(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]ValType, n)
	for i, b := range raw {
		out[i] = ValType(b)
	}
	return out, nil
}

func parseImports(r *binary.Reader, m *Module) error {
	count, err := r.ReadCount()
	if err != nil {
		return r.WrapError("import", err)
	}
	m.Imports = make([]Import, 0, count)
	for i := uint32(0); i < count; i++ {
		var imp Import
		if imp.Module, err = r.ReadName(); err != nil {
			return r.WrapError("import", err)
		}
		if imp.Name, err = r.ReadName(); err != nil {
			return r.WrapError("import", err)
		}
		if imp.Desc.Kind, err = r.ReadByte(); err != nil {
			return r.WrapError("import", err)
		}
		switch imp.Desc.Kind {
		case KindFunc:
			imp.Desc.TypeIdx, err = r.ReadU32()
		case KindTable:
			if _, err = r.ReadByte(); err == nil {
				_, err = readLimits(r)
			}
		case KindMemory:
			var lim Limits
			lim, err = readLimits(r)
			imp.Desc.Memory = &MemoryType{Limits: lim}
		case KindGlobal:
			var gt GlobalType
			gt, err = readGlobalType(r)
			imp.Desc.Global = &gt
		case KindTag:
			if _, err = r.ReadByte(); err == nil {
				imp.Desc.TypeIdx, err = r.ReadU32()
			}
		default:
			err = fmt.Errorf("%w: import kind 0x%02x", ErrUnsupported, imp.Desc.Kind)
		}
		if err != nil {
			return r.WrapError("import", err)
		}
		m.Imports = append(m.Imports, imp)
	}
	return nil
}

func parseFuncs(r *binary.Reader, m *Module) error {
	count, err := r.ReadCount()
	if err != nil {
		return r.WrapError("function", err)
	}
	m.Funcs = make([]uint32, count)
	for i := range m.Funcs {
		if m.Funcs[i], err = r.ReadU32(); err != nil {
			return r.WrapError("function", err)
		}
	}
	return nil
}

func parseMemories(r *binary.Reader, m *Module) error {
	count, err := r.ReadCount()
	if err != nil {
		return r.WrapError("memory", err)
	}
	for i := uint32(0); i < count; i++ {
		lim, err := readLimits(r)
		if err != nil {
			return r.WrapError("memory", err)
		}
		m.Memories = append(m.Memories, MemoryType{Limits: lim})
	}
	return nil
}

func readLimits(r *binary.Reader) (Limits, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	if flags&0x04 != 0 {
		return Limits{}, fmt.Errorf("%w: 64-bit limits", ErrUnsupported)
	}
	minPages, err := r.ReadU32()
	if err != nil {
		return Limits{}, err
	}
	lim := Limits{Min: uint64(minPages)}
	if flags&LimitsHasMax != 0 {
		maxPages, err := r.ReadU32()
		if err != nil {
			return Limits{}, err
		}
		mx := uint64(maxPages)
		lim.Max = &mx
	}
	return lim, nil
}

func readGlobalType(r *binary.Reader) (GlobalType, error) {
	vt, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	mut, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	return GlobalType{ValType: ValType(vt), Mutable: mut == 0x01}, nil
}

func parseGlobals(r *binary.Reader, m *Module) error {
	count, err := r.ReadCount()
	if err != nil {
		return r.WrapError("global", err)
	}
	m.Globals = make([]Global, 0, count)
	for i := uint32(0); i < count; i++ {
		gt, err := readGlobalType(r)
		if err != nil {
			return r.WrapError("global", err)
		}
		expr, err := readConstExpr(r)
		if err != nil {
			return r.WrapError("global", err)
		}
		m.Globals = append(m.Globals, Global{Type: gt, Init: expr})
	}
	return nil
}

// readConstExpr returns the bytes of a constant expression, end included.
func readConstExpr(r *binary.Reader) ([]byte, error) {
	start := r.Position()
	for {
		op, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		switch op {
		case OpEnd:
			return append([]byte(nil), r.Slice(start, r.Position())...), nil
		case OpI32Const:
			_, err = r.ReadS32()
		case OpI64Const:
			_, err = r.ReadS64()
		case OpF32Const:
			_, err = r.ReadBytes(4)
		case OpF64Const:
			_, err = r.ReadBytes(8)
		case OpGlobalGet:
			_, err = r.ReadU32()
		case 0x6a, 0x6b, 0x6c, 0x7c, 0x7d, 0x7e: // extended-const arithmetic
		default:
			return nil, fmt.Errorf("%w: opcode 0x%02x in constant expression", ErrUnsupported, op)
		}
		if err != nil {
			return nil, err
		}
	}
}

func parseExports(r *binary.Reader, m *Module) error {
	count, err := r.ReadCount()
	if err != nil {
		return r.WrapError("export", err)
	}
	m.Exports = make([]Export, 0, count)
	for i := uint32(0); i < count; i++ {
		var exp Export
		if exp.Name, err = r.ReadName(); err != nil {
			return r.WrapError("export", err)
		}
		if exp.Kind, err = r.ReadByte(); err != nil {
			return r.WrapError("export", err)
		}
		if exp.Idx, err = r.ReadU32(); err != nil {
			return r.WrapError("export", err)
		}
		m.Exports = append(m.Exports, exp)
	}
	return nil
}

func parseCode(r *binary.Reader, m *Module) error {
	count, err := r.ReadCount()
	if err != nil {
		return r.WrapError("code", err)
	}
	m.Code = make([]FuncBody, 0, count)
	for i := uint32(0); i < count; i++ {
		raw, err := r.ReadVec()
		if err != nil {
			return r.WrapError("code", err)
		}
		fr := binary.NewReader(raw)
		n, err := fr.ReadU32()
		if err != nil {
			return fr.WrapError("code", err)
		}
		var body FuncBody
		for j := uint32(0); j < n; j++ {
			cnt, err := fr.ReadU32()
			if err != nil {
				return fr.WrapError("code", err)
			}
			vt, err := fr.ReadByte()
			if err != nil {
				return fr.WrapError("code", err)
			}
			body.Locals = append(body.Locals, LocalEntry{Count: cnt, ValType: ValType(vt)})
		}
		code, _ := fr.ReadBytes(fr.Len())
		body.Code = append([]byte(nil), code...)
		m.Code = append(m.Code, body)
	}
	return nil
}

func parseData(r *binary.Reader, m *Module) error {
	count, err := r.ReadCount()
	if err != nil {
		return r.WrapError("data", err)
	}
	m.Data = make([]DataSegment, 0, count)
	for i := uint32(0); i < count; i++ {
		var seg DataSegment
		if seg.Flags, err = r.ReadU32(); err != nil {
			return r.WrapError("data", err)
		}
		switch seg.Flags {
		case DataActive:
			seg.Offset, err = readConstExpr(r)
		case DataPassive:
		case DataActiveExplicit:
			if seg.MemIdx, err = r.ReadU32(); err == nil {
				seg.Offset, err = readConstExpr(r)
			}
		default:
			err = fmt.Errorf("%w: data segment flags %d", ErrUnsupported, seg.Flags)
		}
		if err != nil {
			return r.WrapError("data", err)
		}
		payload, err := r.ReadVec()
		if err != nil {
			return r.WrapError("data", err)
		}
		seg.Init = append([]byte(nil), payload...)
		m.Data = append(m.Data, seg)
	}
	return nil
}

// EvalI32 evaluates a constant expression of the form `i32.const v; end`.
// global.get and extended-const forms report ok=false.
func EvalI32(expr []byte) (int32, bool) {
	r := binary.NewReader(expr)
	op, err := r.ReadByte()
	if err != nil || op != OpI32Const {
		return 0, false
	}
	v, err := r.ReadS32()
	if err != nil {
		return 0, false
	}
	end, err := r.ReadByte()
	if err != nil || end != OpEnd {
		return 0, false
	}
	return v, true
}
