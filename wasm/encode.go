package wasm

import (
	"github.com/wippyai/emjs/wasm/internal/binary"
)

// Encode encodes the module to WebAssembly binary format. Custom sections
// are appended after the data section.
func (m *Module) Encode() []byte {
	w := binary.NewWriter()

	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	if len(m.Types) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Types)))
		for _, ft := range m.Types {
			sec.Byte(FuncTypeByte)
			writeValTypes(sec, ft.Params)
			writeValTypes(sec, ft.Results)
		}
		writeSection(w, SectionType, sec.Bytes())
	}

	if len(m.Imports) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			sec.WriteName(imp.Module)
			sec.WriteName(imp.Name)
			sec.Byte(imp.Desc.Kind)
			switch imp.Desc.Kind {
			case KindFunc:
				sec.WriteU32(imp.Desc.TypeIdx)
			case KindMemory:
				if imp.Desc.Memory != nil {
					writeLimits(sec, imp.Desc.Memory.Limits)
				}
			case KindGlobal:
				if imp.Desc.Global != nil {
					writeGlobalType(sec, *imp.Desc.Global)
				}
			}
		}
		writeSection(w, SectionImport, sec.Bytes())
	}

	if len(m.Funcs) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Funcs)))
		for _, typeIdx := range m.Funcs {
			sec.WriteU32(typeIdx)
		}
		writeSection(w, SectionFunction, sec.Bytes())
	}

	if len(m.Memories) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Memories)))
		for _, mem := range m.Memories {
			writeLimits(sec, mem.Limits)
		}
		writeSection(w, SectionMemory, sec.Bytes())
	}

	if len(m.Globals) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Globals)))
		for _, g := range m.Globals {
			writeGlobalType(sec, g.Type)
			sec.WriteBytes(g.Init)
		}
		writeSection(w, SectionGlobal, sec.Bytes())
	}

	if len(m.Exports) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Exports)))
		for _, exp := range m.Exports {
			sec.WriteName(exp.Name)
			sec.Byte(exp.Kind)
			sec.WriteU32(exp.Idx)
		}
		writeSection(w, SectionExport, sec.Bytes())
	}

	if len(m.Code) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Code)))
		for _, body := range m.Code {
			fn := binary.NewWriter()
			fn.WriteU32(uint32(len(body.Locals)))
			for _, l := range body.Locals {
				fn.WriteU32(l.Count)
				fn.Byte(byte(l.ValType))
			}
			fn.WriteBytes(body.Code)
			sec.WriteVec(fn.Bytes())
		}
		writeSection(w, SectionCode, sec.Bytes())
	}

	if len(m.Data) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Data)))
		for _, seg := range m.Data {
			sec.WriteU32(seg.Flags)
			switch seg.Flags {
			case DataActive:
				sec.WriteBytes(seg.Offset)
			case DataActiveExplicit:
				sec.WriteU32(seg.MemIdx)
				sec.WriteBytes(seg.Offset)
			}
			sec.WriteVec(seg.Init)
		}
		writeSection(w, SectionData, sec.Bytes())
	}

	for _, cs := range m.CustomSections {
		sec := binary.NewWriter()
		sec.WriteName(cs.Name)
		sec.WriteBytes(cs.Data)
		writeSection(w, SectionCustom, sec.Bytes())
	}

	return w.Bytes()
}

func writeSection(w *binary.Writer, id byte, content []byte) {
	w.Byte(id)
	w.WriteVec(content)
}

func writeValTypes(w *binary.Writer, types []ValType) {
	w.WriteU32(uint32(len(types)))
	for _, t := range types {
		w.Byte(byte(t))
	}
}

func writeLimits(w *binary.Writer, l Limits) {
	if l.Max != nil {
		w.Byte(LimitsHasMax)
		w.WriteU32(uint32(l.Min))
		w.WriteU32(uint32(*l.Max))
	} else {
		w.Byte(LimitsNoMax)
		w.WriteU32(uint32(l.Min))
	}
}

func writeGlobalType(w *binary.Writer, g GlobalType) {
	w.Byte(byte(g.ValType))
	if g.Mutable {
		w.Byte(0x01)
	} else {
		w.Byte(0x00)
	}
}

// I32ConstExpr returns the constant expression `i32.const v; end`.
func I32ConstExpr(v int32) []byte {
	w := binary.NewWriter()
	w.Byte(OpI32Const)
	w.WriteS32(v)
	w.Byte(OpEnd)
	return w.Bytes()
}

// AppendU32 appends v as unsigned LEB128.
func AppendU32(buf []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if v == 0 {
			return buf
		}
	}
}

// AppendName appends a length-prefixed name.
func AppendName(buf []byte, s string) []byte {
	buf = AppendU32(buf, uint32(len(s)))
	return append(buf, s...)
}
