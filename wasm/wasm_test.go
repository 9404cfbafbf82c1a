package wasm

import (
	"bytes"
	"errors"
	"testing"
)

func sampleModule() *Module {
	maxPages := uint64(4)
	return &Module{
		Types: []FuncType{
			{Params: []ValType{ValI32}, Results: []ValType{ValI32}},
			{Params: []ValType{ValF64, ValI64}},
		},
		Imports: []Import{
			{Module: "env", Name: "sum", Desc: ImportDesc{Kind: KindFunc, TypeIdx: 0}},
			{Module: "env", Name: "g", Desc: ImportDesc{Kind: KindGlobal, Global: &GlobalType{ValType: ValI32}}},
		},
		Funcs:    []uint32{0},
		Memories: []MemoryType{{Limits: Limits{Min: 1, Max: &maxPages}}},
		Globals: []Global{
			{Type: GlobalType{ValType: ValI32}, Init: I32ConstExpr(1024)},
			{Type: GlobalType{ValType: ValI32, Mutable: true}, Init: I32ConstExpr(-7)},
		},
		Exports: []Export{
			{Name: "memory", Kind: KindMemory, Idx: 0},
			{Name: "__em_js__sum", Kind: KindGlobal, Idx: 1},
			{Name: "sum", Kind: KindFunc, Idx: 1},
		},
		Code: []FuncBody{
			{Code: []byte{OpLocalGet, 0, OpCall, 0, OpEnd}},
		},
		Data: []DataSegment{
			{Flags: DataActive, Offset: I32ConstExpr(1024), Init: []byte("(n)<::>{return n;}\x00")},
			{Flags: DataPassive, Init: []byte{1, 2, 3}},
		},
		CustomSections: []CustomSection{
			{Name: "emjs.digest", Data: []byte{0xde, 0xad}},
		},
	}
}

func TestEncodeDecode(t *testing.T) {
	m := sampleModule()
	bin := m.Encode()

	if !bytes.Equal(bin[:4], []byte{0x00, 'a', 's', 'm'}) {
		t.Fatalf("bad magic: %x", bin[:4])
	}

	got, err := ParseModule(bin)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}

	if len(got.Types) != 2 || !got.Types[0].Equal(m.Types[0]) || !got.Types[1].Equal(m.Types[1]) {
		t.Errorf("Types = %v", got.Types)
	}
	if len(got.Imports) != 2 || got.Imports[0].Name != "sum" || got.Imports[1].Desc.Global == nil {
		t.Errorf("Imports = %+v", got.Imports)
	}
	if len(got.Memories) != 1 || got.Memories[0].Limits.Min != 1 || *got.Memories[0].Limits.Max != 4 {
		t.Errorf("Memories = %+v", got.Memories)
	}
	if len(got.Globals) != 2 || !bytes.Equal(got.Globals[0].Init, m.Globals[0].Init) || !got.Globals[1].Type.Mutable {
		t.Errorf("Globals = %+v", got.Globals)
	}
	if len(got.Exports) != 3 || got.Exports[1].Name != "__em_js__sum" {
		t.Errorf("Exports = %+v", got.Exports)
	}
	if len(got.Code) != 1 || !bytes.Equal(got.Code[0].Code, m.Code[0].Code) {
		t.Errorf("Code = %+v", got.Code)
	}
	if len(got.Data) != 2 || !bytes.Equal(got.Data[0].Init, m.Data[0].Init) || got.Data[1].Active() {
		t.Errorf("Data = %+v", got.Data)
	}
	cs, ok := got.CustomSection("emjs.digest")
	if !ok || !bytes.Equal(cs.Data, []byte{0xde, 0xad}) {
		t.Errorf("custom section = %+v, %v", cs, ok)
	}

	if !bytes.Equal(got.Encode(), bin) {
		t.Error("re-encoding a decoded module should be byte identical")
	}
}

func TestEvalI32(t *testing.T) {
	for _, v := range []int32{0, 1, 1024, -1, 1 << 30} {
		got, ok := EvalI32(I32ConstExpr(v))
		if !ok || got != v {
			t.Errorf("EvalI32(%d) = %d, %v", v, got, ok)
		}
	}
	if _, ok := EvalI32([]byte{OpGlobalGet, 0, OpEnd}); ok {
		t.Error("global.get should not evaluate")
	}
}

func TestModuleLookups(t *testing.T) {
	m := sampleModule()

	if m.NumImportedFuncs() != 1 || m.NumImportedGlobals() != 1 {
		t.Errorf("imports: funcs=%d globals=%d", m.NumImportedFuncs(), m.NumImportedGlobals())
	}
	if m.GetGlobal(0) != nil {
		t.Error("global 0 is imported")
	}
	if g := m.GetGlobal(1); g == nil || !bytes.Equal(g.Init, I32ConstExpr(1024)) {
		t.Errorf("GetGlobal(1) = %+v", g)
	}
	if m.GetGlobal(3) != nil {
		t.Error("global 3 is out of range")
	}

	ft, ok := m.FuncTypeOf(0)
	if !ok || !ft.Equal(m.Types[0]) {
		t.Errorf("FuncTypeOf(0) = %v, %v", ft, ok)
	}
	ft, ok = m.FuncTypeOf(1)
	if !ok || !ft.Equal(m.Types[0]) {
		t.Errorf("FuncTypeOf(1) = %v, %v", ft, ok)
	}
	if _, ok := m.FuncTypeOf(2); ok {
		t.Error("FuncTypeOf(2) should fail")
	}

	if e, ok := m.ExportByName("sum"); !ok || e.Kind != KindFunc {
		t.Errorf("ExportByName = %+v, %v", e, ok)
	}
}

func TestParseModule_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"bad magic", []byte{0, 'a', 's', 'x', 1, 0, 0, 0}, ErrInvalidMagic},
		{"bad version", []byte{0, 'a', 's', 'm', 2, 0, 0, 0}, ErrInvalidVersion},
		{
			name: "section order",
			data: append(append([]byte{0, 'a', 's', 'm', 1, 0, 0, 0},
				SectionExport, 1, 0),
				SectionType, 1, 0),
			want: ErrSectionOrder,
		},
		{
			name: "unknown section",
			data: []byte{0, 'a', 's', 'm', 1, 0, 0, 0, 42, 0},
			want: ErrUnsupported,
		},
		{
			name: "type count beyond section",
			data: []byte{0, 'a', 's', 'm', 1, 0, 0, 0, SectionType, 5, 0xff, 0xff, 0xff, 0xff, 0x0f},
			want: ErrCount,
		},
		{
			name: "function count beyond section",
			data: []byte{0, 'a', 's', 'm', 1, 0, 0, 0, SectionFunction, 5, 0xff, 0xff, 0xff, 0xff, 0x0f},
			want: ErrCount,
		},
		{
			name: "param count beyond section",
			data: []byte{0, 'a', 's', 'm', 1, 0, 0, 0, SectionType, 7, 1, FuncTypeByte, 0xff, 0xff, 0xff, 0xff, 0x0f},
			want: ErrCount,
		},
		{
			name: "data count beyond section",
			data: []byte{0, 'a', 's', 'm', 1, 0, 0, 0, SectionData, 3, 0x80, 0x80, 0x04},
			want: ErrCount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseModule(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := ParseModule([]byte{0, 'a'}); err == nil {
		t.Error("truncated header should fail")
	}
}

func TestParseModule_SkipsTable(t *testing.T) {
	bin := []byte{0, 'a', 's', 'm', 1, 0, 0, 0}
	// table section: one funcref table, min 1
	bin = append(bin, SectionTable, 4, 1, byte(ValFuncRef), 0x00, 1)
	m, err := ParseModule(bin)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if len(m.Types) != 0 {
		t.Errorf("unexpected types %v", m.Types)
	}
}

func TestAppendHelpers(t *testing.T) {
	buf := AppendName(nil, "ab")
	buf = AppendU32(buf, 300)
	if !bytes.Equal(buf, []byte{2, 'a', 'b', 0xac, 0x02}) {
		t.Errorf("got %x", buf)
	}
}

func TestValTypeString(t *testing.T) {
	if ValI32.String() != "i32" || ValF64.String() != "f64" {
		t.Error("unexpected names")
	}
	if ValType(0x01).String() != "valtype(0x01)" {
		t.Errorf("got %s", ValType(0x01).String())
	}
}
