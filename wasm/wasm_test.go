package wasm

import (
	"bytes"
	"errors"
	"testing"
)

func sampleModule() *Module {
	one := uint64(2)
	return &Module{
		Types: []FuncType{
			{Results: []ValType{ValI32}},
			{Params: []ValType{ValI32}, Results: []ValType{ValI32}},
			{Params: []ValType{ValI32}},
		},
		Imports: []Import{
			{Module: "env", Name: "log", Desc: ImportDesc{Kind: KindFunc, TypeIdx: 2}},
		},
		Funcs:    []uint32{0, 1},
		Memories: []MemoryType{{Limits: Limits{Min: 1, Max: &one}}},
		Globals: []Global{
			{Type: GlobalType{ValType: ValI32, Mutable: true}, Init: []byte{OpI32Const, 0x80, 0x08, OpEnd}},
		},
		Exports: []Export{
			{Name: "memory", Kind: KindMemory, Idx: 0},
			{Name: "get_wasm_memory_buffer_pointer", Kind: KindFunc, Idx: 1},
			{Name: "add_wasm_is_cool", Kind: KindFunc, Idx: 2},
		},
		Code: []FuncBody{
			{Code: []byte{OpGlobalGet, 0x00, OpEnd}},
			{Locals: []LocalEntry{{Count: 1, ValType: ValI32}}, Code: []byte{OpLocalGet, 0x00, OpEnd}},
		},
		Data: []DataSegment{
			{Offset: []byte{OpI32Const, 0x10, OpEnd}, Init: []byte(" Wasm is cool!")},
		},
		CustomSections: []CustomSection{{Name: "producers", Data: []byte{0x00}}},
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	original := sampleModule()
	encoded := original.Encode()

	if !bytes.HasPrefix(encoded, []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}) {
		t.Fatalf("missing header: %x", encoded[:8])
	}

	parsed, err := ParseModuleValidate(encoded)
	if err != nil {
		t.Fatalf("ParseModuleValidate: %v", err)
	}

	if len(parsed.Types) != 3 || len(parsed.Funcs) != 2 || len(parsed.Code) != 2 {
		t.Fatalf("unexpected shape: %d types, %d funcs, %d bodies", len(parsed.Types), len(parsed.Funcs), len(parsed.Code))
	}
	if got := parsed.ExportedFuncType("add_wasm_is_cool"); got == nil || got.String() != "(i32) -> (i32)" {
		t.Errorf("add_wasm_is_cool type = %v", got)
	}
	if got := parsed.ExportedFuncType("get_wasm_memory_buffer_pointer"); got == nil || got.String() != "() -> (i32)" {
		t.Errorf("pointer export type = %v", got)
	}
	if got := parsed.ExportedFuncType("memory"); got != nil {
		t.Errorf("memory export resolved as function: %v", got)
	}
	if !bytes.Equal(parsed.Data[0].Init, []byte(" Wasm is cool!")) {
		t.Errorf("data segment = %q", parsed.Data[0].Init)
	}
	if parsed.Memories[0].Limits.Max == nil || *parsed.Memories[0].Limits.Max != 2 {
		t.Errorf("memory max not preserved")
	}
	if len(parsed.CustomSections) != 1 || parsed.CustomSections[0].Name != "producers" {
		t.Errorf("custom sections = %+v", parsed.CustomSections)
	}

	if !bytes.Equal(parsed.Encode(), encoded) {
		t.Error("re-encoding is not stable")
	}
}

func TestParseRejectsBadHeader(t *testing.T) {
	if _, err := ParseModule([]byte{0x00, 0x61, 0x73, 0x6e, 0x01, 0x00, 0x00, 0x00}); !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("bad magic: got %v", err)
	}
	if _, err := ParseModule([]byte{0x00, 0x61, 0x73, 0x6d, 0x02, 0x00, 0x00, 0x00}); !errors.Is(err, ErrInvalidVersion) {
		t.Errorf("bad version: got %v", err)
	}
	if _, err := ParseModule([]byte{0x00, 0x61}); err == nil {
		t.Error("truncated header accepted")
	}
	if _, err := ParseModule([]byte("hello, not wasm")); err == nil {
		t.Error("text accepted as wasm")
	}
}

func TestParseRejectsOutOfOrderSections(t *testing.T) {
	data := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	data = append(data, SectionFunction, 0x01, 0x00) // empty function section
	data = append(data, SectionType, 0x01, 0x00)     // empty type section after it

	if _, err := ParseModule(data); err == nil {
		t.Fatal("expected out-of-order error")
	}
}

func TestParseRejectsTagSection(t *testing.T) {
	data := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, SectionTag, 0x01, 0x00}
	if _, err := ParseModule(data); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestParseRejectsTruncatedSection(t *testing.T) {
	encoded := sampleModule().Encode()
	if _, err := ParseModule(encoded[:len(encoded)-3]); err == nil {
		t.Fatal("expected error for truncated module")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		mutate func(*Module)
		name   string
	}{
		{func(m *Module) { m.Funcs[0] = 9 }, "function type out of range"},
		{func(m *Module) { m.Imports[0].Desc.TypeIdx = 9 }, "import type out of range"},
		{func(m *Module) { m.Exports[2].Name = "memory" }, "duplicate export"},
		{func(m *Module) { m.Exports[1].Idx = 7 }, "export index out of range"},
		{func(m *Module) { m.Code = m.Code[:1] }, "code count mismatch"},
		{func(m *Module) { n := uint32(4); m.DataCount = &n }, "data count mismatch"},
		{func(m *Module) { m.Memories[0].Limits.Min = MemoryMaxPages32 + 1; m.Memories[0].Limits.Max = nil }, "memory too large"},
		{func(m *Module) { m.Memories = append(m.Memories, MemoryType{}) }, "multiple memories"},
		{func(m *Module) { s := uint32(2); m.Start = &s }, "start with params"},
	}

	if err := sampleModule().Validate(); err != nil {
		t.Fatalf("sample module invalid: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sampleModule()
			tt.mutate(m)
			if err := m.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestAddTypeReusesExisting(t *testing.T) {
	m := sampleModule()
	if idx := m.AddType(FuncType{Params: []ValType{ValI32}, Results: []ValType{ValI32}}); idx != 1 {
		t.Errorf("AddType reused index = %d, want 1", idx)
	}
	if idx := m.AddType(FuncType{Params: []ValType{ValI64}}); idx != 3 {
		t.Errorf("AddType new index = %d, want 3", idx)
	}
}

func TestFuncImports(t *testing.T) {
	m := sampleModule()
	m.Imports = append(m.Imports, Import{Module: "env", Name: "mem", Desc: ImportDesc{Kind: KindGlobal, Global: &GlobalType{ValType: ValI32}}})
	imports := m.FuncImports()
	if len(imports) != 1 || imports[0].Name != "log" {
		t.Errorf("FuncImports = %+v", imports)
	}
}

func TestLEB128(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 63, 64, -64, -65, 1024, -2147483648, 2147483647} {
		var buf bytes.Buffer
		WriteLEB128s(&buf, v)
		got, err := ReadLEB128s(&buf)
		if err != nil || got != v {
			t.Errorf("signed %d: got %d, %v", v, got, err)
		}
	}
	for _, v := range []uint32{0, 127, 128, 65536, 0xFFFFFFFF} {
		var buf bytes.Buffer
		WriteLEB128u(&buf, v)
		got, err := ReadLEB128u(&buf)
		if err != nil || got != v {
			t.Errorf("unsigned %d: got %d, %v", v, got, err)
		}
	}
	if _, err := ReadLEB128u(bytes.NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01})); !errors.Is(err, ErrOverflow) {
		t.Errorf("expected overflow, got %v", err)
	}
}

func TestConstExprImmediates(t *testing.T) {
	tests := []struct {
		name string
		init []byte
		err  error
	}{
		{"negative i32", []byte{OpI32Const, 0x7F, OpEnd}, nil},
		{"five byte i32", []byte{OpI32Const, 0x80, 0x80, 0x80, 0x80, 0x04, OpEnd}, nil},
		{"i32 wider than 32 bits", []byte{OpI32Const, 0x80, 0x80, 0x80, 0x80, 0x80, 0x01, OpEnd}, ErrOverflow},
		{"i64", []byte{OpI64Const, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x01, OpEnd}, nil},
		{"unsupported opcode", []byte{OpI32Add, OpEnd}, ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sampleModule()
			m.Globals[0].Init = tt.init
			if tt.name == "i64" {
				m.Globals[0].Type.ValType = ValI64
			}
			parsed, err := ParseModule(m.Encode())
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("expected %v, got %v", tt.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseModule: %v", err)
			}
			if !bytes.Equal(parsed.Globals[0].Init, tt.init) {
				t.Errorf("init = %x, want %x", parsed.Globals[0].Init, tt.init)
			}
		})
	}
}

func TestParseLocatesErrors(t *testing.T) {
	data := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	// type section declaring one function type with an unknown value type
	data = append(data, SectionType, 0x05, 0x01, FuncTypeByte, 0x01, 0x55, 0x00)

	_, err := ParseModule(data)
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if de.Section != "type section" || de.Offset != 14 {
		t.Errorf("located at %s byte %d", de.Section, de.Offset)
	}
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("cause = %v", de.Err)
	}
}

func TestParseRejectsOversizedCount(t *testing.T) {
	data := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	// function section claiming 2^32-1 entries in a 5 byte body
	data = append(data, SectionFunction, 0x05, 0xFF, 0xFF, 0xFF, 0xFF, 0x0F)
	if _, err := ParseModule(data); err == nil {
		t.Fatal("expected count error")
	}
}

func TestElementsAndStartRoundTrip(t *testing.T) {
	m := sampleModule()
	m.Types = append(m.Types, FuncType{})
	m.Funcs = append(m.Funcs, 3)
	m.Code = append(m.Code, FuncBody{Code: []byte{OpEnd}})
	start := uint32(3)
	m.Start = &start
	m.Tables = []TableType{{ElemType: byte(ValFuncRef), Limits: Limits{Min: 1}}}
	m.Elements = []byte{0x01, 0x00, 0x41, 0x00, OpEnd, 0x01, 0x01}
	count := uint32(1)
	m.DataCount = &count

	parsed, err := ParseModuleValidate(m.Encode())
	if err != nil {
		t.Fatalf("ParseModuleValidate: %v", err)
	}
	if parsed.Start == nil || *parsed.Start != 3 {
		t.Errorf("start = %v", parsed.Start)
	}
	if !bytes.Equal(parsed.Elements, m.Elements) {
		t.Errorf("elements = %x", parsed.Elements)
	}
	if parsed.DataCount == nil || *parsed.DataCount != 1 {
		t.Errorf("data count = %v", parsed.DataCount)
	}
	if !bytes.Equal(parsed.Globals[0].Init, m.Globals[0].Init) {
		t.Errorf("global init = %x", parsed.Globals[0].Init)
	}
}
