package wasm

import "strings"

// Module represents a parsed WebAssembly core module
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []uint32 // Type indices for declared functions
	Tables   []TableType
	Memories []MemoryType
	Globals  []Global
	Exports  []Export
	Start    *uint32

	// Elements holds the raw element section payload. Element segments are
	// carried through untouched; nothing in the exchange inspects them.
	Elements []byte

	Code []FuncBody
	Data []DataSegment

	// DataCount holds the count from the DataCount section (ID 12).
	DataCount *uint32

	CustomSections []CustomSection
}

// FuncType represents a WebAssembly function signature with parameter and result types.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// String renders the signature as "(i32, i32) -> (i32)".
func (ft FuncType) String() string {
	return "(" + joinValTypes(ft.Params) + ") -> (" + joinValTypes(ft.Results) + ")"
}

// Equal reports whether two signatures have identical params and results.
func (ft FuncType) Equal(other FuncType) bool {
	return valTypesEqual(ft.Params, other.Params) && valTypesEqual(ft.Results, other.Results)
}

func joinValTypes(types []ValType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

func valTypesEqual(a, b []ValType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ValType represents a WebAssembly value type.
// See constants.go for ValI32, ValI64, ValF32, ValF64, etc.
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
	case ValExtern:
		return "externref"
	default:
		return "unknown"
	}
}

// Import represents an imported function, table, memory, or global.
type Import struct {
	Desc   ImportDesc
	Module string
	Name   string
}

// ImportDesc describes an imported item.
// Kind uses KindFunc, KindTable, KindMemory, or KindGlobal constants.
type ImportDesc struct {
	Table   *TableType
	Memory  *MemoryType
	Global  *GlobalType
	TypeIdx uint32
	Kind    byte
}

// TableType describes a table with element type and size limits.
type TableType struct {
	Limits   Limits
	ElemType byte
}

// MemoryType describes a linear memory with size limits.
type MemoryType struct {
	Limits Limits
}

// Limits describes size constraints for tables and memories.
type Limits struct {
	Max    *uint64
	Min    uint64
	Shared bool
}

// GlobalType describes a global variable's type and mutability.
type GlobalType struct {
	ValType ValType
	Mutable bool
}

// Global represents a global variable with type and initialization.
type Global struct {
	Type GlobalType
	Init []byte // Raw init expression bytes
}

// Export describes an exported item.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// FuncBody represents a function's local declarations and bytecode.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte // Raw code bytes including end opcode
}

// LocalEntry represents a group of local variables with the same type.
type LocalEntry struct {
	Count   uint32
	ValType ValType
}

// DataSegment represents a data segment.
// Flags determine the format:
//   - 0: active, memIdx=0, offset expr, vec(byte)
//   - 1: passive, vec(byte)
//   - 2: active, memIdx, offset expr, vec(byte)
type DataSegment struct {
	Offset []byte
	Init   []byte
	Flags  uint32
	MemIdx uint32
}

// CustomSection holds a named custom section's data.
type CustomSection struct {
	Name string
	Data []byte
}

// ImportCount returns how many imports of the given kind the module declares.
// Imported items take the lowest indices in their index space.
func (m *Module) ImportCount(kind byte) int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == kind {
			n++
		}
	}
	return n
}

// GetFuncType returns the type of the function at funcIdx in the combined
// imported-then-defined index space, or nil when there is none.
func (m *Module) GetFuncType(funcIdx uint32) *FuncType {
	imports := m.FuncImports()
	if int(funcIdx) < len(imports) {
		return m.typeAt(imports[funcIdx].Desc.TypeIdx)
	}
	local := int(funcIdx) - len(imports)
	if local >= len(m.Funcs) {
		return nil
	}
	return m.typeAt(m.Funcs[local])
}

func (m *Module) typeAt(typeIdx uint32) *FuncType {
	if int(typeIdx) >= len(m.Types) {
		return nil
	}
	return &m.Types[typeIdx]
}

// Export returns the export with the given name, if any.
func (m *Module) Export(name string) (Export, bool) {
	for _, exp := range m.Exports {
		if exp.Name == name {
			return exp, true
		}
	}
	return Export{}, false
}

// ExportedFuncType returns the signature of the function exported under
// name. It returns nil when no function export with that name exists.
func (m *Module) ExportedFuncType(name string) *FuncType {
	exp, ok := m.Export(name)
	if !ok || exp.Kind != KindFunc {
		return nil
	}
	return m.GetFuncType(exp.Idx)
}

// FuncImports returns the function imports in declaration order.
func (m *Module) FuncImports() []Import {
	var out []Import
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindFunc {
			out = append(out, imp)
		}
	}
	return out
}

// AddType adds a function type and returns its index, reusing existing if equal
func (m *Module) AddType(ft FuncType) uint32 {
	for i, t := range m.Types {
		if t.Equal(ft) {
			return uint32(i)
		}
	}
	idx := uint32(len(m.Types))
	m.Types = append(m.Types, ft)
	return idx
}
