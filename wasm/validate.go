package wasm

import "fmt"

// Validate checks the module for structural validity: every index points at
// something that exists, export names are unique, and memory limits fit the
// 32-bit address space. Function bodies are left to the engine.
func (m *Module) Validate() error {
	checks := []func() error{
		m.validateTypeIndices,
		m.validateExports,
		m.validateStart,
		m.validateDataCount,
		m.validateCodeCount,
		m.validateMemories,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// ParseModuleValidate parses a WebAssembly binary and validates it.
func ParseModuleValidate(data []byte) (*Module, error) {
	m, err := ParseModule(data)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Module) validateTypeIndices() error {
	numTypes := uint32(len(m.Types))
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindFunc && imp.Desc.TypeIdx >= numTypes {
			return fmt.Errorf("import %s.%s references type %d, only %d types defined",
				imp.Module, imp.Name, imp.Desc.TypeIdx, numTypes)
		}
	}
	for i, typeIdx := range m.Funcs {
		if typeIdx >= numTypes {
			return fmt.Errorf("function %d references type %d, only %d types defined", i, typeIdx, numTypes)
		}
	}
	return nil
}

func (m *Module) validateExports() error {
	limits := map[byte]int{
		KindFunc:   m.ImportCount(KindFunc) + len(m.Funcs),
		KindTable:  m.ImportCount(KindTable) + len(m.Tables),
		KindMemory: m.ImportCount(KindMemory) + len(m.Memories),
		KindGlobal: m.ImportCount(KindGlobal) + len(m.Globals),
	}
	seen := make(map[string]bool, len(m.Exports))
	for i, exp := range m.Exports {
		if seen[exp.Name] {
			return fmt.Errorf("duplicate export name %q at index %d", exp.Name, i)
		}
		seen[exp.Name] = true
		if int(exp.Idx) >= limits[exp.Kind] {
			return fmt.Errorf("export %q references index %d, only %d defined", exp.Name, exp.Idx, limits[exp.Kind])
		}
	}
	return nil
}

func (m *Module) validateStart() error {
	if m.Start == nil {
		return nil
	}
	ft := m.GetFuncType(*m.Start)
	if ft == nil {
		return fmt.Errorf("start function %d has no type", *m.Start)
	}
	if len(ft.Params) != 0 || len(ft.Results) != 0 {
		return fmt.Errorf("start function must have signature () -> (), got %s", ft)
	}
	return nil
}

func (m *Module) validateDataCount() error {
	if m.DataCount != nil && *m.DataCount != uint32(len(m.Data)) {
		return fmt.Errorf("data count section declares %d segments, but data section has %d",
			*m.DataCount, len(m.Data))
	}
	return nil
}

func (m *Module) validateCodeCount() error {
	if len(m.Code) != len(m.Funcs) {
		return fmt.Errorf("code section has %d entries but function section has %d",
			len(m.Code), len(m.Funcs))
	}
	return nil
}

func (m *Module) validateMemories() error {
	if total := m.ImportCount(KindMemory) + len(m.Memories); total > 1 {
		return fmt.Errorf("module declares %d memories, at most one is supported", total)
	}
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindMemory && imp.Desc.Memory != nil {
			if err := validateMemoryType(imp.Desc.Memory, "imported memory"); err != nil {
				return err
			}
		}
	}
	for i := range m.Memories {
		if err := validateMemoryType(&m.Memories[i], "memory"); err != nil {
			return err
		}
	}
	for i, seg := range m.Data {
		if seg.Flags != 1 && seg.MemIdx != 0 {
			return fmt.Errorf("data segment %d targets memory %d", i, seg.MemIdx)
		}
	}
	return nil
}

func validateMemoryType(mem *MemoryType, what string) error {
	if mem.Limits.Shared && mem.Limits.Max == nil {
		return fmt.Errorf("%s: shared memory must have maximum limit", what)
	}
	if mem.Limits.Min > MemoryMaxPages32 {
		return fmt.Errorf("%s: min pages %d exceeds maximum %d", what, mem.Limits.Min, MemoryMaxPages32)
	}
	if mem.Limits.Max != nil && *mem.Limits.Max > MemoryMaxPages32 {
		return fmt.Errorf("%s: max pages %d exceeds maximum %d", what, *mem.Limits.Max, MemoryMaxPages32)
	}
	return nil
}
