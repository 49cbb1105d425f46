package wasm

import (
	"bytes"
	"encoding/binary"
)

// encoder accumulates one region of output: the whole module, a section
// body, or a function body.
type encoder struct {
	bytes.Buffer
}

func (e *encoder) u32(v uint32) {
	WriteLEB128u(&e.Buffer, v)
}

func (e *encoder) name(s string) {
	e.u32(uint32(len(s)))
	e.WriteString(s)
}

// blob writes a length-prefixed byte sequence.
func (e *encoder) blob(b []byte) {
	e.u32(uint32(len(b)))
	e.Write(b)
}

// section frames a body built by fill under the given section ID.
func (e *encoder) section(id byte, fill func(*encoder)) {
	var body encoder
	fill(&body)
	e.WriteByte(id)
	e.blob(body.Bytes())
}

// vecSection emits a count-prefixed section, or nothing when n is zero.
func (e *encoder) vecSection(id byte, n int, item func(*encoder, int)) {
	if n == 0 {
		return
	}
	e.section(id, func(body *encoder) {
		body.u32(uint32(n))
		for i := 0; i < n; i++ {
			item(body, i)
		}
	})
}

// Encode encodes the module to WebAssembly binary format.
// Sections are emitted in canonical order; empty sections are omitted.
func (m *Module) Encode() []byte {
	var e encoder
	var header [8]byte
	binary.LittleEndian.PutUint32(header[:4], Magic)
	binary.LittleEndian.PutUint32(header[4:], Version)
	e.Write(header[:])

	e.vecSection(SectionType, len(m.Types), func(e *encoder, i int) {
		e.WriteByte(FuncTypeByte)
		e.valTypes(m.Types[i].Params)
		e.valTypes(m.Types[i].Results)
	})
	e.vecSection(SectionImport, len(m.Imports), func(e *encoder, i int) {
		e.importEntry(m.Imports[i])
	})
	e.vecSection(SectionFunction, len(m.Funcs), func(e *encoder, i int) {
		e.u32(m.Funcs[i])
	})
	e.vecSection(SectionTable, len(m.Tables), func(e *encoder, i int) {
		e.tableType(m.Tables[i])
	})
	e.vecSection(SectionMemory, len(m.Memories), func(e *encoder, i int) {
		e.limits(m.Memories[i].Limits)
	})
	e.vecSection(SectionGlobal, len(m.Globals), func(e *encoder, i int) {
		e.globalType(m.Globals[i].Type)
		e.Write(m.Globals[i].Init)
	})
	e.vecSection(SectionExport, len(m.Exports), func(e *encoder, i int) {
		e.name(m.Exports[i].Name)
		e.WriteByte(m.Exports[i].Kind)
		e.u32(m.Exports[i].Idx)
	})
	if m.Start != nil {
		e.section(SectionStart, func(e *encoder) { e.u32(*m.Start) })
	}
	if len(m.Elements) > 0 {
		e.section(SectionElement, func(e *encoder) { e.Write(m.Elements) })
	}
	if m.DataCount != nil {
		e.section(SectionDataCount, func(e *encoder) { e.u32(*m.DataCount) })
	}
	e.vecSection(SectionCode, len(m.Code), func(e *encoder, i int) {
		var fn encoder
		fn.u32(uint32(len(m.Code[i].Locals)))
		for _, l := range m.Code[i].Locals {
			fn.u32(l.Count)
			fn.WriteByte(byte(l.ValType))
		}
		fn.Write(m.Code[i].Code)
		e.blob(fn.Bytes())
	})
	e.vecSection(SectionData, len(m.Data), func(e *encoder, i int) {
		seg := m.Data[i]
		e.u32(seg.Flags)
		if seg.Flags == 2 {
			e.u32(seg.MemIdx)
		}
		if seg.Flags != 1 {
			e.Write(seg.Offset)
		}
		e.blob(seg.Init)
	})
	for _, cs := range m.CustomSections {
		e.section(SectionCustom, func(e *encoder) {
			e.name(cs.Name)
			e.Write(cs.Data)
		})
	}

	return e.Bytes()
}

func (e *encoder) importEntry(imp Import) {
	e.name(imp.Module)
	e.name(imp.Name)
	e.WriteByte(imp.Desc.Kind)
	switch {
	case imp.Desc.Kind == KindFunc:
		e.u32(imp.Desc.TypeIdx)
	case imp.Desc.Kind == KindTable && imp.Desc.Table != nil:
		e.tableType(*imp.Desc.Table)
	case imp.Desc.Kind == KindMemory && imp.Desc.Memory != nil:
		e.limits(imp.Desc.Memory.Limits)
	case imp.Desc.Kind == KindGlobal && imp.Desc.Global != nil:
		e.globalType(*imp.Desc.Global)
	}
}

func (e *encoder) valTypes(types []ValType) {
	e.u32(uint32(len(types)))
	for _, t := range types {
		e.WriteByte(byte(t))
	}
}

func (e *encoder) limits(l Limits) {
	flags := LimitsNoMax
	if l.Max != nil {
		flags |= LimitsHasMax
	}
	if l.Shared {
		flags |= LimitsShared
	}
	e.WriteByte(flags)
	e.u32(uint32(l.Min))
	if l.Max != nil {
		e.u32(uint32(*l.Max))
	}
}

func (e *encoder) tableType(t TableType) {
	e.WriteByte(t.ElemType)
	e.limits(t.Limits)
}

func (e *encoder) globalType(g GlobalType) {
	e.WriteByte(byte(g.ValType))
	var mut byte
	if g.Mutable {
		mut = 1
	}
	e.WriteByte(mut)
}
