package wasm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// Parsing errors returned by ParseModule.
var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("invalid wasm version")
	ErrUnsupported    = errors.New("unsupported wasm feature")
)

// DecodeError locates a parse failure within the module binary.
type DecodeError struct {
	Err     error
	Section string
	Offset  int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("wasm: %s at byte %d: %v", e.Section, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// section describes how one known section is read and where it may appear.
type section struct {
	read func(*decoder, *Module)
	name string
	rank int
}

// DataCount sits between Element and Code even though its ID is larger.
var knownSections = map[byte]section{
	SectionType:      {(*decoder).typeSection, "type section", 1},
	SectionImport:    {(*decoder).importSection, "import section", 2},
	SectionFunction:  {(*decoder).functionSection, "function section", 3},
	SectionTable:     {(*decoder).tableSection, "table section", 4},
	SectionMemory:    {(*decoder).memorySection, "memory section", 5},
	SectionGlobal:    {(*decoder).globalSection, "global section", 6},
	SectionExport:    {(*decoder).exportSection, "export section", 7},
	SectionStart:     {(*decoder).startSection, "start section", 8},
	SectionElement:   {(*decoder).elementSection, "element section", 9},
	SectionDataCount: {(*decoder).dataCountSection, "data count section", 10},
	SectionCode:      {(*decoder).codeSection, "code section", 11},
	SectionData:      {(*decoder).dataSection, "data section", 12},
}

// ParseModule parses a WebAssembly binary core module. Byte payloads in the
// result (code, data segments, custom sections) alias data.
func ParseModule(data []byte) (*Module, error) {
	d := &decoder{data: data}
	if magic := d.fixed32(); d.err == nil && magic != Magic {
		d.fail(ErrInvalidMagic)
	}
	if version := d.fixed32(); d.err == nil && version != Version {
		d.fail(ErrInvalidVersion)
	}
	if d.err != nil {
		return nil, d.locate("header")
	}

	m := &Module{}
	rank := 0
	for d.remaining() > 0 {
		id := d.u8()
		body := d.sub(d.u32())
		if d.err != nil {
			return nil, d.locate("section header")
		}

		if id == SectionCustom {
			body.customSection(m)
			if body.err != nil {
				return nil, body.locate("custom section")
			}
			continue
		}

		sec, ok := knownSections[id]
		switch {
		case !ok && id == SectionTag:
			return nil, d.locateErr("tag section", ErrUnsupported)
		case !ok:
			return nil, d.locateErr("section header", fmt.Errorf("unknown section ID 0x%02x", id))
		case sec.rank <= rank:
			return nil, d.locateErr(sec.name, errors.New("section out of order"))
		}
		rank = sec.rank

		sec.read(body, m)
		if body.err == nil && body.remaining() != 0 {
			body.failf("%d trailing bytes", body.remaining())
		}
		if body.err != nil {
			return nil, body.locate(sec.name)
		}
	}
	return m, nil
}

// decoder is a cursor over one region of the module. The first failure
// sticks; reads after it return zero values.
type decoder struct {
	err  error
	data []byte
	pos  int
	base int
}

func (d *decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *decoder) failf(format string, args ...any) {
	d.fail(fmt.Errorf(format, args...))
}

func (d *decoder) locate(what string) error {
	return &DecodeError{Section: what, Offset: d.base + d.pos, Err: d.err}
}

func (d *decoder) locateErr(what string, err error) error {
	return &DecodeError{Section: what, Offset: d.base + d.pos, Err: err}
}

func (d *decoder) remaining() int {
	return len(d.data) - d.pos
}

// ReadByte lets the LEB128 readers consume the cursor directly.
func (d *decoder) ReadByte() (byte, error) {
	if d.err != nil {
		return 0, d.err
	}
	if d.pos >= len(d.data) {
		return 0, io.ErrUnexpectedEOF
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) u8() byte {
	b, err := d.ReadByte()
	if err != nil {
		d.fail(err)
	}
	return b
}

func (d *decoder) u32() uint32 {
	v, err := ReadLEB128u(d)
	if err != nil {
		d.fail(err)
	}
	return v
}

func (d *decoder) fixed32() uint32 {
	b := d.bytes(4)
	if len(b) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *decoder) bytes(n uint32) []byte {
	if d.err != nil {
		return nil
	}
	if uint64(n) > uint64(d.remaining()) {
		d.failf("need %d bytes, %d left: %w", n, d.remaining(), io.ErrUnexpectedEOF)
		return nil
	}
	end := d.pos + int(n)
	b := d.data[d.pos:end:end]
	d.pos = end
	return b
}

func (d *decoder) rest() []byte {
	return d.bytes(uint32(d.remaining()))
}

// sub carves the next n bytes into their own decoder.
func (d *decoder) sub(n uint32) *decoder {
	start := d.base + d.pos
	return &decoder{data: d.bytes(n), base: start}
}

func (d *decoder) name() string {
	b := d.bytes(d.u32())
	if d.err == nil && !utf8.Valid(b) {
		d.failf("name %q is not valid UTF-8", b)
	}
	return string(b)
}

// vec reads a count-prefixed sequence. Every item takes at least one byte,
// so a count above the bytes left is rejected before allocating.
func vec[T any](d *decoder, item func(*decoder) T) []T {
	n := d.u32()
	if d.err != nil {
		return nil
	}
	if uint64(n) > uint64(d.remaining()) {
		d.failf("count %d exceeds %d remaining bytes", n, d.remaining())
		return nil
	}
	out := make([]T, 0, n)
	for i := uint32(0); i < n && d.err == nil; i++ {
		out = append(out, item(d))
	}
	return out
}

func (d *decoder) customSection(m *Module) {
	name := d.name()
	data := d.rest()
	if d.err == nil {
		m.CustomSections = append(m.CustomSections, CustomSection{Name: name, Data: data})
	}
}

func (d *decoder) typeSection(m *Module) {
	m.Types = vec(d, func(d *decoder) FuncType {
		if form := d.u8(); d.err == nil && form != FuncTypeByte {
			d.failf("type form 0x%02x: %w", form, ErrUnsupported)
		}
		params := vec(d, (*decoder).valType)
		results := vec(d, (*decoder).valType)
		return FuncType{Params: params, Results: results}
	})
}

func (d *decoder) valType() ValType {
	vt := ValType(d.u8())
	switch vt {
	case ValI32, ValI64, ValF32, ValF64, ValV128, ValFuncRef, ValExtern:
		return vt
	}
	if d.err == nil {
		d.failf("value type 0x%02x: %w", byte(vt), ErrUnsupported)
	}
	return 0
}

func (d *decoder) importSection(m *Module) {
	m.Imports = vec(d, func(d *decoder) Import {
		imp := Import{Module: d.name(), Name: d.name()}
		imp.Desc.Kind = d.u8()
		switch imp.Desc.Kind {
		case KindFunc:
			imp.Desc.TypeIdx = d.u32()
		case KindTable:
			t := d.tableType()
			imp.Desc.Table = &t
		case KindMemory:
			mt := MemoryType{Limits: d.limits()}
			imp.Desc.Memory = &mt
		case KindGlobal:
			g := d.globalType()
			imp.Desc.Global = &g
		default:
			d.failf("import %s.%s kind %d: %w", imp.Module, imp.Name, imp.Desc.Kind, ErrUnsupported)
		}
		return imp
	})
}

func (d *decoder) functionSection(m *Module) {
	m.Funcs = vec(d, (*decoder).u32)
}

func (d *decoder) tableSection(m *Module) {
	m.Tables = vec(d, (*decoder).tableType)
}

func (d *decoder) memorySection(m *Module) {
	m.Memories = vec(d, func(d *decoder) MemoryType {
		return MemoryType{Limits: d.limits()}
	})
}

func (d *decoder) globalSection(m *Module) {
	m.Globals = vec(d, func(d *decoder) Global {
		gt := d.globalType()
		return Global{Type: gt, Init: d.constExpr()}
	})
}

func (d *decoder) exportSection(m *Module) {
	m.Exports = vec(d, func(d *decoder) Export {
		exp := Export{Name: d.name(), Kind: d.u8()}
		if d.err == nil && exp.Kind > KindGlobal {
			d.failf("export %q kind 0x%02x: %w", exp.Name, exp.Kind, ErrUnsupported)
		}
		exp.Idx = d.u32()
		return exp
	})
}

func (d *decoder) startSection(m *Module) {
	idx := d.u32()
	m.Start = &idx
}

// elementSection keeps the payload opaque; see Module.Elements.
func (d *decoder) elementSection(m *Module) {
	m.Elements = d.rest()
}

func (d *decoder) dataCountSection(m *Module) {
	n := d.u32()
	m.DataCount = &n
}

func (d *decoder) codeSection(m *Module) {
	idx := 0
	m.Code = vec(d, func(d *decoder) FuncBody {
		idx++
		body := d.sub(d.u32())
		locals := vec(body, func(d *decoder) LocalEntry {
			n := d.u32()
			return LocalEntry{Count: n, ValType: d.valType()}
		})
		code := body.rest()
		if body.err == nil && (len(code) == 0 || code[len(code)-1] != OpEnd) {
			body.failf("function body %d has no end opcode", idx-1)
		}
		d.fail(body.err)
		return FuncBody{Locals: locals, Code: code}
	})
}

func (d *decoder) dataSection(m *Module) {
	m.Data = vec(d, func(d *decoder) DataSegment {
		seg := DataSegment{Flags: d.u32()}
		switch seg.Flags {
		case 0:
			seg.Offset = d.constExpr()
		case 1:
		case 2:
			seg.MemIdx = d.u32()
			seg.Offset = d.constExpr()
		default:
			d.failf("data segment flags %d", seg.Flags)
		}
		seg.Init = d.bytes(d.u32())
		return seg
	})
}

func (d *decoder) limits() Limits {
	flags := d.u8()
	if flags&LimitsMemory64 != 0 {
		d.failf("memory64 limits: %w", ErrUnsupported)
		return Limits{}
	}
	l := Limits{Shared: flags&LimitsShared != 0, Min: uint64(d.u32())}
	if flags&LimitsHasMax != 0 {
		maxPages := uint64(d.u32())
		l.Max = &maxPages
		if d.err == nil && l.Min > maxPages {
			d.failf("limits min %d exceeds max %d", l.Min, maxPages)
		}
	}
	return l
}

func (d *decoder) tableType() TableType {
	elem := d.u8()
	if d.err == nil && ValType(elem) != ValFuncRef && ValType(elem) != ValExtern {
		d.failf("table element type 0x%02x: %w", elem, ErrUnsupported)
	}
	return TableType{ElemType: elem, Limits: d.limits()}
}

func (d *decoder) globalType() GlobalType {
	vt := d.valType()
	mut := d.u8()
	if d.err == nil && mut > 1 {
		d.failf("global mutability %d", mut)
	}
	return GlobalType{ValType: vt, Mutable: mut == 1}
}

// constExpr returns the raw bytes of a constant expression, end opcode
// included.
func (d *decoder) constExpr() []byte {
	start := d.pos
	for d.err == nil {
		switch op := d.u8(); op {
		case OpEnd:
			return d.data[start:d.pos:d.pos]
		case OpI32Const:
			if _, err := ReadLEB128s(d); err != nil {
				d.fail(err)
			}
		case OpI64Const:
			d.skipLEB128()
		case OpGlobalGet, OpRefFunc:
			d.u32()
		case OpRefNull:
			d.u8()
		case OpF32Const:
			d.bytes(4)
		case OpF64Const:
			d.bytes(8)
		default:
			d.failf("opcode 0x%02x in constant expression: %w", op, ErrUnsupported)
		}
	}
	return nil
}

// skipLEB128 steps over one LEB128 value of any width.
func (d *decoder) skipLEB128() {
	for d.err == nil && d.u8()&0x80 != 0 {
	}
}
