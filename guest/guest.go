package guest

import (
	"fmt"

	"github.com/wippyai/passing-data/wasm"
)

// Export names of the reference guest ABI.
const (
	PointerExport   = "get_wasm_memory_buffer_pointer"
	TransformExport = "add_wasm_is_cool"
	MemoryExport    = "memory"
)

// Layout of the reference guest's memory.
const (
	// DefaultSuffix is appended to the buffer by the transform export.
	DefaultSuffix = " Wasm is cool!"

	// SuffixOffset is where the suffix data segment is placed.
	SuffixOffset uint32 = 16

	// DefaultBufferOffset is the initial value of the buffer pointer.
	DefaultBufferOffset uint32 = 1024
)

// Import declares a host function the guest imports as (i32) -> ().
// The transform export calls every import with the input length before
// doing its own work.
type Import struct {
	Module string
	Name   string
}

// Options shapes the generated guest. The zero value of every fault knob
// yields the well-behaved reference guest; DefaultOptions fills in the rest.
type Options struct {
	// Suffix is appended to the caller's bytes. It may be any byte
	// sequence, including invalid UTF-8.
	Suffix []byte

	// PointerExport and TransformExport name the two function exports.
	// An empty name omits the export.
	PointerExport   string
	TransformExport string

	// Imports are declared as (i32) -> () functions and called by the
	// transform export.
	Imports []Import

	// BufferOffset is the initial buffer pointer.
	BufferOffset uint32

	// MemoryPages is the initial size of the exported memory.
	MemoryPages uint32

	// LengthSkew is added to the length reported by the transform export.
	LengthSkew int32

	// Relocate makes the transform grow memory and move the buffer there,
	// so the pointer obtained before the call is no longer the buffer.
	Relocate bool

	// Trap makes the transform export execute unreachable.
	Trap bool

	// WideTransform declares the transform result as i64 instead of i32.
	WideTransform bool

	// OmitMemory leaves the memory unexported.
	OmitMemory bool
}

// DefaultOptions returns the options of the reference guest: a relocating
// transform that appends " Wasm is cool!".
func DefaultOptions() Options {
	return Options{
		Suffix:          []byte(DefaultSuffix),
		PointerExport:   PointerExport,
		TransformExport: TransformExport,
		BufferOffset:    DefaultBufferOffset,
		MemoryPages:     1,
		Relocate:        true,
	}
}

// Reference returns the reference guest binary.
func Reference() []byte {
	return MustBuild(DefaultOptions())
}

// MustBuild is like Build but panics on invalid options.
func MustBuild(opts Options) []byte {
	bin, err := Build(opts)
	if err != nil {
		panic(err)
	}
	return bin
}

// Build encodes a guest module for opts.
func Build(opts Options) ([]byte, error) {
	m, err := Module(opts)
	if err != nil {
		return nil, err
	}
	return m.Encode(), nil
}

// Module assembles the guest as a wasm.Module without encoding it.
func Module(opts Options) (*wasm.Module, error) {
	if opts.MemoryPages == 0 {
		return nil, fmt.Errorf("guest: memory must have at least one page")
	}
	if uint64(SuffixOffset)+uint64(len(opts.Suffix)) > uint64(opts.BufferOffset) {
		return nil, fmt.Errorf("guest: suffix of %d bytes overlaps buffer at %d", len(opts.Suffix), opts.BufferOffset)
	}
	if uint64(opts.BufferOffset) > uint64(opts.MemoryPages)*uint64(wasm.PageSize) {
		return nil, fmt.Errorf("guest: buffer offset %d outside %d page(s)", opts.BufferOffset, opts.MemoryPages)
	}
	if opts.PointerExport != "" && opts.PointerExport == opts.TransformExport {
		return nil, fmt.Errorf("guest: duplicate export name %q", opts.PointerExport)
	}

	m := &wasm.Module{}
	pointerType := m.AddType(wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}})
	transformResult := wasm.ValI32
	if opts.WideTransform {
		transformResult = wasm.ValI64
	}
	transformType := m.AddType(wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI32},
		Results: []wasm.ValType{transformResult},
	})

	if len(opts.Imports) > 0 {
		notifyType := m.AddType(wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}})
		for _, imp := range opts.Imports {
			m.Imports = append(m.Imports, wasm.Import{
				Module: imp.Module,
				Name:   imp.Name,
				Desc:   wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: notifyType},
			})
		}
	}
	numImports := uint32(len(opts.Imports))

	m.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: uint64(opts.MemoryPages)}}}
	m.Globals = []wasm.Global{{
		Type: wasm.GlobalType{ValType: wasm.ValI32, Mutable: true},
		Init: NewEmitter().I32Const(int32(opts.BufferOffset)).End().Bytes(),
	}}
	if len(opts.Suffix) > 0 {
		m.Data = []wasm.DataSegment{{
			Offset: NewEmitter().I32Const(int32(SuffixOffset)).End().Bytes(),
			Init:   append([]byte(nil), opts.Suffix...),
		}}
	}

	m.Funcs = []uint32{pointerType, transformType}
	m.Code = []wasm.FuncBody{
		{Code: pointerBody()},
		transformBody(opts, numImports),
	}

	if !opts.OmitMemory {
		m.Exports = append(m.Exports, wasm.Export{Name: MemoryExport, Kind: wasm.KindMemory})
	}
	if opts.PointerExport != "" {
		m.Exports = append(m.Exports, wasm.Export{Name: opts.PointerExport, Kind: wasm.KindFunc, Idx: numImports})
	}
	if opts.TransformExport != "" {
		m.Exports = append(m.Exports, wasm.Export{Name: opts.TransformExport, Kind: wasm.KindFunc, Idx: numImports + 1})
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("guest: %w", err)
	}
	return m, nil
}

const bufferGlobal = 0

func pointerBody() []byte {
	return NewEmitter().GlobalGet(bufferGlobal).End().Bytes()
}

// transformBody emits add_wasm_is_cool. Local 0 is the input length,
// local 1 the relocated buffer base.
func transformBody(opts Options, numImports uint32) wasm.FuncBody {
	const (
		length = 0
		base   = 1
	)
	suffixLen := int32(len(opts.Suffix))
	em := NewEmitter()

	if opts.Trap {
		em.Unreachable().End()
		return wasm.FuncBody{Code: em.Bytes()}
	}

	for i := uint32(0); i < numImports; i++ {
		em.LocalGet(length).Call(i)
	}

	var locals []wasm.LocalEntry
	if opts.Relocate {
		locals = []wasm.LocalEntry{{Count: 1, ValType: wasm.ValI32}}

		// pages = (length + suffixLen + 0xFFFF) >> 16; trap if grow fails
		em.LocalGet(length).I32Const(suffixLen + 0xFFFF).I32Add().I32Const(16).I32ShrU().
			MemoryGrow().LocalTee(base).
			I32Const(-1).I32Eq().IfVoid().Unreachable().End().
			LocalGet(base).I32Const(16).I32Shl().LocalSet(base)

		// move the caller's bytes to the new base
		em.LocalGet(base).GlobalGet(bufferGlobal).LocalGet(length).MemoryCopy()

		// append the suffix
		em.LocalGet(base).LocalGet(length).I32Add().
			I32Const(int32(SuffixOffset)).I32Const(suffixLen).MemoryCopy()

		em.LocalGet(base).GlobalSet(bufferGlobal)
	} else {
		em.GlobalGet(bufferGlobal).LocalGet(length).I32Add().
			I32Const(int32(SuffixOffset)).I32Const(suffixLen).MemoryCopy()
	}

	em.LocalGet(length).I32Const(suffixLen).I32Add()
	if opts.LengthSkew != 0 {
		em.I32Const(opts.LengthSkew).I32Add()
	}
	if opts.WideTransform {
		em.I64ExtendI32U()
	}
	em.End()

	return wasm.FuncBody{Locals: locals, Code: em.Bytes()}
}
