package guest

import (
	"bytes"

	"github.com/wippyai/passing-data/wasm"
)

// Emitter assembles a function body. Methods return the receiver so
// instruction sequences read top to bottom.
type Emitter struct {
	buf bytes.Buffer
}

// NewEmitter returns an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Bytes returns the emitted code.
func (e *Emitter) Bytes() []byte {
	return e.buf.Bytes()
}

// Len returns the number of emitted bytes.
func (e *Emitter) Len() int {
	return e.buf.Len()
}

func (e *Emitter) op(code byte) *Emitter {
	e.buf.WriteByte(code)
	return e
}

func (e *Emitter) opIdx(code byte, idx uint32) *Emitter {
	e.buf.WriteByte(code)
	wasm.WriteLEB128u(&e.buf, idx)
	return e
}

// I32Const pushes v.
func (e *Emitter) I32Const(v int32) *Emitter {
	e.buf.WriteByte(wasm.OpI32Const)
	wasm.WriteLEB128s(&e.buf, v)
	return e
}

// LocalGet pushes local idx.
func (e *Emitter) LocalGet(idx uint32) *Emitter { return e.opIdx(wasm.OpLocalGet, idx) }

// LocalSet pops into local idx.
func (e *Emitter) LocalSet(idx uint32) *Emitter { return e.opIdx(wasm.OpLocalSet, idx) }

// LocalTee stores the top of the stack in local idx and keeps it there.
func (e *Emitter) LocalTee(idx uint32) *Emitter { return e.opIdx(wasm.OpLocalTee, idx) }

// GlobalGet pushes global idx.
func (e *Emitter) GlobalGet(idx uint32) *Emitter { return e.opIdx(wasm.OpGlobalGet, idx) }

// GlobalSet pops into global idx.
func (e *Emitter) GlobalSet(idx uint32) *Emitter { return e.opIdx(wasm.OpGlobalSet, idx) }

// Call calls function idx, imports first.
func (e *Emitter) Call(idx uint32) *Emitter { return e.opIdx(wasm.OpCall, idx) }

// I32Add adds the top two i32 values.
func (e *Emitter) I32Add() *Emitter { return e.op(wasm.OpI32Add) }

// I32Shl shifts left: [value, bits] -> [value << bits].
func (e *Emitter) I32Shl() *Emitter { return e.op(wasm.OpI32Shl) }

// I32ShrU shifts right without sign extension.
func (e *Emitter) I32ShrU() *Emitter { return e.op(wasm.OpI32ShrU) }

// I32Eq compares the top two i32 values, pushing 1 when equal.
func (e *Emitter) I32Eq() *Emitter { return e.op(wasm.OpI32Eq) }

// I64ExtendI32U zero-extends an i32 to i64.
func (e *Emitter) I64ExtendI32U() *Emitter { return e.op(wasm.OpI64ExtendI32U) }

// Unreachable traps.
func (e *Emitter) Unreachable() *Emitter { return e.op(wasm.OpUnreachable) }

// End closes the innermost block, or the function body.
func (e *Emitter) End() *Emitter { return e.op(wasm.OpEnd) }

// IfVoid opens an if block with no result; close it with End.
func (e *Emitter) IfVoid() *Emitter { return e.op(wasm.OpIf).op(wasm.BlockTypeVoid) }

// MemoryGrow grows memory 0 by the page count on the stack.
func (e *Emitter) MemoryGrow() *Emitter {
	return e.op(wasm.OpMemoryGrow).op(0x00)
}

// MemoryCopy copies within memory 0: [dest, src, n] -> [].
func (e *Emitter) MemoryCopy() *Emitter {
	e.buf.WriteByte(wasm.OpPrefixMisc)
	wasm.WriteLEB128u(&e.buf, wasm.MiscMemoryCopy)
	e.buf.WriteByte(0x00)
	e.buf.WriteByte(0x00)
	return e
}
