// Package guest assembles the reference string-exchange guest.
//
// The guest exports a memory, a pointer function returning the offset of
// its buffer, and a transform function that appends a suffix to the first
// n bytes of that buffer and returns the new length:
//
//	get_wasm_memory_buffer_pointer: () -> i32
//	add_wasm_is_cool:               (i32) -> i32
//
// By default the transform grows memory and relocates the buffer, so a host
// that reuses the pointer it obtained before the call reads stale bytes.
// Options turn the guest into fault-injecting variants (traps, skewed
// lengths, missing exports, widened signatures, declared imports) without
// needing an external toolchain or checked-in binaries.
package guest
