// Package bridge mediates every host access to a running guest: export
// lookup with signature checks, guest calls, and bounds-checked reads and
// writes of linear memory.
//
// Any guest call may grow or rearrange memory, so a View and a Pointer are
// only good until the next call on their instance. Both carry the
// instance generation they were obtained at; using them later fails with
// errors.KindStaleHandle instead of touching memory.
//
//	ptrFn, _ := bridge.DefaultContract().Resolve(inst, "get_wasm_memory_buffer_pointer")
//	ptr, err := ptrFn.CallPointer(ctx)
//	view, err := bridge.MemoryOf(inst)
//	err = view.WriteAt(ptr, []byte("Did you know"))
//
// The expected exports can be described in WIT and parsed with
// ParseContract; only scalar types are accepted.
package bridge
