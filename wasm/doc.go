// Package wasm parses, validates, and encodes WebAssembly core modules.
//
// The package covers the subset of the binary format that string exchange
// guests use: function types, imports, functions, tables, a single linear
// memory, globals, exports, data segments, and custom sections. Element
// segments are carried as an opaque payload. GC types, exception tags, and
// memory64 are rejected with ErrUnsupported.
//
// # Parsing
//
//	data, _ := os.ReadFile("guest.wasm")
//	module, err := wasm.ParseModuleValidate(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ft := module.ExportedFuncType("add_wasm_is_cool") // (i32) -> (i32)
//
// # Encoding
//
// Encode a module back to binary:
//
//	encoded := module.Encode()
//
// Round-trip parsing and encoding preserves module semantics, which is how
// the guest package assembles its reference module.
package wasm
