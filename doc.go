// Package passingdata exchanges string data between a Go host and a sandboxed
// WebAssembly guest through the guest's linear memory.
//
// Neither side can dereference the other's pointers. The host asks the guest
// for a buffer offset, writes bytes there, calls a guest export that rewrites
// (and may relocate) the buffer, asks for the offset again and reads the
// result back as UTF-8.
//
// # Architecture Overview
//
//	passingdata/         Package documentation
//	├── runtime/         Guest loader: images, capability maps, instances
//	├── bridge/          Exports, generation-tagged memory views, calls
//	├── exchange/        The round-trip protocol state machine
//	├── engine/          wazero integration
//	├── guest/           Reference guest module encoder
//	├── wasm/            Core WASM binary parsing, validation and encoding
//	├── errors/          Structured error types
//	└── cmd/passing-data Command line runner and interactive mode
//
// # Quick Start
//
//	img, err := runtime.LoadFile("strings_wasm_is_cool_bg.wasm")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	d := exchange.NewDriver(exchange.DefaultConfig())
//	res, err := d.Run(ctx, img)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Output) // "Did you know Wasm is cool!"
//
// # Pointer Validity
//
// Any guest call may grow linear memory. Every offset and every memory view is
// stamped with the instance generation at which it was obtained, and the bridge
// rejects stale ones instead of trusting callers to re-fetch.
package passingdata
