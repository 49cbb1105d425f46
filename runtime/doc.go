// Package runtime loads guest images and instantiates them.
//
// # Quick Start
//
//	ctx := context.Background()
//	img, err := runtime.LoadFile("guest.wasm")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	rt, err := runtime.New(ctx, runtime.WithMemoryLimitPages(256))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	inst, err := rt.Instantiate(ctx, img, runtime.Capabilities{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
// # Capabilities
//
// A guest can only call host functions it has been granted. Capabilities
// map "module.func" to a HostFunc whose core signature must equal the
// import's declaration:
//
//	caps := runtime.Capabilities{}.Grant("env", "notify", runtime.HostFunc{
//	    Params: []api.ValueType{api.ValueTypeI32},
//	    Func: func(ctx context.Context, mod api.Module, stack []uint64) {
//	        log.Printf("guest length %d", api.DecodeU32(stack[0]))
//	    },
//	})
//
// Missing grants fail instantiation with a *errors.MissingImportsError
// cause listing every unresolved import.
//
// # Generations
//
// Instance counts guest calls. Package bridge stamps pointers and memory
// views with the generation they were obtained at and refuses to use them
// after a later call, because the guest may have moved or grown its memory.
//
// # Thread Safety
//
// Runtime is safe for concurrent use, but host modules are registered under
// the guest's import module names, so at most one instance with granted
// capabilities may be open per Runtime. Instance is NOT safe for concurrent
// use; the exchange owns exactly one instance for the duration of a run.
package runtime
