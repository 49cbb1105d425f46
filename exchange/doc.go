// Package exchange drives one host/guest string round trip through the
// guest's linear memory.
//
// The driver moves through a fixed sequence of states:
//
//	Init → Instantiated → PointerObtained → Written → Transformed →
//	PointerRefreshed → Read → Validated
//
// There are no retries. The first failure ends the run and State reports
// the last state reached. The buffer pointer is always fetched again after
// the transform call; the bridge would reject the old one anyway.
//
//	img, err := runtime.Load(guest.Reference())
//	d := exchange.NewDriver(exchange.DefaultConfig())
//	res, err := d.Run(ctx, img)
//	fmt.Println(res.Output) // Did you know Wasm is cool!
//
// Configs can be kept in YAML:
//
//	input: "Did you know"
//	expected: "Did you know Wasm is cool!"
//	max_memory: 1MiB
package exchange
