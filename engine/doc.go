// Package engine wraps wazero for compiling and running core guests.
//
// # Architecture
//
//	WazeroEngine   - owns a wazero runtime (memory limit, compilation cache)
//	WazeroModule   - a compiled guest plus the host functions it will link
//	WazeroInstance - a running guest, its exported memory and functions
//
// # Instantiation Flow
//
//  1. WazeroEngine.LoadModule() compiles the binary
//  2. WazeroModule.RegisterHostFunc() queues host functions, grouped by namespace
//  3. WazeroModule.Instantiate() instantiates one host module per namespace,
//     then the guest itself as an anonymous module
//  4. WazeroInstance.Close() tears the guest down before its host modules
//
// Memory returned by WazeroMemory.Read aliases the guest's linear memory and
// is invalidated by any later guest call that grows memory.
package engine
