// Package errors provides structured error types for the passing-data host.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries a detail message, the offending value and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseMemory, errors.KindOutOfBounds).
//		Export("memory").
//		Value(offset).
//		Detail("write of %d bytes at %d exceeds %d", n, offset, size).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.ExportNotFound("add_wasm_is_cool")
//	err := errors.OutOfBounds(offset, length, size)
//
// All errors implement the standard error interface and support errors.Is/As.
// Matching with errors.Is compares Phase and Kind; HasKind matches Kind alone
// anywhere in the chain.
package errors
