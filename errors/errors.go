package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad        Phase = "load"        // reading and validating the guest image
	PhaseInstantiate Phase = "instantiate" // linking imports and creating the instance
	PhaseResolve     Phase = "resolve"     // export lookup
	PhaseMemory      Phase = "memory"      // linear memory access
	PhaseCall        Phase = "call"        // guest execution
	PhaseValidate    Phase = "validate"    // result checks
	PhaseParse       Phase = "parse"       // WIT contract parsing
	PhaseConfig      Phase = "config"      // configuration loading
	PhaseHost        Phase = "host"        // capability registration
)

// Kind categorizes the error
type Kind string

const (
	KindLoad              Kind = "load_failed"
	KindInstantiation     Kind = "instantiation"
	KindExportNotFound    Kind = "export_not_found"
	KindSignatureMismatch Kind = "signature_mismatch"
	KindOutOfBounds       Kind = "out_of_bounds"
	KindInvalidUTF8       Kind = "invalid_utf8"
	KindTrap              Kind = "call_trapped"
	KindAssertion         Kind = "assertion_failed"
	KindStaleHandle       Kind = "stale_handle"
	KindContractViolation Kind = "contract_violation"
	KindMissingImport     Kind = "missing_import"
	KindInvalidData       Kind = "invalid_data"
	KindInvalidInput      Kind = "invalid_input"
	KindUnsupported       Kind = "unsupported"
	KindNotInitialized    Kind = "not_initialized"
)

// Error is the structured error type used throughout the host
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Export string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Export != "" {
		b.WriteString(" at ")
		b.WriteString(e.Export)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// HasKind reports whether any *Error in err's chain has the given kind.
func HasKind(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Cause
	}
	return false
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Export sets the export or import name the error relates to
func (b *Builder) Export(name string) *Builder {
	b.err.Export = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Instantiation creates an instantiation error
func Instantiation(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindInstantiation,
		Detail: detail,
		Cause:  cause,
	}
}

// ExportNotFound creates an error for a missing guest export
func ExportNotFound(name string) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindExportNotFound,
		Export: name,
		Detail: fmt.Sprintf("guest does not export %q", name),
	}
}

// SignatureMismatch creates an error for an export whose type differs from the host's expectation
func SignatureMismatch(name, expected, actual string) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindSignatureMismatch,
		Export: name,
		Detail: fmt.Sprintf("expected %s, guest declares %s", expected, actual),
	}
}

// OutOfBounds creates an error for a memory range past the end of linear memory
func OutOfBounds(offset, length, size uint32) *Error {
	return &Error{
		Phase:  PhaseMemory,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("range [%d, %d) exceeds memory size %d", offset, uint64(offset)+uint64(length), size),
		Value:  offset,
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(offset uint32, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  PhaseMemory,
		Kind:   KindInvalidUTF8,
		Detail: fmt.Sprintf("invalid UTF-8 sequence at %d: %x", offset, preview),
		Value:  offset,
	}
}

// Trapped creates an error for a guest runtime fault
func Trapped(name string, cause error) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindTrap,
		Export: name,
		Detail: "guest trapped",
		Cause:  cause,
	}
}

// StaleHandle creates an error for a pointer or view used after a later guest call
func StaleHandle(what string, obtained, current uint64) *Error {
	return &Error{
		Phase:  PhaseMemory,
		Kind:   KindStaleHandle,
		Detail: fmt.Sprintf("%s obtained at generation %d used at generation %d", what, obtained, current),
		Value:  obtained,
	}
}

// AssertionFailed creates an error for a result that differs from the expected value
func AssertionFailed(expected, actual string) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindAssertion,
		Detail: fmt.Sprintf("expected %q, got %q", expected, actual),
		Value:  actual,
	}
}

// ContractViolation creates an error for guest output that breaks the exchange contract
func ContractViolation(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindContractViolation,
		Detail: detail,
		Cause:  cause,
	}
}

// NotInitialized creates a not-initialized error for missing runtime/instance
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Unsupported creates an unsupported-feature error
func Unsupported(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingImport represents a single unresolved import
type MissingImport struct {
	Module string // e.g., "env"
	Name   string // e.g., "host_log"
}

// MissingImportsError is returned when instantiation fails because the
// capability map does not provide every function the guest imports
type MissingImportsError struct {
	Imports []MissingImport
}

// NewMissingImportsError creates an error from a list of "module.name" strings
func NewMissingImportsError(imports []string) *MissingImportsError {
	result := &MissingImportsError{
		Imports: make([]MissingImport, 0, len(imports)),
	}
	for _, imp := range imports {
		mod, name := parseImportKey(imp)
		result.Imports = append(result.Imports, MissingImport{
			Module: mod,
			Name:   name,
		})
	}
	return result
}

func parseImportKey(key string) (module, name string) {
	mod, fn, found := strings.Cut(key, ".")
	if found {
		return mod, fn
	}
	return key, ""
}

func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[instantiate] missing_import: no imports specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("missing %d host function(s):\n", len(e.Imports)))

	// Group by module for cleaner output
	byModule := make(map[string][]string)
	var order []string
	for _, imp := range e.Imports {
		if _, exists := byModule[imp.Module]; !exists {
			order = append(order, imp.Module)
		}
		byModule[imp.Module] = append(byModule[imp.Module], imp.Name)
	}

	for _, mod := range order {
		b.WriteString("\n  ")
		b.WriteString(mod)
		b.WriteString(":\n")
		for _, fn := range byModule[mod] {
			b.WriteString("    - ")
			b.WriteString(fn)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingImportsError) Is(target error) bool {
	_, ok := target.(*MissingImportsError)
	return ok
}
