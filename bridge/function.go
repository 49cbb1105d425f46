package bridge

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/passing-data/errors"
	"github.com/wippyai/passing-data/runtime"
)

// Function is a guest export whose signature matched the host's
// expectation at lookup time.
type Function struct {
	inst *runtime.Instance
	fn   api.Function
	name string
	sig  Signature
}

// ResolveFunction looks up export name and checks it against expected.
func ResolveFunction(inst *runtime.Instance, name string, expected Signature) (*Function, error) {
	if inst == nil {
		return nil, errors.NotInitialized(errors.PhaseResolve, "instance")
	}
	fn := inst.Function(name)
	if fn == nil {
		return nil, errors.ExportNotFound(name)
	}

	def := fn.Definition()
	actual := Signature{Params: def.ParamTypes(), Results: def.ResultTypes()}
	if !actual.Equal(expected) {
		return nil, errors.SignatureMismatch(name, expected.String(), actual.String())
	}

	return &Function{inst: inst, fn: fn, name: name, sig: expected}, nil
}

// Resolve looks up export name with the signature the contract declares.
func (c Contract) Resolve(inst *runtime.Instance, name string) (*Function, error) {
	sig, ok := c.Signature(name)
	if !ok {
		return nil, errors.New(errors.PhaseResolve, errors.KindInvalidInput).
			Export(name).
			Detail("contract does not declare %q", name).
			Build()
	}
	return ResolveFunction(inst, name, sig)
}

// Name returns the export name.
func (f *Function) Name() string {
	return f.name
}

// Signature returns the checked signature.
func (f *Function) Signature() Signature {
	return f.sig
}

// Call invokes the export with raw core values. Any guest fault is
// reported as a trap. Views and pointers obtained before the call are
// stale afterwards, whether or not it succeeded.
func (f *Function) Call(ctx context.Context, args ...uint64) ([]uint64, error) {
	if len(args) != len(f.sig.Params) {
		return nil, errors.New(errors.PhaseCall, errors.KindInvalidInput).
			Export(f.name).
			Detail("expected %d argument(s), got %d", len(f.sig.Params), len(args)).
			Build()
	}

	results, err := f.inst.Invoke(ctx, f.fn, args...)
	if err != nil {
		var structured *errors.Error
		if stderrors.As(err, &structured) {
			return nil, err
		}
		return nil, errors.Trapped(f.name, err)
	}
	return results, nil
}

// CallU32 calls an export taking and returning u32 values.
func (f *Function) CallU32(ctx context.Context, args ...uint32) (uint32, error) {
	if len(f.sig.Results) != 1 || f.sig.Results[0] != api.ValueTypeI32 {
		return 0, errors.Unsupported(errors.PhaseCall, fmt.Sprintf("%s returns %s, not a single i32", f.name, f.sig))
	}
	raw := make([]uint64, len(args))
	for i, a := range args {
		raw[i] = api.EncodeU32(a)
	}
	results, err := f.Call(ctx, raw...)
	if err != nil {
		return 0, err
	}
	return api.DecodeU32(results[0]), nil
}

// CallPointer calls a () -> i32 export and stamps the returned offset with
// the generation that follows the call.
func (f *Function) CallPointer(ctx context.Context) (Pointer, error) {
	offset, err := f.CallU32(ctx)
	if err != nil {
		return Pointer{}, err
	}
	return Pointer{Offset: offset, Generation: f.inst.Generation()}, nil
}
