package runtime

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"

	"github.com/wippyai/passing-data/engine"
	"github.com/wippyai/passing-data/errors"
)

// Instance is one running guest. It owns its linear memory and exports.
//
// Every guest call advances the instance generation, trapping or not.
// Handles stamped with an older generation must not be used again.
// Instance is not safe for concurrent use.
type Instance struct {
	instance   *engine.WazeroInstance
	module     *engine.WazeroModule
	generation uint64
}

// Generation returns the number of guest calls made so far.
func (i *Instance) Generation() uint64 {
	return i.generation
}

// Function returns the exported function name, or nil.
func (i *Instance) Function(name string) api.Function {
	if i.instance == nil {
		return nil
	}
	return i.instance.ExportedFunction(name)
}

// Memory returns the memory exported as name, or nil.
func (i *Instance) Memory(name string) *engine.WazeroMemory {
	if i.instance == nil {
		return nil
	}
	return i.instance.ExportedMemory(name)
}

// Invoke calls fn with raw core values. The generation advances before
// the guest runs, so even a trapping call invalidates earlier handles.
func (i *Instance) Invoke(ctx context.Context, fn api.Function, args ...uint64) ([]uint64, error) {
	if i.instance == nil {
		return nil, errors.NotInitialized(errors.PhaseCall, "instance")
	}
	i.generation++
	return fn.Call(ctx, args...)
}

// Close tears down the instance, its host modules and its compiled code.
func (i *Instance) Close(ctx context.Context) error {
	if i.instance == nil {
		return nil
	}
	err := i.instance.Close(ctx)
	err = multierr.Append(err, i.module.Close(ctx))
	i.instance = nil
	return err
}
