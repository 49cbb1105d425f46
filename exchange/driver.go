package exchange

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/passing-data/bridge"
	"github.com/wippyai/passing-data/errors"
	"github.com/wippyai/passing-data/runtime"
)

// Result is the outcome of a validated exchange.
type Result struct {
	Input  string
	Output string

	// Pointer is the buffer offset the input was written at, Refreshed
	// the offset the output was read from.
	Pointer   bridge.Pointer
	Refreshed bridge.Pointer

	// Length is the output length reported by the guest.
	Length uint32

	// MemorySize is the guest memory size when the output was read.
	MemorySize uint32
}

// Driver runs one exchange against one guest instance.
//
// A Driver is single use and not safe for concurrent use.
type Driver struct {
	cfg      Config
	caps     runtime.Capabilities
	rtOpts   []runtime.Option
	observer Observer
	logger   *zap.Logger
	state    State
	ran      bool
}

// Option configures a Driver.
type Option func(*Driver)

// WithObserver receives an Event after every bridge operation.
func WithObserver(o Observer) Option {
	return func(d *Driver) {
		d.observer = o
	}
}

// WithLogger overrides the package logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Driver) {
		d.logger = l
	}
}

// WithCapabilities grants host functions to the guest. The reference guest
// imports nothing.
func WithCapabilities(caps runtime.Capabilities) Option {
	return func(d *Driver) {
		d.caps = caps
	}
}

// WithRuntimeOptions passes options to the runtime the driver creates.
func WithRuntimeOptions(opts ...runtime.Option) Option {
	return func(d *Driver) {
		d.rtOpts = append(d.rtOpts, opts...)
	}
}

// NewDriver creates a driver for cfg. The config is validated by Run.
func NewDriver(cfg Config, opts ...Option) *Driver {
	d := &Driver{cfg: cfg, logger: Logger()}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	return d
}

// State returns the last state reached. After a failed Run it names the
// step that completed before the failure.
func (d *Driver) State() State {
	return d.state
}

// Run performs the exchange against img:
//
//  1. instantiate and resolve both exports
//  2. call the pointer export
//  3. write the input at the pointer
//  4. call the transform export with the input length
//  5. call the pointer export again
//  6. read the reported length at the new pointer as UTF-8
//  7. compare with the expected value
//
// Every failure is fatal. The instance and runtime are closed before Run
// returns; close errors are combined with the run error.
func (d *Driver) Run(ctx context.Context, img *runtime.Image) (res Result, err error) {
	if d.ran {
		return Result{}, errors.InvalidInput(errors.PhaseConfig, "driver already ran")
	}
	d.ran = true

	defer func() {
		if err != nil {
			kind, _ := errors.KindOf(err)
			d.logger.Error("exchange failed",
				zap.Stringer("state", d.state),
				zap.String("kind", string(kind)),
				zap.Error(err))
		}
	}()

	if err := d.cfg.Validate(); err != nil {
		return Result{}, err
	}
	contract, err := d.cfg.contract()
	if err != nil {
		return Result{}, err
	}
	pages, err := d.cfg.MemoryLimitPages()
	if err != nil {
		return Result{}, err
	}

	opts := append([]runtime.Option{runtime.WithLogger(d.logger)}, d.rtOpts...)
	if pages > 0 {
		opts = append(opts, runtime.WithMemoryLimitPages(pages))
	}
	rt, err := runtime.New(ctx, opts...)
	if err != nil {
		return Result{}, err
	}

	var inst *runtime.Instance
	defer func() {
		var closeErr error
		if inst != nil {
			closeErr = inst.Close(ctx)
		}
		closeErr = multierr.Append(closeErr, rt.Close(ctx))
		err = multierr.Append(err, closeErr)
	}()

	inst, err = rt.Instantiate(ctx, img, d.caps)
	if err != nil {
		return Result{}, err
	}
	d.emit(Event{Op: OpInstantiate, Generation: inst.Generation()})

	pointerFn, err := d.resolve(contract, inst, d.cfg.PointerExport)
	if err != nil {
		return Result{}, err
	}
	transformFn, err := d.resolve(contract, inst, d.cfg.TransformExport)
	if err != nil {
		return Result{}, err
	}
	d.advance(StateInstantiated)

	ptr, err := pointerFn.CallPointer(ctx)
	if err != nil {
		return Result{}, err
	}
	d.advance(StatePointerObtained)
	d.emit(Event{Op: OpCallPointer, Export: pointerFn.Name(), Pointer: ptr, Generation: inst.Generation()})

	input := []byte(d.cfg.Input)
	if uint64(len(input)) > math.MaxUint32 {
		return Result{}, errors.InvalidInput(errors.PhaseMemory, fmt.Sprintf("input of %d bytes exceeds 32-bit memory", len(input)))
	}
	length := uint32(len(input))

	view, err := bridge.MemoryNamed(inst, contract.Memory)
	if err != nil {
		return Result{}, err
	}
	if err := view.WriteAt(ptr, input); err != nil {
		return Result{}, err
	}
	d.advance(StateWritten)
	d.emit(Event{Op: OpWrite, Pointer: ptr, Length: length, Generation: inst.Generation()})

	reported, err := transformFn.CallU32(ctx, length)
	if err != nil {
		return Result{}, err
	}
	d.advance(StateTransformed)
	d.emit(Event{Op: OpCallTransform, Export: transformFn.Name(), Length: reported, Generation: inst.Generation()})

	refreshed, err := pointerFn.CallPointer(ctx)
	if err != nil {
		return Result{}, err
	}
	d.advance(StatePointerRefreshed)
	d.emit(Event{Op: OpCallPointer, Export: pointerFn.Name(), Pointer: refreshed, Generation: inst.Generation()})

	view, err = bridge.MemoryNamed(inst, contract.Memory)
	if err != nil {
		return Result{}, err
	}
	output, err := view.ReadUTF8At(refreshed, reported)
	if err != nil {
		if errors.HasKind(err, errors.KindOutOfBounds) {
			return Result{}, errors.ContractViolation(
				fmt.Sprintf("guest reported %d bytes at offset %d, memory is %d bytes", reported, refreshed.Offset, view.Size()),
				err)
		}
		return Result{}, err
	}
	d.advance(StateRead)
	d.emit(Event{Op: OpRead, Pointer: refreshed, Length: reported, Generation: inst.Generation()})

	if output != d.cfg.Expected {
		return Result{}, errors.AssertionFailed(d.cfg.Expected, output)
	}
	d.advance(StateValidated)
	d.emit(Event{Op: OpValidate, Length: reported, Generation: inst.Generation()})

	return Result{
		Input:      d.cfg.Input,
		Output:     output,
		Pointer:    ptr,
		Refreshed:  refreshed,
		Length:     reported,
		MemorySize: view.Size(),
	}, nil
}

func (d *Driver) resolve(contract bridge.Contract, inst *runtime.Instance, name string) (*bridge.Function, error) {
	fn, err := contract.Resolve(inst, name)
	if err != nil {
		return nil, err
	}
	d.emit(Event{Op: OpResolve, Export: name, Generation: inst.Generation()})
	return fn, nil
}

func (d *Driver) advance(s State) {
	d.state = s
	d.logger.Debug("exchange state", zap.Stringer("state", s))
}

func (d *Driver) emit(e Event) {
	e.State = d.state
	if d.observer != nil {
		d.observer(e)
	}
}
