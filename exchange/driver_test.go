package exchange_test

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/passing-data/errors"
	"github.com/wippyai/passing-data/exchange"
	"github.com/wippyai/passing-data/guest"
	"github.com/wippyai/passing-data/runtime"
)

func load(t *testing.T, opts guest.Options) *runtime.Image {
	t.Helper()
	img, err := runtime.Load(guest.MustBuild(opts))
	require.NoError(t, err)
	return img
}

func reference(t *testing.T) *runtime.Image {
	t.Helper()
	return load(t, guest.DefaultOptions())
}

type recorder struct {
	events []exchange.Event
}

func (r *recorder) observe(e exchange.Event) {
	r.events = append(r.events, e)
}

func (r *recorder) ops() []exchange.Op {
	ops := make([]exchange.Op, len(r.events))
	for i, e := range r.events {
		ops[i] = e.Op
	}
	return ops
}

func (r *recorder) has(op exchange.Op) bool {
	for _, e := range r.events {
		if e.Op == op {
			return true
		}
	}
	return false
}

func TestReferenceScenario(t *testing.T) {
	d := exchange.NewDriver(exchange.DefaultConfig())
	res, err := d.Run(context.Background(), reference(t))
	require.NoError(t, err)

	assert.Equal(t, "Did you know", res.Input)
	assert.Equal(t, "Did you know Wasm is cool!", res.Output)
	assert.Equal(t, uint32(26), res.Length)
	assert.Equal(t, guest.DefaultBufferOffset, res.Pointer.Offset)
	assert.Equal(t, uint32(65536), res.Refreshed.Offset)
	assert.Equal(t, uint32(2*65536), res.MemorySize)
	assert.Equal(t, exchange.StateValidated, d.State())
	assert.True(t, d.State().Terminal())
}

func TestRoundTrip(t *testing.T) {
	inputs := []string{
		"",
		"a",
		"Did you know",
		"Hello, World",
		"tabs\tand\nnewlines",
		"héllo wörld ✓",
		strings.Repeat("x", 4000),
		strings.Repeat("0123456789", 6400),
	}
	for _, in := range inputs {
		name := in
		if len(name) > 20 {
			name = name[:20]
		}
		t.Run(name, func(t *testing.T) {
			cfg := exchange.DefaultConfig()
			cfg.Input = in
			cfg.Expected = in + guest.DefaultSuffix

			res, err := exchange.NewDriver(cfg).Run(context.Background(), reference(t))
			require.NoError(t, err)
			assert.Equal(t, in+" Wasm is cool!", res.Output)
			assert.Equal(t, uint32(len(in)+len(guest.DefaultSuffix)), res.Length)
		})
	}
}

func TestPointerRefetched(t *testing.T) {
	rec := &recorder{}
	d := exchange.NewDriver(exchange.DefaultConfig(), exchange.WithObserver(rec.observe))
	_, err := d.Run(context.Background(), reference(t))
	require.NoError(t, err)

	assert.Equal(t, []exchange.Op{
		exchange.OpInstantiate,
		exchange.OpResolve,
		exchange.OpResolve,
		exchange.OpCallPointer,
		exchange.OpWrite,
		exchange.OpCallTransform,
		exchange.OpCallPointer,
		exchange.OpRead,
		exchange.OpValidate,
	}, rec.ops())

	write, transform, refetch, read := rec.events[4], rec.events[5], rec.events[6], rec.events[7]

	// the write used the pointer from the first call
	assert.Equal(t, rec.events[3].Pointer, write.Pointer)
	assert.Equal(t, uint32(12), write.Length)

	// the read used the pointer fetched after the transform, never the first
	assert.Equal(t, refetch.Pointer, read.Pointer)
	assert.NotEqual(t, write.Pointer, read.Pointer)
	assert.Greater(t, refetch.Generation, transform.Generation)
	assert.Equal(t, transform.Length, read.Length)

	states := make([]exchange.State, 0, len(rec.events))
	for _, e := range rec.events[3:] {
		states = append(states, e.State)
	}
	assert.Equal(t, []exchange.State{
		exchange.StatePointerObtained,
		exchange.StateWritten,
		exchange.StateTransformed,
		exchange.StatePointerRefreshed,
		exchange.StateRead,
		exchange.StateValidated,
	}, states)
}

func TestInPlaceGuestStillRefetches(t *testing.T) {
	opts := guest.DefaultOptions()
	opts.Relocate = false

	rec := &recorder{}
	res, err := exchange.NewDriver(exchange.DefaultConfig(), exchange.WithObserver(rec.observe)).
		Run(context.Background(), load(t, opts))
	require.NoError(t, err)

	assert.Equal(t, "Did you know Wasm is cool!", res.Output)
	assert.Equal(t, res.Pointer.Offset, res.Refreshed.Offset)
	assert.Less(t, res.Pointer.Generation, res.Refreshed.Generation)
	assert.Equal(t, uint32(65536), res.MemorySize)

	calls := 0
	for _, e := range rec.events {
		if e.Op == exchange.OpCallPointer {
			calls++
		}
	}
	assert.Equal(t, 2, calls)
}

func TestFailures(t *testing.T) {
	tests := []struct {
		name  string
		opts  func(*guest.Options)
		cfg   func(*exchange.Config)
		phase errors.Phase
		kind  errors.Kind
		state exchange.State
	}{
		{
			name:  "missing transform export",
			opts:  func(o *guest.Options) { o.TransformExport = "" },
			phase: errors.PhaseResolve,
			kind:  errors.KindExportNotFound,
			state: exchange.StateInit,
		},
		{
			name:  "renamed pointer export",
			opts:  func(o *guest.Options) { o.PointerExport = "get_pointer" },
			phase: errors.PhaseResolve,
			kind:  errors.KindExportNotFound,
			state: exchange.StateInit,
		},
		{
			name:  "widened transform",
			opts:  func(o *guest.Options) { o.WideTransform = true },
			phase: errors.PhaseResolve,
			kind:  errors.KindSignatureMismatch,
			state: exchange.StateInit,
		},
		{
			name:  "memory not exported",
			opts:  func(o *guest.Options) { o.OmitMemory = true },
			phase: errors.PhaseResolve,
			kind:  errors.KindExportNotFound,
			state: exchange.StatePointerObtained,
		},
		{
			name:  "transform traps",
			opts:  func(o *guest.Options) { o.Trap = true },
			phase: errors.PhaseCall,
			kind:  errors.KindTrap,
			state: exchange.StateWritten,
		},
		{
			name:  "input does not fit",
			cfg:   func(c *exchange.Config) { c.Input = strings.Repeat("x", 65536) },
			phase: errors.PhaseMemory,
			kind:  errors.KindOutOfBounds,
			state: exchange.StatePointerObtained,
		},
		{
			name:  "invalid utf-8 suffix",
			opts:  func(o *guest.Options) { o.Suffix = []byte{' ', 0xFF, 0xFE} },
			phase: errors.PhaseMemory,
			kind:  errors.KindInvalidUTF8,
			state: exchange.StatePointerRefreshed,
		},
		{
			name:  "reported length past memory",
			opts:  func(o *guest.Options) { o.LengthSkew = 1 << 20 },
			phase: errors.PhaseValidate,
			kind:  errors.KindContractViolation,
			state: exchange.StatePointerRefreshed,
		},
		{
			name:  "reported length short",
			opts:  func(o *guest.Options) { o.LengthSkew = -6 },
			phase: errors.PhaseValidate,
			kind:  errors.KindAssertion,
			state: exchange.StateRead,
		},
		{
			name:  "different suffix",
			opts:  func(o *guest.Options) { o.Suffix = []byte(" Rust is cool!") },
			phase: errors.PhaseValidate,
			kind:  errors.KindAssertion,
			state: exchange.StateRead,
		},
		{
			name:  "memory limit stops growth",
			cfg:   func(c *exchange.Config) { c.MaxMemory = "64KiB" },
			phase: errors.PhaseCall,
			kind:  errors.KindTrap,
			state: exchange.StateWritten,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := guest.DefaultOptions()
			if tt.opts != nil {
				tt.opts(&opts)
			}
			cfg := exchange.DefaultConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}

			rec := &recorder{}
			d := exchange.NewDriver(cfg, exchange.WithObserver(rec.observe))
			_, err := d.Run(context.Background(), load(t, opts))
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, &errors.Error{Phase: tt.phase, Kind: tt.kind}), "got %v", err)
			assert.Equal(t, tt.state, d.State())

			if tt.state < exchange.StatePointerObtained {
				assert.False(t, rec.has(exchange.OpWrite), "no write may happen before exports resolve")
			}
		})
	}
}

func TestContractViolationCause(t *testing.T) {
	opts := guest.DefaultOptions()
	opts.LengthSkew = 1 << 20

	_, err := exchange.NewDriver(exchange.DefaultConfig()).Run(context.Background(), load(t, opts))
	require.Error(t, err)
	assert.True(t, errors.HasKind(err, errors.KindContractViolation))
	assert.True(t, errors.HasKind(err, errors.KindOutOfBounds))
	assert.Contains(t, err.Error(), "guest reported 1048602 bytes")
}

func TestAssertionMessage(t *testing.T) {
	cfg := exchange.DefaultConfig()
	cfg.Expected = "Did you know Go is cool!"

	_, err := exchange.NewDriver(cfg).Run(context.Background(), reference(t))
	require.Error(t, err)

	var e *errors.Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, errors.KindAssertion, e.Kind)
	assert.Equal(t, "Did you know Wasm is cool!", e.Value)
}

func TestCapabilities(t *testing.T) {
	opts := guest.DefaultOptions()
	opts.Imports = []guest.Import{{Module: "env", Name: "notify"}}
	img := load(t, opts)

	var notified []uint32
	caps := runtime.Capabilities{}.Grant("env", "notify", runtime.HostFunc{
		Params: []api.ValueType{api.ValueTypeI32},
		Func: func(_ context.Context, _ api.Module, stack []uint64) {
			notified = append(notified, api.DecodeU32(stack[0]))
		},
	})

	res, err := exchange.NewDriver(exchange.DefaultConfig(), exchange.WithCapabilities(caps)).
		Run(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, exchange.DefaultExpected, res.Output)
	assert.Equal(t, []uint32{12}, notified)

	d := exchange.NewDriver(exchange.DefaultConfig())
	_, err = d.Run(context.Background(), img)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseInstantiate, Kind: errors.KindInstantiation}))
	var missing *errors.MissingImportsError
	require.True(t, stderrors.As(err, &missing))
	assert.Equal(t, exchange.StateInit, d.State())
}

func TestCustomContract(t *testing.T) {
	opts := guest.DefaultOptions()
	opts.PointerExport = "get_buffer"
	opts.TransformExport = "shout"

	cfg := exchange.DefaultConfig()
	cfg.Contract = `
		get-buffer: func() -> u32;
		shout: func(len: u32) -> u32;
	`
	cfg.PointerExport = "get_buffer"
	cfg.TransformExport = "shout"

	res, err := exchange.NewDriver(cfg).Run(context.Background(), load(t, opts))
	require.NoError(t, err)
	assert.Equal(t, exchange.DefaultExpected, res.Output)
}

func TestDriverSingleUse(t *testing.T) {
	d := exchange.NewDriver(exchange.DefaultConfig())
	_, err := d.Run(context.Background(), reference(t))
	require.NoError(t, err)

	_, err = d.Run(context.Background(), reference(t))
	require.Error(t, err)
	assert.True(t, errors.HasKind(err, errors.KindInvalidInput))
	assert.Equal(t, exchange.StateValidated, d.State())
}

func TestInvalidConfigFailsBeforeInstantiation(t *testing.T) {
	cfg := exchange.DefaultConfig()
	cfg.Expected = ""

	rec := &recorder{}
	d := exchange.NewDriver(cfg, exchange.WithObserver(rec.observe))
	_, err := d.Run(context.Background(), reference(t))
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindInvalidInput}))
	assert.Empty(t, rec.events)
}

func TestNilImage(t *testing.T) {
	d := exchange.NewDriver(exchange.DefaultConfig())
	_, err := d.Run(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.HasKind(err, errors.KindInvalidInput))
	assert.Equal(t, exchange.StateInit, d.State())
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := exchange.NewDriver(exchange.DefaultConfig()).Run(ctx, reference(t))
	assert.Error(t, err)
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	d := exchange.NewDriver(exchange.DefaultConfig(), exchange.WithLogger(zap.New(core)))
	_, err := d.Run(context.Background(), reference(t))
	require.NoError(t, err)

	transitions := logs.FilterMessage("exchange state").All()
	require.Len(t, transitions, 7)
	assert.Equal(t, "validated", transitions[6].ContextMap()["state"])
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())

	core, logs = observer.New(zapcore.DebugLevel)
	opts := guest.DefaultOptions()
	opts.Trap = true
	_, err = exchange.NewDriver(exchange.DefaultConfig(), exchange.WithLogger(zap.New(core))).
		Run(context.Background(), load(t, opts))
	require.Error(t, err)

	failures := logs.FilterMessage("exchange failed").All()
	require.Len(t, failures, 1)
	assert.Equal(t, "written", failures[0].ContextMap()["state"])
	assert.Equal(t, "call_trapped", failures[0].ContextMap()["kind"])
}

func TestStateString(t *testing.T) {
	names := map[exchange.State]string{
		exchange.StateInit:             "init",
		exchange.StateInstantiated:     "instantiated",
		exchange.StatePointerObtained:  "pointer_obtained",
		exchange.StateWritten:          "written",
		exchange.StateTransformed:      "transformed",
		exchange.StatePointerRefreshed: "pointer_refreshed",
		exchange.StateRead:             "read",
		exchange.StateValidated:        "validated",
		exchange.State(99):             "unknown",
	}
	for s, want := range names {
		assert.Equal(t, want, s.String())
	}
	assert.False(t, exchange.StateRead.Terminal())
}
