package runtime

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/passing-data/engine"
	"github.com/wippyai/passing-data/errors"
	"github.com/wippyai/passing-data/wasm"
)

// Runtime instantiates guest images on a private wazero runtime.
type Runtime struct {
	engine *engine.WazeroEngine
	logger *zap.Logger
}

type options struct {
	cache            wazero.CompilationCache
	logger           *zap.Logger
	memoryLimitPages uint32
}

// Option configures a Runtime.
type Option func(*options)

// WithMemoryLimitPages caps every instance's memory at pages (64KiB each).
func WithMemoryLimitPages(pages uint32) Option {
	return func(o *options) {
		o.memoryLimitPages = pages
	}
}

// WithCompilationCache shares compiled code between runtimes.
func WithCompilationCache(cache wazero.CompilationCache) Option {
	return func(o *options) {
		o.cache = cache
	}
}

// WithLogger sets the logger for instantiation events.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// New creates a runtime. Guest calls stop when their context is done.
func New(ctx context.Context, opts ...Option) (*Runtime, error) {
	o := options{logger: engine.Logger()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	eng, err := engine.NewWazeroEngineWithConfig(ctx, &engine.Config{
		MemoryLimitPages:   o.memoryLimitPages,
		CompilationCache:   o.cache,
		CloseOnContextDone: true,
	})
	if err != nil {
		return nil, errors.InvalidInput(errors.PhaseConfig, err.Error())
	}

	return &Runtime{engine: eng, logger: o.logger.Named("runtime")}, nil
}

// Close releases all runtime resources, including any open instance.
func (r *Runtime) Close(ctx context.Context) error {
	return r.engine.Close(ctx)
}

// Instantiate creates a running instance of img. Every function the guest
// imports must be granted by caps with an identical signature; any other
// import kind is unsupported.
func (r *Runtime) Instantiate(ctx context.Context, img *Image, caps Capabilities) (*Instance, error) {
	if img == nil {
		return nil, errors.InvalidInput(errors.PhaseInstantiate, "nil guest image")
	}
	if err := caps.Validate(); err != nil {
		return nil, errors.Instantiation("invalid capability map", err)
	}

	granted, err := resolveImports(img, caps)
	if err != nil {
		return nil, err
	}

	mod, err := r.engine.LoadModule(ctx, img.bytes)
	if err != nil {
		return nil, errors.Instantiation("compile guest", err)
	}
	for _, hf := range granted {
		if err := mod.RegisterHostFunc(hf); err != nil {
			return nil, errors.Instantiation("link capability", multierr.Append(err, mod.Close(ctx)))
		}
	}

	inst, err := mod.Instantiate(ctx)
	if err != nil {
		return nil, errors.Instantiation("instantiate guest", multierr.Append(err, mod.Close(ctx)))
	}

	r.logger.Debug("guest instantiated",
		zap.Int("image_bytes", img.Size()),
		zap.Int("capabilities", len(caps)),
		zap.Int("linked", len(granted)))

	return &Instance{instance: inst, module: mod}, nil
}

// resolveImports matches the guest's imports against caps and returns the
// host functions to link.
func resolveImports(img *Image, caps Capabilities) ([]engine.HostFunc, error) {
	var (
		missing []string
		granted []engine.HostFunc
	)
	for _, imp := range img.module.Imports {
		key := CapabilityKey(imp.Module, imp.Name)
		if imp.Desc.Kind != wasm.KindFunc {
			return nil, errors.Instantiation(fmt.Sprintf("import %s", key),
				errors.Unsupported(errors.PhaseInstantiate, "only function imports can be satisfied"))
		}

		hf, ok := caps[key]
		if !ok {
			missing = append(missing, key)
			continue
		}
		declared := img.module.Types[imp.Desc.TypeIdx]
		if !hf.matches(declared) {
			return nil, errors.Instantiation(fmt.Sprintf("capability %s", key),
				errors.SignatureMismatch(key, declared.String(), hf.Signature()))
		}
		granted = append(granted, engine.HostFunc{
			Raw:       hf.Func,
			Namespace: imp.Module,
			Name:      imp.Name,
			ParamVT:   hf.Params,
			ResultVT:  hf.Results,
		})
	}
	if len(missing) > 0 {
		return nil, errors.Instantiation("unresolved imports", errors.NewMissingImportsError(missing))
	}
	return granted, nil
}
