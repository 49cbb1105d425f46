package engine

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// WazeroEngine compiles and instantiates guests on a wazero runtime
type WazeroEngine struct {
	runtime wazero.Runtime
}

// Config holds configuration for engine creation
type Config struct {
	// CompilationCache is shared between engines so a guest compiled once
	// is not compiled again. nil disables caching.
	CompilationCache wazero.CompilationCache

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// CloseOnContextDone terminates running guest code when the call's
	// context is cancelled or its deadline passes.
	CloseOnContextDone bool
}

// NewWazeroEngine creates a new wazero-based engine
func NewWazeroEngine(ctx context.Context) (*WazeroEngine, error) {
	return NewWazeroEngineWithConfig(ctx, nil)
}

// NewWazeroEngineWithConfig creates a new engine with custom configuration
func NewWazeroEngineWithConfig(ctx context.Context, cfg *Config) (*WazeroEngine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()

	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			if cfg.MemoryLimitPages > 65536 {
				return nil, fmt.Errorf("memory limit %d pages exceeds 65536", cfg.MemoryLimitPages)
			}
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.CompilationCache != nil {
			runtimeCfg = runtimeCfg.WithCompilationCache(cfg.CompilationCache)
		}
		runtimeCfg = runtimeCfg.WithCloseOnContextDone(cfg.CloseOnContextDone)
	}

	return &WazeroEngine{runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg)}, nil
}

// LoadModule compiles a core module.
func (e *WazeroEngine) LoadModule(ctx context.Context, wasmBytes []byte) (*WazeroModule, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("compile failed: %w", err)
	}
	Logger().Debug("compiled module",
		zap.Int("bytes", len(wasmBytes)),
		zap.Int("imports", len(compiled.ImportedFunctions())),
		zap.Int("exports", len(compiled.ExportedFunctions())))

	return &WazeroModule{
		runtime:   e.runtime,
		compiled:  compiled,
		hostFuncs: make(map[string]HostFunc),
	}, nil
}

func (e *WazeroEngine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// WazeroModule is a compiled WASM module
type WazeroModule struct {
	runtime   wazero.Runtime
	compiled  wazero.CompiledModule
	hostFuncs map[string]HostFunc
}

// HostFunc is a host function exposed to the guest as Namespace.Name.
type HostFunc struct {
	Raw       api.GoModuleFunc
	Namespace string
	Name      string
	ParamVT   []api.ValueType
	ResultVT  []api.ValueType
}

// Key returns the "namespace.name" form used in capability maps.
func (h HostFunc) Key() string {
	return h.Namespace + "." + h.Name
}

// RegisterHostFunc makes hf available to the next Instantiate.
func (m *WazeroModule) RegisterHostFunc(hf HostFunc) error {
	if hf.Namespace == "" || hf.Name == "" {
		return fmt.Errorf("host function needs a namespace and a name, got %q", hf.Key())
	}
	if hf.Raw == nil {
		return fmt.Errorf("host function %s has no implementation", hf.Key())
	}
	if _, exists := m.hostFuncs[hf.Key()]; exists {
		return fmt.Errorf("host function %s already registered", hf.Key())
	}
	m.hostFuncs[hf.Key()] = hf
	return nil
}

// ImportedFunctions returns the function imports the compiled module declares.
func (m *WazeroModule) ImportedFunctions() []api.FunctionDefinition {
	return m.compiled.ImportedFunctions()
}

// ExportedFunctions returns the function exports keyed by name.
func (m *WazeroModule) ExportedFunctions() map[string]api.FunctionDefinition {
	return m.compiled.ExportedFunctions()
}

// Close releases the compiled code.
func (m *WazeroModule) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

// Instantiate links the registered host functions and creates an
// anonymous instance with fresh memory.
func (m *WazeroModule) Instantiate(ctx context.Context) (*WazeroInstance, error) {
	hosts, err := m.instantiateHostModules(ctx)
	if err != nil {
		return nil, err
	}

	instance, err := m.runtime.InstantiateModule(ctx, m.compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("instantiate failed: %w", err), closeAll(ctx, hosts))
	}

	return &WazeroInstance{module: instance, hosts: hosts}, nil
}

// instantiateHostModules builds one host module per namespace.
func (m *WazeroModule) instantiateHostModules(ctx context.Context) ([]api.Module, error) {
	byNamespace := make(map[string][]HostFunc)
	for _, hf := range m.hostFuncs {
		byNamespace[hf.Namespace] = append(byNamespace[hf.Namespace], hf)
	}

	var hosts []api.Module
	for _, ns := range slices.Sorted(maps.Keys(byNamespace)) {
		builder := m.runtime.NewHostModuleBuilder(ns)
		for _, hf := range byNamespace[ns] {
			builder.NewFunctionBuilder().
				WithGoModuleFunction(hf.Raw, hf.ParamVT, hf.ResultVT).
				WithName(hf.Name).
				Export(hf.Name)
		}
		host, err := builder.Instantiate(ctx)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("instantiate host module %q: %w", ns, err), closeAll(ctx, hosts))
		}
		Logger().Debug("instantiated host module", zap.String("namespace", ns), zap.Int("functions", len(byNamespace[ns])))
		hosts = append(hosts, host)
	}
	return hosts, nil
}

func closeAll(ctx context.Context, modules []api.Module) error {
	var err error
	for _, mod := range modules {
		err = multierr.Append(err, mod.Close(ctx))
	}
	return err
}

// WazeroInstance is a running guest and the host modules linked into it.
type WazeroInstance struct {
	module api.Module
	hosts  []api.Module
}

// ExportedFunction returns an exported function, or nil if not found.
func (i *WazeroInstance) ExportedFunction(name string) api.Function {
	if i.module == nil {
		return nil
	}
	return i.module.ExportedFunction(name)
}

// ExportedMemory returns the memory exported under name, or nil.
func (i *WazeroInstance) ExportedMemory(name string) *WazeroMemory {
	if i.module == nil {
		return nil
	}
	mem := i.module.ExportedMemory(name)
	if mem == nil {
		return nil
	}
	return &WazeroMemory{mem: mem}
}

// Close tears down the guest and then its host modules.
func (i *WazeroInstance) Close(ctx context.Context) error {
	var err error
	if i.module != nil {
		err = i.module.Close(ctx)
		i.module = nil
	}
	err = multierr.Append(err, closeAll(ctx, i.hosts))
	i.hosts = nil
	return err
}

// WazeroMemory wraps wazero memory
type WazeroMemory struct {
	mem api.Memory
}

func (m *WazeroMemory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("read out of bounds: offset=%d, length=%d", offset, length)
	}
	return data, nil
}

func (m *WazeroMemory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return fmt.Errorf("write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	return nil
}

func (m *WazeroMemory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}
