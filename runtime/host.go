package runtime

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/passing-data/errors"
	"github.com/wippyai/passing-data/wasm"
)

// HostFunc is a host callable offered to the guest. Params and Results are
// core value types and must match the guest's import declaration exactly.
type HostFunc struct {
	Func    api.GoModuleFunc
	Params  []api.ValueType
	Results []api.ValueType
}

// Signature renders the function type as "(i32) -> ()".
func (h HostFunc) Signature() string {
	return "(" + valueTypeNames(h.Params) + ") -> (" + valueTypeNames(h.Results) + ")"
}

func (h HostFunc) matches(ft wasm.FuncType) bool {
	return sameTypes(h.Params, ft.Params) && sameTypes(h.Results, ft.Results)
}

// Capabilities maps "module.func" to the host function satisfying that
// import. Guests may import only what the map grants; unused entries are
// ignored. The reference exchange runs with an empty map.
type Capabilities map[string]HostFunc

// Grant adds fn under module.name and returns the map for chaining.
func (c Capabilities) Grant(module, name string, fn HostFunc) Capabilities {
	c[CapabilityKey(module, name)] = fn
	return c
}

// CapabilityKey returns the map key for an import.
func CapabilityKey(module, name string) string {
	return module + "." + name
}

// SplitCapabilityKey splits a key at its last dot, so module names may
// themselves contain dots.
func SplitCapabilityKey(key string) (module, name string, ok bool) {
	idx := strings.LastIndexByte(key, '.')
	if idx <= 0 || idx == len(key)-1 {
		return "", "", false
	}
	return key[:idx], key[idx+1:], true
}

// Validate checks every key and entry of the map.
func (c Capabilities) Validate() error {
	for key, fn := range c {
		if _, _, ok := SplitCapabilityKey(key); !ok {
			return errors.InvalidInput(errors.PhaseHost, fmt.Sprintf("capability key %q is not of the form module.func", key))
		}
		if fn.Func == nil {
			return errors.InvalidInput(errors.PhaseHost, fmt.Sprintf("capability %q has no implementation", key))
		}
		for _, vt := range append(append([]api.ValueType(nil), fn.Params...), fn.Results...) {
			if _, ok := coreTypes[vt]; !ok {
				return errors.Unsupported(errors.PhaseHost, fmt.Sprintf("capability %q uses value type 0x%02x", key, vt))
			}
		}
	}
	return nil
}

var coreTypes = map[api.ValueType]wasm.ValType{
	api.ValueTypeI32:       wasm.ValI32,
	api.ValueTypeI64:       wasm.ValI64,
	api.ValueTypeF32:       wasm.ValF32,
	api.ValueTypeF64:       wasm.ValF64,
	api.ValueTypeExternref: wasm.ValExtern,
}

func sameTypes(host []api.ValueType, guest []wasm.ValType) bool {
	if len(host) != len(guest) {
		return false
	}
	for i, vt := range host {
		if coreTypes[vt] != guest[i] {
			return false
		}
	}
	return true
}

func valueTypeNames(types []api.ValueType) string {
	names := make([]string, len(types))
	for i, vt := range types {
		names[i] = api.ValueTypeName(vt)
	}
	return strings.Join(names, ", ")
}
