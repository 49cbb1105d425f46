package runtime

import (
	"os"

	"github.com/wippyai/passing-data/errors"
	"github.com/wippyai/passing-data/wasm"
)

// Image is a validated guest binary. It owns a private copy of the bytes
// and is read-only after Load; it may be dropped once an instance exists.
type Image struct {
	module *wasm.Module
	bytes  []byte
}

// Load validates data as a core module and takes a copy of it.
func Load(data []byte) (*Image, error) {
	return load(data, "guest image")
}

// LoadFile reads and validates the guest at path.
func LoadFile(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindLoad).
			Value(path).
			Cause(err).
			Detail("read %s", path).
			Build()
	}
	return load(data, path)
}

func load(data []byte, source string) (*Image, error) {
	if len(data) == 0 {
		return nil, errors.New(errors.PhaseLoad, errors.KindLoad).
			Value(source).
			Detail("%s is empty", source).
			Build()
	}
	owned := append([]byte(nil), data...)
	m, err := wasm.ParseModuleValidate(owned)
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindLoad).
			Value(source).
			Cause(err).
			Detail("parse %s", source).
			Build()
	}
	return &Image{module: m, bytes: owned}, nil
}

// Size returns the image length in bytes.
func (i *Image) Size() int {
	return len(i.bytes)
}

// Import describes one import the guest declares.
type Import struct {
	Module    string
	Name      string
	Signature string // function type, empty for non-function imports
	Kind      byte
}

// Key returns the capability map key for the import.
func (imp Import) Key() string {
	return CapabilityKey(imp.Module, imp.Name)
}

// Imports lists the guest's imports in declaration order.
func (i *Image) Imports() []Import {
	out := make([]Import, 0, len(i.module.Imports))
	for _, imp := range i.module.Imports {
		entry := Import{Module: imp.Module, Name: imp.Name, Kind: imp.Desc.Kind}
		if imp.Desc.Kind == wasm.KindFunc {
			entry.Signature = i.module.Types[imp.Desc.TypeIdx].String()
		}
		out = append(out, entry)
	}
	return out
}

// Exports lists the names of every export.
func (i *Image) Exports() []string {
	names := make([]string, len(i.module.Exports))
	for j, exp := range i.module.Exports {
		names[j] = exp.Name
	}
	return names
}

// ExportedFuncType returns the declared signature of a function export.
func (i *Image) ExportedFuncType(name string) (wasm.FuncType, bool) {
	ft := i.module.ExportedFuncType(name)
	if ft == nil {
		return wasm.FuncType{}, false
	}
	return *ft, true
}
