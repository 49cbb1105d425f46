package bridge

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/passing-data/errors"
)

// DefaultContractWIT describes the reference guest's exports.
const DefaultContractWIT = `
get-wasm-memory-buffer-pointer: func() -> u32;
add-wasm-is-cool: func(len: u32) -> u32;
`

// DefaultMemory is the export name of the guest's linear memory.
const DefaultMemory = "memory"

// Signature is a core function type.
type Signature struct {
	Params  []api.ValueType
	Results []api.ValueType
}

// String renders the signature as "(i32) -> (i32)".
func (s Signature) String() string {
	return "(" + typeNames(s.Params) + ") -> (" + typeNames(s.Results) + ")"
}

// Equal reports whether both signatures have the same params and results.
func (s Signature) Equal(other Signature) bool {
	return sameValueTypes(s.Params, other.Params) && sameValueTypes(s.Results, other.Results)
}

func typeNames(types []api.ValueType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = api.ValueTypeName(t)
	}
	return strings.Join(names, ", ")
}

func sameValueTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Contract is the set of exports the host expects from a guest, keyed by
// core export name.
type Contract struct {
	Functions map[string]Signature
	Memory    string
}

// Signature returns the expected signature of export name.
func (c Contract) Signature(name string) (Signature, bool) {
	sig, ok := c.Functions[name]
	return sig, ok
}

// DefaultContract returns the contract of the reference guest.
func DefaultContract() Contract {
	c, err := ParseContract(DefaultContractWIT)
	if err != nil {
		panic(err)
	}
	return c
}

var funcPattern = regexp.MustCompile(`(?:export\s+)?([a-zA-Z_][a-zA-Z0-9_-]*)\s*:\s*func\s*\(([^)]*)\)(?:\s*->\s*([^;]+))?`)

// ParseContract reads function declarations written in WIT and lowers
// their types to core value types. Kebab-case names become the snake_case
// export names a guest toolchain emits. Only scalar types are accepted;
// anything needing the canonical ABI (strings, lists, records) is rejected.
//
//	get-wasm-memory-buffer-pointer: func() -> u32;
func ParseContract(witText string) (Contract, error) {
	c := Contract{Functions: make(map[string]Signature), Memory: DefaultMemory}

	for _, match := range funcPattern.FindAllStringSubmatch(witText, -1) {
		name := exportName(match[1])
		if _, dup := c.Functions[name]; dup {
			return Contract{}, errors.New(errors.PhaseParse, errors.KindInvalidData).
				Export(name).
				Detail("function declared twice").
				Build()
		}

		var sig Signature
		for _, param := range splitList(match[2]) {
			typ := param
			if idx := strings.LastIndex(param, ":"); idx != -1 {
				typ = param[idx+1:]
			}
			vt, err := lowerType(typ)
			if err != nil {
				return Contract{}, errors.Wrap(errors.PhaseParse, errors.KindInvalidData, err, "param of "+name)
			}
			sig.Params = append(sig.Params, vt)
		}

		result := strings.TrimSpace(match[3])
		result = strings.TrimSuffix(strings.TrimPrefix(result, "("), ")")
		for _, r := range splitList(result) {
			vt, err := lowerType(r)
			if err != nil {
				return Contract{}, errors.Wrap(errors.PhaseParse, errors.KindInvalidData, err, "result of "+name)
			}
			sig.Results = append(sig.Results, vt)
		}

		c.Functions[name] = sig
	}

	if len(c.Functions) == 0 {
		return Contract{}, errors.InvalidInput(errors.PhaseParse, "no functions found in WIT text")
	}
	return c, nil
}

func exportName(witName string) string {
	return strings.ReplaceAll(witName, "-", "_")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// lowerType maps a scalar WIT type to its flat core representation.
func lowerType(s string) (api.ValueType, error) {
	t, err := wit.ParseType(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	switch t.(type) {
	case wit.Bool, wit.S8, wit.U8, wit.S16, wit.U16, wit.S32, wit.U32, wit.Char:
		return api.ValueTypeI32, nil
	case wit.S64, wit.U64:
		return api.ValueTypeI64, nil
	case wit.F32:
		return api.ValueTypeF32, nil
	case wit.F64:
		return api.ValueTypeF64, nil
	}
	return 0, fmt.Errorf("type %s has no single core representation", s)
}
