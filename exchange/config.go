package exchange

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/tetratelabs/wazero/api"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/passing-data/bridge"
	"github.com/wippyai/passing-data/errors"
	"github.com/wippyai/passing-data/guest"
	"github.com/wippyai/passing-data/wasm"
)

// Reference scenario values.
const (
	DefaultInput    = "Did you know"
	DefaultExpected = DefaultInput + guest.DefaultSuffix
)

// Config describes one exchange.
type Config struct {
	// Input is written to the guest buffer as raw UTF-8 bytes.
	Input string `yaml:"input"`

	// Expected must equal the text read back, byte for byte.
	Expected string `yaml:"expected"`

	// Guest is the path of the guest module. Empty selects the built-in
	// reference guest; the CLI resolves it, the driver never reads files.
	Guest string `yaml:"guest,omitempty"`

	// Contract optionally describes the guest exports in WIT, in the form
	// of bridge.DefaultContractWIT. It must declare both exports below.
	Contract string `yaml:"contract,omitempty"`

	PointerExport   string `yaml:"pointer_export"`
	TransformExport string `yaml:"transform_export"`
	Memory          string `yaml:"memory"`

	// MaxMemory caps guest memory, e.g. "4MiB". Empty leaves the engine
	// default of 4GiB. Rounded up to whole 64KiB pages.
	MaxMemory string `yaml:"max_memory,omitempty"`
}

// DefaultConfig returns the reference scenario: "Did you know" in,
// "Did you know Wasm is cool!" out.
func DefaultConfig() Config {
	return Config{
		Input:           DefaultInput,
		Expected:        DefaultExpected,
		PointerExport:   guest.PointerExport,
		TransformExport: guest.TransformExport,
		Memory:          bridge.DefaultMemory,
	}
}

// Suffix returns the text the guest is expected to append: Expected with
// its Input prefix removed. It falls back to guest.DefaultSuffix when
// Expected does not start with Input.
func (c Config) Suffix() string {
	if suffix, ok := strings.CutPrefix(c.Expected, c.Input); ok {
		return suffix
	}
	return guest.DefaultSuffix
}

// WithInput returns a copy of c for another input that expects the same
// suffix.
func (c Config) WithInput(input string) Config {
	suffix := c.Suffix()
	c.Input = input
	c.Expected = input + suffix
	return c
}

// LoadConfig reads a YAML config file. Fields missing from the file keep
// their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "read config "+path)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes YAML over DefaultConfig and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the config describes a runnable exchange.
func (c Config) Validate() error {
	if c.Expected == "" {
		return errors.InvalidInput(errors.PhaseConfig, "expected value is required")
	}
	if c.PointerExport == "" || c.TransformExport == "" {
		return errors.InvalidInput(errors.PhaseConfig, "pointer and transform exports are required")
	}
	if c.PointerExport == c.TransformExport {
		return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("pointer and transform export are both %q", c.PointerExport))
	}
	if c.Memory == "" {
		return errors.InvalidInput(errors.PhaseConfig, "memory export is required")
	}
	if _, err := c.MemoryLimitPages(); err != nil {
		return err
	}
	_, err := c.contract()
	return err
}

// MemoryLimitPages converts MaxMemory to pages. Zero means no limit.
func (c Config) MemoryLimitPages() (uint32, error) {
	if c.MaxMemory == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(c.MaxMemory)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "max_memory")
	}
	pages := (n + uint64(wasm.PageSize) - 1) / uint64(wasm.PageSize)
	if pages == 0 || pages > wasm.MemoryMaxPages32 {
		return 0, errors.InvalidInput(errors.PhaseConfig,
			fmt.Sprintf("max_memory %s must be between 1 and %d pages", c.MaxMemory, wasm.MemoryMaxPages32))
	}
	return uint32(pages), nil
}

var (
	pointerSignature = bridge.Signature{
		Results: []api.ValueType{api.ValueTypeI32},
	}
	transformSignature = bridge.Signature{
		Params:  []api.ValueType{api.ValueTypeI32},
		Results: []api.ValueType{api.ValueTypeI32},
	}
)

// contract returns the export contract with the configured memory name,
// checking that both exports have the shapes the protocol calls.
func (c Config) contract() (bridge.Contract, error) {
	contract := bridge.Contract{
		Functions: map[string]bridge.Signature{
			c.PointerExport:   pointerSignature,
			c.TransformExport: transformSignature,
		},
	}
	if c.Contract != "" {
		var err error
		if contract, err = bridge.ParseContract(c.Contract); err != nil {
			return bridge.Contract{}, err
		}
	}
	contract.Memory = c.Memory

	for name, want := range map[string]bridge.Signature{
		c.PointerExport:   pointerSignature,
		c.TransformExport: transformSignature,
	} {
		sig, ok := contract.Signature(name)
		if !ok {
			return bridge.Contract{}, errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("contract does not declare %q", name))
		}
		if !sig.Equal(want) {
			return bridge.Contract{}, errors.New(errors.PhaseConfig, errors.KindSignatureMismatch).
				Export(name).
				Detail("contract declares %s, exchange needs %s", sig, want).
				Build()
		}
	}
	return contract, nil
}
