package exchange_test

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/passing-data/errors"
	"github.com/wippyai/passing-data/exchange"
)

func TestDefaultConfig(t *testing.T) {
	cfg := exchange.DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "Did you know", cfg.Input)
	assert.Equal(t, "Did you know Wasm is cool!", cfg.Expected)

	pages, err := cfg.MemoryLimitPages()
	require.NoError(t, err)
	assert.Zero(t, pages)
}

func TestParseConfig(t *testing.T) {
	cfg, err := exchange.ParseConfig([]byte(`
input: "Hello"
expected: "Hello Wasm is cool!"
guest: ./strings_wasm_is_cool_bg.wasm
max_memory: 1MiB
`))
	require.NoError(t, err)
	assert.Equal(t, "Hello", cfg.Input)
	assert.Equal(t, "Hello Wasm is cool!", cfg.Expected)
	assert.Equal(t, "./strings_wasm_is_cool_bg.wasm", cfg.Guest)

	// unset fields keep their defaults
	assert.Equal(t, exchange.DefaultConfig().PointerExport, cfg.PointerExport)
	assert.Equal(t, exchange.DefaultConfig().Memory, cfg.Memory)

	pages, err := cfg.MemoryLimitPages()
	require.NoError(t, err)
	assert.Equal(t, uint32(16), pages)
}

func TestParseConfigMalformed(t *testing.T) {
	_, err := exchange.ParseConfig([]byte("input: [unterminated"))
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindInvalidData}))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*exchange.Config)
		kind   errors.Kind
	}{
		{"no expected value", func(c *exchange.Config) { c.Expected = "" }, errors.KindInvalidInput},
		{"no pointer export", func(c *exchange.Config) { c.PointerExport = "" }, errors.KindInvalidInput},
		{"same exports", func(c *exchange.Config) { c.TransformExport = c.PointerExport }, errors.KindInvalidInput},
		{"no memory", func(c *exchange.Config) { c.Memory = "" }, errors.KindInvalidInput},
		{"unparseable max memory", func(c *exchange.Config) { c.MaxMemory = "lots" }, errors.KindInvalidInput},
		{"zero max memory", func(c *exchange.Config) { c.MaxMemory = "0" }, errors.KindInvalidInput},
		{"max memory past 4GiB", func(c *exchange.Config) { c.MaxMemory = "5GiB" }, errors.KindInvalidInput},
		{"contract without transform", func(c *exchange.Config) {
			c.Contract = "get-wasm-memory-buffer-pointer: func() -> u32;"
		}, errors.KindInvalidInput},
		{"contract with wrong shape", func(c *exchange.Config) {
			c.Contract = `
				get-wasm-memory-buffer-pointer: func() -> u64;
				add-wasm-is-cool: func(len: u32) -> u32;`
		}, errors.KindSignatureMismatch},
		{"contract not WIT", func(c *exchange.Config) { c.Contract = "not wit at all" }, errors.KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := exchange.DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.HasKind(err, tt.kind), "got %v", err)
		})
	}
}

func TestMemoryLimitPagesRoundsUp(t *testing.T) {
	tests := map[string]uint32{
		"1":      1,
		"64KiB":  1,
		"100KB":  2,
		"128KiB": 2,
		"4GiB":   65536,
	}
	for in, want := range tests {
		cfg := exchange.DefaultConfig()
		cfg.MaxMemory = in
		got, err := cfg.MemoryLimitPages()
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exchange.yaml")
	require.NoError(t, os.WriteFile(path, []byte("input: Go\nexpected: Go Wasm is cool!\n"), 0o600))

	cfg, err := exchange.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "Go", cfg.Input)

	_, err = exchange.LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindInvalidInput}))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("expected: \"\"\n"), 0o600))
	_, err = exchange.LoadConfig(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), bad)
}

func TestConfigWithInput(t *testing.T) {
	cfg := exchange.DefaultConfig().WithInput("Go")
	assert.Equal(t, "Go", cfg.Input)
	assert.Equal(t, "Go Wasm is cool!", cfg.Expected)

	custom := exchange.DefaultConfig()
	custom.Expected = custom.Input + " Go too!"
	assert.Equal(t, " Go too!", custom.Suffix())
	assert.Equal(t, "Rust Go too!", custom.WithInput("Rust").Expected)

	// an expectation unrelated to the input falls back to the reference suffix
	unrelated := exchange.DefaultConfig()
	unrelated.Expected = "something else"
	assert.Equal(t, " Wasm is cool!", unrelated.Suffix())
}
