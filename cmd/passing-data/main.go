package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/passing-data/engine"
	"github.com/wippyai/passing-data/exchange"
	"github.com/wippyai/passing-data/guest"
	"github.com/wippyai/passing-data/runtime"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	out    io.Writer
	logger *zap.Logger
}

func newApp(out io.Writer) *cli.App {
	a := &app{out: out, logger: zap.NewNop()}
	return &cli.App{
		Name:  "passing-data",
		Usage: "Pass a string through a WebAssembly guest's linear memory",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log every exchange step with a development logger",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "error",
				Usage: "minimum level of the JSON logger when not verbose",
			},
		},
		Before:         a.setupLogging,
		After:          a.syncLogging,
		DefaultCommand: "run",
		Commands: []*cli.Command{
			a.runCommand(),
			a.emitGuestCommand(),
			a.interactiveCommand(),
		},
	}
}

func (a *app) setupLogging(c *cli.Context) error {
	logger, err := newLogger(c.Bool("verbose"), c.String("log-level"))
	if err != nil {
		return err
	}
	a.logger = logger
	engine.SetLogger(logger)
	exchange.SetLogger(logger)
	return nil
}

func (a *app) syncLogging(*cli.Context) error {
	// stderr cannot always be synced; nothing useful to report
	_ = a.logger.Sync()
	return nil
}

func newLogger(verbose bool, level string) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Sampling = nil
	return cfg.Build()
}

func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML exchange config",
		},
		&cli.StringFlag{
			Name:    "guest",
			Aliases: []string{"g"},
			Usage:   "guest module; the built-in reference guest when empty",
		},
		&cli.StringFlag{
			Name:  "max-memory",
			Usage: "cap guest memory, e.g. 1MiB",
		},
		&cli.StringFlag{
			Name:  "suffix",
			Usage: "text the guest appends; sets the expected result to the input plus this suffix",
		},
	}
}

// loadConfig reads --config, then applies flag overrides.
func loadConfig(c *cli.Context) (exchange.Config, error) {
	cfg := exchange.DefaultConfig()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = exchange.LoadConfig(path); err != nil {
			return exchange.Config{}, err
		}
	}
	if c.IsSet("guest") {
		cfg.Guest = c.String("guest")
	}
	if c.IsSet("max-memory") {
		cfg.MaxMemory = c.String("max-memory")
	}
	if c.IsSet("suffix") {
		cfg.Expected = cfg.Input + c.String("suffix")
	}
	return cfg, nil
}

func loadGuest(path string) (*runtime.Image, error) {
	if path == "" {
		return runtime.Load(guest.Reference())
	}
	return runtime.LoadFile(path)
}

func (a *app) runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run one exchange and check the result",
		Description: `
Writes the input into the guest's buffer, calls the transform export,
fetches the buffer pointer again and reads the result back:

  passing-data run
  passing-data run --guest strings_wasm_is_cool_bg.wasm --input "Go"`[1:],
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "string to pass to the guest",
			},
			&cli.StringFlag{
				Name:    "expected",
				Aliases: []string{"e"},
				Usage:   "required result; defaults to the input plus the configured suffix",
			},
		}, configFlags()...),
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if c.IsSet("input") {
				cfg = cfg.WithInput(c.String("input"))
			}
			if c.IsSet("expected") {
				cfg.Expected = c.String("expected")
			}
			return a.run(c.Context, cfg)
		},
	}
}

func (a *app) run(ctx context.Context, cfg exchange.Config) error {
	img, err := loadGuest(cfg.Guest)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "The original string is: %s\n", cfg.Input)
	d := exchange.NewDriver(cfg, exchange.WithLogger(a.logger), exchange.WithObserver(a.trace))
	res, err := d.Run(ctx, img)
	if err != nil {
		return fmt.Errorf("exchange stopped after %s: %w", d.State(), err)
	}
	fmt.Fprintf(a.out, "The new string is: %s\n", res.Output)
	fmt.Fprintln(a.out, "Success!")
	return nil
}

func (a *app) trace(e exchange.Event) {
	a.logger.Debug("bridge operation",
		zap.String("op", string(e.Op)),
		zap.Stringer("state", e.State),
		zap.String("export", e.Export),
		zap.Uint32("offset", e.Pointer.Offset),
		zap.Uint32("length", e.Length),
		zap.Uint64("generation", e.Generation))
}

func (a *app) emitGuestCommand() *cli.Command {
	return &cli.Command{
		Name:      "emit-guest",
		Usage:     "Write the reference guest module to a file",
		ArgsUsage: "<out.wasm>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "suffix",
				Value: guest.DefaultSuffix,
				Usage: "text the transform export appends",
			},
			&cli.BoolFlag{
				Name:  "in-place",
				Usage: "transform in place instead of moving the buffer into grown memory",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("emit-guest needs exactly one output path, got %d", c.NArg())
			}
			opts := guest.DefaultOptions()
			opts.Suffix = []byte(c.String("suffix"))
			opts.Relocate = !c.Bool("in-place")

			bin, err := guest.Build(opts)
			if err != nil {
				return err
			}
			out := c.Args().First()
			if err := os.WriteFile(out, bin, 0o644); err != nil {
				return fmt.Errorf("write guest: %w", err)
			}
			a.logger.Info("guest written", zap.String("path", out), zap.Int("bytes", len(bin)))
			fmt.Fprintf(a.out, "wrote %d bytes to %s\n", len(bin), out)
			return nil
		},
	}
}
