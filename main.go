//go:build !js

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kapitanov/chip8vm/internal/hal"
	"github.com/kapitanov/chip8vm/internal/hal/ebitengine"
	"github.com/kapitanov/chip8vm/internal/hal/headless"
	"github.com/kapitanov/chip8vm/internal/hal/sdl2"
	"github.com/kapitanov/chip8vm/internal/hal/terminal"
	"github.com/kapitanov/chip8vm/internal/runner"
	"github.com/kapitanov/chip8vm/internal/timing"
	"github.com/kapitanov/chip8vm/internal/vm"
	"github.com/spf13/cobra"
)

const (
	backendSDL      = "sdl"
	backendTerminal = "terminal"
	backendEbiten   = "ebiten"
	backendHeadless = "headless"
)

type options struct {
	verbose     bool
	backend     string
	cycles      int
	scale       int
	frames      int
	snapshotDir string
	seed        uint64
}

func main() {
	cmd := newRootCommand()
	cmd.SetArgs(os.Args[1:])
	if err := cmd.Execute(); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           fmt.Sprintf("%s PATH_TO_ROM_FILE", filepath.Base(os.Args[0])),
		Short:         "Run emulator",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			setupLogger(opts.verbose)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose logging")

	flags := cmd.Flags()
	flags.StringVar(&opts.backend, "backend", backendSDL, "front end: sdl, terminal, ebiten or headless")
	flags.IntVar(&opts.cycles, "cycles", runner.DefaultCyclesPerFrame, "instructions executed per 60 Hz frame")
	flags.IntVar(&opts.scale, "scale", 16, "window pixels per display pixel")
	flags.IntVar(&opts.frames, "frames", 600, "frames to run in headless mode")
	flags.StringVar(&opts.snapshotDir, "snapshot-dir", "", "directory for headless PNG snapshots")
	flags.Uint64Var(&opts.seed, "seed", 0, "fixed seed for the random instruction (0 picks one at random)")

	cmd.RunE = func(_ *cobra.Command, args []string) error {
		return run(args[0], opts)
	}

	cmd.AddCommand(newDisasmCommand())
	return cmd
}

func setupLogger(verbose bool) {
	loggerOpts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if verbose {
		loggerOpts.Level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, loggerOpts)))
}

func (o *options) validate() error {
	switch o.backend {
	case backendSDL, backendTerminal, backendEbiten, backendHeadless:
	default:
		return fmt.Errorf("unknown backend %q", o.backend)
	}

	if o.cycles <= 0 {
		return fmt.Errorf("cycles per frame must be positive, got %d", o.cycles)
	}
	if o.scale <= 0 {
		return fmt.Errorf("scale must be positive, got %d", o.scale)
	}
	return nil
}

func run(path string, opts *options) error {
	if err := opts.validate(); err != nil {
		return err
	}

	bs, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("unable to load file %q: %w", path, err)
	}

	var vmOpts []vm.Option
	if opts.seed != 0 {
		vmOpts = append(vmOpts, vm.WithSeed(opts.seed))
	}
	machine := vm.New(vmOpts...)
	r := runner.New(machine, bs, runner.Options{CyclesPerFrame: opts.cycles})
	title := fmt.Sprintf("CHIP-8 - %s", filepath.Base(path))

	switch opts.backend {
	case backendEbiten:
		return ebitengine.New(r, ebitengine.Config{Title: title, Scale: opts.scale}).Run()

	case backendHeadless:
		h, err := headless.New(headless.Config{
			Frames:      opts.frames,
			SnapshotDir: opts.snapshotDir,
			Scale:       opts.scale,
		})
		if err != nil {
			return fmt.Errorf("unable to initialize hal: %w", err)
		}
		return loop(r, h)

	case backendTerminal:
		h, err := terminal.New(terminal.Config{
			Title:     title,
			Inspector: machine,
			LogLevel:  logLevel(opts.verbose),
		})
		if err != nil {
			return fmt.Errorf("unable to initialize hal: %w", err)
		}
		defer h.Shutdown()
		return loop(r, h)

	default:
		h, err := sdl2.New(sdl2.Config{
			Title:   title,
			Scale:   opts.scale,
			Limiter: timing.NewTickerLimiter(timing.FrameDuration()),
		})
		if err != nil {
			return fmt.Errorf("unable to initialize hal: %w", err)
		}
		defer h.Shutdown()
		return loop(r, h)
	}
}

// loop runs the program until the front end quits, rebooting on request.
func loop(r *runner.Runner, h runner.HAL) error {
	for {
		err := r.Run(h)

		if errors.Is(err, hal.ErrQuit) {
			return nil
		}

		if errors.Is(err, hal.ErrReboot) {
			slog.Info("rebooting")
			continue
		}

		return err
	}
}

func logLevel(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
