// Package runner drives a vm.VM against a front end: it polls input, runs a
// fixed number of instructions per 60 Hz frame, ticks the timers once and
// presents the display when it changed.
package runner

import (
	"fmt"
	"log/slog"

	"github.com/kapitanov/chip8vm/internal/vm"
)

// DefaultCyclesPerFrame is the number of instructions executed per frame.
const DefaultCyclesPerFrame = 10

type HAL interface {
	ReadInput(keyDown func(vm.Key), keyUp func(vm.Key)) error
	Draw(gfx *vm.Framebuffer) error
	Beep() error
	WaitForNextFrame() error
}

type Options struct {
	CyclesPerFrame int
}

type Runner struct {
	machine        *vm.VM
	program        []byte
	cyclesPerFrame int
	halted         bool
	frames         uint64
}

func New(machine *vm.VM, program []byte, opts Options) *Runner {
	cycles := opts.CyclesPerFrame
	if cycles <= 0 {
		cycles = DefaultCyclesPerFrame
	}

	return &Runner{
		machine:        machine,
		program:        program,
		cyclesPerFrame: cycles,
	}
}

// Machine returns the driven interpreter.
func (r *Runner) Machine() *vm.VM {
	return r.machine
}

// Halted reports whether the program parked itself in a self-jump.
func (r *Runner) Halted() bool {
	return r.halted
}

// Frames returns the number of frames run since the last Boot.
func (r *Runner) Frames() uint64 {
	return r.frames
}

// Boot resets the interpreter and loads the program.
func (r *Runner) Boot() error {
	r.machine.Reset()
	r.halted = false
	r.frames = 0

	if err := r.machine.LoadProgram(r.program); err != nil {
		return fmt.Errorf("unable to load program: %w", err)
	}
	return nil
}

// Load replaces the program and boots it.
func (r *Runner) Load(program []byte) error {
	r.program = program
	return r.Boot()
}

// Run boots the program and runs frames until the HAL or the interpreter
// reports an error.
func (r *Runner) Run(hal HAL) error {
	if err := r.Boot(); err != nil {
		return err
	}

	for {
		if err := r.Frame(hal); err != nil {
			return err
		}

		if err := hal.WaitForNextFrame(); err != nil {
			return err
		}
	}
}

// Frame runs a single 60 Hz frame. Front ends that own their own loop call
// it directly instead of Run.
func (r *Runner) Frame(hal HAL) error {
	if err := hal.ReadInput(r.keyDown, r.keyUp); err != nil {
		return err
	}

	if !r.halted {
		for i := 0; i < r.cyclesPerFrame; i++ {
			if err := r.machine.Step(); err != nil {
				return err
			}

			if r.machine.Looping() {
				slog.Info("program looped", "pc", fmt.Sprintf("0x%04x", r.machine.PC()))
				r.halted = true
				break
			}
		}
	}

	if r.machine.TickTimers() {
		if err := hal.Beep(); err != nil {
			return err
		}
	}

	if r.machine.Dirty() {
		gfx := r.machine.Framebuffer()
		if err := hal.Draw(&gfx); err != nil {
			return err
		}
		r.machine.ClearDirty()
	}

	r.frames++
	return nil
}

func (r *Runner) keyDown(key vm.Key) {
	if err := r.machine.SetKey(key, true); err != nil {
		slog.Warn("key down ignored", "err", err)
	}
}

func (r *Runner) keyUp(key vm.Key) {
	if err := r.machine.SetKey(key, false); err != nil {
		slog.Warn("key up ignored", "err", err)
	}
}
