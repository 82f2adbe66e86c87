// Package ebitengine runs the interpreter inside an Ebitengine game loop.
// Ebitengine owns the 60 Hz pacing, so the game calls runner.Frame from
// Update instead of handing control to runner.Run.
package ebitengine

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/kapitanov/chip8vm/internal/hal"
	"github.com/kapitanov/chip8vm/internal/runner"
	"github.com/kapitanov/chip8vm/internal/timing"
	"github.com/kapitanov/chip8vm/internal/vm"
)

type Config struct {
	Title string
	Scale int
}

type Game struct {
	runner  *runner.Runner
	config  Config
	hal     *HAL
	display *ebiten.Image // reused 64x32 canvas

	mutex   sync.Mutex
	reboot  bool
	program []byte // pending ROM, nil when none
}

func New(r *runner.Runner, config Config) *Game {
	if config.Scale <= 0 {
		config.Scale = 1
	}

	return &Game{
		runner: r,
		config: config,
		hal:    newHAL(),
	}
}

// Run boots the program and blocks until the window is closed or the
// interpreter fails.
func (g *Game) Run() error {
	if err := g.runner.Boot(); err != nil {
		return err
	}

	ebiten.SetWindowTitle(g.config.Title)
	ebiten.SetWindowSize(vm.ScreenWidth*g.config.Scale, vm.ScreenHeight*g.config.Scale)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetTPS(timing.TimerFrequency)

	slog.Info("ebitengine backend initialized", "scale", g.config.Scale)
	return ebiten.RunGame(g)
}

// LoadProgram swaps the ROM and reboots on the next update. It is safe to
// call from outside the game loop.
func (g *Game) LoadProgram(program []byte) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.program = program
}

// Reboot restarts the current ROM on the next update.
func (g *Game) Reboot() {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.reboot = true
}

// PressKey and ReleaseKey feed keys that do not come from the keyboard,
// such as on-screen buttons.
func (g *Game) PressKey(key vm.Key) {
	g.hal.queueKey(key, true)
}

func (g *Game) ReleaseKey(key vm.Key) {
	g.hal.queueKey(key, false)
}

func (g *Game) applyPending() error {
	g.mutex.Lock()
	program, reboot := g.program, g.reboot
	g.program, g.reboot = nil, false
	g.mutex.Unlock()

	switch {
	case program != nil:
		slog.Info("loading program", "size", len(program))
		return g.runner.Load(program)
	case reboot:
		return g.runner.Boot()
	}
	return nil
}

func (g *Game) Update() error {
	if err := g.applyPending(); err != nil {
		return err
	}

	err := g.runner.Frame(g.hal)
	switch {
	case errors.Is(err, hal.ErrQuit):
		return ebiten.Termination
	case errors.Is(err, hal.ErrReboot):
		return g.runner.Boot()
	}
	return err
}

func (g *Game) Draw(screen *ebiten.Image) {
	if g.display == nil {
		g.display = ebiten.NewImage(vm.ScreenWidth, vm.ScreenHeight)
	}

	g.display.WritePixels(g.hal.pixels)

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(float64(g.config.Scale), float64(g.config.Scale))
	screen.DrawImage(g.display, op)
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return vm.ScreenWidth * g.config.Scale, vm.ScreenHeight * g.config.Scale
}
