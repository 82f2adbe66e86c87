// Package terminal is a tcell front end that renders the display with
// half-block glyphs, two pixel rows per terminal row.
package terminal

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/kapitanov/chip8vm/internal/hal"
	"github.com/kapitanov/chip8vm/internal/timing"
	"github.com/kapitanov/chip8vm/internal/vm"
)

const (
	displayTop  = 1
	panelLeft   = vm.ScreenWidth + 2
	logTop      = displayTop + vm.ScreenHeight/2 + 1
	logCapacity = 100

	// Terminals report key presses but never releases, so a key counts as
	// held until no press or auto-repeat arrived for this long.
	keyTimeout = 150 * time.Millisecond
)

// Inspector exposes interpreter state for the register panel.
type Inspector interface {
	PC() uint16
	Index() uint16
	SP() uint16
	Register(i int) uint8
	DelayTimer() uint8
	SoundTimer() uint8
}

type Config struct {
	Title     string
	Screen    tcell.Screen // nil creates the default terminal screen
	Limiter   timing.Limiter
	LogLevel  slog.Leveler
	Inspector Inspector
}

type HAL struct {
	screen    tcell.Screen
	config    Config
	limiter   timing.Limiter
	logBuffer *LogBuffer
	logger    *slog.Logger // replaced default logger, restored on Shutdown
	gfx       vm.Framebuffer

	keyStates map[vm.Key]time.Time // last press per held key
	now       func() time.Time
}

func New(config Config) (*HAL, error) {
	screen := config.Screen
	if screen == nil {
		var err error
		screen, err = tcell.NewScreen()
		if err != nil {
			return nil, fmt.Errorf("failed to create terminal screen: %w", err)
		}
	}

	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize terminal: %w", err)
	}

	screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite))
	screen.Clear()

	limiter := config.Limiter
	if limiter == nil {
		limiter = timing.NewTickerLimiter(timing.FrameDuration())
	}

	level := config.LogLevel
	if level == nil {
		level = slog.LevelInfo
	}

	h := &HAL{
		screen:    screen,
		config:    config,
		limiter:   limiter,
		logBuffer: NewLogBuffer(logCapacity),
		logger:    slog.Default(),
		keyStates: make(map[vm.Key]time.Time),
		now:       time.Now,
	}

	// Log output would tear the screen, so it goes to the side panel instead.
	slog.SetDefault(slog.New(NewLogHandler(h.logBuffer, level)))
	slog.Info("terminal backend initialized")

	return h, nil
}

func (h *HAL) Shutdown() {
	h.limiter.Stop()
	h.screen.Fini()
	slog.SetDefault(h.logger)
}

func (h *HAL) ReadInput(keyDown func(vm.Key), keyUp func(vm.Key)) error {
	now := h.now()

	for h.screen.HasPendingEvent() {
		switch ev := h.screen.PollEvent().(type) {
		case *tcell.EventKey:
			if err := h.processKey(ev, now, keyDown); err != nil {
				return err
			}
		case *tcell.EventResize:
			h.screen.Sync()
		}
	}

	for key, pressed := range h.keyStates {
		if now.Sub(pressed) >= keyTimeout {
			delete(h.keyStates, key)
			keyUp(key)
		}
	}

	return nil
}

func (h *HAL) processKey(ev *tcell.EventKey, now time.Time, keyDown func(vm.Key)) error {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		slog.Debug("hal: exit requested")
		return hal.ErrQuit
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		slog.Debug("hal: reboot requested")
		h.releaseAll()
		return hal.ErrReboot
	case tcell.KeyRune:
		key, ok := hal.KeyForRune(ev.Rune())
		if !ok {
			return nil
		}

		if _, held := h.keyStates[key]; !held {
			keyDown(key)
		}
		h.keyStates[key] = now
	}

	return nil
}

func (h *HAL) releaseAll() {
	for key := range h.keyStates {
		delete(h.keyStates, key)
	}
}

func (h *HAL) Draw(gfx *vm.Framebuffer) error {
	h.gfx = *gfx
	h.render()
	return nil
}

// render repaints the display from the last drawn frame together with the
// register and log panels.
func (h *HAL) render() {
	h.screen.Clear()
	h.drawText(0, 0, h.config.Title, tcell.StyleDefault.Bold(true))

	fg := tcell.NewHexColor(int32(hal.ForegroundColor))
	bg := tcell.NewHexColor(int32(hal.BackgroundColor))

	for y := 0; y < vm.ScreenHeight; y += 2 {
		for x := 0; x < vm.ScreenWidth; x++ {
			ch := halfBlock(h.gfx.At(x, y), h.gfx.At(x, y+1))
			style := tcell.StyleDefault.Foreground(fg).Background(bg)
			h.screen.SetContent(x, displayTop+y/2, ch, nil, style)
		}
	}

	h.drawRegisters()
	h.drawLogs()
	h.screen.Show()
}

// halfBlock picks the glyph showing a top and a bottom pixel in one cell.
func halfBlock(top, bottom bool) rune {
	switch {
	case top && bottom:
		return '█'
	case top:
		return '▀'
	case bottom:
		return '▄'
	default:
		return ' '
	}
}

func (h *HAL) drawRegisters() {
	state := h.config.Inspector
	if state == nil {
		return
	}

	width, _ := h.screen.Size()
	if width < panelLeft+12 {
		return
	}

	style := tcell.StyleDefault.Foreground(tcell.ColorSilver)
	lines := []string{
		fmt.Sprintf("PC %04X", state.PC()),
		fmt.Sprintf("I  %04X", state.Index()),
		fmt.Sprintf("SP %02X", state.SP()),
		fmt.Sprintf("DT %02X ST %02X", state.DelayTimer(), state.SoundTimer()),
	}
	for i := 0; i < vm.RegisterCount; i += 2 {
		lines = append(lines, fmt.Sprintf("V%X %02X V%X %02X", i, state.Register(i), i+1, state.Register(i+1)))
	}

	for i, line := range lines {
		h.drawText(panelLeft, displayTop+i, line, style)
	}
}

func (h *HAL) drawLogs() {
	_, height := h.screen.Size()
	rows := height - logTop
	if rows <= 0 {
		return
	}

	style := tcell.StyleDefault.Foreground(tcell.ColorGray)
	for i, entry := range h.logBuffer.Recent(rows) {
		h.drawText(0, logTop+i, entry.String(), style)
	}
}

func (h *HAL) drawText(x, y int, text string, style tcell.Style) {
	width, _ := h.screen.Size()
	for _, ch := range text {
		if x >= width {
			return
		}
		h.screen.SetContent(x, y, ch, nil, style)
		x++
	}
}

func (h *HAL) Beep() error {
	return h.screen.Beep()
}

// WaitForNextFrame repaints before waiting, since registers and logs change
// on frames that leave the display alone.
func (h *HAL) WaitForNextFrame() error {
	h.render()
	h.limiter.WaitForNextFrame()
	return nil
}
