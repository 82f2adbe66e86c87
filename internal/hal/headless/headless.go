// Package headless is a window-less front end for batch runs and tests. It
// quits after a fixed number of frames and can save PNG snapshots.
package headless

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kapitanov/chip8vm/internal/hal"
	"github.com/kapitanov/chip8vm/internal/vm"
)

// KeyPress holds a key down for a span of frames.
type KeyPress struct {
	Key   vm.Key
	Frame int // first frame the key is down
	Hold  int // number of frames it stays down, at least one
}

type Config struct {
	Frames      int
	SnapshotDir string // empty disables snapshots
	Scale       int
	Keys        []KeyPress
}

type HAL struct {
	config Config
	frame  int
	beeps  int
	last   vm.Framebuffer
}

func New(config Config) (*HAL, error) {
	if config.Frames <= 0 {
		return nil, fmt.Errorf("headless mode requires a positive frame count, got %d", config.Frames)
	}
	if config.Scale <= 0 {
		config.Scale = 1
	}

	keys := make([]KeyPress, len(config.Keys))
	for i, press := range config.Keys {
		if press.Hold <= 0 {
			press.Hold = 1
		}
		keys[i] = press
	}
	config.Keys = keys

	if config.SnapshotDir != "" {
		if err := os.MkdirAll(config.SnapshotDir, 0o755); err != nil {
			return nil, fmt.Errorf("unable to create snapshot directory: %w", err)
		}
	}

	slog.Info("running headless", "frames", config.Frames, "snapshot_dir", config.SnapshotDir)
	return &HAL{config: config}, nil
}

func (h *HAL) ReadInput(keyDown func(vm.Key), keyUp func(vm.Key)) error {
	if h.frame >= h.config.Frames {
		slog.Info("headless run completed", "frames", h.frame, "beeps", h.beeps)
		return hal.ErrQuit
	}

	for _, press := range h.config.Keys {
		switch h.frame {
		case press.Frame:
			keyDown(press.Key)
		case press.Frame + press.Hold:
			keyUp(press.Key)
		}
	}

	return nil
}

func (h *HAL) Draw(gfx *vm.Framebuffer) error {
	h.last = *gfx

	if h.config.SnapshotDir == "" {
		return nil
	}

	path := filepath.Join(h.config.SnapshotDir, fmt.Sprintf("frame_%06d.png", h.frame))
	if err := SavePNG(path, gfx, h.config.Scale); err != nil {
		return err
	}

	slog.Debug("snapshot saved", "path", path)
	return nil
}

func (h *HAL) Beep() error {
	h.beeps++
	slog.Debug("hal: beep", "frame", h.frame)
	return nil
}

func (h *HAL) WaitForNextFrame() error {
	h.frame++
	return nil
}

// Frame returns the number of completed frames.
func (h *HAL) Frame() int {
	return h.frame
}

// Beeps returns how many times the sound timer expired.
func (h *HAL) Beeps() int {
	return h.beeps
}

// LastFrame returns the most recently drawn display.
func (h *HAL) LastFrame() vm.Framebuffer {
	return h.last
}

// Image renders a display as an image, each pixel scaled to a square.
func Image(gfx *vm.Framebuffer, scale int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, vm.ScreenWidth*scale, vm.ScreenHeight*scale))

	for y := 0; y < vm.ScreenHeight; y++ {
		for x := 0; x < vm.ScreenWidth; x++ {
			c := rgba(hal.PixelColor(gfx.At(x, y)))
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					img.SetRGBA(x*scale+dx, y*scale+dy, c)
				}
			}
		}
	}

	return img
}

// SavePNG writes a display to path as a PNG image.
func SavePNG(path string, gfx *vm.Framebuffer, scale int) (rerr error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create snapshot %q: %w", path, err)
	}
	defer func() {
		if err := f.Close(); err != nil && rerr == nil {
			rerr = fmt.Errorf("unable to close snapshot %q: %w", path, err)
		}
	}()

	if err := png.Encode(f, Image(gfx, scale)); err != nil {
		return fmt.Errorf("unable to encode snapshot %q: %w", path, err)
	}
	return nil
}

func rgba(c uint32) color.RGBA {
	return color.RGBA{
		R: uint8(c >> 16),
		G: uint8(c >> 8),
		B: uint8(c),
		A: 0xFF,
	}
}
