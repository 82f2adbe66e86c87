package ebitengine

import (
	"log/slog"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/kapitanov/chip8vm/internal/hal"
	"github.com/kapitanov/chip8vm/internal/vm"
)

// HAL is the runner side of the game. Ebitengine paces frames and presents
// the display itself, so Draw only converts pixels and WaitForNextFrame
// returns at once.
type HAL struct {
	pixels []byte // RGBA, row-major

	mutex  sync.Mutex
	queued []keyEvent
}

type keyEvent struct {
	key  vm.Key
	down bool
}

func (h *HAL) queueKey(key vm.Key, down bool) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.queued = append(h.queued, keyEvent{key: key, down: down})
}

// drainQueued replays queued key changes in order.
func (h *HAL) drainQueued(keyDown func(vm.Key), keyUp func(vm.Key)) {
	h.mutex.Lock()
	events := h.queued
	h.queued = nil
	h.mutex.Unlock()

	for _, e := range events {
		if e.down {
			keyDown(e.key)
		} else {
			keyUp(e.key)
		}
	}
}

func newHAL() *HAL {
	h := &HAL{pixels: make([]byte, vm.ScreenWidth*vm.ScreenHeight*4)}
	var blank vm.Framebuffer
	fillPixels(h.pixels, &blank)
	return h
}

func (h *HAL) ReadInput(keyDown func(vm.Key), keyUp func(vm.Key)) error {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		slog.Debug("hal: exit requested")
		return hal.ErrQuit
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyBackspace) {
		slog.Debug("hal: reboot requested")
		return hal.ErrReboot
	}

	h.drainQueued(keyDown, keyUp)

	for _, k := range inpututil.AppendJustPressedKeys(nil) {
		if key, ok := keyFor(k); ok {
			keyDown(key)
		}
	}

	for _, k := range inpututil.AppendJustReleasedKeys(nil) {
		if key, ok := keyFor(k); ok {
			keyUp(key)
		}
	}

	return nil
}

func (h *HAL) Draw(gfx *vm.Framebuffer) error {
	fillPixels(h.pixels, gfx)
	return nil
}

func (h *HAL) Beep() error {
	slog.Debug("hal: beep")
	return nil
}

func (h *HAL) WaitForNextFrame() error {
	return nil
}

var keyRunes = map[ebiten.Key]rune{
	ebiten.KeyDigit1: '1', ebiten.KeyDigit2: '2', ebiten.KeyDigit3: '3', ebiten.KeyDigit4: '4',
	ebiten.KeyQ: 'q', ebiten.KeyW: 'w', ebiten.KeyE: 'e', ebiten.KeyR: 'r',
	ebiten.KeyA: 'a', ebiten.KeyS: 's', ebiten.KeyD: 'd', ebiten.KeyF: 'f',
	ebiten.KeyZ: 'z', ebiten.KeyX: 'x', ebiten.KeyC: 'c', ebiten.KeyV: 'v',
}

func keyFor(k ebiten.Key) (vm.Key, bool) {
	r, ok := keyRunes[k]
	if !ok {
		return 0, false
	}
	return hal.KeyForRune(r)
}

// fillPixels writes the display into dst as RGBA bytes.
func fillPixels(dst []byte, gfx *vm.Framebuffer) {
	for i, on := range gfx {
		c := hal.PixelColor(on)
		dst[i*4] = uint8(c >> 16)
		dst[i*4+1] = uint8(c >> 8)
		dst[i*4+2] = uint8(c)
		dst[i*4+3] = 0xFF
	}
}
