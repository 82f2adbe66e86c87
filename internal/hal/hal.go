// Package hal holds what the front ends share: control errors, the logical
// keypad layout and the display palette.
package hal

import (
	"errors"

	"github.com/kapitanov/chip8vm/internal/vm"
)

var (
	ErrReboot = errors.New("reboot")
	ErrQuit   = errors.New("quit")
)

const (
	BackgroundColor = uint32(0x000000)
	ForegroundColor = uint32(0xbea700)
)

// Physical                Logical
// ================        =================
// | 1 | 2 | 3 | 4 |       | 1 | 2 | 3 | C |
// | q | w | e | r |       | 4 | 5 | 6 | D |
// | a | s | d | f |  <=>  | 7 | 8 | 9 | E |
// | z | x | c | v |       | A | 0 | B | F |
// ================        =================
var keyLayout = map[rune]vm.Key{
	'1': vm.Key1, '2': vm.Key2, '3': vm.Key3, '4': vm.KeyC,
	'q': vm.Key4, 'w': vm.Key5, 'e': vm.Key6, 'r': vm.KeyD,
	'a': vm.Key7, 's': vm.Key8, 'd': vm.Key9, 'f': vm.KeyE,
	'z': vm.KeyA, 'x': vm.Key0, 'c': vm.KeyB, 'v': vm.KeyF,
}

// KeyForRune maps a character of the physical layout to a keypad key.
// Upper case letters map like their lower case form.
func KeyForRune(r rune) (vm.Key, bool) {
	if r >= 'A' && r <= 'Z' {
		r += 'a' - 'A'
	}

	key, ok := keyLayout[r]
	return key, ok
}

// Runes returns the physical characters bound to keypad keys.
func Runes() []rune {
	return []rune("1234qwerasdfzxcv")
}

// PixelColor returns the ARGB color of a display pixel.
func PixelColor(on bool) uint32 {
	if on {
		return ForegroundColor
	}
	return BackgroundColor
}
