//go:build js

package main

import (
	"log/slog"
	"os"
	"sync"
	"syscall/js"

	"github.com/kapitanov/chip8vm/internal/hal/ebitengine"
	"github.com/kapitanov/chip8vm/internal/runner"
	"github.com/kapitanov/chip8vm/internal/vm"
)

// In the browser the page drives the interpreter through a global chip8
// object: loadROM(Uint8Array), reset(), press(key) and release(key). Keyboard
// input reaches Ebitengine directly.
func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	r := runner.New(vm.New(), nil, runner.Options{})
	game := ebitengine.New(r, ebitengine.Config{Title: "CHIP-8", Scale: 10})

	loaded := make(chan struct{})
	var once sync.Once

	api := js.Global().Get("Object").New()
	api.Set("loadROM", js.FuncOf(func(_ js.Value, args []js.Value) any {
		if len(args) == 0 {
			return nil
		}

		program := make([]byte, args[0].Get("length").Int())
		js.CopyBytesToGo(program, args[0])
		game.LoadProgram(program)
		once.Do(func() { close(loaded) })
		return nil
	}))
	api.Set("reset", js.FuncOf(func(js.Value, []js.Value) any {
		game.Reboot()
		return nil
	}))
	api.Set("press", keyFunc(game.PressKey))
	api.Set("release", keyFunc(game.ReleaseKey))
	js.Global().Set("chip8", api)

	slog.Info("waiting for a ROM")
	<-loaded

	if err := game.Run(); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func keyFunc(fn func(vm.Key)) js.Func {
	return js.FuncOf(func(_ js.Value, args []js.Value) any {
		if len(args) == 0 {
			return nil
		}

		k := args[0].Int()
		if k < 0 || k >= vm.KeyCount {
			slog.Warn("ignoring key from page", "key", k)
			return nil
		}
		fn(vm.Key(k))
		return nil
	})
}
