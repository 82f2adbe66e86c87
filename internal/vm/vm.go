package vm

import (
	"fmt"
	"log/slog"
)

const (
	MemorySize    = 4096
	StackSize     = 16
	RegisterCount = 16
	ScreenWidth   = 64
	ScreenHeight  = 32
	KeyCount      = 16

	ProgramStart    = uint16(0x200)
	InstructionSize = 2

	// MaxProgramSize is the largest ROM that fits above ProgramStart.
	MaxProgramSize = MemorySize - int(ProgramStart)
)

// Framebuffer is a row-major 64x32 monochrome pixel grid.
type Framebuffer [ScreenWidth * ScreenHeight]bool

// At reports whether the pixel at (x, y) is on.
func (fb *Framebuffer) At(x, y int) bool {
	return fb[y*ScreenWidth+x]
}

type VM struct {
	memory    [MemorySize]uint8    // Memory (4k)
	registers [RegisterCount]uint8 // V registers (V0-VF)

	stack [StackSize]uint16 // Stack
	sp    uint16            // Stack pointer

	pc    uint16 // Program counter
	index uint16 // Index register

	delayTimer uint8 // Delay timer
	soundTimer uint8 // Sound timer

	gfx      Framebuffer    // Graphics buffer
	keypad   [KeyCount]bool // Keypad
	drawFlag bool           // Indicates a draw has occurred
	looping  bool           // Last instruction jumped to itself

	random RandomSource
}

// Option configures a VM at construction time.
type Option func(vm *VM)

// WithRandom sets the source of bytes for the rand instruction.
func WithRandom(src RandomSource) Option {
	return func(vm *VM) {
		vm.random = src
	}
}

// WithSeed makes the rand instruction deterministic.
func WithSeed(seed uint64) Option {
	return WithRandom(NewSeededRandom(seed))
}

func New(opts ...Option) *VM {
	vm := &VM{
		random: NewRandom(),
	}
	for _, opt := range opts {
		opt(vm)
	}

	vm.Reset()
	return vm
}

type Key uint8

const (
	Key0 = Key(iota)
	Key1
	Key2
	Key3
	Key4
	Key5
	Key6
	Key7
	Key8
	Key9
	KeyA
	KeyB
	KeyC
	KeyD
	KeyE
	KeyF
)

// Reset restores the power-on state. The loaded program is discarded.
func (vm *VM) Reset() {
	vm.pc = ProgramStart
	vm.index = 0
	vm.sp = 0

	// Clear the display
	vm.gfx = Framebuffer{}
	vm.drawFlag = true
	vm.looping = false

	// Clear the stack, keypad, and V registers
	vm.stack = [StackSize]uint16{}
	vm.keypad = [KeyCount]bool{}
	vm.registers = [RegisterCount]uint8{}

	// Clear memory and load font set
	vm.memory = [MemorySize]uint8{}
	copy(vm.memory[FontStart:], chip8Font[:])

	// Reset timers
	vm.delayTimer = 0
	vm.soundTimer = 0

	slog.Debug("reset", "pc", fmt.Sprintf("0x%04x", vm.pc), "font", len(chip8Font))
}

// LoadProgram copies a ROM image into memory at ProgramStart. Registers,
// stack and display are left untouched.
func (vm *VM) LoadProgram(program []byte) error {
	if len(program) > MaxProgramSize {
		return fmt.Errorf("%w: %d bytes, at most %d fit", ErrProgramTooLarge, len(program), MaxProgramSize)
	}

	slog.Info("load program", "at", fmt.Sprintf("0x%04x", ProgramStart), "n", len(program))
	copy(vm.memory[ProgramStart:], program)
	return nil
}

// Step executes exactly one instruction. On error the program counter is
// left pointing at the faulting instruction.
func (vm *VM) Step() error {
	opcode, err := vm.fetchOpcode()
	if err != nil {
		return err
	}

	pc := vm.pc
	vm.pc += InstructionSize

	if err := vm.executeOpcode(pc, opcode); err != nil {
		vm.pc = pc
		return err
	}

	return nil
}

// TickTimers decrements both timers by one, flooring at zero. It reports
// whether the sound timer expired during this tick.
func (vm *VM) TickTimers() bool {
	if vm.delayTimer > 0 {
		vm.delayTimer--
	}

	if vm.soundTimer > 0 {
		vm.soundTimer--
		return vm.soundTimer == 0
	}

	return false
}

// SetKey updates the pressed state of a keypad key.
func (vm *VM) SetKey(key Key, pressed bool) error {
	if int(key) >= KeyCount {
		return fmt.Errorf("%w: 0x%02x", ErrInvalidKey, uint8(key))
	}

	vm.keypad[key] = pressed
	return nil
}

// Framebuffer returns a snapshot of the display.
func (vm *VM) Framebuffer() Framebuffer {
	return vm.gfx
}

// Dirty reports whether the display changed since the last ClearDirty.
func (vm *VM) Dirty() bool {
	return vm.drawFlag
}

func (vm *VM) ClearDirty() {
	vm.drawFlag = false
}

// Looping reports whether the last instruction was a jump to itself, which
// programs conventionally use to halt.
func (vm *VM) Looping() bool {
	return vm.looping
}

// SoundActive reports whether the sound timer is running.
func (vm *VM) SoundActive() bool {
	return vm.soundTimer > 0
}

func (vm *VM) PC() uint16 { return vm.pc }

func (vm *VM) Index() uint16 { return vm.index }

func (vm *VM) SP() uint16 { return vm.sp }

func (vm *VM) DelayTimer() uint8 { return vm.delayTimer }

func (vm *VM) SoundTimer() uint8 { return vm.soundTimer }

func (vm *VM) Register(i int) uint8 { return vm.registers[i&0x0F] }

func (vm *VM) Key(key Key) bool {
	return int(key) < KeyCount && vm.keypad[key]
}

func (vm *VM) fetchOpcode() (uint16, error) {
	if int(vm.pc)+1 >= MemorySize {
		return 0, fmt.Errorf("%w: fetch at 0x%04x", ErrMemoryOutOfBounds, vm.pc)
	}

	hi := vm.memory[vm.pc]
	lo := vm.memory[vm.pc+1]

	opcode := uint16(hi)<<8 | uint16(lo) // Op code is two bytes
	return opcode, nil
}

// checkRange verifies that n bytes starting at addr lie inside memory.
func checkRange(addr uint16, n int) error {
	if int(addr)+n > MemorySize {
		return fmt.Errorf("%w: 0x%04x+%d", ErrMemoryOutOfBounds, addr, n)
	}
	return nil
}
