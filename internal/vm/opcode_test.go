package vm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpcode_addCarry(t *testing.T) {
	vm := New()

	for a := 0; a < 256; a++ {
		for b := 0; b < 256; b++ {
			vm.pc = ProgramStart
			vm.registers[1] = uint8(a)
			vm.registers[2] = uint8(b)

			exec(t, vm, 0x8124)

			require.Equal(t, uint8((a+b)%256), vm.registers[1], "a=%d b=%d", a, b)
			wantFlag := uint8(0)
			if a+b > 255 {
				wantFlag = 1
			}
			require.Equal(t, wantFlag, vm.registers[0xF], "a=%d b=%d", a, b)
		}
	}
}

func TestOpcode_subBorrow(t *testing.T) {
	vm := New()

	for a := 0; a < 256; a++ {
		for b := 0; b < 256; b++ {
			vm.pc = ProgramStart
			vm.registers[1] = uint8(a)
			vm.registers[2] = uint8(b)

			exec(t, vm, 0x8125)

			require.Equal(t, uint8((a-b+256)%256), vm.registers[1], "a=%d b=%d", a, b)
			wantFlag := uint8(1)
			if a < b {
				wantFlag = 0
			}
			require.Equal(t, wantFlag, vm.registers[0xF], "a=%d b=%d", a, b)
		}
	}
}

func TestOpcode_reverseSub(t *testing.T) {
	testCases := []struct {
		desc     string
		x, y     uint8
		want     uint8
		wantFlag uint8
	}{
		{desc: "no borrow", x: 3, y: 10, want: 7, wantFlag: 1},
		{desc: "equal", x: 5, y: 5, want: 0, wantFlag: 1},
		{desc: "borrow", x: 10, y: 3, want: 249, wantFlag: 0},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			vm := New()
			vm.registers[1] = tC.x
			vm.registers[2] = tC.y

			exec(t, vm, 0x8127)

			assert.Equal(t, tC.want, vm.registers[1])
			assert.Equal(t, tC.wantFlag, vm.registers[0xF])
		})
	}
}

func TestOpcode_shift(t *testing.T) {
	testCases := []struct {
		desc     string
		opcode   uint16
		x, y     uint8
		want     uint8
		wantFlag uint8
	}{
		{desc: "shr odd", opcode: 0x8126, x: 0x05, y: 0xFF, want: 0x02, wantFlag: 1},
		{desc: "shr even", opcode: 0x8126, x: 0x04, y: 0x01, want: 0x02, wantFlag: 0},
		{desc: "shl top bit set", opcode: 0x812E, x: 0x81, y: 0x00, want: 0x02, wantFlag: 1},
		{desc: "shl top bit clear", opcode: 0x812E, x: 0x41, y: 0xFF, want: 0x82, wantFlag: 0},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			vm := New()
			vm.registers[1] = tC.x
			vm.registers[2] = tC.y

			exec(t, vm, tC.opcode)

			assert.Equal(t, tC.want, vm.registers[1])
			assert.Equal(t, tC.wantFlag, vm.registers[0xF])
			assert.Equal(t, tC.y, vm.registers[2])
		})
	}
}

func TestOpcode_flagOverwritesVF(t *testing.T) {
	vm := New()
	vm.registers[0xF] = 200
	vm.registers[1] = 100

	exec(t, vm, 0x8F14)

	assert.Equal(t, uint8(1), vm.registers[0xF])
}

func TestOpcode_logic(t *testing.T) {
	testCases := []struct {
		desc   string
		opcode uint16
		want   uint8
	}{
		{desc: "mov", opcode: 0x8120, want: 0x0F},
		{desc: "or", opcode: 0x8121, want: 0x3F},
		{desc: "and", opcode: 0x8122, want: 0x0C},
		{desc: "xor", opcode: 0x8123, want: 0x33},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			vm := New()
			vm.registers[1] = 0x3C
			vm.registers[2] = 0x0F

			exec(t, vm, tC.opcode)

			assert.Equal(t, tC.want, vm.registers[1])
		})
	}
}

func TestOpcode_immediate(t *testing.T) {
	vm := New()

	exec(t, vm, 0x6AFE)
	assert.Equal(t, uint8(0xFE), vm.registers[0xA])

	vm.registers[0xF] = 9
	exec(t, vm, 0x7A03)
	assert.Equal(t, uint8(0x01), vm.registers[0xA])
	assert.Equal(t, uint8(9), vm.registers[0xF], "add immediate leaves VF alone")
}

func TestOpcode_skip(t *testing.T) {
	testCases := []struct {
		desc   string
		opcode uint16
		v1, v2 uint8
		skip   bool
	}{
		{desc: "skeq imm taken", opcode: 0x3142, v1: 0x42, skip: true},
		{desc: "skeq imm not taken", opcode: 0x3142, v1: 0x41, skip: false},
		{desc: "skne imm taken", opcode: 0x4142, v1: 0x41, skip: true},
		{desc: "skne imm not taken", opcode: 0x4142, v1: 0x42, skip: false},
		{desc: "skeq reg taken", opcode: 0x5120, v1: 7, v2: 7, skip: true},
		{desc: "skeq reg not taken", opcode: 0x5120, v1: 7, v2: 8, skip: false},
		{desc: "skne reg taken", opcode: 0x9120, v1: 7, v2: 8, skip: true},
		{desc: "skne reg not taken", opcode: 0x9120, v1: 7, v2: 7, skip: false},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			vm := New()
			vm.registers[1] = tC.v1
			vm.registers[2] = tC.v2

			exec(t, vm, tC.opcode)

			want := ProgramStart + InstructionSize
			if tC.skip {
				want += InstructionSize
			}
			assert.Equal(t, want, vm.PC())
		})
	}
}

func TestOpcode_keySkip(t *testing.T) {
	vm := New()
	vm.registers[3] = uint8(KeyE)

	exec(t, vm, 0xE39E)
	assert.Equal(t, uint16(0x202), vm.PC(), "not pressed, no skip")

	require.NoError(t, vm.SetKey(KeyE, true))
	exec(t, vm, 0xE39E)
	assert.Equal(t, uint16(0x206), vm.PC(), "pressed, skip")

	exec(t, vm, 0xE3A1)
	assert.Equal(t, uint16(0x208), vm.PC(), "pressed, no skip")

	require.NoError(t, vm.SetKey(KeyE, false))
	exec(t, vm, 0xE3A1)
	assert.Equal(t, uint16(0x20C), vm.PC(), "not pressed, skip")

	vm.registers[3] = 0x10
	vm.memory[vm.pc] = 0xE3
	vm.memory[vm.pc+1] = 0x9E
	assert.ErrorIs(t, vm.Step(), ErrInvalidKey)
	assert.Equal(t, uint16(0x20C), vm.PC())
}

func TestOpcode_keyWait(t *testing.T) {
	vm := newTestVM(t, 0xF5, 0x0A, 0x00, 0x00)
	before := vm.registers

	require.NoError(t, vm.Step())
	require.NoError(t, vm.Step())

	assert.Equal(t, ProgramStart, vm.PC())
	assert.Equal(t, before, vm.registers)

	require.NoError(t, vm.SetKey(KeyC, true))
	require.NoError(t, vm.SetKey(Key7, true))
	require.NoError(t, vm.Step())

	assert.Equal(t, ProgramStart+InstructionSize, vm.PC())
	assert.Equal(t, uint8(Key7), vm.registers[5])
}

func TestOpcode_callReturn(t *testing.T) {
	vm := newTestVM(t,
		0x22, 0x06, // jsr 0x206
		0x60, 0x01, // mov v0, 1
		0x00, 0x00, // nop
		0x61, 0x02, // mov v1, 2
		0x00, 0xEE, // rts
	)

	require.NoError(t, vm.Step())
	assert.Equal(t, uint16(0x206), vm.PC())
	assert.Equal(t, uint16(1), vm.SP())

	require.NoError(t, vm.Step())
	require.NoError(t, vm.Step())
	assert.Equal(t, uint16(0x202), vm.PC())
	assert.Equal(t, uint16(0), vm.SP())

	require.NoError(t, vm.Step())
	assert.Equal(t, uint8(1), vm.registers[0])
	assert.Equal(t, uint8(2), vm.registers[1])
}

func TestOpcode_stackErrors(t *testing.T) {
	t.Run("overflow", func(t *testing.T) {
		// jsr 0x200 recurses forever
		vm := newTestVM(t, 0x22, 0x00)
		for i := 0; i < StackSize; i++ {
			require.NoError(t, vm.Step())
		}

		err := vm.Step()

		assert.ErrorIs(t, err, ErrStackOverflow)
		assert.NotErrorIs(t, err, ErrMemoryOutOfBounds)
		assert.Equal(t, uint16(StackSize), vm.SP())
		assert.Equal(t, ProgramStart, vm.PC())
	})

	t.Run("underflow", func(t *testing.T) {
		vm := newTestVM(t, 0x00, 0xEE)

		err := vm.Step()

		assert.ErrorIs(t, err, ErrStackUnderflow)
		assert.Equal(t, ProgramStart, vm.PC())
	})
}

func TestOpcode_jump(t *testing.T) {
	vm := New()

	exec(t, vm, 0x1345)
	assert.Equal(t, uint16(0x345), vm.PC())
	assert.False(t, vm.Looping())

	vm.registers[0] = 0x10
	exec(t, vm, 0xB300)
	assert.Equal(t, uint16(0x310), vm.PC())

	exec(t, vm, 0x1310)
	assert.Equal(t, uint16(0x310), vm.PC())
	assert.True(t, vm.Looping())
}

func TestOpcode_index(t *testing.T) {
	vm := New()

	exec(t, vm, 0xA123)
	assert.Equal(t, uint16(0x123), vm.Index())

	vm.registers[4] = 0x10
	exec(t, vm, 0xF41E)
	assert.Equal(t, uint16(0x133), vm.Index())

	vm.index = 0xFFFF
	vm.registers[4] = 2
	exec(t, vm, 0xF41E)
	assert.Equal(t, uint16(0x0001), vm.Index())

	vm.registers[4] = 0xB
	exec(t, vm, 0xF429)
	assert.Equal(t, uint16(0xB*FontGlyphSize), vm.Index())
	assert.Equal(t, uint8(0xE0), vm.memory[vm.Index()])
}

func TestOpcode_random(t *testing.T) {
	vm := New(WithRandom(&fixedRandom{bytes: []uint8{0xA7, 0xFF}}))

	exec(t, vm, 0xC20F)
	assert.Equal(t, uint8(0x07), vm.registers[2])

	exec(t, vm, 0xC2F0)
	assert.Equal(t, uint8(0xF0), vm.registers[2])

	seeded := New(WithSeed(1))
	exec(t, seeded, 0xC30F)
	assert.Zero(t, seeded.registers[3]&0xF0)
}

func TestOpcode_timers(t *testing.T) {
	vm := New()
	vm.registers[1] = 30
	vm.registers[2] = 40

	exec(t, vm, 0xF115)
	exec(t, vm, 0xF218)
	assert.Equal(t, uint8(30), vm.DelayTimer())
	assert.Equal(t, uint8(40), vm.SoundTimer())

	vm.TickTimers()
	exec(t, vm, 0xF307)
	assert.Equal(t, uint8(29), vm.registers[3])
}

func TestOpcode_memory(t *testing.T) {
	t.Run("bcd", func(t *testing.T) {
		vm := New()
		vm.registers[6] = 254
		vm.index = 0x300

		exec(t, vm, 0xF633)

		assert.Equal(t, []uint8{2, 5, 4}, vm.memory[0x300:0x303])
		assert.Equal(t, uint16(0x300), vm.Index())
	})

	t.Run("store and load", func(t *testing.T) {
		vm := New()
		for i := range vm.registers {
			vm.registers[i] = uint8(i + 1)
		}
		vm.index = 0x400

		exec(t, vm, 0xF355)

		assert.Equal(t, []uint8{1, 2, 3, 4, 0}, vm.memory[0x400:0x405])
		assert.Equal(t, uint16(0x400), vm.Index())

		vm.registers = [RegisterCount]uint8{}
		exec(t, vm, 0xF265)

		assert.Equal(t, uint8(1), vm.registers[0])
		assert.Equal(t, uint8(3), vm.registers[2])
		assert.Equal(t, uint8(0), vm.registers[3])
	})

	t.Run("out of bounds", func(t *testing.T) {
		testCases := []struct {
			desc   string
			opcode uint16
			index  uint16
		}{
			{desc: "bcd", opcode: 0xF033, index: MemorySize - 2},
			{desc: "store", opcode: 0xF355, index: MemorySize - 3},
			{desc: "load", opcode: 0xF165, index: MemorySize - 1},
			{desc: "sprite", opcode: 0xD005, index: MemorySize - 4},
		}
		for _, tC := range testCases {
			t.Run(tC.desc, func(t *testing.T) {
				vm := New()
				vm.index = tC.index
				vm.memory[vm.pc] = uint8(tC.opcode >> 8)
				vm.memory[vm.pc+1] = uint8(tC.opcode)
				registers := vm.registers

				err := vm.Step()

				assert.ErrorIs(t, err, ErrMemoryOutOfBounds)
				assert.Equal(t, ProgramStart, vm.PC())
				assert.Equal(t, registers, vm.registers)
				assert.Equal(t, Framebuffer{}, vm.Framebuffer())
			})
		}
	})
}

func TestOpcode_sprite(t *testing.T) {
	t.Run("draw twice restores", func(t *testing.T) {
		vm := New()
		vm.registers[1] = 10
		vm.registers[2] = 5
		vm.registers[0xF] = 1
		vm.index = 0x300
		vm.memory[0x300] = 0b11000011
		vm.memory[0x301] = 0b00111100

		exec(t, vm, 0xD122)

		assert.Equal(t, uint8(0), vm.registers[0xF])
		assert.True(t, vm.gfx[5*ScreenWidth+10])
		assert.False(t, vm.gfx[5*ScreenWidth+12])
		assert.True(t, vm.gfx[6*ScreenWidth+12])
		fb := vm.Framebuffer()
		assert.True(t, fb.At(17, 5))

		exec(t, vm, 0xD122)

		assert.Equal(t, uint8(1), vm.registers[0xF])
		assert.Equal(t, Framebuffer{}, vm.Framebuffer())
	})

	t.Run("wraps around screen", func(t *testing.T) {
		vm := New()
		vm.registers[1] = 62
		vm.registers[2] = 31
		vm.index = 0x300
		vm.memory[0x300] = 0xF0
		vm.memory[0x301] = 0x80

		exec(t, vm, 0xD122)

		fb := vm.Framebuffer()
		assert.True(t, fb.At(62, 31))
		assert.True(t, fb.At(63, 31))
		assert.True(t, fb.At(0, 31))
		assert.True(t, fb.At(1, 31))
		assert.True(t, fb.At(62, 0))
		assert.False(t, fb.At(63, 0))
	})

	t.Run("font glyph", func(t *testing.T) {
		vm := New()
		vm.registers[0] = 0x1

		exec(t, vm, 0xF029)
		exec(t, vm, 0xD115)

		fb := vm.Framebuffer()
		assert.True(t, fb.At(2, 0))
		assert.True(t, fb.At(1, 1))
		assert.True(t, fb.At(3, 4))
		assert.False(t, fb.At(0, 0))
	})
}

func TestOpcode_unknown(t *testing.T) {
	for _, opcode := range []uint16{0x0123, 0x5121, 0x800F, 0x9AB1, 0xE1FF, 0xF0FF} {
		vm := New()
		vm.memory[vm.pc] = uint8(opcode >> 8)
		vm.memory[vm.pc+1] = uint8(opcode)

		err := vm.Step()

		require.ErrorIs(t, err, ErrUnknownOpcode)
		var opErr *OpcodeError
		require.True(t, errors.As(err, &opErr))
		assert.Equal(t, opcode, opErr.Opcode)
		assert.Equal(t, ProgramStart, opErr.PC)
		assert.Equal(t, ProgramStart, vm.PC())
	}

	err := &OpcodeError{PC: 0x204, Opcode: 0x5AB1}
	assert.Equal(t, [4]uint8{0x5, 0xA, 0xB, 0x1}, err.Nibbles())
	assert.Equal(t, "unknown op code 0x5AB1 at 0x0204 (nibbles 5 A B 1)", err.Error())
}

func TestDecode(t *testing.T) {
	for opcode := 0; opcode <= 0xFFFF; opcode++ {
		instr := decode(uint16(opcode))

		if instr == unknownInstruction {
			assert.Nil(t, instr.Execute, "opcode 0x%04X", opcode)
			continue
		}
		require.NotNil(t, instr.Execute, "opcode 0x%04X", opcode)
	}
}

func TestOpcode_unknownLeavesState(t *testing.T) {
	vm := newTestVM(t, 0x12, 0x00, 0x51, 0x21) // jmp 0x200; unknown
	require.NoError(t, vm.Step())
	require.True(t, vm.Looping())
	before := *vm

	vm.pc = 0x202
	before.pc = 0x202
	err := vm.Step()

	require.ErrorIs(t, err, ErrUnknownOpcode)
	assert.Equal(t, before, *vm)
}

func TestDisassemble(t *testing.T) {
	testCases := []struct {
		opcode uint16
		want   string
	}{
		{opcode: 0x0000, want: "nop"},
		{opcode: 0x00E0, want: "cls"},
		{opcode: 0x00EE, want: "rts"},
		{opcode: 0x1208, want: "jmp 0x0208"},
		{opcode: 0x6105, want: "mov v1, 5"},
		{opcode: 0x8AB4, want: "add va, vb"},
		{opcode: 0xC30F, want: "rand v3, 0x0f"},
		{opcode: 0xD125, want: "sprite v1, v2, 5"},
		{opcode: 0xF555, want: "str v0-v5"},
		{opcode: 0x5121, want: "unknown 0x5121"},
	}
	for _, tC := range testCases {
		t.Run(tC.want, func(t *testing.T) {
			assert.Equal(t, tC.want, Disassemble(tC.opcode))
		})
	}
}
