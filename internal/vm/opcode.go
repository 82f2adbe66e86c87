package vm

import (
	"context"
	"fmt"
	"log/slog"
)

// operands holds the fields every instruction may draw from an opcode.
type operands struct {
	opcode uint16
	x      uint16 // second nibble
	y      uint16 // third nibble
	n      uint16 // fourth nibble
	nn     uint8  // low byte
	nnn    uint16 // low 12 bits
}

func operandsOf(opcode uint16) operands {
	return operands{
		opcode: opcode,
		x:      (opcode & 0x0F00) >> 8,
		y:      (opcode & 0x00F0) >> 4,
		n:      opcode & 0x000F,
		nn:     uint8(opcode & 0x00FF),
		nnn:    opcode & 0x0FFF,
	}
}

type instruction struct {
	Name    func(op operands) string
	Execute func(vm *VM, op operands) error
}

// Disassemble renders the mnemonic for a single opcode.
func Disassemble(opcode uint16) string {
	return decode(opcode).Name(operandsOf(opcode))
}

// executeOpcode runs an already fetched opcode. vm.pc points past it.
func (vm *VM) executeOpcode(pc, opcode uint16) error {
	instr := decode(opcode)
	op := operandsOf(opcode)

	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		slog.Debug(
			"exec",
			"pc", fmt.Sprintf("0x%04x", pc),
			"opcode", fmt.Sprintf("0x%04x", opcode),
			"instr", instr.Name(op),
		)
	}

	if instr == unknownInstruction {
		return &OpcodeError{PC: pc, Opcode: opcode}
	}

	vm.looping = false
	if err := instr.Execute(vm, op); err != nil {
		return fmt.Errorf("%s at 0x%04x: %w", instr.Name(op), pc, err)
	}

	return nil
}

func decode(opcode uint16) *instruction {
	switch opcode & 0xF000 {
	case 0x0000:
		switch opcode {
		case 0x0000:
			// 0000 - Do nothing
			return nopInstruction

		case 0x00E0:
			// 00E0 - Clear screen
			return clsInstruction

		case 0x00EE:
			// 00EE - Return from subroutine
			return rtsInstruction
		}

	case 0x1000:
		// 1NNN - Jumps to address NNN
		return jmpInstruction

	case 0x2000:
		// 2NNN - Calls subroutine at NNN
		return jsrInstruction

	case 0x3000:
		// 3XNN - Skips the next instruction if VX equals NN
		return skeq1Instruction

	case 0x4000:
		// 4XNN - Skips the next instruction if VX does not equal NN
		return skne1Instruction

	case 0x5000:
		// 5XY0 - Skips the next instruction if VX equals VY
		if opcode&0x000F == 0 {
			return skeq2Instruction
		}

	case 0x6000:
		// 6XNN - Sets VX to NN
		return mov1Instruction

	case 0x7000:
		// 7XNN - Adds NN to VX, no carry
		return add1Instruction

	case 0x8000:
		// 8XY_
		switch opcode & 0x000F {
		case 0x0000:
			// 8XY0 - Sets VX to the value of VY
			return mov2Instruction

		case 0x0001:
			// 8XY1 - Sets VX to (VX OR VY)
			return orInstruction

		case 0x0002:
			// 8XY2 - Sets VX to (VX AND VY)
			return andInstruction

		case 0x0003:
			// 8XY3 - Sets VX to (VX XOR VY)
			return xorInstruction

		case 0x0004:
			// 8XY4 - Adds VY to VX. VF is set to 1 when there's a carry, and to 0 when there isn't.
			return add2Instruction

		case 0x0005:
			// 8XY5 - VY is subtracted from VX. VF is set to 0 when there's a borrow, and 1 when there isn't.
			return subInstruction

		case 0x0006:
			// 8XY6 - Shifts VX right by one. VF is set to the value of the least significant bit of VX before the shift.
			return shrInstruction

		case 0x0007:
			// 8XY7 - Sets VX to VY minus VX. VF is set to 0 when there's a borrow, and 1 when there isn't.
			return rsbInstruction

		case 0x000E:
			// 8XYE - Shifts VX left by one. VF is set to the value of the most significant bit of VX before the shift.
			return shlInstruction
		}

	case 0x9000:
		// 9XY0 - Skips the next instruction if VX doesn't equal VY
		if opcode&0x000F == 0 {
			return skne2Instruction
		}

	case 0xA000:
		// ANNN - Sets I to the address NNN
		return mviInstruction

	case 0xB000:
		// BNNN - Jumps to the address NNN plus V0
		return jmiInstruction

	case 0xC000:
		// CXNN - Sets VX to a random number, masked by NN
		return randInstruction

	case 0xD000:
		// DXYN - Draws an 8 pixel wide, N pixel high sprite from memory at I
		// at (VX, VY). VF is set to 1 if any pixel is flipped from set to unset.
		return spriteInstruction

	case 0xE000:
		switch opcode & 0x00FF {
		case 0x009E:
			// EX9E - Skips the next instruction if the key stored in VX is pressed
			return skprInstruction

		case 0x00A1:
			// EXA1 - Skips the next instruction if the key stored in VX isn't pressed
			return skupInstruction
		}

	case 0xF000:
		switch opcode & 0x00FF {
		case 0x0007:
			// FX07 - Sets VX to the value of the delay timer
			return gdelayInstruction

		case 0x000A:
			// FX0A - A key press is awaited, and then stored in VX
			return keyInstruction

		case 0x0015:
			// FX15 - Sets the delay timer to VX
			return sdelayInstruction

		case 0x0018:
			// FX18 - Sets the sound timer to VX
			return ssoundInstruction

		case 0x001E:
			// FX1E - Adds VX to I
			return adiInstruction

		case 0x0029:
			// FX29 - Sets I to the location of the font glyph for the digit in VX
			return fontInstruction

		case 0x0033:
			// FX33 - Stores the BCD representation of VX at I, I+1 and I+2
			return bcdInstruction

		case 0x0055:
			// FX55 - Stores V0 to VX in memory starting at address I
			return strInstruction

		case 0x0065:
			// FX65 - Reads memory starting at address I into V0...VX
			return ldrInstruction
		}
	}

	return unknownInstruction
}

// skipIf advances past the next instruction when cond holds.
func (vm *VM) skipIf(cond bool) {
	if cond {
		vm.pc += InstructionSize
	}
}

// setFlag writes VF. It runs after the destination register is written,
// so the flag wins when VX is VF.
func (vm *VM) setFlag(cond bool) {
	if cond {
		vm.registers[0x0F] = 1
	} else {
		vm.registers[0x0F] = 0
	}
}

var (
	// 0000	nop
	nopInstruction = &instruction{
		Name: func(op operands) string {
			return "nop"
		},
		Execute: func(vm *VM, op operands) error {
			return nil
		},
	}

	// 00E0	cls	Clear the screen
	clsInstruction = &instruction{
		Name: func(op operands) string {
			return "cls"
		},
		Execute: func(vm *VM, op operands) error {
			vm.gfx = Framebuffer{}
			vm.drawFlag = true
			return nil
		},
	}

	// 00EE	rts	return from subroutine call
	rtsInstruction = &instruction{
		Name: func(op operands) string {
			return "rts"
		},
		Execute: func(vm *VM, op operands) error {
			if vm.sp == 0 {
				return ErrStackUnderflow
			}
			vm.sp--
			vm.pc = vm.stack[vm.sp]
			return nil
		},
	}

	// 1xxx	jmp xxx	jump to address xxx
	jmpInstruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("jmp 0x%04x", op.nnn)
		},
		Execute: func(vm *VM, op operands) error {
			vm.looping = op.nnn == vm.pc-InstructionSize
			vm.pc = op.nnn
			return nil
		},
	}

	// 2xxx	jsr xxx	jump to subroutine at address xxx
	jsrInstruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("jsr 0x%04x", op.nnn)
		},
		Execute: func(vm *VM, op operands) error {
			if int(vm.sp) >= StackSize {
				return ErrStackOverflow
			}
			vm.stack[vm.sp] = vm.pc
			vm.sp++
			vm.pc = op.nnn
			return nil
		},
	}

	// 3rxx	skeq vr,xx	skip if register r = constant
	skeq1Instruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("skeq v%x, %d", op.x, op.nn)
		},
		Execute: func(vm *VM, op operands) error {
			vm.skipIf(vm.registers[op.x] == op.nn)
			return nil
		},
	}

	// 4rxx	skne vr,xx	skip if register r <> constant
	skne1Instruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("skne v%x, %d", op.x, op.nn)
		},
		Execute: func(vm *VM, op operands) error {
			vm.skipIf(vm.registers[op.x] != op.nn)
			return nil
		},
	}

	// 5ry0	skeq vr,vy	skip if register r = register y
	skeq2Instruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("skeq v%x, v%x", op.x, op.y)
		},
		Execute: func(vm *VM, op operands) error {
			vm.skipIf(vm.registers[op.x] == vm.registers[op.y])
			return nil
		},
	}

	// 6rxx	mov vr,xx	move constant to register r
	mov1Instruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("mov v%x, %d", op.x, op.nn)
		},
		Execute: func(vm *VM, op operands) error {
			vm.registers[op.x] = op.nn
			return nil
		},
	}

	// 7rxx	add vr,xx	add constant to register r	No carry generated
	add1Instruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("add v%x, %d", op.x, op.nn)
		},
		Execute: func(vm *VM, op operands) error {
			vm.registers[op.x] += op.nn
			return nil
		},
	}

	// 8ry0	mov vr,vy	move register vy into vr
	mov2Instruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("mov v%x, v%x", op.x, op.y)
		},
		Execute: func(vm *VM, op operands) error {
			vm.registers[op.x] = vm.registers[op.y]
			return nil
		},
	}

	// 8ry1	or rx,ry	or register vy into register vx
	orInstruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("or v%x, v%x", op.x, op.y)
		},
		Execute: func(vm *VM, op operands) error {
			vm.registers[op.x] |= vm.registers[op.y]
			return nil
		},
	}

	// 8ry2	and rx,ry	and register vy into register vx
	andInstruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("and v%x, v%x", op.x, op.y)
		},
		Execute: func(vm *VM, op operands) error {
			vm.registers[op.x] &= vm.registers[op.y]
			return nil
		},
	}

	// 8ry3	xor rx,ry	exclusive or register ry into register rx
	xorInstruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("xor v%x, v%x", op.x, op.y)
		},
		Execute: func(vm *VM, op operands) error {
			vm.registers[op.x] ^= vm.registers[op.y]
			return nil
		},
	}

	// 8ry4	add vr,vy	add register vy to vr,carry in vf
	add2Instruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("add v%x, v%x", op.x, op.y)
		},
		Execute: func(vm *VM, op operands) error {
			sum := uint16(vm.registers[op.x]) + uint16(vm.registers[op.y])

			vm.registers[op.x] = uint8(sum)
			vm.setFlag(sum > 0xFF)
			return nil
		},
	}

	// 8ry5	sub vr,vy	subtract register vy from vr,borrow in vf	vf set to 0 if borrows
	subInstruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("sub v%x, v%x", op.x, op.y)
		},
		Execute: func(vm *VM, op operands) error {
			x := vm.registers[op.x]
			y := vm.registers[op.y]

			vm.registers[op.x] = x - y
			vm.setFlag(x >= y)
			return nil
		},
	}

	// 8r06	shr vr	shift register vr right, bit 0 goes into register vf
	shrInstruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("shr v%x", op.x)
		},
		Execute: func(vm *VM, op operands) error {
			x := vm.registers[op.x]

			vm.registers[op.x] = x >> 1
			vm.registers[0x0F] = x & 0x1
			return nil
		},
	}

	// 8ry7	rsb vr,vy	subtract register vr from register vy, result in vr	vf set to 0 if borrows
	rsbInstruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("rsb v%x, v%x", op.x, op.y)
		},
		Execute: func(vm *VM, op operands) error {
			x := vm.registers[op.x]
			y := vm.registers[op.y]

			vm.registers[op.x] = y - x
			vm.setFlag(y >= x)
			return nil
		},
	}

	// 8r0e	shl vr	shift register vr left,bit 7 goes into register vf
	shlInstruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("shl v%x", op.x)
		},
		Execute: func(vm *VM, op operands) error {
			x := vm.registers[op.x]

			vm.registers[op.x] = x << 1
			vm.registers[0x0F] = x >> 7
			return nil
		},
	}

	// 9ry0	skne rx,ry	skip if rx <> ry
	skne2Instruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("skne v%x, v%x", op.x, op.y)
		},
		Execute: func(vm *VM, op operands) error {
			vm.skipIf(vm.registers[op.x] != vm.registers[op.y])
			return nil
		},
	}

	// axxx	mvi xxx	Load index register with constant xxx
	mviInstruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("mvi 0x%04x", op.nnn)
		},
		Execute: func(vm *VM, op operands) error {
			vm.index = op.nnn
			return nil
		},
	}

	// bxxx	jmi xxx	Jump to address xxx+register v0
	jmiInstruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("jmi 0x%04x", op.nnn)
		},
		Execute: func(vm *VM, op operands) error {
			vm.pc = op.nnn + uint16(vm.registers[0])
			return nil
		},
	}

	// crxx	rand vr,xx	vr = random byte masked by xx
	randInstruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("rand v%x, 0x%02x", op.x, op.nn)
		},
		Execute: func(vm *VM, op operands) error {
			vm.registers[op.x] = vm.random.RandomByte() & op.nn
			return nil
		},
	}

	// sprite rx,ry,s	Draw sprite at screen location rx,ry height s
	// Sprites stored in memory at location in index register, 8 bits wide.
	// Wraps around the screen.
	// If when drawn, clears a pixel, vf is set to 1 otherwise it is zero.
	// All drawing is xor drawing (e.g. it toggles the screen pixels)
	spriteInstruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("sprite v%x, v%x, %d", op.x, op.y, op.n)
		},
		Execute: func(vm *VM, op operands) error {
			height := op.n
			if err := checkRange(vm.index, int(height)); err != nil {
				return err
			}

			xLocation, yLocation := uint16(vm.registers[op.x]), uint16(vm.registers[op.y])

			hasCollision := false
			for y := uint16(0); y < height; y++ {
				pixel := vm.memory[vm.index+y]

				const width = uint16(8)
				for x := uint16(0); x < width; x++ {
					mask := uint8(0x80 >> x)
					if pixel&mask == 0 {
						continue
					}

					screenAddr := getScreenAddr(x+xLocation, y+yLocation)
					if vm.gfx[screenAddr] {
						hasCollision = true
					}

					vm.gfx[screenAddr] = !vm.gfx[screenAddr]
				}
			}

			vm.setFlag(hasCollision)
			vm.drawFlag = true
			return nil
		},
	}

	// ek9e	skpr k	skip if key (register rk) pressed
	skprInstruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("skpr v%x", op.x)
		},
		Execute: func(vm *VM, op operands) error {
			key, err := vm.keyFromRegister(op.x)
			if err != nil {
				return err
			}

			vm.skipIf(vm.keypad[key])
			return nil
		},
	}

	// eka1	skup k	skip if key (register rk) not pressed
	skupInstruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("skup v%x", op.x)
		},
		Execute: func(vm *VM, op operands) error {
			key, err := vm.keyFromRegister(op.x)
			if err != nil {
				return err
			}

			vm.skipIf(!vm.keypad[key])
			return nil
		},
	}

	// fr07	gdelay vr	get delay timer into vr
	gdelayInstruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("gdelay v%x", op.x)
		},
		Execute: func(vm *VM, op operands) error {
			vm.registers[op.x] = vm.delayTimer
			return nil
		},
	}

	// fr0a	key vr	wait for for keypress,put key in register vr
	// Waiting rewinds the program counter so the next step runs this
	// instruction again.
	keyInstruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("key v%x", op.x)
		},
		Execute: func(vm *VM, op operands) error {
			for i, pressed := range vm.keypad {
				if pressed {
					vm.registers[op.x] = uint8(i)
					return nil
				}
			}

			vm.pc -= InstructionSize
			return nil
		},
	}

	// fr15	sdelay vr	set the delay timer to vr
	sdelayInstruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("sdelay v%x", op.x)
		},
		Execute: func(vm *VM, op operands) error {
			vm.delayTimer = vm.registers[op.x]
			return nil
		},
	}

	// fr18	ssound vr	set the sound timer to vr
	ssoundInstruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("ssound v%x", op.x)
		},
		Execute: func(vm *VM, op operands) error {
			vm.soundTimer = vm.registers[op.x]
			return nil
		},
	}

	// fr1e	adi vr	add register vr to the index register
	adiInstruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("adi v%x", op.x)
		},
		Execute: func(vm *VM, op operands) error {
			vm.index += uint16(vm.registers[op.x])
			return nil
		},
	}

	// fr29	font vr	point I to the sprite for hexadecimal character in vr	Sprite is 5 bytes high
	fontInstruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("font v%x", op.x)
		},
		Execute: func(vm *VM, op operands) error {
			vm.index = FontStart + uint16(vm.registers[op.x])*FontGlyphSize
			return nil
		},
	}

	// fr33	bcd vr	store the bcd representation of register vr at location I,I+1,I+2	Doesn't change I
	bcdInstruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("bcd v%x", op.x)
		},
		Execute: func(vm *VM, op operands) error {
			if err := checkRange(vm.index, 3); err != nil {
				return err
			}

			x := vm.registers[op.x]

			vm.memory[vm.index] = x / 100
			vm.memory[vm.index+1] = (x / 10) % 10
			vm.memory[vm.index+2] = x % 10
			return nil
		},
	}

	// fr55	str v0-vr	store registers v0-vr at location I onwards	Doesn't change I
	strInstruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("str v0-v%x", op.x)
		},
		Execute: func(vm *VM, op operands) error {
			if err := checkRange(vm.index, int(op.x)+1); err != nil {
				return err
			}

			copy(vm.memory[vm.index:], vm.registers[:op.x+1])
			return nil
		},
	}

	// fr65	ldr v0-vr	load registers v0-vr from location I onwards	Doesn't change I
	ldrInstruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("ldr v0-v%x", op.x)
		},
		Execute: func(vm *VM, op operands) error {
			if err := checkRange(vm.index, int(op.x)+1); err != nil {
				return err
			}

			copy(vm.registers[:op.x+1], vm.memory[vm.index:])
			return nil
		},
	}

	// unknownInstruction only names the word; executeOpcode rejects it
	// before anything runs.
	unknownInstruction = &instruction{
		Name: func(op operands) string {
			return fmt.Sprintf("unknown 0x%04X", op.opcode)
		},
	}
)

func (vm *VM) keyFromRegister(r uint16) (Key, error) {
	key := vm.registers[r]
	if int(key) >= KeyCount {
		return 0, fmt.Errorf("%w: v%x holds 0x%02x", ErrInvalidKey, r, key)
	}
	return Key(key), nil
}

func getScreenAddr(x, y uint16) uint16 {
	x %= ScreenWidth
	y %= ScreenHeight

	screenAddr := ScreenWidth*(y) + x
	return screenAddr
}
