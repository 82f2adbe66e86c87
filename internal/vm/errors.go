package vm

import (
	"errors"
	"fmt"
)

var (
	ErrMemoryOutOfBounds = errors.New("memory access out of bounds")
	ErrStackOverflow     = errors.New("stack overflow")
	ErrStackUnderflow    = errors.New("stack underflow")
	ErrUnknownOpcode     = errors.New("unknown opcode")
	ErrProgramTooLarge   = errors.New("program too large")
	ErrInvalidKey        = errors.New("invalid key")
)

// OpcodeError reports an instruction word that matches no known pattern.
type OpcodeError struct {
	PC     uint16
	Opcode uint16
}

// Nibbles splits the opcode into its four 4-bit digits, most significant first.
func (e *OpcodeError) Nibbles() [4]uint8 {
	return [4]uint8{
		uint8(e.Opcode>>12) & 0x0F,
		uint8(e.Opcode>>8) & 0x0F,
		uint8(e.Opcode>>4) & 0x0F,
		uint8(e.Opcode) & 0x0F,
	}
}

func (e *OpcodeError) Error() string {
	n := e.Nibbles()
	return fmt.Sprintf("unknown op code 0x%04X at 0x%04x (nibbles %X %X %X %X)", e.Opcode, e.PC, n[0], n[1], n[2], n[3])
}

func (e *OpcodeError) Is(target error) bool {
	return target == ErrUnknownOpcode
}
