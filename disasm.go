//go:build !js

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/kapitanov/chip8vm/internal/vm"
	"github.com/spf13/cobra"
)

func newDisasmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm PATH_TO_ROM_FILE",
		Short: "Print a disassembly listing of a ROM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			bs, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("unable to load file %q: %w", path, err)
			}

			return writeListing(cmd.OutOrStdout(), bs)
		},
	}
}

// writeListing prints one line per instruction word, addressed from the
// program start. An odd trailing byte is printed as data.
func writeListing(w io.Writer, program []byte) error {
	if len(program) > vm.MaxProgramSize {
		return fmt.Errorf("unable to disassemble: %w", vm.ErrProgramTooLarge)
	}

	addr := int(vm.ProgramStart)
	for i := 0; i < len(program); i += vm.InstructionSize {
		var line string
		if i+1 < len(program) {
			opcode := uint16(program[i])<<8 | uint16(program[i+1])
			line = fmt.Sprintf("%04x  %04X  %s\n", addr+i, opcode, vm.Disassemble(opcode))
		} else {
			line = fmt.Sprintf("%04x  %02X    db 0x%02x\n", addr+i, program[i], program[i])
		}

		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}
	return nil
}
