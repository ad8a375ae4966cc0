package vm

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of code's instruction
// stream, one line per Instruction, in the teacher's own offset-and-line
// column layout — adapted here to a typed Instruction slice instead of a
// packed byte chunk, since nothing in this tree emits packed bytecode.
func Disassemble(code *Code, name string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "== %s ==\n", name)

	lastLine := -1
	for offset, instr := range code.Instructions {
		fmt.Fprintf(&sb, "%04d ", offset)
		if instr.Line == lastLine {
			sb.WriteString("   | ")
		} else {
			fmt.Fprintf(&sb, "%4d ", instr.Line)
			lastLine = instr.Line
		}
		disassembleInstruction(&sb, instr)
	}
	return sb.String()
}

func disassembleInstruction(sb *strings.Builder, instr Instruction) {
	switch instr.Op {
	case PUSH:
		fmt.Fprintf(sb, "%-16s %s\n", instr.Op, instr.Value.Format())
	case GETVARIABLE, ASSIGNTO, ASSIGNTOLOCAL:
		fmt.Fprintf(sb, "%-16s %s\n", instr.Op, instr.Name)
	case CALLNULAR, CALLUNARY, CALLBINARY:
		fmt.Fprintf(sb, "%-16s %s\n", instr.Op, instr.Name)
	case MAKEARRAY:
		fmt.Fprintf(sb, "%-16s %d\n", instr.Op, instr.N)
	default:
		fmt.Fprintf(sb, "%s\n", instr.Op)
	}
}
