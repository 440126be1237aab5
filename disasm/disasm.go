// Package disasm is the debugging collaborator for the compiler/VM pair: a
// pure reader over a chunk.Chunk that produces a human-readable listing. It
// never mutates the chunk it reads and the VM runs fine with it disabled.
package disasm

import (
	"fmt"
	"io"

	"ember/chunk"
)

// Chunk writes a human-readable disassembly of every instruction in c to
// w, labeled with name.
func Chunk(w io.Writer, c *chunk.Chunk, name string) {
	fmt.Fprintf(w, "== %s ==\n", name)
	offset := 0
	for offset < c.Len() {
		offset = Instruction(w, c, offset)
	}
}

// Instruction writes a single disassembled instruction at offset and
// returns the offset of the next instruction.
func Instruction(w io.Writer, c *chunk.Chunk, offset int) int {
	fmt.Fprintf(w, "%04d ", offset)

	if offset > 0 && c.GetLine(offset) == c.GetLine(offset-1) {
		fmt.Fprint(w, "   | ")
	} else {
		fmt.Fprintf(w, "%4d ", c.GetLine(offset))
	}

	op := chunk.Opcode(c.Code[offset])
	switch op {
	case chunk.OpReturn, chunk.OpNot, chunk.OpEqual, chunk.OpGreater, chunk.OpLess,
		chunk.OpNegate, chunk.OpAdd, chunk.OpSubtract, chunk.OpMultiply, chunk.OpDivide,
		chunk.OpNil, chunk.OpFalse, chunk.OpTrue, chunk.OpPrint, chunk.OpPop:
		return simpleInstruction(w, op, offset)
	case chunk.OpConstant, chunk.OpDefineGlobal, chunk.OpGetGlobal, chunk.OpSetGlobal:
		return constantInstruction(w, op, c, offset)
	case chunk.OpGetLocal, chunk.OpSetLocal, chunk.OpPush:
		return byteInstruction(w, op, c, offset)
	case chunk.OpJump, chunk.OpJumpIfFalse:
		return jumpInstruction(w, op, 1, c, offset)
	default:
		fmt.Fprintf(w, "Unknown opcode %d\n", byte(op))
		return offset + 1
	}
}

func simpleInstruction(w io.Writer, op chunk.Opcode, offset int) int {
	fmt.Fprintf(w, "%s\n", op)
	return offset + 1
}

func constantInstruction(w io.Writer, op chunk.Opcode, c *chunk.Chunk, offset int) int {
	index := int(c.Code[offset+1])
	fmt.Fprintf(w, "%-16s %4d '%s'\n", op, index, c.ReadConstant(index))
	return offset + 2
}

func byteInstruction(w io.Writer, op chunk.Opcode, c *chunk.Chunk, offset int) int {
	slot := c.Code[offset+1]
	fmt.Fprintf(w, "%-16s %4d\n", op, slot)
	return offset + 2
}

func jumpInstruction(w io.Writer, op chunk.Opcode, sign int, c *chunk.Chunk, offset int) int {
	jump := int(c.Code[offset+1])<<8 | int(c.Code[offset+2])
	target := offset + 3 + sign*jump
	fmt.Fprintf(w, "%-16s %4d -> %d\n", op, offset, target)
	return offset + 3
}
