package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteByteKeepsLinesParallel(t *testing.T) {
	c := New()
	c.WriteOpcode(OpNil, 1)
	c.WriteOpcode(OpTrue, 2)
	assert.Equal(t, len(c.Code), len(c.Lines))
	assert.Equal(t, []byte{byte(OpNil), byte(OpTrue)}, c.Code)
	assert.Equal(t, []int{1, 2}, c.Lines)
}

func TestAddConstantReturnsIndex(t *testing.T) {
	c := New()
	idx1 := c.AddConstant(NumberConstant(4))
	idx2 := c.AddConstant(StringConstant("hi"))
	assert.Equal(t, 0, idx1)
	assert.Equal(t, 1, idx2)
	assert.Equal(t, NumberConstant(4), c.ReadConstant(0))
	assert.Equal(t, StringConstant("hi"), c.ReadConstant(1))
}

func TestGetLine(t *testing.T) {
	c := New()
	c.WriteOpcode(OpReturn, 42)
	assert.Equal(t, 42, c.GetLine(0))
}

func TestPatchJump(t *testing.T) {
	c := New()
	c.WriteOpcode(OpJumpIfFalse, 1)
	jumpOffset := c.Len()
	c.WriteByte(0xFF, 1)
	c.WriteByte(0xFF, 1)
	c.WriteOpcode(OpPop, 1)
	c.WriteOpcode(OpNil, 1)

	err := c.PatchJump(jumpOffset)
	assert.NoError(t, err)

	hi := c.Code[jumpOffset]
	lo := c.Code[jumpOffset+1]
	offset := int(hi)<<8 | int(lo)
	assert.Equal(t, 2, offset) // OP_POP, OP_NIL lie past the operand pair
}

func TestOpcodeString(t *testing.T) {
	assert.Equal(t, "OP_RETURN", OpReturn.String())
	assert.Contains(t, Opcode(255).String(), "OP_UNKNOWN")
}

func TestConstantString(t *testing.T) {
	assert.Equal(t, "4", NumberConstant(4).String())
	assert.Equal(t, `"hi"`, StringConstant("hi").String())
}
