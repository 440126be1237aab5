package vm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ember/chunk"
	"ember/compiler"
	"ember/value"
)

func writeConstant(c *chunk.Chunk, n float64, line int) {
	index := c.AddConstant(chunk.NumberConstant(n))
	c.WriteOpcode(chunk.OpConstant, line)
	c.WriteByte(byte(index), line)
}

func writeString(c *chunk.Chunk, s string, line int) {
	index := c.AddConstant(chunk.StringConstant(s))
	c.WriteOpcode(chunk.OpConstant, line)
	c.WriteByte(byte(index), line)
}

func writeReturn(c *chunk.Chunk, line int) {
	c.WriteOpcode(chunk.OpReturn, line)
}

func writeShort(c *chunk.Chunk, n uint16, line int) {
	c.WriteByte(byte(n>>8), line)
	c.WriteByte(byte(n&0xFF), line)
}

func runAndExpect(t *testing.T, c *chunk.Chunk, expected value.Value) {
	t.Helper()
	result, err := New(c).Run()
	require.NoError(t, err)
	assert.True(t, value.Equal(expected, result), "expected %v, got %v", expected, result)
}

func TestReturnFloat(t *testing.T) {
	c := chunk.New()
	writeConstant(c, 3.14, 1)
	writeReturn(c, 1)
	runAndExpect(t, c, value.NumberValue(3.14))
}

func TestFloatEquality(t *testing.T) {
	c := chunk.New()
	writeConstant(c, 3.14, 1)
	writeConstant(c, 3.14, 1)
	c.WriteOpcode(chunk.OpEqual, 1)
	writeReturn(c, 1)
	runAndExpect(t, c, value.BoolValue(true))
}

func TestReturnBoolean(t *testing.T) {
	c := chunk.New()
	c.WriteOpcode(chunk.OpTrue, 1)
	writeReturn(c, 1)
	runAndExpect(t, c, value.BoolValue(true))
}

func TestReturnString(t *testing.T) {
	c := chunk.New()
	writeString(c, "Hello, world!", 1)
	writeReturn(c, 1)
	runAndExpect(t, c, value.StringValue("Hello, world!"))
}

func TestAdd(t *testing.T) {
	c := chunk.New()
	writeConstant(c, 1.2, 1)
	writeConstant(c, 2.5, 1)
	c.WriteOpcode(chunk.OpAdd, 1)
	writeReturn(c, 1)
	runAndExpect(t, c, value.NumberValue(3.7))
}

func TestStringConcat(t *testing.T) {
	c := chunk.New()
	writeString(c, "Hello, ", 1)
	writeString(c, "world!", 1)
	c.WriteOpcode(chunk.OpAdd, 1)
	writeReturn(c, 1)
	runAndExpect(t, c, value.StringValue("Hello, world!"))
}

func TestStringEquality(t *testing.T) {
	c := chunk.New()
	writeString(c, "Banana", 1)
	writeString(c, "Banana", 1)
	c.WriteOpcode(chunk.OpEqual, 1)
	writeReturn(c, 1)
	runAndExpect(t, c, value.BoolValue(true))
}

func TestPrintString(t *testing.T) {
	c := chunk.New()
	writeString(c, "Banana", 1)
	c.WriteOpcode(chunk.OpPrint, 1)
	writeConstant(c, 0.0, 1)
	writeReturn(c, 1)

	var out bytes.Buffer
	result, err := New(c, WithStdout(&out)).Run()
	require.NoError(t, err)
	assert.True(t, value.Equal(value.NumberValue(0), result))
	assert.Equal(t, "Banana\n", out.String())
}

func TestGlobalVariables(t *testing.T) {
	c := chunk.New()
	c.AddConstant(chunk.StringConstant("myvar"))
	c.AddConstant(chunk.NumberConstant(4))
	c.WriteOpcode(chunk.OpConstant, 1)
	c.WriteByte(1, 1)
	c.WriteOpcode(chunk.OpDefineGlobal, 1)
	c.WriteByte(0, 1)
	c.WriteOpcode(chunk.OpGetGlobal, 1)
	c.WriteByte(0, 1)
	writeReturn(c, 1)
	runAndExpect(t, c, value.NumberValue(4))
}

func TestUndefinedGlobalIsRuntimeError(t *testing.T) {
	c := chunk.New()
	c.AddConstant(chunk.StringConstant("nope"))
	c.WriteOpcode(chunk.OpGetGlobal, 7)
	c.WriteByte(0, 7)
	writeReturn(c, 7)

	_, err := New(c).Run()
	require.Error(t, err)
	var rerr *RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 7, rerr.Line)
}

func TestGetLocalVariable(t *testing.T) {
	c := chunk.New()
	c.WriteOpcode(chunk.OpGetLocal, 1)
	c.WriteByte(2, 1)
	writeReturn(c, 1)

	v := New(c)
	v.stack.push(value.NumberValue(5))
	v.stack.push(value.NumberValue(6))
	v.stack.push(value.NumberValue(7))
	v.stack.push(value.NumberValue(8))

	result, err := v.Run()
	require.NoError(t, err)
	assert.True(t, value.Equal(value.NumberValue(7), result))
}

func TestSetLocalVariable(t *testing.T) {
	c := chunk.New()
	c.WriteOpcode(chunk.OpSetLocal, 1)
	c.WriteByte(1, 1)
	c.WriteOpcode(chunk.OpGetLocal, 1)
	c.WriteByte(1, 1)
	writeReturn(c, 1)

	v := New(c)
	v.stack.push(value.NumberValue(5))
	v.stack.push(value.NumberValue(6))
	v.stack.push(value.NumberValue(7))
	v.stack.push(value.NumberValue(16))

	result, err := v.Run()
	require.NoError(t, err)
	assert.True(t, value.Equal(value.NumberValue(16), result))
}

// Jump targets are expressed relative to the byte after the two-byte
// operand pair, per the wire format in chunk.PatchJump.
func TestJump(t *testing.T) {
	c := chunk.New()
	c.WriteOpcode(chunk.OpJump, 1)
	writeShort(c, 2, 1) // skip the Add and its Return, land on Multiply
	c.WriteOpcode(chunk.OpAdd, 1)
	writeReturn(c, 1)
	c.WriteOpcode(chunk.OpMultiply, 1)
	writeReturn(c, 1)

	v := New(c)
	v.stack.push(value.NumberValue(2))
	v.stack.push(value.NumberValue(3))
	result, err := v.Run()
	require.NoError(t, err)
	assert.True(t, value.Equal(value.NumberValue(6), result))
}

func TestJumpIfFalseTakesTheJump(t *testing.T) {
	c := chunk.New()
	c.WriteOpcode(chunk.OpJumpIfFalse, 1)
	writeShort(c, 4, 1) // skip Pop + Push(5) + Return, land on Push(6)
	c.WriteOpcode(chunk.OpPop, 1)
	c.WriteOpcode(chunk.OpPush, 1)
	c.WriteByte(5, 1)
	writeReturn(c, 1)
	c.WriteOpcode(chunk.OpPush, 1) // jump target
	c.WriteByte(6, 1)
	writeReturn(c, 1)

	v := New(c)
	v.stack.push(value.BoolValue(false))
	result, err := v.Run()
	require.NoError(t, err)
	assert.True(t, value.Equal(value.NumberValue(6), result))
}

func TestJumpIfFalseDoesNotTakeTheJump(t *testing.T) {
	c := chunk.New()
	c.WriteOpcode(chunk.OpJumpIfFalse, 1)
	writeShort(c, 4, 1)
	c.WriteOpcode(chunk.OpPop, 1)
	c.WriteOpcode(chunk.OpPush, 1)
	c.WriteByte(5, 1)
	writeReturn(c, 1)
	c.WriteOpcode(chunk.OpPush, 1)
	c.WriteByte(6, 1)
	writeReturn(c, 1)

	v := New(c)
	v.stack.push(value.BoolValue(true))
	result, err := v.Run()
	require.NoError(t, err)
	assert.True(t, value.Equal(value.NumberValue(5), result))
}

func TestNegateNonNumberIsRuntimeError(t *testing.T) {
	c := chunk.New()
	writeString(c, "nope", 3)
	c.WriteOpcode(chunk.OpNegate, 3)
	writeReturn(c, 3)

	_, err := New(c).Run()
	require.Error(t, err)
	var rerr *RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 3, rerr.Line)
}

// End-to-end: `var a = 1; var b = 1; if (a == b) { a = 3; } else { a = 4; } return a;`
func TestIfElseProgram(t *testing.T) {
	c, err := compiler.Compile("var a = 1; var b = 1; if (a == b) { a = 3; } else { a = 4; } return a;")
	require.NoError(t, err)
	runAndExpect(t, c, value.NumberValue(3))
}

func TestBlockPrintsAndClosesCleanly(t *testing.T) {
	c, err := compiler.Compile("{ var a = 4; print a; }")
	require.NoError(t, err)

	var out bytes.Buffer
	v := New(c, WithStdout(&out))
	_, err = v.Run()
	require.NoError(t, err)
	assert.Equal(t, "4\n", out.String())
	assert.True(t, v.stack.isEmpty())
}
