// Package vm implements the stack-based virtual machine that executes a
// compiled chunk.Chunk: an operand stack, a globals table, and a
// fetch-decode-execute loop over the chunk's bytecode.
package vm

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"ember/chunk"
	"ember/disasm"
	"ember/value"
)

// VM owns all of its runtime state — there is no global/shared state
// between VM instances, so multiple chunks can be run concurrently by
// different VMs without interference.
type VM struct {
	chunk   *chunk.Chunk
	stack   *stack
	ip      int
	globals map[string]value.Value

	stdout io.Writer
	stderr io.Writer

	trace  bool
	logger *logrus.Logger
}

// Option configures a VM at construction time.
type Option func(*VM)

// WithStdout redirects PRINT output away from os.Stdout.
func WithStdout(w io.Writer) Option {
	return func(vm *VM) { vm.stdout = w }
}

// WithStderr redirects runtime-error diagnostics away from os.Stderr.
func WithStderr(w io.Writer) Option {
	return func(vm *VM) { vm.stderr = w }
}

// WithTrace enables a per-instruction execution trace, written to
// logger at debug level. This is a constructor parameter rather than a
// build-time flag so a single binary can expose it (e.g. as a CLI
// flag) without a recompile.
func WithTrace(logger *logrus.Logger) Option {
	return func(vm *VM) {
		vm.trace = true
		vm.logger = logger
	}
}

// WithGlobals seeds the VM's globals table instead of starting from an
// empty one. The REPL uses this to carry variables forward across
// separate compile-and-run passes, one per statement.
func WithGlobals(globals map[string]value.Value) Option {
	return func(vm *VM) { vm.globals = globals }
}

// Globals returns the VM's live globals table: the map passed to
// WithGlobals, if any, so writes made during Run are visible through it.
func (vm *VM) Globals() map[string]value.Value {
	return vm.globals
}

// New returns a VM ready to execute c.
func New(c *chunk.Chunk, opts ...Option) *VM {
	vm := &VM{
		chunk:   c,
		stack:   newStack(),
		globals: make(map[string]value.Value),
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

// Run executes the chunk from the start and returns the value popped
// by the RETURN instruction that ends the run, or a *RuntimeError if
// execution failed. A program that never reaches RETURN terminates,
// implicitly, with Nil once the instruction pointer runs off the end
// of the code — this keeps the compiler from having to emit a
// trailing RETURN after every program.
func (vm *VM) Run() (result value.Value, err error) {
	for vm.ip < len(vm.chunk.Code) {
		if vm.trace {
			vm.traceInstruction()
		}

		instrStart := vm.ip
		op := chunk.Opcode(vm.readByte())

		switch op {
		case chunk.OpConstant:
			index := int(vm.readByte())
			vm.stack.push(constantToValue(vm.chunk.ReadConstant(index)))

		case chunk.OpNil:
			vm.stack.push(value.NilValue())
		case chunk.OpTrue:
			vm.stack.push(value.BoolValue(true))
		case chunk.OpFalse:
			vm.stack.push(value.BoolValue(false))

		case chunk.OpNot:
			v := vm.stack.pop()
			vm.stack.push(value.BoolValue(v.IsFalsey()))

		case chunk.OpEqual:
			b := vm.stack.pop()
			a := vm.stack.pop()
			vm.stack.push(value.BoolValue(value.Equal(a, b)))

		case chunk.OpGreater:
			if rerr := vm.binaryBool(instrStart, func(a, b float64) bool { return a > b }); rerr != nil {
				return value.NilValue(), rerr
			}
		case chunk.OpLess:
			if rerr := vm.binaryBool(instrStart, func(a, b float64) bool { return a < b }); rerr != nil {
				return value.NilValue(), rerr
			}

		case chunk.OpNegate:
			if vm.stack.peek(0).Kind != value.Number {
				return value.NilValue(), vm.runtimeError(instrStart, "Operand must be a number.")
			}
			n := vm.stack.pop()
			vm.stack.push(value.NumberValue(-n.Number))

		case chunk.OpAdd:
			if rerr := vm.add(instrStart); rerr != nil {
				return value.NilValue(), rerr
			}
		case chunk.OpSubtract:
			if rerr := vm.binaryNumber(instrStart, func(a, b float64) float64 { return a - b }); rerr != nil {
				return value.NilValue(), rerr
			}
		case chunk.OpMultiply:
			if rerr := vm.binaryNumber(instrStart, func(a, b float64) float64 { return a * b }); rerr != nil {
				return value.NilValue(), rerr
			}
		case chunk.OpDivide:
			if rerr := vm.binaryNumber(instrStart, func(a, b float64) float64 { return a / b }); rerr != nil {
				return value.NilValue(), rerr
			}

		case chunk.OpPrint:
			v := vm.stack.pop()
			fmt.Fprintln(vm.stdout, v.String())

		case chunk.OpPop:
			vm.stack.pop()

		case chunk.OpDefineGlobal:
			name := vm.readConstantString()
			vm.globals[name] = vm.stack.pop()

		case chunk.OpGetGlobal:
			name := vm.readConstantString()
			v, ok := vm.globals[name]
			if !ok {
				return value.NilValue(), vm.runtimeError(instrStart, fmt.Sprintf("Undefined variable '%s'.", name))
			}
			vm.stack.push(v)

		case chunk.OpSetGlobal:
			name := vm.readConstantString()
			if _, ok := vm.globals[name]; !ok {
				return value.NilValue(), vm.runtimeError(instrStart, fmt.Sprintf("Undefined variable '%s'.", name))
			}
			vm.globals[name] = vm.stack.peek(0)

		case chunk.OpGetLocal:
			slot := int(vm.readByte())
			vm.stack.push(vm.stack.peekFromBottom(slot))

		case chunk.OpSetLocal:
			slot := int(vm.readByte())
			vm.stack.setAt(slot, vm.stack.peek(0))

		case chunk.OpPush:
			n := vm.readByte()
			vm.stack.push(value.NumberValue(float64(n)))

		case chunk.OpJump:
			offset := vm.readShort()
			vm.ip += offset

		case chunk.OpJumpIfFalse:
			offset := vm.readShort()
			if vm.stack.peek(0).IsFalsey() {
				vm.ip += offset
			}

		case chunk.OpReturn:
			return vm.stack.pop(), nil

		default:
			return value.NilValue(), vm.runtimeError(instrStart, fmt.Sprintf("Unknown opcode %d.", byte(op)))
		}
	}

	return value.NilValue(), nil
}

func (vm *VM) readByte() byte {
	b := vm.chunk.Code[vm.ip]
	vm.ip++
	return b
}

// readShort reads a big-endian two-byte jump operand, per the wire
// format: (hi << 8) | lo.
func (vm *VM) readShort() int {
	hi := int(vm.readByte())
	lo := int(vm.readByte())
	return (hi << 8) | lo
}

func (vm *VM) readConstantString() string {
	index := int(vm.readByte())
	return vm.chunk.ReadConstant(index).Text
}

func constantToValue(c chunk.Constant) value.Value {
	switch c.Kind {
	case chunk.ConstantNumber:
		return value.NumberValue(c.Number)
	case chunk.ConstantString:
		return value.StringValue(c.Text)
	default:
		return value.NilValue()
	}
}

// add implements ADD's dual nature: string concatenation when both
// operands are strings, numeric addition otherwise.
func (vm *VM) add(instrStart int) error {
	if vm.stack.peek(0).Kind == value.String && vm.stack.peek(1).Kind == value.String {
		b := vm.stack.pop()
		a := vm.stack.pop()
		vm.stack.push(value.StringValue(a.Text + b.Text))
		return nil
	}
	return vm.binaryNumber(instrStart, func(a, b float64) float64 { return a + b })
}

func (vm *VM) binaryNumber(instrStart int, op func(a, b float64) float64) error {
	if vm.stack.peek(0).Kind != value.Number || vm.stack.peek(1).Kind != value.Number {
		return vm.runtimeError(instrStart, "Operands must be numbers.")
	}
	b := vm.stack.pop()
	a := vm.stack.pop()
	vm.stack.push(value.NumberValue(op(a.Number, b.Number)))
	return nil
}

func (vm *VM) binaryBool(instrStart int, op func(a, b float64) bool) error {
	if vm.stack.peek(0).Kind != value.Number || vm.stack.peek(1).Kind != value.Number {
		return vm.runtimeError(instrStart, "Operands must be numbers.")
	}
	b := vm.stack.pop()
	a := vm.stack.pop()
	vm.stack.push(value.BoolValue(op(a.Number, b.Number)))
	return nil
}

func (vm *VM) runtimeError(instrOffset int, message string) error {
	line := vm.chunk.GetLine(instrOffset)
	err := &RuntimeError{Line: line, Message: message}
	fmt.Fprintln(vm.stderr, err.Error())
	vm.stack.clear()
	return err
}

func (vm *VM) traceInstruction() {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("stack: %v | ", vm.stackSnapshot()))
	disasm.Instruction(&sb, vm.chunk, vm.ip)
	vm.logger.Debug(strings.TrimRight(sb.String(), "\n"))
}

func (vm *VM) stackSnapshot() []string {
	out := make([]string, 0, vm.stack.len())
	for _, v := range vm.stack.values {
		out = append(out, v.String())
	}
	return out
}
