// Package value defines the VM's runtime value model: a tagged union with
// structural equality and the falsey rule that backs NOT, JUMP_IF_FALSE,
// and the compiler's own constant-folding-free compile-time "!" operator.
package value

import "fmt"

// Kind tags which variant a Value holds.
type Kind int

const (
	Nil Kind = iota
	Bool
	Number
	String
)

// Value is the runtime counterpart of chunk.Constant: it additionally
// carries booleans and Nil, neither of which needs constant-pool storage
// since the compiler emits them as bare opcodes (OP_NIL/OP_TRUE/OP_FALSE).
type Value struct {
	Kind   Kind
	Bool   bool
	Number float64
	Text   string
}

func NilValue() Value            { return Value{Kind: Nil} }
func BoolValue(b bool) Value     { return Value{Kind: Bool, Bool: b} }
func NumberValue(n float64) Value { return Value{Kind: Number, Number: n} }
func StringValue(s string) Value { return Value{Kind: String, Text: s} }

// IsFalsey reports whether v is Nil, Bool(false), Number(0.0), or an empty
// string — the total, deterministic falsey predicate the language's NOT
// and conditional jumps rely on.
func (v Value) IsFalsey() bool {
	switch v.Kind {
	case Nil:
		return true
	case Bool:
		return !v.Bool
	case Number:
		return v.Number == 0.0
	case String:
		return v.Text == ""
	default:
		return false
	}
}

// Equal reports structural equality between two values. Values of
// different kinds are never equal.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case Nil:
		return true
	case Bool:
		return a.Bool == b.Bool
	case Number:
		return a.Number == b.Number
	case String:
		return a.Text == b.Text
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.Kind {
	case Nil:
		return "nil"
	case Bool:
		return fmt.Sprintf("%t", v.Bool)
	case Number:
		return fmt.Sprintf("%g", v.Number)
	case String:
		return v.Text
	default:
		return "<invalid value>"
	}
}
