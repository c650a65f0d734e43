package ir

import (
	"fmt"
	"strconv"
)

// Value is an operand in generated code. Values are owned by the function or
// module that created them; callers only hold handles.
type Value interface {
	Type() Type
	// Ident returns the spelling used when the value appears as an operand.
	Ident() string
}

// Const is an integer constant of at most 64 significant bits.
type Const struct {
	typ Type
	Val uint64
}

// ConstInt returns a constant of type t holding v truncated to the width of t.
func ConstInt(t Type, v uint64) *Const {
	if !t.IsInt() {
		panic(fmt.Sprintf("ir: constant of non-integer type %s", t))
	}
	if t.Bits < 64 {
		v &= (uint64(1) << t.Bits) - 1
	}
	return &Const{typ: t, Val: v}
}

func (c *Const) Type() Type { return c.typ }

func (c *Const) Ident() string {
	if c.typ.Bits == 1 {
		if c.Val != 0 {
			return "true"
		}
		return "false"
	}
	if c.Val > 0xffff {
		return "0x" + strconv.FormatUint(c.Val, 16)
	}
	return strconv.FormatUint(c.Val, 10)
}

// IsConst reports whether v is a constant and returns its raw value.
func IsConst(v Value) (uint64, bool) {
	c, ok := v.(*Const)
	if !ok {
		return 0, false
	}
	return c.Val, true
}

// Var is addressable storage: a module-level global (process state) or a
// function-local variable (temporaries). As an operand it is a pointer.
type Var struct {
	Name   string
	Elem   Type
	Global bool
	// Offset is the position of the variable inside the process state, or
	// -1 when the variable is not part of it.
	Offset int64
}

func (v *Var) Type() Type { return Ptr }

func (v *Var) Ident() string {
	if v.Global {
		return "@" + v.Name
	}
	return "%" + v.Name
}
