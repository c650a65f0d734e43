package ir

import "fmt"

type Op uint8

const (
	OpInvalid Op = iota

	// Binary integer operations. Both operands and the result share a type.
	OpAdd
	OpSub
	OpMul
	OpSDiv
	OpUDiv
	OpSRem
	OpURem
	OpAnd
	OpOr
	OpXor
	OpShl
	OpLShr
	OpAShr

	OpICmp
	OpSelect

	// Casts.
	OpTrunc
	OpZExt
	OpSExt
	OpIntToPtr

	OpBSwap

	// Memory.
	OpLoad
	OpStore

	OpCall

	// Terminators.
	OpBr
	OpCondBr
	OpUnreachable
)

var opNames = [...]string{
	OpInvalid:     "invalid",
	OpAdd:         "add",
	OpSub:         "sub",
	OpMul:         "mul",
	OpSDiv:        "sdiv",
	OpUDiv:        "udiv",
	OpSRem:        "srem",
	OpURem:        "urem",
	OpAnd:         "and",
	OpOr:          "or",
	OpXor:         "xor",
	OpShl:         "shl",
	OpLShr:        "lshr",
	OpAShr:        "ashr",
	OpICmp:        "icmp",
	OpSelect:      "select",
	OpTrunc:       "trunc",
	OpZExt:        "zext",
	OpSExt:        "sext",
	OpIntToPtr:    "inttoptr",
	OpBSwap:       "bswap",
	OpLoad:        "load",
	OpStore:       "store",
	OpCall:        "call",
	OpBr:          "br",
	OpCondBr:      "br",
	OpUnreachable: "unreachable",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// IsBinary reports whether op is one of the two-operand integer operations.
func (op Op) IsBinary() bool {
	return op >= OpAdd && op <= OpAShr
}

func (op Op) IsTerminator() bool {
	return op == OpBr || op == OpCondBr || op == OpUnreachable
}

// Predicate selects the comparison performed by OpICmp.
type Predicate uint8

const (
	// PredFalse and PredTrue are the constant predicates of the
	// floating-point comparison family. They ignore their operands.
	PredFalse Predicate = iota
	PredEQ
	PredNE
	PredSLT
	PredSLE
	PredSGT
	PredSGE
	PredULT
	PredULE
	PredUGT
	PredUGE
	PredTrue
)

var predNames = [...]string{
	PredFalse: "false",
	PredEQ:    "eq",
	PredNE:    "ne",
	PredSLT:   "slt",
	PredSLE:   "sle",
	PredSGT:   "sgt",
	PredSGE:   "sge",
	PredULT:   "ult",
	PredULE:   "ule",
	PredUGT:   "ugt",
	PredUGE:   "uge",
	PredTrue:  "true",
}

func (p Predicate) String() string {
	if int(p) < len(predNames) {
		return predNames[p]
	}
	return fmt.Sprintf("pred(%d)", uint8(p))
}

// IsConstant reports whether p is one of the operand-independent predicates.
func (p Predicate) IsConstant() bool {
	return p == PredFalse || p == PredTrue
}

// Instr is one operation inside a block. Instructions producing a value are
// themselves usable as operands.
type Instr struct {
	Op       Op
	Operands []Value
	Pred     Predicate
	Align    int
	Targets  []*Block
	Callee   *Function

	typ   Type
	id    int
	block *Block
}

func (i *Instr) Type() Type { return i.typ }

func (i *Instr) Ident() string {
	return fmt.Sprintf("%%%d", i.id)
}

// Block returns the block that currently holds i.
func (i *Instr) Block() *Block { return i.block }

func (i *Instr) IsTerminator() bool { return i.Op.IsTerminator() }

// SetOperand replaces operand n. It is used to patch instructions after the
// fact, for example when a placeholder value becomes known.
func (i *Instr) SetOperand(n int, v Value) {
	if n < 0 || n >= len(i.Operands) {
		panic(fmt.Sprintf("ir: operand index %d out of range for %s", n, i.Op))
	}
	i.Operands[n] = v
}
