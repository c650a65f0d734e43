package translate

import (
	"fmt"

	"github.com/tinyrange/lift/internal/ir"
	"github.com/tinyrange/lift/internal/ptc"
)

// BinaryOp returns the IR operation implementing an arithmetic or bitwise
// opcode. It panics for opcodes outside that subset.
func BinaryOp(op ptc.Opcode) ir.Op {
	switch op {
	case ptc.OpAddI32, ptc.OpAddI64, ptc.OpAdd2I32, ptc.OpAdd2I64:
		return ir.OpAdd
	case ptc.OpSubI32, ptc.OpSubI64, ptc.OpSub2I32, ptc.OpSub2I64:
		return ir.OpSub
	case ptc.OpMulI32, ptc.OpMulI64:
		return ir.OpMul
	case ptc.OpDivI32, ptc.OpDivI64:
		return ir.OpSDiv
	case ptc.OpDivuI32, ptc.OpDivuI64:
		return ir.OpUDiv
	case ptc.OpRemI32, ptc.OpRemI64:
		return ir.OpSRem
	case ptc.OpRemuI32, ptc.OpRemuI64:
		return ir.OpURem
	case ptc.OpAndI32, ptc.OpAndI64:
		return ir.OpAnd
	case ptc.OpOrI32, ptc.OpOrI64:
		return ir.OpOr
	case ptc.OpXorI32, ptc.OpXorI64:
		return ir.OpXor
	case ptc.OpShlI32, ptc.OpShlI64:
		return ir.OpShl
	case ptc.OpShrI32, ptc.OpShrI64:
		return ir.OpLShr
	case ptc.OpSarI32, ptc.OpSarI64:
		return ir.OpAShr
	default:
		panic(fmt.Sprintf("translate: %s is not a binary operation", op))
	}
}

// Predicate maps a condition code to a comparison predicate.
//
// never and always become the constant false and true predicates of the
// floating-point family. That mirrors how the decoder's output has always
// been lowered and is a known approximation.
func Predicate(c ptc.Cond) ir.Predicate {
	switch c {
	case ptc.CondNever:
		return ir.PredFalse
	case ptc.CondAlways:
		return ir.PredTrue
	case ptc.CondEQ:
		return ir.PredEQ
	case ptc.CondNE:
		return ir.PredNE
	case ptc.CondLT:
		return ir.PredSLT
	case ptc.CondGE:
		return ir.PredSGE
	case ptc.CondLE:
		return ir.PredSLE
	case ptc.CondGT:
		return ir.PredSGT
	case ptc.CondLTU:
		return ir.PredULT
	case ptc.CondGEU:
		return ir.PredUGE
	case ptc.CondLEU:
		return ir.PredULE
	case ptc.CondGTU:
		return ir.PredUGT
	default:
		panic(fmt.Sprintf("translate: unknown condition %d", uint64(c)))
	}
}

// RegisterSize returns the operand width of op in bits: 32 or 64, or 0 for
// control operations without an arithmetic width.
func RegisterSize(op ptc.Opcode) int {
	switch {
	case op >= ptc.OpDiscard && op <= ptc.OpGotoTB:
		return 0
	case op >= ptc.OpMovI32 && op <= ptc.OpTruncShrI32:
		return 32
	case op >= ptc.OpMovI64 && op <= ptc.OpQemuStI64:
		return 64
	default:
		panic(fmt.Sprintf("translate: no register size for %s", op))
	}
}

func allOnes(t ir.Type) ir.Value { return ir.ConstInt(t, ^uint64(0)) }

// lowMask returns n one bits.
func lowMask(n uint64) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<n - 1
}
