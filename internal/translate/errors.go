package translate

import (
	"errors"
	"fmt"

	"github.com/tinyrange/lift/internal/ptc"
)

// ErrUntracedState is the one recoverable failure: a state field access
// whose base operand is not the process-state base. The caller replaces the
// operation with a trap and resumes at the next instruction.
var ErrUntracedState = errors.New("state access through a base other than the process state")

// Fatal failures. Any of these aborts the translation of the function.
var (
	ErrUnknownOpcode   = errors.New("opcode outside the enumeration")
	ErrUnimplemented   = errors.New("opcode not implemented")
	ErrNonIncreasing   = errors.New("instruction addresses must increase")
	ErrLabelRedefined  = errors.New("label defined twice")
	ErrUnknownAccess   = errors.New("memory access of unknown type")
	ErrOperandType     = errors.New("operand has the wrong type")
	ErrBadConstant     = errors.New("constant operand out of range")
	ErrHelperSignature = errors.New("helper called with conflicting signatures")
)

// Error reports the micro-operation and instruction address a translation
// failure happened at.
type Error struct {
	Op      ptc.Opcode
	Address uint64
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("translate: %s at 0x%x: %v", e.Op, e.Address, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Recoverable reports whether err can be handled by trapping the offending
// instruction.
func Recoverable(err error) bool {
	return errors.Is(err, ErrUntracedState)
}
