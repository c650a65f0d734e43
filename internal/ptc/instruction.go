package ptc

import (
	"errors"
	"fmt"
)

// ErrArity reports operand counts that do not match an opcode's layout. It
// signals a corrupt decode.
var ErrArity = errors.New("ptc: operand count does not match arity")

// Helper describes an external function invoked by a call operation.
type Helper struct {
	ID   uint64 `yaml:"id"`
	Name string `yaml:"name"`
	In   int    `yaml:"in"`
	Out  int    `yaml:"out"`
}

// Helpers indexes helper definitions by identifier.
type Helpers map[uint64]*Helper

func (h Helpers) Add(helper *Helper) error {
	if _, exists := h[helper.ID]; exists {
		return fmt.Errorf("ptc: helper %d already defined", helper.ID)
	}
	if other, exists := h.ByName(helper.Name); exists {
		return fmt.Errorf("ptc: helper %s already defined as %d", helper.Name, other.ID)
	}
	if helper.Out > 1 {
		return fmt.Errorf("ptc: helper %s returns %d values, at most 1 supported", helper.Name, helper.Out)
	}
	h[helper.ID] = helper
	return nil
}

// ByName finds the helper called name. Add keeps names unique.
func (h Helpers) ByName(name string) (*Helper, bool) {
	for _, helper := range h {
		if helper.Name == name {
			return helper, true
		}
	}
	return nil, false
}

// Args is a read-only window over a decoded operation's operands.
type Args []uint64

func (a Args) Len() int { return len(a) }

func (a Args) At(i int) uint64 { return a[i] }

// Last returns the final operand; branch operations keep their label there.
func (a Args) Last() uint64 { return a[len(a)-1] }

// Instruction is a view over one decoded micro-operation. Plain and call
// operations share the layout outputs, inputs, constants over a single
// operand slice; the view never copies it.
type Instruction struct {
	op     Opcode
	args   []uint64
	nOut   int
	nIn    int
	helper *Helper
}

// NewInstruction wraps a plain operation, validating its operand count
// against the opcode's declared arity.
func NewInstruction(op Opcode, args []uint64) (Instruction, error) {
	if !op.Valid() {
		return Instruction{}, fmt.Errorf("ptc: unknown opcode %d", uint16(op))
	}
	if op == OpCall {
		return Instruction{}, fmt.Errorf("ptc: call operations need NewCall")
	}
	ar := op.Arity()
	fixed := ar.Out + ar.In
	if len(args) < fixed+ar.Const || len(args) > fixed+ar.MaxConst {
		return Instruction{}, fmt.Errorf("%w: %s has %d operands, want %d outputs, %d inputs, %d constants",
			ErrArity, op, len(args), ar.Out, ar.In, ar.Const)
	}
	return Instruction{op: op, args: args, nOut: ar.Out, nIn: ar.In}, nil
}

// NewCall wraps a call operation. The helper identifier is the first
// constant; the input and output counts come from the helper definition.
func NewCall(helpers Helpers, args []uint64, nOut, nIn int) (Instruction, error) {
	if nOut < 0 || nIn < 0 || len(args) < nOut+nIn+1 {
		return Instruction{}, fmt.Errorf("%w: call has %d operands for %d outputs and %d inputs",
			ErrArity, len(args), nOut, nIn)
	}
	id := args[nOut+nIn]
	helper, ok := helpers[id]
	if !ok {
		return Instruction{}, fmt.Errorf("ptc: call to unknown helper %d", id)
	}
	if helper.In != nIn || helper.Out != nOut {
		return Instruction{}, fmt.Errorf("%w: call to %s with %d outputs and %d inputs, helper takes %d and %d",
			ErrArity, helper.Name, nOut, nIn, helper.Out, helper.In)
	}
	return Instruction{op: OpCall, args: args, nOut: nOut, nIn: nIn, helper: helper}, nil
}

func (i Instruction) Op() Opcode { return i.op }

func (i Instruction) IsCall() bool { return i.helper != nil }

func (i Instruction) Outputs() Args {
	return Args(i.args[:i.nOut:i.nOut])
}

func (i Instruction) Inputs() Args {
	end := i.nOut + i.nIn
	return Args(i.args[i.nOut:end:end])
}

func (i Instruction) Consts() Args {
	return Args(i.args[i.nOut+i.nIn : len(i.args) : len(i.args)])
}

// Helper returns the called helper, or nil for plain operations.
func (i Instruction) Helper() *Helper { return i.helper }

func (i Instruction) String() string {
	if i.helper != nil {
		return fmt.Sprintf("call %s out=%v in=%v", i.helper.Name, []uint64(i.Outputs()), []uint64(i.Inputs()))
	}
	return fmt.Sprintf("%s out=%v in=%v const=%v", i.op, []uint64(i.Outputs()), []uint64(i.Inputs()), []uint64(i.Consts()))
}
