// Package translate lowers micro-operations into IR, one operation at a
// time, while reporting instruction boundaries and direct jump targets to
// the control-flow discovery collaborator.
package translate

import (
	"fmt"

	"github.com/tinyrange/lift/internal/arch"
	"github.com/tinyrange/lift/internal/ir"
	"github.com/tinyrange/lift/internal/ptc"
	"github.com/tinyrange/lift/internal/trace"
)

// Variables provides typed storage for micro-operation slots and for fields
// of the process state.
type Variables interface {
	// Slot returns the storage backing slot id.
	Slot(id uint64) (*ir.Var, error)
	// Load reads slot id at the builder's insertion point.
	Load(b *ir.Builder, id uint64) (ir.Value, error)
	// Store writes v to slot id at the builder's insertion point.
	Store(b *ir.Builder, id uint64, v ir.Value) error
	// IsStateBase reports whether slot id holds the process-state base.
	IsStateBase(id uint64) bool
	// FieldAtOffset returns the process-state field at offset.
	FieldAtOffset(offset int64) (*ir.Var, error)
	// NewBasicBlock is called whenever the insertion point moves to
	// another block.
	NewBasicBlock()
	// InvalidateState is called after code that may write process state
	// behind the store's back.
	InvalidateState()
}

// JumpTargets is the control-flow discovery collaborator.
type JumpTargets interface {
	// NewPC reports the block already associated with address, if any, and
	// whether it is an empty placeholder that translation should fill.
	NewPC(address uint64) (*ir.Block, bool)
	RegisterBlock(address uint64, b *ir.Block)
	RegisterInstruction(address uint64, m *ir.Marker)
	IsPCSlot(v *ir.Var) bool
	// NoteDirectTarget records an address control may reach directly.
	NoteDirectTarget(address uint64)
	// ExitRoutine returns the function called to leave translated code.
	ExitRoutine() *ir.Function
}

type Disassembler interface {
	Format(address uint64) (string, error)
}

// HelperPrefix is prepended to helper names to form the called symbol.
const HelperPrefix = "helper_"

// AbortName is the routine called by trap sequences.
const AbortName = "abort"

type Options struct {
	Variables   Variables
	JumpTargets JumpTargets
	// Disassembler annotates markers. Optional.
	Disassembler Disassembler

	Source arch.Descriptor
	Target arch.Descriptor

	// Trace receives one record per operation. Optional.
	Trace *trace.Source
}

// Translator lowers the micro-operations of one function. It is not safe
// for concurrent use; translate independent functions with independent
// translators.
type Translator struct {
	b      *ir.Builder
	fn     *ir.Function
	module *ir.Module

	vars   Variables
	jt     JumpTargets
	disasm Disassembler

	source arch.Descriptor
	target arch.Descriptor

	labels  *LabelTable
	markers *Tracker
	blocks  []*ir.Block

	trace *trace.Source
}

// New returns a translator emitting through b.
func New(b *ir.Builder, opts Options) *Translator {
	if opts.Variables == nil || opts.JumpTargets == nil {
		panic("translate: Variables and JumpTargets are required")
	}
	fn := b.Function()
	return &Translator{
		b:       b,
		fn:      fn,
		module:  fn.Module(),
		vars:    opts.Variables,
		jt:      opts.JumpTargets,
		disasm:  opts.Disassembler,
		source:  opts.Source,
		target:  opts.Target,
		labels:  NewLabelTable(fn),
		markers: NewTracker(fn),
		trace:   opts.Trace,
	}
}

func (t *Translator) Builder() *ir.Builder { return t.b }

func (t *Translator) Labels() *LabelTable { return t.labels }

// Blocks returns every block the translator started filling, in order.
func (t *Translator) Blocks() []*ir.Block { return t.blocks }

// Enter moves the insertion point to blk.
func (t *Translator) Enter(blk *ir.Block) {
	t.b.SetInsertPoint(blk)
	t.blocks = append(t.blocks, blk)
	t.vars.NewBasicBlock()
	t.trace.Writef(trace.KindBlock, "enter %s", blk.Name)
}

// StartBlock prepares for a new translation block whose code goes into blk.
// Labels do not carry over between translation blocks.
func (t *Translator) StartBlock(blk *ir.Block) {
	t.labels.Reset()
	t.Enter(blk)
}

func (t *Translator) enterNew() {
	t.Enter(t.fn.NewBlock(""))
}

// Trap replaces the rest of the current instruction with a call to abort
// and continues in a fresh block.
func (t *Translator) Trap(reason error) {
	abort := t.module.GetOrDeclare(AbortName, ir.Void)
	t.b.Call(abort)
	t.b.Unreachable()
	t.trace.Writef(trace.KindTrap, "%v", reason)
	t.enterNew()
}

// NewInstruction handles the insn_start operation opening an original
// instruction. It reports the instruction's address and whether the
// current translation block must stop because the address was already
// translated. The first instruction of a translation block is never looked
// up: its block was chosen by the caller.
func (t *Translator) NewInstruction(insn ptc.Instruction, first bool) (stop bool, pc uint64, err error) {
	consts := insn.Consts()
	pc = consts.At(0)
	if consts.Len() > 1 {
		pc |= consts.At(1) << 32
	}

	var text string
	if t.disasm != nil {
		if s, err := t.disasm.Format(pc); err == nil {
			text = s
		}
	}
	t.trace.Writef(trace.KindBoundary, "0x%x %s", pc, text)

	if !first {
		if target, fill := t.jt.NewPC(pc); target != nil {
			t.b.Br(target)
			if !fill {
				return true, pc, nil
			}
			t.Enter(target)
		}
	}

	if open := t.markers.Current(); open != nil {
		if err := t.markers.Close(open, pc); err != nil {
			return false, pc, &Error{Op: insn.Op(), Address: pc, Err: err}
		}
	}
	m := t.markers.Open(t.b, pc, text)

	if !first {
		if t.b.AtBlockStart() {
			t.jt.RegisterBlock(pc, t.b.Block())
		} else {
			t.jt.RegisterInstruction(pc, m)
			// A later jump may split the block here, so no loaded value
			// may reach past this point.
			t.vars.NewBasicBlock()
		}
	}
	return false, pc, nil
}

// Finish closes the open marker, if any, at end, the address following the
// last translated instruction.
func (t *Translator) Finish(end uint64) error {
	open := t.markers.Current()
	if open == nil {
		return nil
	}
	if err := t.markers.Close(open, end); err != nil {
		return &Error{Op: ptc.OpInsnStart, Address: open.Address, Err: err}
	}
	return nil
}

// Translate lowers one plain or call operation belonging to the original
// instruction at pc.
func (t *Translator) Translate(insn ptc.Instruction, pc uint64) error {
	if insn.IsCall() {
		if err := t.TranslateCall(insn); err != nil {
			return &Error{Op: insn.Op(), Address: pc, Err: err}
		}
		return nil
	}

	op := insn.Op()
	t.trace.Write(trace.KindOp, insn.String())

	in, err := t.loadInputs(insn)
	if err != nil {
		return &Error{Op: op, Address: pc, Err: err}
	}
	out, err := t.translateOpcode(insn, in)
	if err != nil {
		return &Error{Op: op, Address: pc, Err: err}
	}
	outs := insn.Outputs()
	if len(out) != outs.Len() {
		panic(fmt.Sprintf("translate: %s produced %d values for %d outputs", op, len(out), outs.Len()))
	}

	for i, v := range out {
		id := outs.At(i)
		if err := t.vars.Store(t.b, id, v); err != nil {
			return &Error{Op: op, Address: pc, Err: err}
		}
		t.notePCWrite(id, v, pc)
	}
	return nil
}

// notePCWrite reports constant program counter writes as jump targets.
func (t *Translator) notePCWrite(id uint64, v ir.Value, pc uint64) {
	address, ok := ir.IsConst(v)
	if !ok || address == pc {
		return
	}
	slot, err := t.vars.Slot(id)
	if err != nil || !t.jt.IsPCSlot(slot) {
		return
	}
	t.jt.NoteDirectTarget(address)
}

// loadInputs loads every input operand. The base operand of state field
// accesses is left nil: it is validated, never read.
func (t *Translator) loadInputs(insn ptc.Instruction) ([]ir.Value, error) {
	ins := insn.Inputs()
	base := stateBaseOperand(insn.Op())
	vals := make([]ir.Value, ins.Len())
	for i := range vals {
		if i == base {
			continue
		}
		v, err := t.vars.Load(t.b, ins.At(i))
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

// TranslateCall lowers a call to a helper. Parameter types follow the loaded
// arguments and the return type follows the output slot.
func (t *Translator) TranslateCall(insn ptc.Instruction) error {
	helper := insn.Helper()
	t.trace.Write(trace.KindOp, insn.String())

	ins := insn.Inputs()
	args := make([]ir.Value, ins.Len())
	params := make([]ir.Type, ins.Len())
	for i := range args {
		v, err := t.vars.Load(t.b, ins.At(i))
		if err != nil {
			return err
		}
		args[i] = v
		params[i] = v.Type()
	}

	ret := ir.Void
	outs := insn.Outputs()
	if outs.Len() > 1 {
		return fmt.Errorf("%w: helper %s has %d outputs", ptc.ErrArity, helper.Name, outs.Len())
	}
	if outs.Len() == 1 {
		slot, err := t.vars.Slot(outs.At(0))
		if err != nil {
			return err
		}
		ret = slot.Elem
	}

	callee := t.module.GetOrDeclare(HelperPrefix+helper.Name, ret, params...)
	if !sameSignature(callee, ret, params) {
		return fmt.Errorf("%w: %s", ErrHelperSignature, callee.Name)
	}
	result := t.b.Call(callee, args...)
	t.vars.InvalidateState()

	if outs.Len() == 1 {
		return t.vars.Store(t.b, outs.At(0), result)
	}
	return nil
}

func sameSignature(fn *ir.Function, ret ir.Type, params []ir.Type) bool {
	if fn.Ret != ret || len(fn.Params) != len(params) {
		return false
	}
	for i, p := range params {
		if fn.Params[i] != p {
			return false
		}
	}
	return true
}
