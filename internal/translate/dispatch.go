package translate

import (
	"fmt"

	"github.com/tinyrange/lift/internal/ir"
	"github.com/tinyrange/lift/internal/ptc"
)

// unimplemented lists the opcodes that are part of the enumeration but have
// no lowering.
var unimplemented = map[ptc.Opcode]bool{
	ptc.OpMuluhI32:    true,
	ptc.OpMulshI32:    true,
	ptc.OpMuluhI64:    true,
	ptc.OpMulshI64:    true,
	ptc.OpSetcond2I32: true,
	ptc.OpTruncShrI32: true,
	ptc.OpBrcond2I32:  true,
}

// Unimplemented reports whether op is deliberately left without a lowering.
func Unimplemented(op ptc.Opcode) bool { return unimplemented[op] }

// stateBaseOperand returns the index of the input holding the process-state
// base for state field accesses, or -1.
func stateBaseOperand(op ptc.Opcode) int {
	switch {
	case isStateLoad(op):
		return 0
	case isStateStore(op):
		return 1
	default:
		return -1
	}
}

func isStateLoad(op ptc.Opcode) bool {
	return (op >= ptc.OpLd8uI32 && op <= ptc.OpLdI32) || (op >= ptc.OpLd8uI64 && op <= ptc.OpLdI64)
}

func isStateStore(op ptc.Opcode) bool {
	return (op >= ptc.OpSt8I32 && op <= ptc.OpStI32) || (op >= ptc.OpSt8I64 && op <= ptc.OpStI64)
}

// stateAccess returns the access width and signedness of a state field
// load or store.
func stateAccess(op ptc.Opcode) (bits int, signed bool) {
	switch op {
	case ptc.OpLd8uI32, ptc.OpLd8uI64, ptc.OpSt8I32, ptc.OpSt8I64:
		return 8, false
	case ptc.OpLd8sI32, ptc.OpLd8sI64:
		return 8, true
	case ptc.OpLd16uI32, ptc.OpLd16uI64, ptc.OpSt16I32, ptc.OpSt16I64:
		return 16, false
	case ptc.OpLd16sI32, ptc.OpLd16sI64:
		return 16, true
	case ptc.OpLd32uI64, ptc.OpSt32I64:
		return 32, false
	case ptc.OpLd32sI64:
		return 32, true
	default:
		return RegisterSize(op), false
	}
}

// addressOperand returns the index of the guest address input of qemu_ld
// and qemu_st, or -1.
func addressOperand(op ptc.Opcode) int {
	switch op {
	case ptc.OpQemuLdI32, ptc.OpQemuLdI64:
		return 0
	case ptc.OpQemuStI32, ptc.OpQemuStI64:
		return 1
	}
	return -1
}

// checkOperands verifies the loaded inputs have the types op expects before
// any code is emitted for it.
func checkOperands(op ptc.Opcode, in []ir.Value) error {
	w := RegisterSize(op)
	if w == 0 {
		return nil
	}
	rt := ir.Int(w)
	addr := addressOperand(op)
	for i, v := range in {
		if v == nil {
			continue
		}
		t := v.Type()
		switch {
		case !t.IsInt():
			return fmt.Errorf("%w: input %d is %s", ErrOperandType, i, t)
		case i == addr:
			// Guest addresses may have any integer width.
		case op == ptc.OpMovI32 || op == ptc.OpMovI64:
			if t.Bits < w {
				return fmt.Errorf("%w: input %d is %s, want at least %s", ErrOperandType, i, t, rt)
			}
		case t != rt:
			return fmt.Errorf("%w: input %d is %s, want %s", ErrOperandType, i, t, rt)
		}
	}
	return nil
}

// translateOpcode emits the code for one plain operation and returns one
// value per declared output.
func (t *Translator) translateOpcode(insn ptc.Instruction, in []ir.Value) ([]ir.Value, error) {
	op := insn.Op()
	if !op.Valid() {
		return nil, ErrUnknownOpcode
	}
	if unimplemented[op] {
		return nil, ErrUnimplemented
	}
	if err := checkOperands(op, in); err != nil {
		return nil, err
	}

	b := t.b
	consts := insn.Consts()
	w := RegisterSize(op)
	var rt ir.Type
	if w != 0 {
		rt = ir.Int(w)
	}

	switch op {
	case ptc.OpInsnStart, ptc.OpGotoTB:
		return nil, nil

	case ptc.OpMoviI32, ptc.OpMoviI64:
		return []ir.Value{ir.ConstInt(rt, consts.At(0))}, nil

	case ptc.OpDiscard:
		slot, err := t.vars.Slot(insn.Outputs().At(0))
		if err != nil {
			return nil, err
		}
		if !slot.Elem.IsInt() {
			return nil, fmt.Errorf("%w: discarded slot %s is %s", ErrOperandType, slot.Name, slot.Elem)
		}
		return []ir.Value{ir.ConstInt(slot.Elem, 0)}, nil

	case ptc.OpMovI32, ptc.OpMovI64:
		return []ir.Value{b.Trunc(in[0], rt)}, nil

	case ptc.OpSetcondI32, ptc.OpSetcondI64:
		cmp, err := t.compare(consts.At(0), in[0], in[1])
		if err != nil {
			return nil, err
		}
		return []ir.Value{b.ZExt(cmp, rt)}, nil

	case ptc.OpMovcondI32, ptc.OpMovcondI64:
		cmp, err := t.compare(consts.At(0), in[0], in[1])
		if err != nil {
			return nil, err
		}
		return []ir.Value{b.Select(cmp, in[2], in[3])}, nil

	case ptc.OpQemuLdI32, ptc.OpQemuLdI64, ptc.OpQemuStI32, ptc.OpQemuStI64:
		return t.guestAccess(op, rt, consts.At(0), in)

	case ptc.OpLd8uI32, ptc.OpLd8sI32, ptc.OpLd16uI32, ptc.OpLd16sI32, ptc.OpLdI32,
		ptc.OpLd8uI64, ptc.OpLd8sI64, ptc.OpLd16uI64, ptc.OpLd16sI64,
		ptc.OpLd32uI64, ptc.OpLd32sI64, ptc.OpLdI64:
		return t.stateLoad(insn, rt)

	case ptc.OpSt8I32, ptc.OpSt16I32, ptc.OpStI32,
		ptc.OpSt8I64, ptc.OpSt16I64, ptc.OpSt32I64, ptc.OpStI64:
		return nil, t.stateStore(insn, in[0])

	case ptc.OpAddI32, ptc.OpSubI32, ptc.OpMulI32, ptc.OpDivI32, ptc.OpDivuI32,
		ptc.OpRemI32, ptc.OpRemuI32, ptc.OpAndI32, ptc.OpOrI32, ptc.OpXorI32,
		ptc.OpShlI32, ptc.OpShrI32, ptc.OpSarI32,
		ptc.OpAddI64, ptc.OpSubI64, ptc.OpMulI64, ptc.OpDivI64, ptc.OpDivuI64,
		ptc.OpRemI64, ptc.OpRemuI64, ptc.OpAndI64, ptc.OpOrI64, ptc.OpXorI64,
		ptc.OpShlI64, ptc.OpShrI64, ptc.OpSarI64:
		return []ir.Value{b.BinOp(BinaryOp(op), in[0], in[1])}, nil

	case ptc.OpDiv2I32, ptc.OpDiv2I64, ptc.OpDivu2I32, ptc.OpDivu2I64:
		div, rem := ir.OpSDiv, ir.OpSRem
		if op == ptc.OpDivu2I32 || op == ptc.OpDivu2I64 {
			div, rem = ir.OpUDiv, ir.OpURem
		}
		// in[1], the high word of the dividend, is not used.
		return []ir.Value{
			b.BinOp(div, in[0], in[2]),
			b.BinOp(rem, in[0], in[2]),
		}, nil

	case ptc.OpRotlI32, ptc.OpRotlI64, ptc.OpRotrI32, ptc.OpRotrI64:
		x, n := in[0], in[1]
		rest := b.Sub(ir.ConstInt(rt, uint64(w)), n)
		if op == ptc.OpRotlI32 || op == ptc.OpRotlI64 {
			return []ir.Value{b.Or(b.LShr(x, rest), b.Shl(x, n))}, nil
		}
		return []ir.Value{b.Or(b.Shl(x, rest), b.LShr(x, n))}, nil

	case ptc.OpDepositI32, ptc.OpDepositI64:
		pos, length := consts.At(0), consts.At(1)
		if pos == uint64(w) {
			return []ir.Value{in[0]}, nil
		}
		if pos > uint64(w) || length > uint64(w) {
			return nil, fmt.Errorf("%w: deposit of %d bits at %d", ErrBadConstant, length, pos)
		}
		bits := lowMask(length)
		base := b.And(in[0], ir.ConstInt(rt, ^(bits << pos)))
		field := b.Shl(b.And(in[1], ir.ConstInt(rt, bits)), ir.ConstInt(rt, pos))
		return []ir.Value{b.Or(base, field)}, nil

	case ptc.OpExt8sI32, ptc.OpExt8sI64, ptc.OpExt8uI32, ptc.OpExt8uI64,
		ptc.OpExt16sI32, ptc.OpExt16sI64, ptc.OpExt16uI32, ptc.OpExt16uI64,
		ptc.OpExt32sI64, ptc.OpExt32uI64:
		return []ir.Value{t.extend(op, rt, in[0])}, nil

	case ptc.OpNotI32, ptc.OpNotI64:
		return []ir.Value{b.Xor(in[0], allOnes(rt))}, nil

	case ptc.OpNegI32, ptc.OpNegI64:
		return []ir.Value{b.Sub(ir.ConstInt(rt, 0), in[0])}, nil

	case ptc.OpAndcI32, ptc.OpAndcI64:
		return []ir.Value{b.And(in[0], b.Xor(in[1], allOnes(rt)))}, nil

	case ptc.OpOrcI32, ptc.OpOrcI64:
		return []ir.Value{b.Or(in[0], b.Xor(in[1], allOnes(rt)))}, nil

	case ptc.OpEqvI32, ptc.OpEqvI64:
		return []ir.Value{b.Xor(in[0], b.Xor(in[1], allOnes(rt)))}, nil

	case ptc.OpNandI32, ptc.OpNandI64:
		return []ir.Value{b.Xor(b.And(in[0], in[1]), allOnes(rt))}, nil

	case ptc.OpNorI32, ptc.OpNorI64:
		return []ir.Value{b.Xor(b.Or(in[0], in[1]), allOnes(rt))}, nil

	case ptc.OpBswap16I32, ptc.OpBswap16I64, ptc.OpBswap32I32, ptc.OpBswap32I64, ptc.OpBswap64I64:
		swapBits := 16
		switch op {
		case ptc.OpBswap32I32, ptc.OpBswap32I64:
			swapBits = 32
		case ptc.OpBswap64I64:
			swapBits = 64
		}
		swapped := b.BSwap(b.Trunc(in[0], ir.Int(swapBits)))
		return []ir.Value{b.ZExt(swapped, rt)}, nil

	case ptc.OpSetLabel:
		blk, err := t.labels.DefinePoint(consts.At(0))
		if err != nil {
			return nil, fmt.Errorf("%w: %s", err, LabelName(consts.At(0)))
		}
		b.Br(blk)
		t.Enter(blk)
		return nil, nil

	case ptc.OpBr, ptc.OpBrcondI32, ptc.OpBrcondI64:
		target := t.labels.Resolve(consts.Last())
		if op == ptc.OpBr {
			b.Br(target)
		} else {
			cmp, err := t.compare(consts.At(0), in[0], in[1])
			if err != nil {
				return nil, err
			}
			next := t.fn.NewBlock("")
			b.CondBr(cmp, target, next)
			t.Enter(next)
			return nil, nil
		}
		t.enterNew()
		return nil, nil

	case ptc.OpExitTB:
		b.Call(t.jt.ExitRoutine())
		b.Unreachable()
		t.enterNew()
		return nil, nil

	case ptc.OpAdd2I32, ptc.OpAdd2I64, ptc.OpSub2I32, ptc.OpSub2I64:
		// Low halves are zero-extended: a sign-extended low half would
		// set the high bits and corrupt the or with the shifted high half.
		wide := ir.Int(2 * w)
		shift := ir.ConstInt(wide, uint64(w))
		x := b.Or(b.Shl(b.SExt(in[1], wide), shift), b.ZExt(in[0], wide))
		y := b.Or(b.Shl(b.SExt(in[3], wide), shift), b.ZExt(in[2], wide))
		lo, hi := t.split(b.BinOp(BinaryOp(op), x, y), rt)
		return []ir.Value{lo, hi}, nil

	case ptc.OpMulu2I32, ptc.OpMulu2I64, ptc.OpMuls2I32, ptc.OpMuls2I64:
		wide := ir.Int(2 * w)
		var x, y ir.Value
		if op == ptc.OpMulu2I32 || op == ptc.OpMulu2I64 {
			x, y = b.ZExt(in[0], wide), b.ZExt(in[1], wide)
		} else {
			x, y = b.SExt(in[0], wide), b.SExt(in[1], wide)
		}
		lo, hi := t.split(b.Mul(x, y), rt)
		return []ir.Value{lo, hi}, nil

	case ptc.OpCall:
		return nil, fmt.Errorf("%w: call without helper", ptc.ErrArity)

	default:
		return nil, ErrUnknownOpcode
	}
}

func (t *Translator) compare(raw uint64, x, y ir.Value) (ir.Value, error) {
	c := ptc.Cond(raw)
	if !c.Valid() {
		return nil, fmt.Errorf("%w: condition %d", ErrBadConstant, raw)
	}
	return t.b.ICmp(Predicate(c), x, y), nil
}

// split returns the low and high halves of a double-width value.
func (t *Translator) split(v ir.Value, half ir.Type) (lo, hi ir.Value) {
	lo = t.b.Trunc(v, half)
	hi = t.b.Trunc(t.b.LShr(v, ir.ConstInt(v.Type(), uint64(half.Bits))), half)
	return lo, hi
}

func (t *Translator) extend(op ptc.Opcode, rt ir.Type, x ir.Value) ir.Value {
	var from int
	signed := false
	switch op {
	case ptc.OpExt8sI32, ptc.OpExt8sI64:
		from, signed = 8, true
	case ptc.OpExt8uI32, ptc.OpExt8uI64:
		from = 8
	case ptc.OpExt16sI32, ptc.OpExt16sI64:
		from, signed = 16, true
	case ptc.OpExt16uI32, ptc.OpExt16uI64:
		from = 16
	case ptc.OpExt32sI64:
		from, signed = 32, true
	case ptc.OpExt32uI64:
		from = 32
	default:
		panic(fmt.Sprintf("translate: %s is not an extension", op))
	}
	narrow := t.b.Trunc(x, ir.Int(from))
	if signed {
		return t.b.SExt(narrow, rt)
	}
	return t.b.ZExt(narrow, rt)
}

// guestAccess lowers qemu_ld and qemu_st: a guest memory access through a
// computed address.
func (t *Translator) guestAccess(op ptc.Opcode, rt ir.Type, raw uint64, in []ir.Value) ([]ir.Value, error) {
	access, err := ptc.ParseMemAccess(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownAccess, err)
	}
	if access.Access == ptc.AccessUnknown {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccess, access)
	}
	if access.Bits > rt.Bits {
		return nil, fmt.Errorf("%w: %d-bit access through %s", ErrOperandType, access.Bits, rt)
	}

	align := t.source.DefaultAlignment
	if access.Access == ptc.AccessUnaligned {
		align = 1
	}
	mem := ir.Int(access.Bits)
	swap := access.Bits > 8 && t.source.Endianness != t.target.Endianness

	b := t.b
	if op == ptc.OpQemuLdI32 || op == ptc.OpQemuLdI64 {
		loaded := b.Load(mem, b.IntToPtr(in[0]), align)
		if swap {
			loaded = b.BSwap(loaded)
		}
		if access.Signed {
			return []ir.Value{b.SExt(loaded, rt)}, nil
		}
		return []ir.Value{b.ZExt(loaded, rt)}, nil
	}

	v := b.Trunc(in[0], mem)
	if swap {
		v = b.BSwap(v)
	}
	b.Store(v, b.IntToPtr(in[1]), align)
	return nil, nil
}

func (t *Translator) stateField(insn ptc.Instruction) (*ir.Var, error) {
	base := insn.Inputs().At(stateBaseOperand(insn.Op()))
	if !t.vars.IsStateBase(base) {
		return nil, ErrUntracedState
	}
	field, err := t.vars.FieldAtOffset(int64(insn.Consts().At(0)))
	if err != nil {
		return nil, err
	}
	if !field.Elem.IsInt() {
		return nil, fmt.Errorf("%w: state field %s is %s", ErrOperandType, field.Name, field.Elem)
	}
	return field, nil
}

// stateLoad lowers ld*: a read of a process-state field at a fixed offset.
func (t *Translator) stateLoad(insn ptc.Instruction, rt ir.Type) ([]ir.Value, error) {
	field, err := t.stateField(insn)
	if err != nil {
		return nil, err
	}
	bits, signed := stateAccess(insn.Op())

	b := t.b
	v := b.ZExtOrTrunc(b.Load(field.Elem, field, 0), ir.Int(bits))
	if signed {
		return []ir.Value{b.SExt(v, rt)}, nil
	}
	return []ir.Value{b.ZExt(v, rt)}, nil
}

// stateStore lowers st*: a write of a process-state field at a fixed offset.
func (t *Translator) stateStore(insn ptc.Instruction, v ir.Value) error {
	field, err := t.stateField(insn)
	if err != nil {
		return err
	}
	bits, _ := stateAccess(insn.Op())

	b := t.b
	v = b.ZExtOrTrunc(b.Trunc(v, ir.Int(bits)), field.Elem)
	b.Store(v, field, 0)
	t.vars.InvalidateState()
	return nil
}
