package ir

import "fmt"

// Builder appends instructions at a single insertion point: the end of the
// current block.
type Builder struct {
	fn    *Function
	block *Block
}

func NewBuilder(fn *Function) *Builder {
	return &Builder{fn: fn}
}

func (b *Builder) Function() *Function { return b.fn }

// Block returns the current insertion block.
func (b *Builder) Block() *Block { return b.block }

func (b *Builder) SetInsertPoint(blk *Block) {
	if blk.fn != b.fn {
		panic(fmt.Sprintf("ir: block %s belongs to another function", blk.Name))
	}
	b.block = blk
}

// AtBlockStart reports whether nothing has been emitted in the current block.
func (b *Builder) AtBlockStart() bool {
	return b.block != nil && b.block.Empty()
}

func (b *Builder) emit(op Op, typ Type, operands ...Value) *Instr {
	if b.block == nil {
		panic("ir: builder has no insertion point")
	}
	if b.block.Terminated() {
		panic(fmt.Sprintf("ir: block %s already terminated", b.block.Name))
	}
	inst := b.fn.newInstr(op, typ)
	inst.Operands = operands
	inst.block = b.block
	b.block.Instrs = append(b.block.Instrs, inst)
	return inst
}

func sameInt(op Op, x, y Value) Type {
	if !x.Type().IsInt() || x.Type() != y.Type() {
		panic(fmt.Sprintf("ir: %s operands have mismatched types %s and %s", op, x.Type(), y.Type()))
	}
	return x.Type()
}

// BinOp emits a two-operand integer operation.
func (b *Builder) BinOp(op Op, x, y Value) Value {
	if !op.IsBinary() {
		panic(fmt.Sprintf("ir: %s is not a binary operation", op))
	}
	return b.emit(op, sameInt(op, x, y), x, y)
}

func (b *Builder) Add(x, y Value) Value  { return b.BinOp(OpAdd, x, y) }
func (b *Builder) Sub(x, y Value) Value  { return b.BinOp(OpSub, x, y) }
func (b *Builder) Mul(x, y Value) Value  { return b.BinOp(OpMul, x, y) }
func (b *Builder) And(x, y Value) Value  { return b.BinOp(OpAnd, x, y) }
func (b *Builder) Or(x, y Value) Value   { return b.BinOp(OpOr, x, y) }
func (b *Builder) Xor(x, y Value) Value  { return b.BinOp(OpXor, x, y) }
func (b *Builder) Shl(x, y Value) Value  { return b.BinOp(OpShl, x, y) }
func (b *Builder) LShr(x, y Value) Value { return b.BinOp(OpLShr, x, y) }

// ICmp compares x and y, producing an i1.
func (b *Builder) ICmp(pred Predicate, x, y Value) Value {
	sameInt(OpICmp, x, y)
	inst := b.emit(OpICmp, I1, x, y)
	inst.Pred = pred
	return inst
}

func (b *Builder) Select(cond, x, y Value) Value {
	if cond.Type() != I1 {
		panic(fmt.Sprintf("ir: select condition has type %s", cond.Type()))
	}
	return b.emit(OpSelect, sameInt(OpSelect, x, y), cond, x, y)
}

func (b *Builder) cast(op Op, v Value, to Type) Value {
	if !v.Type().IsInt() || !to.IsInt() {
		panic(fmt.Sprintf("ir: %s from %s to %s", op, v.Type(), to))
	}
	switch op {
	case OpTrunc:
		if to.Bits >= v.Type().Bits {
			panic(fmt.Sprintf("ir: trunc from %s to %s does not narrow", v.Type(), to))
		}
	default:
		if to.Bits <= v.Type().Bits {
			panic(fmt.Sprintf("ir: %s from %s to %s does not widen", op, v.Type(), to))
		}
	}
	return b.emit(op, to, v)
}

// Trunc narrows v to t. A value already of type t is returned unchanged.
func (b *Builder) Trunc(v Value, t Type) Value {
	if v.Type() == t {
		return v
	}
	return b.cast(OpTrunc, v, t)
}

// ZExt zero-extends v to t. A value already of type t is returned unchanged.
func (b *Builder) ZExt(v Value, t Type) Value {
	if v.Type() == t {
		return v
	}
	return b.cast(OpZExt, v, t)
}

// SExt sign-extends v to t. A value already of type t is returned unchanged.
func (b *Builder) SExt(v Value, t Type) Value {
	if v.Type() == t {
		return v
	}
	return b.cast(OpSExt, v, t)
}

// ZExtOrTrunc fits v to t by zero extension or truncation.
func (b *Builder) ZExtOrTrunc(v Value, t Type) Value {
	switch {
	case v.Type() == t:
		return v
	case v.Type().Bits < t.Bits:
		return b.cast(OpZExt, v, t)
	default:
		return b.cast(OpTrunc, v, t)
	}
}

func (b *Builder) IntToPtr(v Value) Value {
	if !v.Type().IsInt() {
		panic(fmt.Sprintf("ir: inttoptr from %s", v.Type()))
	}
	return b.emit(OpIntToPtr, Ptr, v)
}

// BSwap reverses the bytes of v, whose width must be a multiple of 16 bits.
func (b *Builder) BSwap(v Value) Value {
	t := v.Type()
	if !t.IsInt() || t.Bits%16 != 0 {
		panic(fmt.Sprintf("ir: bswap of %s", t))
	}
	return b.emit(OpBSwap, t, v)
}

// Load reads a value of type t from ptr. An alignment of zero means natural
// alignment.
func (b *Builder) Load(t Type, ptr Value, align int) Value {
	if !ptr.Type().IsPtr() {
		panic(fmt.Sprintf("ir: load through %s", ptr.Type()))
	}
	inst := b.emit(OpLoad, t, ptr)
	inst.Align = align
	return inst
}

func (b *Builder) Store(v, ptr Value, align int) *Instr {
	if !ptr.Type().IsPtr() {
		panic(fmt.Sprintf("ir: store through %s", ptr.Type()))
	}
	inst := b.emit(OpStore, Void, v, ptr)
	inst.Align = align
	return inst
}

// Call emits a call to fn. The call has fn's return type.
func (b *Builder) Call(fn *Function, args ...Value) *Instr {
	if len(args) != len(fn.Params) {
		panic(fmt.Sprintf("ir: call to %s with %d arguments, want %d", fn.Name, len(args), len(fn.Params)))
	}
	inst := b.emit(OpCall, fn.Ret, args...)
	inst.Callee = fn
	return inst
}

func (b *Builder) Br(target *Block) *Instr {
	inst := b.emit(OpBr, Void)
	inst.Targets = []*Block{target}
	return inst
}

func (b *Builder) CondBr(cond Value, then, otherwise *Block) *Instr {
	if cond.Type() != I1 {
		panic(fmt.Sprintf("ir: conditional branch on %s", cond.Type()))
	}
	inst := b.emit(OpCondBr, Void, cond)
	inst.Targets = []*Block{then, otherwise}
	return inst
}

func (b *Builder) Unreachable() *Instr {
	return b.emit(OpUnreachable, Void)
}
