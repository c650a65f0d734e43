package ir

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrHalt may be returned by a call hook to stop evaluation cleanly.
	ErrHalt = errors.New("ir: halt")
	// ErrUnreachable is returned when evaluation reaches an unreachable
	// terminator.
	ErrUnreachable = errors.New("ir: reached unreachable")
)

// CallHook implements an external function during evaluation. Arguments and
// the result are raw two's-complement bit patterns.
type CallHook func(args []*big.Int) (*big.Int, error)

// Machine is a reference evaluator for generated code. It is slow and exists
// to check the semantics of translated code.
type Machine struct {
	// Vars holds the contents of globals and locals.
	Vars map[*Var]*big.Int
	// Memory is byte-addressed storage reached through inttoptr pointers.
	Memory    map[uint64]byte
	BigEndian bool
	Calls     map[string]CallHook
	// MaxSteps bounds the number of executed instructions (0 = 1<<20).
	MaxSteps int

	values map[*Instr]*big.Int
}

func NewMachine() *Machine {
	return &Machine{
		Vars:   make(map[*Var]*big.Int),
		Memory: make(map[uint64]byte),
		Calls:  make(map[string]CallHook),
	}
}

// Set stores a raw value into v.
func (m *Machine) Set(v *Var, raw uint64) {
	m.Vars[v] = normalize(new(big.Int).SetUint64(raw), v.Elem.Bits)
}

// Get returns the low 64 bits of v's contents.
func (m *Machine) Get(v *Var) uint64 {
	if x, ok := m.Vars[v]; ok {
		return lowBits(x)
	}
	return 0
}

// GetBig returns the full contents of v.
func (m *Machine) GetBig(v *Var) *big.Int {
	if x, ok := m.Vars[v]; ok {
		return new(big.Int).Set(x)
	}
	return new(big.Int)
}

func lowBits(x *big.Int) uint64 {
	return new(big.Int).And(x, mask(64)).Uint64()
}

func mask(bits int) *big.Int {
	one := big.NewInt(1)
	return new(big.Int).Sub(new(big.Int).Lsh(one, uint(bits)), one)
}

// normalize reduces x to its unsigned representation in bits.
func normalize(x *big.Int, bits int) *big.Int {
	return x.And(x, mask(bits))
}

// signed reinterprets the unsigned representation x as two's complement.
func signed(x *big.Int, bits int) *big.Int {
	r := new(big.Int).Set(x)
	if r.Bit(bits-1) == 1 {
		r.Sub(r, new(big.Int).Lsh(big.NewInt(1), uint(bits)))
	}
	return r
}

// Run evaluates f from its entry block until it falls off an unreachable,
// a hook halts, or an error occurs.
func (m *Machine) Run(f *Function) error {
	if f.Declaration() {
		return fmt.Errorf("ir: cannot evaluate declaration %s", f.Name)
	}
	return m.RunFrom(f, f.Entry())
}

// RunFrom is Run starting at block start of f. Values defined before start
// are unset.
func (m *Machine) RunFrom(f *Function, start *Block) error {
	if start == nil {
		return fmt.Errorf("ir: %s has no blocks", f.Name)
	}
	if start.Parent() != f {
		return fmt.Errorf("ir: block %s is not in %s", start.Name, f.Name)
	}
	limit := m.MaxSteps
	if limit == 0 {
		limit = 1 << 20
	}
	m.values = make(map[*Instr]*big.Int)

	block := start
	steps := 0
	for {
		if len(block.Instrs) == 0 {
			return fmt.Errorf("ir: fell into empty block %s", block.Name)
		}
		var next *Block
		for _, inst := range block.Instrs {
			steps++
			if steps > limit {
				return fmt.Errorf("ir: step limit %d exceeded", limit)
			}
			target, err := m.step(inst)
			if errors.Is(err, ErrHalt) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("ir: %s: %s: %w", block.Name, FormatInstr(inst), err)
			}
			if target != nil {
				next = target
				break
			}
		}
		if next == nil {
			return fmt.Errorf("ir: block %s ended without a terminator", block.Name)
		}
		block = next
	}
}

func (m *Machine) operand(v Value) (*big.Int, error) {
	switch v := v.(type) {
	case *Const:
		return new(big.Int).SetUint64(v.Val), nil
	case *Instr:
		x, ok := m.values[v]
		if !ok {
			return nil, fmt.Errorf("use of %s before definition", v.Ident())
		}
		return x, nil
	default:
		return nil, fmt.Errorf("operand %s cannot be evaluated", v.Ident())
	}
}

func (m *Machine) operands(inst *Instr) ([]*big.Int, error) {
	vals := make([]*big.Int, 0, len(inst.Operands))
	for _, op := range inst.Operands {
		if _, ok := op.(*Var); ok {
			vals = append(vals, nil)
			continue
		}
		x, err := m.operand(op)
		if err != nil {
			return nil, err
		}
		vals = append(vals, x)
	}
	return vals, nil
}

func (m *Machine) step(inst *Instr) (*Block, error) {
	args, err := m.operands(inst)
	if err != nil {
		return nil, err
	}

	var result *big.Int
	switch inst.Op {
	case OpAdd, OpSub, OpMul, OpSDiv, OpUDiv, OpSRem, OpURem,
		OpAnd, OpOr, OpXor, OpShl, OpLShr, OpAShr:
		result, err = binary(inst.Op, args[0], args[1], inst.typ.Bits)
		if err != nil {
			return nil, err
		}
	case OpICmp:
		bits := inst.Operands[0].Type().Bits
		if compare(inst.Pred, args[0], args[1], bits) {
			result = big.NewInt(1)
		} else {
			result = big.NewInt(0)
		}
	case OpSelect:
		if args[0].Sign() != 0 {
			result = new(big.Int).Set(args[1])
		} else {
			result = new(big.Int).Set(args[2])
		}
	case OpTrunc, OpZExt, OpIntToPtr:
		result = normalize(new(big.Int).Set(args[0]), inst.typ.Bits)
	case OpSExt:
		result = normalize(signed(args[0], inst.Operands[0].Type().Bits), inst.typ.Bits)
	case OpBSwap:
		result = byteSwap(args[0], inst.typ.Bits)
	case OpLoad:
		result, err = m.load(inst, args)
		if err != nil {
			return nil, err
		}
	case OpStore:
		return nil, m.store(inst, args)
	case OpCall:
		hook, ok := m.Calls[inst.Callee.Name]
		if !ok {
			return nil, fmt.Errorf("no implementation for %s", inst.Callee.Name)
		}
		ret, err := hook(args)
		if err != nil {
			return nil, err
		}
		if !inst.typ.IsVoid() {
			if ret == nil {
				ret = new(big.Int)
			}
			result = normalize(new(big.Int).Set(ret), inst.typ.Bits)
		}
	case OpBr:
		return inst.Targets[0], nil
	case OpCondBr:
		if args[0].Sign() != 0 {
			return inst.Targets[0], nil
		}
		return inst.Targets[1], nil
	case OpUnreachable:
		return nil, ErrUnreachable
	default:
		return nil, fmt.Errorf("unsupported operation %s", inst.Op)
	}

	if result != nil {
		m.values[inst] = result
	}
	return nil, nil
}

func binary(op Op, x, y *big.Int, bits int) (*big.Int, error) {
	r := new(big.Int)
	switch op {
	case OpAdd:
		r.Add(x, y)
	case OpSub:
		r.Sub(x, y)
	case OpMul:
		r.Mul(x, y)
	case OpUDiv, OpURem:
		if y.Sign() == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		if op == OpUDiv {
			r.Quo(x, y)
		} else {
			r.Rem(x, y)
		}
	case OpSDiv, OpSRem:
		if y.Sign() == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		sx, sy := signed(x, bits), signed(y, bits)
		if op == OpSDiv {
			r.Quo(sx, sy)
		} else {
			r.Rem(sx, sy)
		}
	case OpAnd:
		r.And(x, y)
	case OpOr:
		r.Or(x, y)
	case OpXor:
		r.Xor(x, y)
	case OpShl, OpLShr, OpAShr:
		// Shift amounts of at least the operand width shift every bit out.
		if !y.IsUint64() || y.Uint64() >= uint64(bits) {
			if op == OpAShr && x.Bit(bits-1) == 1 {
				return mask(bits), nil
			}
			return r, nil
		}
		n := uint(y.Uint64())
		switch op {
		case OpShl:
			r.Lsh(x, n)
		case OpLShr:
			r.Rsh(x, n)
		default:
			r.Rsh(signed(x, bits), n)
		}
	default:
		return nil, fmt.Errorf("unsupported binary operation %s", op)
	}
	return normalize(r, bits), nil
}

func compare(pred Predicate, x, y *big.Int, bits int) bool {
	switch pred {
	case PredFalse:
		return false
	case PredTrue:
		return true
	case PredEQ:
		return x.Cmp(y) == 0
	case PredNE:
		return x.Cmp(y) != 0
	case PredULT:
		return x.Cmp(y) < 0
	case PredULE:
		return x.Cmp(y) <= 0
	case PredUGT:
		return x.Cmp(y) > 0
	case PredUGE:
		return x.Cmp(y) >= 0
	}
	c := signed(x, bits).Cmp(signed(y, bits))
	switch pred {
	case PredSLT:
		return c < 0
	case PredSLE:
		return c <= 0
	case PredSGT:
		return c > 0
	case PredSGE:
		return c >= 0
	}
	return false
}

func byteSwap(x *big.Int, bits int) *big.Int {
	n := bits / 8
	buf := make([]byte, n)
	x.FillBytes(buf)
	for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return new(big.Int).SetBytes(buf)
}

func (m *Machine) load(inst *Instr, args []*big.Int) (*big.Int, error) {
	if v, ok := inst.Operands[0].(*Var); ok {
		x, ok := m.Vars[v]
		if !ok {
			x = new(big.Int)
		}
		return normalize(new(big.Int).Set(x), inst.typ.Bits), nil
	}
	addr := args[0].Uint64()
	n := inst.typ.Bytes()
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = m.Memory[addr+uint64(i)]
	}
	if !m.BigEndian {
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			buf[i], buf[j] = buf[j], buf[i]
		}
	}
	return new(big.Int).SetBytes(buf), nil
}

func (m *Machine) store(inst *Instr, args []*big.Int) error {
	val := inst.Operands[0]
	if _, ok := val.(*Var); ok {
		return fmt.Errorf("storing a pointer to %s is not supported", val.Ident())
	}
	if v, ok := inst.Operands[1].(*Var); ok {
		m.Vars[v] = normalize(new(big.Int).Set(args[0]), v.Elem.Bits)
		return nil
	}
	addr := args[1].Uint64()
	n := val.Type().Bytes()
	buf := make([]byte, n)
	args[0].FillBytes(buf)
	if !m.BigEndian {
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			buf[i], buf[j] = buf[j], buf[i]
		}
	}
	for i, b := range buf {
		m.Memory[addr+uint64(i)] = b
	}
	return nil
}
