package translate_test

//go:generate mockgen -destination=mock_translate_test.go -package=translate_test github.com/tinyrange/lift/internal/translate JumpTargets

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/tinyrange/lift/internal/arch"
	"github.com/tinyrange/lift/internal/ir"
	"github.com/tinyrange/lift/internal/jumptarget"
	"github.com/tinyrange/lift/internal/ptc"
	"github.com/tinyrange/lift/internal/state"
	"github.com/tinyrange/lift/internal/translate"
)

// Slot ids of the test layout.
const (
	slotEnv  = 0
	slotPC   = 1
	slotW0   = 20 // i32 globals w0..w5
	slotX0   = 30 // i64 globals x0..x5
	slotR0   = 10
	slotF8   = 11
	slotTmp  = 12
	slotByte = 13
)

const entryPC = 0x1000

func testLayout(t *testing.T) *state.Layout {
	t.Helper()
	slots := []state.Slot{
		{ID: slotEnv, Name: "env", Type: ir.Ptr, Global: true, Offset: -1, Env: true},
		{ID: slotPC, Name: "pc", Type: ir.I64, Global: true, Offset: 128, PC: true},
		{ID: slotR0, Name: "r0", Type: ir.I64, Global: true, Offset: 16},
		{ID: slotF8, Name: "f8", Type: ir.I32, Global: true, Offset: 24},
		{ID: slotTmp, Name: "tmp", Type: ir.I64, Offset: -1},
		{ID: slotByte, Name: "b0", Type: ir.I8, Global: true, Offset: -1},
	}
	for i := range 6 {
		slots = append(slots,
			state.Slot{ID: uint64(slotW0 + i), Name: fmt.Sprintf("w%d", i), Type: ir.I32, Global: true, Offset: -1},
			state.Slot{ID: uint64(slotX0 + i), Name: fmt.Sprintf("x%d", i), Type: ir.I64, Global: true, Offset: -1},
		)
	}
	layout, err := state.NewLayout(slots)
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	return layout
}

type harness struct {
	module *ir.Module
	fn     *ir.Function
	b      *ir.Builder
	vars   *state.Store
	jt     *jumptarget.Manager
	tr     *translate.Translator
	target arch.Descriptor
}

func mustArch(t *testing.T, name arch.Architecture) arch.Descriptor {
	t.Helper()
	d, err := arch.Lookup(name)
	if err != nil {
		t.Fatalf("arch %s: %v", name, err)
	}
	return d
}

func newHarness(t *testing.T) *harness {
	return newHarnessArch(t, arch.ArchitectureX86_64, arch.ArchitectureX86_64)
}

func newHarnessArch(t *testing.T, source, target arch.Architecture) *harness {
	t.Helper()
	module := ir.NewModule("test")
	fn, err := module.NewFunction("root", ir.Void)
	if err != nil {
		t.Fatalf("NewFunction: %v", err)
	}
	b := ir.NewBuilder(fn)
	vars := state.New(testLayout(t), fn)
	jt := jumptarget.New(fn, jumptarget.Options{PC: vars.PCVar()})
	h := &harness{
		module: module,
		fn:     fn,
		b:      b,
		vars:   vars,
		jt:     jt,
		target: mustArch(t, target),
	}
	h.tr = translate.New(b, translate.Options{
		Variables:   vars,
		JumpTargets: jt,
		Source:      mustArch(t, source),
		Target:      h.target,
	})
	entry := jt.BlockAt(entryPC)
	if _, _, ok := jt.Next(); !ok {
		t.Fatalf("entry block was not queued")
	}
	h.tr.StartBlock(entry)
	return h
}

// r32 and r64 return the ids of the i-th 32 and 64-bit test registers.
func r32(i int) uint64 { return uint64(slotW0 + i) }

func r64(i int) uint64 { return uint64(slotX0 + i) }

func insn(t *testing.T, op ptc.Opcode, args ...uint64) ptc.Instruction {
	t.Helper()
	i, err := ptc.NewInstruction(op, args)
	if err != nil {
		t.Fatalf("NewInstruction(%s): %v", op, err)
	}
	return i
}

// emit translates a sequence of operations of the instruction at entryPC.
func (h *harness) emit(t *testing.T, ops ...ptc.Instruction) {
	t.Helper()
	for _, op := range ops {
		if err := h.tr.Translate(op, entryPC); err != nil {
			t.Fatalf("Translate(%s): %v", op, err)
		}
	}
}

func (h *harness) slot(t *testing.T, id uint64) *ir.Var {
	t.Helper()
	v, err := h.vars.Slot(id)
	if err != nil {
		t.Fatalf("slot %d: %v", id, err)
	}
	return v
}

// run leaves the translated code through the exit routine and evaluates the
// function with the given slot contents. It may be called more than once.
func (h *harness) run(t *testing.T, inputs map[uint64]uint64, setup ...func(*ir.Machine)) *ir.Machine {
	t.Helper()
	if !h.b.Block().Terminated() {
		h.b.Call(h.jt.ExitRoutine())
		h.b.Unreachable()
	}
	m := ir.NewMachine()
	m.BigEndian = h.target.IsBigEndian()
	m.Calls[jumptarget.DefaultExitName] = func([]*big.Int) (*big.Int, error) {
		return nil, ir.ErrHalt
	}
	for id, v := range inputs {
		m.Set(h.slot(t, id), v)
	}
	for _, f := range setup {
		f(m)
	}
	if err := m.Run(h.fn); err != nil {
		t.Fatalf("run: %v\n%s", err, h.fn)
	}
	return m
}

func (h *harness) get(t *testing.T, m *ir.Machine, id uint64) uint64 {
	t.Helper()
	return m.Get(h.slot(t, id))
}

// find returns the instructions of op across the function.
func (h *harness) find(op ir.Op) []*ir.Instr {
	var found []*ir.Instr
	for _, b := range h.fn.Blocks {
		for _, inst := range b.Instrs {
			if inst.Op == op {
				found = append(found, inst)
			}
		}
	}
	return found
}
