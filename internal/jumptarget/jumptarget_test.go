package jumptarget_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tinyrange/lift/internal/ir"
	"github.com/tinyrange/lift/internal/jumptarget"
)

var _ = Describe("Manager", func() {
	var (
		module *ir.Module
		fn     *ir.Function
		pc     *ir.Var
		m      *jumptarget.Manager
	)

	BeforeEach(func() {
		var err error
		module = ir.NewModule("test")
		fn, err = module.NewFunction("root", ir.Void)
		Expect(err).NotTo(HaveOccurred())
		pc = module.Global("pc", ir.I64, 128)
		m = jumptarget.New(fn, jumptarget.Options{PC: pc})
	})

	It("should hand out placeholders in discovery order", func() {
		entry := m.BlockAt(0x1000)
		Expect(entry.Name).To(Equal("bb.0x1000"))
		Expect(fn.Entry()).To(BeIdenticalTo(entry))
		Expect(m.BlockAt(0x1000)).To(BeIdenticalTo(entry))

		m.NoteDirectTarget(0x2000)
		m.NoteDirectTarget(0x2000)

		address, b, ok := m.Next()
		Expect(ok).To(BeTrue())
		Expect(address).To(Equal(uint64(0x1000)))
		Expect(b).To(BeIdenticalTo(entry))

		address, b, ok = m.Next()
		Expect(ok).To(BeTrue())
		Expect(address).To(Equal(uint64(0x2000)))
		Expect(b.Name).To(Equal("bb.0x2000"))

		_, _, ok = m.Next()
		Expect(ok).To(BeFalse())
	})

	It("should report unknown addresses as nil", func() {
		b, fill := m.NewPC(0x1234)
		Expect(b).To(BeNil())
		Expect(fill).To(BeFalse())
	})

	It("should let the caller fill a placeholder reached by fallthrough", func() {
		ph := m.BlockAt(0x1008)

		b, fill := m.NewPC(0x1008)
		Expect(b).To(BeIdenticalTo(ph))
		Expect(fill).To(BeTrue())

		b, fill = m.NewPC(0x1008)
		Expect(b).To(BeIdenticalTo(ph))
		Expect(fill).To(BeFalse())

		_, _, ok := m.Next()
		Expect(ok).To(BeFalse())
	})

	It("should return translated blocks without asking to fill them", func() {
		blk := fn.NewBlock("")
		m.RegisterBlock(0x1000, blk)
		m.RegisterBlock(0x1000, fn.NewBlock(""))

		b, fill := m.NewPC(0x1000)
		Expect(b).To(BeIdenticalTo(blk))
		Expect(fill).To(BeFalse())
	})

	It("should split a block at an instruction reached by a jump", func() {
		blk := fn.NewBlock("head")
		b := ir.NewBuilder(fn)
		b.SetInsertPoint(blk)
		b.Store(ir.ConstInt(ir.I64, 1), pc, 0)
		marker := &ir.Marker{Address: 0x1004, Block: blk, Index: len(blk.Instrs)}
		fn.AddMarker(marker)
		b.Store(ir.ConstInt(ir.I64, 2), pc, 0)
		b.Unreachable()
		m.RegisterInstruction(0x1004, marker)

		tail, fill := m.NewPC(0x1004)
		Expect(fill).To(BeFalse())
		Expect(tail.Name).To(Equal("bb.0x1004"))
		Expect(tail.Instrs).To(HaveLen(2))
		Expect(blk.Successors()).To(ConsistOf(tail))
		Expect(marker.Block).To(BeIdenticalTo(tail))
		Expect(marker.Index).To(Equal(0))

		again, _ := m.NewPC(0x1004)
		Expect(again).To(BeIdenticalTo(tail))

		address, ok := m.Address(tail)
		Expect(ok).To(BeTrue())
		Expect(address).To(Equal(uint64(0x1004)))
		_, ok = m.Address(blk)
		Expect(ok).To(BeFalse())
	})

	It("should split lazily for queued targets inside translated code", func() {
		blk := fn.NewBlock("head")
		b := ir.NewBuilder(fn)
		b.SetInsertPoint(blk)
		b.Store(ir.ConstInt(ir.I64, 1), pc, 0)
		marker := &ir.Marker{Address: 0x1004, Block: blk, Index: len(blk.Instrs)}
		m.RegisterInstruction(0x1004, marker)
		m.NoteDirectTarget(0x1004)

		Expect(blk.Instrs).To(HaveLen(1))
		_, _, ok := m.Next()
		Expect(ok).To(BeFalse())

		tail, ok := m.Lookup(0x1004)
		Expect(ok).To(BeTrue())
		Expect(tail.Name).To(Equal("bb.0x1004"))
		Expect(blk.Terminated()).To(BeTrue())
	})

	It("should recognize the program counter", func() {
		Expect(m.IsPCSlot(pc)).To(BeTrue())
		Expect(m.IsPCSlot(module.Global("r0", ir.I64, 0))).To(BeFalse())
		Expect(m.IsPCSlot(nil)).To(BeFalse())

		other := jumptarget.New(fn, jumptarget.Options{})
		Expect(other.IsPCSlot(nil)).To(BeFalse())
	})

	It("should declare the exit routine once", func() {
		exit := m.ExitRoutine()
		Expect(exit.Name).To(Equal(jumptarget.DefaultExitName))
		Expect(exit.Declaration()).To(BeTrue())
		Expect(exit.Ret).To(Equal(ir.Void))
		Expect(m.ExitRoutine()).To(BeIdenticalTo(exit))

		custom := jumptarget.New(fn, jumptarget.Options{ExitName: "leave"})
		Expect(custom.ExitRoutine().Name).To(Equal("leave"))
	})
})
