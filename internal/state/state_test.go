package state_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tinyrange/lift/internal/ir"
	"github.com/tinyrange/lift/internal/ptc"
	"github.com/tinyrange/lift/internal/state"
)

func offset(v int64) *int64 { return &v }

var _ = Describe("Store", func() {
	var (
		module *ir.Module
		fn     *ir.Function
		b      *ir.Builder
		layout *state.Layout
		store  *state.Store
	)

	BeforeEach(func() {
		var err error
		layout, err = state.FromListing([]ptc.SlotDef{
			{ID: 0, Name: "env", Type: "ptr", Kind: "global", Env: true},
			{ID: 1, Name: "pc", Type: "i64", Kind: "global", Offset: offset(128), PC: true},
			{ID: 2, Name: "r0", Type: "i32", Kind: "global", Offset: offset(16)},
			{ID: 3, Name: "tmp", Type: "i32"},
		})
		Expect(err).NotTo(HaveOccurred())

		module = ir.NewModule("test")
		fn, err = module.NewFunction("root", ir.Void)
		Expect(err).NotTo(HaveOccurred())
		b = ir.NewBuilder(fn)
		b.SetInsertPoint(fn.NewBlock("entry"))
		store = state.New(layout, fn)
	})

	It("should allocate globals in the module and temporaries in the function", func() {
		r0, err := store.Slot(2)
		Expect(err).NotTo(HaveOccurred())
		Expect(r0.Global).To(BeTrue())
		Expect(r0.Offset).To(Equal(int64(16)))
		Expect(module.Globals()).To(ContainElement(r0))

		tmp, err := store.Slot(3)
		Expect(err).NotTo(HaveOccurred())
		Expect(tmp.Global).To(BeFalse())
		Expect(fn.Locals).To(ConsistOf(tmp))

		again, _ := store.Slot(3)
		Expect(again).To(BeIdenticalTo(tmp))
	})

	It("should reject unknown slots", func() {
		_, err := store.Slot(42)
		Expect(err).To(MatchError(ContainSubstring("unknown slot 42")))
	})

	It("should forward stored values within a block", func() {
		five := ir.ConstInt(ir.I32, 5)
		Expect(store.Store(b, 2, five)).To(Succeed())

		v, err := store.Load(b, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeIdenticalTo(five))
		Expect(b.Block().Instrs).To(HaveLen(1))
	})

	It("should reuse the first load of a slot", func() {
		first, err := store.Load(b, 3)
		Expect(err).NotTo(HaveOccurred())
		second, err := store.Load(b, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(BeIdenticalTo(first))
		Expect(b.Block().Instrs).To(HaveLen(1))
	})

	It("should forget forwarded values in a new block", func() {
		Expect(store.Store(b, 2, ir.ConstInt(ir.I32, 5))).To(Succeed())
		next := fn.NewBlock("next")
		b.Br(next)
		b.SetInsertPoint(next)
		store.NewBasicBlock()

		v, err := store.Load(b, 2)
		Expect(err).NotTo(HaveOccurred())
		_, isConst := ir.IsConst(v)
		Expect(isConst).To(BeFalse())
		Expect(next.Instrs).To(HaveLen(1))
	})

	It("should forget only process state on invalidation", func() {
		Expect(store.Store(b, 2, ir.ConstInt(ir.I32, 5))).To(Succeed())
		Expect(store.Store(b, 3, ir.ConstInt(ir.I32, 7))).To(Succeed())
		store.InvalidateState()

		tmp, err := store.Load(b, 3)
		Expect(err).NotTo(HaveOccurred())
		val, isConst := ir.IsConst(tmp)
		Expect(isConst).To(BeTrue())
		Expect(val).To(Equal(uint64(7)))

		r0, err := store.Load(b, 2)
		Expect(err).NotTo(HaveOccurred())
		_, isConst = ir.IsConst(r0)
		Expect(isConst).To(BeFalse())
	})

	It("should refuse stores of the wrong type", func() {
		err := store.Store(b, 2, ir.ConstInt(ir.I64, 1))
		Expect(err).To(MatchError(ContainSubstring("storing i64")))
	})

	It("should recognize the state base and the program counter", func() {
		Expect(store.IsStateBase(0)).To(BeTrue())
		Expect(store.IsStateBase(2)).To(BeFalse())
		Expect(store.IsStateBase(99)).To(BeFalse())

		pc := store.PCVar()
		Expect(pc).NotTo(BeNil())
		Expect(pc.Name).To(Equal("pc"))
	})

	It("should find fields by offset", func() {
		r0, _ := store.Slot(2)
		field, err := store.FieldAtOffset(16)
		Expect(err).NotTo(HaveOccurred())
		Expect(field).To(BeIdenticalTo(r0))

		anon, err := store.FieldAtOffset(0x40)
		Expect(err).NotTo(HaveOccurred())
		Expect(anon.Name).To(Equal("state_40"))
		Expect(anon.Elem).To(Equal(ir.I64))

		_, err = store.FieldAtOffset(-8)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Layout", func() {
	It("should reject a second state base", func() {
		_, err := state.NewLayout([]state.Slot{
			{ID: 0, Type: ir.Ptr, Global: true, Env: true},
			{ID: 1, Type: ir.Ptr, Global: true, Env: true},
		})
		Expect(err).To(MatchError(ContainSubstring("state base")))
	})

	It("should reject overlapping offsets", func() {
		_, err := state.NewLayout([]state.Slot{
			{ID: 0, Name: "a", Type: ir.I32, Global: true, Offset: 8},
			{ID: 1, Name: "b", Type: ir.I32, Global: true, Offset: 8},
		})
		Expect(err).To(MatchError(ContainSubstring("share offset 8")))
	})

	It("should name anonymous slots after their id", func() {
		l, err := state.NewLayout([]state.Slot{{ID: 7, Type: ir.I64, Offset: -1}})
		Expect(err).NotTo(HaveOccurred())
		s, ok := l.Lookup(7)
		Expect(ok).To(BeTrue())
		Expect(s.Name).To(Equal("t7"))
	})

	It("should parse slot types", func() {
		for name, want := range map[string]ir.Type{"i8": ir.I8, "i64": ir.I64, "ptr": ir.Ptr} {
			got, err := state.ParseType(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(want))
		}
		_, err := state.ParseType("f32")
		Expect(err).To(HaveOccurred())
		_, err = state.FromListing([]ptc.SlotDef{{ID: 1, Type: "i32", Kind: "register"}})
		Expect(err).To(MatchError(ContainSubstring("unknown kind")))
	})
})
