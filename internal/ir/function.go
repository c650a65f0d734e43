package ir

import (
	"fmt"
	"slices"
	"sync"
)

// Block is a linear, single-entry region of code ending in at most one
// terminator.
type Block struct {
	Name   string
	Instrs []*Instr

	fn *Function
}

func (b *Block) Ident() string { return "%" + b.Name }

func (b *Block) Parent() *Function { return b.fn }

func (b *Block) Empty() bool { return len(b.Instrs) == 0 }

// Terminator returns the block's terminator, or nil when the block is still
// open for appends.
func (b *Block) Terminator() *Instr {
	if len(b.Instrs) == 0 {
		return nil
	}
	last := b.Instrs[len(b.Instrs)-1]
	if !last.IsTerminator() {
		return nil
	}
	return last
}

func (b *Block) Terminated() bool { return b.Terminator() != nil }

// Successors returns the blocks the terminator may transfer control to.
func (b *Block) Successors() []*Block {
	if term := b.Terminator(); term != nil {
		return term.Targets
	}
	return nil
}

// SplitAt moves the instructions starting at index into a new block placed
// right after b and makes b branch to it. Markers positioned inside the moved
// range follow the instructions.
func (b *Block) SplitAt(index int, name string) *Block {
	if index < 0 || index > len(b.Instrs) {
		panic(fmt.Sprintf("ir: split index %d out of range for %s", index, b.Name))
	}
	f := b.fn
	tail := f.newBlock(name)
	pos := slices.Index(f.Blocks, b)
	f.Blocks = slices.Insert(f.Blocks, pos+1, tail)

	tail.Instrs = append(tail.Instrs, b.Instrs[index:]...)
	for _, inst := range tail.Instrs {
		inst.block = tail
	}
	b.Instrs = b.Instrs[:index:index]

	for _, m := range f.Markers {
		if m.Block == b && m.Index >= index {
			m.Block = tail
			m.Index -= index
		}
	}

	br := f.newInstr(OpBr, Void)
	br.Targets = []*Block{tail}
	br.block = b
	b.Instrs = append(b.Instrs, br)
	return tail
}

// Marker ties a span of generated code back to one original machine
// instruction.
type Marker struct {
	Address uint64
	// Length is zero while the marker is open.
	Length uint64
	Text   string

	Block *Block
	Index int
}

func (m *Marker) Open() bool { return m.Length == 0 }

func (m *Marker) String() string {
	return fmt.Sprintf("0x%x+%d", m.Address, m.Length)
}

// Function is either a declaration (no blocks) or a definition whose first
// block is the entry.
type Function struct {
	Name    string
	Ret     Type
	Params  []Type
	Blocks  []*Block
	Locals  []*Var
	Markers []*Marker

	module    *Module
	nextID    int
	nextBlock int
}

func (f *Function) Type() Type { return Ptr }

func (f *Function) Ident() string { return "@" + f.Name }

func (f *Function) Module() *Module { return f.module }

func (f *Function) Declaration() bool { return len(f.Blocks) == 0 }

func (f *Function) Entry() *Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

func (f *Function) newBlock(name string) *Block {
	if name == "" {
		name = fmt.Sprintf("bb%d", f.nextBlock)
	}
	f.nextBlock++
	return &Block{Name: name, fn: f}
}

// NewBlock creates an empty block and appends it to the block order.
func (f *Function) NewBlock(name string) *Block {
	b := f.newBlock(name)
	f.Blocks = append(f.Blocks, b)
	return b
}

// MoveToEnd relocates b to the end of the block order.
func (f *Function) MoveToEnd(b *Block) {
	pos := slices.Index(f.Blocks, b)
	if pos < 0 {
		panic(fmt.Sprintf("ir: block %s does not belong to %s", b.Name, f.Name))
	}
	f.Blocks = append(slices.Delete(f.Blocks, pos, pos+1), b)
}

// RemoveBlock drops b from the function. Callers must make sure nothing
// branches to it.
func (f *Function) RemoveBlock(b *Block) {
	pos := slices.Index(f.Blocks, b)
	if pos < 0 {
		return
	}
	f.Blocks = slices.Delete(f.Blocks, pos, pos+1)
	f.Markers = slices.DeleteFunc(f.Markers, func(m *Marker) bool {
		return m.Block == b
	})
}

// Predecessors returns the blocks whose terminator targets b.
func (f *Function) Predecessors(b *Block) []*Block {
	var preds []*Block
	for _, blk := range f.Blocks {
		if slices.Contains(blk.Successors(), b) {
			preds = append(preds, blk)
		}
	}
	return preds
}

// NewLocal declares function-local storage.
func (f *Function) NewLocal(name string, elem Type) *Var {
	v := &Var{Name: name, Elem: elem, Offset: -1}
	f.Locals = append(f.Locals, v)
	return v
}

func (f *Function) AddMarker(m *Marker) {
	f.Markers = append(f.Markers, m)
}

// StripMarkers removes every instruction-boundary annotation.
func (f *Function) StripMarkers() {
	f.Markers = nil
}

func (f *Function) newInstr(op Op, typ Type) *Instr {
	inst := &Instr{Op: op, typ: typ}
	if !typ.IsVoid() {
		f.nextID++
		inst.id = f.nextID
	}
	return inst
}

// InstrCount returns the number of instructions across all blocks.
func (f *Function) InstrCount() int {
	n := 0
	for _, b := range f.Blocks {
		n += len(b.Instrs)
	}
	return n
}

// Module owns functions and process-state globals. It is safe for concurrent
// use by translators working on different functions.
type Module struct {
	Name string

	mu      sync.Mutex
	funcs   []*Function
	byName  map[string]*Function
	globals []*Var
	gByName map[string]*Var
}

func NewModule(name string) *Module {
	return &Module{
		Name:    name,
		byName:  make(map[string]*Function),
		gByName: make(map[string]*Var),
	}
}

// NewFunction creates a function definition. It fails if a function with the
// same name already has a body.
func (m *Module) NewFunction(name string, ret Type, params ...Type) (*Function, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byName[name]; ok {
		if !existing.Declaration() {
			return nil, fmt.Errorf("ir: function %q already defined", name)
		}
		existing.Ret = ret
		existing.Params = params
		return existing, nil
	}
	f := &Function{Name: name, Ret: ret, Params: params, module: m}
	m.funcs = append(m.funcs, f)
	m.byName[name] = f
	return f, nil
}

// GetOrDeclare returns the function called name, declaring it with the given
// signature if it does not exist yet.
func (m *Module) GetOrDeclare(name string, ret Type, params ...Type) *Function {
	m.mu.Lock()
	defer m.mu.Unlock()

	if f, ok := m.byName[name]; ok {
		return f
	}
	f := &Function{Name: name, Ret: ret, Params: params, module: m}
	m.funcs = append(m.funcs, f)
	m.byName[name] = f
	return f
}

func (m *Module) Function(name string) *Function {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byName[name]
}

func (m *Module) Functions() []*Function {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.funcs)
}

// Global returns the global called name, creating it with element type elem
// at the given process-state offset (-1 for none) when missing.
func (m *Module) Global(name string, elem Type, offset int64) *Var {
	m.mu.Lock()
	defer m.mu.Unlock()

	if g, ok := m.gByName[name]; ok {
		return g
	}
	g := &Var{Name: name, Elem: elem, Global: true, Offset: offset}
	m.globals = append(m.globals, g)
	m.gByName[name] = g
	return g
}

func (m *Module) Globals() []*Var {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.globals)
}
