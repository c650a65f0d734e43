package translate

import (
	"strconv"

	"github.com/tinyrange/lift/internal/ir"
)

// LabelName returns the block name used for a branch-target identifier.
func LabelName(id uint64) string { return "L" + strconv.FormatUint(id, 10) }

// LabelTable maps branch labels to blocks. Label identifiers are local to a
// translation block, so the driver calls Reset between them.
type LabelTable struct {
	fn     *ir.Function
	blocks map[string]*ir.Block
}

func NewLabelTable(fn *ir.Function) *LabelTable {
	return &LabelTable{fn: fn, blocks: make(map[string]*ir.Block)}
}

// Resolve returns the block for label id, appending a new empty one to the
// function when the label has not been seen yet.
func (t *LabelTable) Resolve(id uint64) *ir.Block {
	name := LabelName(id)
	if b, ok := t.blocks[name]; ok {
		return b
	}
	b := t.fn.NewBlock(name)
	t.blocks[name] = b
	return b
}

// DefinePoint returns the block code following label id goes into. A block
// created earlier by a forward reference is moved to the end of the function
// so the block order follows the code.
func (t *LabelTable) DefinePoint(id uint64) (*ir.Block, error) {
	name := LabelName(id)
	b, ok := t.blocks[name]
	if !ok {
		b = t.fn.NewBlock(name)
		t.blocks[name] = b
		return b, nil
	}
	if !b.Empty() {
		return nil, ErrLabelRedefined
	}
	t.fn.MoveToEnd(b)
	return b, nil
}

func (t *LabelTable) Len() int { return len(t.blocks) }

// Reset forgets every label. Blocks already created stay in the function.
func (t *LabelTable) Reset() {
	clear(t.blocks)
}
