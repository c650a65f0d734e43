// Package jumptarget discovers the control flow of a function while it is
// being translated. It maps original addresses to blocks, hands out empty
// placeholder blocks for addresses nobody translated yet and splits blocks
// when a jump lands in the middle of already translated code.
package jumptarget

import (
	"fmt"

	"github.com/tinyrange/lift/internal/ir"
)

// DefaultExitName is the routine called to leave translated code.
const DefaultExitName = "exitTB"

type Options struct {
	// PC is the storage of the program counter. Optional.
	PC *ir.Var
	// ExitName overrides DefaultExitName.
	ExitName string
}

// Manager tracks the jump targets of one function. It is not safe for
// concurrent use.
type Manager struct {
	fn       *ir.Function
	pc       *ir.Var
	exitName string

	blocks map[uint64]*ir.Block
	addrOf map[*ir.Block]uint64
	insns  map[uint64]*ir.Marker

	// pending holds placeholders nobody started filling yet.
	pending map[uint64]bool
	queue   []uint64
	queued  map[uint64]bool
}

func New(fn *ir.Function, opts Options) *Manager {
	name := opts.ExitName
	if name == "" {
		name = DefaultExitName
	}
	return &Manager{
		fn:       fn,
		pc:       opts.PC,
		exitName: name,
		blocks:   make(map[uint64]*ir.Block),
		addrOf:   make(map[*ir.Block]uint64),
		insns:    make(map[uint64]*ir.Marker),
		pending:  make(map[uint64]bool),
		queued:   make(map[uint64]bool),
	}
}

// BlockName returns the name given to the block starting at address.
func BlockName(address uint64) string {
	return fmt.Sprintf("bb.0x%x", address)
}

func (m *Manager) enqueue(address uint64) {
	if m.queued[address] {
		return
	}
	m.queued[address] = true
	m.queue = append(m.queue, address)
}

func (m *Manager) placeholder(address uint64) *ir.Block {
	b := m.fn.NewBlock(BlockName(address))
	m.record(address, b)
	return b
}

func (m *Manager) record(address uint64, b *ir.Block) {
	m.blocks[address] = b
	m.addrOf[b] = address
}

// split makes the instruction registered at address start its own block.
func (m *Manager) split(address uint64) *ir.Block {
	marker := m.insns[address]
	delete(m.insns, address)
	tail := marker.Block.SplitAt(marker.Index, BlockName(address))
	m.record(address, tail)
	return tail
}

// BlockAt returns the block for address, creating a placeholder queued for
// translation when the address is unknown.
func (m *Manager) BlockAt(address uint64) *ir.Block {
	if b, ok := m.blocks[address]; ok {
		return b
	}
	if _, ok := m.insns[address]; ok {
		return m.split(address)
	}
	b := m.placeholder(address)
	m.pending[address] = true
	m.enqueue(address)
	return b
}

// NewPC reports the block already associated with address. The second
// result is true when the block is a placeholder the caller should now
// fill. Addresses translated in the middle of a block get their block split
// off. Unknown addresses yield nil.
func (m *Manager) NewPC(address uint64) (*ir.Block, bool) {
	if b, ok := m.blocks[address]; ok {
		if m.pending[address] {
			delete(m.pending, address)
			return b, true
		}
		return b, false
	}
	if _, ok := m.insns[address]; ok {
		return m.split(address), false
	}
	return nil, false
}

// RegisterBlock records that the code for address starts at b. The first
// registration wins.
func (m *Manager) RegisterBlock(address uint64, b *ir.Block) {
	if _, ok := m.blocks[address]; ok {
		return
	}
	m.record(address, b)
}

// RegisterInstruction records that the code for address starts inside a
// block, at the position of marker.
func (m *Manager) RegisterInstruction(address uint64, marker *ir.Marker) {
	if _, ok := m.blocks[address]; ok {
		return
	}
	if _, ok := m.insns[address]; ok {
		return
	}
	m.insns[address] = marker
}

func (m *Manager) IsPCSlot(v *ir.Var) bool {
	return v != nil && v == m.pc
}

// NoteDirectTarget queues address for translation. Nothing happens until
// Next reaches it, so the block being built is never split under the
// caller's feet.
func (m *Manager) NoteDirectTarget(address uint64) {
	if _, ok := m.blocks[address]; ok {
		return
	}
	m.enqueue(address)
}

func (m *Manager) ExitRoutine() *ir.Function {
	return m.fn.Module().GetOrDeclare(m.exitName, ir.Void)
}

// Next returns the next address waiting for translation together with the
// block its code goes into. Addresses that were translated in the meantime
// are skipped. It reports false once the worklist is empty.
func (m *Manager) Next() (uint64, *ir.Block, bool) {
	for len(m.queue) > 0 {
		address := m.queue[0]
		m.queue = m.queue[1:]

		if b, ok := m.blocks[address]; ok {
			if !m.pending[address] {
				continue
			}
			delete(m.pending, address)
			return address, b, true
		}
		if _, ok := m.insns[address]; ok {
			m.split(address)
			continue
		}
		return address, m.placeholder(address), true
	}
	return 0, nil, false
}

// Lookup returns the block registered for address, if any.
func (m *Manager) Lookup(address uint64) (*ir.Block, bool) {
	b, ok := m.blocks[address]
	return b, ok
}

// Address returns the address b was registered for.
func (m *Manager) Address(b *ir.Block) (uint64, bool) {
	address, ok := m.addrOf[b]
	return address, ok
}

// Pending reports the number of queued addresses, including ones Next will
// skip.
func (m *Manager) Pending() int { return len(m.queue) }
