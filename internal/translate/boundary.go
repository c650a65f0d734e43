package translate

import (
	"fmt"

	"github.com/tinyrange/lift/internal/ir"
)

// Tracker delimits the code generated for each original instruction with
// markers. At most one marker is open at a time.
type Tracker struct {
	fn   *ir.Function
	open *ir.Marker
}

func NewTracker(fn *ir.Function) *Tracker {
	return &Tracker{fn: fn}
}

// Current returns the open marker, or nil.
func (t *Tracker) Current() *ir.Marker { return t.open }

// Open starts a marker for the instruction at address at the builder's
// current position.
func (t *Tracker) Open(b *ir.Builder, address uint64, text string) *ir.Marker {
	if t.open != nil {
		panic(fmt.Sprintf("translate: marker %s still open", t.open))
	}
	blk := b.Block()
	m := &ir.Marker{
		Address: address,
		Text:    text,
		Block:   blk,
		Index:   len(blk.Instrs),
	}
	t.fn.AddMarker(m)
	t.open = m
	return m
}

// Close finalizes m, which spans the code up to the instruction at address.
func (t *Tracker) Close(m *ir.Marker, address uint64) error {
	if m != t.open {
		panic(fmt.Sprintf("translate: closing %s, but %s is open", m, t.open))
	}
	if address <= m.Address {
		return fmt.Errorf("%w: 0x%x does not follow 0x%x", ErrNonIncreasing, address, m.Address)
	}
	m.Length = address - m.Address
	t.open = nil
	return nil
}
