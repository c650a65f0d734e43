// Package state allocates the storage micro-operation slots live in:
// module-level globals for process state and function locals for
// temporaries. Within a block, values stored to or loaded from a slot are
// forwarded to later reads of the same slot.
package state

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tinyrange/lift/internal/ir"
	"github.com/tinyrange/lift/internal/ptc"
)

// Slot describes one storage slot.
type Slot struct {
	ID     uint64
	Name   string
	Type   ir.Type
	Global bool
	// Offset is the slot's position in the process state, or -1.
	Offset int64
	// Env marks the slot holding the process-state base.
	Env bool
	// PC marks the program counter.
	PC bool
}

// ParseType parses a slot type: "ptr" or "i<bits>".
func ParseType(s string) (ir.Type, error) {
	if s == "ptr" {
		return ir.Ptr, nil
	}
	if bits, ok := strings.CutPrefix(s, "i"); ok {
		n, err := strconv.Atoi(bits)
		if err == nil && n >= 1 && n <= 128 {
			return ir.Int(n), nil
		}
	}
	return ir.Type{}, fmt.Errorf("state: unknown type %q", s)
}

// Layout is the set of slots shared by every function of a program. It is
// read-only once built and may be shared between goroutines.
type Layout struct {
	slots    map[uint64]*Slot
	byOffset map[int64]*Slot
	env      *Slot
	pc       *Slot
}

func NewLayout(slots []Slot) (*Layout, error) {
	l := &Layout{
		slots:    make(map[uint64]*Slot, len(slots)),
		byOffset: make(map[int64]*Slot),
	}
	for i := range slots {
		s := &slots[i]
		if _, dup := l.slots[s.ID]; dup {
			return nil, fmt.Errorf("state: slot %d declared twice", s.ID)
		}
		if s.Name == "" {
			s.Name = "t" + strconv.FormatUint(s.ID, 10)
		}
		if s.Env {
			if l.env != nil {
				return nil, fmt.Errorf("state: both %s and %s are the state base", l.env.Name, s.Name)
			}
			if !s.Type.IsPtr() {
				return nil, fmt.Errorf("state: state base %s must be a pointer, not %s", s.Name, s.Type)
			}
			l.env = s
		}
		if s.PC {
			if l.pc != nil {
				return nil, fmt.Errorf("state: both %s and %s are the program counter", l.pc.Name, s.Name)
			}
			if !s.Global {
				return nil, fmt.Errorf("state: program counter %s must be global", s.Name)
			}
			l.pc = s
		}
		if !s.Global {
			s.Offset = -1
		} else if s.Offset >= 0 {
			if other, ok := l.byOffset[s.Offset]; ok {
				return nil, fmt.Errorf("state: %s and %s share offset %d", other.Name, s.Name, s.Offset)
			}
			l.byOffset[s.Offset] = s
		}
		l.slots[s.ID] = s
	}
	return l, nil
}

// FromListing builds a layout from listing slot declarations.
func FromListing(defs []ptc.SlotDef) (*Layout, error) {
	slots := make([]Slot, 0, len(defs))
	for _, d := range defs {
		typ, err := ParseType(d.Type)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", d.ID, err)
		}
		s := Slot{ID: d.ID, Name: d.Name, Type: typ, Offset: -1, Env: d.Env, PC: d.PC}
		switch d.Kind {
		case "", "temp":
		case "global":
			s.Global = true
		default:
			return nil, fmt.Errorf("state: slot %d: unknown kind %q", d.ID, d.Kind)
		}
		if d.Offset != nil {
			s.Offset = *d.Offset
		}
		slots = append(slots, s)
	}
	return NewLayout(slots)
}

// Lookup returns the definition of slot id.
func (l *Layout) Lookup(id uint64) (*Slot, bool) {
	s, ok := l.slots[id]
	return s, ok
}

// PC returns the program counter slot, if declared.
func (l *Layout) PC() (*Slot, bool) { return l.pc, l.pc != nil }

// Store materializes slots for one function. It is not safe for concurrent
// use.
type Store struct {
	layout *Layout
	module *ir.Module
	fn     *ir.Function

	vars  map[uint64]*ir.Var
	known map[*ir.Var]ir.Value
}

// New returns a store allocating globals in fn's module and temporaries in
// fn.
func New(layout *Layout, fn *ir.Function) *Store {
	return &Store{
		layout: layout,
		module: fn.Module(),
		fn:     fn,
		vars:   make(map[uint64]*ir.Var),
		known:  make(map[*ir.Var]ir.Value),
	}
}

func (s *Store) global(def *Slot) *ir.Var {
	return s.module.Global(def.Name, def.Type, def.Offset)
}

func (s *Store) Slot(id uint64) (*ir.Var, error) {
	if v, ok := s.vars[id]; ok {
		return v, nil
	}
	def, ok := s.layout.slots[id]
	if !ok {
		return nil, fmt.Errorf("state: unknown slot %d", id)
	}
	var v *ir.Var
	if def.Global {
		v = s.global(def)
	} else {
		v = s.fn.NewLocal(def.Name, def.Type)
	}
	s.vars[id] = v
	return v, nil
}

// PCVar returns the storage of the program counter, or nil.
func (s *Store) PCVar() *ir.Var {
	if s.layout.pc == nil {
		return nil
	}
	v, _ := s.Slot(s.layout.pc.ID)
	return v
}

func (s *Store) Load(b *ir.Builder, id uint64) (ir.Value, error) {
	v, err := s.Slot(id)
	if err != nil {
		return nil, err
	}
	if known, ok := s.known[v]; ok {
		return known, nil
	}
	loaded := b.Load(v.Elem, v, 0)
	s.known[v] = loaded
	return loaded, nil
}

func (s *Store) Store(b *ir.Builder, id uint64, val ir.Value) error {
	v, err := s.Slot(id)
	if err != nil {
		return err
	}
	if val.Type() != v.Elem {
		return fmt.Errorf("state: storing %s into %s of type %s", val.Type(), v.Name, v.Elem)
	}
	b.Store(val, v, 0)
	s.known[v] = val
	return nil
}

func (s *Store) IsStateBase(id uint64) bool {
	def, ok := s.layout.slots[id]
	return ok && def.Env
}

// FieldAtOffset returns the global declared at offset. Offsets nobody
// declared get an anonymous 64-bit field.
func (s *Store) FieldAtOffset(offset int64) (*ir.Var, error) {
	if offset < 0 {
		return nil, fmt.Errorf("state: negative state offset %d", offset)
	}
	if def, ok := s.layout.byOffset[offset]; ok {
		return s.global(def), nil
	}
	return s.module.Global(fmt.Sprintf("state_%x", offset), ir.I64, offset), nil
}

func (s *Store) NewBasicBlock() {
	clear(s.known)
}

func (s *Store) InvalidateState() {
	for v := range s.known {
		if v.Global {
			delete(s.known, v)
		}
	}
}
