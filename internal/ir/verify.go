package ir

import (
	"errors"
	"fmt"
	"slices"
)

// Verify checks the structural invariants of a function definition: every
// block ends in exactly one terminator, branch targets belong to the function,
// instruction operands are defined in the same function and every boundary
// marker has been closed.
func Verify(f *Function) error {
	if f.Declaration() {
		return nil
	}

	var errs []error
	owned := make(map[*Block]bool, len(f.Blocks))
	for _, b := range f.Blocks {
		owned[b] = true
	}

	for _, b := range f.Blocks {
		if b.fn != f {
			errs = append(errs, fmt.Errorf("ir: block %s has the wrong parent", b.Name))
		}
		if !b.Terminated() {
			errs = append(errs, fmt.Errorf("ir: block %s is not terminated", b.Name))
		}
		for idx, inst := range b.Instrs {
			if inst.block != b {
				errs = append(errs, fmt.Errorf("ir: %s: instruction %d has the wrong parent", b.Name, idx))
			}
			if inst.IsTerminator() && idx != len(b.Instrs)-1 {
				errs = append(errs, fmt.Errorf("ir: %s: terminator at %d is not last", b.Name, idx))
			}
			for _, t := range inst.Targets {
				if !owned[t] {
					errs = append(errs, fmt.Errorf("ir: %s: branch to foreign block %s", b.Name, t.Name))
				}
			}
			for _, op := range inst.Operands {
				if def, ok := op.(*Instr); ok {
					if def.block == nil || def.block.fn != f {
						errs = append(errs, fmt.Errorf("ir: %s: operand %s is not defined in %s", b.Name, def.Ident(), f.Name))
					}
				}
			}
		}
	}

	for idx, m := range f.Markers {
		if m.Open() {
			errs = append(errs, fmt.Errorf("ir: marker at 0x%x is still open", m.Address))
		}
		if !slices.Contains(f.Blocks, m.Block) {
			errs = append(errs, fmt.Errorf("ir: marker at 0x%x points to a removed block", m.Address))
		}
		if idx > 0 && f.Markers[idx-1].Address == m.Address {
			errs = append(errs, fmt.Errorf("ir: duplicate marker for 0x%x", m.Address))
		}
	}

	return errors.Join(errs...)
}
