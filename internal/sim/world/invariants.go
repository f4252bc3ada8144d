package world

import (
	"fmt"

	"multigrid.ai/internal/sim/grid"
	"multigrid.ai/internal/sim/relay"
)

// CheckInvariants verifies the structural invariants of the current state:
// agents stand on distinct, enterable, in-bounds cells; every portable item
// is owned by exactly one place; each relay has as many live items as its
// state implies (never more than one).
func (w *World) CheckInvariants() error {
	if w.grid == nil {
		return ErrNotReset
	}

	seenPos := map[grid.Pos]string{}
	for _, id := range w.order {
		a := w.agents[id]
		if !w.grid.InBounds(a.Pos) {
			return fmt.Errorf("agent %s at %s out of bounds: %w", id, a.Pos, ErrInvariant)
		}
		if other, dup := seenPos[a.Pos]; dup {
			return fmt.Errorf("agents %s and %s share %s: %w", other, id, a.Pos, ErrInvariant)
		}
		seenPos[a.Pos] = id
		if cell := w.grid.Get(a.Pos); !cell.CanOverlap() {
			return fmt.Errorf("agent %s stands on %s at %s: %w", id, cell, a.Pos, ErrInvariant)
		}
	}

	owners := map[*grid.Object]string{}
	ids := map[uint64]string{}
	var walk func(o *grid.Object, where string) error
	walk = func(o *grid.Object, where string) error {
		if o == nil {
			return nil
		}
		if o.Kind.Portable() {
			if prev, dup := owners[o]; dup {
				return fmt.Errorf("%s owned by %s and %s: %w", o, prev, where, ErrInvariant)
			}
			owners[o] = where
			if o.ID != 0 {
				if prev, dup := ids[o.ID]; dup {
					return fmt.Errorf("object id %d at %s and %s: %w", o.ID, prev, where, ErrInvariant)
				}
				ids[o.ID] = where
			}
		}
		if err := walk(o.Held, where); err != nil {
			return err
		}
		return walk(o.Contains, where)
	}

	var err error
	w.grid.Each(func(p grid.Pos, o *grid.Object) {
		if err == nil {
			err = walk(o, "cell "+p.String())
		}
	})
	if err != nil {
		return err
	}
	carried := make([]*grid.Object, 0, len(w.order))
	for _, id := range w.order {
		a := w.agents[id]
		if err := walk(a.Carrying, "agent "+id); err != nil {
			return err
		}
		carried = append(carried, a.Carrying)
	}

	for _, r := range w.relays.All() {
		n := relay.Manifestations(w.grid, carried, r.ID)
		want := 1
		if r.State == relay.Consumed {
			want = 0
		}
		if n != want {
			return fmt.Errorf("relay %s in %s has %d items: %w", r.ID, r.State, n, ErrInvariant)
		}
	}
	return nil
}
