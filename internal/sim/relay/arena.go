package relay

import (
	"fmt"

	"multigrid.ai/internal/sim/actions"
	"multigrid.ai/internal/sim/grid"
)

type CreditPolicy string

const (
	// CreditFirst credits only the first matching agent in resolution order.
	CreditFirst CreditPolicy = "first"
	// CreditAll credits every matching agent.
	CreditAll CreditPolicy = "all"
)

// Delivery records one completed relay in a tick.
type Delivery struct {
	RelayID  string   `json:"relay_id"`
	Item     string   `json:"item"`
	Credited []string `json:"credited,omitempty"`
}

// Arena holds the relays of one episode, indexed by id, in insertion order.
type Arena struct {
	Policy CreditPolicy

	relays []*Relay
	byID   map[string]*Relay
}

func NewArena(policy CreditPolicy) *Arena {
	if policy == "" {
		policy = CreditFirst
	}
	return &Arena{Policy: policy, byID: map[string]*Relay{}}
}

// Add registers a relay and puts its first item on the source counter.
func (a *Arena) Add(spec Spec, g *grid.Grid, newID func() uint64) (*Relay, error) {
	if _, dup := a.byID[spec.ID]; dup {
		return nil, fmt.Errorf("relay %s: %w", spec.ID, ErrDuplicateRelay)
	}
	src, dst := g.Get(spec.Source), g.Get(spec.Dest)
	if src == nil || src.Kind != grid.KindCounter {
		return nil, fmt.Errorf("relay %s source %s: %w", spec.ID, spec.Source, ErrBadEndpoint)
	}
	if dst == nil || dst.Kind != grid.KindCounter {
		return nil, fmt.Errorf("relay %s dest %s: %w", spec.ID, spec.Dest, ErrBadEndpoint)
	}
	r := &Relay{Spec: spec}
	item := r.NewItem(newID())
	if err := src.Put(item); err != nil {
		return nil, fmt.Errorf("relay %s: %w", spec.ID, err)
	}
	r.State = SourcePresent
	r.ItemID = item.ID
	a.relays = append(a.relays, r)
	a.byID[spec.ID] = r
	return r, nil
}

// Restore registers a relay in a known state without touching the grid.
func (a *Arena) Restore(r *Relay) error {
	if _, dup := a.byID[r.ID]; dup {
		return fmt.Errorf("relay %s: %w", r.ID, ErrDuplicateRelay)
	}
	a.relays = append(a.relays, r)
	a.byID[r.ID] = r
	return nil
}

func (a *Arena) Get(id string) *Relay { return a.byID[id] }

func (a *Arena) All() []*Relay { return a.relays }

func (a *Arena) Len() int { return len(a.relays) }

// Tick runs once per world tick after every agent has resolved. For each
// relay it respawns a consumed item once the source is empty, tracks the
// item leaving or returning to the source, retires an instance that no
// longer exists anywhere, and detects, credits and sinks a delivery at the
// destination. order is the agent resolution order used for credit
// tie-breaks; carried holds the agents' carry slots.
func (a *Arena) Tick(g *grid.Grid, order []string, infos map[string]actions.Info, carried []*grid.Object, newID func() uint64) ([]Delivery, error) {
	var out []Delivery
	for _, r := range a.relays {
		src, dst := g.Get(r.Source), g.Get(r.Dest)
		if src == nil || src.Kind != grid.KindCounter || dst == nil || dst.Kind != grid.KindCounter {
			return out, fmt.Errorf("relay %s: %w", r.ID, ErrBadEndpoint)
		}

		if r.State == Consumed && src.Held == nil {
			item := r.NewItem(newID())
			if err := src.Put(item); err != nil {
				return out, fmt.Errorf("relay %s respawn: %w", r.ID, err)
			}
			if err := r.Transition(SourcePresent); err != nil {
				return out, err
			}
			r.ItemID = item.ID
			continue
		}

		atSource := src.Held != nil && src.Held.RelayID == r.ID
		switch {
		case r.State == SourcePresent && !atSource:
			if err := r.Transition(InTransit); err != nil {
				return out, err
			}
		case r.State == InTransit && atSource:
			if err := r.Transition(SourcePresent); err != nil {
				return out, err
			}
		}

		if r.State == InTransit && Manifestations(g, carried, r.ID) == 0 {
			if err := r.Transition(Consumed); err != nil {
				return out, err
			}
			r.ItemID = 0
			r.Lost++
			continue
		}

		if dst.Held == nil || dst.Held.Kind != r.Kind || dst.Held.RelayID != r.ID {
			continue
		}
		if err := r.Transition(Landed); err != nil {
			return out, err
		}
		d := Delivery{RelayID: r.ID, Item: r.Kind.String(), Credited: a.credit(r, order, infos)}
		r.Deliveries++
		if _, err := dst.Take(); err != nil {
			return out, fmt.Errorf("relay %s sink: %w", r.ID, err)
		}
		if err := r.Transition(Consumed); err != nil {
			return out, err
		}
		r.ItemID = 0
		out = append(out, d)
	}
	return out, nil
}

func (a *Arena) credit(r *Relay, order []string, infos map[string]actions.Info) []string {
	var ids []string
	for _, id := range order {
		in, ok := infos[id]
		if !ok || !in.OK || !in.Is(actions.InfoDropCounter, r.Kind) || in.Target != r.Dest {
			continue
		}
		ids = append(ids, id)
		if a.Policy != CreditAll {
			break
		}
	}
	return ids
}

// Manifestations counts the instances of relayID on the grid (including
// counters and box payloads) and in the given carry slots.
func Manifestations(g *grid.Grid, carried []*grid.Object, relayID string) int {
	n := 0
	var walk func(o *grid.Object)
	walk = func(o *grid.Object) {
		if o == nil {
			return
		}
		if o.RelayID == relayID {
			n++
		}
		walk(o.Held)
		walk(o.Contains)
	}
	g.Each(func(_ grid.Pos, o *grid.Object) { walk(o) })
	for _, o := range carried {
		walk(o)
	}
	return n
}
