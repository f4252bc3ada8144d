package relay

import (
	"errors"
	"fmt"

	"multigrid.ai/internal/sim/grid"
)

var (
	ErrIllegalTransition = errors.New("illegal relay transition")
	ErrDuplicateRelay    = errors.New("duplicate relay id")
	ErrBadEndpoint       = errors.New("relay endpoint is not a counter")
)

// State is the lifecycle position of a relay's single item instance.
type State uint8

const (
	SourcePresent State = iota + 1
	InTransit
	Landed
	Consumed
)

func (s State) String() string {
	switch s {
	case SourcePresent:
		return "source_present"
	case InTransit:
		return "in_transit"
	case Landed:
		return "landed"
	case Consumed:
		return "consumed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Valid reports whether s is one of the lifecycle states.
func (s State) Valid() bool { return s >= SourcePresent && s <= Consumed }

var transitions = map[State][]State{
	SourcePresent: {InTransit},
	InTransit:     {SourcePresent, Landed, Consumed},
	Landed:        {Consumed},
	Consumed:      {SourcePresent},
}

func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Spec describes one relay: an item of Kind/Color that starts on the Source
// counter and is delivered to the Dest counter.
type Spec struct {
	ID     string
	Kind   grid.Kind
	Color  grid.Color
	Source grid.Pos
	Dest   grid.Pos
}

type Relay struct {
	Spec
	State      State
	ItemID     uint64 // current instance; 0 while consumed
	Deliveries int
	Lost       int // instances destroyed in transit, e.g. a key used up on a door
}

// Transition moves the relay to state to, rejecting moves the lifecycle does
// not allow.
func (r *Relay) Transition(to State) error {
	if !CanTransition(r.State, to) {
		return fmt.Errorf("relay %s: %s -> %s: %w", r.ID, r.State, to, ErrIllegalTransition)
	}
	r.State = to
	return nil
}

// NewItem builds a fresh instance of the relay's item tagged with the relay id.
func (r *Relay) NewItem(id uint64) *grid.Object {
	var o *grid.Object
	switch r.Kind {
	case grid.KindBox:
		o = grid.NewBox(r.Color, nil)
	case grid.KindKey:
		o = grid.NewKey(r.Color)
	default:
		o = grid.NewBall(r.Color)
	}
	o.ID = id
	o.RelayID = r.ID
	return o
}
