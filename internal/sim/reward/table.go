package reward

import (
	"multigrid.ai/internal/sim/actions"
	"multigrid.ai/internal/sim/grid"
)

// Weights configures TableShaper. Every weight is multiplied by Scale.
type Weights struct {
	Scale         float64
	PickupCounter map[grid.Kind]float64
	DoorSuccess   float64
	DoorFailure   float64
}

// SharedSpaceWeights are the weights of the shared-space scenario family.
func SharedSpaceWeights() Weights {
	return Weights{
		Scale:         1e-3,
		PickupCounter: map[grid.Kind]float64{grid.KindKey: 1},
		DoorSuccess:   5,
		DoorFailure:   1,
	}
}

// TableShaper rewards counter pickups and door toggles. A counter pickup is
// credited once per agent and item; the credit lapses when the agent no
// longer carries that item, so a later pickup of the same item pays again.
type TableShaper struct {
	W Weights

	credited map[string]uint64 // agent id -> credited object id
}

func NewTableShaper(w Weights) *TableShaper {
	if w.Scale == 0 {
		w.Scale = 1
	}
	return &TableShaper{W: w, credited: map[string]uint64{}}
}

func (s *TableShaper) Reset() { s.credited = map[string]uint64{} }

func (s *TableShaper) Shape(outcomes map[string]Outcome) map[string]float64 {
	out := make(map[string]float64, len(outcomes))
	for id, oc := range outcomes {
		if cid, ok := s.credited[id]; ok && (oc.Carrying == nil || oc.Carrying.ID != cid) {
			delete(s.credited, id)
		}

		var r float64
		in := oc.Info
		switch in.Kind {
		case actions.InfoPickupCounter:
			if in.OK && in.Item != nil {
				w := s.W.PickupCounter[in.Item.Kind]
				if _, done := s.credited[id]; w != 0 && !done {
					r = w
					s.credited[id] = in.Item.ID
				}
			}
		case actions.InfoDoor:
			if in.OK {
				r = s.W.DoorSuccess
			} else {
				r = s.W.DoorFailure
			}
		}
		out[id] = r * s.W.Scale
	}
	return out
}

// CreditedItem reports the item id agentID is currently credited for.
func (s *TableShaper) CreditedItem(agentID string) (uint64, bool) {
	id, ok := s.credited[agentID]
	return id, ok
}

func (s *TableShaper) Credits() map[string]uint64 {
	if len(s.credited) == 0 {
		return nil
	}
	out := make(map[string]uint64, len(s.credited))
	for id, oid := range s.credited {
		out[id] = oid
	}
	return out
}

func (s *TableShaper) RestoreCredits(credits map[string]uint64) {
	s.credited = make(map[string]uint64, len(credits))
	for id, oid := range credits {
		s.credited[id] = oid
	}
}
