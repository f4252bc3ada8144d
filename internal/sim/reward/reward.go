package reward

import (
	"multigrid.ai/internal/sim/actions"
	"multigrid.ai/internal/sim/grid"
)

// Outcome is what a shaper sees for one agent after a tick resolved.
type Outcome struct {
	Info     actions.Info
	Carrying *grid.Object
}

// Shaper computes dense per-agent increments from a tick's outcomes. Shapers
// may keep per-episode state; Reset clears it.
type Shaper interface {
	Shape(outcomes map[string]Outcome) map[string]float64
	Reset()
}

// CreditKeeper is implemented by shapers whose per-episode state must
// survive a snapshot.
type CreditKeeper interface {
	Credits() map[string]uint64
	RestoreCredits(map[string]uint64)
}

// Zero never shapes.
type Zero struct{}

func (Zero) Shape(outcomes map[string]Outcome) map[string]float64 {
	out := make(map[string]float64, len(outcomes))
	for id := range outcomes {
		out[id] = 0
	}
	return out
}

func (Zero) Reset() {}

// Pipeline adds the shaper's dense reward on top of the engine's sparse reward.
type Pipeline struct {
	Shaper Shaper
}

// Compute returns the combined reward and the dense part on its own. Agents
// missing from sparse start at zero.
func (p Pipeline) Compute(sparse map[string]float64, outcomes map[string]Outcome) (total, dense map[string]float64) {
	total = make(map[string]float64, len(sparse))
	for id, r := range sparse {
		total[id] = r
	}
	if p.Shaper == nil {
		return total, map[string]float64{}
	}
	dense = p.Shaper.Shape(outcomes)
	for id, r := range dense {
		total[id] += r
	}
	return total, dense
}

func (p Pipeline) Reset() {
	if p.Shaper != nil {
		p.Shaper.Reset()
	}
}

// Credits returns the shaper's credit state, or nil when it keeps none.
func (p Pipeline) Credits() map[string]uint64 {
	if k, ok := p.Shaper.(CreditKeeper); ok {
		return k.Credits()
	}
	return nil
}

// RestoreCredits resets the shaper and loads credits into it when supported.
func (p Pipeline) RestoreCredits(credits map[string]uint64) {
	p.Reset()
	if k, ok := p.Shaper.(CreditKeeper); ok && len(credits) > 0 {
		k.RestoreCredits(credits)
	}
}

// Sum adds per-agent maps.
func Sum(ms ...map[string]float64) map[string]float64 {
	out := map[string]float64{}
	for _, m := range ms {
		for id, r := range m {
			out[id] += r
		}
	}
	return out
}
