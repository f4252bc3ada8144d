package runner

import (
	"fmt"

	"multigrid.ai/internal/sim/relay"
	"multigrid.ai/internal/sim/reward"
	"multigrid.ai/internal/sim/scenarios"
	"multigrid.ai/internal/sim/tuning"
	"multigrid.ai/internal/sim/world"
)

// NewWorld builds a world from tuning values.
func NewWorld(t tuning.Tuning) (*world.World, error) {
	scen, err := scenarios.Lookup(t.Scenario)
	if err != nil {
		return nil, err
	}
	cfg := world.WorldConfig{
		Scenario:    scen,
		Seed:        t.Seed,
		MaxSteps:    t.MaxSteps,
		KeyPolicy:   world.KeyPolicy(t.KeyPolicy),
		RelayCredit: relay.CreditPolicy(t.RelayCredit),
		GoalReward:  world.GoalReward(t.GoalReward),
	}
	if s := t.Shaping; s != nil {
		if s.Disabled {
			cfg.Shaper = reward.Zero{}
		} else {
			w, err := s.Weights()
			if err != nil {
				return nil, err
			}
			cfg.Shaper = reward.NewTableShaper(w)
		}
	}
	w, err := world.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", t.Scenario, err)
	}
	return w, nil
}
