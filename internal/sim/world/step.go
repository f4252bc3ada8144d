package world

import (
	"fmt"

	"multigrid.ai/internal/protocol"
	"multigrid.ai/internal/sim/actions"
	"multigrid.ai/internal/sim/grid"
	"multigrid.ai/internal/sim/relay"
	"multigrid.ai/internal/sim/reward"
)

// Reset builds a fresh episode from the current RNG state and returns every
// agent's initial observation. Call Seed first for a reproducible layout.
func (w *World) Reset() (map[string]protocol.ObsMsg, error) {
	w.ready = false
	w.grid = grid.New(w.scen.Width, w.scen.Height)
	w.agents = make(map[string]*Agent, len(w.order))
	for _, id := range w.order {
		w.agents[id] = &Agent{ID: id}
	}
	w.relays = relay.NewArena(w.cfg.RelayCredit)
	w.mission = w.scen.Mission
	w.stepCount = 0
	w.nextObject = 0

	gen := &Gen{Grid: w.grid, Rand: w.rng, w: w}
	if err := w.scen.Generate(gen); err != nil {
		return nil, fmt.Errorf("generate %s: %w", w.scen.Name, err)
	}
	for _, id := range w.order {
		if !w.agents[id].placed {
			return nil, fmt.Errorf("%s: %w", id, ErrAgentNotPlaced)
		}
	}
	w.rewards.Reset()
	w.resets++
	w.ready = true

	if w.cfg.CheckInvariants {
		if err := w.CheckInvariants(); err != nil {
			return nil, err
		}
	}
	return w.observeAll()
}

// Step resolves one tick. Agents act one after another in registration order,
// each against the state left by the agents before it. Agents missing from
// acts do no_op; done agents are skipped. Agent-level failures are reported
// in AgentInfo.ActionInfo, never as errors.
func (w *World) Step(acts map[string]actions.Action) (StepResult, error) {
	if !w.ready {
		return StepResult{}, ErrNotReset
	}
	if w.AllDone() {
		return StepResult{}, ErrEpisodeOver
	}
	for id, a := range acts {
		if w.agents[id] == nil {
			return StepResult{}, fmt.Errorf("%q: %w", id, ErrUnknownAgent)
		}
		if !a.Valid() {
			return StepResult{}, fmt.Errorf("%s: %w", id, actions.ErrInvalidAction)
		}
	}

	w.stepCount++
	infos := make(map[string]actions.Info, len(w.order))
	sparse := make(map[string]float64, len(w.order))
	for _, id := range w.order {
		a := w.agents[id]
		sparse[id] = 0
		if a.Done {
			infos[id] = actions.None()
			continue
		}
		a.StepCount++
		info, r := w.apply(a, acts[id])
		infos[id] = info
		sparse[id] += r
	}

	carried := make([]*grid.Object, 0, len(w.order))
	for _, id := range w.order {
		carried = append(carried, w.agents[id].Carrying)
	}
	deliveries, err := w.relays.Tick(w.grid, w.order, infos, carried, w.newObjectID)
	if err != nil {
		w.ready = false
		return StepResult{}, fmt.Errorf("relay tick %d: %w", w.stepCount, err)
	}
	for _, d := range deliveries {
		for _, id := range d.Credited {
			sparse[id] += RelayReward
		}
	}

	outcomes := make(map[string]reward.Outcome, len(w.order))
	for _, id := range w.order {
		outcomes[id] = reward.Outcome{Info: infos[id], Carrying: w.agents[id].Carrying}
	}
	total, dense := w.rewards.Compute(sparse, outcomes)

	timedOut := map[string]bool{}
	if w.stepCount >= w.maxSteps {
		for _, id := range w.order {
			if a := w.agents[id]; !a.Done {
				a.Done = true
				timedOut[id] = true
			}
		}
	}

	res := StepResult{
		Tick:       w.stepCount,
		Rewards:    total,
		Done:       make(map[string]bool, len(w.order)+1),
		Info:       make(map[string]AgentInfo, len(w.order)),
		Deliveries: deliveries,
	}
	for _, id := range w.order {
		a := w.agents[id]
		res.Done[id] = a.Done
		res.Info[id] = AgentInfo{
			ActionInfo: infos[id],
			StepCount:  a.StepCount,
			Sparse:     sparse[id],
			Dense:      dense[id],
			TimedOut:   timedOut[id],
		}
	}
	res.Done[AllDone] = w.AllDone()

	if w.cfg.CheckInvariants {
		if err := w.CheckInvariants(); err != nil {
			w.ready = false
			return res, err
		}
	}
	if res.Obs, err = w.observeAll(); err != nil {
		return res, err
	}
	res.Digest = w.StateDigest()
	return res, nil
}

func (w *World) goalReward(a *Agent) float64 {
	if w.cfg.GoalReward == GoalDecay {
		return 1 - 0.9*(float64(a.StepCount)/float64(w.maxSteps))
	}
	return 1
}
