package main

import (
	"fmt"
	"math"

	"multigrid.ai/internal/sim/runner"
	"multigrid.ai/internal/sim/tuning"
	"multigrid.ai/internal/sim/world"
)

// Divergence is the first tick whose re-simulated digest differs from the log.
type Divergence struct {
	Episode string
	Tick    int
	Got     string
	Want    string
	Field   string // "digest" or "reward:<agent>"
}

func (d *Divergence) Error() string {
	return fmt.Sprintf("episode %s tick %d: %s mismatch: got=%s want=%s", d.Episode, d.Tick, d.Field, d.Got, d.Want)
}

// replayer rebuilds each logged episode from its reset line and steps it
// with the logged actions.
type replayer struct {
	base         tuning.Tuning
	checkRewards bool
	episode      string // only this episode when set

	w       *world.World
	current string

	episodes int
	checked  int
	skipped  int
}

func (r *replayer) apply(e world.TickLogEntry) error {
	switch e.Kind {
	case world.EntryReset:
		return r.reset(e)
	case world.EntryStep:
		return r.step(e)
	default:
		return fmt.Errorf("episode %s tick %d: unknown entry kind %q", e.Episode, e.Tick, e.Kind)
	}
}

func (r *replayer) reset(e world.TickLogEntry) error {
	r.w, r.current = nil, ""
	if r.episode != "" && e.Episode != r.episode {
		r.skipped++
		return nil
	}
	if e.Seed == nil {
		return fmt.Errorf("episode %s: reset line has no seed", e.Episode)
	}

	t := r.base
	t.Scenario = e.Scenario
	t.Seed = *e.Seed
	t.MaxSteps = e.MaxSteps
	if e.KeyPolicy != "" {
		t.KeyPolicy = string(e.KeyPolicy)
	}
	if e.RelayCredit != "" {
		t.RelayCredit = string(e.RelayCredit)
	}
	if e.GoalReward != "" {
		t.GoalReward = string(e.GoalReward)
	}
	w, err := runner.NewWorld(t)
	if err != nil {
		return fmt.Errorf("episode %s: %w", e.Episode, err)
	}
	if _, err := w.Reset(); err != nil {
		return fmt.Errorf("episode %s: reset: %w", e.Episode, err)
	}
	if got := w.StateDigest(); got != e.Digest {
		return &Divergence{Episode: e.Episode, Tick: e.Tick, Got: got, Want: e.Digest, Field: "digest"}
	}
	r.w, r.current = w, e.Episode
	r.episodes++
	r.checked++
	return nil
}

func (r *replayer) step(e world.TickLogEntry) error {
	// Steps of an episode whose reset is not in the log (resumed from a
	// snapshot, or filtered out) cannot be re-simulated.
	if r.w == nil || e.Episode != r.current {
		r.skipped++
		return nil
	}
	res, err := r.w.Step(e.Actions)
	if err != nil {
		return fmt.Errorf("episode %s tick %d: %w", e.Episode, e.Tick, err)
	}
	if res.Tick != e.Tick {
		return fmt.Errorf("episode %s: tick mismatch: stepped=%d entry=%d", e.Episode, res.Tick, e.Tick)
	}
	if res.Digest != e.Digest {
		return &Divergence{Episode: e.Episode, Tick: e.Tick, Got: res.Digest, Want: e.Digest, Field: "digest"}
	}
	if r.checkRewards {
		for id, want := range e.Rewards {
			if got := res.Rewards[id]; math.Abs(got-want) > 1e-9 {
				return &Divergence{Episode: e.Episode, Tick: e.Tick, Got: fmt.Sprint(got), Want: fmt.Sprint(want), Field: "reward:" + id}
			}
		}
	}
	r.checked++
	return nil
}
