package world

import (
	"multigrid.ai/internal/sim/actions"
	"multigrid.ai/internal/sim/relay"
)

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// TickLogEntry is one line of the tick log. A reset line carries the seed
// and the settings that change state evolution; a step line carries the
// action map that produced it. Replaying the lines in order must reproduce
// every digest.
type TickLogEntry struct {
	Kind        string                    `json:"kind"` // "reset" or "step"
	Episode     string                    `json:"episode"`
	Scenario    string                    `json:"scenario,omitempty"`
	Seed        *int64                    `json:"seed,omitempty"`
	MaxSteps    int                       `json:"max_steps,omitempty"`
	KeyPolicy   KeyPolicy                 `json:"key_policy,omitempty"`
	RelayCredit relay.CreditPolicy        `json:"relay_credit,omitempty"`
	GoalReward  GoalReward                `json:"goal_reward,omitempty"`
	Tick        int                       `json:"tick"`
	Actions     map[string]actions.Action `json:"actions,omitempty"`
	Rewards     map[string]float64        `json:"rewards,omitempty"`
	Done        map[string]bool           `json:"done,omitempty"`
	Info        map[string]actions.Wire   `json:"info,omitempty"`
	Deliveries  []relay.Delivery          `json:"deliveries,omitempty"`
	Digest      string                    `json:"digest"`
}

const (
	EntryReset = "reset"
	EntryStep  = "step"
)

// ResetEntry describes the episode the world was just reset into.
func (w *World) ResetEntry(episode string) TickLogEntry {
	seed := w.seed
	return TickLogEntry{
		Kind:        EntryReset,
		Episode:     episode,
		Scenario:    w.scen.Name,
		Seed:        &seed,
		MaxSteps:    w.maxSteps,
		KeyPolicy:   w.cfg.KeyPolicy,
		RelayCredit: w.cfg.RelayCredit,
		GoalReward:  w.cfg.GoalReward,
		Tick:        w.stepCount,
		Digest:      w.StateDigest(),
	}
}

// StepEntry describes one resolved tick.
func StepEntry(episode string, acts map[string]actions.Action, res StepResult) TickLogEntry {
	e := TickLogEntry{
		Kind:       EntryStep,
		Episode:    episode,
		Tick:       res.Tick,
		Actions:    acts,
		Rewards:    res.Rewards,
		Done:       res.Done,
		Info:       make(map[string]actions.Wire, len(res.Info)),
		Deliveries: res.Deliveries,
		Digest:     res.Digest,
	}
	for id, in := range res.Info {
		e.Info[id] = in.ActionInfo.Wire()
	}
	return e
}
