package tuning

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"multigrid.ai/internal/sim/grid"
	"multigrid.ai/internal/sim/reward"
)

type Tuning struct {
	Scenario           string `yaml:"scenario"`
	Seed               int64  `yaml:"seed"`
	MaxSteps           int    `yaml:"max_steps"` // 0 keeps the scenario's limit
	MaxEpisodes        int    `yaml:"max_episodes"`
	TickIntervalMs     int    `yaml:"tick_interval_ms"`
	SnapshotEveryTicks int    `yaml:"snapshot_every_ticks"`

	KeyPolicy   string `yaml:"key_policy"`   // "retain" | "consume"
	RelayCredit string `yaml:"relay_credit"` // "first" | "all"
	GoalReward  string `yaml:"goal_reward"`  // "constant" | "decay"

	Shaping *Shaping `yaml:"shaping,omitempty"`

	// Bindings maps agent id -> key name -> action name.
	Bindings map[string]map[string]string `yaml:"bindings,omitempty"`
}

// Shaping overrides the scenario's dense reward weights.
type Shaping struct {
	Disabled      bool               `yaml:"disabled"`
	Scale         float64            `yaml:"scale"`
	PickupCounter map[string]float64 `yaml:"pickup_counter"`
	DoorSuccess   float64            `yaml:"door_success"`
	DoorFailure   float64            `yaml:"door_failure"`
}

func Defaults() Tuning {
	return Tuning{
		Scenario:           "ma-countercirc",
		TickIntervalMs:     100,
		SnapshotEveryTicks: 100,
		KeyPolicy:          "retain",
		RelayCredit:        "first",
		GoalReward:         "constant",
	}
}

// Load reads path over Defaults. A missing file yields Defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.Scenario == "" {
		return errors.New("scenario is required")
	}
	if t.TickIntervalMs <= 0 {
		return fmt.Errorf("tick_interval_ms must be > 0, got %d", t.TickIntervalMs)
	}
	if t.MaxSteps < 0 || t.MaxEpisodes < 0 || t.SnapshotEveryTicks < 0 {
		return errors.New("max_steps, max_episodes and snapshot_every_ticks must be >= 0")
	}
	switch t.KeyPolicy {
	case "retain", "consume":
	default:
		return fmt.Errorf("key_policy %q", t.KeyPolicy)
	}
	switch t.RelayCredit {
	case "first", "all":
	default:
		return fmt.Errorf("relay_credit %q", t.RelayCredit)
	}
	switch t.GoalReward {
	case "constant", "decay":
	default:
		return fmt.Errorf("goal_reward %q", t.GoalReward)
	}
	if t.Shaping != nil {
		if _, err := t.Shaping.Weights(); err != nil {
			return err
		}
	}
	return nil
}

// Weights converts the shaping block.
func (s Shaping) Weights() (reward.Weights, error) {
	w := reward.Weights{
		Scale:         s.Scale,
		PickupCounter: map[grid.Kind]float64{},
		DoorSuccess:   s.DoorSuccess,
		DoorFailure:   s.DoorFailure,
	}
	for name, v := range s.PickupCounter {
		k, ok := grid.ParseKind(name)
		if !ok || !k.Portable() {
			return w, fmt.Errorf("shaping.pickup_counter: %q is not a portable kind", name)
		}
		w.PickupCounter[k] = v
	}
	return w, nil
}
