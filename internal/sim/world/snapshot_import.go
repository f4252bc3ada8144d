package world

import (
	"fmt"

	"multigrid.ai/internal/persistence/snapshot"
	"multigrid.ai/internal/sim/grid"
	"multigrid.ai/internal/sim/relay"
)

// ImportSnapshot replaces the episode state with s. The snapshot must come
// from the same scenario; policies recorded in it take precedence over the
// world's config.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.Version != snapshot.Version {
		return fmt.Errorf("snapshot version %d", s.Header.Version)
	}
	if s.Header.Scenario != w.scen.Name {
		return fmt.Errorf("snapshot of %q into %q: %w", s.Header.Scenario, w.scen.Name, ErrBadScenario)
	}
	if s.Width != w.scen.Width || s.Height != w.scen.Height {
		return fmt.Errorf("snapshot size %dx%d: %w", s.Width, s.Height, ErrBadScenario)
	}

	g := grid.New(s.Width, s.Height)
	for _, c := range s.Cells {
		obj, err := importObject(&c.Obj)
		if err != nil {
			return fmt.Errorf("cell (%d,%d): %w", c.X, c.Y, err)
		}
		p := grid.Pos{X: c.X, Y: c.Y}
		if err := g.Place(p, obj); err != nil {
			return fmt.Errorf("cell: %w", err)
		}
	}

	agents := make(map[string]*Agent, len(w.order))
	for _, av := range s.Agents {
		if !w.hasAgent(av.ID) {
			return fmt.Errorf("snapshot agent %q: %w", av.ID, ErrUnknownAgent)
		}
		carrying, err := importObject(av.Carrying)
		if err != nil {
			return fmt.Errorf("agent %s: %w", av.ID, err)
		}
		agents[av.ID] = &Agent{
			ID:        av.ID,
			Pos:       grid.Pos{X: av.X, Y: av.Y},
			Dir:       grid.Dir(av.Dir),
			Carrying:  carrying,
			StepCount: av.StepCount,
			Done:      av.Done,
			placed:    true,
		}
	}
	for _, id := range w.order {
		if agents[id] == nil {
			return fmt.Errorf("snapshot lacks %s: %w", id, ErrAgentNotPlaced)
		}
	}

	arena := relay.NewArena(relay.CreditPolicy(s.RelayCredit))
	for _, rv := range s.Relays {
		kind, ok := grid.ParseKind(rv.Kind)
		if !ok {
			return fmt.Errorf("relay %s kind %q: %w", rv.ID, rv.Kind, ErrBadScenario)
		}
		color, _ := grid.ParseColor(rv.Color)
		state := relay.State(rv.State)
		if !state.Valid() {
			return fmt.Errorf("relay %s state %d: %w", rv.ID, rv.State, ErrInvariant)
		}
		r := &relay.Relay{
			Spec: relay.Spec{
				ID:     rv.ID,
				Kind:   kind,
				Color:  color,
				Source: grid.Pos{X: rv.Source[0], Y: rv.Source[1]},
				Dest:   grid.Pos{X: rv.Dest[0], Y: rv.Dest[1]},
			},
			State:      state,
			ItemID:     rv.ItemID,
			Deliveries: rv.Deliveries,
			Lost:       rv.Lost,
		}
		if err := arena.Restore(r); err != nil {
			return err
		}
	}

	w.grid = g
	w.agents = agents
	w.relays = arena
	w.maxSteps = s.MaxSteps
	w.stepCount = s.StepCount
	w.mission = s.Mission
	w.nextObject = s.Counters.NextObject
	w.resets = s.Counters.Resets
	if s.KeyPolicy != "" {
		w.cfg.KeyPolicy = KeyPolicy(s.KeyPolicy)
	}
	if s.GoalReward != "" {
		w.cfg.GoalReward = GoalReward(s.GoalReward)
	}
	if s.RelayCredit != "" {
		w.cfg.RelayCredit = relay.CreditPolicy(s.RelayCredit)
	}
	w.Seed(s.Seed)
	w.rewards.RestoreCredits(s.ShapingCredit)
	w.ready = true

	if err := w.CheckInvariants(); err != nil {
		w.ready = false
		return fmt.Errorf("imported snapshot: %w", err)
	}
	return nil
}

func (w *World) hasAgent(id string) bool {
	for _, aid := range w.order {
		if aid == id {
			return true
		}
	}
	return false
}

func importObject(v *snapshot.ObjectV1) (*grid.Object, error) {
	if v == nil {
		return nil, nil
	}
	kind, ok := grid.ParseKind(v.Kind)
	if !ok {
		return nil, fmt.Errorf("object kind %q: %w", v.Kind, ErrBadScenario)
	}
	color, _ := grid.ParseColor(v.Color)
	held, err := importObject(v.Held)
	if err != nil {
		return nil, err
	}
	contains, err := importObject(v.Contains)
	if err != nil {
		return nil, err
	}
	return &grid.Object{
		ID:         v.ID,
		Kind:       kind,
		Color:      color,
		Door:       grid.DoorState(v.Door),
		Owner:      v.Owner,
		RelayID:    v.RelayID,
		SeeThrough: v.SeeThrough,
		Held:       held,
		Contains:   contains,
	}, nil
}
