package world

import (
	"multigrid.ai/internal/persistence/snapshot"
	"multigrid.ai/internal/sim/grid"
)

// ExportSnapshot captures the full episode state. The RNG position is not
// captured: an imported world continues exactly, but its next Reset draws
// from a fresh RNG seeded with the same seed.
func (w *World) ExportSnapshot(episode string) snapshot.SnapshotV1 {
	s := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:  snapshot.Version,
			Episode:  episode,
			Scenario: w.scen.Name,
			Tick:     w.stepCount,
		},
		Seed:        w.seed,
		Width:       w.scen.Width,
		Height:      w.scen.Height,
		MaxSteps:    w.maxSteps,
		StepCount:   w.stepCount,
		Mission:     w.mission,
		KeyPolicy:   string(w.cfg.KeyPolicy),
		RelayCredit: string(w.cfg.RelayCredit),
		GoalReward:  string(w.cfg.GoalReward),
		Counters: snapshot.CountersV1{
			NextObject: w.nextObject,
			Resets:     w.resets,
		},
		ShapingCredit: w.rewards.Credits(),
	}
	if w.grid == nil {
		return s
	}

	w.grid.Each(func(p grid.Pos, o *grid.Object) {
		s.Cells = append(s.Cells, snapshot.CellV1{X: p.X, Y: p.Y, Obj: *exportObject(o)})
	})
	for _, id := range w.order {
		a := w.agents[id]
		s.Agents = append(s.Agents, snapshot.AgentV1{
			ID:        id,
			X:         a.Pos.X,
			Y:         a.Pos.Y,
			Dir:       uint8(a.Dir),
			Carrying:  exportObject(a.Carrying),
			StepCount: a.StepCount,
			Done:      a.Done,
		})
	}
	for _, r := range w.relays.All() {
		s.Relays = append(s.Relays, snapshot.RelayV1{
			ID:         r.ID,
			Kind:       r.Kind.String(),
			Color:      r.Color.String(),
			Source:     [2]int{r.Source.X, r.Source.Y},
			Dest:       [2]int{r.Dest.X, r.Dest.Y},
			State:      uint8(r.State),
			ItemID:     r.ItemID,
			Deliveries: r.Deliveries,
			Lost:       r.Lost,
		})
	}
	return s
}

func exportObject(o *grid.Object) *snapshot.ObjectV1 {
	if o == nil {
		return nil
	}
	return &snapshot.ObjectV1{
		ID:         o.ID,
		Kind:       o.Kind.String(),
		Color:      o.Color.String(),
		Door:       uint8(o.Door),
		Owner:      o.Owner,
		RelayID:    o.RelayID,
		SeeThrough: o.SeeThrough,
		Held:       exportObject(o.Held),
		Contains:   exportObject(o.Contains),
	}
}
