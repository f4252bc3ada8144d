package world

import (
	"testing"

	"multigrid.ai/internal/sim/actions"
	"multigrid.ai/internal/sim/grid"
	"multigrid.ai/internal/sim/relay"
)

var pair = []string{"agent_1", "agent_2"}

func testScenario(name string, w, h int, gen func(g *Gen) error) Scenario {
	return Scenario{Name: name, Width: w, Height: h, MaxSteps: 100, AgentIDs: pair, Generate: gen}
}

func newTestWorld(t *testing.T, s Scenario, mut func(*WorldConfig)) *World {
	t.Helper()
	cfg := WorldConfig{Scenario: s, Seed: 1, CheckInvariants: true}
	if mut != nil {
		mut(&cfg)
	}
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := w.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	return w
}

func mustStep(t *testing.T, w *World, acts map[string]actions.Action) StepResult {
	t.Helper()
	res, err := w.Step(acts)
	if err != nil {
		t.Fatalf("Step(%v) at tick %d: %v", acts, w.StepCount(), err)
	}
	return res
}

func at(x, y int) grid.Pos { return grid.Pos{X: x, Y: y} }

// counterBetween: a 5x3 room with a counter holding a ball between the agents.
func counterBetween() Scenario {
	return testScenario("counter-between", 5, 3, func(g *Gen) error {
		g.Grid.WallRect(0, 0, 5, 3)
		g.Put(grid.NewCounter(), at(2, 1))
		if err := g.PutOnCounter(at(2, 1), grid.NewBall(grid.ColorBlue)); err != nil {
			return err
		}
		if err := g.SetAgent("agent_1", at(1, 1), grid.DirRight); err != nil {
			return err
		}
		return g.SetAgent("agent_2", at(3, 1), grid.DirLeft)
	})
}

// doorRoom: agent_1 stands above a key next to a locked door; agent_2 waits
// on the far side of the door.
func doorRoom(doorColor, keyColor grid.Color) Scenario {
	return testScenario("door-room", 6, 4, func(g *Gen) error {
		g.Grid.WallRect(0, 0, 6, 4)
		g.Put(grid.NewDoor(doorColor, true), at(2, 1))
		g.Put(grid.NewKey(keyColor), at(1, 2))
		if err := g.SetAgent("agent_1", at(1, 1), grid.DirDown); err != nil {
			return err
		}
		return g.SetAgent("agent_2", at(3, 1), grid.DirLeft)
	})
}

func relaySpec() relay.Spec {
	return relay.Spec{ID: "ball", Kind: grid.KindBall, Color: grid.ColorBlue, Source: at(1, 0), Dest: at(1, 4)}
}

// relayLane: a ball relay from the top counter (1,0) to the bottom counter
// (1,4); agent_1 starts under the source facing it.
func relayLane() Scenario {
	return testScenario("relay-lane", 5, 5, func(g *Gen) error {
		g.Grid.WallRect(0, 0, 5, 5)
		g.Put(grid.NewCounter(), at(1, 0))
		g.Put(grid.NewCounter(), at(1, 4))
		if err := g.AddRelay(relaySpec()); err != nil {
			return err
		}
		if err := g.SetAgent("agent_1", at(1, 1), grid.DirUp); err != nil {
			return err
		}
		return g.SetAgent("agent_2", at(3, 2), grid.DirLeft)
	})
}

// openField places both agents and a few items at random.
func openField() Scenario {
	return testScenario("open-field", 8, 8, func(g *Gen) error {
		g.Grid.WallRect(0, 0, 8, 8)
		for _, o := range []*grid.Object{grid.NewKey(grid.ColorYellow), grid.NewBall(grid.ColorRed), grid.NewBox(grid.ColorGreen, grid.NewKey(grid.ColorBlue))} {
			if _, err := g.PlaceObj(o, grid.Pos{}, 0, 0); err != nil {
				return err
			}
		}
		for _, id := range pair {
			if _, err := g.PlaceAgent(id, grid.Pos{}, 0, 0); err != nil {
				return err
			}
		}
		return nil
	})
}
