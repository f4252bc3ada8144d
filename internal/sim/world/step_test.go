package world

import (
	"errors"
	"math"
	"testing"

	"multigrid.ai/internal/sim/actions"
	"multigrid.ai/internal/sim/grid"
	"multigrid.ai/internal/sim/relay"
)

func TestStep_PickupFromCounter(t *testing.T) {
	w := newTestWorld(t, counterBetween(), nil)

	res := mustStep(t, w, map[string]actions.Action{"agent_1": actions.Pickup, "agent_2": actions.Pickup})

	a1, _ := w.Agent("agent_1")
	if a1.Carrying == nil || a1.Carrying.Kind != grid.KindBall {
		t.Fatalf("agent_1 carrying = %v", a1.Carrying)
	}
	if held := w.Grid().Get(at(2, 1)).Held; held != nil {
		t.Fatalf("counter should be empty, holds %v", held)
	}
	info := res.Info["agent_1"].ActionInfo
	if !info.OK || !info.Is(actions.InfoPickupCounter, grid.KindBall) {
		t.Fatalf("agent_1 info = %+v", info)
	}
	// agent_2 resolves after agent_1 and finds the counter empty.
	if info2 := res.Info["agent_2"].ActionInfo; info2.Kind != actions.InfoPickupCounter || info2.OK {
		t.Fatalf("agent_2 info = %+v", info2)
	}
	if res.Info["agent_1"].StepCount != 1 || res.Tick != 1 {
		t.Fatalf("step counts: %+v tick=%d", res.Info["agent_1"], res.Tick)
	}

	// Drop it back and let agent_2 take it.
	res = mustStep(t, w, map[string]actions.Action{"agent_1": actions.Drop, "agent_2": actions.Pickup})
	if !res.Info["agent_1"].ActionInfo.Is(actions.InfoDropCounter, grid.KindBall) {
		t.Fatalf("agent_1 drop info = %+v", res.Info["agent_1"].ActionInfo)
	}
	a2, _ := w.Agent("agent_2")
	if a2.Carrying == nil || a2.Carrying.Kind != grid.KindBall {
		t.Fatalf("agent_2 should hold the ball, has %v", a2.Carrying)
	}
}

func TestStep_ToggleLockedDoor(t *testing.T) {
	cases := []struct {
		name     string
		key      grid.Color
		policy   KeyPolicy
		wantOK   bool
		wantDoor grid.DoorState
		wantKey  bool
	}{
		{"matching key retained", grid.ColorYellow, KeyRetain, true, grid.DoorOpen, true},
		{"matching key consumed", grid.ColorYellow, KeyConsume, true, grid.DoorOpen, false},
		{"mismatched key", grid.ColorBlue, KeyRetain, false, grid.DoorLocked, true},
	}
	for _, tc := range cases {
		w := newTestWorld(t, doorRoom(grid.ColorYellow, tc.key), func(c *WorldConfig) { c.KeyPolicy = tc.policy })
		mustStep(t, w, map[string]actions.Action{"agent_1": actions.Pickup})
		mustStep(t, w, map[string]actions.Action{"agent_1": actions.TurnLeft})
		res := mustStep(t, w, map[string]actions.Action{"agent_1": actions.Toggle})

		info := res.Info["agent_1"].ActionInfo
		if info.Kind != actions.InfoDoor || info.OK != tc.wantOK {
			t.Fatalf("%s: info = %+v", tc.name, info)
		}
		if st := w.Grid().Get(at(2, 1)).Door; st != tc.wantDoor {
			t.Fatalf("%s: door = %s", tc.name, st)
		}
		a1, _ := w.Agent("agent_1")
		if (a1.Carrying != nil) != tc.wantKey {
			t.Fatalf("%s: carrying = %v", tc.name, a1.Carrying)
		}
	}
}

func TestStep_DoorCannotCloseOnAgent(t *testing.T) {
	w := newTestWorld(t, doorRoom(grid.ColorYellow, grid.ColorYellow), nil)
	mustStep(t, w, map[string]actions.Action{"agent_1": actions.Pickup})
	mustStep(t, w, map[string]actions.Action{"agent_1": actions.TurnLeft})
	mustStep(t, w, map[string]actions.Action{"agent_1": actions.Toggle})
	mustStep(t, w, map[string]actions.Action{"agent_1": actions.MoveForward})

	res := mustStep(t, w, map[string]actions.Action{"agent_2": actions.Toggle})
	if info := res.Info["agent_2"].ActionInfo; info.Kind != actions.InfoDoor || info.OK {
		t.Fatalf("closing an occupied door should fail: %+v", info)
	}
	if st := w.Grid().Get(at(2, 1)).Door; st != grid.DoorOpen {
		t.Fatalf("door = %s", st)
	}
	// Moving into agent_2 is absorbed.
	res = mustStep(t, w, map[string]actions.Action{"agent_1": actions.MoveForward})
	if info := res.Info["agent_1"].ActionInfo; info.Kind != actions.InfoBlocked {
		t.Fatalf("expected blocked, got %+v", info)
	}
	if a1, _ := w.Agent("agent_1"); a1.Pos != at(2, 1) {
		t.Fatalf("agent_1 moved to %s", a1.Pos)
	}
}

func TestStep_BoxRevealsContents(t *testing.T) {
	s := testScenario("box", 5, 3, func(g *Gen) error {
		g.Grid.WallRect(0, 0, 5, 3)
		g.Put(grid.NewBox(grid.ColorGreen, grid.NewKey(grid.ColorRed)), at(2, 1))
		if err := g.SetAgent("agent_1", at(1, 1), grid.DirRight); err != nil {
			return err
		}
		return g.SetAgent("agent_2", at(3, 1), grid.DirLeft)
	})
	w := newTestWorld(t, s, nil)
	res := mustStep(t, w, map[string]actions.Action{"agent_1": actions.Toggle})
	if info := res.Info["agent_1"].ActionInfo; !info.OK || !info.Is(actions.InfoToggle, grid.KindBox) {
		t.Fatalf("toggle info = %+v", info)
	}
	if o := w.Grid().Get(at(2, 1)); o == nil || o.Kind != grid.KindKey {
		t.Fatalf("cell after toggle = %v", o)
	}
	res = mustStep(t, w, map[string]actions.Action{"agent_2": actions.Pickup})
	if info := res.Info["agent_2"].ActionInfo; !info.Is(actions.InfoPickup, grid.KindKey) || !info.OK {
		t.Fatalf("pickup info = %+v", info)
	}
	// Nothing left to pick up or toggle.
	res = mustStep(t, w, map[string]actions.Action{"agent_1": actions.Pickup})
	if info := res.Info["agent_1"].ActionInfo; info.Kind != actions.InfoPickup || info.OK {
		t.Fatalf("empty pickup = %+v", info)
	}
	res = mustStep(t, w, map[string]actions.Action{"agent_2": actions.Drop})
	if info := res.Info["agent_2"].ActionInfo; !info.OK || info.Kind != actions.InfoDrop {
		t.Fatalf("floor drop = %+v", info)
	}
}

func TestStep_GoalsAreBound(t *testing.T) {
	s := testScenario("goals", 5, 4, func(g *Gen) error {
		g.Grid.WallRect(0, 0, 5, 4)
		g.Put(grid.NewGoal("agent_2", grid.ColorGreen), at(2, 1))
		g.Put(grid.NewGoal("agent_1", grid.ColorRed), at(3, 1))
		if err := g.SetAgent("agent_1", at(1, 1), grid.DirRight); err != nil {
			return err
		}
		return g.SetAgent("agent_2", at(1, 2), grid.DirRight)
	})
	w := newTestWorld(t, s, func(c *WorldConfig) { c.GoalReward = GoalDecay })

	res := mustStep(t, w, map[string]actions.Action{"agent_1": actions.MoveForward})
	if res.Done["agent_1"] || res.Info["agent_1"].ActionInfo.Kind != actions.InfoMoved {
		t.Fatalf("agent_2's goal must not finish agent_1: %+v", res.Info["agent_1"])
	}
	res = mustStep(t, w, map[string]actions.Action{"agent_1": actions.MoveForward})
	if !res.Done["agent_1"] || res.Done[AllDone] {
		t.Fatalf("done = %v", res.Done)
	}
	if want := 1 - 0.9*(2.0/100); math.Abs(res.Rewards["agent_1"]-want) > 1e-12 {
		t.Fatalf("goal reward = %v, want %v", res.Rewards["agent_1"], want)
	}
	if res.Info["agent_1"].ActionInfo.Kind != actions.InfoGoal {
		t.Fatalf("info = %+v", res.Info["agent_1"].ActionInfo)
	}

	// Done agents are skipped.
	res = mustStep(t, w, map[string]actions.Action{"agent_1": actions.TurnLeft, "agent_2": actions.Done})
	if res.Info["agent_1"].ActionInfo.Kind != actions.InfoNone || res.Info["agent_1"].StepCount != 2 {
		t.Fatalf("done agent acted: %+v", res.Info["agent_1"])
	}
	if !res.Done[AllDone] || len(res.Rewards) != 2 || res.Rewards["agent_2"] != 0 {
		t.Fatalf("done=%v rewards=%v", res.Done, res.Rewards)
	}
	if _, err := w.Step(nil); !errors.Is(err, ErrEpisodeOver) {
		t.Fatalf("expected ErrEpisodeOver, got %v", err)
	}
}

func TestStep_Timeout(t *testing.T) {
	w := newTestWorld(t, counterBetween(), func(c *WorldConfig) { c.MaxSteps = 5 })
	var res StepResult
	for i := 0; i < 5; i++ {
		if res.Done[AllDone] {
			t.Fatalf("done early at %d", i)
		}
		res = mustStep(t, w, nil)
		for _, id := range pair {
			if res.Rewards[id] != 0 {
				t.Fatalf("reward without goal: %v", res.Rewards)
			}
		}
	}
	if !res.Done[AllDone] || !res.Done["agent_1"] || !res.Done["agent_2"] {
		t.Fatalf("done after max_steps = %v", res.Done)
	}
	if !res.Info["agent_1"].TimedOut || res.Info["agent_2"].StepCount != 5 {
		t.Fatalf("info = %+v", res.Info)
	}
}

func TestStep_RelayDelivery(t *testing.T) {
	w := newTestWorld(t, relayLane(), nil)
	r := w.Relays().Get("ball")
	firstItem := r.ItemID

	res := mustStep(t, w, map[string]actions.Action{"agent_1": actions.Pickup})
	if !res.Info["agent_1"].ActionInfo.Is(actions.InfoPickupCounter, grid.KindBall) || r.State != relay.InTransit {
		t.Fatalf("pickup: info=%+v state=%s", res.Info["agent_1"].ActionInfo, r.State)
	}
	for _, a := range []actions.Action{actions.TurnRight, actions.TurnRight, actions.MoveForward, actions.MoveForward} {
		res = mustStep(t, w, map[string]actions.Action{"agent_1": a})
		if len(res.Deliveries) != 0 {
			t.Fatalf("unexpected delivery: %+v", res.Deliveries)
		}
	}
	res = mustStep(t, w, map[string]actions.Action{"agent_1": actions.Drop})
	if len(res.Deliveries) != 1 || res.Deliveries[0].Credited[0] != "agent_1" {
		t.Fatalf("deliveries = %+v", res.Deliveries)
	}
	if res.Rewards["agent_1"] != RelayReward || res.Rewards["agent_2"] != 0 {
		t.Fatalf("rewards = %v", res.Rewards)
	}
	if r.State != relay.Consumed || w.Grid().Get(at(1, 4)).Held != nil {
		t.Fatalf("after delivery: state=%s", r.State)
	}

	res = mustStep(t, w, nil)
	if r.State != relay.SourcePresent || r.ItemID == firstItem {
		t.Fatalf("respawn: state=%s item=%d", r.State, r.ItemID)
	}
	if held := w.Grid().Get(at(1, 0)).Held; held == nil || held.ID != r.ItemID {
		t.Fatalf("source holds %v", held)
	}
}

// keyRelayDoor: a yellow key relay from (1,0) to (1,4) with a locked yellow
// door at (2,1) beside agent_1.
func keyRelayDoor() Scenario {
	return testScenario("key-relay-door", 6, 5, func(g *Gen) error {
		g.Grid.WallRect(0, 0, 6, 5)
		g.Put(grid.NewCounter(), at(1, 0))
		g.Put(grid.NewCounter(), at(1, 4))
		g.Put(grid.NewDoor(grid.ColorYellow, true), at(2, 1))
		if err := g.AddRelay(relay.Spec{ID: "key", Kind: grid.KindKey, Color: grid.ColorYellow, Source: at(1, 0), Dest: at(1, 4)}); err != nil {
			return err
		}
		if err := g.SetAgent("agent_1", at(1, 1), grid.DirUp); err != nil {
			return err
		}
		return g.SetAgent("agent_2", at(4, 3), grid.DirLeft)
	})
}

func TestStep_ConsumedRelayKeyRespawns(t *testing.T) {
	w := newTestWorld(t, keyRelayDoor(), func(c *WorldConfig) { c.KeyPolicy = KeyConsume })
	r := w.Relays().Get("key")
	firstItem := r.ItemID

	mustStep(t, w, map[string]actions.Action{"agent_1": actions.Pickup})
	mustStep(t, w, map[string]actions.Action{"agent_1": actions.TurnRight})
	if r.State != relay.InTransit {
		t.Fatalf("expected in_transit, got %s", r.State)
	}
	res := mustStep(t, w, map[string]actions.Action{"agent_1": actions.Toggle})
	if info := res.Info["agent_1"].ActionInfo; info.Kind != actions.InfoDoor || !info.OK {
		t.Fatalf("toggle info = %+v", info)
	}
	a1, _ := w.Agent("agent_1")
	if a1.Carrying != nil {
		t.Fatalf("key should be consumed, carrying %v", a1.Carrying)
	}
	if r.State != relay.Consumed || r.Lost != 1 || len(res.Deliveries) != 0 {
		t.Fatalf("after unlock: state=%s lost=%d deliveries=%+v", r.State, r.Lost, res.Deliveries)
	}

	mustStep(t, w, nil)
	if r.State != relay.SourcePresent || r.ItemID == firstItem {
		t.Fatalf("respawn: state=%s item=%d", r.State, r.ItemID)
	}
	if held := w.Grid().Get(at(1, 0)).Held; held == nil || held.ID != r.ItemID || held.Kind != grid.KindKey {
		t.Fatalf("source holds %v", held)
	}
}

func TestStep_StructuralMisuse(t *testing.T) {
	w, err := New(WorldConfig{Scenario: counterBetween()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := w.Step(nil); !errors.Is(err, ErrNotReset) {
		t.Fatalf("expected ErrNotReset, got %v", err)
	}
	if _, err := w.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := w.Step(map[string]actions.Action{"agent_9": actions.NoOp}); !errors.Is(err, ErrUnknownAgent) {
		t.Fatalf("expected ErrUnknownAgent, got %v", err)
	}
	if _, err := w.Step(map[string]actions.Action{"agent_1": actions.Action(42)}); !errors.Is(err, actions.ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
	if w.StepCount() != 0 {
		t.Fatalf("rejected steps must not advance the clock")
	}

	bad := counterBetween()
	bad.Generate = func(g *Gen) error { return g.SetAgent("agent_1", at(1, 1), grid.DirUp) }
	w, _ = New(WorldConfig{Scenario: bad})
	if _, err := w.Reset(); !errors.Is(err, ErrAgentNotPlaced) {
		t.Fatalf("expected ErrAgentNotPlaced, got %v", err)
	}

	if _, err := New(WorldConfig{Scenario: counterBetween(), KeyPolicy: "burn"}); !errors.Is(err, ErrBadScenario) {
		t.Fatalf("expected ErrBadScenario, got %v", err)
	}
}
