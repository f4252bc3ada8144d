package relay

import (
	"errors"
	"testing"

	"multigrid.ai/internal/sim/actions"
	"multigrid.ai/internal/sim/grid"
)

func TestTransitionTable(t *testing.T) {
	r := &Relay{Spec: Spec{ID: "ball"}, State: SourcePresent}
	for _, to := range []State{InTransit, Landed, Consumed, SourcePresent, InTransit, SourcePresent} {
		if err := r.Transition(to); err != nil {
			t.Fatalf("Transition(%s): %v", to, err)
		}
	}
	if err := r.Transition(Landed); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("source_present -> landed should be rejected, got %v", err)
	}
	r.State = Landed
	if err := r.Transition(SourcePresent); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("landed -> source_present should be rejected, got %v", err)
	}
}

type fixture struct {
	g       *grid.Grid
	arena   *Arena
	nextID  uint64
	spec    Spec
	carried []*grid.Object
}

func newFixture(t *testing.T, policy CreditPolicy) *fixture {
	t.Helper()
	f := &fixture{g: grid.New(6, 5), arena: NewArena(policy)}
	f.g.WallRect(0, 0, 6, 5)
	f.g.HorzWall(2, 0, 2, grid.NewCounter)
	f.g.HorzWall(2, 4, 2, grid.NewCounter)
	f.spec = Spec{ID: "ball", Kind: grid.KindBall, Color: grid.ColorBlue, Source: grid.Pos{X: 2, Y: 0}, Dest: grid.Pos{X: 2, Y: 4}}
	if _, err := f.arena.Add(f.spec, f.g, f.newID); err != nil {
		t.Fatalf("Add: %v", err)
	}
	return f
}

func (f *fixture) newID() uint64 {
	f.nextID++
	return f.nextID
}

func (f *fixture) tick(t *testing.T, infos map[string]actions.Info) []Delivery {
	t.Helper()
	ds, err := f.arena.Tick(f.g, []string{"agent_1", "agent_2"}, infos, f.carried, f.newID)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	return ds
}

func TestArenaDeliveryAndRespawn(t *testing.T) {
	f := newFixture(t, CreditFirst)
	r := f.arena.Get("ball")
	src := f.g.Get(f.spec.Source)
	dst := f.g.Get(f.spec.Dest)

	if r.State != SourcePresent || src.Held == nil || src.Held.RelayID != "ball" {
		t.Fatalf("initial state: %s held=%v", r.State, src.Held)
	}

	// Agent picks the ball off the source counter.
	carried, _ := src.Take()
	f.carried = []*grid.Object{carried}
	f.tick(t, nil)
	if r.State != InTransit {
		t.Fatalf("expected in_transit, got %s", r.State)
	}
	if n := Manifestations(f.g, []*grid.Object{carried}, "ball"); n != 1 {
		t.Fatalf("manifestations in transit = %d", n)
	}

	// Agent drops it on the destination counter.
	if err := dst.Put(carried); err != nil {
		t.Fatalf("Put: %v", err)
	}
	f.carried = nil
	ds := f.tick(t, map[string]actions.Info{
		"agent_2": {Kind: actions.InfoDropCounter, Item: carried, OK: true, Target: f.spec.Dest},
	})
	if len(ds) != 1 || len(ds[0].Credited) != 1 || ds[0].Credited[0] != "agent_2" {
		t.Fatalf("deliveries = %+v", ds)
	}
	if r.State != Consumed || dst.Held != nil || src.Held != nil {
		t.Fatalf("after delivery: state=%s dst=%v src=%v", r.State, dst.Held, src.Held)
	}
	if n := Manifestations(f.g, nil, "ball"); n != 0 {
		t.Fatalf("manifestations after sink = %d", n)
	}

	// Respawn happens on the following tick.
	f.tick(t, nil)
	if r.State != SourcePresent || src.Held == nil || src.Held.ID == carried.ID {
		t.Fatalf("respawn: state=%s held=%v", r.State, src.Held)
	}
	if r.Deliveries != 1 {
		t.Fatalf("deliveries = %d", r.Deliveries)
	}
}

func TestArenaRespawnWaitsForEmptySource(t *testing.T) {
	f := newFixture(t, CreditFirst)
	r := f.arena.Get("ball")
	src := f.g.Get(f.spec.Source)
	dst := f.g.Get(f.spec.Dest)

	item, _ := src.Take()
	_ = dst.Put(item)
	f.tick(t, nil)
	if r.State != Consumed {
		t.Fatalf("expected consumed, got %s", r.State)
	}

	// Something unrelated now sits on the source counter.
	_ = src.Put(grid.NewKey(grid.ColorYellow))
	f.tick(t, nil)
	if r.State != Consumed {
		t.Fatalf("respawn should wait for empty source, got %s", r.State)
	}
	_, _ = src.Take()
	f.tick(t, nil)
	if r.State != SourcePresent {
		t.Fatalf("expected respawn, got %s", r.State)
	}
}

func TestArenaRetiresLostInstance(t *testing.T) {
	f := newFixture(t, CreditFirst)
	r := f.arena.Get("ball")
	src := f.g.Get(f.spec.Source)

	item, _ := src.Take()
	f.carried = []*grid.Object{item}
	f.tick(t, nil)
	if r.State != InTransit {
		t.Fatalf("expected in_transit, got %s", r.State)
	}

	// The carried instance is destroyed without reaching the destination.
	f.carried = nil
	if ds := f.tick(t, nil); len(ds) != 0 {
		t.Fatalf("lost item must not deliver: %+v", ds)
	}
	if r.State != Consumed || r.ItemID != 0 || r.Lost != 1 || r.Deliveries != 0 {
		t.Fatalf("after loss: state=%s item=%d lost=%d", r.State, r.ItemID, r.Lost)
	}

	f.tick(t, nil)
	if r.State != SourcePresent || src.Held == nil || src.Held.ID == item.ID {
		t.Fatalf("respawn after loss: state=%s held=%v", r.State, src.Held)
	}
}

func TestArenaCreditPolicy(t *testing.T) {
	for _, tc := range []struct {
		policy CreditPolicy
		want   []string
	}{
		{CreditFirst, []string{"agent_1"}},
		{CreditAll, []string{"agent_1", "agent_2"}},
	} {
		f := newFixture(t, tc.policy)
		src := f.g.Get(f.spec.Source)
		item, _ := src.Take()
		_ = f.g.Get(f.spec.Dest).Put(item)
		drop := actions.Info{Kind: actions.InfoDropCounter, Item: item, OK: true, Target: f.spec.Dest}
		ds := f.tick(t, map[string]actions.Info{"agent_1": drop, "agent_2": drop})
		if len(ds) != 1 || len(ds[0].Credited) != len(tc.want) {
			t.Fatalf("%s: deliveries = %+v", tc.policy, ds)
		}
		for i := range tc.want {
			if ds[0].Credited[i] != tc.want[i] {
				t.Fatalf("%s: credited = %v", tc.policy, ds[0].Credited)
			}
		}
	}
}

func TestArenaCreditRequiresDestination(t *testing.T) {
	f := newFixture(t, CreditFirst)
	item, _ := f.g.Get(f.spec.Source).Take()
	_ = f.g.Get(f.spec.Dest).Put(item)
	ds := f.tick(t, map[string]actions.Info{
		"agent_1": {Kind: actions.InfoDropCounter, Item: grid.NewBall(grid.ColorBlue), OK: true, Target: grid.Pos{X: 3, Y: 4}},
	})
	if len(ds) != 1 || len(ds[0].Credited) != 0 {
		t.Fatalf("drop elsewhere must not be credited: %+v", ds)
	}
}

func TestArenaRejectsBadEndpoints(t *testing.T) {
	g := grid.New(4, 4)
	g.Set(grid.Pos{X: 0, Y: 0}, grid.NewCounter())
	a := NewArena("")
	n := uint64(0)
	newID := func() uint64 { n++; return n }
	_, err := a.Add(Spec{ID: "x", Kind: grid.KindBall, Source: grid.Pos{}, Dest: grid.Pos{X: 1, Y: 1}}, g, newID)
	if !errors.Is(err, ErrBadEndpoint) {
		t.Fatalf("expected ErrBadEndpoint, got %v", err)
	}
	g.Set(grid.Pos{X: 1, Y: 1}, grid.NewCounter())
	if _, err := a.Add(Spec{ID: "x", Kind: grid.KindBall, Source: grid.Pos{}, Dest: grid.Pos{X: 1, Y: 1}}, g, newID); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := a.Add(Spec{ID: "x", Kind: grid.KindBall, Source: grid.Pos{}, Dest: grid.Pos{X: 1, Y: 1}}, g, newID); !errors.Is(err, ErrDuplicateRelay) {
		t.Fatalf("expected ErrDuplicateRelay, got %v", err)
	}
}
