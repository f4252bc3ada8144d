package reward

import (
	"math"
	"testing"

	"multigrid.ai/internal/sim/actions"
	"multigrid.ai/internal/sim/grid"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-12 }

func TestTableShaperSharedSpace(t *testing.T) {
	s := NewTableShaper(SharedSpaceWeights())
	key := grid.NewKey(grid.ColorYellow)
	key.ID = 7

	got := s.Shape(map[string]Outcome{
		"agent_1": {Info: actions.Info{Kind: actions.InfoPickupCounter, Item: key, OK: true}, Carrying: key},
		"agent_2": {Info: actions.Info{Kind: actions.InfoDoor, OK: true}},
	})
	if !approx(got["agent_1"], 1e-3) || !approx(got["agent_2"], 5e-3) {
		t.Fatalf("shape = %v", got)
	}

	got = s.Shape(map[string]Outcome{
		"agent_1": {Info: actions.None(), Carrying: key},
		"agent_2": {Info: actions.Info{Kind: actions.InfoDoor, OK: false}},
	})
	if got["agent_1"] != 0 || !approx(got["agent_2"], 1e-3) {
		t.Fatalf("shape = %v", got)
	}
}

func TestTableShaperCreditLapse(t *testing.T) {
	s := NewTableShaper(SharedSpaceWeights())
	key := grid.NewKey(grid.ColorBlue)
	key.ID = 3
	pick := Outcome{Info: actions.Info{Kind: actions.InfoPickupCounter, Item: key, OK: true}, Carrying: key}

	if r := s.Shape(map[string]Outcome{"a": pick})["a"]; !approx(r, 1e-3) {
		t.Fatalf("first pickup = %v", r)
	}
	if _, ok := s.CreditedItem("a"); !ok {
		t.Fatalf("expected credit flag")
	}
	// A replayed pickup record while still carrying the same item pays nothing.
	if r := s.Shape(map[string]Outcome{"a": pick})["a"]; r != 0 {
		t.Fatalf("double credit = %v", r)
	}
	// The item leaves the agent: the flag clears.
	s.Shape(map[string]Outcome{"a": {Info: actions.Info{Kind: actions.InfoDropCounter, Item: key, OK: true}}})
	if _, ok := s.CreditedItem("a"); ok {
		t.Fatalf("credit flag should lapse")
	}
	if r := s.Shape(map[string]Outcome{"a": pick})["a"]; !approx(r, 1e-3) {
		t.Fatalf("pickup after lapse = %v", r)
	}

	s.Reset()
	if _, ok := s.CreditedItem("a"); ok {
		t.Fatalf("Reset should clear flags")
	}
}

func TestTableShaperIgnoresUnweightedKinds(t *testing.T) {
	s := NewTableShaper(SharedSpaceWeights())
	ball := grid.NewBall(grid.ColorRed)
	r := s.Shape(map[string]Outcome{"a": {Info: actions.Info{Kind: actions.InfoPickupCounter, Item: ball, OK: true}, Carrying: ball}})
	if r["a"] != 0 {
		t.Fatalf("ball pickup should not shape: %v", r)
	}
	if _, ok := s.CreditedItem("a"); ok {
		t.Fatalf("unweighted pickup should not set a flag")
	}
}

func TestPipelineAdditive(t *testing.T) {
	p := Pipeline{Shaper: NewTableShaper(Weights{Scale: 0.5, DoorSuccess: 1})}
	total, dense := p.Compute(
		map[string]float64{"a": 1, "b": 0},
		map[string]Outcome{"a": {Info: actions.Info{Kind: actions.InfoDoor, OK: true}}, "b": {Info: actions.None()}},
	)
	if !approx(total["a"], 1.5) || total["b"] != 0 || !approx(dense["a"], 0.5) {
		t.Fatalf("total=%v dense=%v", total, dense)
	}

	total, _ = Pipeline{}.Compute(map[string]float64{"a": 1}, nil)
	if total["a"] != 1 {
		t.Fatalf("nil shaper total = %v", total)
	}
	if z := (Zero{}).Shape(map[string]Outcome{"a": {}}); len(z) != 1 || z["a"] != 0 {
		t.Fatalf("zero = %v", z)
	}
	if s := Sum(map[string]float64{"a": 1}, map[string]float64{"a": 2, "b": 1}); s["a"] != 3 || s["b"] != 1 {
		t.Fatalf("sum = %v", s)
	}
}

func TestPipelineCreditsSurviveRestore(t *testing.T) {
	src := NewTableShaper(SharedSpaceWeights())
	key := grid.NewKey(grid.ColorYellow)
	key.ID = 9
	src.Shape(map[string]Outcome{"a": {Info: actions.Info{Kind: actions.InfoPickupCounter, Item: key, OK: true}, Carrying: key}})

	credits := Pipeline{Shaper: src}.Credits()
	if credits["a"] != 9 {
		t.Fatalf("credits = %v", credits)
	}

	dst := NewTableShaper(SharedSpaceWeights())
	Pipeline{Shaper: dst}.RestoreCredits(credits)
	if id, ok := dst.CreditedItem("a"); !ok || id != 9 {
		t.Fatalf("restored credit = %d %v", id, ok)
	}
	credits["a"] = 1
	if id, _ := dst.CreditedItem("a"); id != 9 {
		t.Fatalf("restore must copy the map")
	}

	if c := (Pipeline{Shaper: Zero{}}).Credits(); c != nil {
		t.Fatalf("zero shaper credits = %v", c)
	}
	Pipeline{}.RestoreCredits(map[string]uint64{"a": 1})
}
