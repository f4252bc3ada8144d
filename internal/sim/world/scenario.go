package world

import (
	"fmt"
	"math/rand"

	"multigrid.ai/internal/sim/grid"
	"multigrid.ai/internal/sim/relay"
	"multigrid.ai/internal/sim/reward"
)

// Scenario describes how to lay out one episode.
type Scenario struct {
	Name     string
	Width    int
	Height   int
	MaxSteps int
	AgentIDs []string
	Mission  string

	// Generate builds the grid, places every agent and registers relays.
	Generate func(g *Gen) error

	// Shaping enables the table shaper with these weights; nil means sparse only.
	Shaping *reward.Weights

	// KeyPolicy is the scenario's default; WorldConfig.KeyPolicy wins when set.
	KeyPolicy KeyPolicy
}

func (s Scenario) validate() error {
	if s.Width < 3 || s.Height < 3 {
		return fmt.Errorf("scenario %q size %dx%d: %w", s.Name, s.Width, s.Height, ErrBadScenario)
	}
	if s.MaxSteps <= 0 {
		return fmt.Errorf("scenario %q max steps %d: %w", s.Name, s.MaxSteps, ErrBadScenario)
	}
	if len(s.AgentIDs) == 0 {
		return fmt.Errorf("scenario %q has no agents: %w", s.Name, ErrBadScenario)
	}
	seen := map[string]bool{}
	for _, id := range s.AgentIDs {
		if id == "" || id == AllDone || seen[id] {
			return fmt.Errorf("scenario %q agent id %q: %w", s.Name, id, ErrBadScenario)
		}
		seen[id] = true
	}
	if s.Generate == nil {
		return fmt.Errorf("scenario %q has no generator: %w", s.Name, ErrBadScenario)
	}
	return nil
}

// maxPlaceTries bounds rejection sampling in PlaceObj and PlaceAgent.
const maxPlaceTries = 10000

// Gen is the layout context handed to Scenario.Generate during Reset. All
// randomness must come from Rand so that a seed fixes the layout.
type Gen struct {
	Grid *grid.Grid
	Rand *rand.Rand

	w *World
}

func (g *Gen) Width() int  { return g.Grid.Width }
func (g *Gen) Height() int { return g.Grid.Height }

// Put sets the cell to obj, assigning ids to portable items.
func (g *Gen) Put(obj *grid.Object, p grid.Pos) {
	g.assignIDs(obj)
	g.Grid.Set(p, obj)
}

// PutOnCounter puts item on the counter at p.
func (g *Gen) PutOnCounter(p grid.Pos, item *grid.Object) error {
	g.assignIDs(item)
	if err := g.Grid.Get(p).Put(item); err != nil {
		return fmt.Errorf("counter %s: %w", p, err)
	}
	return nil
}

func (g *Gen) assignIDs(o *grid.Object) {
	for ; o != nil; o = o.Contains {
		if o.Kind.Portable() && o.ID == 0 {
			o.ID = g.w.newObjectID()
		}
		if o.Held != nil {
			g.assignIDs(o.Held)
		}
	}
}

// PlaceObj puts obj on a random empty, unoccupied cell inside the rectangle
// at top with the given size. A zero size means the whole grid.
func (g *Gen) PlaceObj(obj *grid.Object, top grid.Pos, w, h int) (grid.Pos, error) {
	p, err := g.randomFree(top, w, h)
	if err != nil {
		return p, fmt.Errorf("place %s: %w", obj, err)
	}
	g.Put(obj, p)
	return p, nil
}

// SetAgent places an agent at a fixed pose.
func (g *Gen) SetAgent(id string, p grid.Pos, d grid.Dir) error {
	a := g.w.agents[id]
	if a == nil {
		return fmt.Errorf("set agent %q: %w", id, ErrUnknownAgent)
	}
	if !g.Grid.InBounds(p) || !d.Valid() {
		return fmt.Errorf("set agent %q at %s: %w", id, p, grid.ErrOutOfBounds)
	}
	if other := g.w.AgentAt(p); other != "" && other != id {
		return fmt.Errorf("set agent %q at %s held by %s: %w", id, p, other, grid.ErrOccupied)
	}
	a.Pos, a.Dir, a.placed = p, d, true
	return nil
}

// PlaceAgent places an agent on a random free cell with a random heading.
func (g *Gen) PlaceAgent(id string, top grid.Pos, w, h int) (grid.Pos, error) {
	p, err := g.randomFree(top, w, h)
	if err != nil {
		return p, fmt.Errorf("place agent %q: %w", id, err)
	}
	return p, g.SetAgent(id, p, grid.Dir(g.Rand.Intn(4)))
}

func (g *Gen) randomFree(top grid.Pos, w, h int) (grid.Pos, error) {
	if w <= 0 {
		w = g.Grid.Width
	}
	if h <= 0 {
		h = g.Grid.Height
	}
	for i := 0; i < maxPlaceTries; i++ {
		p := grid.Pos{X: top.X + g.Rand.Intn(w), Y: top.Y + g.Rand.Intn(h)}
		if !g.Grid.InBounds(p) || g.Grid.Get(p) != nil || g.w.AgentAt(p) != "" {
			continue
		}
		return p, nil
	}
	return grid.Pos{}, fmt.Errorf("no free cell after %d tries: %w", maxPlaceTries, grid.ErrOccupied)
}

// AddRelay registers a relay and spawns its first item on the source counter.
func (g *Gen) AddRelay(spec relay.Spec) error {
	_, err := g.w.relays.Add(spec, g.Grid, g.w.newObjectID)
	return err
}

// RandBool draws a fair coin.
func (g *Gen) RandBool() bool { return g.Rand.Intn(2) == 0 }

// RandInt draws from [lo, hi).
func (g *Gen) RandInt(lo, hi int) int { return lo + g.Rand.Intn(hi-lo) }

func (g *Gen) SetMission(m string) { g.w.mission = m }
