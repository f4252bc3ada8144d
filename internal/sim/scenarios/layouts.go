package scenarios

import (
	"fmt"

	"multigrid.ai/internal/sim/grid"
	"multigrid.ai/internal/sim/relay"
	"multigrid.ai/internal/sim/reward"
	"multigrid.ai/internal/sim/world"
)

// Pose is a fixed agent start.
type Pose struct {
	Pos grid.Pos
	Dir grid.Dir
}

func pos(x, y int) grid.Pos { return grid.Pos{X: x, Y: y} }

// Empty is a walled square with one goal per agent: agent_1's in the
// bottom-right corner, agent_2's in the top-left. Nil starts place the agents
// at random.
func Empty(size int, starts []Pose) world.Scenario {
	if starts == nil && size == 16 {
		starts = []Pose{{pos(1, 1), grid.DirRight}, {pos(8, 8), grid.DirLeft}}
	}
	return world.Scenario{
		Name:     fmt.Sprintf("ma-empty-%dx%d", size, size),
		Width:    size,
		Height:   size,
		MaxSteps: 4 * size * size,
		AgentIDs: Agents,
		Mission:  "get to the green goal square",
		Generate: func(g *world.Gen) error {
			w, h := g.Width(), g.Height()
			g.Grid.WallRect(0, 0, w, h)
			g.Put(grid.NewGoal("agent_1", grid.ColorGreen), pos(w-2, h-2))
			g.Put(grid.NewGoal("agent_2", grid.ColorGreen), pos(1, 1))
			for i, id := range Agents {
				if starts != nil {
					if err := g.SetAgent(id, starts[i].Pos, starts[i].Dir); err != nil {
						return err
					}
					continue
				}
				if _, err := g.PlaceAgent(id, grid.Pos{}, 0, 0); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// Circ is a ring corridor around a central wall block, with both goals and
// both agents placed at random.
func Circ(size, maxSteps int) world.Scenario {
	return world.Scenario{
		Name:     fmt.Sprintf("ma-circ-%dx%d", size, size),
		Width:    size,
		Height:   size,
		MaxSteps: maxSteps,
		AgentIDs: Agents,
		Mission:  "get to the green goal square",
		Generate: func(g *world.Gen) error {
			w, h := g.Width(), g.Height()
			g.Grid.WallRect(0, 0, w, h)
			for y := 2; y < h-2; y++ {
				g.Grid.HorzWall(2, y, w-4, nil)
			}
			if _, err := g.PlaceObj(grid.NewGoal("agent_1", grid.ColorRed), grid.Pos{}, 0, 0); err != nil {
				return err
			}
			if _, err := g.PlaceObj(grid.NewGoal("agent_2", grid.ColorGreen), grid.Pos{}, 0, 0); err != nil {
				return err
			}
			for _, id := range Agents {
				if _, err := g.PlaceAgent(id, grid.Pos{}, 0, 0); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// CounterCirc is a 6x5 room split by a counter row. A blue ball travels from
// the top counter (2,0) to the bottom counter (2,4) and a red box from (3,4)
// to (3,0); each delivery pays the dropping agent and the item respawns at
// its source. A coin flip decides which agent starts on the left.
func CounterCirc() world.Scenario {
	return world.Scenario{
		Name:     "ma-countercirc",
		Width:    6,
		Height:   5,
		MaxSteps: 200,
		AgentIDs: Agents,
		Mission:  "deliver the boxes and balls",
		Generate: func(g *world.Gen) error {
			g.Grid.WallRect(0, 0, 6, 5)
			g.Grid.HorzWall(2, 2, 2, grid.NewCounter)
			g.Grid.HorzWall(2, 0, 2, grid.NewCounter)
			g.Grid.HorzWall(2, 4, 2, grid.NewCounter)

			left, right := Agents[0], Agents[1]
			if g.RandBool() {
				left, right = right, left
			}
			if err := g.SetAgent(left, pos(1, 2), grid.DirRight); err != nil {
				return err
			}
			if err := g.SetAgent(right, pos(4, 2), grid.DirLeft); err != nil {
				return err
			}

			if err := g.AddRelay(relay.Spec{ID: "ball", Kind: grid.KindBall, Color: grid.ColorBlue, Source: pos(2, 0), Dest: pos(2, 4)}); err != nil {
				return err
			}
			return g.AddRelay(relay.Spec{ID: "box", Kind: grid.KindBox, Color: grid.ColorRed, Source: pos(3, 4), Dest: pos(3, 0)})
		},
	}
}

// MultidoorCounter splits the room with a counter row. agent_1 walks the top
// lane through three locked doors; agent_2 holds the matching keys in the
// bottom lane and passes them over the counter.
func MultidoorCounter(width, height int) world.Scenario {
	return world.Scenario{
		Name:     fmt.Sprintf("ma-multidoor-counter-%dx%d", width, height),
		Width:    width,
		Height:   height,
		MaxSteps: 10 * width * height,
		AgentIDs: Agents,
		Mission:  "use the keys to open the doors and then get to the goal",
		Generate: func(g *world.Gen) error {
			w, h := g.Width(), g.Height()
			g.Grid.WallRect(0, 0, w, h)
			g.Put(grid.NewGoal("agent_1", grid.ColorRed), pos(w-2, 1))
			g.Put(grid.NewGoal("agent_2", grid.ColorGreen), pos(w-2, h-2))
			g.Grid.HorzWall(1, 2, w-2, grid.NewCounter)

			if err := g.SetAgent("agent_1", pos(1, 1), grid.DirUp); err != nil {
				return err
			}
			if err := g.SetAgent("agent_2", pos(1, 3), grid.DirUp); err != nil {
				return err
			}

			for i, c := range []grid.Color{grid.ColorYellow, grid.ColorBlue, grid.ColorGreen} {
				x := 3 + 2*i
				g.Put(grid.NewDoor(c, true), pos(x, 1))
				g.Put(grid.NewKey(c), pos(x, 3))
			}
			return nil
		},
	}
}

// SharedSpace puts both agents in a bottom room bordered by counters. Two
// locked doors lead to the goal lane; their keys rest on bottom-row counters,
// at x=2 and x=4 or at two distinct random columns. Counter key pickups and
// door toggles are shaped.
func SharedSpace(width, height, maxSteps int, randomKeys bool) world.Scenario {
	name := fmt.Sprintf("ma-shared-space-%dx%d", height, width)
	if width == height {
		name = fmt.Sprintf("ma-shared-space-%dx%d", width, height)
	}
	if randomKeys {
		name = fmt.Sprintf("ma-shared-space-random-%dx%d", height, width)
	}
	weights := reward.SharedSpaceWeights()
	return world.Scenario{
		Name:     name,
		Width:    width,
		Height:   height,
		MaxSteps: maxSteps,
		AgentIDs: Agents,
		Mission:  "use the keys to open the doors and then get to the goal",
		Shaping:  &weights,
		Generate: func(g *world.Gen) error {
			w, h := g.Width(), g.Height()
			g.Grid.HorzWall(0, 0, 0, nil)
			g.Grid.WallRect(2, 1, 1, 1)
			g.Grid.WallRect(w-3, 1, 1, 1)
			g.Grid.HorzWall(2, 2, w-4, nil)
			g.Grid.HorzWall(0, h-1, 0, grid.NewCounter)
			g.Grid.VertWall(0, 0, 0, grid.NewCounter)
			g.Grid.VertWall(w-1, 0, 0, grid.NewCounter)

			g.Put(grid.NewGoal("agent_1", grid.ColorRed), pos(w-2, 1))
			g.Put(grid.NewGoal("agent_2", grid.ColorGreen), pos(1, 1))

			if err := g.SetAgent("agent_1", pos(1, h-2), grid.DirRight); err != nil {
				return err
			}
			if err := g.SetAgent("agent_2", pos(w-2, h-2), grid.DirRight); err != nil {
				return err
			}

			g.Put(grid.NewDoor(grid.ColorYellow, true), pos(1, 2))
			g.Put(grid.NewDoor(grid.ColorBlue, true), pos(5, 2))

			keyX := [2]int{2, 4}
			if randomKeys {
				perm := g.Rand.Perm(w - 3)
				keyX = [2]int{1 + perm[0], 1 + perm[1]}
			}
			if err := g.PutOnCounter(pos(keyX[0], h-1), grid.NewKey(grid.ColorYellow)); err != nil {
				return err
			}
			return g.PutOnCounter(pos(keyX[1], h-1), grid.NewKey(grid.ColorBlue))
		},
	}
}
