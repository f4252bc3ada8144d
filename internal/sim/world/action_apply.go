package world

import (
	"multigrid.ai/internal/sim/actions"
	"multigrid.ai/internal/sim/grid"
)

// apply resolves one agent's action against the current state and returns
// its info record and sparse reward.
func (w *World) apply(a *Agent, act actions.Action) (actions.Info, float64) {
	fwd := a.Pos.Add(a.Dir.Vec())

	switch act {
	case actions.TurnLeft:
		a.Dir = a.Dir.Left()
		return actions.Info{Kind: actions.InfoTurned, OK: true}, 0
	case actions.TurnRight:
		a.Dir = a.Dir.Right()
		return actions.Info{Kind: actions.InfoTurned, OK: true}, 0
	case actions.MoveForward:
		return w.moveForward(a, fwd)
	case actions.Toggle:
		return w.toggle(a, fwd), 0
	case actions.Pickup:
		return w.pickup(a, fwd), 0
	case actions.Drop:
		return w.drop(a, fwd), 0
	case actions.Done:
		a.Done = true
		return actions.Info{Kind: actions.InfoDone, OK: true}, 0
	default:
		return actions.None(), 0
	}
}

func (w *World) moveForward(a *Agent, fwd grid.Pos) (actions.Info, float64) {
	if !w.grid.InBounds(fwd) || w.AgentAt(fwd) != "" {
		return actions.Info{Kind: actions.InfoBlocked, Target: fwd}, 0
	}
	cell := w.grid.Get(fwd)
	if !cell.CanOverlap() {
		return actions.Info{Kind: actions.InfoBlocked, Item: cell, Target: fwd}, 0
	}
	a.Pos = fwd
	if cell.IsGoalFor(a.ID) {
		a.Done = true
		return actions.Info{Kind: actions.InfoGoal, Item: cell, OK: true, Target: fwd}, w.goalReward(a)
	}
	return actions.Info{Kind: actions.InfoMoved, OK: true, Target: fwd}, 0
}

func (w *World) toggle(a *Agent, fwd grid.Pos) actions.Info {
	cell := w.grid.Get(fwd)
	switch {
	case cell == nil || !cell.CanToggle():
		return actions.Info{Kind: actions.InfoToggle, Target: fwd}
	case cell.Kind == grid.KindDoor:
		if cell.Door == grid.DoorOpen && w.AgentAt(fwd) != "" {
			return actions.Info{Kind: actions.InfoDoor, Target: fwd}
		}
		wasLocked := cell.Door == grid.DoorLocked
		ok := cell.ToggleDoor(a.Carrying)
		if ok && wasLocked && w.cfg.KeyPolicy == KeyConsume {
			a.Carrying = nil
		}
		return actions.Info{Kind: actions.InfoDoor, OK: ok, Target: fwd}
	case cell.Kind == grid.KindBox && cell.Contains != nil:
		w.grid.Set(fwd, cell.Contains)
		return actions.Info{Kind: actions.InfoToggle, Item: cell, OK: true, Target: fwd}
	default:
		return actions.Info{Kind: actions.InfoToggle, Target: fwd}
	}
}

func (w *World) pickup(a *Agent, fwd grid.Pos) actions.Info {
	cell := w.grid.Get(fwd)
	if cell != nil && cell.Kind == grid.KindCounter {
		if a.Carrying != nil {
			return actions.Info{Kind: actions.InfoPickupCounter, Target: fwd}
		}
		item, err := cell.Take()
		if err != nil {
			return actions.Info{Kind: actions.InfoPickupCounter, Target: fwd}
		}
		a.Carrying = item
		return actions.Info{Kind: actions.InfoPickupCounter, Item: item, OK: true, Target: fwd}
	}

	if a.Carrying != nil || !cell.CanPickup() {
		return actions.Info{Kind: actions.InfoPickup, Target: fwd}
	}
	item, err := w.grid.Retrieve(fwd)
	if err != nil {
		return actions.Info{Kind: actions.InfoPickup, Target: fwd}
	}
	a.Carrying = item
	return actions.Info{Kind: actions.InfoPickup, Item: item, OK: true, Target: fwd}
}

func (w *World) drop(a *Agent, fwd grid.Pos) actions.Info {
	cell := w.grid.Get(fwd)
	if cell != nil && cell.Kind == grid.KindCounter {
		if a.Carrying == nil {
			return actions.Info{Kind: actions.InfoDropCounter, Target: fwd}
		}
		if err := cell.Put(a.Carrying); err != nil {
			return actions.Info{Kind: actions.InfoDropCounter, Item: a.Carrying, Target: fwd}
		}
		item := a.Carrying
		a.Carrying = nil
		return actions.Info{Kind: actions.InfoDropCounter, Item: item, OK: true, Target: fwd}
	}

	if a.Carrying == nil || w.AgentAt(fwd) != "" {
		return actions.Info{Kind: actions.InfoDrop, Item: a.Carrying, Target: fwd}
	}
	if err := w.grid.Place(fwd, a.Carrying); err != nil {
		return actions.Info{Kind: actions.InfoDrop, Item: a.Carrying, Target: fwd}
	}
	item := a.Carrying
	a.Carrying = nil
	return actions.Info{Kind: actions.InfoDrop, Item: item, OK: true, Target: fwd}
}
