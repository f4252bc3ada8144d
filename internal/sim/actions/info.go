package actions

import "multigrid.ai/internal/sim/grid"

// InfoKind tags what an agent's action did this tick.
type InfoKind string

const (
	InfoNone          InfoKind = "none"
	InfoMoved         InfoKind = "moved"
	InfoBlocked       InfoKind = "blocked"
	InfoTurned        InfoKind = "turned"
	InfoDoor          InfoKind = "door"
	InfoToggle        InfoKind = "toggle"
	InfoPickup        InfoKind = "pickup"
	InfoDrop          InfoKind = "drop"
	InfoPickupCounter InfoKind = "pickup_counter"
	InfoDropCounter   InfoKind = "drop_counter"
	InfoGoal          InfoKind = "goal"
	InfoDone          InfoKind = "done"
	InfoTimeout       InfoKind = "timeout"
)

// Info is the (kind, payload) action_info record. Item is the object moved by
// pickup/drop variants; OK carries the success flag for door and toggle
// outcomes and for failed pickups/drops; Target is the cell the action
// addressed.
type Info struct {
	Kind   InfoKind
	Item   *grid.Object
	OK     bool
	Target grid.Pos
}

func None() Info { return Info{Kind: InfoNone} }

// Is reports whether the info matches kind and, for item-bearing kinds, the item kind.
func (i Info) Is(kind InfoKind, item grid.Kind) bool {
	if i.Kind != kind {
		return false
	}
	return item == 0 || (i.Item != nil && i.Item.Kind == item)
}

// Wire is the JSON-friendly projection of Info.
type Wire struct {
	Kind  string    `json:"kind"`
	Item  string    `json:"item,omitempty"`
	Color string    `json:"color,omitempty"`
	OK    bool      `json:"ok"`
	At    *grid.Pos `json:"at,omitempty"`
}

func (i Info) Wire() Wire {
	w := Wire{Kind: string(i.Kind), OK: i.OK}
	if i.Item != nil {
		w.Item = i.Item.Kind.String()
		w.Color = i.Item.Color.String()
	}
	switch i.Kind {
	case InfoNone, InfoTurned, InfoDone, InfoTimeout:
	default:
		at := i.Target
		w.At = &at
	}
	return w
}
