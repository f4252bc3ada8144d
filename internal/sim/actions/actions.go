package actions

import (
	"errors"
	"fmt"
)

var ErrInvalidAction = errors.New("invalid action")

// Action is one discrete per-agent command for a tick.
type Action uint8

const (
	NoOp Action = iota
	TurnLeft
	TurnRight
	MoveForward
	Toggle
	Pickup
	Drop
	Done
)

var names = [...]string{
	NoOp:        "no_op",
	TurnLeft:    "turn_left",
	TurnRight:   "turn_right",
	MoveForward: "move_forward",
	Toggle:      "toggle",
	Pickup:      "pickup",
	Drop:        "drop",
	Done:        "done",
}

// All lists every action in wire order.
var All = []Action{NoOp, TurnLeft, TurnRight, MoveForward, Toggle, Pickup, Drop, Done}

func (a Action) Valid() bool { return int(a) < len(names) }

func (a Action) String() string {
	if !a.Valid() {
		return fmt.Sprintf("action(%d)", uint8(a))
	}
	return names[a]
}

// Parse maps a wire token to an Action.
func Parse(s string) (Action, error) {
	for i, n := range names {
		if n == s {
			return Action(i), nil
		}
	}
	return NoOp, fmt.Errorf("%q: %w", s, ErrInvalidAction)
}

func (a Action) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%d: %w", uint8(a), ErrInvalidAction)
	}
	return []byte(names[a]), nil
}

func (a *Action) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
