package control

import (
	"errors"
	"fmt"
	"strings"

	"multigrid.ai/internal/sim/actions"
)

// Reserved keys.
const (
	KeyEscape    = "escape"
	KeyBackspace = "backspace"
	KeyEnter     = "enter"
)

type Binding struct {
	Agent  string
	Action actions.Action
}

// Bindings maps a key name to the agent and action it drives.
type Bindings map[string]Binding

// DefaultBindings gives the first agent the arrow keys, space, '/' and '.',
// and the second agent a, d, w, x, e and c.
func DefaultBindings(ids []string) Bindings {
	b := Bindings{}
	layouts := []map[string]actions.Action{
		{"left": actions.TurnLeft, "right": actions.TurnRight, "up": actions.MoveForward, "space": actions.Toggle, "/": actions.Pickup, ".": actions.Drop},
		{"a": actions.TurnLeft, "d": actions.TurnRight, "w": actions.MoveForward, "x": actions.Toggle, "e": actions.Pickup, "c": actions.Drop},
	}
	for i, id := range ids {
		if i >= len(layouts) {
			break
		}
		for key, act := range layouts[i] {
			b[key] = Binding{Agent: id, Action: act}
		}
	}
	return b
}

// ParseBindings overlays agent -> key -> action-name overrides onto base.
func ParseBindings(base Bindings, raw map[string]map[string]string) (Bindings, error) {
	out := Bindings{}
	for k, v := range base {
		out[k] = v
	}
	for agent, keys := range raw {
		for key, name := range keys {
			key = normalizeKey(key)
			if key == KeyEscape || key == KeyBackspace || key == KeyEnter {
				return nil, fmt.Errorf("key %q is reserved", key)
			}
			act, err := actions.Parse(name)
			if err != nil {
				return nil, fmt.Errorf("binding %s/%s: %w", agent, key, err)
			}
			out[key] = Binding{Agent: agent, Action: act}
		}
	}
	return out, nil
}

func normalizeKey(k string) string {
	if k == " " {
		return "space"
	}
	return strings.ToLower(k)
}

// KeyResult says what HandleKey did with a key.
type KeyResult int

const (
	KeyIgnored KeyResult = iota
	KeyAction
	KeyDone
	KeyReset
	KeyClose
)

// HandleKey applies one key event. escape closes the aggregator, backspace
// requests a reset and enter submits done for every active agent. Unbound
// keys are ignored without error.
func (a *Aggregator) HandleKey(key string) (KeyResult, error) {
	key = normalizeKey(key)
	switch key {
	case KeyEscape:
		a.Close()
		return KeyClose, nil
	case KeyBackspace:
		a.RequestReset()
		return KeyReset, nil
	case KeyEnter:
		for _, id := range a.ids {
			if err := a.Submit(id, actions.Done); err != nil && !errors.Is(err, ErrAgentDone) {
				return KeyDone, err
			}
		}
		return KeyDone, nil
	}
	b, ok := a.bindings[key]
	if !ok {
		return KeyIgnored, nil
	}
	if err := a.Submit(b.Agent, b.Action); err != nil {
		return KeyAction, err
	}
	return KeyAction, nil
}

// BindingFor returns the binding of a key, if any.
func (a *Aggregator) BindingFor(key string) (Binding, bool) {
	b, ok := a.bindings[normalizeKey(key)]
	return b, ok
}
