// Package scenarios holds the built-in grid layouts, addressable by name.
package scenarios

import (
	"errors"
	"fmt"
	"sort"

	"multigrid.ai/internal/sim/world"
)

var ErrUnknownScenario = errors.New("unknown scenario")

// Agents is the registration order shared by every built-in scenario.
var Agents = []string{"agent_1", "agent_2"}

var registry = map[string]func() world.Scenario{
	"ma-empty-16x16":              func() world.Scenario { return Empty(16, nil) },
	"ma-circ-8x8":                 func() world.Scenario { return Circ(8, 40) },
	"ma-countercirc":              CounterCirc,
	"ma-multidoor-counter-10x5":   func() world.Scenario { return MultidoorCounter(10, 5) },
	"ma-shared-space-7x7":         func() world.Scenario { return SharedSpace(7, 7, 100, false) },
	"ma-shared-space-6x11":        func() world.Scenario { return SharedSpace(11, 6, 100, false) },
	"ma-shared-space-random-6x11": func() world.Scenario { return SharedSpace(11, 6, 30, true) },
}

// Lookup returns a fresh copy of a named scenario.
func Lookup(name string) (world.Scenario, error) {
	mk, ok := registry[name]
	if !ok {
		return world.Scenario{}, fmt.Errorf("%q: %w", name, ErrUnknownScenario)
	}
	return mk(), nil
}

// Names lists the registered scenarios in sorted order.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
