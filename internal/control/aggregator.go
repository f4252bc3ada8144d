// Package control merges asynchronous per-agent input into one action map
// per simulation tick.
package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"multigrid.ai/internal/sim/actions"
)

var (
	ErrClosed       = errors.New("aggregator closed")
	ErrUnknownAgent = errors.New("unknown agent")
	ErrAgentDone    = errors.New("agent is done")
)

// Aggregator is a mutex-guarded action buffer. Producers overwrite an
// agent's pending action; the tick loop swaps the whole buffer out and
// resets it to no_op under the same lock, so an input lands in exactly one
// tick.
type Aggregator struct {
	ids      []string
	bindings Bindings

	mu      sync.Mutex
	pending map[string]actions.Action
	done    map[string]bool

	closed   atomic.Bool
	resetReq atomic.Bool
}

func NewAggregator(ids []string, b Bindings) *Aggregator {
	if b == nil {
		b = DefaultBindings(ids)
	}
	a := &Aggregator{
		ids:      append([]string(nil), ids...),
		bindings: b,
		pending:  make(map[string]actions.Action, len(ids)),
		done:     make(map[string]bool, len(ids)),
	}
	for _, id := range ids {
		a.pending[id] = actions.NoOp
	}
	return a
}

func (a *Aggregator) AgentIDs() []string { return append([]string(nil), a.ids...) }

// Submit records act as agentID's action for the next tick.
func (a *Aggregator) Submit(agentID string, act actions.Action) error {
	if a.closed.Load() {
		return ErrClosed
	}
	if !act.Valid() {
		return fmt.Errorf("%s: %w", agentID, actions.ErrInvalidAction)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.pending[agentID]; !ok {
		return fmt.Errorf("%q: %w", agentID, ErrUnknownAgent)
	}
	if a.done[agentID] {
		return fmt.Errorf("%s: %w", agentID, ErrAgentDone)
	}
	a.pending[agentID] = act
	return nil
}

// Swap returns the pending actions of every agent that is not done and
// resets the buffer to no_op.
func (a *Aggregator) Swap() map[string]actions.Action {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]actions.Action, len(a.pending))
	for _, id := range a.ids {
		if !a.done[id] {
			out[id] = a.pending[id]
		}
		a.pending[id] = actions.NoOp
	}
	return out
}

// SetDone records per-agent done flags from a step result. Unknown keys
// (including the all-done key) are ignored.
func (a *Aggregator) SetDone(done map[string]bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range a.ids {
		a.done[id] = done[id]
	}
}

// ResetEpisode clears done flags and pending input for a new episode.
func (a *Aggregator) ResetEpisode() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range a.ids {
		a.done[id] = false
		a.pending[id] = actions.NoOp
	}
}

// RequestReset asks the tick loop to start a new episode.
func (a *Aggregator) RequestReset() { a.resetReq.Store(true) }

// TakeReset reports and clears a pending reset request.
func (a *Aggregator) TakeReset() bool { return a.resetReq.Swap(false) }

func (a *Aggregator) Close()       { a.closed.Store(true) }
func (a *Aggregator) Closed() bool { return a.closed.Load() }

// StepFunc consumes one tick's action map.
type StepFunc func(ctx context.Context, acts map[string]actions.Action) error

// Run swaps the buffer every interval and hands it to step until ctx ends,
// the aggregator is closed, or step fails. The closed flag is checked once
// per tick.
func (a *Aggregator) Run(ctx context.Context, interval time.Duration, step StepFunc) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if a.closed.Load() {
				return nil
			}
			if err := step(ctx, a.Swap()); err != nil {
				return err
			}
		}
	}
}
