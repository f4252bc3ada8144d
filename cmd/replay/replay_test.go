package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"multigrid.ai/internal/control"
	persistlog "multigrid.ai/internal/persistence/log"
	"multigrid.ai/internal/sim/actions"
	"multigrid.ai/internal/sim/runner"
	"multigrid.ai/internal/sim/tuning"
	"multigrid.ai/internal/sim/world"
)

type memLog struct{ entries []world.TickLogEntry }

func (m *memLog) WriteTick(e world.TickLogEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

// recordSession runs two short episodes and returns the logged lines.
func recordSession(t *testing.T, tune tuning.Tuning, extra ...world.TickLogger) []world.TickLogEntry {
	t.Helper()
	w, err := runner.NewWorld(tune)
	if err != nil {
		t.Fatalf("NewWorld: %v", err)
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	mem := &memLog{}
	agg := control.NewAggregator(w.AgentIDs(), nil)
	r, err := runner.New(runner.Config{
		World:        w,
		Aggregator:   agg,
		TickInterval: time.Millisecond,
		TickLoggers:  append([]world.TickLogger{mem}, extra...),
		Logger:       logger,
	})
	if err != nil {
		t.Fatalf("runner.New: %v", err)
	}
	if err := r.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	ids := w.AgentIDs()
	seq := []actions.Action{actions.MoveForward, actions.TurnLeft, actions.Pickup, actions.MoveForward, actions.Toggle, actions.Drop, actions.TurnRight}
	for i := 0; i < 2*tune.MaxSteps; i++ {
		acts := map[string]actions.Action{}
		for j, id := range ids {
			acts[id] = seq[(i+j)%len(seq)]
		}
		if err := r.Tick(context.Background(), acts); err != nil {
			t.Fatalf("Tick %d: %v", i, err)
		}
	}
	return mem.entries
}

func testTuning() tuning.Tuning {
	tune := tuning.Defaults()
	tune.Seed = 41
	tune.MaxSteps = 5
	return tune
}

func TestReplayReproducesDigests(t *testing.T) {
	entries := recordSession(t, testTuning())

	r := &replayer{base: tuning.Defaults(), checkRewards: true}
	for _, e := range entries {
		if err := r.apply(e); err != nil {
			t.Fatalf("apply %s tick %d: %v", e.Kind, e.Tick, err)
		}
	}
	if r.episodes < 2 || r.checked != len(entries) || r.skipped != 0 {
		t.Fatalf("episodes=%d checked=%d skipped=%d entries=%d", r.episodes, r.checked, r.skipped, len(entries))
	}
}

func TestReplayReportsFirstDivergence(t *testing.T) {
	entries := recordSession(t, testTuning())
	target := -1
	for i, e := range entries {
		if e.Kind == world.EntryStep && e.Tick == 3 {
			target = i
			break
		}
	}
	if target < 0 {
		t.Fatalf("no step entry for tick 3")
	}
	entries[target].Digest = "0000"
	entries[target+1].Digest = "1111"

	r := &replayer{base: tuning.Defaults()}
	var err error
	for _, e := range entries {
		if err = r.apply(e); err != nil {
			break
		}
	}
	var d *Divergence
	if !errors.As(err, &d) {
		t.Fatalf("expected divergence, got %v", err)
	}
	if d.Tick != 3 || d.Want != "0000" || d.Field != "digest" || d.Episode != entries[target].Episode {
		t.Fatalf("divergence = %+v", d)
	}
}

func TestReplaySkipsEpisodesWithoutReset(t *testing.T) {
	entries := recordSession(t, testTuning())
	first := entries[0].Episode

	// Drop the first reset line, as in a log that starts from a resumed episode.
	r := &replayer{base: tuning.Defaults()}
	for _, e := range entries[1:] {
		if err := r.apply(e); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	if r.skipped == 0 || r.episodes == 0 {
		t.Fatalf("skipped=%d episodes=%d", r.skipped, r.episodes)
	}

	r = &replayer{base: tuning.Defaults(), episode: first}
	for _, e := range entries {
		if err := r.apply(e); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	if r.episodes != 1 {
		t.Fatalf("filtered episodes = %d", r.episodes)
	}
}

func TestReplayFromCompressedLog(t *testing.T) {
	dir := t.TempDir()
	tl := persistlog.NewTickLogger(dir)
	entries := recordSession(t, testTuning(), tl)
	if err := tl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := persistlog.ListTickFiles(dir)
	if err != nil || len(files) == 0 {
		t.Fatalf("ListTickFiles = %v, %v", files, err)
	}
	r := &replayer{base: tuning.Defaults(), checkRewards: true}
	for _, f := range files {
		if err := persistlog.ReadTickFile(f, r.apply); err != nil {
			t.Fatalf("ReadTickFile: %v", err)
		}
	}
	if r.checked != len(entries) {
		t.Fatalf("checked=%d entries=%d", r.checked, len(entries))
	}
}
