package archive

import (
	"path/filepath"
	"testing"

	"multigrid.ai/internal/persistence/snapshot"
)

func TestArchiveEpisode(t *testing.T) {
	dir := t.TempDir()
	snap := snapshot.SnapshotV1{
		Header:    snapshot.Header{Version: snapshot.Version, Episode: "ep9", Scenario: "ma-circ-8x8", Tick: 40},
		Seed:      3,
		StepCount: 40,
		MaxSteps:  40,
	}
	snapPath, metaPath, err := ArchiveEpisode(dir, snap, map[string]float64{"agent_1": 1}, true)
	if err != nil {
		t.Fatalf("ArchiveEpisode: %v", err)
	}
	if filepath.Dir(snapPath) != Dir(dir, "ep9") || filepath.Base(metaPath) != "meta.json" {
		t.Fatalf("paths = %s %s", snapPath, metaPath)
	}
	got, err := snapshot.ReadSnapshot(snapPath)
	if err != nil || got.Header.Tick != 40 {
		t.Fatalf("ReadSnapshot = %+v, %v", got.Header, err)
	}
	meta, err := ReadMeta(dir, "ep9")
	if err != nil {
		t.Fatalf("ReadMeta: %v", err)
	}
	if meta.Steps != 40 || !meta.TimedOut || meta.Returns["agent_1"] != 1 || meta.Snapshot != filepath.Base(snapPath) {
		t.Fatalf("meta = %+v", meta)
	}

	if _, _, err := ArchiveEpisode(dir, snapshot.SnapshotV1{}, nil, false); err == nil {
		t.Fatalf("missing episode id should fail")
	}
}
