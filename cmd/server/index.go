package main

import (
	"context"
	"path/filepath"

	"multigrid.ai/internal/persistence/indexdb"
	"multigrid.ai/internal/persistence/snapshot"
	"multigrid.ai/internal/sim/tuning"
	"multigrid.ai/internal/sim/world"
)

// indexRuntime wraps the read-model index. It does not affect the
// simulation; a nil *indexRuntime means indexing is off.
type indexRuntime struct {
	db *indexdb.SQLiteIndex
}

func openRuntimeIndex(backend, dataDir string, tune tuning.Tuning) (*indexRuntime, error) {
	if backend == "none" {
		return nil, nil
	}
	db, err := indexdb.OpenSQLite(filepath.Join(dataDir, "index", "multigrid.sqlite"))
	if err != nil {
		return nil, err
	}
	if err := db.UpsertTuning(tune); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &indexRuntime{db: db}, nil
}

func (i *indexRuntime) Close() error {
	if i == nil {
		return nil
	}
	return i.db.Close()
}

func (i *indexRuntime) WriteTick(e world.TickLogEntry) error {
	return i.db.WriteTick(e)
}

func (i *indexRuntime) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	i.db.RecordSnapshot(path, snap)
}

func (i *indexRuntime) Stats() (indexdb.Stats, bool) {
	if i == nil {
		return indexdb.Stats{}, false
	}
	return i.db.Stats(), true
}

func (i *indexRuntime) RecentEpisodes(ctx context.Context, n int) ([]indexdb.EpisodeRow, error) {
	return i.db.RecentEpisodes(ctx, n)
}
