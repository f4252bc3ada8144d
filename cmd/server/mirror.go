package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"multigrid.ai/internal/persistence/objectstore"
	"multigrid.ai/internal/persistence/snapshot"
)

type mirrorRuntime struct {
	rotateLayout string
	mirror       *objectstore.Mirror
}

// buildMirrorRuntime returns nil when mirroring is disabled.
func buildMirrorRuntime(cfg mirrorConfig, dataDir string, logger logrus.FieldLogger) (*mirrorRuntime, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	client, err := objectstore.NewS3Client(objectstore.S3Config{
		Endpoint:        cfg.Endpoint,
		Bucket:          cfg.Bucket,
		Region:          cfg.Region,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("MULTIGRID_MIRROR_ENABLED=true: %w", err)
	}
	return &mirrorRuntime{
		rotateLayout: "2006-01-02-15-04", // 1-minute segments
		mirror:       objectstore.NewMirror(client, dataDir, cfg.Prefix, cfg.Workers, logger),
	}, nil
}

func (r *mirrorRuntime) Close() {
	if r == nil {
		return
	}
	r.mirror.Close()
}

func (r *mirrorRuntime) Enqueue(paths ...string) {
	if r == nil {
		return
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			r.mirror.Enqueue(p)
		}
	}
}

func (r *mirrorRuntime) Stats() (objectstore.Stats, bool) {
	if r == nil {
		return objectstore.Stats{}, false
	}
	return r.mirror.Stats(), true
}

// snapshotFanout records each periodic snapshot in the index and mirrors
// the file.
type snapshotFanout struct {
	idx    *indexRuntime
	mirror *mirrorRuntime
}

func (f snapshotFanout) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if f.idx != nil {
		f.idx.RecordSnapshot(path, snap)
	}
	f.mirror.Enqueue(path)
}
