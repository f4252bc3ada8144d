package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"multigrid.ai/internal/persistence/snapshot"
)

// EpisodeMeta sits next to an archived final snapshot.
type EpisodeMeta struct {
	Episode  string             `json:"episode"`
	Scenario string             `json:"scenario"`
	Seed     int64              `json:"seed"`
	Steps    int                `json:"steps"`
	MaxSteps int                `json:"max_steps"`
	TimedOut bool               `json:"timed_out"`
	Returns  map[string]float64 `json:"returns"`
	Snapshot string             `json:"snapshot"`
	EndedAt  string             `json:"ended_at"`
}

// Dir is where an episode's archive lives.
func Dir(dataDir, episode string) string {
	return filepath.Join(dataDir, "archives", episode)
}

// ArchiveEpisode writes the final snapshot of a finished episode and its
// meta.json into dataDir/archives/<episode>/ and returns both paths.
func ArchiveEpisode(dataDir string, snap snapshot.SnapshotV1, returns map[string]float64, timedOut bool) (snapPath, metaPath string, err error) {
	ep := snap.Header.Episode
	if ep == "" {
		return "", "", fmt.Errorf("archive: snapshot has no episode id")
	}
	dir := Dir(dataDir, ep)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	snapPath = filepath.Join(dir, fmt.Sprintf("final-%08d.snap.zst", snap.Header.Tick))
	if err := snapshot.WriteSnapshot(snapPath, snap); err != nil {
		return "", "", err
	}

	meta := EpisodeMeta{
		Episode:  ep,
		Scenario: snap.Header.Scenario,
		Seed:     snap.Seed,
		Steps:    snap.StepCount,
		MaxSteps: snap.MaxSteps,
		TimedOut: timedOut,
		Returns:  returns,
		Snapshot: filepath.Base(snapPath),
		EndedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", "", err
	}
	metaPath = filepath.Join(dir, "meta.json")
	if err := os.WriteFile(metaPath, b, 0o644); err != nil {
		return "", "", err
	}
	return snapPath, metaPath, nil
}

// ReadMeta loads an episode's meta.json.
func ReadMeta(dataDir, episode string) (EpisodeMeta, error) {
	var m EpisodeMeta
	b, err := os.ReadFile(filepath.Join(Dir(dataDir, episode), "meta.json"))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}
