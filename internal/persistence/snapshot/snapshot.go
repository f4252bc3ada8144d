package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version  int    `json:"version"`
	Episode  string `json:"episode"`
	Scenario string `json:"scenario"`
	Tick     int    `json:"tick"`
}

// SnapshotV1 is the full state of one episode at a tick boundary.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed      int64  `json:"seed"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	MaxSteps  int    `json:"max_steps"`
	StepCount int    `json:"step_count"`
	Mission   string `json:"mission,omitempty"`

	KeyPolicy   string `json:"key_policy"`
	RelayCredit string `json:"relay_credit"`
	GoalReward  string `json:"goal_reward"`

	Cells  []CellV1  `json:"cells"`
	Agents []AgentV1 `json:"agents"`
	Relays []RelayV1 `json:"relays,omitempty"`

	Counters CountersV1 `json:"counters"`

	// ShapingCredit is the dense shaper's per-agent credited item id.
	ShapingCredit map[string]uint64 `json:"shaping_credit,omitempty"`
}

type CountersV1 struct {
	NextObject uint64 `json:"next_object"`
	Resets     uint64 `json:"resets"`
}

// CellV1 is a non-empty cell.
type CellV1 struct {
	X   int      `json:"x"`
	Y   int      `json:"y"`
	Obj ObjectV1 `json:"obj"`
}

type ObjectV1 struct {
	ID         uint64    `json:"id,omitempty"`
	Kind       string    `json:"kind"`
	Color      string    `json:"color,omitempty"`
	Door       uint8     `json:"door,omitempty"`
	Owner      string    `json:"owner,omitempty"`
	RelayID    string    `json:"relay_id,omitempty"`
	SeeThrough bool      `json:"see_through,omitempty"`
	Held       *ObjectV1 `json:"held,omitempty"`
	Contains   *ObjectV1 `json:"contains,omitempty"`
}

type AgentV1 struct {
	ID        string    `json:"id"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Dir       uint8     `json:"dir"`
	Carrying  *ObjectV1 `json:"carrying,omitempty"`
	StepCount int       `json:"step_count"`
	Done      bool      `json:"done"`
}

type RelayV1 struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Color      string `json:"color"`
	Source     [2]int `json:"source"`
	Dest       [2]int `json:"dest"`
	State      uint8  `json:"state"`
	ItemID     uint64 `json:"item_id,omitempty"`
	Deliveries int    `json:"deliveries"`
	Lost       int    `json:"lost,omitempty"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 64*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

// ReadHeader decodes only the leading JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// Header line is duplicated inside the gob payload.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("snapshot version %d not supported", snap.Header.Version)
	}
	return snap, nil
}

// Path returns the conventional file name for a snapshot.
func Path(dir, episode string, tick int) string {
	return filepath.Join(dir, "snapshots", episode, fmt.Sprintf("%08d.snap.zst", tick))
}
