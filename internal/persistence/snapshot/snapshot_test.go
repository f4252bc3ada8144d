package snapshot

import (
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir, "ep1", 12)

	in := SnapshotV1{
		Header:    Header{Version: Version, Episode: "ep1", Scenario: "ma-countercirc", Tick: 12},
		Seed:      7,
		Width:     6,
		Height:    5,
		MaxSteps:  200,
		StepCount: 12,
		Cells: []CellV1{
			{X: 2, Y: 0, Obj: ObjectV1{Kind: "counter", Color: "purple", Held: &ObjectV1{ID: 3, Kind: "ball", Color: "blue", RelayID: "ball"}}},
			{X: 0, Y: 0, Obj: ObjectV1{Kind: "wall", Color: "grey"}},
		},
		Agents: []AgentV1{
			{ID: "agent_1", X: 1, Y: 2, Dir: 0, StepCount: 12},
			{ID: "agent_2", X: 4, Y: 2, Dir: 2, StepCount: 12, Carrying: &ObjectV1{ID: 4, Kind: "box", Color: "red", RelayID: "box"}},
		},
		Relays:   []RelayV1{{ID: "ball", Kind: "ball", Color: "blue", Source: [2]int{2, 0}, Dest: [2]int{2, 4}, State: 1, ItemID: 3}},
		Counters: CountersV1{NextObject: 4, Resets: 1},
	}
	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if h != in.Header {
		t.Fatalf("header = %+v", h)
	}

	out, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if out.Seed != 7 || out.StepCount != 12 || len(out.Cells) != 2 || len(out.Agents) != 2 {
		t.Fatalf("snapshot = %+v", out)
	}
	if held := out.Cells[0].Obj.Held; held == nil || held.ID != 3 || held.RelayID != "ball" {
		t.Fatalf("counter payload lost: %+v", out.Cells[0].Obj)
	}
	if c := out.Agents[1].Carrying; c == nil || c.Kind != "box" {
		t.Fatalf("carry slot lost: %+v", out.Agents[1])
	}
	if out.Relays[0].Dest != [2]int{2, 4} || out.Counters.NextObject != 4 {
		t.Fatalf("relays/counters = %+v %+v", out.Relays, out.Counters)
	}
}

func TestReadSnapshotRejectsVersion(t *testing.T) {
	path := Path(t.TempDir(), "ep", 0)
	if err := WriteSnapshot(path, SnapshotV1{Header: Header{Version: 99}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("expected version error")
	}
}
