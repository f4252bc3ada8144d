package protocol

import (
	"encoding/json"
	"testing"
)

func TestValidate_ClientMessages(t *testing.T) {
	ok := []struct{ typ, raw string }{
		{TypeHello, `{"type":"HELLO","protocol_version":"1.0","client_name":"pad","role":"player","agent_id":"agent_1"}`},
		{TypeInput, `{"type":"INPUT","protocol_version":"1.0","action":"move_forward"}`},
		{TypeInput, `{"type":"INPUT","protocol_version":"1.0","key":"left"}`},
		{TypeControl, `{"type":"CONTROL","protocol_version":"1.0","op":"reset"}`},
	}
	for _, c := range ok {
		if err := Validate(c.typ, []byte(c.raw)); err != nil {
			t.Fatalf("%s: %v", c.raw, err)
		}
	}

	bad := []struct{ typ, raw string }{
		{TypeHello, `{"type":"HELLO","protocol_version":"1.0"}`},
		{TypeHello, `{"type":"HELLO","protocol_version":"1.0","client_name":"x","role":"god"}`},
		{TypeInput, `{"type":"INPUT","protocol_version":"1.0","action":"jump"}`},
		{TypeInput, `{"type":"INPUT","protocol_version":"1.0"}`},
		{TypeInput, `{"type":"INPUT","protocol_version":"1.0","action":"drop","key":"c"}`},
		{TypeControl, `{"type":"CONTROL","protocol_version":"1.0","op":"pause"}`},
	}
	for _, c := range bad {
		if err := Validate(c.typ, []byte(c.raw)); err == nil {
			t.Fatalf("expected rejection: %s", c.raw)
		}
	}
}

func TestValidate_ServerMessages(t *testing.T) {
	obs := ObsMsg{
		Type:            TypeObs,
		ProtocolVersion: Version,
		Tick:            3,
		AgentID:         "agent_1",
		Self:            SelfObs{Pos: [2]int{1, 2}, Dir: 3, Carrying: &ItemObs{Kind: "key", Color: "yellow"}, StepCount: 3},
		Others:          []AgentObs{{AgentID: "agent_2", Pos: [2]int{4, 2}, Dir: 2}},
		Grid:            GridObs{Width: 1, Height: 1, Encoding: GridEncoding, Cells: []int{2, 5, 0}},
	}
	b, _ := json.Marshal(obs)
	if err := Validate(TypeObs, b); err != nil {
		t.Fatalf("obs: %v", err)
	}

	at := [2]int{2, 4}
	step := StepMsg{
		Type:            TypeStep,
		ProtocolVersion: Version,
		Episode:         "ep",
		Tick:            1,
		Actions:         map[string]string{"agent_1": "drop"},
		Rewards:         map[string]float64{"agent_1": 1},
		Done:            map[string]bool{"agent_1": false, "__all__": false},
		Info:            map[string]InfoObs{"agent_1": {Kind: "drop_counter", Item: "ball", Color: "blue", OK: true, At: &at, StepCount: 1}},
		Deliveries:      []DeliveryObs{{RelayID: "ball", Item: "ball", Credited: []string{"agent_1"}}},
	}
	b, _ = json.Marshal(step)
	if err := Validate(TypeStep, b); err != nil {
		t.Fatalf("step: %v", err)
	}

	delete(step.Done, "__all__")
	b, _ = json.Marshal(step)
	if err := Validate(TypeStep, b); err == nil {
		t.Fatalf("step without __all__ should be rejected")
	}
}

func TestDecodeBase(t *testing.T) {
	m, err := DecodeBase([]byte(`{"type":"INPUT","protocol_version":"1.0","key":"w"}`))
	if err != nil || m.Type != TypeInput || m.ProtocolVersion != Version {
		t.Fatalf("DecodeBase = %+v, %v", m, err)
	}
	if err := Validate("UNKNOWN", []byte(`{}`)); err != nil {
		t.Fatalf("types without schema pass: %v", err)
	}
}
