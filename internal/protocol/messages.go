package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	ClientName      string     `json:"client_name"`
	Role            string     `json:"role,omitempty"` // "player" (default) or "spectator"
	AgentID         string     `json:"agent_id,omitempty"`
	Auth            *HelloAuth `json:"auth,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

const (
	RolePlayer    = "player"
	RoleSpectator = "spectator"
)

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	SessionID       string       `json:"session_id"`
	AgentID         string       `json:"agent_id,omitempty"`
	Role            string       `json:"role"`
	Episode         string       `json:"episode"`
	TickIntervalMS  int          `json:"tick_interval_ms"`
	Scenario        ScenarioInfo `json:"scenario"`
}

type ScenarioInfo struct {
	Name     string   `json:"name"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	MaxSteps int      `json:"max_steps"`
	Agents   []string `json:"agents"`
	Mission  string   `json:"mission,omitempty"`
	Seed     int64    `json:"seed"`
}

// INPUT (client -> server). Exactly one of Action or Key is set. AgentID
// defaults to the connection's seat.
type InputMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AgentID         string `json:"agent_id,omitempty"`
	Action          string `json:"action,omitempty"`
	Key             string `json:"key,omitempty"`
}

// CONTROL (client -> server)
type ControlMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Op              string `json:"op"`
}

const (
	ControlReset = "reset"
	ControlClose = "close"
)

type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	Tick            int    `json:"tick,omitempty"`
}

// STEP (server -> client) summarizes one resolved tick.
type StepMsg struct {
	Type            string             `json:"type"`
	ProtocolVersion string             `json:"protocol_version"`
	Episode         string             `json:"episode"`
	Tick            int                `json:"tick"`
	Actions         map[string]string  `json:"actions"`
	Rewards         map[string]float64 `json:"rewards"`
	Done            map[string]bool    `json:"done"`
	Info            map[string]InfoObs `json:"info"`
	Deliveries      []DeliveryObs      `json:"deliveries,omitempty"`
	Digest          string             `json:"digest,omitempty"`
}

type InfoObs struct {
	Kind      string  `json:"kind"`
	Item      string  `json:"item,omitempty"`
	Color     string  `json:"color,omitempty"`
	OK        bool    `json:"ok"`
	At        *[2]int `json:"at,omitempty"`
	StepCount int     `json:"step_count"`
	TimedOut  bool    `json:"timed_out,omitempty"`
}

type DeliveryObs struct {
	RelayID  string   `json:"relay_id"`
	Item     string   `json:"item"`
	Credited []string `json:"credited,omitempty"`
}
