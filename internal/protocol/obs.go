package protocol

// OBS (server -> client): one agent's view after a reset or step.
type ObsMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Episode         string `json:"episode,omitempty"`
	Tick            int    `json:"tick"`
	AgentID         string `json:"agent_id"`
	Mission         string `json:"mission,omitempty"`

	Self   SelfObs    `json:"self"`
	Others []AgentObs `json:"others"`
	Grid   GridObs    `json:"grid"`

	// Image is an optional rendered frame (base64 on the wire).
	Image []byte `json:"image,omitempty"`
}

type SelfObs struct {
	Pos       [2]int   `json:"pos"`
	Dir       int      `json:"dir"`
	Carrying  *ItemObs `json:"carrying,omitempty"`
	StepCount int      `json:"step_count"`
	Done      bool     `json:"done"`
}

type AgentObs struct {
	AgentID  string   `json:"agent_id"`
	Pos      [2]int   `json:"pos"`
	Dir      int      `json:"dir"`
	Carrying *ItemObs `json:"carrying,omitempty"`
	Done     bool     `json:"done"`
}

type ItemObs struct {
	Kind  string `json:"kind"`
	Color string `json:"color"`
}

// GridObs is the full symbolic grid, one (kind, color, state) triple per
// cell in row-major order.
type GridObs struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Encoding string `json:"encoding"`
	Cells    []int  `json:"cells"`
}

const GridEncoding = "kind-color-state"
