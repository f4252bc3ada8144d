package world

import (
	"errors"
	"fmt"
	"math/rand"

	"multigrid.ai/internal/protocol"
	"multigrid.ai/internal/sim/actions"
	"multigrid.ai/internal/sim/grid"
	"multigrid.ai/internal/sim/relay"
	"multigrid.ai/internal/sim/reward"
)

var (
	ErrUnknownAgent   = errors.New("unknown agent")
	ErrNotReset       = errors.New("world not reset")
	ErrEpisodeOver    = errors.New("episode is over")
	ErrAgentNotPlaced = errors.New("agent not placed by scenario")
	ErrBadScenario    = errors.New("bad scenario")
	ErrInvariant      = errors.New("invariant violated")
)

// AllDone is the synthetic done-map key that is true once every agent is done.
const AllDone = "__all__"

// RelayReward is the sparse reward per credited delivery.
const RelayReward = 1.0

type KeyPolicy string

const (
	KeyRetain  KeyPolicy = "retain"
	KeyConsume KeyPolicy = "consume"
)

type GoalReward string

const (
	GoalConstant GoalReward = "constant"
	GoalDecay    GoalReward = "decay"
)

// Renderer produces an image of the world from one agent's point of view.
// Rendering lives outside the engine; a nil Renderer skips images.
type Renderer func(w *World, agentID string) ([]byte, error)

type WorldConfig struct {
	Scenario Scenario
	Seed     int64

	// MaxSteps overrides the scenario's limit when > 0.
	MaxSteps    int
	KeyPolicy   KeyPolicy
	RelayCredit relay.CreditPolicy
	GoalReward  GoalReward

	// Shaper overrides the scenario's dense shaping when set.
	Shaper   reward.Shaper
	Renderer Renderer

	// CheckInvariants runs CheckInvariants after every step and reset.
	CheckInvariants bool
}

type Agent struct {
	ID        string
	Pos       grid.Pos
	Dir       grid.Dir
	Carrying  *grid.Object
	StepCount int
	Done      bool

	placed bool
}

// World is one episode of a multi-agent grid environment. It is not safe for
// concurrent use; the runner owns it from a single goroutine.
type World struct {
	cfg      WorldConfig
	scen     Scenario
	maxSteps int

	seed int64
	rng  *rand.Rand

	grid    *grid.Grid
	agents  map[string]*Agent
	order   []string
	relays  *relay.Arena
	rewards reward.Pipeline
	mission string

	stepCount  int
	nextObject uint64
	resets     uint64
	ready      bool
}

func New(cfg WorldConfig) (*World, error) {
	s := cfg.Scenario
	if err := s.validate(); err != nil {
		return nil, err
	}
	if cfg.KeyPolicy == "" {
		cfg.KeyPolicy = s.KeyPolicy
	}
	if cfg.KeyPolicy == "" {
		cfg.KeyPolicy = KeyRetain
	}
	if cfg.KeyPolicy != KeyRetain && cfg.KeyPolicy != KeyConsume {
		return nil, fmt.Errorf("key policy %q: %w", cfg.KeyPolicy, ErrBadScenario)
	}
	if cfg.GoalReward == "" {
		cfg.GoalReward = GoalConstant
	}
	if cfg.GoalReward != GoalConstant && cfg.GoalReward != GoalDecay {
		return nil, fmt.Errorf("goal reward %q: %w", cfg.GoalReward, ErrBadScenario)
	}
	if cfg.RelayCredit == "" {
		cfg.RelayCredit = relay.CreditFirst
	}
	if cfg.RelayCredit != relay.CreditFirst && cfg.RelayCredit != relay.CreditAll {
		return nil, fmt.Errorf("relay credit %q: %w", cfg.RelayCredit, ErrBadScenario)
	}

	shaper := cfg.Shaper
	if shaper == nil && s.Shaping != nil {
		shaper = reward.NewTableShaper(*s.Shaping)
	}

	w := &World{
		cfg:      cfg,
		scen:     s,
		maxSteps: s.MaxSteps,
		order:    append([]string(nil), s.AgentIDs...),
		rewards:  reward.Pipeline{Shaper: shaper},
	}
	if cfg.MaxSteps > 0 {
		w.maxSteps = cfg.MaxSteps
	}
	w.Seed(cfg.Seed)
	return w, nil
}

// Seed reseeds the layout RNG. The next Reset draws from it.
func (w *World) Seed(seed int64) {
	w.seed = seed
	w.rng = rand.New(rand.NewSource(seed))
}

func (w *World) Scenario() Scenario   { return w.scen }
func (w *World) Config() WorldConfig  { return w.cfg }
func (w *World) SeedValue() int64     { return w.seed }
func (w *World) MaxSteps() int        { return w.maxSteps }
func (w *World) StepCount() int       { return w.stepCount }
func (w *World) Mission() string      { return w.mission }
func (w *World) Grid() *grid.Grid     { return w.grid }
func (w *World) Relays() *relay.Arena { return w.relays }

// AgentIDs returns the fixed resolution order.
func (w *World) AgentIDs() []string { return append([]string(nil), w.order...) }

// Agent returns a copy of an agent's state.
func (w *World) Agent(id string) (Agent, bool) {
	a := w.agents[id]
	if a == nil {
		return Agent{}, false
	}
	return *a, true
}

func (w *World) AllDone() bool {
	for _, id := range w.order {
		if a := w.agents[id]; a == nil || !a.Done {
			return false
		}
	}
	return len(w.order) > 0
}

// AgentAt returns the id of the agent standing on p, or "".
func (w *World) AgentAt(p grid.Pos) string {
	for _, id := range w.order {
		if a := w.agents[id]; a != nil && a.placed && a.Pos == p {
			return id
		}
	}
	return ""
}

func (w *World) newObjectID() uint64 {
	w.nextObject++
	return w.nextObject
}

// StepResult is the per-agent outcome of one tick. Every map is keyed by
// every registered agent; Done also carries AllDone.
type StepResult struct {
	Tick       int
	Obs        map[string]protocol.ObsMsg
	Rewards    map[string]float64
	Done       map[string]bool
	Info       map[string]AgentInfo
	Deliveries []relay.Delivery
	Digest     string
}

// AgentInfo is the info record of one agent for one tick.
type AgentInfo struct {
	ActionInfo actions.Info
	StepCount  int
	Sparse     float64
	Dense      float64
	TimedOut   bool
}
