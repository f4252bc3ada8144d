// Package runner drives a World from an action aggregator: one step per
// tick, a fresh episode whenever every agent is done, and fan-out of each
// result to the tick log, index, snapshots and connected controllers.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"multigrid.ai/internal/control"
	"multigrid.ai/internal/persistence/archive"
	"multigrid.ai/internal/persistence/snapshot"
	"multigrid.ai/internal/protocol"
	"multigrid.ai/internal/sim/actions"
	"multigrid.ai/internal/sim/world"
)

// Broadcaster receives every reset and step, e.g. the WebSocket hub.
type Broadcaster interface {
	BroadcastReset(episode string, scen protocol.ScenarioInfo, obs map[string]protocol.ObsMsg)
	BroadcastStep(step protocol.StepMsg, obs map[string]protocol.ObsMsg)
}

type SnapshotRecorder interface {
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
}

type Config struct {
	World      *world.World
	Aggregator *control.Aggregator

	TickInterval time.Duration
	// MaxEpisodes closes the aggregator after that many episodes; 0 runs forever.
	MaxEpisodes int
	// SnapshotEvery writes a snapshot every that many ticks of an episode
	// when DataDir is set; 0 disables.
	SnapshotEvery int
	DataDir       string
	// ArchiveEpisodes writes a final snapshot and meta.json for every
	// finished episode under DataDir/archives.
	ArchiveEpisodes bool
	// OnArchived receives the files of each archived episode.
	OnArchived func(paths ...string)

	TickLoggers []world.TickLogger
	Snapshots   SnapshotRecorder
	Broadcaster Broadcaster

	Logger       logrus.FieldLogger
	NewEpisodeID func() string
}

// Status is a point-in-time view for operators.
type Status struct {
	Episode   string                `json:"episode"`
	Episodes  int                   `json:"episodes"`
	Scenario  protocol.ScenarioInfo `json:"scenario"`
	Tick      int                   `json:"tick"`
	Done      map[string]bool       `json:"done"`
	Returns   map[string]float64    `json:"returns"`
	Digest    string                `json:"digest"`
	StartedAt time.Time             `json:"started_at"`
	Closed    bool                  `json:"closed"`
}

type Runner struct {
	cfg      Config
	w        *world.World
	agg      *control.Aggregator
	log      logrus.FieldLogger
	baseSeed int64

	episodes int
	episode  string

	mu      sync.RWMutex
	status  Status
	lastObs map[string]protocol.ObsMsg
}

func New(cfg Config) (*Runner, error) {
	if cfg.World == nil || cfg.Aggregator == nil {
		return nil, errors.New("runner: world and aggregator are required")
	}
	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("runner: tick interval must be > 0, got %s", cfg.TickInterval)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.NewEpisodeID == nil {
		cfg.NewEpisodeID = uuid.NewString
	}
	return &Runner{
		cfg:      cfg,
		w:        cfg.World,
		agg:      cfg.Aggregator,
		log:      cfg.Logger.WithField("scenario", cfg.World.Scenario().Name),
		baseSeed: cfg.World.SeedValue(),
	}, nil
}

// Run starts the first episode if none is running and steps until ctx ends
// or the aggregator is closed.
func (r *Runner) Run(ctx context.Context) error {
	if r.episode == "" {
		if err := r.Reset(); err != nil {
			return err
		}
	}
	err := r.agg.Run(ctx, r.cfg.TickInterval, r.Tick)
	r.mu.Lock()
	r.status.Closed = true
	r.mu.Unlock()
	return err
}

// Reset starts the next episode, seeded with the base seed plus the episode
// index. Once MaxEpisodes episodes have run it closes the aggregator instead.
func (r *Runner) Reset() error {
	if r.cfg.MaxEpisodes > 0 && r.episodes >= r.cfg.MaxEpisodes {
		r.log.WithField("episodes", r.episodes).Info("episode limit reached")
		r.agg.Close()
		return nil
	}
	r.w.Seed(r.baseSeed + int64(r.episodes))
	obs, err := r.w.Reset()
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	r.episodes++
	r.episode = r.cfg.NewEpisodeID()
	r.agg.ResetEpisode()
	stampEpisode(obs, r.episode)

	entry := r.w.ResetEntry(r.episode)
	r.writeTick(entry)

	scen := ScenarioInfo(r.w)
	r.mu.Lock()
	r.status = Status{
		Episode:   r.episode,
		Episodes:  r.episodes,
		Scenario:  scen,
		Done:      map[string]bool{},
		Returns:   map[string]float64{},
		Digest:    entry.Digest,
		StartedAt: time.Now().UTC(),
	}
	r.lastObs = obs
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{"episode": r.episode, "seed": r.w.SeedValue()}).Info("episode started")
	if r.cfg.Broadcaster != nil {
		r.cfg.Broadcaster.BroadcastReset(r.episode, scen, obs)
	}
	return nil
}

// Resume continues an episode restored with World.ImportSnapshot instead
// of starting a fresh one. Later episodes are seeded from the restored seed.
func (r *Runner) Resume(episode string) error {
	if episode == "" {
		return errors.New("resume: empty episode id")
	}
	if r.w.StepCount() == 0 && r.w.Grid() == nil {
		return errors.New("resume: world has no state")
	}
	r.baseSeed = r.w.SeedValue()
	r.episodes = 1
	r.episode = episode
	r.agg.ResetEpisode()

	done := map[string]bool{}
	obs := make(map[string]protocol.ObsMsg)
	for _, id := range r.w.AgentIDs() {
		a, _ := r.w.Agent(id)
		done[id] = a.Done
		o, err := r.w.Observe(id)
		if err != nil {
			return fmt.Errorf("resume: %w", err)
		}
		obs[id] = o
	}
	done[world.AllDone] = r.w.AllDone()
	r.agg.SetDone(done)
	stampEpisode(obs, episode)

	r.mu.Lock()
	r.status = Status{
		Episode:   episode,
		Episodes:  1,
		Scenario:  ScenarioInfo(r.w),
		Tick:      r.w.StepCount(),
		Done:      done,
		Returns:   map[string]float64{},
		Digest:    r.w.StateDigest(),
		StartedAt: time.Now().UTC(),
	}
	r.lastObs = obs
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{"episode": episode, "tick": r.w.StepCount()}).Info("episode resumed")
	if done[world.AllDone] {
		return r.Reset()
	}
	return nil
}

// Tick consumes one swapped action map. A pending reset request wins over
// the actions.
func (r *Runner) Tick(_ context.Context, acts map[string]actions.Action) error {
	if r.agg.TakeReset() {
		return r.Reset()
	}
	res, err := r.w.Step(acts)
	if err != nil {
		return fmt.Errorf("episode %s: %w", r.episode, err)
	}
	stampEpisode(res.Obs, r.episode)
	r.writeTick(world.StepEntry(r.episode, acts, res))
	r.maybeSnapshot(res.Tick)

	r.mu.Lock()
	r.status.Tick = res.Tick
	r.status.Done = res.Done
	r.status.Digest = res.Digest
	for id, rw := range res.Rewards {
		r.status.Returns[id] += rw
	}
	returns := make(map[string]float64, len(r.status.Returns))
	for id, rw := range r.status.Returns {
		returns[id] = rw
	}
	r.lastObs = res.Obs
	r.mu.Unlock()

	if len(res.Deliveries) > 0 {
		r.log.WithFields(logrus.Fields{"episode": r.episode, "tick": res.Tick, "deliveries": len(res.Deliveries)}).Debug("relay delivered")
	}
	if r.cfg.Broadcaster != nil {
		r.cfg.Broadcaster.BroadcastStep(StepMessage(r.episode, acts, res), res.Obs)
	}
	r.agg.SetDone(res.Done)

	if res.Done[world.AllDone] {
		r.log.WithFields(logrus.Fields{"episode": r.episode, "tick": res.Tick, "returns": returns}).Info("episode finished")
		r.archive(res, returns)
		return r.Reset()
	}
	return nil
}

func (r *Runner) archive(res world.StepResult, returns map[string]float64) {
	if r.cfg.DataDir == "" || !r.cfg.ArchiveEpisodes {
		return
	}
	timedOut := false
	for _, in := range res.Info {
		timedOut = timedOut || in.TimedOut
	}
	snapPath, metaPath, err := archive.ArchiveEpisode(r.cfg.DataDir, r.w.ExportSnapshot(r.episode), returns, timedOut)
	if err != nil {
		r.log.WithError(err).WithField("episode", r.episode).Warn("episode archive failed")
		return
	}
	if r.cfg.OnArchived != nil {
		r.cfg.OnArchived(snapPath, metaPath)
	}
}

func (r *Runner) writeTick(e world.TickLogEntry) {
	for _, l := range r.cfg.TickLoggers {
		if l == nil {
			continue
		}
		if err := l.WriteTick(e); err != nil {
			r.log.WithError(err).WithFields(logrus.Fields{"episode": e.Episode, "tick": e.Tick}).Warn("tick log write failed")
		}
	}
}

func (r *Runner) maybeSnapshot(tick int) {
	if r.cfg.DataDir == "" || r.cfg.SnapshotEvery <= 0 || tick%r.cfg.SnapshotEvery != 0 {
		return
	}
	snap := r.w.ExportSnapshot(r.episode)
	path := snapshot.Path(r.cfg.DataDir, r.episode, tick)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{"episode": r.episode, "tick": tick}).Warn("snapshot write failed")
		return
	}
	if r.cfg.Snapshots != nil {
		r.cfg.Snapshots.RecordSnapshot(path, snap)
	}
}

// RequestReset ends the current episode at the next tick.
func (r *Runner) RequestReset() { r.agg.RequestReset() }

func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := r.status
	st.Done = copyMap(st.Done)
	st.Returns = copyMap(st.Returns)
	st.Closed = st.Closed || r.agg.Closed()
	return st
}

// LastObs returns the latest observation of one agent.
func (r *Runner) LastObs(agentID string) (protocol.ObsMsg, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.lastObs[agentID]
	return o, ok
}

func stampEpisode(obs map[string]protocol.ObsMsg, episode string) {
	for id, o := range obs {
		o.Episode = episode
		obs[id] = o
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
