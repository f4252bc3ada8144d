package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"multigrid.ai/internal/control"
	persistlog "multigrid.ai/internal/persistence/log"
	"multigrid.ai/internal/persistence/snapshot"
	"multigrid.ai/internal/protocol"
	"multigrid.ai/internal/sim/runner"
	"multigrid.ai/internal/sim/tuning"
	"multigrid.ai/internal/sim/world"
	"multigrid.ai/internal/transport/ws"
)

func main() {
	cfg, err := loadConfig(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		logrus.Fatalf("config: %v", err)
	}
	logger, err := newLogger(cfg, os.Stdout)
	if err != nil {
		logrus.Fatalf("logger: %v", err)
	}
	log := logger.WithField("component", "server")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("data dir: %v", err)
	}

	tune, err := tuning.Load(cfg.TuningPath)
	if err != nil {
		log.Fatalf("load tuning: %v", err)
	}

	// Resume from a snapshot when one is given or found.
	snapshotToLoad := strings.TrimSpace(cfg.Snapshot)
	if snapshotToLoad == "" && cfg.LoadLatest {
		snapshotToLoad = latestSnapshot(cfg.DataDir)
	}
	var resume *snapshot.SnapshotV1
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			log.Fatalf("read snapshot: %v", err)
		}
		tune = tuneForSnapshot(tune, snap)
		resume = &snap
	}

	w, err := runner.NewWorld(tune)
	if err != nil {
		log.Fatalf("world: %v", err)
	}
	if resume != nil {
		if err := w.ImportSnapshot(*resume); err != nil {
			log.Fatalf("import snapshot: %v", err)
		}
		log.WithFields(logrus.Fields{"snapshot": filepath.Base(snapshotToLoad), "episode": resume.Header.Episode, "tick": w.StepCount()}).Info("resuming")
	}

	bindings, err := control.ParseBindings(control.DefaultBindings(w.AgentIDs()), tune.Bindings)
	if err != nil {
		log.Fatalf("bindings: %v", err)
	}
	agg := control.NewAggregator(w.AgentIDs(), bindings)

	idx, err := openRuntimeIndex(cfg.IndexBackend, cfg.DataDir, tune)
	if err != nil {
		log.Fatalf("open index backend: %v", err)
	}
	defer idx.Close()

	mirror, err := buildMirrorRuntime(cfg.Mirror, cfg.DataDir, logger)
	if err != nil {
		log.Fatalf("init mirror: %v", err)
	}
	defer mirror.Close()

	logOpts := persistlog.LoggerOptions{}
	if mirror != nil {
		logOpts.RotateLayout = mirror.rotateLayout
		logOpts.OnClose = func(path string) { mirror.Enqueue(path) }
	}
	tickLog := persistlog.NewTickLoggerWithOptions(cfg.DataDir, logOpts)
	defer tickLog.Close()

	tickInterval := time.Duration(tune.TickIntervalMs) * time.Millisecond
	loggers := []world.TickLogger{tickLog}
	var snaps runner.SnapshotRecorder
	if idx != nil {
		loggers = append(loggers, idx)
	}
	if idx != nil || mirror != nil {
		snaps = snapshotFanout{idx: idx, mirror: mirror}
	}

	var hub *ws.Server
	broadcast := broadcasterFunc(func() runner.Broadcaster {
		if hub == nil {
			return nil
		}
		return hub
	})
	run, err := runner.New(runner.Config{
		World:           w,
		Aggregator:      agg,
		TickInterval:    tickInterval,
		MaxEpisodes:     tune.MaxEpisodes,
		SnapshotEvery:   tune.SnapshotEveryTicks,
		DataDir:         cfg.DataDir,
		ArchiveEpisodes: cfg.Archive,
		OnArchived:      mirror.Enqueue,
		TickLoggers:     loggers,
		Snapshots:       snaps,
		Broadcaster:     broadcast,
		Logger:          logger,
	})
	if err != nil {
		log.Fatalf("runner: %v", err)
	}
	hub = ws.NewServer(ws.Config{
		Aggregator:   agg,
		Session:      run,
		TickInterval: tickInterval,
		AuthToken:    cfg.AuthToken,
		Logger:       logger,
	})

	if resume != nil {
		if err := run.Resume(resume.Header.Episode); err != nil {
			log.Fatalf("resume: %v", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := run.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("runner stopped")
		}
		log.Info("session closed")
		cancel()
	}()

	a := &api{
		session: run,
		agg:     agg,
		idx:     idx,
		mirror:  mirror,
		ws:      hub.Handler(),
		seated:  hub.Seated,
		admin:   cfg.EnableAdminHTTP,
		log:     log,
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	log.WithFields(logrus.Fields{"addr": cfg.Addr, "scenario": tune.Scenario, "agents": w.AgentIDs()}).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("ListenAndServe: %v", err)
	}
	<-runDone
}

// broadcasterFunc resolves the broadcaster lazily; the ws hub needs the
// runner as its session, so it is built second.
type broadcasterFunc func() runner.Broadcaster

func (f broadcasterFunc) BroadcastReset(episode string, scen protocol.ScenarioInfo, obs map[string]protocol.ObsMsg) {
	if b := f(); b != nil {
		b.BroadcastReset(episode, scen, obs)
	}
}

func (f broadcasterFunc) BroadcastStep(step protocol.StepMsg, obs map[string]protocol.ObsMsg) {
	if b := f(); b != nil {
		b.BroadcastStep(step, obs)
	}
}

// tuneForSnapshot makes the world match the snapshot's scenario and
// state-affecting policies.
func tuneForSnapshot(t tuning.Tuning, snap snapshot.SnapshotV1) tuning.Tuning {
	t.Scenario = snap.Header.Scenario
	t.Seed = snap.Seed
	t.MaxSteps = snap.MaxSteps
	if snap.KeyPolicy != "" {
		t.KeyPolicy = snap.KeyPolicy
	}
	if snap.RelayCredit != "" {
		t.RelayCredit = snap.RelayCredit
	}
	if snap.GoalReward != "" {
		t.GoalReward = snap.GoalReward
	}
	return t
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

// latestSnapshot returns the most recently written snapshot under
// <dataDir>/snapshots/<episode>/, or "".
func latestSnapshot(dataDir string) string {
	root := filepath.Join(dataDir, "snapshots")
	episodes, err := os.ReadDir(root)
	if err != nil {
		return ""
	}
	var best string
	var bestMod time.Time
	var bestTick uint64
	for _, ep := range episodes {
		if !ep.IsDir() {
			continue
		}
		dir := filepath.Join(root, ep.Name())
		ents, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range ents {
			name := e.Name()
			if e.IsDir() || !strings.HasSuffix(name, ".snap.zst") {
				continue
			}
			tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
			if err != nil {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			mod := info.ModTime()
			if best == "" || mod.After(bestMod) || (mod.Equal(bestMod) && tick > bestTick) {
				best, bestMod, bestTick = filepath.Join(dir, name), mod, tick
			}
		}
	}
	return best
}
