package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"multigrid.ai/internal/persistence/snapshot"
	"multigrid.ai/internal/sim/tuning"
	"multigrid.ai/internal/sim/world"
)

// SQLiteIndex is a secondary, queryable index of episodes, ticks, relay
// deliveries and snapshots. Writes are queued and applied by one goroutine;
// the compressed tick log stays the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropSnapshot atomic.Uint64

	// Running per-agent returns of open episodes; owned by the writer goroutine.
	returns map[string]map[string]float64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSnapshot
)

type req struct {
	kind reqKind

	tick     world.TickLogEntry
	snapshot snapshotRow
	at       time.Time
}

type snapshotRow struct {
	Episode  string
	Tick     int
	Path     string
	Scenario string
	Seed     int64
	Agents   int
	Relays   int
}

// Stats reports queue pressure.
type Stats struct {
	QueueDepth        int
	QueueCapacity     int
	DropTickTotal     uint64
	DropSnapshotTotal uint64
}

// EpisodeRow is one indexed episode.
type EpisodeRow struct {
	ID        string             `json:"id"`
	Scenario  string             `json:"scenario"`
	Seed      int64              `json:"seed"`
	StartedAt string             `json:"started_at"`
	EndedAt   string             `json:"ended_at,omitempty"`
	Steps     int                `json:"steps"`
	Returns   map[string]float64 `json:"returns"`
}

const defaultQueue = 65536

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{db: db, ch: make(chan req, defaultQueue), returns: map[string]map[string]float64{}}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS config (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS episodes (
			id TEXT PRIMARY KEY,
			scenario TEXT NOT NULL,
			seed INTEGER NOT NULL,
			max_steps INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			steps INTEGER NOT NULL DEFAULT 0,
			returns_json TEXT NOT NULL DEFAULT '{}'
		);`,
		`CREATE INDEX IF NOT EXISTS idx_episodes_scenario ON episodes(scenario, started_at);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			episode TEXT NOT NULL,
			tick INTEGER NOT NULL,
			digest TEXT NOT NULL,
			all_done INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (episode, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS actions (
			episode TEXT NOT NULL,
			tick INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			action TEXT NOT NULL,
			info_kind TEXT NOT NULL,
			ok INTEGER NOT NULL,
			reward REAL NOT NULL,
			PRIMARY KEY (episode, tick, agent_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_actions_agent ON actions(agent_id, info_kind);`,
		`CREATE TABLE IF NOT EXISTS deliveries (
			episode TEXT NOT NULL,
			tick INTEGER NOT NULL,
			relay_id TEXT NOT NULL,
			item TEXT NOT NULL,
			credited_json TEXT NOT NULL,
			PRIMARY KEY (episode, tick, relay_id)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			episode TEXT NOT NULL,
			tick INTEGER NOT NULL,
			path TEXT NOT NULL,
			scenario TEXT NOT NULL,
			seed INTEGER NOT NULL,
			agents INTEGER NOT NULL,
			relays INTEGER NOT NULL,
			PRIMARY KEY (episode, tick)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	_, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`)
	return err
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// WriteTick queues a tick log entry. It never blocks the caller; entries are
// dropped and counted when the writer falls behind.
func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry, at: time.Now().UTC()}:
	default:
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Episode:  snap.Header.Episode,
		Tick:     snap.Header.Tick,
		Path:     path,
		Scenario: snap.Header.Scenario,
		Seed:     snap.Seed,
		Agents:   len(snap.Agents),
		Relays:   len(snap.Relays),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

// UpsertTuning stores the tuning values in effect, keyed by their digest.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	_, err = s.db.Exec(`INSERT OR REPLACE INTO config(name,digest,json,updated_at) VALUES(?,?,?,?)`,
		"tuning", hex.EncodeToString(sum[:]), string(b), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// RecentEpisodes returns up to n episodes, newest first.
func (s *SQLiteIndex) RecentEpisodes(ctx context.Context, n int) ([]EpisodeRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,scenario,seed,started_at,COALESCE(ended_at,''),steps,returns_json FROM episodes ORDER BY started_at DESC, rowid DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EpisodeRow
	for rows.Next() {
		var (
			e   EpisodeRow
			raw string
		)
		if err := rows.Scan(&e.ID, &e.Scenario, &e.Seed, &e.StartedAt, &e.EndedAt, &e.Steps, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &e.Returns); err != nil {
			return nil, fmt.Errorf("episode %s returns: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEpisode, _ := s.db.Prepare(`INSERT OR REPLACE INTO episodes(id,scenario,seed,max_steps,started_at) VALUES(?,?,?,?,?)`)
	updateEpisode, _ := s.db.Prepare(`UPDATE episodes SET steps=?, returns_json=?, ended_at=? WHERE id=?`)
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(episode,tick,digest,all_done,raw_json) VALUES(?,?,?,?,?)`)
	insertAction, _ := s.db.Prepare(`INSERT OR REPLACE INTO actions(episode,tick,agent_id,action,info_kind,ok,reward) VALUES(?,?,?,?,?,?,?)`)
	insertDelivery, _ := s.db.Prepare(`INSERT OR REPLACE INTO deliveries(episode,tick,relay_id,item,credited_json) VALUES(?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(episode,tick,path,scenario,seed,agents,relays) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertEpisode, updateEpisode, insertTick, insertAction, insertDelivery, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		returns = s.returns
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		var r req
		select {
		case rr, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			r = rr
		case <-ticker.C:
			commit()
			continue
		}

		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			e := r.tick
			switch e.Kind {
			case world.EntryReset:
				var seed int64
				if e.Seed != nil {
					seed = *e.Seed
				}
				// The runner owns one episode at a time; a reset abandons any
				// episode that ended without an all-done tick.
				for id := range returns {
					delete(returns, id)
				}
				returns[e.Episode] = map[string]float64{}
				exec(insertEpisode, e.Episode, e.Scenario, seed, e.MaxSteps, r.at.Format(time.RFC3339Nano))

			case world.EntryStep:
				raw, _ := json.Marshal(e)
				allDone := e.Done[world.AllDone]
				if !exec(insertTick, e.Episode, e.Tick, e.Digest, boolInt(allDone), string(raw)) {
					if allDone {
						delete(returns, e.Episode)
					}
					continue
				}
				ret := returns[e.Episode]
				if ret == nil {
					ret = map[string]float64{}
					returns[e.Episode] = ret
				}
				for id, act := range e.Actions {
					in := e.Info[id]
					if !exec(insertAction, e.Episode, e.Tick, id, act.String(), in.Kind, boolInt(in.OK), e.Rewards[id]) {
						break
					}
				}
				for id, rw := range e.Rewards {
					ret[id] += rw
				}
				for _, d := range e.Deliveries {
					credited, _ := json.Marshal(d.Credited)
					if !exec(insertDelivery, e.Episode, e.Tick, d.RelayID, d.Item, string(credited)) {
						break
					}
				}
				retJSON, _ := json.Marshal(ret)
				var ended any
				if allDone {
					ended = r.at.Format(time.RFC3339Nano)
					delete(returns, e.Episode)
				}
				exec(updateEpisode, e.Tick, string(retJSON), ended, e.Episode)
			}

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, sn.Episode, sn.Tick, sn.Path, sn.Scenario, sn.Seed, sn.Agents, sn.Relays)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
