package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

type dbQuery struct {
	name    string
	episode string
	agent   string
	limit   int
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/index/multigrid.sqlite)")
	episode := fs.String("episode", "", "episode id (default: most recent)")
	agent := fs.String("agent", "", "agent id filter (actions)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := dbQuery{name: "episodes", episode: strings.TrimSpace(*episode), agent: strings.TrimSpace(*agent), limit: *limit}
	if fs.NArg() > 0 {
		q.name = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "multigrid.sqlite")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(db, q, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data|-db PATH] [-episode ID] [-agent ID] [-limit N] episodes|deliveries|actions|snapshots")
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("unknown query")

func runQuery(db *sql.DB, q dbQuery, out io.Writer) error {
	if q.limit <= 0 {
		q.limit = 20
	}
	if q.name != "episodes" && q.episode == "" {
		ep, err := latestEpisode(db)
		if err != nil {
			return fmt.Errorf("latest episode: %w", err)
		}
		if ep == "" {
			return errors.New("no episodes indexed")
		}
		q.episode = ep
	}

	switch q.name {
	case "episodes":
		rows, err := db.Query(`SELECT id,scenario,seed,max_steps,started_at,COALESCE(ended_at,''),steps,returns_json FROM episodes ORDER BY started_at DESC, rowid DESC LIMIT ?`, q.limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				ID        string          `json:"id"`
				Scenario  string          `json:"scenario"`
				Seed      int64           `json:"seed"`
				MaxSteps  int             `json:"max_steps"`
				StartedAt string          `json:"started_at"`
				EndedAt   string          `json:"ended_at,omitempty"`
				Steps     int             `json:"steps"`
				Returns   json.RawMessage `json:"returns"`
			}
			var ret string
			if err := rows.Scan(&r.ID, &r.Scenario, &r.Seed, &r.MaxSteps, &r.StartedAt, &r.EndedAt, &r.Steps, &ret); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.Returns = json.RawMessage(ret)
			printJSONTo(out, r)
		}
		return rows.Err()

	case "deliveries":
		rows, err := db.Query(`SELECT tick,relay_id,item,credited_json FROM deliveries WHERE episode=? ORDER BY tick LIMIT ?`, q.episode, q.limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Episode  string          `json:"episode"`
				Tick     int             `json:"tick"`
				RelayID  string          `json:"relay_id"`
				Item     string          `json:"item"`
				Credited json.RawMessage `json:"credited"`
			}
			var credited string
			if err := rows.Scan(&r.Tick, &r.RelayID, &r.Item, &credited); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.Episode = q.episode
			r.Credited = json.RawMessage(credited)
			printJSONTo(out, r)
		}
		return rows.Err()

	case "actions":
		// Outcome counts per agent and info kind.
		query := `SELECT agent_id,info_kind,COUNT(*),SUM(ok),SUM(reward) FROM actions WHERE episode=? GROUP BY agent_id,info_kind ORDER BY agent_id,info_kind`
		args := []any{q.episode}
		if q.agent != "" {
			query = `SELECT agent_id,info_kind,COUNT(*),SUM(ok),SUM(reward) FROM actions WHERE episode=? AND agent_id=? GROUP BY agent_id,info_kind ORDER BY agent_id,info_kind`
			args = append(args, q.agent)
		}
		rows, err := db.Query(query, args...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Episode  string  `json:"episode"`
				AgentID  string  `json:"agent_id"`
				InfoKind string  `json:"info_kind"`
				Count    int     `json:"count"`
				OK       int     `json:"ok"`
				Reward   float64 `json:"reward"`
			}
			if err := rows.Scan(&r.AgentID, &r.InfoKind, &r.Count, &r.OK, &r.Reward); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.Episode = q.episode
			printJSONTo(out, r)
		}
		return rows.Err()

	case "snapshots":
		rows, err := db.Query(`SELECT tick,path,scenario,seed,agents,relays FROM snapshots WHERE episode=? ORDER BY tick DESC LIMIT ?`, q.episode, q.limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Episode  string `json:"episode"`
				Tick     int    `json:"tick"`
				Path     string `json:"path"`
				Scenario string `json:"scenario"`
				Seed     int64  `json:"seed"`
				Agents   int    `json:"agents"`
				Relays   int    `json:"relays"`
			}
			if err := rows.Scan(&r.Tick, &r.Path, &r.Scenario, &r.Seed, &r.Agents, &r.Relays); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.Episode = q.episode
			printJSONTo(out, r)
		}
		return rows.Err()

	default:
		return fmt.Errorf("%w: %s", errUsage, q.name)
	}
}

func latestEpisode(db *sql.DB) (string, error) {
	var id string
	err := db.QueryRow(`SELECT id FROM episodes ORDER BY started_at DESC, rowid DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

func printJSON(v any) { printJSONTo(os.Stdout, v) }

func printJSONTo(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
