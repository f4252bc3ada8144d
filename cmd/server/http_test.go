package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"multigrid.ai/internal/control"
	"multigrid.ai/internal/protocol"
	"multigrid.ai/internal/sim/runner"
	"multigrid.ai/internal/sim/tuning"
)

type fakeSession struct{ st runner.Status }

func (f fakeSession) Status() runner.Status { return f.st }

func newTestAPI(t *testing.T, idx *indexRuntime) (*api, *control.Aggregator) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	agg := control.NewAggregator([]string{"agent_1", "agent_2"}, nil)
	a := &api{
		session: fakeSession{st: runner.Status{
			Episode:  "ep-1",
			Episodes: 3,
			Scenario: protocol.ScenarioInfo{Name: "ma-countercirc"},
			Tick:     7,
			Returns:  map[string]float64{"agent_1": 1, "agent_2": 0.5},
		}},
		agg:    agg,
		idx:    idx,
		seated: func() []string { return []string{"agent_1"} },
		admin:  true,
		log:    logger,
	}
	return a, agg
}

func do(t *testing.T, h http.Handler, method, path, remote string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if remote != "" {
		req.RemoteAddr = remote
	}
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	return rw
}

func TestHealthStatusAndMetrics(t *testing.T) {
	a, _ := newTestAPI(t, nil)
	h := a.routes()

	if rw := do(t, h, "GET", "/healthz", ""); rw.Code != http.StatusOK || rw.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rw.Code, rw.Body.String())
	}

	rw := do(t, h, "GET", "/v1/status", "")
	if rw.Code != http.StatusOK {
		t.Fatalf("status code = %d", rw.Code)
	}
	var st runner.Status
	if err := json.Unmarshal(rw.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Episode != "ep-1" || st.Tick != 7 {
		t.Fatalf("status = %+v", st)
	}

	body := do(t, h, "GET", "/metrics", "").Body.String()
	for _, want := range []string{
		`multigrid_episode_tick{scenario="ma-countercirc"} 7`,
		`multigrid_episodes_total{scenario="ma-countercirc"} 3`,
		`multigrid_episode_return{scenario="ma-countercirc",agent="agent_2"} 0.500000`,
		`multigrid_seated_controllers{scenario="ma-countercirc"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "multigrid_index_queue_depth") || strings.Contains(body, "multigrid_mirror_") {
		t.Fatalf("disabled backends should not report metrics:\n%s", body)
	}
}

func TestAdminEndpointsAreLoopbackOnly(t *testing.T) {
	a, agg := newTestAPI(t, nil)
	h := a.routes()

	if rw := do(t, h, "POST", "/admin/v1/reset", "10.0.0.8:4000"); rw.Code != http.StatusForbidden {
		t.Fatalf("remote reset = %d", rw.Code)
	}
	if agg.TakeReset() {
		t.Fatalf("forbidden reset must not reach the aggregator")
	}

	if rw := do(t, h, "POST", "/admin/v1/reset", "127.0.0.1:4000"); rw.Code != http.StatusAccepted {
		t.Fatalf("reset = %d", rw.Code)
	}
	if !agg.TakeReset() {
		t.Fatalf("reset request not recorded")
	}

	if rw := do(t, h, "POST", "/admin/v1/close", "[::1]:4000"); rw.Code != http.StatusOK {
		t.Fatalf("close = %d", rw.Code)
	}
	if !agg.Closed() {
		t.Fatalf("aggregator not closed")
	}
	if rw := do(t, h, "POST", "/admin/v1/reset", "127.0.0.1:4000"); rw.Code != http.StatusConflict {
		t.Fatalf("reset after close = %d", rw.Code)
	}
}

func TestAdminDisabled(t *testing.T) {
	a, _ := newTestAPI(t, nil)
	a.admin = false
	if rw := do(t, a.routes(), "POST", "/admin/v1/reset", "127.0.0.1:4000"); rw.Code != http.StatusNotFound {
		t.Fatalf("reset with admin disabled = %d", rw.Code)
	}
}

func TestEpisodesEndpoint(t *testing.T) {
	a, _ := newTestAPI(t, nil)
	if rw := do(t, a.routes(), "GET", "/v1/episodes", ""); rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("episodes without index = %d", rw.Code)
	}

	idx, err := openRuntimeIndex("sqlite", t.TempDir(), tuning.Defaults())
	if err != nil {
		t.Fatalf("openRuntimeIndex: %v", err)
	}
	defer idx.Close()
	a, _ = newTestAPI(t, idx)
	h := a.routes()

	if rw := do(t, h, "GET", "/v1/episodes?limit=0", ""); rw.Code != http.StatusBadRequest {
		t.Fatalf("limit=0 = %d", rw.Code)
	}
	if rw := do(t, h, "GET", "/v1/episodes?limit=5", ""); rw.Code != http.StatusOK {
		t.Fatalf("episodes = %d %s", rw.Code, rw.Body.String())
	}
	if body := do(t, h, "GET", "/metrics", "").Body.String(); !strings.Contains(body, "multigrid_index_queue_depth") {
		t.Fatalf("metrics missing index stats:\n%s", body)
	}
}

func TestLoadConfigEnvAndFlags(t *testing.T) {
	t.Setenv("MULTIGRID_ADDR", ":9999")
	t.Setenv("MULTIGRID_DATA_DIR", "/srv/env-data")
	t.Setenv("MULTIGRID_MIRROR_BUCKET", "episodes")
	t.Setenv("MULTIGRID_INDEX_BACKEND", "OFF")

	cfg, err := loadConfig([]string{"-data", "/srv/flag-data"}, io.Discard)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.DataDir != "/srv/flag-data" {
		t.Fatalf("addr=%q data=%q", cfg.Addr, cfg.DataDir)
	}
	if cfg.Mirror.Bucket != "episodes" || cfg.Mirror.Workers != 2 || cfg.Mirror.Enabled {
		t.Fatalf("mirror = %+v", cfg.Mirror)
	}
	if cfg.IndexBackend != "none" || !cfg.LoadLatest {
		t.Fatalf("index=%q loadLatest=%v", cfg.IndexBackend, cfg.LoadLatest)
	}

	if _, err := loadConfig([]string{"-index", "d1"}, io.Discard); err == nil {
		t.Fatalf("expected unsupported backend error")
	}
}

func TestLatestSnapshot(t *testing.T) {
	dir := t.TempDir()
	if got := latestSnapshot(dir); got != "" {
		t.Fatalf("empty data dir = %q", got)
	}

	write := func(episode, name string, mod time.Time) string {
		p := filepath.Join(dir, "snapshots", episode, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := os.Chtimes(p, mod, mod); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
		return p
	}
	base := time.Now().Add(-time.Hour)
	write("ep-old", "00000300.snap.zst", base)
	write("ep-new", "00000100.snap.zst", base.Add(time.Minute))
	want := write("ep-new", "00000200.snap.zst", base.Add(time.Minute))
	write("ep-new", "notes.txt", base.Add(time.Hour))

	if got := latestSnapshot(dir); got != want {
		t.Fatalf("latestSnapshot = %q, want %q", got, want)
	}
}
