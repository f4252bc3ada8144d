package main

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/matryer/way"
	"github.com/sirupsen/logrus"

	"multigrid.ai/internal/control"
	"multigrid.ai/internal/sim/runner"
)

type statusSource interface {
	Status() runner.Status
}

type api struct {
	session statusSource
	agg     *control.Aggregator
	idx     *indexRuntime
	mirror  *mirrorRuntime
	ws      http.Handler
	seated  func() []string
	admin   bool
	log     logrus.FieldLogger
}

func (a *api) routes() http.Handler {
	router := way.NewRouter()
	router.HandleFunc("GET", "/healthz", a.handleHealth)
	router.HandleFunc("GET", "/metrics", a.handleMetrics)
	router.HandleFunc("GET", "/v1/status", a.handleStatus)
	router.HandleFunc("GET", "/v1/episodes", a.handleEpisodes)
	if a.ws != nil {
		router.Handle("GET", "/v1/ws", a.ws)
	}
	if a.admin {
		// Local-only; these steer the running session.
		router.HandleFunc("POST", "/admin/v1/reset", a.loopbackOnly(a.handleReset))
		router.HandleFunc("POST", "/admin/v1/close", a.loopbackOnly(a.handleClose))
	} else {
		a.log.Info("admin endpoints disabled (MULTIGRID_ENABLE_ADMIN_HTTP=false)")
	}
	return router
}

func (a *api) handleHealth(rw http.ResponseWriter, r *http.Request) {
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte("ok"))
}

func (a *api) handleStatus(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, a.session.Status())
}

func (a *api) handleEpisodes(rw http.ResponseWriter, r *http.Request) {
	if a.idx == nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"error": "index disabled"})
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeJSON(rw, http.StatusBadRequest, map[string]any{"error": "limit must be in 1..1000"})
			return
		}
		limit = n
	}
	rows, err := a.idx.RecentEpisodes(r.Context(), limit)
	if err != nil {
		a.log.WithError(err).Warn("list episodes")
		writeJSON(rw, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"episodes": rows})
}

func (a *api) handleReset(rw http.ResponseWriter, r *http.Request) {
	if a.agg.Closed() {
		writeJSON(rw, http.StatusConflict, map[string]any{"ok": false, "error": "closed"})
		return
	}
	a.agg.RequestReset()
	writeJSON(rw, http.StatusAccepted, map[string]any{"ok": true, "episode": a.session.Status().Episode})
}

func (a *api) handleClose(rw http.ResponseWriter, r *http.Request) {
	a.agg.Close()
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
}

func (a *api) loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func (a *api) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
	st := a.session.Status()
	scen := st.Scenario.Name

	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP multigrid_episode_tick Current step of the running episode.\n")
	fmt.Fprintf(rw, "# TYPE multigrid_episode_tick gauge\n")
	fmt.Fprintf(rw, "multigrid_episode_tick{scenario=%q} %d\n", scen, st.Tick)

	fmt.Fprintf(rw, "# HELP multigrid_episodes_total Episodes started by this process.\n")
	fmt.Fprintf(rw, "# TYPE multigrid_episodes_total counter\n")
	fmt.Fprintf(rw, "multigrid_episodes_total{scenario=%q} %d\n", scen, st.Episodes)

	fmt.Fprintf(rw, "# HELP multigrid_episode_return Per-agent return of the running episode.\n")
	fmt.Fprintf(rw, "# TYPE multigrid_episode_return gauge\n")
	ids := make([]string, 0, len(st.Returns))
	for id := range st.Returns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(rw, "multigrid_episode_return{scenario=%q,agent=%q} %.6f\n", scen, id, st.Returns[id])
	}

	if a.seated != nil {
		fmt.Fprintf(rw, "# HELP multigrid_seated_controllers Agents with a connected player.\n")
		fmt.Fprintf(rw, "# TYPE multigrid_seated_controllers gauge\n")
		fmt.Fprintf(rw, "multigrid_seated_controllers{scenario=%q} %d\n", scen, len(a.seated()))
	}

	if s, ok := a.idx.Stats(); ok {
		fmt.Fprintf(rw, "# HELP multigrid_index_queue_depth Index writer backlog.\n")
		fmt.Fprintf(rw, "# TYPE multigrid_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "multigrid_index_queue_depth %d\n", s.QueueDepth)
		fmt.Fprintf(rw, "# HELP multigrid_index_dropped_total Index writes dropped on a full queue.\n")
		fmt.Fprintf(rw, "# TYPE multigrid_index_dropped_total counter\n")
		fmt.Fprintf(rw, "multigrid_index_dropped_total{kind=%q} %d\n", "tick", s.DropTickTotal)
		fmt.Fprintf(rw, "multigrid_index_dropped_total{kind=%q} %d\n", "snapshot", s.DropSnapshotTotal)
	}

	if s, ok := a.mirror.Stats(); ok {
		fmt.Fprintf(rw, "# HELP multigrid_mirror_queue_depth Current mirror queue depth.\n")
		fmt.Fprintf(rw, "# TYPE multigrid_mirror_queue_depth gauge\n")
		fmt.Fprintf(rw, "multigrid_mirror_queue_depth %d\n", s.QueueDepth)
		fmt.Fprintf(rw, "# HELP multigrid_mirror_dropped_total Files dropped because the queue was full.\n")
		fmt.Fprintf(rw, "# TYPE multigrid_mirror_dropped_total counter\n")
		fmt.Fprintf(rw, "multigrid_mirror_dropped_total %d\n", s.DroppedTotal)
		fmt.Fprintf(rw, "# HELP multigrid_mirror_upload_success_total Successful uploads.\n")
		fmt.Fprintf(rw, "# TYPE multigrid_mirror_upload_success_total counter\n")
		fmt.Fprintf(rw, "multigrid_mirror_upload_success_total %d\n", s.UploadedTotal)
		fmt.Fprintf(rw, "# HELP multigrid_mirror_upload_fail_total Uploads that failed after retry.\n")
		fmt.Fprintf(rw, "# TYPE multigrid_mirror_upload_fail_total counter\n")
		fmt.Fprintf(rw, "multigrid_mirror_upload_fail_total %d\n", s.FailedTotal)
		fmt.Fprintf(rw, "# HELP multigrid_mirror_last_success_unix Unix time of the last successful upload.\n")
		fmt.Fprintf(rw, "# TYPE multigrid_mirror_last_success_unix gauge\n")
		fmt.Fprintf(rw, "multigrid_mirror_last_success_unix %d\n", s.LastUploadUnix)
	}
}

func writeJSON(rw http.ResponseWriter, code int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	_ = json.NewEncoder(rw).Encode(v)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
