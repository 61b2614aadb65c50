// Package control implements the small HTTP surface used to trigger and
// observe pipeline runs: /health, /status, /start, /retry, and /metrics.
package control

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.capitolfeed.build/go/httputils"
	"go.capitolfeed.build/go/sklog"
	"go.capitolfeed.build/ingest/go/ingestconfig"
	"go.capitolfeed.build/ingest/go/journal"
	"go.capitolfeed.build/ingest/go/metrics"
	"go.capitolfeed.build/ingest/go/orchestrate"
)

// runner is the subset of *orchestrate.Orchestrator the control server
// depends on, so tests can supply a fake.
type runner interface {
	Run(ctx context.Context, cfg *ingestconfig.Config) (*orchestrate.Summary, error)
	RunRetries(ctx context.Context, cfg *ingestconfig.Config) (*orchestrate.Summary, error)
}

// Server wraps a chi.Router implementing the control surface. At most one
// pipeline run is in progress at a time, guarded by mtx.
type Server struct {
	Router chi.Router

	cfg      *ingestconfig.Config
	orch     runner
	registry *prometheus.Registry

	// bgCtx outlives any single request: a run started by /start or /retry
	// must keep going after the handler returns and the request's own
	// context is cancelled. It is cancelled only when the server itself
	// shuts down.
	bgCtx context.Context

	mtx       sync.Mutex
	running   bool
	phase     string
	startedAt time.Time
	runID     string
}

// statusResponse is the JSON shape served by GET /status.
type statusResponse struct {
	Running               bool      `json:"running"`
	Phase                 string    `json:"phase"`
	RetryFailuresCount    int       `json:"retry_failures_count"`
	LastDiscoveryURLCount int       `json:"last_discovery_url_count"`
	StartedAt             time.Time `json:"started_at"`
}

// startResponse is served by POST /start and POST /retry on acceptance.
type startResponse struct {
	RunID string `json:"run_id"`
}

// New builds a Server bound to cfg and backed by orch for pipeline runs.
// bgCtx is the server's own lifecycle context: runs started by /start and
// /retry are tied to it, not to the triggering request's context, so they
// keep running after the handler that launched them returns. Cancel bgCtx
// to stop any in-flight run as part of server shutdown.
func New(bgCtx context.Context, cfg *ingestconfig.Config, orch runner) *Server {
	reg := prometheus.NewRegistry()
	metrics.Register(reg)

	s := &Server{
		cfg:      cfg,
		orch:     orch,
		registry: reg,
		bgCtx:    bgCtx,
	}

	r := chi.NewRouter()
	r.Get("/health", httputils.ReadyHandleFunc)
	r.Get("/status", s.handleStatus)
	r.Post("/start", s.handleStart)
	r.Post("/retry", s.handleRetry)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	s.Router = r
	return s
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	rj := journal.Open(s.cfg.RetryJSON)
	retryCount := rj.Count()
	metrics.RetryCandidates.Set(float64(len(rj.Candidates(s.cfg.Retries))))

	s.mtx.Lock()
	resp := statusResponse{
		Running:            s.running,
		Phase:              s.phase,
		RetryFailuresCount: retryCount,
		StartedAt:          s.startedAt,
	}
	s.mtx.Unlock()

	var inv struct {
		AggregateURLs []string `json:"aggregate_urls"`
	}
	journal.Load(s.cfg.BulkJSON, &inv)
	resp.LastDiscoveryURLCount = len(inv.AggregateURLs)

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.beginRun("discovery")
	if !ok {
		w.WriteHeader(http.StatusConflict)
		return
	}

	go func() {
		defer s.endRun()
		metrics.PipelineRunning.Set(1)
		defer metrics.PipelineRunning.Set(0)
		start := nowFn()
		if _, err := s.orch.Run(s.bgCtx, s.cfg); err != nil {
			sklog.Errorf("control: pipeline run %s failed: %s", runID, err)
		}
		metrics.LastRunDurationSeconds.Set(nowFn().Sub(start).Seconds())
	}()

	writeJSON(w, http.StatusAccepted, startResponse{RunID: runID})
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.beginRun("retry")
	if !ok {
		w.WriteHeader(http.StatusConflict)
		return
	}

	go func() {
		defer s.endRun()
		if _, err := s.orch.RunRetries(s.bgCtx, s.cfg); err != nil {
			sklog.Errorf("control: retry run %s failed: %s", runID, err)
		}
	}()

	writeJSON(w, http.StatusAccepted, startResponse{RunID: runID})
}

// beginRun claims the single run slot, returning (runID, true) if it was
// free or ("", false) if a run is already in progress.
func (s *Server) beginRun(phase string) (string, bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.running {
		return "", false
	}
	s.running = true
	s.phase = phase
	s.startedAt = nowFn()
	s.runID = uuid.NewString()
	return s.runID, true
}

func (s *Server) endRun() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.running = false
	s.phase = ""
}

// nowFn exists so tests can pin "now" if needed.
var nowFn = time.Now

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		sklog.Errorf("control: failed to encode response: %s", err)
	}
}
