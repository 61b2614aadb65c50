package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.capitolfeed.build/go/testutils"
	"go.capitolfeed.build/ingest/go/ingestconfig"
	"go.capitolfeed.build/ingest/go/orchestrate"
)

type fakeOrchestrator struct {
	mtx          sync.Mutex
	started      int
	completed    int
	ctxCancelled bool
	release      chan struct{}
	blocking     bool
}

func (f *fakeOrchestrator) Run(ctx context.Context, cfg *ingestconfig.Config) (*orchestrate.Summary, error) {
	f.mtx.Lock()
	f.started++
	f.mtx.Unlock()
	if f.blocking {
		select {
		case <-f.release:
		case <-ctx.Done():
			f.mtx.Lock()
			f.ctxCancelled = true
			f.mtx.Unlock()
			return nil, ctx.Err()
		}
	}
	f.mtx.Lock()
	f.completed++
	f.mtx.Unlock()
	return &orchestrate.Summary{}, nil
}

func (f *fakeOrchestrator) RunRetries(ctx context.Context, cfg *ingestconfig.Config) (*orchestrate.Summary, error) {
	return &orchestrate.Summary{}, nil
}

func newTestServer(t *testing.T, orch runner) (*Server, string) {
	dir, cleanup := testutils.TempDir(t)
	t.Cleanup(cleanup)
	cfg := &ingestconfig.Config{
		BulkJSON:  filepath.Join(dir, "bulk.json"),
		RetryJSON: filepath.Join(dir, "retry.json"),
	}
	return New(context.Background(), cfg, orch), dir
}

func TestHealthReturns200(t *testing.T) {
	s, _ := newTestServer(t, &fakeOrchestrator{})
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusReportsNotRunningInitially(t *testing.T) {
	s, _ := newTestServer(t, &fakeOrchestrator{})
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Running)
}

func TestStartReturns202AndRunID(t *testing.T) {
	fake := &fakeOrchestrator{}
	s, _ := newTestServer(t, fake)
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/start", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp startResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.RunID)

	require.Eventually(t, func() bool {
		fake.mtx.Lock()
		defer fake.mtx.Unlock()
		return fake.started == 1
	}, time.Second, 10*time.Millisecond)
}

func TestStartReturns409WhenAlreadyRunning(t *testing.T) {
	fake := &fakeOrchestrator{blocking: true, release: make(chan struct{})}
	defer close(fake.release)
	s, _ := newTestServer(t, fake)

	rec1 := httptest.NewRecorder()
	s.Router.ServeHTTP(rec1, httptest.NewRequest(http.MethodPost, "/start", nil))
	require.Equal(t, http.StatusAccepted, rec1.Code)

	require.Eventually(t, func() bool {
		fake.mtx.Lock()
		defer fake.mtx.Unlock()
		return fake.started == 1
	}, time.Second, 10*time.Millisecond)

	rec2 := httptest.NewRecorder()
	s.Router.ServeHTTP(rec2, httptest.NewRequest(http.MethodPost, "/start", nil))
	require.Equal(t, http.StatusConflict, rec2.Code)
}

// TestStartSurvivesRequestContextCancellation guards against tying a
// background run to the triggering request's context: a real http.Server
// cancels that context the moment the handler returns, which happens
// immediately after /start responds 202. The run must keep going anyway.
func TestStartSurvivesRequestContextCancellation(t *testing.T) {
	fake := &fakeOrchestrator{blocking: true, release: make(chan struct{})}
	s, _ := newTestServer(t, fake)

	reqCtx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/start", nil).WithContext(reqCtx)
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// Simulate what net/http does once the handler returns.
	cancel()

	close(fake.release)
	require.Eventually(t, func() bool {
		fake.mtx.Lock()
		defer fake.mtx.Unlock()
		return fake.completed == 1
	}, time.Second, 10*time.Millisecond)

	fake.mtx.Lock()
	defer fake.mtx.Unlock()
	require.False(t, fake.ctxCancelled, "background run observed the request context being cancelled")
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	s, _ := newTestServer(t, &fakeOrchestrator{})
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
