package orchestrate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"go.capitolfeed.build/go/testutils"
	"go.capitolfeed.build/ingest/go/ingestconfig"
	"go.capitolfeed.build/ingest/go/journal"
)

func TestRunDryRunStopsAfterDiscovery(t *testing.T) {
	dir, cleanup := testutils.TempDir(t)
	defer cleanup()

	cfg := &ingestconfig.Config{
		StartCongress: 117,
		EndCongress:   117,
		Collections:   []string{"BILLS"},
		OutDir:        dir,
		BulkJSON:      filepath.Join(dir, "bulk_urls.json"),
		RetryJSON:     filepath.Join(dir, "retry.json"),
		Discovery:     true,
		DryRun:        true,
		Download:      true,
		Extract:       true,
		Postprocess:   true,
	}

	o := New(nil)
	o.Client = &http.Client{Transport: refusingTransport{}}

	summary, err := o.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Greater(t, summary.DiscoveredURLCount, 0)
	require.Zero(t, summary.Downloaded)
	require.Zero(t, summary.Extracted)
}

func TestRunDownloadsWithoutStoreSkipsPostprocess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "4")
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Write([]byte("data"))
	}))
	defer srv.Close()

	dir, cleanup := testutils.TempDir(t)
	defer cleanup()

	cfg := &ingestconfig.Config{
		StartCongress: 117,
		EndCongress:   117,
		Collections:   []string{"BILLS"},
		OutDir:        dir,
		BulkJSON:      filepath.Join(dir, "bulk_urls.json"),
		RetryJSON:     filepath.Join(dir, "retry.json"),
		Discovery:     false,
		Download:      true,
		Extract:       false,
		Postprocess:   true,
		Concurrency:   2,
		Retries:       1,
	}

	// Seed an inventory directly since discovery is skipped.
	inv := map[string]interface{}{
		"govinfo_templates_expanded": []string{srv.URL + "/BILLSTATUS-117-hr.xml"},
		"govinfo_index_discovered":   []string{},
		"govtrack":                   []string{},
		"openstates":                 []string{},
		"legislators_reference":      []string{},
		"aggregate_urls":             []string{srv.URL + "/BILLSTATUS-117-hr.xml"},
	}
	writeJSON(t, cfg.BulkJSON, inv)

	o := New(nil)
	o.Client = srv.Client()

	summary, err := o.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Downloaded)
	require.Zero(t, summary.BillsUpserted, "postprocess must be a no-op without a store")
}

func TestLooksLikeArchive(t *testing.T) {
	require.True(t, looksLikeArchive("/tmp/x/BILLS-117.zip"))
	require.True(t, looksLikeArchive("/tmp/x/BILLS-117.tar.gz"))
	require.False(t, looksLikeArchive("/tmp/x/BILLSTATUS-117-hr1.xml"))
}

type refusingTransport struct{}

func (refusingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	return nil, errRefused
}

var errRefused = &refusedError{}

type refusedError struct{}

func (e *refusedError) Error() string { return "connection refused (test)" }

func writeJSON(t *testing.T, path string, v interface{}) {
	t.Helper()
	require.NoError(t, journal.Save(path, v))
}
