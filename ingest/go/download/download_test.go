package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"go.capitolfeed.build/go/testutils"
	"go.capitolfeed.build/ingest/go/journal"
)

func TestRunDownloadsNewFile(t *testing.T) {
	const body = "hello legislative data"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Accept-Ranges", "bytes")
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "22")
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Write([]byte(body))
	}))
	defer srv.Close()

	dir, cleanup := testutils.TempDir(t)
	defer cleanup()

	results := Run(context.Background(), []string{srv.URL + "/file.xml"}, Options{
		OutRoot:        dir,
		MaxConcurrency: 2,
		MaxAttempts:    3,
		Client:         srv.Client(),
	})

	require.Len(t, results, 1)
	r := results[0]
	require.True(t, r.OK)
	require.Nil(t, r.ErrorMessage)
	require.Equal(t, int64(len(body)), r.BytesWritten)

	data, err := os.ReadFile(r.LocalPath)
	require.NoError(t, err)
	require.Equal(t, body, string(data))
}

func TestRunSkipsRefetchWhenComplete(t *testing.T) {
	const body = "abcdefgh"
	var gets int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Length", "8")
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		gets++
		w.Write([]byte(body))
	}))
	defer srv.Close()

	dir, cleanup := testutils.TempDir(t)
	defer cleanup()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, hostOf(t, srv.URL)), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, hostOf(t, srv.URL), "file.xml"), []byte(body), 0644))

	results := Run(context.Background(), []string{srv.URL + "/file.xml"}, Options{
		OutRoot:        dir,
		MaxConcurrency: 1,
		MaxAttempts:    3,
		Client:         srv.Client(),
	})

	require.True(t, results[0].OK)
	require.Equal(t, 0, gets, "a complete local file must not be refetched")
}

func TestRunTerminalFailureRecordsRetryJournal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dir, cleanup := testutils.TempDir(t)
	defer cleanup()
	rj := journal.Open(filepath.Join(dir, "retry.json"))

	results := Run(context.Background(), []string{srv.URL + "/missing.xml"}, Options{
		OutRoot:        dir,
		MaxConcurrency: 1,
		MaxAttempts:    2,
		RetryJournal:   rj,
		Client:         srv.Client(),
	})

	require.False(t, results[0].OK)
	require.NotNil(t, results[0].ErrorMessage)
	require.Equal(t, 1, rj.Count())
}

func TestIsTerminalStatus(t *testing.T) {
	require.True(t, isTerminalStatus(http.StatusNotFound))
	require.False(t, isTerminalStatus(http.StatusTooManyRequests))
	require.False(t, isTerminalStatus(http.StatusRequestTimeout))
	require.False(t, isTerminalStatus(http.StatusOK))
	require.False(t, isTerminalStatus(http.StatusInternalServerError))
}

func hostOf(t *testing.T, rawURL string) string {
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return u.Host
}
