package validate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilterKeepsReachableDropsUnreachable(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer bad.Close()

	in := []string{good.URL + "/a", bad.URL + "/b"}
	out := Filter(context.Background(), in, good.Client())

	require.Equal(t, []string{good.URL + "/a"}, out)
	require.Equal(t, []string{good.URL + "/a", bad.URL + "/b"}, in, "Filter must not mutate its input")
}

func TestFilterFallsBackToRangeGetOn405(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		require.Equal(t, "bytes=0-4095", r.Header.Get("Range"))
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	out := Filter(context.Background(), []string{srv.URL}, srv.Client())
	require.Equal(t, []string{srv.URL}, out)
}

func TestFilterMemoizesDuplicateURLs(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	out := Filter(context.Background(), []string{srv.URL, srv.URL, srv.URL}, srv.Client())
	require.Len(t, out, 3)
	require.Equal(t, 1, hits)
}

func TestFilterEmptyInputReturnsEmptyNotNilBehavior(t *testing.T) {
	out := Filter(context.Background(), nil, http.DefaultClient)
	require.Empty(t, out)
}
