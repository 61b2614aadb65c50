package journal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"go.capitolfeed.build/go/testutils"
)

type doc struct {
	A []string `json:"a"`
	B int      `json:"b"`
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir, cleanup := testutils.TempDir(t)
	defer cleanup()
	path := filepath.Join(dir, "doc.json")

	want := doc{A: []string{"x", "y"}, B: 7}
	require.NoError(t, Save(path, &want))

	var got doc
	Load(path, &got)
	require.Equal(t, want, got)
}

func TestLoadMissingFileIsEmptyNotError(t *testing.T) {
	dir, cleanup := testutils.TempDir(t)
	defer cleanup()

	var got doc
	Load(filepath.Join(dir, "missing.json"), &got)
	require.Equal(t, doc{}, got)
}

func TestLoadCorruptFileIsEmptyNotError(t *testing.T) {
	dir, cleanup := testutils.TempDir(t)
	defer cleanup()
	path := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	var got doc
	Load(path, &got)
	require.Equal(t, doc{}, got)
}

func TestRetryJournalAddIncrementsAttempts(t *testing.T) {
	dir, cleanup := testutils.TempDir(t)
	defer cleanup()
	path := filepath.Join(dir, "retry.json")

	rj := Open(path)
	require.NoError(t, rj.Add("http://example.com/a", "boom"))
	require.NoError(t, rj.Add("http://example.com/a", "boom again"))

	entries := rj.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, 2, entries[0].Attempts)
	require.Equal(t, "boom again", entries[0].LastError)
	require.False(t, entries[0].FirstFailedAt.After(entries[0].LastAttemptedAt))
}

func TestRetryJournalURLsAreUnique(t *testing.T) {
	dir, cleanup := testutils.TempDir(t)
	defer cleanup()
	rj := Open(filepath.Join(dir, "retry.json"))

	require.NoError(t, rj.Add("http://a", "e1"))
	require.NoError(t, rj.Add("http://b", "e2"))
	require.NoError(t, rj.Add("http://a", "e3"))

	seen := map[string]bool{}
	for _, e := range rj.Entries() {
		require.False(t, seen[e.URL], "duplicate url in journal: %s", e.URL)
		seen[e.URL] = true
		require.GreaterOrEqual(t, e.Attempts, 1)
	}
}

func TestRetryJournalRemoveAndCandidates(t *testing.T) {
	dir, cleanup := testutils.TempDir(t)
	defer cleanup()
	rj := Open(filepath.Join(dir, "retry.json"))

	require.NoError(t, rj.Add("http://a", "e"))
	require.NoError(t, rj.Add("http://b", "e"))
	require.NoError(t, rj.Add("http://b", "e"))

	cands := rj.Candidates(2)
	require.ElementsMatch(t, []string{"http://a"}, cands)

	require.NoError(t, rj.Remove("http://a"))
	require.Equal(t, 1, rj.Count())
	require.NoError(t, rj.Remove("http://a")) // no-op, not an error
}

func TestRetryJournalPersistsAcrossOpen(t *testing.T) {
	dir, cleanup := testutils.TempDir(t)
	defer cleanup()
	path := filepath.Join(dir, "retry.json")

	rj := Open(path)
	require.NoError(t, rj.Add("http://a", "e"))

	reopened := Open(path)
	require.Equal(t, 1, reopened.Count())
}
