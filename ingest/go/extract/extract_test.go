package extract

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"go.capitolfeed.build/go/testutils"
)

func writeZip(t *testing.T, path string, entries map[string]string) {
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, contents := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(contents))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func TestRunExtractsZipContents(t *testing.T) {
	dir, cleanup := testutils.TempDir(t)
	defer cleanup()

	archivePath := filepath.Join(dir, "BILLS-117.zip")
	writeZip(t, archivePath, map[string]string{
		"BILLS-117-hr1.xml": "<bill/>",
		"nested/readme.txt": "hi",
	})

	results := Run([]string{archivePath}, Options{})
	require.Len(t, results, 1)
	require.True(t, results[0].OK)
	require.NotNil(t, results[0].Destination)

	dest := *results[0].Destination
	require.Equal(t, filepath.Join(dir, "BILLS-117_extracted"), dest)

	data, err := os.ReadFile(filepath.Join(dest, "BILLS-117-hr1.xml"))
	require.NoError(t, err)
	require.Equal(t, "<bill/>", string(data))

	data2, err := os.ReadFile(filepath.Join(dest, "nested", "readme.txt"))
	require.NoError(t, err)
	require.Equal(t, "hi", string(data2))
}

func TestRunSkipsPathTraversalEntries(t *testing.T) {
	dir, cleanup := testutils.TempDir(t)
	defer cleanup()

	archivePath := filepath.Join(dir, "evil.zip")
	writeZip(t, archivePath, map[string]string{
		"../../etc/passwd": "pwned",
		"safe.xml":          "<ok/>",
	})

	results := Run([]string{archivePath}, Options{})
	require.True(t, results[0].OK)

	dest := *results[0].Destination
	_, err := os.Stat(filepath.Join(dest, "safe.xml"))
	require.NoError(t, err)

	escaped := filepath.Join(dir, "..", "etc", "passwd")
	_, err = os.Stat(escaped)
	require.Error(t, err, "traversal entry must not be written outside the extraction root")
}

func TestRunRemovesArchiveWhenRequested(t *testing.T) {
	dir, cleanup := testutils.TempDir(t)
	defer cleanup()
	archivePath := filepath.Join(dir, "a.zip")
	writeZip(t, archivePath, map[string]string{"f.txt": "x"})

	Run([]string{archivePath}, Options{RemoveArchiveAfterExtract: true})
	_, err := os.Stat(archivePath)
	require.True(t, os.IsNotExist(err))
}

func TestRunReportsErrorOnUnsupportedExtension(t *testing.T) {
	dir, cleanup := testutils.TempDir(t)
	defer cleanup()
	path := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	results := Run([]string{path}, Options{})
	require.False(t, results[0].OK)
	require.NotNil(t, results[0].Error)
}

func TestSafeJoinRejectsAbsoluteAndTraversal(t *testing.T) {
	_, err := safeJoin("/out", "/etc/passwd")
	require.Error(t, err)

	_, err = safeJoin("/out", "../../etc/passwd")
	require.Error(t, err)

	joined, err := safeJoin("/out", "a/b/c.xml")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/out", "a/b/c.xml"), joined)
}
