// Package journal implements the atomic-JSON primitive shared by the URL
// inventory and the retry journal (spec.md section 4.2): a "safe load" that
// never fails on a missing or corrupt file, and an atomic write that
// write-temp/fsync/renames so a concurrent reader never observes a partial
// file.
package journal

import (
	"encoding/json"
	"os"
	"path/filepath"

	"go.capitolfeed.build/go/sklog"
)

// Load decodes the JSON document at path into out. If the file does not
// exist or fails to parse, out is left at its zero value and a warning is
// logged, but no error is returned -- per spec.md's "safe load" contract,
// corruption is never fatal to the caller.
func Load(path string, out interface{}) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			sklog.Warningf("journal: could not read %s: %s", path, err)
		}
		return
	}
	if err := json.Unmarshal(data, out); err != nil {
		sklog.Warningf("journal: corrupt document at %s, treating as empty: %s", path, err)
	}
}

// Save atomically writes v as JSON to path: it writes to a sibling temp
// file in the same directory, syncs it to disk, and renames it into place.
// A reader that calls Load concurrently observes either the prior contents
// or the new ones in full, never a partial write.
func Save(path string, v interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
