// Package testutils collects small test helpers used across this
// repository's _test.go files.
package testutils

import (
	"io/ioutil"
	"os"

	assert "github.com/stretchr/testify/require"
)

// TempDir creates a temporary directory and returns its path and a cleanup
// function to defer.
func TempDir(t assert.TestingT) (string, func()) {
	d, err := ioutil.TempDir("", "capitolfeed")
	assert.NoError(t, err)
	return d, func() {
		assert.NoError(t, os.RemoveAll(d))
	}
}

// AssertCloses takes an io.Closer and asserts that it closes without error.
func AssertCloses(t assert.TestingT, c interface{ Close() error }) {
	assert.NoError(t, c.Close())
}
