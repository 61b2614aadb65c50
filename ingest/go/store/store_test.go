package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationNamesAreUniqueAndOrdered(t *testing.T) {
	seen := make(map[string]bool)
	for i, m := range migrations {
		require.False(t, seen[m.name], "duplicate migration name: %s", m.name)
		seen[m.name] = true
		require.NotEmpty(t, m.upSQL)
		if i > 0 {
			require.Less(t, migrations[i-1].name, m.name, "migrations must be in lexicographic order")
		}
	}
}

func TestNonEmptyStr(t *testing.T) {
	require.Nil(t, nonEmptyStr(""))
	got := nonEmptyStr("x")
	require.NotNil(t, got)
	require.Equal(t, "x", *got)
}

func TestNewRejectsUnparseableDSN(t *testing.T) {
	_, err := New(nil, "not a valid dsn :: ///")
	require.Error(t, err)
}
