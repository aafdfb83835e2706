package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsArePaired(t *testing.T) {
	names, err := fs.Glob(FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	for _, n := range names {
		if base, ok := strings.CutSuffix(n, ".up.sql"); ok {
			assert.True(t, set[base+".down.sql"], "missing down migration for %s", n)
		}
	}
}

func TestActiveTripleIndexPresent(t *testing.T) {
	data, err := fs.ReadFile(FS, "0001_init.up.sql")
	require.NoError(t, err)
	sql := string(data)
	assert.Contains(t, sql, "CREATE UNIQUE INDEX IF NOT EXISTS reservations_active_triple_idx")
	assert.Contains(t, sql, "WHERE status IN ('pending', 'confirmed')")
}
