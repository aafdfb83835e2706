package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandTree(t *testing.T) {
	root := rootCmd()

	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"up", "down", "force", "version"})

	down, _, err := root.Find([]string{"down"})
	require.NoError(t, err)
	steps, err := down.Flags().GetInt("steps")
	require.NoError(t, err)
	assert.Equal(t, 1, steps)
}

func TestMissingDSN(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")

	root := rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"version", "--dsn", ""})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_DSN is required")
}

func TestForceRejectsBadVersion(t *testing.T) {
	root := rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"force", "abc", "--dsn", "postgres://unused"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid version")
}
