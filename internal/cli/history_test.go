package cli_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeflow/reactor/internal/cli"
	"github.com/latticeflow/reactor/internal/history"
)

func TestHistoryCommandListsRuns(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	store, err := history.Open(dbPath)
	require.NoError(t, err)
	_, err = store.BeginRun(context.Background(), 0, map[string]any{"fast_forward": true}, "run.log")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	root := cli.NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"history", dbPath})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "run 1")
}

func TestHistoryCommandFailsOnMissingDirectory(t *testing.T) {
	root := cli.NewRootCommand()
	root.SetArgs([]string{"history", "/nonexistent-dir/does-not-exist/runs.db"})
	err := root.Execute()
	require.Error(t, err)
	assert.Equal(t, cli.ExitCommandError, cli.GetExitCode(err))
}
