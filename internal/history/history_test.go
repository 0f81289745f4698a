package history_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeflow/reactor/internal/history"
)

func TestBeginAndEndRunRoundTrips(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	store, err := history.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	id, err := store.BeginRun(ctx, 0, map[string]any{"fast_forward": true}, "run.log")
	require.NoError(t, err)
	require.NoError(t, store.EndRun(ctx, id, 1000, "queue-empty", ""))

	runs, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, "queue-empty", runs[0].StopReason)
	require.NotNil(t, runs[0].EndTagOffset)
	assert.Equal(t, int64(1000), *runs[0].EndTagOffset)
	assert.Equal(t, true, runs[0].ConfigSnapshot["fast_forward"])
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	store, err := history.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	first, err := store.BeginRun(ctx, 0, nil, "")
	require.NoError(t, err)
	second, err := store.BeginRun(ctx, 0, nil, "")
	require.NoError(t, err)

	runs, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second, runs[0].ID)
	assert.Equal(t, first, runs[1].ID)
}
