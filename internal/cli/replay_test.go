package cli_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeflow/reactor/internal/cli"
	"github.com/latticeflow/reactor/internal/ids"
	"github.com/latticeflow/reactor/internal/recorder"
	"github.com/latticeflow/reactor/internal/tag"
)

func writeGainPipelineRecording(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	table := []recorder.ActionTableEntry{
		{ID: ids.ActionID(1), Name: "boost", TypeHash: recorder.TypeHash("int")},
	}
	w, err := recorder.NewWriter(f, table)
	require.NoError(t, err)
	require.NoError(t, w.RecordPhysicalDelivery(1, tag.New(5, 0), 7))
	require.NoError(t, w.Close())
}

func TestReplayCommandReproducesRecording(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "run.log")
	writeGainPipelineRecording(t, logPath)

	root := cli.NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"replay", logPath})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "action=action#1")
	assert.Contains(t, out.String(), "reproduced successfully")
}

func TestReplayCommandFailsOnBadRecording(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "bad.log")
	require.NoError(t, os.WriteFile(logPath, []byte("not a recording"), 0o644))

	root := cli.NewRootCommand()
	root.SetArgs([]string{"replay", logPath})
	err := root.Execute()
	require.Error(t, err)
	assert.Equal(t, cli.ExitCommandError, cli.GetExitCode(err))
}
