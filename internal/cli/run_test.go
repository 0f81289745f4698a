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

func TestRunCommandStopsOnQueueEmpty(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeCLIFile(t, dir, "run.yaml", "fast_forward: true\n")

	root := cli.NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"run", cfgPath})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "queue-empty")
}

func TestRunCommandRecordsHistoryAndRecording(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeCLIFile(t, dir, "run.yaml", "fast_forward: true\n")
	recordPath := filepath.Join(dir, "run.log")
	historyPath := filepath.Join(dir, "runs.db")

	root := cli.NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"run", cfgPath, "--record", recordPath, "--history", historyPath})
	require.NoError(t, root.Execute())
	assert.FileExists(t, recordPath)
	assert.FileExists(t, historyPath)
}

func TestRunCommandReplaysPreloadedRecording(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeCLIFile(t, dir, "run.yaml", "workers: 1\n")
	logPath := filepath.Join(dir, "boost.log")

	f, err := os.Create(logPath)
	require.NoError(t, err)
	table := []recorder.ActionTableEntry{
		{ID: ids.ActionID(1), Name: "boost", TypeHash: recorder.TypeHash("int")},
	}
	w, err := recorder.NewWriter(f, table)
	require.NoError(t, err)
	require.NoError(t, w.RecordPhysicalDelivery(1, tag.New(5, 0), 9))
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	root := cli.NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"run", cfgPath, "--replay", logPath})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "shutdown-requested")
}

func TestRunCommandRejectsUnknownProgram(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeCLIFile(t, dir, "run.yaml", "fast_forward: true\n")

	root := cli.NewRootCommand()
	root.SetArgs([]string{"run", cfgPath, "--program", "does-not-exist"})
	err := root.Execute()
	require.Error(t, err)
	assert.Equal(t, cli.ExitCommandError, cli.GetExitCode(err))
}
