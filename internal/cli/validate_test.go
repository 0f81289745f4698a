package cli_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeflow/reactor/internal/cli"
)

func writeCLIFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestValidateCommandAcceptsMatchingBundle(t *testing.T) {
	dir := t.TempDir()
	schema := writeCLIFile(t, dir, "schema.cue", `workers: int & >=1`)
	tables := writeCLIFile(t, dir, "tables.yaml", `workers: 2`)

	root := cli.NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"validate", tables, "--schema", schema})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "valid")
}

func TestValidateCommandRejectsMismatchedBundle(t *testing.T) {
	dir := t.TempDir()
	schema := writeCLIFile(t, dir, "schema.cue", `workers: int & >=1`)
	tables := writeCLIFile(t, dir, "tables.yaml", `workers: "nope"`)

	root := cli.NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"validate", tables, "--schema", schema})
	err := root.Execute()
	require.Error(t, err)
	assert.Equal(t, cli.ExitFailure, cli.GetExitCode(err))
}
