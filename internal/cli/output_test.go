package cli_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/latticeflow/reactor/internal/cli"
)

func TestNewExitErrorCarriesCode(t *testing.T) {
	err := cli.NewExitError(cli.ExitCommandError, "bad input")
	assert.Equal(t, cli.ExitCommandError, cli.GetExitCode(err))
	assert.Equal(t, "bad input", err.Error())
}

func TestWrapExitErrorUnwraps(t *testing.T) {
	inner := errors.New("boom")
	err := cli.WrapExitError(cli.ExitFailure, "failed", inner)
	assert.Equal(t, cli.ExitFailure, cli.GetExitCode(err))
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "boom")
}

func TestGetExitCodeDefaultsToFailure(t *testing.T) {
	assert.Equal(t, cli.ExitFailure, cli.GetExitCode(errors.New("plain")))
}

func TestOutputFormatterTextSuccess(t *testing.T) {
	var buf bytes.Buffer
	f := &cli.OutputFormatter{Format: "text", Writer: &buf}
	assert.NoError(t, f.Success("stopped: queue-empty"))
	assert.Equal(t, "stopped: queue-empty\n", buf.String())
}

func TestOutputFormatterJSONSuccess(t *testing.T) {
	var buf bytes.Buffer
	f := &cli.OutputFormatter{Format: "json", Writer: &buf}
	assert.NoError(t, f.Success(map[string]int{"n": 1}))
	assert.JSONEq(t, `{"status":"ok","data":{"n":1}}`, buf.String())
}

func TestOutputFormatterVerboseLogRespectsFlag(t *testing.T) {
	var buf bytes.Buffer
	f := &cli.OutputFormatter{Format: "text", Writer: &buf, Verbose: false}
	f.VerboseLog("should not appear")
	assert.Empty(t, buf.String())

	f.Verbose = true
	f.VerboseLog("visible %d", 1)
	assert.Equal(t, "visible 1\n", buf.String())
}
