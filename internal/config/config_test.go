package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeflow/reactor/internal/config"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "run.yaml", "fast_forward: true\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.FastForward)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, 64, cfg.IngressBuffer)
}

func TestLoadParsesFullConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "run.yaml", `
fast_forward: false
timeout: 5s
keepalive: true
workers: 4
ingress_buffer: 128
strict_level_check: true
record_path: run.log
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.True(t, cfg.Keepalive)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "run.log", cfg.RecordPath)

	opts := cfg.Options()
	assert.Len(t, opts, 6)
}

func TestValidateTableBundleAcceptsMatchingData(t *testing.T) {
	schema := []byte(`workers: int & >=1`)
	data := []byte(`workers: 2`)
	assert.NoError(t, config.ValidateTableBundle(schema, data))
}

func TestValidateTableBundleRejectsMismatch(t *testing.T) {
	schema := []byte(`workers: int & >=1`)
	data := []byte(`workers: "not a number"`)
	assert.Error(t, config.ValidateTableBundle(schema, data))
}
