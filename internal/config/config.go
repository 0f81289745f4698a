// Package config loads the YAML run configuration the `reactor` CLI
// accepts, and validates a builder-supplied runtime table bundle against
// a CUE schema for `reactor validate`.
//
// Grounded on the teacher's internal/cli LoadSpecs/validate.go pattern
// for the CUE half (cuelang.org/go's cuecontext/Value/Unify API), and on
// comalice-statechartx's YAML-based machine definitions for the config
// half — gopkg.in/yaml.v3 is the corpus's only YAML library.
package config

import (
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/latticeflow/reactor/internal/scheduler"
	"github.com/latticeflow/reactor/internal/tag"
)

// RunConfig is the on-disk shape of a `reactor run` configuration file.
type RunConfig struct {
	FastForward      bool          `yaml:"fast_forward"`
	Timeout          time.Duration `yaml:"timeout"`
	Keepalive        bool          `yaml:"keepalive"`
	Workers          int           `yaml:"workers"`
	IngressBuffer    int           `yaml:"ingress_buffer"`
	StrictLevelCheck bool          `yaml:"strict_level_check"`
	RecordPath       string        `yaml:"record_path"`
	ReplayPath       string        `yaml:"replay_path"`
	HistoryPath      string        `yaml:"history_path"`
	SchemaPath       string        `yaml:"schema_path"`
}

// Load reads and parses a RunConfig from path.
func Load(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg RunConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	if cfg.IngressBuffer == 0 {
		cfg.IngressBuffer = 64
	}
	return &cfg, nil
}

// Options converts a RunConfig into scheduler.Option values.
func (c *RunConfig) Options() []scheduler.Option {
	opts := []scheduler.Option{
		scheduler.WithFastForward(c.FastForward),
		scheduler.WithKeepalive(c.Keepalive),
		scheduler.WithWorkers(c.Workers),
		scheduler.WithIngressBuffer(c.IngressBuffer),
		scheduler.WithStrictLevelCheck(c.StrictLevelCheck),
	}
	if c.Timeout > 0 {
		opts = append(opts, scheduler.WithTimeout(tag.Duration(c.Timeout.Nanoseconds())))
	}
	return opts
}

// ValidateTableBundle checks a builder-supplied table bundle against a
// CUE schema. Both inputs are compiled as CUE source, so JSON is
// accepted, and YAML only where it is also valid CUE. This never
// re-derives reaction levels or re-runs cycle detection (spec.md §1's
// non-goal for the scheduler itself) — it only catches malformed input
// early, for `reactor validate`; `reactor run` does not call it.
func ValidateTableBundle(schema []byte, data []byte) error {
	ctx := cuecontext.New()

	schemaValue := ctx.CompileBytes(schema)
	if err := schemaValue.Err(); err != nil {
		return fmt.Errorf("config: compile schema: %w", err)
	}

	dataValue := ctx.CompileBytes(data)
	if err := dataValue.Err(); err != nil {
		return fmt.Errorf("config: compile table bundle: %w", err)
	}

	unified := schemaValue.Unify(dataValue)
	if err := unified.Validate(); err != nil {
		return fmt.Errorf("config: table bundle does not satisfy schema: %w", err)
	}
	return nil
}
