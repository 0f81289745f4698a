// Package scenarios implements the six literal end-to-end scenarios
// spec.md §8 names verbatim, each captured as a golden-file test over a
// canonical-JSON-encoded observation sequence.
//
// Grounded on the teacher's internal/harness.RunWithGolden
// (harness/golden.go), which builds a TraceSnapshot, canonically encodes
// it, and asserts it against testdata/golden/<name>.golden with
// github.com/sebdah/goldie/v2. This package is a from-scratch
// observation type suited to reactor scenarios (offset/microstep/label/
// value) rather than the teacher's sync-invocation trace shape, encoded
// the same way internal/recorder encodes values (SetEscapeHTML(false),
// NFC-normalized, trailing newline trimmed) so both share one canonical
// JSON convention across the module.
package scenarios

import (
	"bytes"
	"encoding/json"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// Observation is one recorded fact a scenario emits: a reaction ran, at
// a tag, producing (or observing) a value.
type Observation struct {
	Offset    int64  `json:"offset"`
	Microstep uint32 `json:"microstep"`
	Label     string `json:"label"`
	Value     any    `json:"value"`
}

// Log collects observations from concurrently-runnable reactions. The
// scheduler defaults to Workers=1 (serial dispatch), but scenarios that
// opt into level-parallelism still append safely.
type Log struct {
	mu  sync.Mutex
	obs []Observation
}

func (l *Log) Record(offset int64, microstep uint32, label string, value any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.obs = append(l.obs, Observation{Offset: offset, Microstep: microstep, Label: label, Value: value})
}

func (l *Log) Observations() []Observation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.obs
}

// CanonicalJSON renders v the way internal/recorder renders action
// payloads: compact, unescaped, NFC-normalized, no trailing newline.
func CanonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	out := bytes.TrimRight(buf.Bytes(), "\n")
	return []byte(norm.NFC.String(string(out))), nil
}
