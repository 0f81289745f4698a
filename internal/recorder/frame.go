// Package recorder implements the spec-mandated framed binary log that
// captures every physical-ingress delivery, so a run can be replayed
// deterministically without a live external source (spec.md §4.8).
//
// This is deliberately NOT the queryable run history — that lives in
// internal/history, backed by a real database. The recorder's log is the
// determinism-critical artifact: a flat, length-prefixed binary stream,
// grounded on the teacher's engine.eventQueue framing discipline
// (fixed-size headers, explicit byte order) rather than on
// internal/store's SQLite schema, because replay must not depend on a
// database being present or reachable.
package recorder

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/fnv"

	"golang.org/x/text/unicode/norm"

	"github.com/latticeflow/reactor/internal/ids"
	"github.com/latticeflow/reactor/internal/tag"
)

// magic identifies a reactor recording. version guards the header and
// frame layout.
var magic = [8]byte{'R', 'C', 'T', 'R', 'L', 'O', 'G', '1'}

// version 2 added the action table (spec.md §6); version 1 recordings
// (magic-plus-single-byte-version, no table) are no longer accepted.
const version uint16 = 2

// ActionTableEntry names one action a recording may reference, along
// with a hash of the Go type name its payload was encoded from. A
// Reader's header carries one of these per action the writer's build
// knew about, so PreloadReplay can reject a recording made against a
// build whose action wiring has since changed (spec.md §6, §7's
// "replay record references unknown action_id or type mismatch").
type ActionTableEntry struct {
	ID       ids.ActionID
	Name     string
	TypeHash uint64
}

// TypeHash hashes name — conventionally the Go type name a decoder
// produces for one action — into the compact form stored in a
// recording's action table entries.
func TypeHash(name string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return h.Sum64()
}

// frameHeaderLen is the fixed-size prefix of every frame, before the
// variable-length value payload.
const frameHeaderLen = 16 /*flow token*/ + 8 /*offset*/ + 4 /*microstep*/ + 4 /*action id*/ + 4 /*value length*/

// Frame is one recorded physical-ingress delivery.
type Frame struct {
	FlowToken [16]byte
	Tag       tag.Tag
	Action    ids.ActionID
	Value     json.RawMessage
}

// encodeValue renders v as JSON with sorted object keys, no HTML
// escaping, and NFC-normalized strings — the same three properties the
// teacher's ir.MarshalCanonical enforces (internal/ir/canonical.go),
// applied directly to encoding/json's output instead of routing through
// a closed IRValue sum type. Action payloads are arbitrary
// builder-declared Go types, not the teacher's fixed JSON-args schema, so
// there is no sealed value type to convert into first.
func encodeValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("recorder: encode value: %w", err)
	}
	out := bytes.TrimRight(buf.Bytes(), "\n")
	return []byte(norm.NFC.String(string(out))), nil
}

// encodeActionTable renders the action table section of a recording
// header: a uint32 entry count followed by, per entry, a uint32 id, a
// uint64 type hash, and a length-prefixed name.
func encodeActionTable(table []ActionTableEntry) []byte {
	var buf bytes.Buffer
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(table)))
	buf.Write(countBuf[:])
	for _, e := range table {
		var idBuf [4]byte
		binary.BigEndian.PutUint32(idBuf[:], uint32(e.ID))
		buf.Write(idBuf[:])
		var hashBuf [8]byte
		binary.BigEndian.PutUint64(hashBuf[:], e.TypeHash)
		buf.Write(hashBuf[:])
		name := []byte(e.Name)
		var nameLenBuf [2]byte
		binary.BigEndian.PutUint16(nameLenBuf[:], uint16(len(name)))
		buf.Write(nameLenBuf[:])
		buf.Write(name)
	}
	return buf.Bytes()
}

func writeFrameHeader(buf *bytes.Buffer, f Frame, valueLen int) {
	buf.Write(f.FlowToken[:])
	var offsetBuf [8]byte
	binary.BigEndian.PutUint64(offsetBuf[:], uint64(f.Tag.Offset))
	buf.Write(offsetBuf[:])
	var microstepBuf [4]byte
	binary.BigEndian.PutUint32(microstepBuf[:], f.Tag.Microstep)
	buf.Write(microstepBuf[:])
	var actionBuf [4]byte
	binary.BigEndian.PutUint32(actionBuf[:], uint32(f.Action))
	buf.Write(actionBuf[:])
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(valueLen))
	buf.Write(lenBuf[:])
}

func parseFrameHeader(b []byte) (flowToken [16]byte, t tag.Tag, action ids.ActionID, valueLen uint32) {
	copy(flowToken[:], b[0:16])
	t.Offset = tag.Duration(binary.BigEndian.Uint64(b[16:24]))
	t.Microstep = binary.BigEndian.Uint32(b[24:28])
	action = ids.ActionID(binary.BigEndian.Uint32(b[28:32]))
	valueLen = binary.BigEndian.Uint32(b[32:36])
	return
}
