package recorder

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/latticeflow/reactor/internal/ids"
	"github.com/latticeflow/reactor/internal/tag"
)

// Writer appends frames to a recording. It is not safe for concurrent
// use — the scheduler calls it only from its own goroutine, on the same
// path that already serializes physical-ingress delivery (spec.md §4.2's
// single-consumer rule).
type Writer struct {
	w       *bufio.Writer
	closer  io.Closer
	flushed bool
}

// NewWriter writes the recording header — magic, version, and the
// action table describing every action this build may record — to w
// and returns a Writer ready to accept frames.
func NewWriter(w io.Writer, table []ActionTableEntry) (*Writer, error) {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(magic[:]); err != nil {
		return nil, fmt.Errorf("recorder: write magic: %w", err)
	}
	var verBuf [2]byte
	binary.BigEndian.PutUint16(verBuf[:], version)
	if _, err := bw.Write(verBuf[:]); err != nil {
		return nil, fmt.Errorf("recorder: write version: %w", err)
	}
	if _, err := bw.Write(encodeActionTable(table)); err != nil {
		return nil, fmt.Errorf("recorder: write action table: %w", err)
	}
	closer, _ := w.(io.Closer)
	return &Writer{w: bw, closer: closer}, nil
}

// RecordPhysicalDelivery appends one frame and stamps it with a fresh
// UUIDv7 flow token, per SPEC_FULL.md §4.5a. The token has no bearing on
// scheduling order; it is stored only in this frame, where it identifies
// the delivery within the recording.
func (rw *Writer) RecordPhysicalDelivery(action ids.ActionID, t tag.Tag, value any) error {
	token, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("recorder: generate flow token: %w", err)
	}
	valueBytes, err := encodeValue(value)
	if err != nil {
		return err
	}

	f := Frame{Action: action, Tag: t, Value: valueBytes}
	copy(f.FlowToken[:], token[:])

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(frameHeaderLen+len(valueBytes)))
	if _, err := rw.w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("recorder: write frame length: %w", err)
	}

	var header bytes.Buffer
	writeFrameHeader(&header, f, len(valueBytes))
	if _, err := rw.w.Write(header.Bytes()); err != nil {
		return fmt.Errorf("recorder: write frame header: %w", err)
	}
	if _, err := rw.w.Write(valueBytes); err != nil {
		return fmt.Errorf("recorder: write frame value: %w", err)
	}
	rw.flushed = false
	return nil
}

// Flush pushes buffered frames to the underlying writer. The scheduler
// calls this at tag boundaries and on shutdown, not per-frame, so
// recording does not add I/O latency to the hot path.
func (rw *Writer) Flush() error {
	if rw.flushed {
		return nil
	}
	rw.flushed = true
	return rw.w.Flush()
}

// Close flushes and, if the underlying writer supports it, closes it.
func (rw *Writer) Close() error {
	if err := rw.Flush(); err != nil {
		return err
	}
	if rw.closer != nil {
		return rw.closer.Close()
	}
	return nil
}
