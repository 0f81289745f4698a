package recorder

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/latticeflow/reactor/internal/ids"
)

// ErrBadMagic is returned by NewReader when the stream does not start
// with the recording header.
var ErrBadMagic = errors.New("recorder: not a reactor recording")

// ErrUnsupportedVersion is returned by NewReader for a frame layout this
// build does not know how to parse.
var ErrUnsupportedVersion = errors.New("recorder: unsupported recording version")

// Reader sequentially decodes frames from a recording written by Writer.
type Reader struct {
	r     *bufio.Reader
	table []ActionTableEntry
}

// NewReader validates the header, decodes its action table, and returns
// a Reader positioned at the first frame.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	var got [8]byte
	if _, err := io.ReadFull(br, got[:]); err != nil {
		return nil, fmt.Errorf("recorder: read magic: %w", err)
	}
	if got != magic {
		return nil, ErrBadMagic
	}
	var verBuf [2]byte
	if _, err := io.ReadFull(br, verBuf[:]); err != nil {
		return nil, fmt.Errorf("recorder: read version: %w", err)
	}
	if binary.BigEndian.Uint16(verBuf[:]) != version {
		return nil, ErrUnsupportedVersion
	}

	table, err := decodeActionTable(br)
	if err != nil {
		return nil, err
	}
	return &Reader{r: br, table: table}, nil
}

// ActionTable returns the action table this recording's writer declared,
// in header order.
func (rr *Reader) ActionTable() []ActionTableEntry { return rr.table }

func decodeActionTable(br *bufio.Reader) ([]ActionTableEntry, error) {
	var countBuf [4]byte
	if _, err := io.ReadFull(br, countBuf[:]); err != nil {
		return nil, fmt.Errorf("recorder: read action table count: %w", err)
	}
	count := binary.BigEndian.Uint32(countBuf[:])
	table := make([]ActionTableEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		var idBuf [4]byte
		if _, err := io.ReadFull(br, idBuf[:]); err != nil {
			return nil, fmt.Errorf("recorder: read action table entry id: %w", err)
		}
		var hashBuf [8]byte
		if _, err := io.ReadFull(br, hashBuf[:]); err != nil {
			return nil, fmt.Errorf("recorder: read action table entry type hash: %w", err)
		}
		var nameLenBuf [2]byte
		if _, err := io.ReadFull(br, nameLenBuf[:]); err != nil {
			return nil, fmt.Errorf("recorder: read action table entry name length: %w", err)
		}
		nameLen := binary.BigEndian.Uint16(nameLenBuf[:])
		nameBytes := make([]byte, nameLen)
		if _, err := io.ReadFull(br, nameBytes); err != nil {
			return nil, fmt.Errorf("recorder: read action table entry name: %w", err)
		}
		table = append(table, ActionTableEntry{
			ID:       ids.ActionID(binary.BigEndian.Uint32(idBuf[:])),
			TypeHash: binary.BigEndian.Uint64(hashBuf[:]),
			Name:     string(nameBytes),
		})
	}
	return table, nil
}

// Next returns the following frame, or io.EOF once the recording is
// exhausted.
func (rr *Reader) Next() (Frame, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(rr.r, lenPrefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, fmt.Errorf("recorder: truncated frame length: %w", err)
		}
		return Frame{}, err
	}
	frameLen := binary.BigEndian.Uint32(lenPrefix[:])
	if frameLen < frameHeaderLen {
		return Frame{}, fmt.Errorf("recorder: corrupt frame: length %d below header size", frameLen)
	}

	body := make([]byte, frameLen)
	if _, err := io.ReadFull(rr.r, body); err != nil {
		return Frame{}, fmt.Errorf("recorder: truncated frame body: %w", err)
	}

	flowToken, t, action, valueLen := parseFrameHeader(body)
	value := body[frameHeaderLen:]
	if uint32(len(value)) != valueLen {
		return Frame{}, fmt.Errorf("recorder: corrupt frame: declared value length %d, got %d", valueLen, len(value))
	}

	f := Frame{FlowToken: flowToken, Tag: t, Action: action, Value: value}
	return f, nil
}
