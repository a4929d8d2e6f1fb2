// Package journal records workflow state transitions as length-prefixed
// msgpack frames.
//
// A journal file is a header frame followed by one frame per state change.
// Each frame is a 4-byte big-endian payload length and a msgpack payload.
package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Frame size constants.
const (
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
	// MaxPayloadSize bounds a single entry (1 MiB).
	MaxPayloadSize = 1 << 20
)

// FrameErrorKind classifies frame errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated frame, usually a journal whose
	// writer was interrupted.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a payload above MaxPayloadSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a payload that is not a valid entry.
	FrameErrorDecode
)

func (k FrameErrorKind) String() string {
	switch k {
	case FrameErrorPartial:
		return "partial"
	case FrameErrorTooLarge:
		return "too_large"
	case FrameErrorDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// FrameError describes a malformed frame.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error { return e.Err }

// IsTruncated reports whether err is a partial-frame error. A truncated
// tail is expected when the process was killed mid-write.
func IsTruncated(err error) bool {
	var fe *FrameError
	return errors.As(err, &fe) && fe.Kind == FrameErrorPartial
}

func writeFrame(w io.Writer, e *Entry) error {
	payload, err := msgpack.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	if len(payload) > MaxPayloadSize {
		return &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("entry size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}

	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	_, err = w.Write(buf)
	return err
}

// Reader decodes entries from a journal stream.
type Reader struct {
	r io.Reader
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next returns the next entry, or io.EOF at a clean end of stream.
func (r *Reader) Next() (*Entry, error) {
	var prefix [LengthPrefixSize]byte
	if _, err := io.ReadFull(r.r, prefix[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read length prefix", Err: err}
	}

	size := binary.BigEndian.Uint32(prefix[:])
	if size > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", size, MaxPayloadSize),
		}
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read payload", Err: err}
	}

	var e Entry
	if err := msgpack.Unmarshal(payload, &e); err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode entry", Err: err}
	}
	return &e, nil
}

// ReadAll decodes every entry in r. On error it returns the entries read
// so far together with the error.
func ReadAll(r io.Reader) ([]Entry, error) {
	jr := NewReader(r)
	var out []Entry
	for {
		e, err := jr.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, *e)
	}
}
