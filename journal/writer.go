package journal

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pithecene-io/xrayview/types"
	"github.com/pithecene-io/xrayview/workflow"
)

// Header identifies the session a journal belongs to.
type Header struct {
	SessionID string
	Origin    string
}

// Writer appends state entries to a journal stream. Safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	seq    uint64
	prev   workflow.State
	now    func() time.Time
}

// NewWriter writes the header to w and returns a Writer.
func NewWriter(w io.Writer, h Header) (*Writer, error) {
	jw := &Writer{w: w, now: time.Now}
	if err := jw.write(&Entry{
		Type:      TypeHeader,
		Version:   types.Version,
		SessionID: h.SessionID,
		Origin:    h.Origin,
	}); err != nil {
		return nil, fmt.Errorf("write journal header: %w", err)
	}
	return jw, nil
}

// Create truncates or creates the file at path and writes the header.
func Create(path string, h Header) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	jw, err := NewWriter(f, h)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	jw.closer = f
	return jw, nil
}

// Record appends an entry for s, classified against the previous state.
func (j *Writer) Record(s workflow.State) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	e := stateEntry(Classify(j.prev, s), s)
	j.prev = s
	return j.writeLocked(&e)
}

// Observer adapts the writer to a workflow observer. Write errors are
// passed to onErr when it is non-nil.
func (j *Writer) Observer(onErr func(error)) workflow.Observer {
	return func(s workflow.State) {
		if err := j.Record(s); err != nil && onErr != nil {
			onErr(err)
		}
	}
}

// Close closes the underlying file when the writer owns it.
func (j *Writer) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closer == nil {
		return nil
	}
	err := j.closer.Close()
	j.closer = nil
	return err
}

func (j *Writer) write(e *Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.writeLocked(e)
}

func (j *Writer) writeLocked(e *Entry) error {
	j.seq++
	e.Seq = j.seq
	e.At = j.now().UTC().Format(time.RFC3339Nano)
	return writeFrame(j.w, e)
}
