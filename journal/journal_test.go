package journal

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/xrayview/types"
	"github.com/pithecene-io/xrayview/workflow"
)

func TestJournal_RecordsWorkflow(t *testing.T) {
	var buf bytes.Buffer
	jw, err := NewWriter(&buf, Header{SessionID: "sess-1", Origin: "http://127.0.0.1:8000"})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	fail := false
	wf := workflow.New(workflow.AnalyzerFunc(func(context.Context, types.FileHandle) (*types.AnalysisResult, error) {
		if fail {
			return nil, errors.New("Upload failed: Bad Gateway")
		}
		return &types.AnalysisResult{
			OriginalImageURL:  "http://h/a.png",
			AnnotatedImageURL: "http://h/b.png",
			Report:            "clean",
			Predictions:       []types.Prediction{{Class: "caries"}},
		}, nil
	}))
	wf.Subscribe(jw.Observer(func(err error) { t.Errorf("journal write: %v", err) }))

	wf.SelectFile(types.MemoryFile{Filename: "a.dcm"})
	if err := wf.Submit(t.Context()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	wf.MarkImageLoaded("http://h/b.png")
	fail = true
	_ = wf.Submit(t.Context())

	entries, err := ReadAll(&buf)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}

	wantEvents := []string{
		"", // header
		EventFileSelected,
		EventSubmitted,
		EventSucceeded,
		EventImagesRendered,
		EventSubmitted,
		EventFailed,
	}
	if len(entries) != len(wantEvents) {
		t.Fatalf("got %d entries, want %d", len(entries), len(wantEvents))
	}

	h := entries[0]
	if h.Type != TypeHeader || h.SessionID != "sess-1" || h.Version != types.Version || h.Origin != "http://127.0.0.1:8000" {
		t.Errorf("header = %+v", h)
	}
	for i, e := range entries {
		if e.Seq != uint64(i+1) {
			t.Errorf("entry %d seq = %d", i, e.Seq)
		}
		if e.At == "" {
			t.Errorf("entry %d missing timestamp", i)
		}
		if i > 0 && e.Event != wantEvents[i] {
			t.Errorf("entry %d event = %q, want %q", i, e.Event, wantEvents[i])
		}
	}

	ok := entries[3]
	if ok.ReportText != "clean" || ok.Predictions != 1 || ok.File != "a.dcm" || ok.IsLoading {
		t.Errorf("success entry = %+v", ok)
	}
	if last := entries[6]; last.ErrorMessage != "Upload failed: Bad Gateway" || last.OriginalImageURL != "" {
		t.Errorf("failure entry = %+v", last)
	}
}

func TestCreate_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.journal")
	jw, err := Create(path, Header{SessionID: "s"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := jw.Record(workflow.State{IsLoading: true}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := jw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := jw.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	entries, err := ReadAll(f)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 2 || entries[1].Event != EventSubmitted {
		t.Errorf("entries = %+v", entries)
	}
}

func TestReader_Truncated(t *testing.T) {
	var buf bytes.Buffer
	jw, err := NewWriter(&buf, Header{SessionID: "s"})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := jw.Record(workflow.State{ReportText: strings.Repeat("x", 100)}); err != nil {
		t.Fatalf("record: %v", err)
	}

	data := buf.Bytes()
	cut := bytes.NewReader(data[:len(data)-10])
	entries, err := ReadAll(cut)
	if !IsTruncated(err) {
		t.Fatalf("expected truncated error, got %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected header before truncation, got %d entries", len(entries))
	}

	// Partial length prefix.
	_, err = NewReader(bytes.NewReader([]byte{0, 0})).Next()
	if !IsTruncated(err) {
		t.Errorf("expected truncated prefix error, got %v", err)
	}
}

func TestReader_TooLarge(t *testing.T) {
	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], MaxPayloadSize+1)

	_, err := NewReader(bytes.NewReader(prefix[:])).Next()
	var fe *FrameError
	if !errors.As(err, &fe) || fe.Kind != FrameErrorTooLarge {
		t.Fatalf("expected too-large error, got %v", err)
	}
	if IsTruncated(err) {
		t.Error("too-large must not be reported as truncated")
	}
}

func TestReader_DecodeError(t *testing.T) {
	payload, err := msgpack.Marshal("just a string")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	frame := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[LengthPrefixSize:], payload)

	_, err = NewReader(bytes.NewReader(frame)).Next()
	var fe *FrameError
	if !errors.As(err, &fe) || fe.Kind != FrameErrorDecode {
		t.Fatalf("expected decode error, got %v", err)
	}
	if fe.Kind.String() != "decode" {
		t.Errorf("kind string = %q", fe.Kind.String())
	}
}

func TestReader_EmptyStream(t *testing.T) {
	_, err := NewReader(bytes.NewReader(nil)).Next()
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestWriter_OversizedEntry(t *testing.T) {
	var buf bytes.Buffer
	jw, err := NewWriter(&buf, Header{})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	before := buf.Len()
	err = jw.Record(workflow.State{SelectedFile: types.MemoryFile{Filename: strings.Repeat("f", MaxPayloadSize)}})
	var fe *FrameError
	if !errors.As(err, &fe) || fe.Kind != FrameErrorTooLarge {
		t.Fatalf("expected too-large error, got %v", err)
	}
	if buf.Len() != before {
		t.Error("oversized entry must not be written")
	}
}

func TestWriter_LongReportTruncated(t *testing.T) {
	var buf bytes.Buffer
	jw, err := NewWriter(&buf, Header{})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	// Multi-byte runes straddle the cut point.
	report := strings.Repeat("é", MaxPayloadSize)
	long := workflow.State{ReportText: report, OriginalImageURL: "http://h/a.png", AnnotatedImageURL: "http://h/b.png"}
	if err := jw.Record(long); err != nil {
		t.Fatalf("record long report: %v", err)
	}
	long.ImagesRendered = true
	if err := jw.Record(long); err != nil {
		t.Fatalf("record after long report: %v", err)
	}

	entries, err := ReadAll(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	for _, e := range entries[1:] {
		if len(e.ReportText) > MaxTextSize {
			t.Errorf("report text %d bytes, want <= %d", len(e.ReportText), MaxTextSize)
		}
		if !utf8.ValidString(e.ReportText) || !strings.HasPrefix(report, e.ReportText) {
			t.Error("truncated report is not a valid prefix")
		}
		if e.ReportBytes != len(report) {
			t.Errorf("report bytes = %d, want %d", e.ReportBytes, len(report))
		}
	}
	if entries[2].Event != EventImagesRendered {
		t.Errorf("event = %q, want %q", entries[2].Event, EventImagesRendered)
	}
}

func TestClassify(t *testing.T) {
	file := types.MemoryFile{Filename: "a.dcm"}
	tests := []struct {
		name       string
		prev, next workflow.State
		want       string
	}{
		{"select", workflow.State{}, workflow.State{SelectedFile: file}, EventFileSelected},
		{"clear error", workflow.State{SelectedFile: file, ErrorMessage: "e"}, workflow.State{SelectedFile: file}, EventFileSelected},
		{"submit", workflow.State{SelectedFile: file}, workflow.State{SelectedFile: file, IsLoading: true}, EventSubmitted},
		{"fail", workflow.State{IsLoading: true}, workflow.State{ErrorMessage: "e"}, EventFailed},
		{"succeed", workflow.State{IsLoading: true}, workflow.State{ReportText: "r"}, EventSucceeded},
		{"render", workflow.State{}, workflow.State{ImagesRendered: true}, EventImagesRendered},
		{"same", workflow.State{SelectedFile: file}, workflow.State{SelectedFile: file}, EventChanged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.prev, tt.next); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}
