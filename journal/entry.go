package journal

import (
	"unicode/utf8"

	"github.com/pithecene-io/xrayview/workflow"
)

// MaxTextSize bounds the report and error text stored per entry. Longer
// text is cut at a rune boundary; ReportBytes keeps the full report length.
const MaxTextSize = 64 << 10

// Entry types.
const (
	TypeHeader = "header"
	TypeState  = "state"
)

// Transition names derived from consecutive states.
const (
	EventFileSelected   = "file_selected"
	EventSubmitted      = "submitted"
	EventSucceeded      = "succeeded"
	EventFailed         = "failed"
	EventImagesRendered = "images_rendered"
	EventChanged        = "changed"
)

// Entry is one journal frame.
type Entry struct {
	Type string `msgpack:"type" json:"type" yaml:"type"`
	Seq  uint64 `msgpack:"seq" json:"seq" yaml:"seq"`
	At   string `msgpack:"at" json:"at" yaml:"at"` // RFC 3339

	// Header fields
	Version   string `msgpack:"version,omitempty" json:"version,omitempty" yaml:"version,omitempty"`
	SessionID string `msgpack:"session_id,omitempty" json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Origin    string `msgpack:"origin,omitempty" json:"origin,omitempty" yaml:"origin,omitempty"`

	// State fields
	Event             string `msgpack:"event,omitempty" json:"event,omitempty" yaml:"event,omitempty"`
	File              string `msgpack:"file,omitempty" json:"file,omitempty" yaml:"file,omitempty"`
	IsLoading         bool   `msgpack:"is_loading" json:"is_loading" yaml:"is_loading"`
	OriginalImageURL  string `msgpack:"original_image_url,omitempty" json:"original_image_url,omitempty" yaml:"original_image_url,omitempty"`
	AnnotatedImageURL string `msgpack:"annotated_image_url,omitempty" json:"annotated_image_url,omitempty" yaml:"annotated_image_url,omitempty"`
	ReportText        string `msgpack:"report_text,omitempty" json:"report_text,omitempty" yaml:"report_text,omitempty"`
	ReportBytes       int    `msgpack:"report_bytes,omitempty" json:"report_bytes,omitempty" yaml:"report_bytes,omitempty"`
	ErrorMessage      string `msgpack:"error_message,omitempty" json:"error_message,omitempty" yaml:"error_message,omitempty"`
	ImagesRendered    bool   `msgpack:"images_rendered" json:"images_rendered" yaml:"images_rendered"`
	Predictions       int    `msgpack:"predictions,omitempty" json:"predictions,omitempty" yaml:"predictions,omitempty"`
}

// Classify names the transition from prev to next.
func Classify(prev, next workflow.State) string {
	switch {
	case !prev.IsLoading && next.IsLoading:
		return EventSubmitted
	case prev.IsLoading && !next.IsLoading && next.ErrorMessage != "":
		return EventFailed
	case prev.IsLoading && !next.IsLoading:
		return EventSucceeded
	case !prev.ImagesRendered && next.ImagesRendered:
		return EventImagesRendered
	case fileName(prev) != fileName(next) || prev.ErrorMessage != next.ErrorMessage:
		return EventFileSelected
	default:
		return EventChanged
	}
}

func fileName(s workflow.State) string {
	if s.SelectedFile == nil {
		return ""
	}
	return s.SelectedFile.Name()
}

func stateEntry(event string, s workflow.State) Entry {
	return Entry{
		Type:              TypeState,
		Event:             event,
		File:              fileName(s),
		IsLoading:         s.IsLoading,
		OriginalImageURL:  s.OriginalImageURL,
		AnnotatedImageURL: s.AnnotatedImageURL,
		ReportText:        truncateText(s.ReportText),
		ReportBytes:       len(s.ReportText),
		ErrorMessage:      truncateText(s.ErrorMessage),
		ImagesRendered:    s.ImagesRendered,
		Predictions:       len(s.Predictions),
	}
}

func truncateText(s string) string {
	if len(s) <= MaxTextSize {
		return s
	}
	n := MaxTextSize
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
