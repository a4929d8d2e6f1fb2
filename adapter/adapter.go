// Package adapter defines the notification boundary for settled analyses.
//
// Adapters publish one event per settled submission to a downstream system.
// Each publish is a single attempt; failures are reported to the caller,
// which logs them without affecting the workflow.
package adapter

import (
	"context"
	"time"

	"github.com/pithecene-io/xrayview/types"
	"github.com/pithecene-io/xrayview/workflow"
)

// EventTypeAnalysisCompleted is the event_type of every published event.
const EventTypeAnalysisCompleted = "analysis_completed"

// AnalysisCompletedEvent is the payload published when a submission settles.
type AnalysisCompletedEvent struct {
	Version           string `json:"version"`
	EventType         string `json:"event_type"` // always "analysis_completed"
	SessionID         string `json:"session_id"`
	RecordID          string `json:"record_id,omitempty"`
	File              string `json:"file"`
	Outcome           string `json:"outcome"` // success or failure
	Error             string `json:"error,omitempty"`
	OriginalImageURL  string `json:"original_image_url,omitempty"`
	AnnotatedImageURL string `json:"annotated_image_url,omitempty"`
	Findings          int    `json:"findings"`
	Timestamp         string `json:"timestamp"` // RFC 3339
	DurationMs        int64  `json:"duration_ms"`
}

// NewEvent builds the event for a settlement. recordID links the event to
// an archive record and may be empty.
func NewEvent(s workflow.Settlement, sessionID, recordID string) *AnalysisCompletedEvent {
	e := &AnalysisCompletedEvent{
		Version:    types.Version,
		EventType:  EventTypeAnalysisCompleted,
		SessionID:  sessionID,
		RecordID:   recordID,
		Outcome:    "success",
		Timestamp:  s.StartedAt.Add(s.Duration).UTC().Format(time.RFC3339),
		DurationMs: s.Duration.Milliseconds(),
	}
	if s.File != nil {
		e.File = s.File.Name()
	}
	if s.Err != nil {
		e.Outcome = "failure"
		e.Error = s.Err.Error()
		return e
	}
	if s.Result != nil {
		e.OriginalImageURL = s.Result.OriginalImageURL
		e.AnnotatedImageURL = s.Result.AnnotatedImageURL
		e.Findings = len(s.Result.Predictions)
	}
	return e
}

// Adapter publishes analysis events to a downstream system.
type Adapter interface {
	// Publish sends the event. Must respect context cancellation.
	Publish(ctx context.Context, event *AnalysisCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
