package archive

import (
	"encoding/json"
	"time"

	"github.com/pithecene-io/xrayview/types"
)

// RecordKindAnalysis marks analysis records in the dataset.
const RecordKindAnalysis = "analysis"

// Outcome values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Record is one settled analysis.
type Record struct {
	RecordID          string             `json:"record_id" yaml:"record_id"`
	SessionID         string             `json:"session_id" yaml:"session_id"`
	Day               string             `json:"day" yaml:"day"`
	Outcome           string             `json:"outcome" yaml:"outcome"`
	File              string             `json:"file" yaml:"file"`
	Origin            string             `json:"origin" yaml:"origin"`
	OriginalImageURL  string             `json:"original_image_url,omitempty" yaml:"original_image_url,omitempty"`
	AnnotatedImageURL string             `json:"annotated_image_url,omitempty" yaml:"annotated_image_url,omitempty"`
	Report            string             `json:"report,omitempty" yaml:"report,omitempty"`
	Error             string             `json:"error,omitempty" yaml:"error,omitempty"`
	Predictions       []types.Prediction `json:"predictions,omitempty" yaml:"predictions,omitempty"`
	SubmittedAt       time.Time          `json:"submitted_at" yaml:"submitted_at"`
	DurationMs        int64              `json:"duration_ms" yaml:"duration_ms"`
	Version           string             `json:"version" yaml:"version"`
}

// toMap flattens the record for the JSONL codec. Partition keys (day,
// outcome) must be present as top-level fields.
func (r *Record) toMap() map[string]any {
	preds := make([]any, 0, len(r.Predictions))
	for _, p := range r.Predictions {
		preds = append(preds, map[string]any{
			"x":          p.X,
			"y":          p.Y,
			"width":      p.Width,
			"height":     p.Height,
			"class":      p.Class,
			"confidence": p.Confidence,
		})
	}
	return map[string]any{
		"record_kind":         RecordKindAnalysis,
		"record_id":           r.RecordID,
		"session_id":          r.SessionID,
		"day":                 r.Day,
		"outcome":             r.Outcome,
		"file":                r.File,
		"origin":              r.Origin,
		"original_image_url":  r.OriginalImageURL,
		"annotated_image_url": r.AnnotatedImageURL,
		"report":              r.Report,
		"error":               r.Error,
		"predictions":         preds,
		"submitted_at":        r.SubmittedAt.UTC().Format(time.RFC3339Nano),
		"duration_ms":         r.DurationMs,
		"version":             r.Version,
	}
}

// recordFromMap rebuilds a Record from a decoded JSONL row.
func recordFromMap(m map[string]any) Record {
	r := Record{
		RecordID:          str(m["record_id"]),
		SessionID:         str(m["session_id"]),
		Day:               str(m["day"]),
		Outcome:           str(m["outcome"]),
		File:              str(m["file"]),
		Origin:            str(m["origin"]),
		OriginalImageURL:  str(m["original_image_url"]),
		AnnotatedImageURL: str(m["annotated_image_url"]),
		Report:            str(m["report"]),
		Error:             str(m["error"]),
		DurationMs:        int64(num(m["duration_ms"])),
		Version:           str(m["version"]),
	}
	if ts, err := time.Parse(time.RFC3339Nano, str(m["submitted_at"])); err == nil {
		r.SubmittedAt = ts
	}
	if list, ok := m["predictions"].([]any); ok {
		for _, item := range list {
			p, ok := item.(map[string]any)
			if !ok {
				continue
			}
			r.Predictions = append(r.Predictions, types.Prediction{
				X:          num(p["x"]),
				Y:          num(p["y"]),
				Width:      num(p["width"]),
				Height:     num(p["height"]),
				Class:      str(p["class"]),
				Confidence: num(p["confidence"]),
			})
		}
	}
	return r
}

func str(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func num(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	default:
		return 0
	}
}
