package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Prediction is a single finding returned by the analysis backend.
// Coordinates are in pixels of the converted original image.
type Prediction struct {
	X          float64 `json:"x" msgpack:"x"`
	Y          float64 `json:"y" msgpack:"y"`
	Width      float64 `json:"width" msgpack:"width"`
	Height     float64 `json:"height" msgpack:"height"`
	Class      string  `json:"class" msgpack:"class"`
	Confidence float64 `json:"confidence" msgpack:"confidence"`
}

// AnalysisResponse is the wire shape of a successful upload response.
//
// Required keys are pointers so that absence can be told apart from an
// empty value. Use Validate before trusting any field.
type AnalysisResponse struct {
	OriginalImageURL  *string      `json:"original_image_url"`
	AnnotatedImageURL *string      `json:"annotated_image_url"`
	Report            *string      `json:"report"`
	// Predictions is the detector payload, either {"predictions": [...]}
	// or a bare list. See Findings.
	Predictions json.RawMessage `json:"predictions,omitempty"`
	// Error is set by the backend when processing failed.
	// The backend still answers 200 in that case.
	Error *string `json:"error,omitempty"`
}

// Validate checks the response against the expected schema.
// It does not inspect Error; callers handle that first.
func (r *AnalysisResponse) Validate() error {
	if r.OriginalImageURL == nil {
		return fmt.Errorf("missing field %q", "original_image_url")
	}
	if r.AnnotatedImageURL == nil {
		return fmt.Errorf("missing field %q", "annotated_image_url")
	}
	if r.Report == nil {
		return fmt.Errorf("missing field %q", "report")
	}
	if err := validatePath("original_image_url", *r.OriginalImageURL); err != nil {
		return err
	}
	return validatePath("annotated_image_url", *r.AnnotatedImageURL)
}

// Findings extracts the predictions list. The field is optional, so an
// absent, null or unrecognized payload yields nil rather than an error.
func (r *AnalysisResponse) Findings() []Prediction {
	raw := bytes.TrimSpace(r.Predictions)
	if len(raw) == 0 {
		return nil
	}
	switch raw[0] {
	case '[':
		var list []Prediction
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil
		}
		return list
	case '{':
		var nested struct {
			Predictions []Prediction `json:"predictions"`
		}
		if err := json.Unmarshal(raw, &nested); err != nil {
			return nil
		}
		return nested.Predictions
	}
	return nil
}

func validatePath(field, p string) error {
	if p == "" {
		return fmt.Errorf("field %q is empty", field)
	}
	if p[0] != '/' {
		return fmt.Errorf("field %q is not a server-relative path: %q", field, p)
	}
	return nil
}

// AnalysisResult is a validated analysis with absolute image URLs.
type AnalysisResult struct {
	OriginalImageURL  string       `json:"original_image_url" msgpack:"original_image_url"`
	AnnotatedImageURL string       `json:"annotated_image_url" msgpack:"annotated_image_url"`
	Report            string       `json:"report" msgpack:"report"`
	Predictions       []Prediction `json:"predictions,omitempty" msgpack:"predictions,omitempty"`
}
