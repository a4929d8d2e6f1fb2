package workflow

import (
	"slices"

	"github.com/pithecene-io/xrayview/types"
)

// State is the view-state of the upload workflow.
//
// Empty strings mean unset. Only one of loading, error or result is
// meaningful once a submission settles.
type State struct {
	SelectedFile      types.FileHandle
	IsLoading         bool
	OriginalImageURL  string
	AnnotatedImageURL string
	ReportText        string
	ErrorMessage      string
	// ImagesRendered is shared by both image panels. It resets when either
	// URL changes and is set by the first load of a current image.
	ImagesRendered bool
	Predictions    []types.Prediction
}

// HasSelection reports whether a file is pending.
func (s State) HasSelection() bool { return s.SelectedFile != nil }

// HasResult reports whether a settled result is held.
func (s State) HasResult() bool {
	return s.OriginalImageURL != "" || s.AnnotatedImageURL != ""
}

func (s State) clone() State {
	s.Predictions = slices.Clone(s.Predictions)
	return s
}

// setImageURLs replaces both URLs and resets the shared rendered flag
// when either changes.
func (s *State) setImageURLs(original, annotated string) {
	if s.OriginalImageURL != original || s.AnnotatedImageURL != annotated {
		s.ImagesRendered = false
	}
	s.OriginalImageURL = original
	s.AnnotatedImageURL = annotated
}
