// Package view derives what the screen shows from a workflow.State.
//
// Build is pure: the same state always yields the same Page. Renderers
// (the terminal UI and the CLI output formats) only draw a Page.
package view

import (
	"fmt"

	"github.com/pithecene-io/xrayview/workflow"
)

// Static labels.
const (
	Title            = "Dental X-ray Analyzer"
	FilePickerLabel  = "Select Dental X-ray File (DICOM)"
	OriginalTitle    = "Original Image"
	AnnotatedTitle   = "Annotated Image"
	ReportTitle      = "Diagnostic Report"
	LabelIdle        = "Upload & Analyze"
	LabelBusy        = "Analyzing..."
	ReportGenerating = "Generating report..."
	ReportEmpty      = "No report available yet."
	NoFileSelected   = "No file selected"
)

// ReportKind identifies which branch of the report panel is shown.
type ReportKind string

const (
	ReportKindError      ReportKind = "error"
	ReportKindText       ReportKind = "text"
	ReportKindGenerating ReportKind = "generating"
	ReportKindEmpty      ReportKind = "empty"
)

// Button is the upload trigger.
type Button struct {
	Label    string `json:"label" yaml:"label"`
	Disabled bool   `json:"disabled" yaml:"disabled"`
	Busy     bool   `json:"busy" yaml:"busy"`
}

// ImagePanel is one result image.
type ImagePanel struct {
	Title   string `json:"title" yaml:"title"`
	URL     string `json:"url" yaml:"url"`
	Visible bool   `json:"visible" yaml:"visible"`
}

// ReportPanel is the diagnostic report area.
type ReportPanel struct {
	Title string     `json:"title" yaml:"title"`
	Kind  ReportKind `json:"kind" yaml:"kind"`
	Text  string     `json:"text" yaml:"text"`
}

// Finding is one prediction line.
type Finding struct {
	Class      string  `json:"class" yaml:"class"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Label      string  `json:"label" yaml:"label"`
}

// Page is everything a renderer draws.
type Page struct {
	Title        string       `json:"title" yaml:"title"`
	FileLabel    string       `json:"file_label" yaml:"file_label"`
	SelectedFile string       `json:"selected_file" yaml:"selected_file"`
	Button       Button       `json:"button" yaml:"button"`
	ErrorBanner  string       `json:"error,omitempty" yaml:"error,omitempty"`
	Images       []ImagePanel `json:"images,omitempty" yaml:"images,omitempty"`
	Findings     []Finding    `json:"findings,omitempty" yaml:"findings,omitempty"`
	Report       ReportPanel  `json:"report" yaml:"report"`
}

// Build derives the page from s.
func Build(s workflow.State) Page {
	p := Page{
		Title:        Title,
		FileLabel:    FilePickerLabel,
		SelectedFile: NoFileSelected,
		Button:       buildButton(s),
		ErrorBanner:  s.ErrorMessage,
		Report:       buildReport(s),
	}
	if s.SelectedFile != nil {
		p.SelectedFile = s.SelectedFile.Name()
	}

	if s.OriginalImageURL != "" {
		p.Images = append(p.Images, ImagePanel{Title: OriginalTitle, URL: s.OriginalImageURL, Visible: s.ImagesRendered})
	}
	if s.AnnotatedImageURL != "" {
		p.Images = append(p.Images, ImagePanel{Title: AnnotatedTitle, URL: s.AnnotatedImageURL, Visible: s.ImagesRendered})
	}

	for _, pr := range s.Predictions {
		p.Findings = append(p.Findings, Finding{
			Class:      pr.Class,
			Confidence: pr.Confidence,
			Label:      fmt.Sprintf("%s (%.2f)", pr.Class, pr.Confidence),
		})
	}
	return p
}

func buildButton(s workflow.State) Button {
	if s.IsLoading {
		return Button{Label: LabelBusy, Disabled: true, Busy: true}
	}
	return Button{Label: LabelIdle}
}

// buildReport applies the panel priority: error, report, generating, empty.
func buildReport(s workflow.State) ReportPanel {
	r := ReportPanel{Title: ReportTitle}
	switch {
	case s.ErrorMessage != "":
		r.Kind, r.Text = ReportKindError, s.ErrorMessage
	case s.ReportText != "":
		r.Kind, r.Text = ReportKindText, s.ReportText
	case s.IsLoading:
		r.Kind, r.Text = ReportKindGenerating, ReportGenerating
	default:
		r.Kind, r.Text = ReportKindEmpty, ReportEmpty
	}
	return r
}
