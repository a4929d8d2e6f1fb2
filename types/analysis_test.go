package types //nolint:revive // types is a valid package name

import (
	"encoding/json"
	"io"
	"strings"
	"testing"
)

func TestAnalysisResponse_Validate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name: "complete",
			body: `{"original_image_url":"/converted/a.png","annotated_image_url":"/converted/a_annotated.png","report":"ok"}`,
		},
		{
			name: "empty report is allowed",
			body: `{"original_image_url":"/a.png","annotated_image_url":"/b.png","report":""}`,
		},
		{
			name:    "missing original",
			body:    `{"annotated_image_url":"/b.png","report":"r"}`,
			wantErr: "original_image_url",
		},
		{
			name:    "missing annotated",
			body:    `{"original_image_url":"/a.png","report":"r"}`,
			wantErr: "annotated_image_url",
		},
		{
			name:    "missing report",
			body:    `{"original_image_url":"/a.png","annotated_image_url":"/b.png"}`,
			wantErr: "report",
		},
		{
			name:    "empty url",
			body:    `{"original_image_url":"","annotated_image_url":"/b.png","report":"r"}`,
			wantErr: "is empty",
		},
		{
			name:    "absolute url",
			body:    `{"original_image_url":"http://x/a.png","annotated_image_url":"/b.png","report":"r"}`,
			wantErr: "server-relative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp AnalysisResponse
			if err := json.Unmarshal([]byte(tt.body), &resp); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			err := resp.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestAnalysisResponse_Findings(t *testing.T) {
	body := `{
		"original_image_url": "/converted/a.png",
		"annotated_image_url": "/converted/a_annotated.png",
		"report": "r",
		"predictions": {
			"time": 0.12,
			"image": {"width": 1024, "height": 768},
			"predictions": [
				{"x": 100, "y": 120, "width": 40, "height": 30, "confidence": 0.87, "class": "caries", "class_id": 1, "detection_id": "abc"}
			]
		}
	}`
	var resp AnalysisResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := resp.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	got := resp.Findings()
	if len(got) != 1 {
		t.Fatalf("Findings() = %+v, want 1", got)
	}
	want := Prediction{X: 100, Y: 120, Width: 40, Height: 30, Class: "caries", Confidence: 0.87}
	if got[0] != want {
		t.Errorf("Findings()[0] = %+v, want %+v", got[0], want)
	}

	var missing AnalysisResponse
	if f := missing.Findings(); f != nil {
		t.Errorf("missing predictions: Findings() = %+v, want nil", f)
	}
}

func TestHasAdvisedExtension(t *testing.T) {
	cases := map[string]bool{
		"scan.dcm":     true,
		"SCAN.DCM":     true,
		"bite.rvg":     true,
		"photo.png":    false,
		"noextension":  false,
		"archive.dcm.": false,
	}
	for name, want := range cases {
		if got := HasAdvisedExtension(name); got != want {
			t.Errorf("HasAdvisedExtension(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestMemoryFile_Open(t *testing.T) {
	f := MemoryFile{Filename: "x.dcm", Data: []byte("DICM")}
	rc, err := f.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, rc); err != nil {
		t.Fatalf("read: %v", err)
	}
	if buf.String() != "DICM" {
		t.Errorf("content = %q, want %q", buf.String(), "DICM")
	}
	if f.Name() != "x.dcm" {
		t.Errorf("Name() = %q", f.Name())
	}
}

func TestLocalFile_Name(t *testing.T) {
	f := LocalFile{Path: "/tmp/scans/patient-7.rvg"}
	if got := f.Name(); got != "patient-7.rvg" {
		t.Errorf("Name() = %q, want %q", got, "patient-7.rvg")
	}
}
