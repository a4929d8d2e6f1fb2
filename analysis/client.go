// Package analysis is the HTTP client for the dental X-ray analysis backend.
//
// The backend accepts a single multipart upload at {origin}/upload/ and
// answers with server-relative image paths and a diagnostic report.
// Converted images are served from the same origin.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/pithecene-io/xrayview/iox"
	"github.com/pithecene-io/xrayview/types"
)

// DefaultOrigin is the backend origin used when none is configured.
const DefaultOrigin = "http://127.0.0.1:8000"

// UploadPath is the analysis endpoint relative to the origin.
const UploadPath = "/upload/"

// FileField is the multipart field name carrying the upload.
const FileField = "file"

// ErrMalformedResponse is returned when a 2xx body does not match the
// expected response schema.
var ErrMalformedResponse = errors.New("malformed analysis response")

// StatusError is returned for non-2xx responses.
// The body of such responses is never parsed.
type StatusError struct {
	Code   int
	Status string // reason phrase, e.g. "Internal Server Error"
}

func (e *StatusError) Error() string {
	return "Upload failed: " + e.Status
}

// BackendError is returned when the backend reports a processing failure
// inside an otherwise successful response.
type BackendError struct {
	Message string
}

func (e *BackendError) Error() string {
	return "analysis failed: " + e.Message
}

// Config configures a Client.
type Config struct {
	// Origin is the backend base URL (default DefaultOrigin).
	// A trailing slash is removed.
	Origin string
	// ImageFetchLimit caps the bytes read by FetchImage (default DefaultImageFetchLimit).
	ImageFetchLimit int64
	// HTTPClient overrides the transport. It should not set a timeout:
	// uploads are bounded only by the caller's context.
	HTTPClient *http.Client
}

// Client talks to a single analysis backend.
type Client struct {
	origin     string
	fetchLimit int64
	http       *http.Client
}

// New creates a client for the configured origin.
func New(cfg Config) (*Client, error) {
	origin := strings.TrimRight(strings.TrimSpace(cfg.Origin), "/")
	if origin == "" {
		origin = DefaultOrigin
	}
	if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
		return nil, fmt.Errorf("origin must be an http(s) URL, got %q", cfg.Origin)
	}
	if cfg.ImageFetchLimit < 0 {
		return nil, fmt.Errorf("image fetch limit must be >= 0, got %d", cfg.ImageFetchLimit)
	}
	limit := cfg.ImageFetchLimit
	if limit == 0 {
		limit = DefaultImageFetchLimit
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{origin: origin, fetchLimit: limit, http: hc}, nil
}

// Origin returns the normalized origin.
func (c *Client) Origin() string { return c.origin }

// Analyze uploads file and returns the validated result with absolute URLs.
//
// A single request is made. Non-2xx responses yield *StatusError, a
// backend-reported failure yields *BackendError and a schema mismatch
// wraps ErrMalformedResponse.
func (c *Client) Analyze(ctx context.Context, file types.FileHandle) (*types.AnalysisResult, error) {
	body, contentType, err := encodeUpload(file)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.origin+UploadPath, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	defer iox.DrainClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Status: reasonPhrase(resp)}
	}

	var wire types.AnalysisResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if wire.Error != nil {
		return nil, &BackendError{Message: *wire.Error}
	}
	if err := wire.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return &types.AnalysisResult{
		OriginalImageURL:  c.origin + *wire.OriginalImageURL,
		AnnotatedImageURL: c.origin + *wire.AnnotatedImageURL,
		Report:            *wire.Report,
		Predictions:       wire.Findings(),
	}, nil
}

// Ping checks that the backend is up and returns its status message.
func (c *Client) Ping(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.origin+"/", nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ping failed: %w", err)
	}
	defer iox.DrainClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("ping failed: %s", reasonPhrase(resp))
	}

	var status struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&status); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return status.Message, nil
}

// encodeUpload buffers the multipart body for a single file part.
func encodeUpload(file types.FileHandle) (io.Reader, string, error) {
	src, err := file.Open()
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", file.Name(), err)
	}
	defer iox.DiscardClose(src)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(FileField, file.Name())
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return nil, "", fmt.Errorf("read %s: %w", file.Name(), err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("finish multipart body: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

// reasonPhrase extracts the status text from resp.Status ("404 Not Found"
// becomes "Not Found"), falling back to the standard text for the code.
func reasonPhrase(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}
