// Package metrics counts per-session activity: submissions, image loads,
// archive writes and notifications.
//
// The Collector is a leaf package with no internal dependencies. All
// increment methods are nil-receiver safe so callers may run without one.
package metrics

import "sync"

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	// Submissions
	SubmissionsStarted    int64 `json:"submissions_started" yaml:"submissions_started"`
	SubmissionsSucceeded  int64 `json:"submissions_succeeded" yaml:"submissions_succeeded"`
	SubmissionsFailed     int64 `json:"submissions_failed" yaml:"submissions_failed"`
	SubmissionsSuperseded int64 `json:"submissions_superseded" yaml:"submissions_superseded"`
	Advisories            int64 `json:"advisories" yaml:"advisories"`

	// Images
	ImagesLoaded       int64 `json:"images_loaded" yaml:"images_loaded"`
	ImageFetchFailures int64 `json:"image_fetch_failures" yaml:"image_fetch_failures"`

	// Side effects
	ArchiveWriteSuccess int64 `json:"archive_write_success" yaml:"archive_write_success"`
	ArchiveWriteFailure int64 `json:"archive_write_failure" yaml:"archive_write_failure"`
	NotifySuccess       int64 `json:"notify_success" yaml:"notify_success"`
	NotifyFailure       int64 `json:"notify_failure" yaml:"notify_failure"`

	// Dimensions (set at construction)
	SessionID      string `json:"session_id" yaml:"session_id"`
	Origin         string `json:"origin" yaml:"origin"`
	ArchiveBackend string `json:"archive_backend" yaml:"archive_backend"`
	Notifier       string `json:"notifier" yaml:"notifier"`
}

// Collector accumulates counters for one session.
type Collector struct {
	mu sync.Mutex
	s  Snapshot
}

// NewCollector creates a Collector labeled with its session dimensions.
// Empty backend names mean the feature is disabled.
func NewCollector(sessionID, origin, archiveBackend, notifier string) *Collector {
	return &Collector{s: Snapshot{
		SessionID:      sessionID,
		Origin:         origin,
		ArchiveBackend: archiveBackend,
		Notifier:       notifier,
	}}
}

func (c *Collector) inc(field func(*Snapshot) *int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	*field(&c.s)++
	c.mu.Unlock()
}

// IncSubmissionStarted records a submission that reached the network.
func (c *Collector) IncSubmissionStarted() {
	c.inc(func(s *Snapshot) *int64 { return &s.SubmissionsStarted })
}

// IncSubmissionSucceeded records a settled successful submission.
func (c *Collector) IncSubmissionSucceeded() {
	c.inc(func(s *Snapshot) *int64 { return &s.SubmissionsSucceeded })
}

// IncSubmissionFailed records a settled failed submission.
func (c *Collector) IncSubmissionFailed() {
	c.inc(func(s *Snapshot) *int64 { return &s.SubmissionsFailed })
}

// IncSubmissionSuperseded records a response discarded because a newer
// submission had started.
func (c *Collector) IncSubmissionSuperseded() {
	c.inc(func(s *Snapshot) *int64 { return &s.SubmissionsSuperseded })
}

// IncAdvisory records a submit attempt without a selected file.
func (c *Collector) IncAdvisory() {
	c.inc(func(s *Snapshot) *int64 { return &s.Advisories })
}

// IncImageLoaded records a load-completion signal that revealed the images.
func (c *Collector) IncImageLoaded() {
	c.inc(func(s *Snapshot) *int64 { return &s.ImagesLoaded })
}

// IncImageFetchFailure records an image that could not be fetched or decoded.
func (c *Collector) IncImageFetchFailure() {
	c.inc(func(s *Snapshot) *int64 { return &s.ImageFetchFailures })
}

// IncArchiveWriteSuccess records a successful archive write (per record).
func (c *Collector) IncArchiveWriteSuccess() {
	c.inc(func(s *Snapshot) *int64 { return &s.ArchiveWriteSuccess })
}

// IncArchiveWriteFailure records a failed archive write (per record).
func (c *Collector) IncArchiveWriteFailure() {
	c.inc(func(s *Snapshot) *int64 { return &s.ArchiveWriteFailure })
}

// IncNotifySuccess records a delivered completion notification.
func (c *Collector) IncNotifySuccess() {
	c.inc(func(s *Snapshot) *int64 { return &s.NotifySuccess })
}

// IncNotifyFailure records a notification that could not be delivered.
func (c *Collector) IncNotifyFailure() {
	c.inc(func(s *Snapshot) *int64 { return &s.NotifyFailure })
}

// Snapshot returns a copy of the current counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}

// Fields returns the snapshot as a flat map for structured log entries.
func (s Snapshot) Fields() map[string]any {
	return map[string]any{
		"submissions_started":    s.SubmissionsStarted,
		"submissions_succeeded":  s.SubmissionsSucceeded,
		"submissions_failed":     s.SubmissionsFailed,
		"submissions_superseded": s.SubmissionsSuperseded,
		"advisories":             s.Advisories,
		"images_loaded":          s.ImagesLoaded,
		"image_fetch_failures":   s.ImageFetchFailures,
		"archive_write_success":  s.ArchiveWriteSuccess,
		"archive_write_failure":  s.ArchiveWriteFailure,
		"notify_success":         s.NotifySuccess,
		"notify_failure":         s.NotifyFailure,
	}
}
