// Package session wires one xrayview process together: the workflow
// controller, the analysis client, metrics, and the optional archive,
// notifier and journal.
//
// Side effects run from the workflow's settle hook after the state has
// been published. Their failures are logged and counted and never reach
// the workflow state.
package session

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/xrayview/adapter"
	"github.com/pithecene-io/xrayview/analysis"
	"github.com/pithecene-io/xrayview/archive"
	"github.com/pithecene-io/xrayview/journal"
	"github.com/pithecene-io/xrayview/log"
	"github.com/pithecene-io/xrayview/metrics"
	"github.com/pithecene-io/xrayview/workflow"
)

// DefaultSideEffectTimeout bounds archive and notify work per settlement.
const DefaultSideEffectTimeout = 30 * time.Second

// Client is the backend surface a session needs.
type Client interface {
	workflow.Analyzer
	FetchImage(ctx context.Context, url string) (*analysis.Image, error)
	Origin() string
}

// Config configures a session.
type Config struct {
	// ID identifies the session in logs, journal and archive.
	// Generated when empty.
	ID string
	// Client talks to the analysis backend (required).
	Client Client
	// Logger receives structured entries. Defaults to discard.
	Logger *log.Logger
	// Advisor presents blocking advisories.
	Advisor workflow.Advisor

	// Archive stores settled analyses. Nil disables archiving.
	Archive *archive.Archive
	// ArchiveBackend labels the archive in metrics (fs, s3).
	ArchiveBackend string
	// ArchiveImages also stores both result images with the record.
	ArchiveImages bool

	// Notifier publishes completion events. Nil disables notifications.
	Notifier adapter.Adapter
	// NotifierName labels the notifier in metrics (webhook, redis).
	NotifierName string

	// JournalPath records state transitions when set.
	JournalPath string

	// SideEffectTimeout bounds archive and notify work (default 30s).
	SideEffectTimeout time.Duration
}

// Session is a running xrayview session.
type Session struct {
	ID       string
	Workflow *workflow.Workflow
	Metrics  *metrics.Collector

	client   Client
	logger   *log.Logger
	archive  *archive.Archive
	images   bool
	notifier adapter.Adapter
	journal  *journal.Writer
	timeout  time.Duration
	unsub    []func()
}

// New builds a session and its workflow.
func New(cfg Config) (*Session, error) {
	if cfg.Client == nil {
		return nil, errors.New("session requires an analysis client")
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}
	if cfg.SideEffectTimeout <= 0 {
		cfg.SideEffectTimeout = DefaultSideEffectTimeout
	}

	s := &Session{
		ID:       cfg.ID,
		Metrics:  metrics.NewCollector(cfg.ID, cfg.Client.Origin(), cfg.ArchiveBackend, cfg.NotifierName),
		client:   cfg.Client,
		logger:   cfg.Logger,
		archive:  cfg.Archive,
		images:   cfg.ArchiveImages,
		notifier: cfg.Notifier,
		timeout:  cfg.SideEffectTimeout,
	}

	opts := []workflow.Option{
		workflow.WithLogger(cfg.Logger),
		workflow.WithMetrics(s.Metrics),
		workflow.WithSettleHook(s.onSettle),
	}
	if cfg.Advisor != nil {
		opts = append(opts, workflow.WithAdvisor(cfg.Advisor))
	}
	s.Workflow = workflow.New(cfg.Client, opts...)

	if cfg.JournalPath != "" {
		jw, err := journal.Create(cfg.JournalPath, journal.Header{SessionID: cfg.ID, Origin: cfg.Client.Origin()})
		if err != nil {
			return nil, err
		}
		s.journal = jw
		s.unsub = append(s.unsub, s.Workflow.Subscribe(jw.Observer(func(err error) {
			s.logger.Warn("journal write failed", map[string]any{"error": err.Error()})
		})))
	}

	s.logger.Info("session started", map[string]any{
		"origin":   cfg.Client.Origin(),
		"archive":  cfg.ArchiveBackend,
		"notifier": cfg.NotifierName,
		"journal":  cfg.JournalPath,
	})
	return s, nil
}

// LoadImage fetches the image at url and, on success, signals the
// workflow that it finished loading.
func (s *Session) LoadImage(ctx context.Context, url string) (*analysis.Image, error) {
	img, err := s.client.FetchImage(ctx, url)
	if err != nil {
		s.Metrics.IncImageFetchFailure()
		s.logger.Warn("image fetch failed", map[string]any{"url": url, "error": err.Error()})
		return nil, err
	}
	s.Workflow.MarkImageLoaded(url)
	return img, nil
}

// onSettle runs the archive and notifier for an applied settlement.
func (s *Session) onSettle(st workflow.Settlement) {
	if s.archive == nil && s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	recordID := ""
	if s.archive != nil {
		rec := s.archive.RecordFromSettlement(st)
		if err := s.archiveRecord(ctx, rec, st); err != nil {
			s.Metrics.IncArchiveWriteFailure()
			s.logger.Error("archive write failed", map[string]any{"record_id": rec.RecordID, "error": err.Error()})
		} else {
			s.Metrics.IncArchiveWriteSuccess()
			recordID = rec.RecordID
		}
	}

	if s.notifier != nil {
		if err := s.notifier.Publish(ctx, adapter.NewEvent(st, s.ID, recordID)); err != nil {
			s.Metrics.IncNotifyFailure()
			s.logger.Warn("notification failed", map[string]any{"error": err.Error()})
		} else {
			s.Metrics.IncNotifySuccess()
		}
	}
}

func (s *Session) archiveRecord(ctx context.Context, rec archive.Record, st workflow.Settlement) error {
	if err := s.archive.Write(ctx, rec); err != nil {
		return err
	}
	if !s.images || st.Result == nil {
		return nil
	}
	for name, url := range map[string]string{
		"original":  st.Result.OriginalImageURL,
		"annotated": st.Result.AnnotatedImageURL,
	} {
		img, err := s.client.FetchImage(ctx, url)
		if err != nil {
			return fmt.Errorf("fetch %s image: %w", name, err)
		}
		if _, err := s.archive.PutImage(ctx, rec, name+"."+img.Format, img.Data); err != nil {
			return fmt.Errorf("store %s image %s: %w", name, path.Base(url), err)
		}
	}
	return nil
}

// Close stops the journal and notifier and logs the session metrics.
func (s *Session) Close() error {
	for _, u := range s.unsub {
		u()
	}
	var errs []error
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close notifier: %w", err))
		}
	}
	s.logger.Info("session closed", s.Metrics.Snapshot().Fields())
	_ = s.logger.Sync()
	return errors.Join(errs...)
}
