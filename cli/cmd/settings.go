package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/xrayview/adapter"
	"github.com/pithecene-io/xrayview/adapter/redis"
	"github.com/pithecene-io/xrayview/adapter/webhook"
	"github.com/pithecene-io/xrayview/analysis"
	"github.com/pithecene-io/xrayview/archive"
	"github.com/pithecene-io/xrayview/cli/config"
	"github.com/pithecene-io/xrayview/formatting"
	"github.com/pithecene-io/xrayview/log"
)

// settings is the resolved configuration for one command invocation.
// Precedence: flag > XRAYVIEW_* env > config file > defaults.
type settings struct {
	origin          string
	imageFetchLimit int64
	logLevel        string
	logFile         string
	archive         config.ArchiveConfig
	notify          config.NotifyConfig
	journal         string
}

func loadSettings(c *cli.Context) (*settings, error) {
	cfg, err := config.LoadOptional(c.String("config"))
	if err != nil {
		return nil, err
	}
	return resolveSettings(c, cfg)
}

func resolveSettings(c *cli.Context, cfg *config.Config) (*settings, error) {
	s := &settings{
		origin:          pick(c, "origin", cfg.Origin),
		imageFetchLimit: int64(cfg.ImageFetchLimit),
		logLevel:        pick(c, "log-level", cfg.Log.Level),
		logFile:         pick(c, "log-file", cfg.Log.File),
		archive:         cfg.Archive,
		notify:          cfg.Notify,
		journal:         pick(c, "journal", cfg.Journal.Path),
	}
	if c.IsSet("image-fetch-limit") {
		n, err := formatting.ParseBytes(c.String("image-fetch-limit"))
		if err != nil {
			return nil, fmt.Errorf("--image-fetch-limit: %w", err)
		}
		s.imageFetchLimit = n
	}

	s.archive.Backend = pick(c, "archive-backend", cfg.Archive.Backend)
	s.archive.Path = pick(c, "archive-path", cfg.Archive.Path)
	s.archive.Dataset = pick(c, "archive-dataset", cfg.Archive.Dataset)
	s.archive.Region = pick(c, "archive-region", cfg.Archive.Region)
	s.archive.Endpoint = pick(c, "archive-endpoint", cfg.Archive.Endpoint)
	if c.IsSet("archive-s3-path-style") {
		s.archive.S3PathStyle = c.Bool("archive-s3-path-style")
	}
	if c.IsSet("archive-images") {
		s.archive.Images = c.Bool("archive-images")
	}

	s.notify.Type = pick(c, "notify-type", cfg.Notify.Type)
	s.notify.URL = pick(c, "notify-url", cfg.Notify.URL)
	s.notify.Channel = pick(c, "notify-channel", cfg.Notify.Channel)
	if c.IsSet("notify-timeout") {
		s.notify.Timeout = config.Duration{Duration: c.Duration("notify-timeout")}
	}

	merged := config.Config{Archive: s.archive, Notify: s.notify}
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// pick returns the flag value when the flag (or its env var) is set,
// otherwise fallback.
func pick(c *cli.Context, name, fallback string) string {
	if c.IsSet(name) {
		return c.String(name)
	}
	return fallback
}

func (s *settings) client() (*analysis.Client, error) {
	return analysis.New(analysis.Config{Origin: s.origin, ImageFetchLimit: s.imageFetchLimit})
}

// logger opens the configured log sink. Without a log file it writes to
// fallback; a nil fallback discards logs.
func (s *settings) logger(sessionID string, fallback io.Writer) (*log.Logger, func() error, error) {
	name := s.logLevel
	if name == "" {
		name = "info"
	}
	level, err := log.ParseLevel(name)
	if err != nil {
		return nil, nil, err
	}

	noop := func() error { return nil }
	if s.logFile == "" {
		if fallback == nil {
			return log.Nop(), noop, nil
		}
		return log.NewLogger(sessionID, log.WithWriter(fallback), log.WithLevel(level)), noop, nil
	}

	f, err := os.OpenFile(s.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return log.NewLogger(sessionID, log.WithWriter(f), log.WithLevel(level)), f.Close, nil
}

// openArchive builds the configured archive. It returns nil when archiving
// is disabled.
func (s *settings) openArchive(ctx context.Context, sessionID, origin string) (*archive.Archive, error) {
	cfg := archive.Config{Dataset: s.archive.Dataset, SessionID: sessionID, Origin: origin}
	switch s.archive.Backend {
	case "":
		return nil, nil
	case "fs":
		return archive.NewFS(cfg, s.archive.Path)
	case "s3":
		bucket, prefix := archive.ParseS3Path(s.archive.Path)
		return archive.NewS3(ctx, cfg, archive.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       s.archive.Region,
			Endpoint:     s.archive.Endpoint,
			UsePathStyle: s.archive.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown archive backend: %s (must be fs or s3)", s.archive.Backend)
	}
}

// openNotifier builds the configured notifier. It returns nil when
// notifications are disabled.
func (s *settings) openNotifier() (adapter.Adapter, error) {
	timeout := s.notify.Timeout.Duration
	switch s.notify.Type {
	case "":
		return nil, nil
	case "webhook":
		return webhook.New(webhook.Config{URL: s.notify.URL, Headers: s.notify.Headers, Timeout: timeout})
	case "redis":
		return redis.New(redis.Config{URL: s.notify.URL, Channel: s.notify.Channel, Timeout: timeout})
	default:
		return nil, fmt.Errorf("unknown notify type: %s (must be webhook or redis)", s.notify.Type)
	}
}
