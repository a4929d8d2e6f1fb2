// Package redis publishes analysis events to a Redis pub/sub channel.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/xrayview/adapter"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "xrayview:analysis_completed"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// Config configures the Redis adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel (default xrayview:analysis_completed).
	Channel string
	// Timeout bounds a single PUBLISH (default 5s).
	Timeout time.Duration
}

// Adapter publishes events via Redis PUBLISH.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis adapter. Returns an error if the URL is empty or invalid.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{config: cfg, client: goredis.NewClient(opts)}, nil
}

// Publish sends the event once as a JSON PUBLISH.
func (a *Adapter) Publish(ctx context.Context, event *adapter.AnalysisCompletedEvent) error {
	_, err := a.PublishCount(ctx, event)
	return err
}

// PublishCount is Publish returning the receiver count.
func (a *Adapter) PublishCount(ctx context.Context, event *adapter.AnalysisCompletedEvent) (int64, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("redis: marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	n, err := a.client.Publish(ctx, a.config.Channel, body).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: publish to %s: %w", a.config.Channel, err)
	}
	return n, nil
}

// Close releases the connection pool.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
