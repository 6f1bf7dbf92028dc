// Package redis implements a Redis adapter for turn completion events.
//
// Two delivery modes are supported:
//   - publish: PUBLISH the JSON event to a pub/sub channel (fire-and-forget)
//   - stream: XADD the event to a capped Redis stream (durable, replayable)
//
// Retries with exponential backoff on connection errors.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/concierge/adapter"
)

// DefaultChannel is the default channel or stream key.
const DefaultChannel = "concierge:turn_completed"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// DefaultStreamMaxLen caps stream mode entries (approximate trimming).
const DefaultStreamMaxLen = 10000

// Mode selects how events are delivered.
type Mode string

// Delivery modes.
const (
	ModePublish Mode = "publish"
	ModeStream  Mode = "stream"
)

// Config configures the Redis adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel or stream key (default: concierge:turn_completed).
	Channel string
	// Mode is publish (default) or stream.
	Mode Mode
	// StreamMaxLen caps the stream length in stream mode (default 10000).
	StreamMaxLen int64
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure (default 3).
	Retries int
}

// Adapter delivers turn completion events to Redis.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis adapter from the given config.
// Returns an error if the URL is empty or invalid.
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
	switch cfg.Mode {
	case "":
		cfg.Mode = ModePublish
	case ModePublish, ModeStream:
	default:
		return nil, fmt.Errorf("redis adapter: unknown mode %q (want publish or stream)", cfg.Mode)
	}
	if cfg.StreamMaxLen <= 0 {
		cfg.StreamMaxLen = DefaultStreamMaxLen
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Adapter{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// Publish delivers the event according to the configured mode.
func (a *Adapter) Publish(ctx context.Context, event *adapter.TurnCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	return adapter.Retry(ctx, "redis", a.config.Retries, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		return a.deliver(ctx, event, body)
	})
}

func (a *Adapter) deliver(ctx context.Context, event *adapter.TurnCompletedEvent, body []byte) error {
	if a.config.Mode == ModeStream {
		return a.client.XAdd(ctx, &goredis.XAddArgs{
			Stream: a.config.Channel,
			MaxLen: a.config.StreamMaxLen,
			Approx: true,
			Values: map[string]any{
				"conversation_id": event.ConversationID,
				"outcome":         event.Outcome,
				"event":           string(body),
			},
		}).Err()
	}
	return a.client.Publish(ctx, a.config.Channel, body).Err()
}

// Close releases adapter resources.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// Verify Adapter implements the adapter interface.
var _ adapter.Adapter = (*Adapter)(nil)
