package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/concierge/adapter"
	"github.com/pithecene-io/concierge/adapter/redis"
	"github.com/pithecene-io/concierge/adapter/webhook"
	"github.com/pithecene-io/concierge/agent"
	"github.com/pithecene-io/concierge/archive"
	"github.com/pithecene-io/concierge/cli/config"
	"github.com/pithecene-io/concierge/log"
	"github.com/pithecene-io/concierge/metrics"
	"github.com/pithecene-io/concierge/store"
	"github.com/pithecene-io/concierge/types"
)

// defaultLogLevel keeps JSON logs off the terminal unless asked for.
const defaultLogLevel = "warn"

// loadConfig reads the config file (required only when --config was given
// explicitly) and applies flag overrides on top.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadOptional(c.String("config"), c.IsSet("config"))
	if err != nil {
		return nil, err
	}

	str := func(flag string, dst *string) {
		if c.IsSet(flag) {
			*dst = c.String(flag)
		}
	}
	dur := func(flag string, dst *config.Duration) {
		if c.IsSet(flag) {
			dst.Duration = c.Duration(flag)
		}
	}

	str("log-level", &cfg.LogLevel)

	str("base-url", &cfg.Backend.BaseURL)
	str("token", &cfg.Backend.Token)
	str("transport", &cfg.Backend.Transport)
	dur("timeout", &cfg.Backend.Timeout)
	dur("idle-timeout", &cfg.Backend.StreamIdleTimeout)

	str("archive-backend", &cfg.Archive.Backend)
	str("archive-path", &cfg.Archive.Path)
	str("archive-dataset", &cfg.Archive.Dataset)
	str("archive-s3-region", &cfg.Archive.Region)
	str("archive-s3-endpoint", &cfg.Archive.Endpoint)
	if c.IsSet("archive-s3-path-style") {
		cfg.Archive.S3PathStyle = c.Bool("archive-s3-path-style")
	}

	str("adapter", &cfg.Adapter.Type)
	str("adapter-url", &cfg.Adapter.URL)
	str("adapter-channel", &cfg.Adapter.Channel)
	str("adapter-mode", &cfg.Adapter.Mode)
	if c.IsSet("adapter-retries") {
		n := c.Int("adapter-retries")
		cfg.Adapter.Retries = &n
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// session holds the per-invocation collaborators shared by chat and
// replay: logger, metrics, transcript archive and notification adapter.
type session struct {
	id        string
	cfg       *config.Config
	logger    *log.Logger
	collector *metrics.Collector
	archive   *archive.Archive // nil when archiving is disabled
	adapter   adapter.Adapter  // nil when no adapter is configured
}

// newSession wires the optional archive and adapter. Logs go to errOut.
func newSession(ctx context.Context, cfg *config.Config, transportName string, errOut io.Writer) (*session, error) {
	s := &session{id: uuid.NewString(), cfg: cfg}

	levelName := cfg.LogLevel
	if levelName == "" {
		levelName = defaultLogLevel
	}
	level, err := log.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	s.logger = log.NewLogger(s.id).WithOutput(errOut)
	s.logger.SetLevel(level)

	if cfg.Archive.Enabled() {
		s.archive, err = archive.Open(ctx, archive.Options{
			Backend:      cfg.Archive.Backend,
			Path:         cfg.Archive.Path,
			Dataset:      cfg.Archive.Dataset,
			Region:       cfg.Archive.Region,
			Endpoint:     cfg.Archive.Endpoint,
			UsePathStyle: cfg.Archive.S3PathStyle,
		})
		if err != nil {
			return nil, err
		}
	}
	s.collector = metrics.NewCollector(transportName, archiveBackend(s.archive), s.id)
	if s.archive != nil {
		s.archive.WithCollector(s.collector)
	}

	if s.adapter, err = buildAdapter(cfg.Adapter); err != nil {
		return nil, err
	}
	return s, nil
}

func archiveBackend(a *archive.Archive) string {
	if a == nil {
		return ""
	}
	return a.Backend()
}

// buildAdapter returns nil when no adapter type is configured.
func buildAdapter(cfg config.AdapterConfig) (adapter.Adapter, error) {
	retries := -1
	if cfg.Retries != nil {
		retries = *cfg.Retries
	}

	switch cfg.Type {
	case "":
		return nil, nil
	case "webhook":
		wc := webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Secret:  cfg.Secret,
			Timeout: cfg.Timeout.Duration,
			Retries: webhook.DefaultRetries,
		}
		if retries >= 0 {
			wc.Retries = retries
		}
		a, err := webhook.New(wc)
		if err != nil {
			return nil, err
		}
		return a, nil
	case "redis":
		rc := redis.Config{
			URL:     cfg.URL,
			Channel: cfg.Channel,
			Mode:    redis.Mode(cfg.Mode),
			Timeout: cfg.Timeout.Duration,
			Retries: redis.DefaultRetries,
		}
		if retries >= 0 {
			rc.Retries = retries
		}
		a, err := redis.New(rc)
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown adapter type %q", cfg.Type)
	}
}

// storeConfig returns a store configuration whose turn hook archives and
// publishes every finished turn. extra, when set, runs afterwards.
func (s *session) storeConfig(ctx context.Context, client agent.Client, notifier store.Notifier, extra func(store.TurnResult)) store.Config {
	return store.Config{
		Client:      client,
		Logger:      s.logger,
		Collector:   s.collector,
		IdleTimeout: s.cfg.Backend.StreamIdleTimeout.Duration,
		Notifier:    notifier,
		OnTurnComplete: func(r store.TurnResult) {
			s.turnComplete(ctx, r)
			if extra != nil {
				extra(r)
			}
		},
	}
}

// turnComplete is best-effort: failures are logged and counted, never
// surfaced to the conversation.
func (s *session) turnComplete(ctx context.Context, r store.TurnResult) {
	logger := s.logger.WithConversation(r.ConversationID)

	if s.archive != nil && r.Conversation != nil && r.ConversationID != "" {
		err := s.archive.WriteTurn(ctx, r.Conversation, archive.Turn{
			MessageID:  r.MessageID,
			Outcome:    string(r.Outcome),
			Reason:     r.Reason,
			Tools:      r.Tools,
			Frames:     r.Frames,
			DurationMs: r.Duration.Milliseconds(),
			FinishedAt: r.StartedAt.Add(r.Duration),
		})
		if err != nil {
			logger.Warn("archive write failed", map[string]any{"error": err.Error()})
		}
	}

	if s.adapter != nil {
		if err := s.adapter.Publish(ctx, turnEvent(s.id, r)); err != nil {
			s.collector.IncNotifyFailure()
			logger.Warn("turn notification failed", map[string]any{"error": err.Error()})
		} else {
			s.collector.IncNotifySuccess()
		}
	}
}

// turnEvent converts a finished turn into the adapter payload.
func turnEvent(sessionID string, r store.TurnResult) *adapter.TurnCompletedEvent {
	kinds := make([]string, 0, len(r.ArtifactKinds))
	for _, k := range r.ArtifactKinds {
		kinds = append(kinds, string(k))
	}
	tools := r.Tools
	if tools == nil {
		tools = []string{}
	}
	return &adapter.TurnCompletedEvent{
		EventType:      adapter.EventTypeTurnCompleted,
		ClientVersion:  types.Version,
		SessionID:      sessionID,
		ConversationID: r.ConversationID,
		MessageID:      r.MessageID,
		Outcome:        string(r.Outcome),
		Reason:         r.Reason,
		Tools:          tools,
		ArtifactKinds:  kinds,
		FrameCount:     r.Frames,
		ContentLength:  r.ContentLength,
		Timestamp:      r.StartedAt.Add(r.Duration).UTC().Format(time.RFC3339),
		DurationMs:     r.Duration.Milliseconds(),
	}
}

// Close releases the adapter and archive.
func (s *session) Close() error {
	var err error
	if s.adapter != nil {
		err = s.adapter.Close()
	}
	if s.archive != nil {
		if cerr := s.archive.Close(); err == nil {
			err = cerr
		}
	}
	_ = s.logger.Sync()
	return err
}
