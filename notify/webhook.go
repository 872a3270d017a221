package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Notifier delivers audit messages. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

type nop struct{}

func (nop) Notify(context.Context, string) {}

// Nop drops every message
var Nop Notifier = nop{}

var _ Notifier = (*Webhook)(nil)

type message struct {
	Content string `json:"content"`
}

// Webhook posts each message to one hook chosen at random from its list
type Webhook struct {
	urls   []string
	client *retryablehttp.Client
	logger zerolog.Logger
	pick   func(n int) int
}

type Option func(*Webhook)

func WithLogger(l zerolog.Logger) Option {
	return func(w *Webhook) {
		w.logger = l
	}
}

// WithRetry bounds delivery retries and the backoff between them
func WithRetry(maxRetries int, waitMin, waitMax time.Duration) Option {
	return func(w *Webhook) {
		w.client.RetryMax = maxRetries
		w.client.RetryWaitMin = waitMin
		w.client.RetryWaitMax = waitMax
	}
}

// WithPicker replaces the random hook selection (primarily for testing)
func WithPicker(pick func(n int) int) Option {
	return func(w *Webhook) {
		w.pick = pick
	}
}

func NewWebhook(urls []string, opts ...Option) *Webhook {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 250 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = 10 * time.Second

	w := &Webhook{
		urls:   urls,
		client: client,
		logger: log.Logger,
		pick:   rand.IntN,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.client.Logger = leveledLogger{w.logger}
	return w
}

// Notify sends message to a random hook. Failures are logged and dropped.
func (w *Webhook) Notify(ctx context.Context, message string) {
	if len(w.urls) == 0 {
		return
	}
	url := w.urls[w.pick(len(w.urls))]
	if err := w.send(ctx, url, message); err != nil {
		w.logger.Warn().Err(err).Msg("audit notification dropped")
	}
}

func (w *Webhook) send(ctx context.Context, url, content string) error {
	body, err := json.Marshal(message{Content: content})
	if err != nil {
		return fmt.Errorf("[Webhook send] encode: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("[Webhook send] build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("[Webhook send] %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("[Webhook send] unexpected status %d", resp.StatusCode)
	}
	return nil
}

// leveledLogger routes retryablehttp's own logging through zerolog
type leveledLogger struct {
	logger zerolog.Logger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.logger.Error().Fields(kv).Msg(msg) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.logger.Warn().Fields(kv).Msg(msg) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.logger.Debug().Fields(kv).Msg(msg) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.logger.Trace().Fields(kv).Msg(msg) }
