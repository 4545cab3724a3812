// Package service contains adapters to collaborators outside the core.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/coursehub/coursehub-core/internal/domain/notification"
	"github.com/coursehub/coursehub-core/pkg/circuitbreaker"
	"github.com/coursehub/coursehub-core/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// WEBHOOK SENDER
// Posts notifications as JSON to the notification collaborator. Transport
// errors, 429 and 5xx are retried with backoff; repeated failures open the
// breaker so a dead collaborator does not hold up the event bus.
// ══════════════════════════════════════════════════════════════════════════════

// WebhookConfig contains configuration for WebhookSender.
type WebhookConfig struct {
	// URL receives POST requests with a Notification body.
	URL string

	// Secret is sent as a bearer token when set.
	Secret string

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	// MaxAttempts is the number of attempts per notification, first included.
	MaxAttempts int
}

// WebhookSender implements notification.Sender over HTTP.
type WebhookSender struct {
	config     WebhookConfig
	httpClient *http.Client
	retrier    *retry.Retrier
	breaker    *circuitbreaker.CircuitBreaker
	logger     *slog.Logger
}

var _ notification.Sender = (*WebhookSender)(nil)

// NewWebhookSender creates a new WebhookSender.
func NewWebhookSender(config WebhookConfig, logger *slog.Logger) *WebhookSender {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	logger = logger.With("component", "webhook_sender")

	return &WebhookSender{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		retrier:    retry.WebhookRetrier(config.MaxAttempts),
		breaker: circuitbreaker.WebhookBreaker(func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		}),
		logger: logger,
	}
}

// Send implements notification.Sender.
func (s *WebhookSender) Send(ctx context.Context, n *notification.Notification) notification.DeliveryResult {
	body, err := json.Marshal(n)
	if err != nil {
		return notification.NewFailureResult(notification.ChannelWebhook, fmt.Errorf("marshal notification: %w", err), false)
	}

	err = s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.retrier.Do(ctx, func(ctx context.Context) error {
			return s.post(ctx, n, body)
		})
	})
	if err != nil {
		retryable := errors.Is(err, circuitbreaker.ErrCircuitOpen) ||
			errors.Is(err, circuitbreaker.ErrTooManyRequests) ||
			isTransient(err)
		return notification.NewFailureResult(notification.ChannelWebhook, err, retryable)
	}
	return notification.NewSuccessResult(notification.ChannelWebhook)
}

// post performs one attempt. Errors worth repeating are marked retryable.
func (s *WebhookSender) post(ctx context.Context, n *notification.Notification, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", string(n.EventType))
	req.Header.Set("Idempotency-Key", n.ID)
	if s.config.Secret != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.Secret)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return retry.Retryable(&transientError{err: err})
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return retry.Retryable(&transientError{err: fmt.Errorf("webhook returned %d", resp.StatusCode)})
	default:
		return fmt.Errorf("webhook rejected notification: status %d", resp.StatusCode)
	}
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// ══════════════════════════════════════════════════════════════════════════════
// LOG SENDER
// ══════════════════════════════════════════════════════════════════════════════

// LogSender writes notifications to the log. It is used when no webhook is
// configured.
type LogSender struct {
	logger *slog.Logger
}

var _ notification.Sender = (*LogSender)(nil)

// NewLogSender creates a new LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger.With("component", "log_sender")}
}

// Send implements notification.Sender.
func (s *LogSender) Send(_ context.Context, n *notification.Notification) notification.DeliveryResult {
	s.logger.Info("notification",
		"id", n.ID,
		"event_type", string(n.EventType),
		"recipient_id", n.RecipientID,
		"subject", n.Subject,
	)
	return notification.NewSuccessResult(notification.ChannelLog)
}
