// Package eventhandler contains domain event handlers.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/coursehub/coursehub-core/internal/domain/notification"
	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON NOTIFICATION EVENT HANDLER
// Forwards PaymentSubmitted, PaymentApproved, PaymentRejected and
// EnrollmentCompleted to the notification collaborator. The core never waits
// on delivery; a failed delivery is logged and returned to the bus.
// ═══════════════════════════════════════════════════════════════════════════

// NotificationConfig contains handler configuration.
type NotificationConfig struct {
	// Timeout bounds one delivery.
	Timeout time.Duration
}

// DefaultNotificationConfig returns default configuration.
func DefaultNotificationConfig() NotificationConfig {
	return NotificationConfig{Timeout: 10 * time.Second}
}

// OnNotificationEventHandler turns domain events into notifications.
type OnNotificationEventHandler struct {
	sender notification.Sender
	logger *slog.Logger
	config NotificationConfig
}

// NewOnNotificationEventHandler creates a new OnNotificationEventHandler.
func NewOnNotificationEventHandler(sender notification.Sender, logger *slog.Logger, config NotificationConfig) *OnNotificationEventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config = DefaultNotificationConfig()
	}
	return &OnNotificationEventHandler{
		sender: sender,
		logger: logger.With("handler", "on_notification_event"),
		config: config,
	}
}

// Register subscribes the handler to every notification event.
func (h *OnNotificationEventHandler) Register(bus shared.EventSubscriber) error {
	for _, t := range shared.NotificationEvents {
		if err := bus.Subscribe(t, h.Handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", t, err)
		}
	}
	return nil
}

// Handle implements shared.EventHandler.
func (h *OnNotificationEventHandler) Handle(event shared.Event) error {
	n, ok := notification.FromEvent(uuid.NewString(), event)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	result := h.sender.Send(ctx, n)
	if !result.Success {
		h.logger.Warn("notification delivery failed",
			"event_type", string(event.EventType()),
			"recipient_id", n.RecipientID,
			"channel", string(result.Channel),
			"retryable", result.Retryable,
			"error", result.Error,
		)
		return fmt.Errorf("deliver %s: %w", event.EventType(), result.Error)
	}

	h.logger.Debug("notification delivered",
		"event_type", string(event.EventType()),
		"recipient_id", n.RecipientID,
		"channel", string(result.Channel),
	)
	return nil
}
