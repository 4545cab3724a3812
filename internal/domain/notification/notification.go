// Package notification describes what this core hands to the downstream
// notification collaborator. Delivery itself (email, chat, push) lives outside.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHANNEL TYPE
// ══════════════════════════════════════════════════════════════════════════════

// ChannelType identifies a delivery transport.
type ChannelType string

const (
	// ChannelWebhook posts JSON to a configured URL.
	ChannelWebhook ChannelType = "webhook"
	// ChannelLog only writes the notification to the log.
	ChannelLog ChannelType = "log"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION
// ══════════════════════════════════════════════════════════════════════════════

// Notification is one message addressed to a student.
type Notification struct {
	ID          string                 `json:"id"`
	EventType   shared.EventType       `json:"event_type"`
	RecipientID string                 `json:"recipient_id"`
	Subject     string                 `json:"subject"`
	Body        string                 `json:"body"`
	Data        map[string]interface{} `json:"data"`
	OccurredAt  time.Time              `json:"occurred_at"`
}

// FromEvent builds the notification for one of the notification events. The
// second result is false for events that do not notify anyone.
func FromEvent(id string, e shared.Event) (*Notification, bool) {
	n := &Notification{
		ID:          id,
		EventType:   e.EventType(),
		RecipientID: shared.PayloadString(e, "student_id"),
		Data:        e.Payload(),
		OccurredAt:  e.OccurredAt(),
	}
	courseID := shared.PayloadString(e, "course_id")

	switch e.EventType() {
	case shared.EventPaymentSubmitted:
		n.Subject = "Payment received"
		n.Body = fmt.Sprintf("Your payment for course %s was received and is waiting for review.", courseID)
	case shared.EventPaymentApproved:
		n.Subject = "Payment approved"
		n.Body = fmt.Sprintf("Your payment was approved. Course %s is now unlocked.", courseID)
	case shared.EventPaymentRejected:
		n.Subject = "Payment rejected"
		n.Body = fmt.Sprintf("Your payment for course %s was rejected: %s. You can submit a new one.",
			courseID, shared.PayloadString(e, "reason"))
	case shared.EventEnrollmentCompleted:
		n.Subject = "Course completed"
		n.Body = fmt.Sprintf("Congratulations, you completed course %s.", courseID)
	default:
		return nil, false
	}
	if n.RecipientID == "" {
		return nil, false
	}
	return n, true
}

// ══════════════════════════════════════════════════════════════════════════════
// DELIVERY
// ══════════════════════════════════════════════════════════════════════════════

// DeliveryResult describes one delivery attempt.
type DeliveryResult struct {
	Success     bool
	Channel     ChannelType
	DeliveredAt time.Time
	Error       error
	Retryable   bool
}

// NewSuccessResult creates a successful delivery result.
func NewSuccessResult(channel ChannelType) DeliveryResult {
	return DeliveryResult{Success: true, Channel: channel, DeliveredAt: time.Now().UTC()}
}

// NewFailureResult creates a failed delivery result.
func NewFailureResult(channel ChannelType, err error, retryable bool) DeliveryResult {
	return DeliveryResult{Channel: channel, DeliveredAt: time.Now().UTC(), Error: err, Retryable: retryable}
}

// Sender delivers notifications. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, n *Notification) DeliveryResult
}
