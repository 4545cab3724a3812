package command

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coursehub/coursehub-core/internal/domain/enrollment"
	"github.com/coursehub/coursehub-core/internal/domain/payment"
	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REVIEW PAYMENT COMMANDS
// Approve and reject both end in a compare-and-swap on the pending status, so
// of two racing reviews exactly one wins and the other gets AlreadyReviewed.
// ══════════════════════════════════════════════════════════════════════════════

// ApprovePaymentCommand approves a pending payment.
type ApprovePaymentCommand struct {
	PaymentID  string
	ReviewerID string
}

// RejectPaymentCommand rejects a pending payment. Reason is mandatory.
type RejectPaymentCommand struct {
	PaymentID  string
	ReviewerID string
	Reason     string
}

// Validate validates the command.
func (c ApprovePaymentCommand) Validate() error {
	if c.PaymentID == "" {
		return shared.Validationf("payment", "Approve", "payment_id is required")
	}
	if c.ReviewerID == "" {
		return shared.Validationf("payment", "Approve", "reviewer_id is required")
	}
	return nil
}

// Validate validates the command.
func (c RejectPaymentCommand) Validate() error {
	if strings.TrimSpace(c.Reason) == "" {
		return shared.ErrRejectionReason
	}
	if c.PaymentID == "" {
		return shared.Validationf("payment", "Reject", "payment_id is required")
	}
	if c.ReviewerID == "" {
		return shared.Validationf("payment", "Reject", "reviewer_id is required")
	}
	return nil
}

// ReviewPaymentResult contains the reviewed payment and its enrollment.
type ReviewPaymentResult struct {
	Payment    *payment.Payment
	Enrollment *enrollment.Enrollment
}

// ReviewPaymentHandler handles approval and rejection.
type ReviewPaymentHandler struct {
	tx          shared.Transactor
	payments    payment.Repository
	enrollments enrollment.Repository
	events      shared.EventRecorder
	now         shared.Clock
}

// NewReviewPaymentHandler creates a new ReviewPaymentHandler.
func NewReviewPaymentHandler(
	tx shared.Transactor,
	payments payment.Repository,
	enrollments enrollment.Repository,
	events shared.EventRecorder,
	clock shared.Clock,
) *ReviewPaymentHandler {
	if clock == nil {
		clock = shared.SystemClock
	}
	return &ReviewPaymentHandler{
		tx:          tx,
		payments:    payments,
		enrollments: enrollments,
		events:      events,
		now:         clock,
	}
}

// Approve marks the payment approved and activates the linked enrollment in
// the same transaction.
func (h *ReviewPaymentHandler) Approve(ctx context.Context, cmd ApprovePaymentCommand) (*ReviewPaymentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	now := h.now()
	result := &ReviewPaymentResult{}

	err := h.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := h.payments.GetByID(ctx, cmd.PaymentID)
		if err != nil {
			return err
		}
		approved, err := p.Approve(cmd.ReviewerID, now)
		if err != nil {
			return err
		}
		if err := h.payments.CompareAndSwap(ctx, p.ID, approved); err != nil {
			return err
		}
		p.State = approved

		e, err := h.linkedEnrollment(ctx, p, now)
		if err != nil {
			return err
		}
		activated, err := h.enrollments.ActivateIfPending(ctx, e.ID, enrollment.Active{ActivatedAt: now, PaymentID: p.ID})
		if err != nil {
			return err
		}

		events := []shared.Event{
			shared.NewPaymentApprovedEvent(p.ID, p.StudentID, p.CourseID, cmd.ReviewerID, now),
		}
		if activated {
			if e, err = h.enrollments.GetByID(ctx, e.ID); err != nil {
				return err
			}
			events = append(events, shared.NewEnrollmentEvent(shared.EventEnrollmentActivated,
				e.ID, e.StudentID, e.CourseID, string(e.Status()), now))
		}
		if err := h.events.Record(ctx, events...); err != nil {
			return err
		}

		result.Payment = p
		result.Enrollment = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Reject marks the payment rejected. The enrollment stays pending_payment so
// the student can submit again.
func (h *ReviewPaymentHandler) Reject(ctx context.Context, cmd RejectPaymentCommand) (*ReviewPaymentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	now := h.now()
	result := &ReviewPaymentResult{}

	err := h.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := h.payments.GetByID(ctx, cmd.PaymentID)
		if err != nil {
			return err
		}
		rejected, err := p.Reject(cmd.ReviewerID, cmd.Reason, now)
		if err != nil {
			return err
		}
		if err := h.payments.CompareAndSwap(ctx, p.ID, rejected); err != nil {
			return err
		}
		p.State = rejected

		if err := h.events.Record(ctx, shared.NewPaymentRejectedEvent(
			p.ID, p.StudentID, p.CourseID, cmd.ReviewerID, rejected.Reason, now)); err != nil {
			return err
		}

		result.Payment = p
		e, err := h.enrollments.GetByStudentCourse(ctx, p.StudentID, p.CourseID)
		if err == nil {
			result.Enrollment = e
		} else if !shared.IsNotFound(err) {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// linkedEnrollment finds the payment's enrollment, creating a pending one if
// it is missing.
func (h *ReviewPaymentHandler) linkedEnrollment(ctx context.Context, p *payment.Payment, now time.Time) (*enrollment.Enrollment, error) {
	if p.EnrollmentID != "" {
		e, err := h.enrollments.GetByID(ctx, p.EnrollmentID)
		if err == nil {
			return e, nil
		}
		if !shared.IsNotFound(err) {
			return nil, err
		}
	}
	e, _, err := h.enrollments.GetOrCreate(ctx,
		enrollment.NewPendingPayment(uuid.NewString(), p.StudentID, p.CourseID, "", now))
	return e, err
}
