// Package payment models proof-of-payment submission and human review.
// A payment row moves from Pending to exactly one terminal state.
package payment

import (
	"strings"
	"time"

	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

// Status is the persisted discriminator of State.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// IsValid checks that the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// STATE VARIANTS
// ══════════════════════════════════════════════════════════════════════════════

// State is a closed set of payment states. A rejected state without a reason
// or a reviewed state without a reviewer cannot be constructed.
type State interface {
	Status() Status
	isState()
}

// Pending awaits review.
type Pending struct{}

// Approved unlocked the course.
type Approved struct {
	ReviewerID string
	ReviewedAt time.Time
}

// Rejected was declined; the student may submit again.
type Rejected struct {
	ReviewerID string
	ReviewedAt time.Time
	Reason     string
}

func (Pending) Status() Status  { return StatusPending }
func (Approved) Status() Status { return StatusApproved }
func (Rejected) Status() Status { return StatusRejected }

func (Pending) isState()  {}
func (Approved) isState() {}
func (Rejected) isState() {}

// StateFromRecord rebuilds a State from flat storage columns.
func StateFromRecord(status Status, reviewerID string, reviewedAt *time.Time, reason string) (State, error) {
	switch status {
	case StatusPending:
		return Pending{}, nil
	case StatusApproved:
		if reviewerID == "" || reviewedAt == nil {
			return nil, shared.Validationf("payment", "StateFromRecord", "approved payment without reviewer")
		}
		return Approved{ReviewerID: reviewerID, ReviewedAt: *reviewedAt}, nil
	case StatusRejected:
		if reviewerID == "" || reviewedAt == nil || reason == "" {
			return nil, shared.Validationf("payment", "StateFromRecord", "rejected payment without reviewer or reason")
		}
		return Rejected{ReviewerID: reviewerID, ReviewedAt: *reviewedAt, Reason: reason}, nil
	default:
		return nil, shared.Validationf("payment", "StateFromRecord", "unknown status %q", status)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: PAYMENT
// ══════════════════════════════════════════════════════════════════════════════

// Payment is one submitted proof of payment for a paid course.
type Payment struct {
	ID           string
	StudentID    string
	CourseID     string
	EnrollmentID string
	Amount       shared.Money
	ReceiptRef   shared.ReceiptRef
	State        State
	CreatedAt    time.Time
}

// NewPayment creates a pending payment after validating the receipt reference.
func NewPayment(id, studentID, courseID, enrollmentID string, amount shared.Money, ref shared.ReceiptRef, now time.Time) (*Payment, error) {
	if id == "" || studentID == "" || courseID == "" {
		return nil, shared.Validationf("payment", "NewPayment", "payment, student and course ids are required")
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return &Payment{
		ID:           id,
		StudentID:    studentID,
		CourseID:     courseID,
		EnrollmentID: enrollmentID,
		Amount:       amount,
		ReceiptRef:   ref,
		State:        Pending{},
		CreatedAt:    now,
	}, nil
}

// Status returns the discriminator of the current state.
func (p *Payment) Status() Status {
	if p.State == nil {
		return StatusPending
	}
	return p.State.Status()
}

// IsPending reports whether the payment still awaits review.
func (p *Payment) IsPending() bool {
	return p.Status() == StatusPending
}

// Approve computes the approved state. The caller persists it with a
// compare-and-swap guarded by the pending precondition.
func (p *Payment) Approve(reviewerID string, at time.Time) (Approved, error) {
	if !p.IsPending() {
		return Approved{}, shared.ErrPaymentAlreadyReviewed
	}
	if reviewerID == "" {
		return Approved{}, shared.Validationf("payment", "Approve", "reviewer id is required")
	}
	return Approved{ReviewerID: reviewerID, ReviewedAt: at}, nil
}

// Reject computes the rejected state. An empty reason is a validation error
// regardless of the current state.
func (p *Payment) Reject(reviewerID, reason string, at time.Time) (Rejected, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Rejected{}, shared.ErrRejectionReason
	}
	if !p.IsPending() {
		return Rejected{}, shared.ErrPaymentAlreadyReviewed
	}
	if reviewerID == "" {
		return Rejected{}, shared.Validationf("payment", "Reject", "reviewer id is required")
	}
	return Rejected{ReviewerID: reviewerID, ReviewedAt: at, Reason: reason}, nil
}

// CheckAmount validates a submitted amount against the course price.
func CheckAmount(price, submitted shared.Money) error {
	if submitted.Amount != price.Amount {
		return shared.ErrAmountMismatch
	}
	if submitted.Currency != "" && submitted.Currency != price.Currency {
		return shared.ErrCurrencyMismatch
	}
	return nil
}

// ReviewInfo flattens the state for storage and transport.
type ReviewInfo struct {
	ReviewerID string
	ReviewedAt *time.Time
	Reason     string
}

// Review flattens the current state.
func (p *Payment) Review() ReviewInfo {
	switch s := p.State.(type) {
	case Approved:
		at := s.ReviewedAt
		return ReviewInfo{ReviewerID: s.ReviewerID, ReviewedAt: &at}
	case Rejected:
		at := s.ReviewedAt
		return ReviewInfo{ReviewerID: s.ReviewerID, ReviewedAt: &at, Reason: s.Reason}
	default:
		return ReviewInfo{}
	}
}
