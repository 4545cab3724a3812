// Package enrollment tracks one record per (student, course): its lifecycle
// state, the current-lesson pointer and the persisted progress percentage.
package enrollment

import (
	"time"

	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

// Status is the persisted discriminator of State.
type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusActive         Status = "active"
	StatusCompleted      Status = "completed"
)

// IsValid checks that the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusPendingPayment, StatusActive, StatusCompleted:
		return true
	default:
		return false
	}
}

// GrantsAccess reports whether the status unlocks paid lessons.
func (s Status) GrantsAccess() bool {
	return s == StatusActive || s == StatusCompleted
}

// ══════════════════════════════════════════════════════════════════════════════
// STATE VARIANTS
// ══════════════════════════════════════════════════════════════════════════════

// State is a closed set of enrollment states.
type State interface {
	Status() Status
	isState()
}

// PendingPayment waits for an approved payment.
type PendingPayment struct{}

// Active grants access. PaymentID is empty for free courses.
type Active struct {
	ActivatedAt time.Time
	PaymentID   string
}

// Completed is terminal.
type Completed struct {
	ActivatedAt time.Time
	PaymentID   string
	CompletedAt time.Time
}

func (PendingPayment) Status() Status { return StatusPendingPayment }
func (Active) Status() Status         { return StatusActive }
func (Completed) Status() Status      { return StatusCompleted }

func (PendingPayment) isState() {}
func (Active) isState()         {}
func (Completed) isState()      {}

// StateFromRecord rebuilds a State from flat storage columns.
func StateFromRecord(status Status, activatedAt *time.Time, paymentID string, completedAt *time.Time) (State, error) {
	switch status {
	case StatusPendingPayment:
		return PendingPayment{}, nil
	case StatusActive:
		if activatedAt == nil {
			return nil, shared.Validationf("enrollment", "StateFromRecord", "active enrollment without activation time")
		}
		return Active{ActivatedAt: *activatedAt, PaymentID: paymentID}, nil
	case StatusCompleted:
		if activatedAt == nil || completedAt == nil {
			return nil, shared.Validationf("enrollment", "StateFromRecord", "completed enrollment without timestamps")
		}
		return Completed{ActivatedAt: *activatedAt, PaymentID: paymentID, CompletedAt: *completedAt}, nil
	default:
		return nil, shared.Validationf("enrollment", "StateFromRecord", "unknown status %q", status)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: ENROLLMENT
// ══════════════════════════════════════════════════════════════════════════════

// Enrollment is a student's access and progress record for one course.
type Enrollment struct {
	ID              string
	StudentID       string
	CourseID        string
	State           State
	CurrentLessonID string
	Percentage      int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewFree creates an enrollment that is active immediately.
func NewFree(id, studentID, courseID, firstLessonID string, now time.Time) *Enrollment {
	return &Enrollment{
		ID:              id,
		StudentID:       studentID,
		CourseID:        courseID,
		State:           Active{ActivatedAt: now},
		CurrentLessonID: firstLessonID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// NewPendingPayment creates an enrollment that waits for payment approval.
func NewPendingPayment(id, studentID, courseID, firstLessonID string, now time.Time) *Enrollment {
	return &Enrollment{
		ID:              id,
		StudentID:       studentID,
		CourseID:        courseID,
		State:           PendingPayment{},
		CurrentLessonID: firstLessonID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Status returns the discriminator of the current state.
func (e *Enrollment) Status() Status {
	if e.State == nil {
		return StatusPendingPayment
	}
	return e.State.Status()
}

// HasAccess reports whether paid lessons are unlocked.
func (e *Enrollment) HasAccess() bool {
	return e.Status().GrantsAccess()
}

// IsCompleted reports whether the terminal state was reached.
func (e *Enrollment) IsCompleted() bool {
	return e.Status() == StatusCompleted
}

// CompletedAt returns the completion time, if any.
func (e *Enrollment) CompletedAt() *time.Time {
	if c, ok := e.State.(Completed); ok {
		at := c.CompletedAt
		return &at
	}
	return nil
}

// ActivatedAt returns the activation time, if any.
func (e *Enrollment) ActivatedAt() *time.Time {
	switch s := e.State.(type) {
	case Active:
		at := s.ActivatedAt
		return &at
	case Completed:
		at := s.ActivatedAt
		return &at
	}
	return nil
}

// PaymentID returns the approved payment that unlocked the course, if any.
func (e *Enrollment) PaymentID() string {
	switch s := e.State.(type) {
	case Active:
		return s.PaymentID
	case Completed:
		return s.PaymentID
	}
	return ""
}

// Activate moves pending_payment → active.
func (e *Enrollment) Activate(paymentID string, at time.Time) error {
	if _, ok := e.State.(PendingPayment); !ok {
		return shared.ErrInvalidTransition
	}
	e.State = Active{ActivatedAt: at, PaymentID: paymentID}
	e.UpdatedAt = at
	return nil
}

// Complete moves active → completed and fixes the percentage at 100.
func (e *Enrollment) Complete(at time.Time) error {
	a, ok := e.State.(Active)
	if !ok {
		return shared.ErrInvalidTransition
	}
	e.State = Completed{ActivatedAt: a.ActivatedAt, PaymentID: a.PaymentID, CompletedAt: at}
	e.Percentage = 100
	e.UpdatedAt = at
	return nil
}

// RecordProgress stores a recomputed percentage. The stored value never
// decreases and a completed enrollment is left untouched.
func (e *Enrollment) RecordProgress(percentage int, currentLessonID string, at time.Time) {
	if e.IsCompleted() {
		return
	}
	if percentage > e.Percentage {
		e.Percentage = percentage
	}
	if currentLessonID != "" {
		e.CurrentLessonID = currentLessonID
	}
	e.UpdatedAt = at
}
