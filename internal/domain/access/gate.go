// Package access decides whether a student may view or complete a lesson.
// The same decision guards content reads and progress writes.
package access

import (
	"context"

	"github.com/coursehub/coursehub-core/internal/domain/catalog"
	"github.com/coursehub/coursehub-core/internal/domain/enrollment"
	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

// Reason explains a decision.
type Reason string

const (
	ReasonFreePreview    Reason = "free_preview"
	ReasonEnrolled       Reason = "enrolled"
	ReasonNotEnrolled    Reason = "not_enrolled"
	ReasonPaymentPending Reason = "payment_pending"
)

// Decision is the result of an access check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`
}

// Err converts a denial into the matching Forbidden error.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	if d.Reason == ReasonPaymentPending {
		return shared.ErrAccessPaymentPending
	}
	return shared.ErrAccessNotEnrolled
}

// Decide applies the access rule: free lessons are open to everyone, other
// lessons need an active or completed enrollment in the lesson's course. e may
// be nil when the student has no enrollment.
func Decide(lesson *catalog.Lesson, e *enrollment.Enrollment) Decision {
	if lesson.IsFree {
		return Decision{Allowed: true, Reason: ReasonFreePreview}
	}
	if e == nil || e.CourseID != lesson.CourseID {
		return Decision{Allowed: false, Reason: ReasonNotEnrolled}
	}
	if e.HasAccess() {
		return Decision{Allowed: true, Reason: ReasonEnrolled}
	}
	return Decision{Allowed: false, Reason: ReasonPaymentPending}
}

// EnrollmentLookup is the subset of the enrollment repository the gate needs.
type EnrollmentLookup interface {
	GetByStudentCourse(ctx context.Context, studentID, courseID string) (*enrollment.Enrollment, error)
}

// Gate resolves the student's enrollment and applies Decide.
type Gate struct {
	enrollments EnrollmentLookup
}

// NewGate creates a new Gate.
func NewGate(enrollments EnrollmentLookup) *Gate {
	return &Gate{enrollments: enrollments}
}

// CanAccessLesson returns the decision for studentID on lesson.
func (g *Gate) CanAccessLesson(ctx context.Context, studentID string, lesson *catalog.Lesson) (Decision, error) {
	if lesson.IsFree {
		return Decide(lesson, nil), nil
	}
	e, err := g.enrollments.GetByStudentCourse(ctx, studentID, lesson.CourseID)
	if err != nil {
		if shared.IsNotFound(err) {
			return Decide(lesson, nil), nil
		}
		return Decision{}, err
	}
	return Decide(lesson, e), nil
}
