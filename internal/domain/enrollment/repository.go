package enrollment

import (
	"context"

	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

// Repository is the storage contract for enrollments.
type Repository interface {
	// GetOrCreate inserts candidate unless an enrollment for the same
	// (student, course) exists, and returns the stored row. created reports
	// whether candidate was inserted. Concurrent callers converge on one row.
	GetOrCreate(ctx context.Context, candidate *Enrollment) (e *Enrollment, created bool, err error)

	// GetByID returns ErrEnrollmentNotFound for unknown ids.
	GetByID(ctx context.Context, id string) (*Enrollment, error)

	// GetByIDForUpdate is GetByID plus a row lock held until the surrounding
	// transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*Enrollment, error)

	// GetByStudentCourse returns ErrNotEnrolled if no row exists.
	GetByStudentCourse(ctx context.Context, studentID, courseID string) (*Enrollment, error)

	// ActivateIfPending moves the enrollment from pending_payment to active with
	// a conditional update. activated is false if it was not pending.
	ActivateIfPending(ctx context.Context, id string, state Active) (activated bool, err error)

	// Update persists state, pointer and percentage.
	Update(ctx context.Context, e *Enrollment) error

	// ListByStudent returns the student's enrollments, newest first.
	ListByStudent(ctx context.Context, studentID string, opts shared.ListOptions) ([]*Enrollment, error)
}
