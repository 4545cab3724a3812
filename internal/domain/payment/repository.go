package payment

import (
	"context"

	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

// Repository is the storage contract for payments.
type Repository interface {
	// Create stores a pending payment. Returns ErrPendingPaymentExists if another
	// pending payment exists for the same (student, course).
	Create(ctx context.Context, p *Payment) error

	// GetByID returns ErrPaymentNotFound for unknown ids.
	GetByID(ctx context.Context, id string) (*Payment, error)

	// CompareAndSwap moves a pending payment to a terminal state. It returns
	// ErrPaymentAlreadyReviewed if the row is no longer pending.
	CompareAndSwap(ctx context.Context, id string, to State) error

	// ListByStudentCourse returns the pair's history, newest first.
	ListByStudentCourse(ctx context.Context, studentID, courseID string) ([]*Payment, error)

	// ListPending returns pending payments, oldest first.
	ListPending(ctx context.Context, opts shared.ListOptions) ([]*Payment, error)
}
