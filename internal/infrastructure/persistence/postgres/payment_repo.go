package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/coursehub/coursehub-core/internal/domain/payment"
	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PAYMENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// PaymentRepository implements payment.Repository for PostgreSQL. The partial
// unique index on pending rows backs the one-pending-per-pair rule, and review
// is a conditional UPDATE so exactly one reviewer wins.
type PaymentRepository struct {
	conn *Connection
}

var _ payment.Repository = (*PaymentRepository)(nil)

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(conn *Connection) *PaymentRepository {
	return &PaymentRepository{conn: conn}
}

const paymentColumns = `
	id, student_id, course_id, enrollment_id, amount, currency, receipt_ref,
	status, reviewer_id, reviewed_at, rejection_reason, created_at`

// Create implements payment.Repository.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	review := p.Review()
	_, err := r.conn.Exec(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		p.ID, p.StudentID, p.CourseID, p.EnrollmentID,
		p.Amount.Amount, string(p.Amount.Currency), string(p.ReceiptRef),
		string(p.Status()), review.ReviewerID, review.ReviewedAt, review.Reason, p.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) && constraintName(err) == "unique_pending_payment" {
			return shared.ErrPendingPaymentExists
		}
		return shared.Unavailable("payment", "Create", fmt.Errorf("failed to insert payment: %w", err))
	}
	return nil
}

// GetByID implements payment.Repository.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*payment.Payment, error) {
	p, err := scanPayment(r.conn.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrPaymentNotFound
		}
		return nil, shared.Unavailable("payment", "GetByID", err)
	}
	return p, nil
}

// CompareAndSwap implements payment.Repository.
func (r *PaymentRepository) CompareAndSwap(ctx context.Context, id string, to payment.State) error {
	var reviewerID, reason string
	var reviewedAt time.Time
	switch s := to.(type) {
	case payment.Approved:
		reviewerID, reviewedAt = s.ReviewerID, s.ReviewedAt
	case payment.Rejected:
		reviewerID, reviewedAt, reason = s.ReviewerID, s.ReviewedAt, s.Reason
	default:
		return shared.ErrPaymentAlreadyReviewed
	}

	tag, err := r.conn.Exec(ctx, `
		UPDATE payments
		SET status = $2, reviewer_id = $3, reviewed_at = $4, rejection_reason = $5
		WHERE id = $1 AND status = 'pending'
	`, id, string(to.Status()), reviewerID, reviewedAt, reason)
	if err != nil {
		return shared.Unavailable("payment", "CompareAndSwap", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.conn.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM payments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return shared.Unavailable("payment", "CompareAndSwap", err)
	}
	if !exists {
		return shared.ErrPaymentNotFound
	}
	return shared.ErrPaymentAlreadyReviewed
}

// ListByStudentCourse implements payment.Repository.
func (r *PaymentRepository) ListByStudentCourse(ctx context.Context, studentID, courseID string) ([]*payment.Payment, error) {
	return r.list(ctx, "ListByStudentCourse", `
		SELECT `+paymentColumns+` FROM payments
		WHERE student_id = $1 AND course_id = $2
		ORDER BY created_at DESC, id DESC
	`, studentID, courseID)
}

// ListPending implements payment.Repository.
func (r *PaymentRepository) ListPending(ctx context.Context, opts shared.ListOptions) ([]*payment.Payment, error) {
	opts = opts.Normalize()
	return r.list(ctx, "ListPending", `
		SELECT `+paymentColumns+` FROM payments
		WHERE status = 'pending'
		ORDER BY created_at ASC, id ASC
		LIMIT $1 OFFSET $2
	`, opts.Limit, opts.Offset)
}

func (r *PaymentRepository) list(ctx context.Context, op, query string, args ...interface{}) ([]*payment.Payment, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Unavailable("payment", op, err)
	}
	defer rows.Close()

	out := make([]*payment.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, shared.Unavailable("payment", op, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Unavailable("payment", op, err)
	}
	return out, nil
}

func scanPayment(row pgx.Row) (*payment.Payment, error) {
	var (
		p                           payment.Payment
		currency, ref, status       string
		reviewerID, rejectionReason string
		reviewedAt                  *time.Time
	)
	err := row.Scan(
		&p.ID, &p.StudentID, &p.CourseID, &p.EnrollmentID, &p.Amount.Amount, &currency, &ref,
		&status, &reviewerID, &reviewedAt, &rejectionReason, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Amount.Currency = shared.Currency(currency)
	p.ReceiptRef = shared.ReceiptRef(ref)

	state, err := payment.StateFromRecord(payment.Status(status), reviewerID, reviewedAt, rejectionReason)
	if err != nil {
		return nil, err
	}
	p.State = state
	return &p, nil
}
