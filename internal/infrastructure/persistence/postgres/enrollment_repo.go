package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/coursehub/coursehub-core/internal/domain/enrollment"
	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// EnrollmentRepository implements enrollment.Repository for PostgreSQL.
type EnrollmentRepository struct {
	conn *Connection
}

var _ enrollment.Repository = (*EnrollmentRepository)(nil)

// NewEnrollmentRepository creates a new EnrollmentRepository.
func NewEnrollmentRepository(conn *Connection) *EnrollmentRepository {
	return &EnrollmentRepository{conn: conn}
}

const enrollmentColumns = `
	id, student_id, course_id, status, activated_at, payment_id, completed_at,
	current_lesson_id, percentage, created_at, updated_at`

// GetOrCreate implements enrollment.Repository. The unique (student, course)
// constraint decides the winner; losers read the winner's row.
func (r *EnrollmentRepository) GetOrCreate(ctx context.Context, e *enrollment.Enrollment) (*enrollment.Enrollment, bool, error) {
	tag, err := r.conn.Exec(ctx, `
		INSERT INTO enrollments (`+enrollmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (student_id, course_id) DO NOTHING
	`,
		e.ID, e.StudentID, e.CourseID, string(e.Status()), e.ActivatedAt(), e.PaymentID(), e.CompletedAt(),
		e.CurrentLessonID, e.Percentage, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return nil, false, shared.Unavailable("enrollment", "GetOrCreate", fmt.Errorf("failed to insert enrollment: %w", err))
	}
	if tag.RowsAffected() == 1 {
		stored := *e
		return &stored, true, nil
	}

	existing, err := r.GetByStudentCourse(ctx, e.StudentID, e.CourseID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetByID implements enrollment.Repository.
func (r *EnrollmentRepository) GetByID(ctx context.Context, id string) (*enrollment.Enrollment, error) {
	return r.get(ctx, "GetByID", shared.ErrEnrollmentNotFound,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE id = $1`, id)
}

// GetByIDForUpdate implements enrollment.Repository.
func (r *EnrollmentRepository) GetByIDForUpdate(ctx context.Context, id string) (*enrollment.Enrollment, error) {
	return r.get(ctx, "GetByIDForUpdate", shared.ErrEnrollmentNotFound,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE id = $1 FOR UPDATE`, id)
}

// GetByStudentCourse implements enrollment.Repository.
func (r *EnrollmentRepository) GetByStudentCourse(ctx context.Context, studentID, courseID string) (*enrollment.Enrollment, error) {
	return r.get(ctx, "GetByStudentCourse", shared.ErrNotEnrolled,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE student_id = $1 AND course_id = $2`, studentID, courseID)
}

func (r *EnrollmentRepository) get(ctx context.Context, op string, notFound error, query string, args ...interface{}) (*enrollment.Enrollment, error) {
	e, err := scanEnrollment(r.conn.QueryRow(ctx, query, args...))
	if err != nil {
		if IsNoRows(err) {
			return nil, notFound
		}
		return nil, shared.Unavailable("enrollment", op, err)
	}
	return e, nil
}

// ActivateIfPending implements enrollment.Repository.
func (r *EnrollmentRepository) ActivateIfPending(ctx context.Context, id string, state enrollment.Active) (bool, error) {
	tag, err := r.conn.Exec(ctx, `
		UPDATE enrollments
		SET status = 'active', activated_at = $2, payment_id = $3, updated_at = $2
		WHERE id = $1 AND status = 'pending_payment'
	`, id, state.ActivatedAt, state.PaymentID)
	if err != nil {
		return false, shared.Unavailable("enrollment", "ActivateIfPending", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Update implements enrollment.Repository.
func (r *EnrollmentRepository) Update(ctx context.Context, e *enrollment.Enrollment) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE enrollments
		SET status = $2, activated_at = $3, payment_id = $4, completed_at = $5,
			current_lesson_id = $6, percentage = GREATEST(percentage, $7), updated_at = $8
		WHERE id = $1
	`,
		e.ID, string(e.Status()), e.ActivatedAt(), e.PaymentID(), e.CompletedAt(),
		e.CurrentLessonID, e.Percentage, e.UpdatedAt,
	)
	if err != nil {
		return shared.Unavailable("enrollment", "Update", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrEnrollmentNotFound
	}
	return nil
}

// ListByStudent implements enrollment.Repository.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string, opts shared.ListOptions) ([]*enrollment.Enrollment, error) {
	opts = opts.Normalize()
	rows, err := r.conn.Query(ctx, `
		SELECT `+enrollmentColumns+` FROM enrollments
		WHERE student_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, studentID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, shared.Unavailable("enrollment", "ListByStudent", err)
	}
	defer rows.Close()

	out := make([]*enrollment.Enrollment, 0)
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, shared.Unavailable("enrollment", "ListByStudent", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Unavailable("enrollment", "ListByStudent", err)
	}
	return out, nil
}

func scanEnrollment(row pgx.Row) (*enrollment.Enrollment, error) {
	var (
		e                        enrollment.Enrollment
		status, paymentID        string
		activatedAt, completedAt *time.Time
	)
	err := row.Scan(
		&e.ID, &e.StudentID, &e.CourseID, &status, &activatedAt, &paymentID, &completedAt,
		&e.CurrentLessonID, &e.Percentage, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	state, err := enrollment.StateFromRecord(enrollment.Status(status), activatedAt, paymentID, completedAt)
	if err != nil {
		return nil, err
	}
	e.State = state
	return &e, nil
}
