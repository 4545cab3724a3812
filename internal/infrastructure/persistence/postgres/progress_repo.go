package postgres

import (
	"context"

	"github.com/coursehub/coursehub-core/internal/domain/progress"
	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

// ProgressRepository implements progress.Repository for PostgreSQL.
type ProgressRepository struct {
	conn *Connection
}

var _ progress.Repository = (*ProgressRepository)(nil)

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{conn: conn}
}

// Insert implements progress.Repository. The primary key makes repeats no-ops.
func (r *ProgressRepository) Insert(ctx context.Context, c progress.LessonCompletion) (bool, error) {
	tag, err := r.conn.Exec(ctx, `
		INSERT INTO lesson_completions (enrollment_id, lesson_id, completed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (enrollment_id, lesson_id) DO NOTHING
	`, c.EnrollmentID, c.LessonID, c.CompletedAt)
	if err != nil {
		return false, shared.Unavailable("progress", "Insert", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CompletedLessonIDs implements progress.Repository.
func (r *ProgressRepository) CompletedLessonIDs(ctx context.Context, enrollmentID string) (map[string]bool, error) {
	rows, err := r.conn.Query(ctx, `SELECT lesson_id FROM lesson_completions WHERE enrollment_id = $1`, enrollmentID)
	if err != nil {
		return nil, shared.Unavailable("progress", "CompletedLessonIDs", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, shared.Unavailable("progress", "CompletedLessonIDs", err)
		}
		done[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Unavailable("progress", "CompletedLessonIDs", err)
	}
	return done, nil
}
