package memory

import (
	"context"
	"time"

	"github.com/coursehub/coursehub-core/internal/domain/progress"
	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

// ProgressRepository implements progress.Repository.
type ProgressRepository struct {
	s *Store
}

var _ progress.Repository = (*ProgressRepository)(nil)

// Insert implements progress.Repository.
func (r *ProgressRepository) Insert(ctx context.Context, c progress.LessonCompletion) (bool, error) {
	var inserted bool
	err := r.s.write(ctx, func(d *state) error {
		if _, ok := d.enrollments[c.EnrollmentID]; !ok {
			return shared.ErrEnrollmentNotFound
		}
		done, ok := d.completions[c.EnrollmentID]
		if !ok {
			done = make(map[string]time.Time)
			d.completions[c.EnrollmentID] = done
		}
		if _, exists := done[c.LessonID]; exists {
			return nil
		}
		done[c.LessonID] = c.CompletedAt
		inserted = true
		return nil
	})
	return inserted, err
}

// CompletedLessonIDs implements progress.Repository.
func (r *ProgressRepository) CompletedLessonIDs(ctx context.Context, enrollmentID string) (map[string]bool, error) {
	out := make(map[string]bool)
	err := r.s.read(ctx, func(d *state) error {
		for id := range d.completions[enrollmentID] {
			out[id] = true
		}
		return nil
	})
	return out, err
}
