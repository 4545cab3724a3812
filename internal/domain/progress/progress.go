// Package progress records per-lesson completion facts and derives the
// completion percentage of an enrollment.
package progress

import (
	"context"
	"time"

	"github.com/coursehub/coursehub-core/internal/domain/catalog"
	"github.com/coursehub/coursehub-core/internal/domain/enrollment"
)

// LessonCompletion is an append-only fact that a lesson was finished.
type LessonCompletion struct {
	EnrollmentID string
	LessonID     string
	CompletedAt  time.Time
}

// Snapshot is the read model returned by getProgress.
type Snapshot struct {
	EnrollmentID    string `json:"enrollment_id"`
	CompletedCount  int    `json:"completed_count"`
	TotalCount      int    `json:"total_count"`
	Percentage      int    `json:"percentage"`
	CurrentLessonID string `json:"current_lesson_id,omitempty"`
}

// Percentage computes round(completed/total*100) with ties rounding up. It
// returns 100 only when every lesson is complete; otherwise the value is
// capped at 99 so completion and 100% always coincide.
func Percentage(completed, total int) int {
	if total <= 0 || completed <= 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	p := (200*completed + total) / (2 * total)
	if p > 99 {
		p = 99
	}
	return p
}

// NewSnapshot builds the read model. The percentage is the persisted value
// owned by the enrollment, never a recomputation.
func NewSnapshot(e *enrollment.Enrollment, structure *catalog.CourseStructure, done map[string]bool) Snapshot {
	completed, total := CountCompleted(structure, done)
	return Snapshot{
		EnrollmentID:    e.ID,
		CompletedCount:  completed,
		TotalCount:      total,
		Percentage:      e.Percentage,
		CurrentLessonID: e.CurrentLessonID,
	}
}

// CountCompleted counts completions of lessons that are still in the course.
func CountCompleted(structure *catalog.CourseStructure, done map[string]bool) (completed, total int) {
	for _, l := range structure.OrderedLessons() {
		total++
		if done[l.ID] {
			completed++
		}
	}
	return completed, total
}

// Repository is the storage contract for lesson completions.
type Repository interface {
	// Insert stores the completion unless the (enrollment, lesson) pair
	// already exists. inserted reports whether a new row was written.
	Insert(ctx context.Context, c LessonCompletion) (inserted bool, err error)

	// CompletedLessonIDs returns the set of completed lesson ids.
	CompletedLessonIDs(ctx context.Context, enrollmentID string) (map[string]bool, error)
}
