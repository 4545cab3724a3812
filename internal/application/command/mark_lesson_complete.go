package command

import (
	"context"

	"github.com/coursehub/coursehub-core/internal/domain/access"
	"github.com/coursehub/coursehub-core/internal/domain/catalog"
	"github.com/coursehub/coursehub-core/internal/domain/enrollment"
	"github.com/coursehub/coursehub-core/internal/domain/progress"
	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MARK LESSON COMPLETE COMMAND
// Inserts the completion fact and updates percentage, pointer and status in a
// single transaction, with the enrollment row locked for the duration.
// ══════════════════════════════════════════════════════════════════════════════

// MarkLessonCompleteCommand contains the data to record a lesson completion.
type MarkLessonCompleteCommand struct {
	// StudentID is the caller. When set it must own the enrollment.
	StudentID    string
	EnrollmentID string
	LessonID     string
}

// Validate validates the command.
func (c MarkLessonCompleteCommand) Validate() error {
	if c.EnrollmentID == "" {
		return shared.Validationf("progress", "MarkLessonComplete", "enrollment_id is required")
	}
	if c.LessonID == "" {
		return shared.Validationf("progress", "MarkLessonComplete", "lesson_id is required")
	}
	return nil
}

// MarkLessonCompleteResult contains the progress after the call.
type MarkLessonCompleteResult struct {
	Progress progress.Snapshot
	Status   enrollment.Status
	// Recorded is false when the lesson was already complete or the
	// enrollment was already completed.
	Recorded bool
	// CourseCompleted is true only on the call that completed the course.
	CourseCompleted bool
}

// MarkLessonCompleteHandler handles MarkLessonCompleteCommand.
type MarkLessonCompleteHandler struct {
	tx          shared.Transactor
	courses     catalog.StructureReader
	enrollments enrollment.Repository
	completions progress.Repository
	events      shared.EventRecorder
	now         shared.Clock
}

// NewMarkLessonCompleteHandler creates a new MarkLessonCompleteHandler.
func NewMarkLessonCompleteHandler(
	tx shared.Transactor,
	courses catalog.StructureReader,
	enrollments enrollment.Repository,
	completions progress.Repository,
	events shared.EventRecorder,
	clock shared.Clock,
) *MarkLessonCompleteHandler {
	if clock == nil {
		clock = shared.SystemClock
	}
	return &MarkLessonCompleteHandler{
		tx:          tx,
		courses:     courses,
		enrollments: enrollments,
		completions: completions,
		events:      events,
		now:         clock,
	}
}

// Handle executes the mark lesson complete command.
func (h *MarkLessonCompleteHandler) Handle(ctx context.Context, cmd MarkLessonCompleteCommand) (*MarkLessonCompleteResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	now := h.now()
	result := &MarkLessonCompleteResult{}

	err := h.tx.WithinTx(ctx, func(ctx context.Context) error {
		e, err := h.enrollments.GetByIDForUpdate(ctx, cmd.EnrollmentID)
		if err != nil {
			return err
		}
		if cmd.StudentID != "" && e.StudentID != cmd.StudentID {
			return shared.ErrNotEnrollmentOwner
		}

		lesson, err := h.courses.GetLesson(ctx, cmd.LessonID)
		if err != nil {
			return err
		}
		if lesson.CourseID != e.CourseID {
			return shared.WrapError("progress", "MarkLessonComplete", shared.ErrNotFound,
				"lesson does not belong to the enrollment's course", shared.ErrLessonNotFound)
		}
		if d := access.Decide(lesson, e); !d.Allowed {
			return d.Err()
		}

		structure, err := h.courses.GetCourseStructure(ctx, e.CourseID)
		if err != nil {
			return err
		}

		if e.IsCompleted() {
			done, err := h.completions.CompletedLessonIDs(ctx, e.ID)
			if err != nil {
				return err
			}
			result.Progress = progress.NewSnapshot(e, structure, done)
			result.Status = e.Status()
			return nil
		}

		inserted, err := h.completions.Insert(ctx, progress.LessonCompletion{
			EnrollmentID: e.ID,
			LessonID:     lesson.ID,
			CompletedAt:  now,
		})
		if err != nil {
			return err
		}
		done, err := h.completions.CompletedLessonIDs(ctx, e.ID)
		if err != nil {
			return err
		}

		completed, total := progress.CountCompleted(structure, done)
		finishes := total > 0 && completed == total && e.Status() == enrollment.StatusActive
		percentage := progress.Percentage(completed, total)
		if percentage == 100 && !finishes {
			// Only the active → completed transition may report 100.
			percentage = 99
		}

		if !inserted && !finishes {
			result.Progress = progress.NewSnapshot(e, structure, done)
			result.Status = e.Status()
			return nil
		}

		var events []shared.Event
		if inserted {
			pointer := e.CurrentLessonID
			if next, ok := structure.NextIncomplete(lesson.ID, done); ok {
				pointer = next.ID
			} else if pointer == "" {
				pointer = lesson.ID
			}
			e.RecordProgress(percentage, pointer, now)
			events = append(events, shared.NewLessonCompletedEvent(e.ID, lesson.ID, percentage, now))
		}
		if finishes {
			if err := e.Complete(now); err != nil {
				return err
			}
			events = append(events, shared.NewEnrollmentEvent(shared.EventEnrollmentCompleted,
				e.ID, e.StudentID, e.CourseID, string(e.Status()), now))
			result.CourseCompleted = true
		}

		if err := h.enrollments.Update(ctx, e); err != nil {
			return err
		}
		if err := h.events.Record(ctx, events...); err != nil {
			return err
		}

		result.Recorded = inserted
		result.Progress = progress.NewSnapshot(e, structure, done)
		result.Status = e.Status()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
