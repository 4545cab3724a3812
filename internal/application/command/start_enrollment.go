package command

import (
	"context"

	"github.com/google/uuid"

	"github.com/coursehub/coursehub-core/internal/domain/catalog"
	"github.com/coursehub/coursehub-core/internal/domain/enrollment"
	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// START ENROLLMENT COMMAND
// Free courses activate at once. Paid courses get a pending_payment row that
// the payment workflow later activates. Either way the call is idempotent:
// the (student, course) uniqueness constraint makes racing calls converge.
// ══════════════════════════════════════════════════════════════════════════════

// StartEnrollmentCommand contains the data to start an enrollment.
type StartEnrollmentCommand struct {
	StudentID string
	CourseID  string
}

// Validate validates the command.
func (c StartEnrollmentCommand) Validate() error {
	if c.StudentID == "" {
		return shared.Validationf("enrollment", "Start", "student_id is required")
	}
	if c.CourseID == "" {
		return shared.Validationf("enrollment", "Start", "course_id is required")
	}
	return nil
}

// StartEnrollmentResult contains the enrollment and whether it is new.
type StartEnrollmentResult struct {
	Enrollment *enrollment.Enrollment
	Created    bool
}

// StartEnrollmentHandler handles StartEnrollmentCommand.
type StartEnrollmentHandler struct {
	tx          shared.Transactor
	courses     catalog.StructureReader
	enrollments enrollment.Repository
	events      shared.EventRecorder
	now         shared.Clock
}

// NewStartEnrollmentHandler creates a new StartEnrollmentHandler.
func NewStartEnrollmentHandler(
	tx shared.Transactor,
	courses catalog.StructureReader,
	enrollments enrollment.Repository,
	events shared.EventRecorder,
	clock shared.Clock,
) *StartEnrollmentHandler {
	if clock == nil {
		clock = shared.SystemClock
	}
	return &StartEnrollmentHandler{
		tx:          tx,
		courses:     courses,
		enrollments: enrollments,
		events:      events,
		now:         clock,
	}
}

// Handle executes the start enrollment command.
func (h *StartEnrollmentHandler) Handle(ctx context.Context, cmd StartEnrollmentCommand) (*StartEnrollmentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	now := h.now()
	result := &StartEnrollmentResult{}

	err := h.tx.WithinTx(ctx, func(ctx context.Context) error {
		structure, err := h.courses.GetCourseStructure(ctx, cmd.CourseID)
		if err != nil {
			return err
		}
		var firstLessonID string
		if first, ok := structure.FirstLesson(); ok {
			firstLessonID = first.ID
		}

		var candidate *enrollment.Enrollment
		if structure.Course.IsPaid() {
			candidate = enrollment.NewPendingPayment(uuid.NewString(), cmd.StudentID, cmd.CourseID, firstLessonID, now)
		} else {
			candidate = enrollment.NewFree(uuid.NewString(), cmd.StudentID, cmd.CourseID, firstLessonID, now)
		}

		e, created, err := h.enrollments.GetOrCreate(ctx, candidate)
		if err != nil {
			return err
		}

		var events []shared.Event
		if created {
			events = append(events, shared.NewEnrollmentEvent(shared.EventEnrollmentStarted,
				e.ID, e.StudentID, e.CourseID, string(e.Status()), now))
			if e.HasAccess() {
				events = append(events, shared.NewEnrollmentEvent(shared.EventEnrollmentActivated,
					e.ID, e.StudentID, e.CourseID, string(e.Status()), now))
			}
		}
		if err := h.events.Record(ctx, events...); err != nil {
			return err
		}

		result.Enrollment = e
		result.Created = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
