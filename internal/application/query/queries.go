package query

import (
	"context"

	"github.com/coursehub/coursehub-core/internal/domain/access"
	"github.com/coursehub/coursehub-core/internal/domain/catalog"
	"github.com/coursehub/coursehub-core/internal/domain/enrollment"
	"github.com/coursehub/coursehub-core/internal/domain/payment"
	"github.com/coursehub/coursehub-core/internal/domain/progress"
	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// GetCourseStructureHandler returns the ordered course tree.
type GetCourseStructureHandler struct {
	courses catalog.StructureReader
}

// NewGetCourseStructureHandler creates a new handler. courses may be the
// cached reader.
func NewGetCourseStructureHandler(courses catalog.StructureReader) *GetCourseStructureHandler {
	return &GetCourseStructureHandler{courses: courses}
}

// Handle returns ErrCourseNotFound for unknown courses.
func (h *GetCourseStructureHandler) Handle(ctx context.Context, courseID string) (*CourseStructureDTO, error) {
	if courseID == "" {
		return nil, shared.ErrCourseNotFound
	}
	cs, err := h.courses.GetCourseStructure(ctx, courseID)
	if err != nil {
		return nil, err
	}
	dto := ToCourseStructureDTO(cs)
	return &dto, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT
// ══════════════════════════════════════════════════════════════════════════════

// GetEnrollmentQuery identifies an enrollment by its natural key.
type GetEnrollmentQuery struct {
	StudentID string
	CourseID  string
}

// ListEnrollmentsQuery lists a student's enrollments.
type ListEnrollmentsQuery struct {
	StudentID string
	Limit     int
	Offset    int
}

// EnrollmentQueries serves enrollment reads.
type EnrollmentQueries struct {
	enrollments enrollment.Repository
}

// NewEnrollmentQueries creates a new EnrollmentQueries.
func NewEnrollmentQueries(enrollments enrollment.Repository) *EnrollmentQueries {
	return &EnrollmentQueries{enrollments: enrollments}
}

// Get returns ErrNotEnrolled when the student has no enrollment in the course.
func (h *EnrollmentQueries) Get(ctx context.Context, q GetEnrollmentQuery) (*EnrollmentDTO, error) {
	if q.StudentID == "" || q.CourseID == "" {
		return nil, shared.Validationf("enrollment", "Get", "student_id and course_id are required")
	}
	e, err := h.enrollments.GetByStudentCourse(ctx, q.StudentID, q.CourseID)
	if err != nil {
		return nil, err
	}
	dto := ToEnrollmentDTO(e)
	return &dto, nil
}

// List returns the student's enrollments, newest first.
func (h *EnrollmentQueries) List(ctx context.Context, q ListEnrollmentsQuery) ([]EnrollmentDTO, error) {
	if q.StudentID == "" {
		return nil, shared.Validationf("enrollment", "List", "student_id is required")
	}
	items, err := h.enrollments.ListByStudent(ctx, q.StudentID, shared.ListOptions{Offset: q.Offset, Limit: q.Limit})
	if err != nil {
		return nil, err
	}
	out := make([]EnrollmentDTO, 0, len(items))
	for _, e := range items {
		out = append(out, ToEnrollmentDTO(e))
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressQuery selects an enrollment. StudentID, when set, must own it.
type GetProgressQuery struct {
	EnrollmentID string
	StudentID    string
}

// GetProgressHandler returns {completedCount, totalCount, percentage, currentLessonId}.
// The enrollment and its completions are read from one snapshot, so the
// counts always agree with the stored percentage and pointer.
type GetProgressHandler struct {
	tx          shared.Transactor
	courses     catalog.StructureReader
	enrollments enrollment.Repository
	completions progress.Repository
}

// NewGetProgressHandler creates a new GetProgressHandler.
func NewGetProgressHandler(tx shared.Transactor, courses catalog.StructureReader, enrollments enrollment.Repository, completions progress.Repository) *GetProgressHandler {
	return &GetProgressHandler{tx: tx, courses: courses, enrollments: enrollments, completions: completions}
}

// Handle executes the query.
func (h *GetProgressHandler) Handle(ctx context.Context, q GetProgressQuery) (*progress.Snapshot, error) {
	var snap progress.Snapshot
	err := h.tx.WithinSnapshot(ctx, func(ctx context.Context) error {
		e, err := h.enrollments.GetByID(ctx, q.EnrollmentID)
		if err != nil {
			return err
		}
		if q.StudentID != "" && e.StudentID != q.StudentID {
			return shared.ErrNotEnrollmentOwner
		}
		structure, err := h.courses.GetCourseStructure(ctx, e.CourseID)
		if err != nil {
			return err
		}
		done, err := h.completions.CompletedLessonIDs(ctx, e.ID)
		if err != nil {
			return err
		}
		snap = progress.NewSnapshot(e, structure, done)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCESS
// ══════════════════════════════════════════════════════════════════════════════

// CanAccessLessonHandler exposes the access gate for content serving.
type CanAccessLessonHandler struct {
	courses catalog.StructureReader
	gate    *access.Gate
}

// NewCanAccessLessonHandler creates a new CanAccessLessonHandler.
func NewCanAccessLessonHandler(courses catalog.StructureReader, gate *access.Gate) *CanAccessLessonHandler {
	return &CanAccessLessonHandler{courses: courses, gate: gate}
}

// Handle returns the decision for the student on the lesson.
func (h *CanAccessLessonHandler) Handle(ctx context.Context, studentID, lessonID string) (access.Decision, error) {
	lesson, err := h.courses.GetLesson(ctx, lessonID)
	if err != nil {
		return access.Decision{}, err
	}
	return h.gate.CanAccessLesson(ctx, studentID, lesson)
}

// ══════════════════════════════════════════════════════════════════════════════
// PAYMENTS
// ══════════════════════════════════════════════════════════════════════════════

// PaymentQueries serves the reviewer queue and payment history.
type PaymentQueries struct {
	payments payment.Repository
}

// NewPaymentQueries creates a new PaymentQueries.
func NewPaymentQueries(payments payment.Repository) *PaymentQueries {
	return &PaymentQueries{payments: payments}
}

// ListPending returns pending payments, oldest first.
func (h *PaymentQueries) ListPending(ctx context.Context, limit, offset int) ([]PaymentDTO, error) {
	items, err := h.payments.ListPending(ctx, shared.ListOptions{Offset: offset, Limit: limit})
	if err != nil {
		return nil, err
	}
	return toPaymentDTOs(items), nil
}

// History returns every payment of the pair, newest first.
func (h *PaymentQueries) History(ctx context.Context, studentID, courseID string) ([]PaymentDTO, error) {
	if studentID == "" || courseID == "" {
		return nil, shared.Validationf("payment", "History", "student_id and course_id are required")
	}
	items, err := h.payments.ListByStudentCourse(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}
	return toPaymentDTOs(items), nil
}

// Get returns one payment.
func (h *PaymentQueries) Get(ctx context.Context, id string) (*PaymentDTO, error) {
	p, err := h.payments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := ToPaymentDTO(p)
	return &dto, nil
}

func toPaymentDTOs(items []*payment.Payment) []PaymentDTO {
	out := make([]PaymentDTO, 0, len(items))
	for _, p := range items {
		out = append(out, ToPaymentDTO(p))
	}
	return out
}
