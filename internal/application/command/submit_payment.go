package command

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/coursehub/coursehub-core/internal/domain/catalog"
	"github.com/coursehub/coursehub-core/internal/domain/enrollment"
	"github.com/coursehub/coursehub-core/internal/domain/payment"
	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT PAYMENT COMMAND
// A student hands in proof of payment for a paid course. The call returns
// immediately with a pending payment; review happens later and out of band.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitPaymentCommand contains the data to submit a payment.
type SubmitPaymentCommand struct {
	StudentID  string
	CourseID   string
	Amount     int64
	Currency   string // optional; defaults to the course currency
	ReceiptRef string
}

// Validate validates the command.
func (c SubmitPaymentCommand) Validate() error {
	if c.StudentID == "" {
		return shared.Validationf("payment", "Submit", "student_id is required")
	}
	if c.CourseID == "" {
		return shared.Validationf("payment", "Submit", "course_id is required")
	}
	return shared.ReceiptRef(c.ReceiptRef).Validate()
}

// SubmitPaymentResult contains the new payment and the linked enrollment.
type SubmitPaymentResult struct {
	Payment    *payment.Payment
	Enrollment *enrollment.Enrollment
}

// SubmitPaymentHandler handles SubmitPaymentCommand.
type SubmitPaymentHandler struct {
	tx          shared.Transactor
	courses     catalog.StructureReader
	payments    payment.Repository
	enrollments enrollment.Repository
	events      shared.EventRecorder
	now         shared.Clock
}

// NewSubmitPaymentHandler creates a new SubmitPaymentHandler.
func NewSubmitPaymentHandler(
	tx shared.Transactor,
	courses catalog.StructureReader,
	payments payment.Repository,
	enrollments enrollment.Repository,
	events shared.EventRecorder,
	clock shared.Clock,
) *SubmitPaymentHandler {
	if clock == nil {
		clock = shared.SystemClock
	}
	return &SubmitPaymentHandler{
		tx:          tx,
		courses:     courses,
		payments:    payments,
		enrollments: enrollments,
		events:      events,
		now:         clock,
	}
}

// Handle executes the submit payment command.
func (h *SubmitPaymentHandler) Handle(ctx context.Context, cmd SubmitPaymentCommand) (*SubmitPaymentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	now := h.now()
	result := &SubmitPaymentResult{}

	err := h.tx.WithinTx(ctx, func(ctx context.Context) error {
		structure, err := h.courses.GetCourseStructure(ctx, cmd.CourseID)
		if err != nil {
			return err
		}
		course := structure.Course
		if !course.IsPaid() {
			return shared.ErrCourseIsFree
		}

		submitted := shared.Money{
			Amount:   cmd.Amount,
			Currency: shared.Currency(strings.ToUpper(strings.TrimSpace(cmd.Currency))),
		}
		if err := payment.CheckAmount(course.Price, submitted); err != nil {
			return err
		}

		var firstLessonID string
		if first, ok := structure.FirstLesson(); ok {
			firstLessonID = first.ID
		}
		e, created, err := h.enrollments.GetOrCreate(ctx,
			enrollment.NewPendingPayment(uuid.NewString(), cmd.StudentID, course.ID, firstLessonID, now))
		if err != nil {
			return err
		}
		if e.HasAccess() {
			return shared.ErrCourseAlreadyUnlocked
		}

		p, err := payment.NewPayment(uuid.NewString(), cmd.StudentID, course.ID, e.ID,
			course.Price, shared.ReceiptRef(cmd.ReceiptRef), now)
		if err != nil {
			return err
		}
		if err := h.payments.Create(ctx, p); err != nil {
			return err
		}

		var events []shared.Event
		if created {
			events = append(events, shared.NewEnrollmentEvent(shared.EventEnrollmentStarted,
				e.ID, e.StudentID, e.CourseID, string(e.Status()), now))
		}
		events = append(events, shared.NewPaymentSubmittedEvent(p.ID, p.StudentID, p.CourseID, e.ID,
			p.Amount.Amount, p.Amount.Currency.String(), now))
		if err := h.events.Record(ctx, events...); err != nil {
			return err
		}

		result.Payment = p
		result.Enrollment = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
