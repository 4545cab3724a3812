package command_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursehub/coursehub-core/internal/application/command"
	"github.com/coursehub/coursehub-core/internal/application/query"
	"github.com/coursehub/coursehub-core/internal/domain/catalog"
	"github.com/coursehub/coursehub-core/internal/domain/enrollment"
	"github.com/coursehub/coursehub-core/internal/domain/payment"
	"github.com/coursehub/coursehub-core/internal/domain/progress"
	"github.com/coursehub/coursehub-core/internal/domain/shared"
	"github.com/coursehub/coursehub-core/internal/infrastructure/persistence/memory"
)

var fixedNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type env struct {
	store *memory.Store

	createCourse *command.CreateCourseHandler
	addModule    *command.AddModuleHandler
	addLesson    *command.AddLessonHandler
	reorder      *command.ReorderHandler
	start        *command.StartEnrollmentHandler
	submit       *command.SubmitPaymentHandler
	review       *command.ReviewPaymentHandler
	mark         *command.MarkLessonCompleteHandler
}

func newEnv() *env {
	s := memory.NewStore()
	w := command.NewCatalogWriter(s, s.Catalog(), s.Outbox(), clock)
	return &env{
		store:        s,
		createCourse: command.NewCreateCourseHandler(w),
		addModule:    command.NewAddModuleHandler(w),
		addLesson:    command.NewAddLessonHandler(w),
		reorder:      command.NewReorderHandler(w),
		start:        command.NewStartEnrollmentHandler(s, s.Catalog(), s.Enrollments(), s.Outbox(), clock),
		submit:       command.NewSubmitPaymentHandler(s, s.Catalog(), s.Payments(), s.Enrollments(), s.Outbox(), clock),
		review:       command.NewReviewPaymentHandler(s, s.Payments(), s.Enrollments(), s.Outbox(), clock),
		mark:         command.NewMarkLessonCompleteHandler(s, s.Catalog(), s.Enrollments(), s.Progress(), s.Outbox(), clock),
	}
}

type fixture struct {
	course  *catalog.Course
	modules []*catalog.Module
	lessons []*catalog.Lesson
}

// seedCourse builds a course with two modules of two lessons each. The first
// lesson is a free preview.
func (e *env) seedCourse(t *testing.T, price int64) fixture {
	t.Helper()
	ctx := context.Background()

	course, err := e.createCourse.Handle(ctx, command.CreateCourseCommand{
		TeacherID: "teacher-1", Title: "Go in Practice", Price: price, Currency: "usd",
	})
	require.NoError(t, err)

	f := fixture{course: course}
	for i := 0; i < 2; i++ {
		m, err := e.addModule.Handle(ctx, command.AddModuleCommand{TeacherID: "teacher-1", CourseID: course.ID, Title: "Module"})
		require.NoError(t, err)
		assert.Equal(t, i+1, m.Order)
		f.modules = append(f.modules, m)

		for j := 0; j < 2; j++ {
			l, err := e.addLesson.Handle(ctx, command.AddLessonCommand{
				TeacherID: "teacher-1",
				ModuleID:  m.ID,
				Title:     "Lesson",
				Type:      catalog.LessonVideo,
				IsFree:    i == 0 && j == 0,
			})
			require.NoError(t, err)
			assert.Equal(t, j+1, l.Order)
			f.lessons = append(f.lessons, l)
		}
	}
	return f
}

func (e *env) eventTypes(t *testing.T) []shared.EventType {
	t.Helper()
	events, err := e.store.Outbox().FetchUnrelayed(context.Background(), 0)
	require.NoError(t, err)
	out := make([]shared.EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.EventType())
	}
	return out
}

func countType(types []shared.EventType, want shared.EventType) int {
	n := 0
	for _, tp := range types {
		if tp == want {
			n++
		}
	}
	return n
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG AUTHORING
// ══════════════════════════════════════════════════════════════════════════════

func TestCreateCourse(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	course, err := e.createCourse.Handle(ctx, command.CreateCourseCommand{TeacherID: "t1", Title: "Go", Price: 1000, Currency: " usd "})
	require.NoError(t, err)
	assert.Equal(t, shared.Currency("USD"), course.Price.Currency)
	assert.NotEmpty(t, course.ID)

	_, err = e.createCourse.Handle(ctx, command.CreateCourseCommand{TeacherID: "t1", Title: "Go", Price: -1, Currency: "USD"})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = e.createCourse.Handle(ctx, command.CreateCourseCommand{TeacherID: "t1", Title: "Go", Currency: "dollars"})
	assert.ErrorIs(t, err, shared.ErrValidation)

	assert.Equal(t, []shared.EventType{shared.EventCourseStructureChanged}, e.eventTypes(t))
}

func TestAuthoring_OnlyOwnerMayModify(t *testing.T) {
	e := newEnv()
	f := e.seedCourse(t, 0)
	ctx := context.Background()

	_, err := e.addModule.Handle(ctx, command.AddModuleCommand{TeacherID: "teacher-2", CourseID: f.course.ID, Title: "Hijack"})
	assert.ErrorIs(t, err, shared.ErrForbidden)

	_, err = e.addLesson.Handle(ctx, command.AddLessonCommand{TeacherID: "teacher-2", ModuleID: f.modules[0].ID, Title: "x", Type: catalog.LessonText})
	assert.ErrorIs(t, err, shared.ErrNotCourseOwner)

	_, err = e.reorder.HandleModules(ctx, command.ReorderModulesCommand{
		TeacherID: "teacher-2", CourseID: f.course.ID, ModuleIDs: []string{f.modules[1].ID, f.modules[0].ID},
	})
	assert.ErrorIs(t, err, shared.ErrForbidden)

	_, err = e.addModule.Handle(ctx, command.AddModuleCommand{TeacherID: "teacher-1", CourseID: "missing", Title: "x"})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReorder(t *testing.T) {
	e := newEnv()
	f := e.seedCourse(t, 0)
	ctx := context.Background()
	before := len(e.eventTypes(t))

	cs, err := e.reorder.HandleModules(ctx, command.ReorderModulesCommand{
		TeacherID: "teacher-1", CourseID: f.course.ID, ModuleIDs: []string{f.modules[1].ID, f.modules[0].ID},
	})
	require.NoError(t, err)
	require.Len(t, cs.Modules, 2)
	assert.Equal(t, f.modules[1].ID, cs.Modules[0].Module.ID)
	assert.Equal(t, 1, cs.Modules[0].Module.Order)
	assert.Equal(t, 2, cs.Modules[1].Module.Order)

	cs, err = e.reorder.HandleLessons(ctx, command.ReorderLessonsCommand{
		TeacherID: "teacher-1", ModuleID: f.modules[0].ID, LessonIDs: []string{f.lessons[1].ID, f.lessons[0].ID},
	})
	require.NoError(t, err)
	ordered := cs.OrderedLessons()
	assert.Equal(t, []string{f.lessons[2].ID, f.lessons[3].ID, f.lessons[1].ID, f.lessons[0].ID},
		[]string{ordered[0].ID, ordered[1].ID, ordered[2].ID, ordered[3].ID})

	_, err = e.reorder.HandleLessons(ctx, command.ReorderLessonsCommand{
		TeacherID: "teacher-1", ModuleID: f.modules[0].ID, LessonIDs: []string{f.lessons[0].ID},
	})
	assert.ErrorIs(t, err, shared.ErrInvalidReorder)

	_, err = e.reorder.HandleModules(ctx, command.ReorderModulesCommand{
		TeacherID: "teacher-1", CourseID: f.course.ID, ModuleIDs: []string{f.modules[0].ID, f.modules[0].ID},
	})
	assert.ErrorIs(t, err, shared.ErrInvalidReorder)

	// Two successful reorders, nothing from the rejected ones.
	assert.Len(t, e.eventTypes(t), before+2)
}

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT
// ══════════════════════════════════════════════════════════════════════════════

func TestStartEnrollment_FreeCourse(t *testing.T) {
	e := newEnv()
	f := e.seedCourse(t, 0)
	ctx := context.Background()

	res, err := e.start.Handle(ctx, command.StartEnrollmentCommand{StudentID: "s1", CourseID: f.course.ID})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, enrollment.StatusActive, res.Enrollment.Status())
	assert.Equal(t, f.lessons[0].ID, res.Enrollment.CurrentLessonID)

	again, err := e.start.Handle(ctx, command.StartEnrollmentCommand{StudentID: "s1", CourseID: f.course.ID})
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, res.Enrollment.ID, again.Enrollment.ID)

	types := e.eventTypes(t)
	assert.Equal(t, 1, countType(types, shared.EventEnrollmentStarted))
	assert.Equal(t, 1, countType(types, shared.EventEnrollmentActivated))

	_, err = e.start.Handle(ctx, command.StartEnrollmentCommand{StudentID: "s1", CourseID: "missing"})
	assert.ErrorIs(t, err, shared.ErrCourseNotFound)
}

func TestStartEnrollment_PaidCourseIsPending(t *testing.T) {
	e := newEnv()
	f := e.seedCourse(t, 4900)

	res, err := e.start.Handle(context.Background(), command.StartEnrollmentCommand{StudentID: "s1", CourseID: f.course.ID})
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusPendingPayment, res.Enrollment.Status())
	assert.False(t, res.Enrollment.HasAccess())
	assert.Equal(t, 0, countType(e.eventTypes(t), shared.EventEnrollmentActivated))
}

func TestStartEnrollment_ConcurrentCallsConverge(t *testing.T) {
	e := newEnv()
	f := e.seedCourse(t, 0)

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = make(map[string]bool)
		created int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.start.Handle(context.Background(), command.StartEnrollmentCommand{StudentID: "s1", CourseID: f.course.ID})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[res.Enrollment.ID] = true
			if res.Created {
				created++
			}
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 1)
	assert.Equal(t, 1, created)
}

// ══════════════════════════════════════════════════════════════════════════════
// PAYMENT WORKFLOW
// ══════════════════════════════════════════════════════════════════════════════

func TestSubmitPayment_Validation(t *testing.T) {
	e := newEnv()
	paid := e.seedCourse(t, 4900)
	free := e.seedCourse(t, 0)
	ctx := context.Background()

	_, err := e.submit.Handle(ctx, command.SubmitPaymentCommand{StudentID: "s1", CourseID: paid.course.ID, Amount: 4800, ReceiptRef: "r/1.pdf"})
	assert.ErrorIs(t, err, shared.ErrAmountMismatch)

	_, err = e.submit.Handle(ctx, command.SubmitPaymentCommand{StudentID: "s1", CourseID: paid.course.ID, Amount: 4900, Currency: "EUR", ReceiptRef: "r/1.pdf"})
	assert.ErrorIs(t, err, shared.ErrCurrencyMismatch)

	_, err = e.submit.Handle(ctx, command.SubmitPaymentCommand{StudentID: "s1", CourseID: paid.course.ID, Amount: 4900, ReceiptRef: ""})
	assert.ErrorIs(t, err, shared.ErrInvalidReceiptRef)

	_, err = e.submit.Handle(ctx, command.SubmitPaymentCommand{StudentID: "s1", CourseID: free.course.ID, Amount: 0, ReceiptRef: "r/1.pdf"})
	assert.ErrorIs(t, err, shared.ErrCourseIsFree)

	// Failed submissions leave no enrollment behind.
	_, err = e.store.Enrollments().GetByStudentCourse(ctx, "s1", paid.course.ID)
	assert.ErrorIs(t, err, shared.ErrNotEnrolled)
}

func TestSubmitPayment_DuplicatePendingIsConflict(t *testing.T) {
	e := newEnv()
	f := e.seedCourse(t, 4900)
	ctx := context.Background()

	first, err := e.submit.Handle(ctx, command.SubmitPaymentCommand{StudentID: "s1", CourseID: f.course.ID, Amount: 4900, Currency: "usd", ReceiptRef: "r/1.pdf"})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, first.Payment.Status())
	assert.Equal(t, first.Enrollment.ID, first.Payment.EnrollmentID)
	assert.Equal(t, enrollment.StatusPendingPayment, first.Enrollment.Status())

	_, err = e.submit.Handle(ctx, command.SubmitPaymentCommand{StudentID: "s1", CourseID: f.course.ID, Amount: 4900, ReceiptRef: "r/2.pdf"})
	assert.ErrorIs(t, err, shared.ErrPendingPaymentExists)
	assert.ErrorIs(t, err, shared.ErrConflict)

	// Another student is unaffected.
	_, err = e.submit.Handle(ctx, command.SubmitPaymentCommand{StudentID: "s2", CourseID: f.course.ID, Amount: 4900, ReceiptRef: "r/3.pdf"})
	assert.NoError(t, err)

	types := e.eventTypes(t)
	assert.Equal(t, 2, countType(types, shared.EventPaymentSubmitted))
	assert.Equal(t, 2, countType(types, shared.EventEnrollmentStarted))
}

func TestReviewPayment_RejectThenResubmit(t *testing.T) {
	e := newEnv()
	f := e.seedCourse(t, 4900)
	ctx := context.Background()

	sub, err := e.submit.Handle(ctx, command.SubmitPaymentCommand{StudentID: "s1", CourseID: f.course.ID, Amount: 4900, ReceiptRef: "r/1.pdf"})
	require.NoError(t, err)

	_, err = e.review.Reject(ctx, command.RejectPaymentCommand{PaymentID: sub.Payment.ID, ReviewerID: "rev-1", Reason: "  "})
	assert.ErrorIs(t, err, shared.ErrRejectionReason)

	p, err := e.store.Payments().GetByID(ctx, sub.Payment.ID)
	require.NoError(t, err)
	assert.True(t, p.IsPending())

	rej, err := e.review.Reject(ctx, command.RejectPaymentCommand{PaymentID: sub.Payment.ID, ReviewerID: "rev-1", Reason: "unreadable scan"})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRejected, rej.Payment.Status())
	assert.Equal(t, "unreadable scan", rej.Payment.Review().Reason)
	require.NotNil(t, rej.Enrollment)
	assert.Equal(t, enrollment.StatusPendingPayment, rej.Enrollment.Status())

	_, err = e.review.Approve(ctx, command.ApprovePaymentCommand{PaymentID: sub.Payment.ID, ReviewerID: "rev-2"})
	assert.ErrorIs(t, err, shared.ErrPaymentAlreadyReviewed)

	again, err := e.submit.Handle(ctx, command.SubmitPaymentCommand{StudentID: "s1", CourseID: f.course.ID, Amount: 4900, ReceiptRef: "r/2.pdf"})
	require.NoError(t, err)
	assert.NotEqual(t, sub.Payment.ID, again.Payment.ID)
	assert.Equal(t, sub.Enrollment.ID, again.Enrollment.ID)

	history, err := e.store.Payments().ListByStudentCourse(ctx, "s1", f.course.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	types := e.eventTypes(t)
	assert.Equal(t, 1, countType(types, shared.EventEnrollmentStarted))
	assert.Equal(t, 1, countType(types, shared.EventPaymentRejected))
}

func TestReviewPayment_ConcurrentApprovals(t *testing.T) {
	e := newEnv()
	f := e.seedCourse(t, 4900)
	ctx := context.Background()

	sub, err := e.submit.Handle(ctx, command.SubmitPaymentCommand{StudentID: "s1", CourseID: f.course.ID, Amount: 4900, ReceiptRef: "r/1.pdf"})
	require.NoError(t, err)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, errs[i] = e.review.Approve(ctx, command.ApprovePaymentCommand{PaymentID: sub.Payment.ID, ReviewerID: "rev"})
			} else {
				_, errs[i] = e.review.Reject(ctx, command.RejectPaymentCommand{PaymentID: sub.Payment.ID, ReviewerID: "rev", Reason: "no"})
			}
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.ErrorIs(t, err, shared.ErrPaymentAlreadyReviewed)
	}
	assert.Equal(t, 1, winners)

	types := e.eventTypes(t)
	assert.Equal(t, 1, countType(types, shared.EventPaymentApproved)+countType(types, shared.EventPaymentRejected))

	p, err := e.store.Payments().GetByID(ctx, sub.Payment.ID)
	require.NoError(t, err)
	en, err := e.store.Enrollments().GetByID(ctx, sub.Enrollment.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Status() == payment.StatusApproved, en.HasAccess())
}

func TestSubmitPayment_AfterApprovalIsConflict(t *testing.T) {
	e := newEnv()
	f := e.seedCourse(t, 4900)
	ctx := context.Background()

	sub, err := e.submit.Handle(ctx, command.SubmitPaymentCommand{StudentID: "s1", CourseID: f.course.ID, Amount: 4900, ReceiptRef: "r/1.pdf"})
	require.NoError(t, err)
	_, err = e.review.Approve(ctx, command.ApprovePaymentCommand{PaymentID: sub.Payment.ID, ReviewerID: "rev"})
	require.NoError(t, err)

	_, err = e.submit.Handle(ctx, command.SubmitPaymentCommand{StudentID: "s1", CourseID: f.course.ID, Amount: 4900, ReceiptRef: "r/2.pdf"})
	assert.ErrorIs(t, err, shared.ErrCourseAlreadyUnlocked)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

func TestPaidCourse_EndToEnd(t *testing.T) {
	e := newEnv()
	f := e.seedCourse(t, 4900)
	ctx := context.Background()
	l := f.lessons

	started, err := e.start.Handle(ctx, command.StartEnrollmentCommand{StudentID: "s1", CourseID: f.course.ID})
	require.NoError(t, err)
	enrollmentID := started.Enrollment.ID

	// Paid lessons stay locked until the payment is approved.
	_, err = e.mark.Handle(ctx, command.MarkLessonCompleteCommand{StudentID: "s1", EnrollmentID: enrollmentID, LessonID: l[1].ID})
	assert.ErrorIs(t, err, shared.ErrAccessPaymentPending)

	// The free preview counts even while payment is pending.
	res, err := e.mark.Handle(ctx, command.MarkLessonCompleteCommand{StudentID: "s1", EnrollmentID: enrollmentID, LessonID: l[0].ID})
	require.NoError(t, err)
	assert.True(t, res.Recorded)
	assert.Equal(t, 25, res.Progress.Percentage)
	assert.Equal(t, l[1].ID, res.Progress.CurrentLessonID)
	assert.Equal(t, enrollment.StatusPendingPayment, res.Status)

	sub, err := e.submit.Handle(ctx, command.SubmitPaymentCommand{StudentID: "s1", CourseID: f.course.ID, Amount: 4900, ReceiptRef: "r/1.pdf"})
	require.NoError(t, err)
	assert.Equal(t, enrollmentID, sub.Enrollment.ID)

	approved, err := e.review.Approve(ctx, command.ApprovePaymentCommand{PaymentID: sub.Payment.ID, ReviewerID: "rev-1"})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusApproved, approved.Payment.Status())
	assert.Equal(t, enrollment.StatusActive, approved.Enrollment.Status())
	assert.Equal(t, sub.Payment.ID, approved.Enrollment.PaymentID())
	assert.Equal(t, 25, approved.Enrollment.Percentage)

	want := []int{50, 75, 100}
	for i, lesson := range l[1:] {
		res, err = e.mark.Handle(ctx, command.MarkLessonCompleteCommand{StudentID: "s1", EnrollmentID: enrollmentID, LessonID: lesson.ID})
		require.NoError(t, err)
		assert.True(t, res.Recorded)
		assert.Equal(t, want[i], res.Progress.Percentage)
	}
	assert.True(t, res.CourseCompleted)
	assert.Equal(t, enrollment.StatusCompleted, res.Status)
	assert.Equal(t, 4, res.Progress.CompletedCount)

	// Repeats are no-ops on a completed enrollment.
	res, err = e.mark.Handle(ctx, command.MarkLessonCompleteCommand{StudentID: "s1", EnrollmentID: enrollmentID, LessonID: l[0].ID})
	require.NoError(t, err)
	assert.False(t, res.Recorded)
	assert.False(t, res.CourseCompleted)
	assert.Equal(t, 100, res.Progress.Percentage)

	types := e.eventTypes(t)
	assert.Equal(t, 4, countType(types, shared.EventLessonCompleted))
	assert.Equal(t, 1, countType(types, shared.EventEnrollmentActivated))
	assert.Equal(t, 1, countType(types, shared.EventEnrollmentCompleted))
	assert.Equal(t, 1, countType(types, shared.EventPaymentApproved))
}

func TestMarkLessonComplete_Idempotent(t *testing.T) {
	e := newEnv()
	f := e.seedCourse(t, 0)
	ctx := context.Background()

	started, err := e.start.Handle(ctx, command.StartEnrollmentCommand{StudentID: "s1", CourseID: f.course.ID})
	require.NoError(t, err)
	cmd := command.MarkLessonCompleteCommand{StudentID: "s1", EnrollmentID: started.Enrollment.ID, LessonID: f.lessons[2].ID}

	first, err := e.mark.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.True(t, first.Recorded)
	assert.Equal(t, 25, first.Progress.Percentage)
	assert.Equal(t, f.lessons[3].ID, first.Progress.CurrentLessonID)

	second, err := e.mark.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.False(t, second.Recorded)
	assert.Equal(t, first.Progress, second.Progress)

	assert.Equal(t, 1, countType(e.eventTypes(t), shared.EventLessonCompleted))
}

// insertHook runs after each completion is written, still inside the
// marking transaction.
type insertHook struct {
	progress.Repository
	after func()
}

func (h *insertHook) Insert(ctx context.Context, c progress.LessonCompletion) (bool, error) {
	ok, err := h.Repository.Insert(ctx, c)
	h.after()
	return ok, err
}

func TestMarkLessonComplete_ReadersNeverSeeHalfApplied(t *testing.T) {
	e := newEnv()
	f := e.seedCourse(t, 0)
	ctx := context.Background()
	s := e.store

	started, err := e.start.Handle(ctx, command.StartEnrollmentCommand{StudentID: "s1", CourseID: f.course.ID})
	require.NoError(t, err)

	reader := query.NewGetProgressHandler(s, s.Catalog(), s.Enrollments(), s.Progress())
	q := query.GetProgressQuery{EnrollmentID: started.Enrollment.ID, StudentID: "s1"}

	var during *progress.Snapshot
	hook := &insertHook{Repository: s.Progress(), after: func() {
		snap, err := reader.Handle(context.Background(), q)
		require.NoError(t, err)
		during = snap
	}}
	mark := command.NewMarkLessonCompleteHandler(s, s.Catalog(), s.Enrollments(), hook, s.Outbox(), clock)

	_, err = mark.Handle(ctx, command.MarkLessonCompleteCommand{StudentID: "s1", EnrollmentID: started.Enrollment.ID, LessonID: f.lessons[0].ID})
	require.NoError(t, err)

	require.NotNil(t, during)
	assert.Equal(t, 0, during.CompletedCount)
	assert.Equal(t, 0, during.Percentage)
	assert.Equal(t, f.lessons[0].ID, during.CurrentLessonID)

	after, err := reader.Handle(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 1, after.CompletedCount)
	assert.Equal(t, 4, after.TotalCount)
	assert.Equal(t, 25, after.Percentage)
	assert.Equal(t, f.lessons[1].ID, after.CurrentLessonID)
}

func TestMarkLessonComplete_Denials(t *testing.T) {
	e := newEnv()
	f := e.seedCourse(t, 0)
	other := e.seedCourse(t, 0)
	ctx := context.Background()

	started, err := e.start.Handle(ctx, command.StartEnrollmentCommand{StudentID: "s1", CourseID: f.course.ID})
	require.NoError(t, err)

	_, err = e.mark.Handle(ctx, command.MarkLessonCompleteCommand{StudentID: "s2", EnrollmentID: started.Enrollment.ID, LessonID: f.lessons[0].ID})
	assert.ErrorIs(t, err, shared.ErrNotEnrollmentOwner)

	_, err = e.mark.Handle(ctx, command.MarkLessonCompleteCommand{StudentID: "s1", EnrollmentID: started.Enrollment.ID, LessonID: other.lessons[0].ID})
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = e.mark.Handle(ctx, command.MarkLessonCompleteCommand{StudentID: "s1", EnrollmentID: "missing", LessonID: f.lessons[0].ID})
	assert.ErrorIs(t, err, shared.ErrEnrollmentNotFound)

	_, err = e.mark.Handle(ctx, command.MarkLessonCompleteCommand{StudentID: "s1", EnrollmentID: started.Enrollment.ID, LessonID: "missing"})
	assert.ErrorIs(t, err, shared.ErrLessonNotFound)
}

func TestMarkLessonComplete_PendingEnrollmentNeverReaches100(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	course, err := e.createCourse.Handle(ctx, command.CreateCourseCommand{TeacherID: "t1", Title: "Previews", Price: 100, Currency: "USD"})
	require.NoError(t, err)
	m, err := e.addModule.Handle(ctx, command.AddModuleCommand{TeacherID: "t1", CourseID: course.ID, Title: "All free"})
	require.NoError(t, err)
	var lessons []*catalog.Lesson
	for i := 0; i < 2; i++ {
		l, err := e.addLesson.Handle(ctx, command.AddLessonCommand{TeacherID: "t1", ModuleID: m.ID, Title: "Preview", Type: catalog.LessonText, IsFree: true})
		require.NoError(t, err)
		lessons = append(lessons, l)
	}

	started, err := e.start.Handle(ctx, command.StartEnrollmentCommand{StudentID: "s1", CourseID: course.ID})
	require.NoError(t, err)

	var res *command.MarkLessonCompleteResult
	for _, l := range lessons {
		res, err = e.mark.Handle(ctx, command.MarkLessonCompleteCommand{StudentID: "s1", EnrollmentID: started.Enrollment.ID, LessonID: l.ID})
		require.NoError(t, err)
	}
	assert.Equal(t, 99, res.Progress.Percentage)
	assert.Equal(t, enrollment.StatusPendingPayment, res.Status)
	assert.False(t, res.CourseCompleted)
}

func TestAddLesson_CompletedEnrollmentStaysCompleted(t *testing.T) {
	e := newEnv()
	f := e.seedCourse(t, 0)
	ctx := context.Background()

	started, err := e.start.Handle(ctx, command.StartEnrollmentCommand{StudentID: "s1", CourseID: f.course.ID})
	require.NoError(t, err)
	for _, l := range f.lessons {
		_, err := e.mark.Handle(ctx, command.MarkLessonCompleteCommand{StudentID: "s1", EnrollmentID: started.Enrollment.ID, LessonID: l.ID})
		require.NoError(t, err)
	}

	_, err = e.addLesson.Handle(ctx, command.AddLessonCommand{TeacherID: "teacher-1", ModuleID: f.modules[1].ID, Title: "Bonus", Type: catalog.LessonQuiz})
	require.NoError(t, err)

	en, err := e.store.Enrollments().GetByID(ctx, started.Enrollment.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusCompleted, en.Status())
	assert.Equal(t, 100, en.Percentage)
}

func TestAddLesson_ActivePercentageDoesNotDrop(t *testing.T) {
	e := newEnv()
	f := e.seedCourse(t, 0)
	ctx := context.Background()

	started, err := e.start.Handle(ctx, command.StartEnrollmentCommand{StudentID: "s1", CourseID: f.course.ID})
	require.NoError(t, err)
	for _, l := range f.lessons[:2] {
		_, err := e.mark.Handle(ctx, command.MarkLessonCompleteCommand{StudentID: "s1", EnrollmentID: started.Enrollment.ID, LessonID: l.ID})
		require.NoError(t, err)
	}

	// 2/4 = 50; three more lessons make it 3/7 = 43 after the next completion.
	for i := 0; i < 3; i++ {
		_, err = e.addLesson.Handle(ctx, command.AddLessonCommand{TeacherID: "teacher-1", ModuleID: f.modules[1].ID, Title: "More", Type: catalog.LessonText})
		require.NoError(t, err)
	}
	res, err := e.mark.Handle(ctx, command.MarkLessonCompleteCommand{StudentID: "s1", EnrollmentID: started.Enrollment.ID, LessonID: f.lessons[2].ID})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Progress.CompletedCount)
	assert.Equal(t, 7, res.Progress.TotalCount)
	assert.Equal(t, 50, res.Progress.Percentage)
}
