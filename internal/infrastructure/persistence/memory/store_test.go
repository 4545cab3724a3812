package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursehub/coursehub-core/internal/domain/catalog"
	"github.com/coursehub/coursehub-core/internal/domain/enrollment"
	"github.com/coursehub/coursehub-core/internal/domain/payment"
	"github.com/coursehub/coursehub-core/internal/domain/progress"
	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

var now = time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *Store) (*catalog.Course, *catalog.Module) {
	t.Helper()
	ctx := context.Background()
	c := &catalog.Course{ID: "c1", TeacherID: "t1", Title: "Go", Price: shared.Money{Amount: 100, Currency: "USD"}, CreatedAt: now}
	require.NoError(t, s.Catalog().CreateCourse(ctx, c))
	m := &catalog.Module{ID: "m1", CourseID: "c1", Title: "M", Order: 1, CreatedAt: now}
	require.NoError(t, s.Catalog().AddModule(ctx, m))
	return c, m
}

func TestWithinTx_RollbackRestoresEverything(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, m := seed(t, s)
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context) error {
		l := &catalog.Lesson{ID: "l1", ModuleID: m.ID, CourseID: "c1", Title: "L", Type: catalog.LessonText, CreatedAt: now}
		require.NoError(t, s.Catalog().AddLesson(ctx, l))
		_, _, err := s.Enrollments().GetOrCreate(ctx, enrollment.NewFree("e1", "s1", "c1", "l1", now))
		require.NoError(t, err)
		require.NoError(t, s.Outbox().Record(ctx, shared.NewCourseStructureChangedEvent("c1", "lesson_added", now)))

		// Nested calls join the outer transaction.
		return s.WithinTx(ctx, func(context.Context) error { return boom })
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Catalog().GetLesson(ctx, "l1")
	assert.ErrorIs(t, err, shared.ErrLessonNotFound)
	_, err = s.Enrollments().GetByStudentCourse(ctx, "s1", "c1")
	assert.ErrorIs(t, err, shared.ErrNotEnrolled)
	pending, err := s.Outbox().Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestWithinTx_UncommittedWritesAreInvisible(t *testing.T) {
	s := NewStore()
	outside := context.Background()
	_, m := seed(t, s)
	boom := errors.New("boom")

	err := s.WithinTx(outside, func(ctx context.Context) error {
		l := &catalog.Lesson{ID: "l1", ModuleID: m.ID, CourseID: "c1", Title: "L", Type: catalog.LessonText, CreatedAt: now}
		require.NoError(t, s.Catalog().AddLesson(ctx, l))
		require.NoError(t, s.Outbox().Record(ctx, shared.NewPaymentApprovedEvent("p1", "s1", "c1", "r1", now)))

		// The transaction sees its own writes.
		_, err := s.Catalog().GetLesson(ctx, "l1")
		require.NoError(t, err)

		// Everyone else sees only committed state.
		_, err = s.Catalog().GetLesson(outside, "l1")
		assert.ErrorIs(t, err, shared.ErrLessonNotFound)
		events, err := s.Outbox().FetchUnrelayed(outside, 0)
		require.NoError(t, err)
		assert.Empty(t, events)
		return boom
	})
	require.ErrorIs(t, err, boom)

	pending, err := s.Outbox().Pending(outside)
	require.NoError(t, err)
	assert.Zero(t, pending)

	require.NoError(t, s.WithinTx(outside, func(ctx context.Context) error {
		return s.Outbox().Record(ctx, shared.NewPaymentApprovedEvent("p2", "s1", "c1", "r1", now))
	}))
	pending, err = s.Outbox().Pending(outside)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestWithinSnapshot(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, m := seed(t, s)

	err := s.WithinSnapshot(ctx, func(snap context.Context) error {
		// A commit after the snapshot was taken stays invisible to it.
		l := &catalog.Lesson{ID: "l1", ModuleID: m.ID, CourseID: "c1", Title: "L", Type: catalog.LessonText, CreatedAt: now}
		require.NoError(t, s.Catalog().AddLesson(ctx, l))

		_, err := s.Catalog().GetLesson(snap, "l1")
		assert.ErrorIs(t, err, shared.ErrLessonNotFound)
		_, err = s.Catalog().GetCourse(snap, "c1")
		assert.NoError(t, err)

		err = s.Outbox().Record(snap, shared.NewCourseStructureChangedEvent("c1", "lesson_added", now))
		assert.ErrorIs(t, err, shared.ErrUnavailable)
		return nil
	})
	require.NoError(t, err)

	_, err = s.Catalog().GetLesson(ctx, "l1")
	assert.NoError(t, err)
	pending, err := s.Outbox().Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestWithinTx_CancelledContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.WithinTx(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, shared.ErrUnavailable)
	assert.Error(t, s.Ping(ctx))
}

func TestCatalog_DenseOrders(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, m := seed(t, s)

	for _, id := range []string{"a", "b", "c"} {
		l := &catalog.Lesson{ID: id, ModuleID: m.ID, CourseID: "c1", Title: id, Type: catalog.LessonText, Order: 1, CreatedAt: now}
		require.NoError(t, s.Catalog().AddLesson(ctx, l))
	}
	cs, err := s.Catalog().GetCourseStructure(ctx, "c1")
	require.NoError(t, err)
	lessons := cs.Modules[0].Lessons
	require.Len(t, lessons, 3)
	for i, l := range lessons {
		assert.Equal(t, i+1, l.Order)
	}

	require.NoError(t, s.Catalog().ReorderLessons(ctx, m.ID, []string{"c", "a", "b"}))
	cs, err = s.Catalog().GetCourseStructure(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c", cs.Modules[0].Lessons[0].ID)
	assert.Equal(t, 1, cs.Modules[0].Lessons[0].Order)

	assert.ErrorIs(t, s.Catalog().ReorderLessons(ctx, m.ID, []string{"c", "a"}), shared.ErrInvalidReorder)
	assert.ErrorIs(t, s.Catalog().ReorderModules(ctx, "missing", nil), shared.ErrCourseNotFound)
}

func TestPayments_CompareAndSwap(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	repo := s.Payments()

	p, err := payment.NewPayment("p1", "s1", "c1", "e1", shared.Money{Amount: 100, Currency: "USD"}, "r/1", now)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, p))

	dup, err := payment.NewPayment("p2", "s1", "c1", "e1", shared.Money{Amount: 100, Currency: "USD"}, "r/2", now)
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Create(ctx, dup), shared.ErrPendingPaymentExists)

	require.NoError(t, repo.CompareAndSwap(ctx, "p1", payment.Approved{ReviewerID: "r", ReviewedAt: now}))
	assert.ErrorIs(t, repo.CompareAndSwap(ctx, "p1", payment.Rejected{ReviewerID: "r", ReviewedAt: now, Reason: "x"}), shared.ErrPaymentAlreadyReviewed)
	assert.ErrorIs(t, repo.CompareAndSwap(ctx, "missing", payment.Pending{}), shared.ErrPaymentNotFound)

	got, err := repo.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusApproved, got.Status())

	// Once the first is reviewed a new pending payment is accepted.
	require.NoError(t, repo.Create(ctx, dup))
}

func TestPayments_ListPendingOldestFirst(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	repo := s.Payments()

	for i, student := range []string{"s3", "s1", "s2"} {
		p, err := payment.NewPayment("p-"+student, student, "c1", "", shared.Money{Amount: 1, Currency: "USD"}, "r", now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, p))
	}

	all, err := repo.ListPending(ctx, shared.ListOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "s3", all[0].StudentID)
	assert.Equal(t, "s2", all[2].StudentID)

	second, err := repo.ListPending(ctx, shared.ListOptions{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "s1", second[0].StudentID)

	empty, err := repo.ListPending(ctx, shared.ListOptions{Offset: 5, Limit: 1})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestEnrollments_GetOrCreateAndActivate(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	repo := s.Enrollments()

	e, created, err := repo.GetOrCreate(ctx, enrollment.NewPendingPayment("e1", "s1", "c1", "", now))
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := repo.GetOrCreate(ctx, enrollment.NewPendingPayment("e2", "s1", "c1", "", now))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, e.ID, again.ID)

	ok, err := repo.ActivateIfPending(ctx, "e1", enrollment.Active{ActivatedAt: now, PaymentID: "p1"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ActivateIfPending(ctx, "e1", enrollment.Active{ActivatedAt: now, PaymentID: "p2"})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.PaymentID())

	list, err := repo.ListByStudent(ctx, "s1", shared.DefaultListOptions())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestProgress_InsertOnce(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, _, err := s.Enrollments().GetOrCreate(ctx, enrollment.NewFree("e1", "s1", "c1", "", now))
	require.NoError(t, err)

	c := progress.LessonCompletion{EnrollmentID: "e1", LessonID: "l1", CompletedAt: now}
	inserted, err := s.Progress().Insert(ctx, c)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.Progress().Insert(ctx, c)
	require.NoError(t, err)
	assert.False(t, inserted)

	_, err = s.Progress().Insert(ctx, progress.LessonCompletion{EnrollmentID: "missing", LessonID: "l1", CompletedAt: now})
	assert.ErrorIs(t, err, shared.ErrEnrollmentNotFound)

	done, err := s.Progress().CompletedLessonIDs(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"l1": true}, done)
}

func TestOutbox_FetchAndMark(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	ob := s.Outbox()

	require.NoError(t, ob.Record(ctx,
		shared.NewCourseStructureChangedEvent("c1", "a", now),
		shared.NewCourseStructureChangedEvent("c2", "b", now),
		shared.NewCourseStructureChangedEvent("c3", "c", now),
	))

	batch, err := ob.FetchUnrelayed(ctx, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "c1", batch[0].AggregateID())
	assert.Equal(t, "c2", batch[1].AggregateID())
	assert.Equal(t, "b", shared.PayloadString(batch[1], "change"))

	require.NoError(t, ob.MarkRelayed(ctx, []string{batch[0].ID}))
	rest, err := ob.FetchUnrelayed(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, "c2", rest[0].AggregateID())

	n, err := ob.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
