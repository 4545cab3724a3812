package app

import (
	"github.com/coursehub/coursehub-core/internal/application/command"
	"github.com/coursehub/coursehub-core/internal/application/query"
	"github.com/coursehub/coursehub-core/internal/domain/access"
	apihttp "github.com/coursehub/coursehub-core/internal/interface/http"
)

// HTTPDependencies wires every command and query handler over the runtime's
// storage. Catalog writes go through rt.Courses so cached entries are dropped;
// enrollment and payment commands read the store directly so they see the
// structure inside their own transaction.
func (rt *Runtime) HTTPDependencies() apihttp.Dependencies {
	s := rt.Storage
	writer := command.NewCatalogWriter(s.Tx, rt.Courses, s.Outbox, nil)

	return apihttp.Dependencies{
		CreateCourse:       command.NewCreateCourseHandler(writer),
		AddModule:          command.NewAddModuleHandler(writer),
		AddLesson:          command.NewAddLessonHandler(writer),
		Reorder:            command.NewReorderHandler(writer),
		SubmitPayment:      command.NewSubmitPaymentHandler(s.Tx, s.Catalog, s.Payments, s.Enrollments, s.Outbox, nil),
		ReviewPayment:      command.NewReviewPaymentHandler(s.Tx, s.Payments, s.Enrollments, s.Outbox, nil),
		StartEnrollment:    command.NewStartEnrollmentHandler(s.Tx, s.Catalog, s.Enrollments, s.Outbox, nil),
		MarkLessonComplete: command.NewMarkLessonCompleteHandler(s.Tx, s.Catalog, s.Enrollments, s.Progress, s.Outbox, nil),

		CourseStructure: query.NewGetCourseStructureHandler(rt.Courses),
		Enrollments:     query.NewEnrollmentQueries(s.Enrollments),
		Progress:        query.NewGetProgressHandler(s.Tx, rt.Courses, s.Enrollments, s.Progress),
		Access:          query.NewCanAccessLessonHandler(rt.Courses, access.NewGate(s.Enrollments)),
		Payments:        query.NewPaymentQueries(s.Payments),

		Logger:        rt.Logger,
		HealthChecker: rt.Health,
	}
}
