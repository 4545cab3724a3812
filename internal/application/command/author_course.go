// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coursehub/coursehub-core/internal/domain/catalog"
	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG AUTHORING COMMANDS
// Teacher-facing writes on the course tree. Orders are assigned and rewritten
// by the repository under a lock on the parent row so they stay dense.
// ══════════════════════════════════════════════════════════════════════════════

// CatalogWriter bundles the collaborators every authoring handler needs.
type CatalogWriter struct {
	tx     shared.Transactor
	repo   catalog.Repository
	events shared.EventRecorder
	now    shared.Clock
}

// NewCatalogWriter creates the shared authoring dependencies.
func NewCatalogWriter(tx shared.Transactor, repo catalog.Repository, events shared.EventRecorder, clock shared.Clock) *CatalogWriter {
	if clock == nil {
		clock = shared.SystemClock
	}
	return &CatalogWriter{tx: tx, repo: repo, events: events, now: clock}
}

// ownedCourse loads the course and checks the teacher owns it.
func (w *CatalogWriter) ownedCourse(ctx context.Context, courseID, teacherID string) (*catalog.Course, error) {
	course, err := w.repo.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !course.IsOwnedBy(teacherID) {
		return nil, shared.ErrNotCourseOwner
	}
	return course, nil
}

func (w *CatalogWriter) changed(ctx context.Context, courseID, change string, at time.Time) error {
	return w.events.Record(ctx, shared.NewCourseStructureChangedEvent(courseID, change, at))
}

// ─────────────────────────────────────────────────────────────────────────────
// CreateCourse
// ─────────────────────────────────────────────────────────────────────────────

// CreateCourseCommand creates a course owned by TeacherID.
type CreateCourseCommand struct {
	TeacherID string
	Title     string
	Price     int64 // minor units, 0 = free
	Currency  string
}

// Validate validates the command.
func (c CreateCourseCommand) Validate() error {
	if c.TeacherID == "" {
		return shared.Validationf("catalog", "CreateCourse", "teacher_id is required")
	}
	if strings.TrimSpace(c.Title) == "" {
		return shared.Validationf("catalog", "CreateCourse", "title is required")
	}
	if c.Price < 0 {
		return shared.Validationf("catalog", "CreateCourse", "price cannot be negative")
	}
	return nil
}

// CreateCourseHandler handles CreateCourseCommand.
type CreateCourseHandler struct {
	w *CatalogWriter
}

// NewCreateCourseHandler creates a new CreateCourseHandler.
func NewCreateCourseHandler(w *CatalogWriter) *CreateCourseHandler {
	return &CreateCourseHandler{w: w}
}

// Handle executes the command.
func (h *CreateCourseHandler) Handle(ctx context.Context, cmd CreateCourseCommand) (*catalog.Course, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	currency, err := shared.NewCurrency(cmd.Currency)
	if err != nil {
		return nil, err
	}
	now := h.w.now()
	course, err := catalog.NewCourse(uuid.NewString(), cmd.TeacherID, cmd.Title,
		shared.Money{Amount: cmd.Price, Currency: currency}, now)
	if err != nil {
		return nil, err
	}

	err = h.w.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := h.w.repo.CreateCourse(ctx, course); err != nil {
			return err
		}
		return h.w.changed(ctx, course.ID, "course_created", now)
	})
	if err != nil {
		return nil, err
	}
	return course, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// AddModule
// ─────────────────────────────────────────────────────────────────────────────

// AddModuleCommand appends a module to a course.
type AddModuleCommand struct {
	TeacherID string
	CourseID  string
	Title     string
}

// AddModuleHandler handles AddModuleCommand.
type AddModuleHandler struct {
	w *CatalogWriter
}

// NewAddModuleHandler creates a new AddModuleHandler.
func NewAddModuleHandler(w *CatalogWriter) *AddModuleHandler {
	return &AddModuleHandler{w: w}
}

// Handle executes the command.
func (h *AddModuleHandler) Handle(ctx context.Context, cmd AddModuleCommand) (*catalog.Module, error) {
	now := h.w.now()
	// Order 1 is a placeholder; the repository assigns the real position.
	module, err := catalog.NewModule(uuid.NewString(), cmd.CourseID, cmd.Title, 1, now)
	if err != nil {
		return nil, err
	}

	err = h.w.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := h.w.ownedCourse(ctx, cmd.CourseID, cmd.TeacherID); err != nil {
			return err
		}
		if err := h.w.repo.AddModule(ctx, module); err != nil {
			return err
		}
		return h.w.changed(ctx, cmd.CourseID, "module_added", now)
	})
	if err != nil {
		return nil, err
	}
	return module, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// AddLesson
// ─────────────────────────────────────────────────────────────────────────────

// AddLessonCommand appends a lesson to a module.
type AddLessonCommand struct {
	TeacherID       string
	ModuleID        string
	Title           string
	Type            catalog.LessonType
	IsFree          bool
	DurationMinutes int
}

// AddLessonHandler handles AddLessonCommand.
type AddLessonHandler struct {
	w *CatalogWriter
}

// NewAddLessonHandler creates a new AddLessonHandler.
func NewAddLessonHandler(w *CatalogWriter) *AddLessonHandler {
	return &AddLessonHandler{w: w}
}

// Handle executes the command. Adding a lesson to a course that some students
// already completed leaves their enrollments completed.
func (h *AddLessonHandler) Handle(ctx context.Context, cmd AddLessonCommand) (*catalog.Lesson, error) {
	now := h.w.now()
	var lesson *catalog.Lesson

	err := h.w.tx.WithinTx(ctx, func(ctx context.Context) error {
		module, err := h.w.repo.GetModule(ctx, cmd.ModuleID)
		if err != nil {
			return err
		}
		if _, err := h.w.ownedCourse(ctx, module.CourseID, cmd.TeacherID); err != nil {
			return err
		}
		lesson, err = catalog.NewLesson(uuid.NewString(), module, cmd.Title, cmd.Type, cmd.IsFree, cmd.DurationMinutes, 1, now)
		if err != nil {
			return err
		}
		if err := h.w.repo.AddLesson(ctx, lesson); err != nil {
			return err
		}
		return h.w.changed(ctx, module.CourseID, "lesson_added", now)
	})
	if err != nil {
		return nil, err
	}
	return lesson, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Reorder
// ─────────────────────────────────────────────────────────────────────────────

// ReorderModulesCommand sets the module sequence of a course.
type ReorderModulesCommand struct {
	TeacherID string
	CourseID  string
	ModuleIDs []string
}

// ReorderLessonsCommand sets the lesson sequence of a module.
type ReorderLessonsCommand struct {
	TeacherID string
	ModuleID  string
	LessonIDs []string
}

// ReorderHandler handles both reorder commands.
type ReorderHandler struct {
	w *CatalogWriter
}

// NewReorderHandler creates a new ReorderHandler.
func NewReorderHandler(w *CatalogWriter) *ReorderHandler {
	return &ReorderHandler{w: w}
}

// HandleModules rewrites every module order of the course in one transaction.
func (h *ReorderHandler) HandleModules(ctx context.Context, cmd ReorderModulesCommand) (*catalog.CourseStructure, error) {
	now := h.w.now()
	err := h.w.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := h.w.ownedCourse(ctx, cmd.CourseID, cmd.TeacherID); err != nil {
			return err
		}
		if err := h.w.repo.ReorderModules(ctx, cmd.CourseID, cmd.ModuleIDs); err != nil {
			return err
		}
		return h.w.changed(ctx, cmd.CourseID, "modules_reordered", now)
	})
	if err != nil {
		return nil, err
	}
	return h.w.repo.GetCourseStructure(ctx, cmd.CourseID)
}

// HandleLessons rewrites every lesson order of the module in one transaction.
func (h *ReorderHandler) HandleLessons(ctx context.Context, cmd ReorderLessonsCommand) (*catalog.CourseStructure, error) {
	now := h.w.now()
	var courseID string
	err := h.w.tx.WithinTx(ctx, func(ctx context.Context) error {
		module, err := h.w.repo.GetModule(ctx, cmd.ModuleID)
		if err != nil {
			return err
		}
		courseID = module.CourseID
		if _, err := h.w.ownedCourse(ctx, module.CourseID, cmd.TeacherID); err != nil {
			return err
		}
		if err := h.w.repo.ReorderLessons(ctx, cmd.ModuleID, cmd.LessonIDs); err != nil {
			return err
		}
		return h.w.changed(ctx, module.CourseID, "lessons_reordered", now)
	})
	if err != nil {
		return nil, err
	}
	return h.w.repo.GetCourseStructure(ctx, courseID)
}
