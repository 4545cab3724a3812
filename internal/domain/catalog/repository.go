package catalog

import "context"

// Repository is the storage contract for the catalog. Writes that assign or
// rewrite sibling orders must serialize on the parent row so orders stay dense.
type Repository interface {
	// CreateCourse stores a new course.
	CreateCourse(ctx context.Context, course *Course) error

	// GetCourse returns ErrCourseNotFound for unknown ids.
	GetCourse(ctx context.Context, id string) (*Course, error)

	// AddModule appends a module at position max(order)+1 and sets module.Order.
	AddModule(ctx context.Context, module *Module) error

	// GetModule returns ErrModuleNotFound for unknown ids.
	GetModule(ctx context.Context, id string) (*Module, error)

	// AddLesson appends a lesson at position max(order)+1 and sets lesson.Order.
	AddLesson(ctx context.Context, lesson *Lesson) error

	// GetLesson returns ErrLessonNotFound for unknown ids.
	GetLesson(ctx context.Context, id string) (*Lesson, error)

	// ReorderModules rewrites every module order of the course to 1..n following
	// moduleIDs. Returns ErrInvalidReorder unless moduleIDs is a permutation.
	ReorderModules(ctx context.Context, courseID string, moduleIDs []string) error

	// ReorderLessons rewrites every lesson order of the module to 1..n.
	ReorderLessons(ctx context.Context, moduleID string, lessonIDs []string) error

	// GetCourseStructure returns the ordered tree or ErrCourseNotFound.
	GetCourseStructure(ctx context.Context, courseID string) (*CourseStructure, error)
}

// StructureReader is the read side consumed by progress and access checks.
type StructureReader interface {
	GetCourse(ctx context.Context, id string) (*Course, error)
	GetLesson(ctx context.Context, id string) (*Lesson, error)
	GetCourseStructure(ctx context.Context, courseID string) (*CourseStructure, error)
}
