// Package catalog holds the authoritative Course → Module → Lesson structure.
// It is read-mostly: teachers author and reorder, everyone else reads.
package catalog

import (
	"sort"
	"strings"
	"time"

	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// LessonType is the kind of content a lesson carries.
type LessonType string

const (
	LessonVideo      LessonType = "video"
	LessonText       LessonType = "text"
	LessonQuiz       LessonType = "quiz"
	LessonAssignment LessonType = "assignment"
	LessonFile       LessonType = "file"
)

// IsValid checks that the lesson type is known.
func (t LessonType) IsValid() bool {
	switch t {
	case LessonVideo, LessonText, LessonQuiz, LessonAssignment, LessonFile:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// Course is the root of the catalog tree. Price 0 means free.
type Course struct {
	ID        string
	TeacherID string
	Title     string
	Price     shared.Money
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsPaid reports whether the course requires an approved payment.
func (c *Course) IsPaid() bool {
	return c.Price.Amount > 0
}

// IsOwnedBy reports whether the teacher may modify the course.
func (c *Course) IsOwnedBy(teacherID string) bool {
	return teacherID != "" && c.TeacherID == teacherID
}

// Validate checks course invariants.
func (c *Course) Validate() error {
	if c.ID == "" {
		return shared.Validationf("catalog", "ValidateCourse", "course id is required")
	}
	if c.TeacherID == "" {
		return shared.Validationf("catalog", "ValidateCourse", "teacher id is required")
	}
	if strings.TrimSpace(c.Title) == "" || len(c.Title) > 255 {
		return shared.Validationf("catalog", "ValidateCourse", "title must be 1..255 characters")
	}
	if c.Price.Amount < 0 {
		return shared.Validationf("catalog", "ValidateCourse", "price cannot be negative")
	}
	if !c.Price.Currency.IsValid() {
		return shared.Validationf("catalog", "ValidateCourse", "invalid currency %q", c.Price.Currency)
	}
	return nil
}

// NewCourse creates a validated course.
func NewCourse(id, teacherID, title string, price shared.Money, now time.Time) (*Course, error) {
	c := &Course{
		ID:        id,
		TeacherID: teacherID,
		Title:     strings.TrimSpace(title),
		Price:     price,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Module groups lessons inside a course. Order is dense 1..n within the course.
type Module struct {
	ID        string
	CourseID  string
	Title     string
	Order     int
	CreatedAt time.Time
}

// NewModule creates a module at the given position.
func NewModule(id, courseID, title string, order int, now time.Time) (*Module, error) {
	title = strings.TrimSpace(title)
	if id == "" || courseID == "" {
		return nil, shared.Validationf("catalog", "NewModule", "module and course ids are required")
	}
	if title == "" || len(title) > 255 {
		return nil, shared.Validationf("catalog", "NewModule", "title must be 1..255 characters")
	}
	if order < 1 {
		return nil, shared.Validationf("catalog", "NewModule", "order must be positive")
	}
	return &Module{ID: id, CourseID: courseID, Title: title, Order: order, CreatedAt: now}, nil
}

// Lesson is the smallest unit of content. Order is dense 1..n within the module.
// CourseID is denormalized so access checks need no extra lookup.
type Lesson struct {
	ID              string
	ModuleID        string
	CourseID        string
	Title           string
	Order           int
	Type            LessonType
	IsFree          bool
	DurationMinutes int
	CreatedAt       time.Time
}

// NewLesson creates a lesson at the given position.
func NewLesson(id string, module *Module, title string, lessonType LessonType, isFree bool, durationMinutes, order int, now time.Time) (*Lesson, error) {
	title = strings.TrimSpace(title)
	if id == "" || module == nil {
		return nil, shared.Validationf("catalog", "NewLesson", "lesson id and module are required")
	}
	if title == "" || len(title) > 255 {
		return nil, shared.Validationf("catalog", "NewLesson", "title must be 1..255 characters")
	}
	if !lessonType.IsValid() {
		return nil, shared.Validationf("catalog", "NewLesson", "unknown lesson type %q", lessonType)
	}
	if durationMinutes < 0 {
		return nil, shared.Validationf("catalog", "NewLesson", "duration cannot be negative")
	}
	if order < 1 {
		return nil, shared.Validationf("catalog", "NewLesson", "order must be positive")
	}
	return &Lesson{
		ID:              id,
		ModuleID:        module.ID,
		CourseID:        module.CourseID,
		Title:           title,
		Order:           order,
		Type:            lessonType,
		IsFree:          isFree,
		DurationMinutes: durationMinutes,
		CreatedAt:       now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATE VIEW: COURSE STRUCTURE
// ══════════════════════════════════════════════════════════════════════════════

// ModuleView is a module with its ordered lessons.
type ModuleView struct {
	Module  Module
	Lessons []Lesson
}

// CourseStructure is the ordered, read-only view of a whole course.
type CourseStructure struct {
	Course  Course
	Modules []ModuleView
}

// NewCourseStructure assembles a structure from flat rows, applying catalog order
// (module order, then lesson order, creation time as tie-break).
func NewCourseStructure(course Course, modules []Module, lessons []Lesson) *CourseStructure {
	SortModules(modules)
	SortLessons(lessons)

	byModule := make(map[string][]Lesson, len(modules))
	for _, l := range lessons {
		byModule[l.ModuleID] = append(byModule[l.ModuleID], l)
	}

	cs := &CourseStructure{Course: course, Modules: make([]ModuleView, 0, len(modules))}
	for _, m := range modules {
		ls := byModule[m.ID]
		if ls == nil {
			ls = []Lesson{}
		}
		cs.Modules = append(cs.Modules, ModuleView{Module: m, Lessons: ls})
	}
	return cs
}

// OrderedLessons returns every lesson in catalog order.
func (cs *CourseStructure) OrderedLessons() []Lesson {
	var out []Lesson
	for _, m := range cs.Modules {
		out = append(out, m.Lessons...)
	}
	return out
}

// TotalLessons returns the number of lessons in the course.
func (cs *CourseStructure) TotalLessons() int {
	n := 0
	for _, m := range cs.Modules {
		n += len(m.Lessons)
	}
	return n
}

// FirstLesson returns the first lesson in catalog order.
func (cs *CourseStructure) FirstLesson() (*Lesson, bool) {
	for _, m := range cs.Modules {
		if len(m.Lessons) > 0 {
			l := m.Lessons[0]
			return &l, true
		}
	}
	return nil, false
}

// Lesson finds a lesson by id.
func (cs *CourseStructure) Lesson(lessonID string) (*Lesson, bool) {
	for _, m := range cs.Modules {
		for _, l := range m.Lessons {
			if l.ID == lessonID {
				l := l
				return &l, true
			}
		}
	}
	return nil, false
}

// NextIncomplete returns the first lesson after `after` in catalog order whose
// id is not in completed. It returns false if none remains.
func (cs *CourseStructure) NextIncomplete(after string, completed map[string]bool) (*Lesson, bool) {
	lessons := cs.OrderedLessons()
	start := -1
	for i, l := range lessons {
		if l.ID == after {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, false
	}
	for _, l := range lessons[start+1:] {
		if !completed[l.ID] {
			l := l
			return &l, true
		}
	}
	return nil, false
}

// ══════════════════════════════════════════════════════════════════════════════
// ORDERING
// ══════════════════════════════════════════════════════════════════════════════

// SortModules sorts by order, then creation time.
func SortModules(modules []Module) {
	sort.SliceStable(modules, func(i, j int) bool {
		if modules[i].Order != modules[j].Order {
			return modules[i].Order < modules[j].Order
		}
		return modules[i].CreatedAt.Before(modules[j].CreatedAt)
	})
}

// SortLessons sorts by order, then creation time. Lessons of different modules
// keep their relative grouping only after NewCourseStructure buckets them.
func SortLessons(lessons []Lesson) {
	sort.SliceStable(lessons, func(i, j int) bool {
		if lessons[i].Order != lessons[j].Order {
			return lessons[i].Order < lessons[j].Order
		}
		return lessons[i].CreatedAt.Before(lessons[j].CreatedAt)
	})
}

// ValidateReorder checks that ordered is a permutation of current.
func ValidateReorder(current, ordered []string) error {
	if len(current) != len(ordered) {
		return shared.ErrInvalidReorder
	}
	want := make(map[string]bool, len(current))
	for _, id := range current {
		want[id] = true
	}
	seen := make(map[string]bool, len(ordered))
	for _, id := range ordered {
		if !want[id] || seen[id] {
			return shared.ErrInvalidReorder
		}
		seen[id] = true
	}
	return nil
}
