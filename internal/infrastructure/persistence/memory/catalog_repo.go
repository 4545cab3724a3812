package memory

import (
	"context"

	"github.com/coursehub/coursehub-core/internal/domain/catalog"
	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

// CatalogRepository implements catalog.Repository.
type CatalogRepository struct {
	s *Store
}

var _ catalog.Repository = (*CatalogRepository)(nil)

// CreateCourse implements catalog.Repository.
func (r *CatalogRepository) CreateCourse(ctx context.Context, course *catalog.Course) error {
	return r.s.write(ctx, func(d *state) error {
		if _, ok := d.courses[course.ID]; ok {
			return shared.NewDomainError("catalog", "CreateCourse", shared.ErrConflict, "course already exists")
		}
		d.courses[course.ID] = *course
		return nil
	})
}

// GetCourse implements catalog.Repository.
func (r *CatalogRepository) GetCourse(ctx context.Context, id string) (*catalog.Course, error) {
	var out catalog.Course
	err := r.s.read(ctx, func(d *state) error {
		c, ok := d.courses[id]
		if !ok {
			return shared.ErrCourseNotFound
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AddModule implements catalog.Repository.
func (r *CatalogRepository) AddModule(ctx context.Context, module *catalog.Module) error {
	return r.s.write(ctx, func(d *state) error {
		if _, ok := d.courses[module.CourseID]; !ok {
			return shared.ErrCourseNotFound
		}
		next := 1
		for _, m := range d.modules {
			if m.CourseID == module.CourseID && m.Order >= next {
				next = m.Order + 1
			}
		}
		module.Order = next
		d.modules[module.ID] = *module
		return nil
	})
}

// GetModule implements catalog.Repository.
func (r *CatalogRepository) GetModule(ctx context.Context, id string) (*catalog.Module, error) {
	var out catalog.Module
	err := r.s.read(ctx, func(d *state) error {
		m, ok := d.modules[id]
		if !ok {
			return shared.ErrModuleNotFound
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AddLesson implements catalog.Repository.
func (r *CatalogRepository) AddLesson(ctx context.Context, lesson *catalog.Lesson) error {
	return r.s.write(ctx, func(d *state) error {
		if _, ok := d.modules[lesson.ModuleID]; !ok {
			return shared.ErrModuleNotFound
		}
		next := 1
		for _, l := range d.lessons {
			if l.ModuleID == lesson.ModuleID && l.Order >= next {
				next = l.Order + 1
			}
		}
		lesson.Order = next
		d.lessons[lesson.ID] = *lesson
		return nil
	})
}

// GetLesson implements catalog.Repository.
func (r *CatalogRepository) GetLesson(ctx context.Context, id string) (*catalog.Lesson, error) {
	var out catalog.Lesson
	err := r.s.read(ctx, func(d *state) error {
		l, ok := d.lessons[id]
		if !ok {
			return shared.ErrLessonNotFound
		}
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ReorderModules implements catalog.Repository.
func (r *CatalogRepository) ReorderModules(ctx context.Context, courseID string, moduleIDs []string) error {
	return r.s.write(ctx, func(d *state) error {
		if _, ok := d.courses[courseID]; !ok {
			return shared.ErrCourseNotFound
		}
		var current []string
		for id, m := range d.modules {
			if m.CourseID == courseID {
				current = append(current, id)
			}
		}
		if err := catalog.ValidateReorder(current, moduleIDs); err != nil {
			return err
		}
		for i, id := range moduleIDs {
			m := d.modules[id]
			m.Order = i + 1
			d.modules[id] = m
		}
		return nil
	})
}

// ReorderLessons implements catalog.Repository.
func (r *CatalogRepository) ReorderLessons(ctx context.Context, moduleID string, lessonIDs []string) error {
	return r.s.write(ctx, func(d *state) error {
		if _, ok := d.modules[moduleID]; !ok {
			return shared.ErrModuleNotFound
		}
		var current []string
		for id, l := range d.lessons {
			if l.ModuleID == moduleID {
				current = append(current, id)
			}
		}
		if err := catalog.ValidateReorder(current, lessonIDs); err != nil {
			return err
		}
		for i, id := range lessonIDs {
			l := d.lessons[id]
			l.Order = i + 1
			d.lessons[id] = l
		}
		return nil
	})
}

// GetCourseStructure implements catalog.Repository.
func (r *CatalogRepository) GetCourseStructure(ctx context.Context, courseID string) (*catalog.CourseStructure, error) {
	var out *catalog.CourseStructure
	err := r.s.read(ctx, func(d *state) error {
		c, ok := d.courses[courseID]
		if !ok {
			return shared.ErrCourseNotFound
		}
		var modules []catalog.Module
		for _, m := range d.modules {
			if m.CourseID == courseID {
				modules = append(modules, m)
			}
		}
		var lessons []catalog.Lesson
		for _, l := range d.lessons {
			if l.CourseID == courseID {
				lessons = append(lessons, l)
			}
		}
		out = catalog.NewCourseStructure(c, modules, lessons)
		return nil
	})
	return out, err
}
