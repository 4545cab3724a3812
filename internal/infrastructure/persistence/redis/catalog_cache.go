package redis

import (
	"context"
	"errors"
	"log/slog"

	"github.com/coursehub/coursehub-core/internal/domain/catalog"
)

// ══════════════════════════════════════════════════════════════════════════════
// CACHED CATALOG
// Read-through decorator over catalog.Repository. Own writes drop the course
// entries right away; CourseStructureChanged drops them again on every
// instance once the change is committed and relayed. Redis failures degrade
// to direct reads.
// ══════════════════════════════════════════════════════════════════════════════

// CachedCatalog caches courses and course structures.
type CachedCatalog struct {
	inner  catalog.Repository
	cache  *Cache
	logger *slog.Logger
}

var _ catalog.Repository = (*CachedCatalog)(nil)

// NewCachedCatalog wraps inner with a read-through cache.
func NewCachedCatalog(inner catalog.Repository, cache *Cache, logger *slog.Logger) *CachedCatalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedCatalog{inner: inner, cache: cache, logger: logger.With("component", "catalog_cache")}
}

// InvalidateCourse drops every cached entry of a course.
func (c *CachedCatalog) InvalidateCourse(ctx context.Context, courseID string) error {
	return c.cache.Delete(ctx, courseKey(courseID), structureKey(courseID))
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// GetCourse implements catalog.Repository.
func (c *CachedCatalog) GetCourse(ctx context.Context, id string) (*catalog.Course, error) {
	var cached catalog.Course
	if c.lookup(ctx, courseKey(id), &cached) {
		return &cached, nil
	}
	course, err := c.inner.GetCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, courseKey(id), course)
	return course, nil
}

// GetCourseStructure implements catalog.Repository.
func (c *CachedCatalog) GetCourseStructure(ctx context.Context, courseID string) (*catalog.CourseStructure, error) {
	var cached catalog.CourseStructure
	if c.lookup(ctx, structureKey(courseID), &cached) {
		return &cached, nil
	}
	structure, err := c.inner.GetCourseStructure(ctx, courseID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, structureKey(courseID), structure)
	return structure, nil
}

// GetLesson implements catalog.Repository. Lessons are served from the
// cached structure of their course, so a reorder is visible as soon as the
// structure entry is dropped.
func (c *CachedCatalog) GetLesson(ctx context.Context, id string) (*catalog.Lesson, error) {
	courseID, err := c.cache.GetString(ctx, lessonCourseKey(id))
	if err == nil {
		structure, err := c.GetCourseStructure(ctx, courseID)
		if err == nil {
			if l, ok := structure.Lesson(id); ok {
				return l, nil
			}
		}
	} else if !errors.Is(err, ErrMiss) {
		c.logger.Warn("cache read failed", "key", lessonCourseKey(id), "error", err)
	}

	lesson, err := c.inner.GetLesson(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetString(ctx, lessonCourseKey(id), lesson.CourseID, lessonIndexTTL); err != nil {
		c.logger.Warn("cache write failed", "key", lessonCourseKey(id), "error", err)
	}
	return lesson, nil
}

// GetModule implements catalog.Repository.
func (c *CachedCatalog) GetModule(ctx context.Context, id string) (*catalog.Module, error) {
	return c.inner.GetModule(ctx, id)
}

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

// CreateCourse implements catalog.Repository.
func (c *CachedCatalog) CreateCourse(ctx context.Context, course *catalog.Course) error {
	if err := c.inner.CreateCourse(ctx, course); err != nil {
		return err
	}
	c.drop(ctx, course.ID)
	return nil
}

// AddModule implements catalog.Repository.
func (c *CachedCatalog) AddModule(ctx context.Context, module *catalog.Module) error {
	if err := c.inner.AddModule(ctx, module); err != nil {
		return err
	}
	c.drop(ctx, module.CourseID)
	return nil
}

// AddLesson implements catalog.Repository.
func (c *CachedCatalog) AddLesson(ctx context.Context, lesson *catalog.Lesson) error {
	if err := c.inner.AddLesson(ctx, lesson); err != nil {
		return err
	}
	c.drop(ctx, lesson.CourseID)
	return nil
}

// ReorderModules implements catalog.Repository.
func (c *CachedCatalog) ReorderModules(ctx context.Context, courseID string, moduleIDs []string) error {
	if err := c.inner.ReorderModules(ctx, courseID, moduleIDs); err != nil {
		return err
	}
	c.drop(ctx, courseID)
	return nil
}

// ReorderLessons implements catalog.Repository.
func (c *CachedCatalog) ReorderLessons(ctx context.Context, moduleID string, lessonIDs []string) error {
	if err := c.inner.ReorderLessons(ctx, moduleID, lessonIDs); err != nil {
		return err
	}
	if m, err := c.inner.GetModule(ctx, moduleID); err == nil {
		c.drop(ctx, m.CourseID)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (c *CachedCatalog) lookup(ctx context.Context, key string, dest interface{}) bool {
	err := c.cache.Get(ctx, key, dest)
	if err == nil {
		return true
	}
	if !errors.Is(err, ErrMiss) {
		c.logger.Warn("cache read failed", "key", key, "error", err)
	}
	return false
}

func (c *CachedCatalog) store(ctx context.Context, key string, value interface{}) {
	if err := c.cache.Set(ctx, key, value, structureTTL); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

func (c *CachedCatalog) drop(ctx context.Context, courseID string) {
	if err := c.InvalidateCourse(ctx, courseID); err != nil {
		c.logger.Warn("cache invalidation failed", "course_id", courseID, "error", err)
	}
}
