package redis

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursehub/coursehub-core/internal/domain/catalog"
	"github.com/coursehub/coursehub-core/internal/domain/shared"
	"github.com/coursehub/coursehub-core/internal/infrastructure/persistence/memory"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type seeded struct {
	courseID string
	moduleID string
	lessons  []string
}

func seedCatalog(t *testing.T, repo catalog.Repository) seeded {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	s := seeded{courseID: uuid.NewString(), moduleID: uuid.NewString()}

	require.NoError(t, repo.CreateCourse(ctx, &catalog.Course{
		ID: s.courseID, TeacherID: "t1", Title: "Go", Price: shared.Money{Amount: 0, Currency: "USD"}, CreatedAt: now,
	}))
	require.NoError(t, repo.AddModule(ctx, &catalog.Module{ID: s.moduleID, CourseID: s.courseID, Title: "M", CreatedAt: now}))
	for i := 0; i < 2; i++ {
		id := uuid.NewString()
		require.NoError(t, repo.AddLesson(ctx, &catalog.Lesson{
			ID: id, ModuleID: s.moduleID, CourseID: s.courseID, Title: "L", Type: catalog.LessonText, CreatedAt: now,
		}))
		s.lessons = append(s.lessons, id)
	}
	return s
}

func TestCachedCatalog_FallsBackWhenRedisIsDown(t *testing.T) {
	down := &Cache{client: redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})}
	defer down.Close()

	cached := NewCachedCatalog(memory.NewStore().Catalog(), down, quiet)
	s := seedCatalog(t, cached)
	ctx := context.Background()

	course, err := cached.GetCourse(ctx, s.courseID)
	require.NoError(t, err)
	assert.Equal(t, "Go", course.Title)

	cs, err := cached.GetCourseStructure(ctx, s.courseID)
	require.NoError(t, err)
	assert.Equal(t, 2, cs.TotalLessons())

	l, err := cached.GetLesson(ctx, s.lessons[1])
	require.NoError(t, err)
	assert.Equal(t, 2, l.Order)

	_, err = cached.GetLesson(ctx, "missing")
	assert.ErrorIs(t, err, shared.ErrLessonNotFound)
}

func TestCachedCatalog_ReadThrough(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	cache, err := NewCache(Config{URL: url})
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	inner := memory.NewStore().Catalog()
	cached := NewCachedCatalog(inner, cache, quiet)
	s := seedCatalog(t, inner)
	t.Cleanup(func() {
		keys := []string{courseKey(s.courseID), structureKey(s.courseID)}
		for _, id := range s.lessons {
			keys = append(keys, lessonCourseKey(id))
		}
		_ = cache.Delete(context.Background(), keys...)
	})

	first, err := cached.GetLesson(ctx, s.lessons[0])
	require.NoError(t, err)
	assert.Equal(t, 1, first.Order)

	// A lesson lookup records its course.
	courseID, err := cache.GetString(ctx, lessonCourseKey(s.lessons[0]))
	require.NoError(t, err)
	assert.Equal(t, s.courseID, courseID)

	_, err = cached.GetCourseStructure(ctx, s.courseID)
	require.NoError(t, err)
	var stored catalog.CourseStructure
	require.NoError(t, cache.Get(ctx, structureKey(s.courseID), &stored))
	assert.Equal(t, 2, stored.TotalLessons())

	// A change behind the cache stays invisible until the course is invalidated.
	require.NoError(t, inner.ReorderLessons(ctx, s.moduleID, []string{s.lessons[1], s.lessons[0]}))
	stale, err := cached.GetLesson(ctx, s.lessons[0])
	require.NoError(t, err)
	assert.Equal(t, 1, stale.Order)

	require.NoError(t, cached.InvalidateCourse(ctx, s.courseID))
	fresh, err := cached.GetLesson(ctx, s.lessons[0])
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Order)

	// Writes through the decorator drop the course entries.
	require.NoError(t, cached.ReorderLessons(ctx, s.moduleID, []string{s.lessons[0], s.lessons[1]}))
	assert.ErrorIs(t, cache.Get(ctx, structureKey(s.courseID), &stored), ErrMiss)
}
