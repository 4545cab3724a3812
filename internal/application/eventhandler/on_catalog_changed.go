package eventhandler

import (
	"context"
	"log/slog"
	"time"

	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON CATALOG CHANGED HANDLER
// Drops cached course structures when the catalog changes, so every API
// instance stops serving the old tree once the event is relayed.
// ═══════════════════════════════════════════════════════════════════════════

// CourseCacheInvalidator removes cached reads for a course.
type CourseCacheInvalidator interface {
	InvalidateCourse(ctx context.Context, courseID string) error
}

// OnCatalogChangedHandler invalidates the course cache.
type OnCatalogChangedHandler struct {
	cache  CourseCacheInvalidator
	logger *slog.Logger
}

// NewOnCatalogChangedHandler creates a new OnCatalogChangedHandler.
func NewOnCatalogChangedHandler(cache CourseCacheInvalidator, logger *slog.Logger) *OnCatalogChangedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnCatalogChangedHandler{cache: cache, logger: logger.With("handler", "on_catalog_changed")}
}

// Register subscribes to structure changes.
func (h *OnCatalogChangedHandler) Register(bus shared.EventSubscriber) error {
	return bus.Subscribe(shared.EventCourseStructureChanged, h.Handle)
}

// Handle implements shared.EventHandler.
func (h *OnCatalogChangedHandler) Handle(event shared.Event) error {
	courseID := shared.PayloadString(event, "course_id")
	if courseID == "" {
		courseID = event.AggregateID()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.cache.InvalidateCourse(ctx, courseID); err != nil {
		h.logger.Warn("failed to invalidate course cache", "course_id", courseID, "error", err)
		return err
	}
	h.logger.Debug("course cache invalidated", "course_id", courseID, "change", shared.PayloadString(event, "change"))
	return nil
}
