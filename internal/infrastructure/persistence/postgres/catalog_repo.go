package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/coursehub/coursehub-core/internal/domain/catalog"
	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// CatalogRepository implements catalog.Repository for PostgreSQL. Writes that
// assign sibling orders lock the parent row first, so concurrent appends to
// the same course or module serialize and orders stay dense.
type CatalogRepository struct {
	conn *Connection
}

var _ catalog.Repository = (*CatalogRepository)(nil)

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(conn *Connection) *CatalogRepository {
	return &CatalogRepository{conn: conn}
}

// ─────────────────────────────────────────────────────────────────────────────
// Courses
// ─────────────────────────────────────────────────────────────────────────────

// CreateCourse implements catalog.Repository.
func (r *CatalogRepository) CreateCourse(ctx context.Context, c *catalog.Course) error {
	query := `
		INSERT INTO courses (id, teacher_id, title, price, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.conn.Exec(ctx, query,
		c.ID, c.TeacherID, c.Title, c.Price.Amount, string(c.Price.Currency), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("catalog", "CreateCourse", shared.ErrConflict, "course already exists")
		}
		return shared.Unavailable("catalog", "CreateCourse", fmt.Errorf("failed to create course: %w", err))
	}
	return nil
}

// GetCourse implements catalog.Repository.
func (r *CatalogRepository) GetCourse(ctx context.Context, id string) (*catalog.Course, error) {
	query := `
		SELECT id, teacher_id, title, price, currency, created_at, updated_at
		FROM courses
		WHERE id = $1
	`
	return scanCourse(r.conn.QueryRow(ctx, query, id))
}

func scanCourse(row pgx.Row) (*catalog.Course, error) {
	var c catalog.Course
	var currency string
	err := row.Scan(&c.ID, &c.TeacherID, &c.Title, &c.Price.Amount, &currency, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrCourseNotFound
		}
		return nil, shared.Unavailable("catalog", "GetCourse", fmt.Errorf("failed to scan course: %w", err))
	}
	c.Price.Currency = shared.Currency(currency)
	return &c, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Modules
// ─────────────────────────────────────────────────────────────────────────────

// AddModule implements catalog.Repository.
func (r *CatalogRepository) AddModule(ctx context.Context, m *catalog.Module) error {
	return r.conn.WithinTx(ctx, func(ctx context.Context) error {
		if err := r.lockCourse(ctx, m.CourseID); err != nil {
			return err
		}

		var next int
		err := r.conn.QueryRow(ctx,
			`SELECT COALESCE(MAX("order"), 0) + 1 FROM modules WHERE course_id = $1`, m.CourseID,
		).Scan(&next)
		if err != nil {
			return shared.Unavailable("catalog", "AddModule", err)
		}
		m.Order = next

		_, err = r.conn.Exec(ctx, `
			INSERT INTO modules (id, course_id, title, "order", created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, m.ID, m.CourseID, m.Title, m.Order, m.CreatedAt)
		if err != nil {
			return shared.Unavailable("catalog", "AddModule", fmt.Errorf("failed to insert module: %w", err))
		}
		return nil
	})
}

// GetModule implements catalog.Repository.
func (r *CatalogRepository) GetModule(ctx context.Context, id string) (*catalog.Module, error) {
	var m catalog.Module
	err := r.conn.QueryRow(ctx, `
		SELECT id, course_id, title, "order", created_at FROM modules WHERE id = $1
	`, id).Scan(&m.ID, &m.CourseID, &m.Title, &m.Order, &m.CreatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrModuleNotFound
		}
		return nil, shared.Unavailable("catalog", "GetModule", err)
	}
	return &m, nil
}

// ReorderModules implements catalog.Repository.
func (r *CatalogRepository) ReorderModules(ctx context.Context, courseID string, moduleIDs []string) error {
	return r.conn.WithinTx(ctx, func(ctx context.Context) error {
		if err := r.lockCourse(ctx, courseID); err != nil {
			return err
		}
		current, err := r.ids(ctx, `SELECT id FROM modules WHERE course_id = $1`, courseID)
		if err != nil {
			return err
		}
		if err := catalog.ValidateReorder(current, moduleIDs); err != nil {
			return err
		}
		return r.rewriteOrder(ctx, `UPDATE modules SET "order" = $1 WHERE id = $2`, moduleIDs)
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Lessons
// ─────────────────────────────────────────────────────────────────────────────

const lessonColumns = `id, module_id, course_id, title, "order", type, is_free, duration_minutes, created_at`

// AddLesson implements catalog.Repository.
func (r *CatalogRepository) AddLesson(ctx context.Context, l *catalog.Lesson) error {
	return r.conn.WithinTx(ctx, func(ctx context.Context) error {
		if err := r.lockModule(ctx, l.ModuleID); err != nil {
			return err
		}

		var next int
		err := r.conn.QueryRow(ctx,
			`SELECT COALESCE(MAX("order"), 0) + 1 FROM lessons WHERE module_id = $1`, l.ModuleID,
		).Scan(&next)
		if err != nil {
			return shared.Unavailable("catalog", "AddLesson", err)
		}
		l.Order = next

		_, err = r.conn.Exec(ctx, `
			INSERT INTO lessons (`+lessonColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, l.ID, l.ModuleID, l.CourseID, l.Title, l.Order, string(l.Type), l.IsFree, l.DurationMinutes, l.CreatedAt)
		if err != nil {
			return shared.Unavailable("catalog", "AddLesson", fmt.Errorf("failed to insert lesson: %w", err))
		}
		return nil
	})
}

// GetLesson implements catalog.Repository.
func (r *CatalogRepository) GetLesson(ctx context.Context, id string) (*catalog.Lesson, error) {
	l, err := scanLesson(r.conn.QueryRow(ctx, `SELECT `+lessonColumns+` FROM lessons WHERE id = $1`, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrLessonNotFound
		}
		return nil, shared.Unavailable("catalog", "GetLesson", err)
	}
	return l, nil
}

func scanLesson(row pgx.Row) (*catalog.Lesson, error) {
	var l catalog.Lesson
	var lessonType string
	err := row.Scan(&l.ID, &l.ModuleID, &l.CourseID, &l.Title, &l.Order, &lessonType, &l.IsFree, &l.DurationMinutes, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	l.Type = catalog.LessonType(lessonType)
	return &l, nil
}

// ReorderLessons implements catalog.Repository.
func (r *CatalogRepository) ReorderLessons(ctx context.Context, moduleID string, lessonIDs []string) error {
	return r.conn.WithinTx(ctx, func(ctx context.Context) error {
		if err := r.lockModule(ctx, moduleID); err != nil {
			return err
		}
		current, err := r.ids(ctx, `SELECT id FROM lessons WHERE module_id = $1`, moduleID)
		if err != nil {
			return err
		}
		if err := catalog.ValidateReorder(current, lessonIDs); err != nil {
			return err
		}
		return r.rewriteOrder(ctx, `UPDATE lessons SET "order" = $1 WHERE id = $2`, lessonIDs)
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Structure
// ─────────────────────────────────────────────────────────────────────────────

// GetCourseStructure implements catalog.Repository.
func (r *CatalogRepository) GetCourseStructure(ctx context.Context, courseID string) (*catalog.CourseStructure, error) {
	course, err := r.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	rows, err := r.conn.Query(ctx, `
		SELECT id, course_id, title, "order", created_at
		FROM modules WHERE course_id = $1
		ORDER BY "order", created_at
	`, courseID)
	if err != nil {
		return nil, shared.Unavailable("catalog", "GetCourseStructure", err)
	}
	var modules []catalog.Module
	for rows.Next() {
		var m catalog.Module
		if err := rows.Scan(&m.ID, &m.CourseID, &m.Title, &m.Order, &m.CreatedAt); err != nil {
			rows.Close()
			return nil, shared.Unavailable("catalog", "GetCourseStructure", err)
		}
		modules = append(modules, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, shared.Unavailable("catalog", "GetCourseStructure", err)
	}

	rows, err = r.conn.Query(ctx, `
		SELECT `+lessonColumns+`
		FROM lessons WHERE course_id = $1
		ORDER BY "order", created_at
	`, courseID)
	if err != nil {
		return nil, shared.Unavailable("catalog", "GetCourseStructure", err)
	}
	defer rows.Close()

	var lessons []catalog.Lesson
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, shared.Unavailable("catalog", "GetCourseStructure", err)
		}
		lessons = append(lessons, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Unavailable("catalog", "GetCourseStructure", err)
	}

	return catalog.NewCourseStructure(*course, modules, lessons), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (r *CatalogRepository) lockCourse(ctx context.Context, courseID string) error {
	var id string
	err := r.conn.QueryRow(ctx, `SELECT id FROM courses WHERE id = $1 FOR UPDATE`, courseID).Scan(&id)
	if err != nil {
		if IsNoRows(err) {
			return shared.ErrCourseNotFound
		}
		return shared.Unavailable("catalog", "lockCourse", err)
	}
	return nil
}

func (r *CatalogRepository) lockModule(ctx context.Context, moduleID string) error {
	var id string
	err := r.conn.QueryRow(ctx, `SELECT id FROM modules WHERE id = $1 FOR UPDATE`, moduleID).Scan(&id)
	if err != nil {
		if IsNoRows(err) {
			return shared.ErrModuleNotFound
		}
		return shared.Unavailable("catalog", "lockModule", err)
	}
	return nil
}

func (r *CatalogRepository) ids(ctx context.Context, query, parentID string) ([]string, error) {
	rows, err := r.conn.Query(ctx, query, parentID)
	if err != nil {
		return nil, shared.Unavailable("catalog", "ids", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, shared.Unavailable("catalog", "ids", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// rewriteOrder sets order 1..n. The unique order constraints are deferred,
// so intermediate duplicates inside the transaction are allowed.
func (r *CatalogRepository) rewriteOrder(ctx context.Context, query string, ids []string) error {
	batch := &pgx.Batch{}
	for i, id := range ids {
		batch.Queue(query, i+1, id)
	}
	tx, err := r.conn.tx(ctx)
	if err != nil {
		return shared.Unavailable("catalog", "rewriteOrder", err)
	}
	results := tx.SendBatch(ctx, batch)
	for range ids {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return shared.Unavailable("catalog", "rewriteOrder", err)
		}
	}
	return results.Close()
}
