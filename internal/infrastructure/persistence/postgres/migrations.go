package postgres

import (
	"context"
	"fmt"
)

// migration is one forward-only schema step.
type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{1, "catalog", migration001Up},
	{2, "payments_enrollments", migration002Up},
	{3, "progress_outbox", migration003Up},
}

// migrateLockID keys the advisory lock that serializes concurrent migrators,
// e.g. the API and the worker starting together.
const migrateLockID = 0x636f7572

const createSchemaMigrations = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
)`

// Migrator applies pending migrations in version order.
type Migrator struct {
	conn *Connection
}

func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn}
}

// Migrate applies every migration not yet recorded in schema_migrations.
// Each step runs in its own transaction together with its bookkeeping row.
func (m *Migrator) Migrate(ctx context.Context) error {
	for _, mig := range migrations {
		err := m.conn.WithinTx(ctx, func(ctx context.Context) error {
			if _, err := m.conn.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrateLockID); err != nil {
				return err
			}
			if _, err := m.conn.Exec(ctx, createSchemaMigrations); err != nil {
				return err
			}
			var applied bool
			if err := m.conn.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, mig.version,
			).Scan(&applied); err != nil {
				return err
			}
			if applied {
				return nil
			}
			if _, err := m.conn.Exec(ctx, mig.sql); err != nil {
				return err
			}
			_, err := m.conn.Exec(ctx,
				`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, mig.version, mig.name)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %03d %s: %w", mig.version, mig.name, err)
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CATALOG
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS courses (
    id TEXT PRIMARY KEY,
    teacher_id TEXT NOT NULL,
    title VARCHAR(255) NOT NULL,
    price BIGINT NOT NULL DEFAULT 0,
    currency CHAR(3) NOT NULL DEFAULT 'USD',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_price CHECK (price >= 0)
);

CREATE INDEX IF NOT EXISTS idx_courses_teacher_id ON courses(teacher_id);

CREATE TABLE IF NOT EXISTS modules (
    id TEXT PRIMARY KEY,
    course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    title VARCHAR(255) NOT NULL,
    "order" INTEGER NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_module_order CHECK ("order" >= 1),
    CONSTRAINT unique_module_order UNIQUE (course_id, "order") DEFERRABLE INITIALLY DEFERRED
);

CREATE TABLE IF NOT EXISTS lessons (
    id TEXT PRIMARY KEY,
    module_id TEXT NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
    course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    title VARCHAR(255) NOT NULL,
    "order" INTEGER NOT NULL,
    type VARCHAR(20) NOT NULL,
    is_free BOOLEAN NOT NULL DEFAULT FALSE,
    duration_minutes INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_lesson_order CHECK ("order" >= 1),
    CONSTRAINT valid_lesson_type CHECK (type IN ('video', 'text', 'quiz', 'assignment', 'file')),
    CONSTRAINT valid_duration CHECK (duration_minutes >= 0),
    CONSTRAINT unique_lesson_order UNIQUE (module_id, "order") DEFERRABLE INITIALLY DEFERRED
);

CREATE INDEX IF NOT EXISTS idx_lessons_course_id ON lessons(course_id);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: ENROLLMENTS & PAYMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS enrollments (
    id TEXT PRIMARY KEY,
    student_id TEXT NOT NULL,
    course_id TEXT NOT NULL REFERENCES courses(id),
    status VARCHAR(20) NOT NULL,
    activated_at TIMESTAMP WITH TIME ZONE,
    payment_id TEXT NOT NULL DEFAULT '',
    completed_at TIMESTAMP WITH TIME ZONE,
    current_lesson_id TEXT NOT NULL DEFAULT '',
    percentage INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT unique_enrollment UNIQUE (student_id, course_id),
    CONSTRAINT valid_enrollment_status CHECK (status IN ('pending_payment', 'active', 'completed')),
    CONSTRAINT valid_percentage CHECK (percentage BETWEEN 0 AND 100),
    CONSTRAINT active_has_activation CHECK (status = 'pending_payment' OR activated_at IS NOT NULL),
    CONSTRAINT completed_has_time CHECK (status <> 'completed' OR (completed_at IS NOT NULL AND percentage = 100))
);

CREATE INDEX IF NOT EXISTS idx_enrollments_student ON enrollments(student_id, created_at DESC);

CREATE TABLE IF NOT EXISTS payments (
    id TEXT PRIMARY KEY,
    student_id TEXT NOT NULL,
    course_id TEXT NOT NULL REFERENCES courses(id),
    enrollment_id TEXT NOT NULL DEFAULT '',
    amount BIGINT NOT NULL,
    currency CHAR(3) NOT NULL,
    receipt_ref VARCHAR(512) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    reviewer_id TEXT NOT NULL DEFAULT '',
    reviewed_at TIMESTAMP WITH TIME ZONE,
    rejection_reason TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_payment_status CHECK (status IN ('pending', 'approved', 'rejected')),
    CONSTRAINT reviewed_has_reviewer CHECK (status = 'pending' OR (reviewer_id <> '' AND reviewed_at IS NOT NULL)),
    CONSTRAINT rejected_has_reason CHECK (status <> 'rejected' OR rejection_reason <> '')
);

-- At most one pending payment per (student, course).
CREATE UNIQUE INDEX IF NOT EXISTS unique_pending_payment
    ON payments(student_id, course_id) WHERE status = 'pending';

CREATE INDEX IF NOT EXISTS idx_payments_pending ON payments(created_at) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_payments_student_course ON payments(student_id, course_id, created_at DESC);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: PROGRESS & OUTBOX
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS lesson_completions (
    enrollment_id TEXT NOT NULL REFERENCES enrollments(id) ON DELETE CASCADE,
    lesson_id TEXT NOT NULL,
    completed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (enrollment_id, lesson_id)
);

CREATE TABLE IF NOT EXISTS outbox_events (
    seq BIGSERIAL PRIMARY KEY,
    id TEXT NOT NULL UNIQUE,
    type VARCHAR(64) NOT NULL,
    aggregate_id TEXT NOT NULL,
    occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
    payload JSONB NOT NULL DEFAULT '{}'::jsonb,
    relayed_at TIMESTAMP WITH TIME ZONE
);

CREATE INDEX IF NOT EXISTS idx_outbox_unrelayed ON outbox_events(seq) WHERE relayed_at IS NULL;
`
