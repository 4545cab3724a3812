// Package postgres implements the PostgreSQL persistence layer for the
// course marketplace. Every repository resolves its querier from the context,
// so calls made inside Connection.WithinTx share one transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

// ErrNoTransaction is returned by helpers that must run inside WithinTx.
var ErrNoTransaction = errors.New("postgres: no transaction in context")

// Config holds pool settings. Zero values keep the pgxpool defaults
// overridden below.
type Config struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

func (c Config) poolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse database URL: %w", err)
	}
	pc.MaxConns = orDefault(c.MaxConns, 10)
	pc.MinConns = orDefault(c.MinConns, 2)
	pc.MaxConnLifetime = orDefault(c.MaxConnLifetime, time.Hour)
	pc.MaxConnIdleTime = orDefault(c.MaxConnIdleTime, 30*time.Minute)
	pc.HealthCheckPeriod = time.Minute
	return pc, nil
}

func orDefault[T int32 | time.Duration](v, def T) T {
	if v > 0 {
		return v
	}
	return def
}

// Connection wraps the pool and implements shared.Transactor.
type Connection struct {
	pool *pgxpool.Pool
}

var _ shared.Transactor = (*Connection)(nil)

// NewConnection opens the pool and pings the database once.
func NewConnection(ctx context.Context, cfg Config) (*Connection, error) {
	pc, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Connection{pool: pool}, nil
}

// Close closes the pool. It is safe to call more than once.
func (c *Connection) Close() { c.pool.Close() }

// Ping implements the health check.
func (c *Connection) Ping(ctx context.Context) error { return c.pool.Ping(ctx) }

type txKey struct{}

// WithinTx runs fn in a read-committed transaction carried by the context.
// A nested call joins the outer transaction. Failures that are not domain
// errors are reported as unavailable.
func (c *Connection) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.within(ctx, "WithinTx", pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

// WithinSnapshot runs fn in a read-only repeatable-read transaction.
func (c *Connection) WithinSnapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.within(ctx, "WithinSnapshot", pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func (c *Connection) within(ctx context.Context, op string, opts pgx.TxOptions, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	err := pgx.BeginTxFunc(ctx, c.pool, opts, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
	var de *shared.DomainError
	if err != nil && !errors.As(err, &de) {
		return shared.Unavailable("postgres", op, err)
	}
	return err
}

func (c *Connection) tx(ctx context.Context) (pgx.Tx, error) {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx, nil
	}
	return nil, ErrNoTransaction
}

func (c *Connection) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return c.q(ctx).Exec(ctx, sql, args...)
}

func (c *Connection) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return c.q(ctx).Query(ctx, sql, args...)
}

func (c *Connection) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return c.q(ctx).QueryRow(ctx, sql, args...)
}

// IsUniqueViolation reports a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// constraintName returns the violated constraint, if any.
func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

// IsNoRows reports pgx.ErrNoRows.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
