// Package memory is an in-process implementation of every repository. It backs
// tests and single-node development when no DATABASE_URL is configured.
//
// Writers are serialized by one transaction lock. WithinTx works on a private
// copy of the committed state carried on the context and swaps it in only when
// the callback succeeds. Readers outside a transaction see committed state only,
// and WithinSnapshot pins one committed copy for a group of reads.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coursehub/coursehub-core/internal/domain/catalog"
	"github.com/coursehub/coursehub-core/internal/domain/enrollment"
	"github.com/coursehub/coursehub-core/internal/domain/payment"
	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

type pairKey struct {
	studentID string
	courseID  string
}

type outboxEntry struct {
	event   shared.RecordedEvent
	relayed bool
}

type state struct {
	courses     map[string]catalog.Course
	modules     map[string]catalog.Module
	lessons     map[string]catalog.Lesson
	payments    map[string]payment.Payment
	enrollments map[string]enrollment.Enrollment
	pairs       map[pairKey]string
	completions map[string]map[string]time.Time
	outbox      []outboxEntry
}

func newState() *state {
	return &state{
		courses:     make(map[string]catalog.Course),
		modules:     make(map[string]catalog.Module),
		lessons:     make(map[string]catalog.Lesson),
		payments:    make(map[string]payment.Payment),
		enrollments: make(map[string]enrollment.Enrollment),
		pairs:       make(map[pairKey]string),
		completions: make(map[string]map[string]time.Time),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.courses {
		c.courses[k] = v
	}
	for k, v := range s.modules {
		c.modules[k] = v
	}
	for k, v := range s.lessons {
		c.lessons[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.enrollments {
		c.enrollments[k] = v
	}
	for k, v := range s.pairs {
		c.pairs[k] = v
	}
	for k, v := range s.completions {
		m := make(map[string]time.Time, len(v))
		for lk, lv := range v {
			m[lk] = lv
		}
		c.completions[k] = m
	}
	c.outbox = append([]outboxEntry(nil), s.outbox...)
	return c
}

type txKey struct{}

// Store holds all data in memory.
type Store struct {
	txMu sync.Mutex   // serializes writers
	mu   sync.RWMutex // guards data
	data *state
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{data: newState()}
}

// WithinTx implements shared.Transactor. Nested calls join the outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.current(ctx) != nil {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return shared.Unavailable("memory", "WithinTx", err)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	work := s.data.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, &txState{store: s, data: work})); err != nil {
		return err
	}
	s.mu.Lock()
	s.data = work
	s.mu.Unlock()
	return nil
}

// WithinSnapshot implements shared.Transactor.
func (s *Store) WithinSnapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.current(ctx) != nil {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return shared.Unavailable("memory", "WithinSnapshot", err)
	}
	s.mu.RLock()
	snap := s.data.clone()
	s.mu.RUnlock()
	return fn(context.WithValue(ctx, txKey{}, &txState{store: s, data: snap, readOnly: true}))
}

// Ping implements the health checker contract.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Catalog returns the catalog repository view.
func (s *Store) Catalog() *CatalogRepository { return &CatalogRepository{s: s} }

// Payments returns the payment repository view.
func (s *Store) Payments() *PaymentRepository { return &PaymentRepository{s: s} }

// Enrollments returns the enrollment repository view.
func (s *Store) Enrollments() *EnrollmentRepository { return &EnrollmentRepository{s: s} }

// Progress returns the lesson completion repository view.
func (s *Store) Progress() *ProgressRepository { return &ProgressRepository{s: s} }

// Outbox returns the outbox view.
func (s *Store) Outbox() *Outbox { return &Outbox{s: s} }

var errReadOnly = errors.New("memory: write inside a read-only snapshot")

type txState struct {
	store    *Store
	data     *state
	readOnly bool
}

// current returns the transaction or snapshot of this store on ctx, if any.
func (s *Store) current(ctx context.Context) *txState {
	if tx, ok := ctx.Value(txKey{}).(*txState); ok && tx.store == s {
		return tx
	}
	return nil
}

// write applies fn to the transaction's working copy, or commits it directly
// to the shared state while holding the writer lock.
func (s *Store) write(ctx context.Context, fn func(d *state) error) error {
	if err := ctx.Err(); err != nil {
		return shared.Unavailable("memory", "write", err)
	}
	if tx := s.current(ctx); tx != nil {
		if tx.readOnly {
			return shared.Unavailable("memory", "write", errReadOnly)
		}
		return fn(tx.data)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func (s *Store) read(ctx context.Context, fn func(d *state) error) error {
	if err := ctx.Err(); err != nil {
		return shared.Unavailable("memory", "read", err)
	}
	if tx := s.current(ctx); tx != nil {
		return fn(tx.data)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.data)
}
