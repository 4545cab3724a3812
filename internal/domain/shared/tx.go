package shared

import "context"

// Transactor runs fn inside a single storage transaction. Repository calls made
// with the ctx passed to fn join that transaction; the transaction commits if
// fn returns nil and rolls back otherwise.
//
// WithinSnapshot runs fn read-only; every read made with its ctx sees the same
// committed snapshot. Inside WithinTx it joins the running transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	WithinSnapshot(ctx context.Context, fn func(ctx context.Context) error) error
}

// ListOptions holds pagination parameters shared by list queries.
type ListOptions struct {
	Offset int
	Limit  int
}

// DefaultListOptions returns the default page.
func DefaultListOptions() ListOptions {
	return ListOptions{Offset: 0, Limit: 50}
}

// Normalize clamps the options to sane bounds.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 || o.Limit > 200 {
		o.Limit = 50
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
