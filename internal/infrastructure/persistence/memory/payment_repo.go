package memory

import (
	"context"
	"sort"

	"github.com/coursehub/coursehub-core/internal/domain/payment"
	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

// PaymentRepository implements payment.Repository.
type PaymentRepository struct {
	s *Store
}

var _ payment.Repository = (*PaymentRepository)(nil)

// Create implements payment.Repository.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	return r.s.write(ctx, func(d *state) error {
		for _, existing := range d.payments {
			if existing.StudentID == p.StudentID && existing.CourseID == p.CourseID && existing.IsPending() {
				return shared.ErrPendingPaymentExists
			}
		}
		d.payments[p.ID] = *p
		return nil
	})
}

// GetByID implements payment.Repository.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*payment.Payment, error) {
	var out payment.Payment
	err := r.s.read(ctx, func(d *state) error {
		p, ok := d.payments[id]
		if !ok {
			return shared.ErrPaymentNotFound
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CompareAndSwap implements payment.Repository.
func (r *PaymentRepository) CompareAndSwap(ctx context.Context, id string, to payment.State) error {
	return r.s.write(ctx, func(d *state) error {
		p, ok := d.payments[id]
		if !ok {
			return shared.ErrPaymentNotFound
		}
		if !p.IsPending() {
			return shared.ErrPaymentAlreadyReviewed
		}
		p.State = to
		d.payments[id] = p
		return nil
	})
}

// ListByStudentCourse implements payment.Repository.
func (r *PaymentRepository) ListByStudentCourse(ctx context.Context, studentID, courseID string) ([]*payment.Payment, error) {
	var out []*payment.Payment
	err := r.s.read(ctx, func(d *state) error {
		for _, p := range d.payments {
			if p.StudentID == studentID && p.CourseID == courseID {
				p := p
				out = append(out, &p)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, err
}

// ListPending implements payment.Repository.
func (r *PaymentRepository) ListPending(ctx context.Context, opts shared.ListOptions) ([]*payment.Payment, error) {
	opts = opts.Normalize()
	var all []*payment.Payment
	err := r.s.read(ctx, func(d *state) error {
		for _, p := range d.payments {
			if p.IsPending() {
				p := p
				all = append(all, &p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return page(all, opts), nil
}

func page[T any](items []T, opts shared.ListOptions) []T {
	if opts.Offset >= len(items) {
		return []T{}
	}
	end := opts.Offset + opts.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[opts.Offset:end]
}
