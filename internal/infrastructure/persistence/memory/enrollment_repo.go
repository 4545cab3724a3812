package memory

import (
	"context"
	"sort"

	"github.com/coursehub/coursehub-core/internal/domain/enrollment"
	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

// EnrollmentRepository implements enrollment.Repository.
type EnrollmentRepository struct {
	s *Store
}

var _ enrollment.Repository = (*EnrollmentRepository)(nil)

// GetOrCreate implements enrollment.Repository.
func (r *EnrollmentRepository) GetOrCreate(ctx context.Context, candidate *enrollment.Enrollment) (*enrollment.Enrollment, bool, error) {
	var (
		out     enrollment.Enrollment
		created bool
	)
	err := r.s.write(ctx, func(d *state) error {
		key := pairKey{studentID: candidate.StudentID, courseID: candidate.CourseID}
		if id, ok := d.pairs[key]; ok {
			out = d.enrollments[id]
			return nil
		}
		d.enrollments[candidate.ID] = *candidate
		d.pairs[key] = candidate.ID
		out = *candidate
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &out, created, nil
}

// GetByID implements enrollment.Repository.
func (r *EnrollmentRepository) GetByID(ctx context.Context, id string) (*enrollment.Enrollment, error) {
	var out enrollment.Enrollment
	err := r.s.read(ctx, func(d *state) error {
		e, ok := d.enrollments[id]
		if !ok {
			return shared.ErrEnrollmentNotFound
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetByIDForUpdate implements enrollment.Repository. Writers are already
// serialized by the transaction lock.
func (r *EnrollmentRepository) GetByIDForUpdate(ctx context.Context, id string) (*enrollment.Enrollment, error) {
	return r.GetByID(ctx, id)
}

// GetByStudentCourse implements enrollment.Repository.
func (r *EnrollmentRepository) GetByStudentCourse(ctx context.Context, studentID, courseID string) (*enrollment.Enrollment, error) {
	var out enrollment.Enrollment
	err := r.s.read(ctx, func(d *state) error {
		id, ok := d.pairs[pairKey{studentID: studentID, courseID: courseID}]
		if !ok {
			return shared.ErrNotEnrolled
		}
		out = d.enrollments[id]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ActivateIfPending implements enrollment.Repository.
func (r *EnrollmentRepository) ActivateIfPending(ctx context.Context, id string, active enrollment.Active) (bool, error) {
	var activated bool
	err := r.s.write(ctx, func(d *state) error {
		e, ok := d.enrollments[id]
		if !ok {
			return shared.ErrEnrollmentNotFound
		}
		if e.Status() != enrollment.StatusPendingPayment {
			return nil
		}
		e.State = active
		e.UpdatedAt = active.ActivatedAt
		d.enrollments[id] = e
		activated = true
		return nil
	})
	return activated, err
}

// Update implements enrollment.Repository.
func (r *EnrollmentRepository) Update(ctx context.Context, e *enrollment.Enrollment) error {
	return r.s.write(ctx, func(d *state) error {
		if _, ok := d.enrollments[e.ID]; !ok {
			return shared.ErrEnrollmentNotFound
		}
		d.enrollments[e.ID] = *e
		return nil
	})
}

// ListByStudent implements enrollment.Repository.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string, opts shared.ListOptions) ([]*enrollment.Enrollment, error) {
	opts = opts.Normalize()
	var all []*enrollment.Enrollment
	err := r.s.read(ctx, func(d *state) error {
		for _, e := range d.enrollments {
			if e.StudentID == studentID {
				e := e
				all = append(all, &e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return page(all, opts), nil
}
