// Package query contains read operations (CQRS - Queries).
package query

import (
	"time"

	"github.com/coursehub/coursehub-core/internal/domain/catalog"
	"github.com/coursehub/coursehub-core/internal/domain/enrollment"
	"github.com/coursehub/coursehub-core/internal/domain/payment"
)

// ══════════════════════════════════════════════════════════════════════════════
// DTOs
// Transport shapes shared by query results and command responses.
// ══════════════════════════════════════════════════════════════════════════════

// LessonDTO is one lesson of a course structure.
type LessonDTO struct {
	ID              string `json:"id"`
	ModuleID        string `json:"module_id"`
	Title           string `json:"title"`
	Order           int    `json:"order"`
	Type            string `json:"type"`
	IsFree          bool   `json:"is_free"`
	DurationMinutes int    `json:"duration_minutes"`
}

// ModuleDTO is one module with its ordered lessons.
type ModuleDTO struct {
	ID      string      `json:"id"`
	Title   string      `json:"title"`
	Order   int         `json:"order"`
	Lessons []LessonDTO `json:"lessons"`
}

// CourseDTO is a course header.
type CourseDTO struct {
	ID        string `json:"id"`
	TeacherID string `json:"teacher_id"`
	Title     string `json:"title"`
	Price     int64  `json:"price"`
	Currency  string `json:"currency"`
	IsPaid    bool   `json:"is_paid"`
}

// CourseStructureDTO is the full ordered tree.
type CourseStructureDTO struct {
	CourseDTO
	Modules      []ModuleDTO `json:"modules"`
	TotalLessons int         `json:"total_lessons"`
}

// EnrollmentDTO is the transport form of an enrollment.
type EnrollmentDTO struct {
	ID              string     `json:"id"`
	StudentID       string     `json:"student_id"`
	CourseID        string     `json:"course_id"`
	Status          string     `json:"status"`
	CurrentLessonID string     `json:"current_lesson_id,omitempty"`
	Percentage      int        `json:"percentage"`
	PaymentID       string     `json:"payment_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ActivatedAt     *time.Time `json:"activated_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// PaymentDTO is the transport form of a payment.
type PaymentDTO struct {
	ID              string     `json:"id"`
	StudentID       string     `json:"student_id"`
	CourseID        string     `json:"course_id"`
	EnrollmentID    string     `json:"enrollment_id,omitempty"`
	Amount          int64      `json:"amount"`
	Currency        string     `json:"currency"`
	ReceiptRef      string     `json:"receipt_ref"`
	Status          string     `json:"status"`
	ReviewerID      string     `json:"reviewer_id,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ToCourseDTO converts a course.
func ToCourseDTO(c *catalog.Course) CourseDTO {
	return CourseDTO{
		ID:        c.ID,
		TeacherID: c.TeacherID,
		Title:     c.Title,
		Price:     c.Price.Amount,
		Currency:  c.Price.Currency.String(),
		IsPaid:    c.IsPaid(),
	}
}

// ToLessonDTO converts a lesson.
func ToLessonDTO(l *catalog.Lesson) LessonDTO {
	return LessonDTO{
		ID:              l.ID,
		ModuleID:        l.ModuleID,
		Title:           l.Title,
		Order:           l.Order,
		Type:            string(l.Type),
		IsFree:          l.IsFree,
		DurationMinutes: l.DurationMinutes,
	}
}

// ToModuleDTO converts a module without lessons.
func ToModuleDTO(m *catalog.Module) ModuleDTO {
	return ModuleDTO{ID: m.ID, Title: m.Title, Order: m.Order, Lessons: []LessonDTO{}}
}

// ToCourseStructureDTO converts a course structure.
func ToCourseStructureDTO(cs *catalog.CourseStructure) CourseStructureDTO {
	dto := CourseStructureDTO{
		CourseDTO:    ToCourseDTO(&cs.Course),
		Modules:      make([]ModuleDTO, 0, len(cs.Modules)),
		TotalLessons: cs.TotalLessons(),
	}
	for _, mv := range cs.Modules {
		m := ToModuleDTO(&mv.Module)
		for i := range mv.Lessons {
			m.Lessons = append(m.Lessons, ToLessonDTO(&mv.Lessons[i]))
		}
		dto.Modules = append(dto.Modules, m)
	}
	return dto
}

// ToEnrollmentDTO converts an enrollment.
func ToEnrollmentDTO(e *enrollment.Enrollment) EnrollmentDTO {
	return EnrollmentDTO{
		ID:              e.ID,
		StudentID:       e.StudentID,
		CourseID:        e.CourseID,
		Status:          string(e.Status()),
		CurrentLessonID: e.CurrentLessonID,
		Percentage:      e.Percentage,
		PaymentID:       e.PaymentID(),
		CreatedAt:       e.CreatedAt,
		ActivatedAt:     e.ActivatedAt(),
		CompletedAt:     e.CompletedAt(),
	}
}

// ToPaymentDTO converts a payment.
func ToPaymentDTO(p *payment.Payment) PaymentDTO {
	review := p.Review()
	return PaymentDTO{
		ID:              p.ID,
		StudentID:       p.StudentID,
		CourseID:        p.CourseID,
		EnrollmentID:    p.EnrollmentID,
		Amount:          p.Amount.Amount,
		Currency:        p.Amount.Currency.String(),
		ReceiptRef:      p.ReceiptRef.String(),
		Status:          string(p.Status()),
		ReviewerID:      review.ReviewerID,
		ReviewedAt:      review.ReviewedAt,
		RejectionReason: review.Reason,
		CreatedAt:       p.CreatedAt,
	}
}
