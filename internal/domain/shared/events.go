package shared

import (
	"context"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. The first four are the notification contract consumed
// by downstream delivery; the rest drive cache invalidation and auditing.
const (
	// Payment events
	EventPaymentSubmitted EventType = "payment.submitted"
	EventPaymentApproved  EventType = "payment.approved"
	EventPaymentRejected  EventType = "payment.rejected"

	// Enrollment events
	EventEnrollmentStarted   EventType = "enrollment.started"
	EventEnrollmentActivated EventType = "enrollment.activated"
	EventEnrollmentCompleted EventType = "enrollment.completed"

	// Progress events
	EventLessonCompleted EventType = "progress.lesson_completed"

	// Catalog events
	EventCourseStructureChanged EventType = "catalog.structure_changed"
)

// NotificationEvents lists the events delivered to the notification collaborator.
var NotificationEvents = []EventType{
	EventPaymentSubmitted,
	EventPaymentApproved,
	EventPaymentRejected,
	EventEnrollmentCompleted,
}

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Payment Events
// ═══════════════════════════════════════════════════════════════════════════

// PaymentSubmittedEvent is emitted when a student submits proof of payment.
type PaymentSubmittedEvent struct {
	BaseEvent
	PaymentID    string `json:"payment_id"`
	StudentID    string `json:"student_id"`
	CourseID     string `json:"course_id"`
	EnrollmentID string `json:"enrollment_id"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// Payload implements Event interface.
func (e PaymentSubmittedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"payment_id":    e.PaymentID,
		"student_id":    e.StudentID,
		"course_id":     e.CourseID,
		"enrollment_id": e.EnrollmentID,
		"amount":        e.Amount,
		"currency":      e.Currency,
	}
}

// NewPaymentSubmittedEvent creates a new PaymentSubmittedEvent.
func NewPaymentSubmittedEvent(paymentID, studentID, courseID, enrollmentID string, amount int64, currency string, at time.Time) PaymentSubmittedEvent {
	return PaymentSubmittedEvent{
		BaseEvent:    NewBaseEvent(EventPaymentSubmitted, paymentID, at),
		PaymentID:    paymentID,
		StudentID:    studentID,
		CourseID:     courseID,
		EnrollmentID: enrollmentID,
		Amount:       amount,
		Currency:     currency,
	}
}

// PaymentApprovedEvent is emitted when a reviewer approves a payment.
type PaymentApprovedEvent struct {
	BaseEvent
	PaymentID  string `json:"payment_id"`
	StudentID  string `json:"student_id"`
	CourseID   string `json:"course_id"`
	ReviewerID string `json:"reviewer_id"`
}

// Payload implements Event interface.
func (e PaymentApprovedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"payment_id":  e.PaymentID,
		"student_id":  e.StudentID,
		"course_id":   e.CourseID,
		"reviewer_id": e.ReviewerID,
	}
}

// NewPaymentApprovedEvent creates a new PaymentApprovedEvent.
func NewPaymentApprovedEvent(paymentID, studentID, courseID, reviewerID string, at time.Time) PaymentApprovedEvent {
	return PaymentApprovedEvent{
		BaseEvent:  NewBaseEvent(EventPaymentApproved, paymentID, at),
		PaymentID:  paymentID,
		StudentID:  studentID,
		CourseID:   courseID,
		ReviewerID: reviewerID,
	}
}

// PaymentRejectedEvent is emitted when a reviewer rejects a payment.
type PaymentRejectedEvent struct {
	BaseEvent
	PaymentID  string `json:"payment_id"`
	StudentID  string `json:"student_id"`
	CourseID   string `json:"course_id"`
	ReviewerID string `json:"reviewer_id"`
	Reason     string `json:"reason"`
}

// Payload implements Event interface.
func (e PaymentRejectedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"payment_id":  e.PaymentID,
		"student_id":  e.StudentID,
		"course_id":   e.CourseID,
		"reviewer_id": e.ReviewerID,
		"reason":      e.Reason,
	}
}

// NewPaymentRejectedEvent creates a new PaymentRejectedEvent.
func NewPaymentRejectedEvent(paymentID, studentID, courseID, reviewerID, reason string, at time.Time) PaymentRejectedEvent {
	return PaymentRejectedEvent{
		BaseEvent:  NewBaseEvent(EventPaymentRejected, paymentID, at),
		PaymentID:  paymentID,
		StudentID:  studentID,
		CourseID:   courseID,
		ReviewerID: reviewerID,
		Reason:     reason,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Enrollment Events
// ═══════════════════════════════════════════════════════════════════════════

// EnrollmentEvent covers the started/activated/completed lifecycle events.
type EnrollmentEvent struct {
	BaseEvent
	EnrollmentID string `json:"enrollment_id"`
	StudentID    string `json:"student_id"`
	CourseID     string `json:"course_id"`
	Status       string `json:"status"`
}

// Payload implements Event interface.
func (e EnrollmentEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"enrollment_id": e.EnrollmentID,
		"student_id":    e.StudentID,
		"course_id":     e.CourseID,
		"status":        e.Status,
	}
}

// NewEnrollmentEvent creates an enrollment lifecycle event of the given type.
func NewEnrollmentEvent(eventType EventType, enrollmentID, studentID, courseID, status string, at time.Time) EnrollmentEvent {
	return EnrollmentEvent{
		BaseEvent:    NewBaseEvent(eventType, enrollmentID, at),
		EnrollmentID: enrollmentID,
		StudentID:    studentID,
		CourseID:     courseID,
		Status:       status,
	}
}

// LessonCompletedEvent is emitted when a lesson completion is recorded for the first time.
type LessonCompletedEvent struct {
	BaseEvent
	EnrollmentID string `json:"enrollment_id"`
	LessonID     string `json:"lesson_id"`
	Percentage   int    `json:"percentage"`
}

// Payload implements Event interface.
func (e LessonCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"enrollment_id": e.EnrollmentID,
		"lesson_id":     e.LessonID,
		"percentage":    e.Percentage,
	}
}

// NewLessonCompletedEvent creates a new LessonCompletedEvent.
func NewLessonCompletedEvent(enrollmentID, lessonID string, percentage int, at time.Time) LessonCompletedEvent {
	return LessonCompletedEvent{
		BaseEvent:    NewBaseEvent(EventLessonCompleted, enrollmentID, at),
		EnrollmentID: enrollmentID,
		LessonID:     lessonID,
		Percentage:   percentage,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Catalog Events
// ═══════════════════════════════════════════════════════════════════════════

// CourseStructureChangedEvent is emitted after any course/module/lesson write.
type CourseStructureChangedEvent struct {
	BaseEvent
	CourseID string `json:"course_id"`
	Change   string `json:"change"` // e.g., "course_created", "lesson_added", "modules_reordered"
}

// Payload implements Event interface.
func (e CourseStructureChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"course_id": e.CourseID,
		"change":    e.Change,
	}
}

// NewCourseStructureChangedEvent creates a new CourseStructureChangedEvent.
func NewCourseStructureChangedEvent(courseID, change string, at time.Time) CourseStructureChangedEvent {
	return CourseStructureChangedEvent{
		BaseEvent: NewBaseEvent(EventCourseStructureChanged, courseID, at),
		CourseID:  courseID,
		Change:    change,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Recorded events (transport/storage form)
// ═══════════════════════════════════════════════════════════════════════════

// RecordedEvent is an event rebuilt from storage or a transport message.
type RecordedEvent struct {
	ID     string
	Type   EventType
	AggID  string
	At     time.Time
	Values map[string]interface{}
}

// EventType implements Event interface.
func (e *RecordedEvent) EventType() EventType { return e.Type }

// OccurredAt implements Event interface.
func (e *RecordedEvent) OccurredAt() time.Time { return e.At }

// AggregateID implements Event interface.
func (e *RecordedEvent) AggregateID() string { return e.AggID }

// Payload implements Event interface.
func (e *RecordedEvent) Payload() map[string]interface{} { return e.Values }

// PayloadString reads a string field from an event payload.
func PayloadString(e Event, key string) string {
	if e == nil {
		return ""
	}
	if v, ok := e.Payload()[key].(string); ok {
		return v
	}
	return ""
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// EventRecorder appends events to durable storage as part of the caller's
// transaction. Recorded events are relayed to the EventBus after commit.
type EventRecorder interface {
	Record(ctx context.Context, events ...Event) error
}
