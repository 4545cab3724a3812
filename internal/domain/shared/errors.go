// Package shared contains common domain types, errors, and events that are used
// across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the core matches exactly one of these
// through errors.Is().
var (
	// ErrNotFound - unknown course, module, lesson, payment or enrollment.
	ErrNotFound = errors.New("not found")

	// ErrForbidden - an authorization decision denied the request.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict - duplicate pending payment, already-reviewed payment, transition race.
	ErrConflict = errors.New("conflict")

	// ErrValidation - amount mismatch, missing rejection reason, malformed input.
	ErrValidation = errors.New("validation error")

	// ErrUnavailable - storage or transport failure.
	ErrUnavailable = errors.New("service unavailable")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "payment", "enrollment", "catalog"
	Op      string // Operation that failed, e.g., "Approve", "Create"
	Kind    error  // Base error kind for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching. A DomainError matches its kind, itself
// (so pre-built sentinels work after wrapping) and anything its cause matches.
func (e *DomainError) Is(target error) bool {
	if t, ok := target.(*DomainError); ok {
		return e.Domain == t.Domain && e.Op == t.Op && e.Message == t.Message
	}
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Unavailable wraps a storage or transport failure.
func Unavailable(domain, op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) {
		return err
	}
	return WrapError(domain, op, ErrUnavailable, "storage failure", err)
}

// Validationf builds a validation error with a formatted message.
func Validationf(domain, op, format string, args ...any) error {
	return NewDomainError(domain, op, ErrValidation, fmt.Sprintf(format, args...))
}

// Catalog errors
var (
	ErrCourseNotFound = NewDomainError("catalog", "Find", ErrNotFound, "course not found")
	ErrModuleNotFound = NewDomainError("catalog", "Find", ErrNotFound, "module not found")
	ErrLessonNotFound = NewDomainError("catalog", "Find", ErrNotFound, "lesson not found")
	ErrNotCourseOwner = NewDomainError("catalog", "Authorize", ErrForbidden, "only the owning teacher may modify this course")
	ErrInvalidReorder = NewDomainError("catalog", "Reorder", ErrValidation, "reorder must list every sibling exactly once")
)

// Payment errors
var (
	ErrPaymentNotFound        = NewDomainError("payment", "Find", ErrNotFound, "payment not found")
	ErrPendingPaymentExists   = NewDomainError("payment", "Submit", ErrConflict, "a pending payment already exists for this course")
	ErrPaymentAlreadyReviewed = NewDomainError("payment", "Review", ErrConflict, "payment already reviewed")
	ErrAmountMismatch         = NewDomainError("payment", "Submit", ErrValidation, "amount does not match course price")
	ErrCurrencyMismatch       = NewDomainError("payment", "Submit", ErrValidation, "currency does not match course currency")
	ErrRejectionReason        = NewDomainError("payment", "Reject", ErrValidation, "rejection reason is required")
	ErrInvalidReceiptRef      = NewDomainError("payment", "Submit", ErrValidation, "malformed receipt reference")
	ErrCourseIsFree           = NewDomainError("payment", "Submit", ErrValidation, "course is free and does not accept payments")
	ErrCourseAlreadyUnlocked  = NewDomainError("payment", "Submit", ErrConflict, "course is already unlocked for this student")
)

// Enrollment errors
var (
	ErrEnrollmentNotFound = NewDomainError("enrollment", "Find", ErrNotFound, "enrollment not found")
	ErrNotEnrolled        = NewDomainError("enrollment", "Find", ErrNotFound, "student is not enrolled in this course")
	ErrInvalidTransition  = NewDomainError("enrollment", "Transition", ErrConflict, "invalid enrollment state transition")
	ErrNotEnrollmentOwner = NewDomainError("enrollment", "Authorize", ErrForbidden, "enrollment belongs to another student")
)

// Access errors
var (
	ErrAccessNotEnrolled    = NewDomainError("access", "CanAccessLesson", ErrForbidden, "not enrolled")
	ErrAccessPaymentPending = NewDomainError("access", "CanAccessLesson", ErrForbidden, "payment pending")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsForbidden checks if the error is an authorization denial.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsConflict checks if the error is a conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsUnavailable checks if the error is a storage or transport failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsRetryable checks if the operation can be retried as-is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
