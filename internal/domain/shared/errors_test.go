package shared

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Is(t *testing.T) {
	wrapped := fmt.Errorf("submit: %w", ErrPendingPaymentExists)

	assert.True(t, errors.Is(wrapped, ErrPendingPaymentExists))
	assert.True(t, errors.Is(wrapped, ErrConflict))
	assert.False(t, errors.Is(wrapped, ErrValidation))
	assert.False(t, errors.Is(wrapped, ErrPaymentAlreadyReviewed))
	assert.True(t, IsConflict(wrapped))
}

func TestDomainError_KindsAreExclusive(t *testing.T) {
	kinds := []error{ErrNotFound, ErrForbidden, ErrConflict, ErrValidation, ErrUnavailable}
	sentinels := []error{
		ErrCourseNotFound, ErrNotCourseOwner, ErrInvalidReorder,
		ErrPaymentNotFound, ErrPendingPaymentExists, ErrPaymentAlreadyReviewed, ErrAmountMismatch,
		ErrRejectionReason, ErrInvalidReceiptRef, ErrCourseAlreadyUnlocked,
		ErrEnrollmentNotFound, ErrInvalidTransition, ErrNotEnrollmentOwner,
		ErrAccessNotEnrolled, ErrAccessPaymentPending,
	}
	for _, s := range sentinels {
		matched := 0
		for _, k := range kinds {
			if errors.Is(s, k) {
				matched++
			}
		}
		assert.Equal(t, 1, matched, s.Error())
	}
}

func TestUnavailable(t *testing.T) {
	assert.Nil(t, Unavailable("payment", "Get", nil))

	cause := errors.New("dial tcp: refused")
	err := Unavailable("payment", "Get", cause)
	assert.True(t, IsUnavailable(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "payment.Get")

	// Domain errors pass through unchanged.
	assert.Equal(t, error(ErrPaymentNotFound), Unavailable("payment", "Get", ErrPaymentNotFound))
}

func TestValidationf(t *testing.T) {
	err := Validationf("catalog", "NewCourse", "invalid currency %q", "usd")
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), `invalid currency "usd"`)
}

func TestReceiptRef_Validate(t *testing.T) {
	assert.NoError(t, ReceiptRef("s3://receipts/2025/05/abc.pdf").Validate())
	assert.NoError(t, ReceiptRef(strings.Repeat("x", MaxReceiptRefLength)).Validate())

	for _, bad := range []string{"", "with space", "tab\there", "nl\n", "bell\a", strings.Repeat("x", MaxReceiptRefLength+1)} {
		assert.ErrorIs(t, ReceiptRef(bad).Validate(), ErrInvalidReceiptRef, "%q", bad)
	}
}

func TestCurrencyAndRole(t *testing.T) {
	assert.True(t, Currency("USD").IsValid())
	assert.False(t, Currency("usd").IsValid())
	assert.False(t, Currency("US").IsValid())

	c, err := NewCurrency("KZT")
	assert.NoError(t, err)
	assert.Equal(t, "KZT", c.String())

	assert.True(t, RoleReviewer.IsValid())
	assert.False(t, Role("admin").IsValid())
}
