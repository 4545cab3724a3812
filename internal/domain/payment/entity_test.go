package payment

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

var now = time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

func newPending(t *testing.T) *Payment {
	t.Helper()
	p, err := NewPayment("p1", "s1", "c1", "e1", shared.Money{Amount: 4900, Currency: "USD"}, "receipts/s1/p1.pdf", now)
	require.NoError(t, err)
	return p
}

func TestNewPayment(t *testing.T) {
	p := newPending(t)
	assert.Equal(t, StatusPending, p.Status())
	assert.True(t, p.IsPending())
	assert.Equal(t, ReviewInfo{}, p.Review())

	_, err := NewPayment("p2", "s1", "c1", "e1", shared.Money{Amount: 1, Currency: "USD"}, "has space", now)
	assert.ErrorIs(t, err, shared.ErrInvalidReceiptRef)

	_, err = NewPayment("p3", "", "c1", "e1", shared.Money{Amount: 1, Currency: "USD"}, "ok", now)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestPayment_Approve(t *testing.T) {
	p := newPending(t)

	st, err := p.Approve("r1", now)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, st.Status())
	assert.Equal(t, "r1", st.ReviewerID)

	p.State = st
	info := p.Review()
	assert.Equal(t, "r1", info.ReviewerID)
	require.NotNil(t, info.ReviewedAt)
	assert.Equal(t, now, *info.ReviewedAt)

	_, err = p.Approve("r2", now)
	assert.ErrorIs(t, err, shared.ErrPaymentAlreadyReviewed)
	assert.ErrorIs(t, err, shared.ErrConflict)

	_, err = p.Reject("r2", "late", now)
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestPayment_Reject(t *testing.T) {
	p := newPending(t)

	_, err := p.Reject("r1", "   ", now)
	assert.ErrorIs(t, err, shared.ErrRejectionReason)
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.True(t, p.IsPending(), "failed rejection must not change state")

	st, err := p.Reject("r1", "  blurry receipt ", now)
	require.NoError(t, err)
	assert.Equal(t, "blurry receipt", st.Reason)

	p.State = st
	assert.Equal(t, "blurry receipt", p.Review().Reason)

	// Reason is checked before the state.
	_, err = p.Reject("r1", "", now)
	assert.ErrorIs(t, err, shared.ErrRejectionReason)
}

func TestCheckAmount(t *testing.T) {
	price := shared.Money{Amount: 4900, Currency: "USD"}

	assert.NoError(t, CheckAmount(price, shared.Money{Amount: 4900, Currency: "USD"}))
	assert.NoError(t, CheckAmount(price, shared.Money{Amount: 4900}))
	assert.ErrorIs(t, CheckAmount(price, shared.Money{Amount: 4800, Currency: "USD"}), shared.ErrAmountMismatch)
	assert.ErrorIs(t, CheckAmount(price, shared.Money{Amount: 4900, Currency: "EUR"}), shared.ErrCurrencyMismatch)
}

func TestStateFromRecord(t *testing.T) {
	st, err := StateFromRecord(StatusPending, "", nil, "")
	require.NoError(t, err)
	assert.Equal(t, Pending{}, st)

	st, err = StateFromRecord(StatusRejected, "r1", &now, "wrong amount")
	require.NoError(t, err)
	assert.Equal(t, Rejected{ReviewerID: "r1", ReviewedAt: now, Reason: "wrong amount"}, st)

	_, err = StateFromRecord(StatusApproved, "", &now, "")
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = StateFromRecord(StatusRejected, "r1", &now, "")
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = StateFromRecord(Status("refunded"), "", nil, "")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestReceiptRefLength(t *testing.T) {
	long := shared.ReceiptRef(strings.Repeat("a", shared.MaxReceiptRefLength+1))
	_, err := NewPayment("p1", "s1", "c1", "e1", shared.Money{Amount: 1, Currency: "USD"}, long, now)
	assert.ErrorIs(t, err, shared.ErrInvalidReceiptRef)
}
