package shared

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// ═══════════════════════════════════════════════════════════════════════════
// Money
// ═══════════════════════════════════════════════════════════════════════════

// Currency is an ISO-4217 style three-letter uppercase code.
type Currency string

var currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)

// IsValid checks the currency format.
func (c Currency) IsValid() bool {
	return currencyRegex.MatchString(string(c))
}

// String returns the string representation.
func (c Currency) String() string {
	return string(c)
}

// NewCurrency normalizes and validates a currency code.
func NewCurrency(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	if !c.IsValid() {
		return "", Validationf("shared", "NewCurrency", "invalid currency %q", code)
	}
	return c, nil
}

// Money is an amount in minor units (e.g. cents) of a currency.
type Money struct {
	Amount   int64    `json:"amount"`
	Currency Currency `json:"currency"`
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Amount == 0
}

// Equal compares amount and currency.
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

// String returns a human-readable representation.
func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.Amount, m.Currency)
}

// ═══════════════════════════════════════════════════════════════════════════
// Receipt reference
// ═══════════════════════════════════════════════════════════════════════════

// MaxReceiptRefLength bounds the opaque reference handed over by file storage.
const MaxReceiptRefLength = 512

// ReceiptRef is an opaque pointer to an uploaded proof of payment.
type ReceiptRef string

// Validate checks that the reference is non-empty, bounded and printable
// without whitespace.
func (r ReceiptRef) Validate() error {
	if r == "" || len(r) > MaxReceiptRefLength {
		return ErrInvalidReceiptRef
	}
	for _, ch := range string(r) {
		if unicode.IsSpace(ch) || unicode.IsControl(ch) {
			return ErrInvalidReceiptRef
		}
	}
	return nil
}

// String returns the string representation.
func (r ReceiptRef) String() string {
	return string(r)
}

// ═══════════════════════════════════════════════════════════════════════════
// Identity
// ═══════════════════════════════════════════════════════════════════════════

// Role is the caller role asserted by the identity collaborator.
type Role string

const (
	RoleStudent  Role = "student"
	RoleTeacher  Role = "teacher"
	RoleReviewer Role = "reviewer"
)

// IsValid checks if the role is known.
func (r Role) IsValid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleReviewer:
		return true
	}
	return false
}

// Clock returns the current time. Handlers take one so tests can pin time.
type Clock func() time.Time

// SystemClock returns UTC wall-clock time.
func SystemClock() time.Time {
	return time.Now().UTC()
}
