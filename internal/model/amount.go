package model

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount         = errors.New("amount is not a well-formed decimal")
	ErrMissingName           = errors.New("name is required")
	ErrInvalidRole           = errors.New("invalid role")
	ErrInvalidMembershipType = errors.New("invalid membership type")
	ErrMissingCategory       = errors.New("category is required")
	ErrMissingTitle          = errors.New("title is required")
	ErrMissingMembers        = errors.New("at least one member is required")
	ErrMissingDueDate        = errors.New("due date is required")
)

// ParseAmount parses a monetary amount from its string form. Amounts are
// fixed-precision decimals, never floats. Both dot and comma decimal
// separators are accepted; at most two fractional digits are kept.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.Exponent() < -2 {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}
