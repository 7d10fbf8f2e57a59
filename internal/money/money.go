// Package money holds the amount rules shared by the ledger: parsing, bounds and fee rounding.
package money

import (
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of minor-unit digits kept for every stored amount.
const Scale = 2

var (
	ErrMalformed   = errors.New("amount is not a valid decimal with at most 2 fraction digits")
	ErrNotPositive = errors.New("amount must be positive")
	ErrTooLarge    = errors.New("amount exceeds the configured maximum")
)

var amountRe = regexp.MustCompile(`^\s*\d{1,12}([.,]\d{1,2})?\s*$`)

// Parse converts user input like "50", "50.5" or "50,75" into a decimal.
// It does not check bounds; see Validate.
func Parse(s string) (decimal.Decimal, error) {
	if !amountRe.MatchString(s) {
		return decimal.Zero, ErrMalformed
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", "."))
	if err != nil {
		return decimal.Zero, ErrMalformed
	}
	return d, nil
}

// Validate checks amount > 0, at most Scale fraction digits, and amount <= max when max is positive.
func Validate(amount, max decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNotPositive
	}
	if !amount.Equal(amount.Truncate(Scale)) {
		return ErrMalformed
	}
	if max.IsPositive() && amount.GreaterThan(max) {
		return ErrTooLarge
	}
	return nil
}

// Fee returns amount*rate rounded half-up to 2 places. Amounts are positive so
// decimal's half-away-from-zero rounding is half-up here.
func Fee(amount, rate decimal.Decimal) decimal.Decimal {
	if !rate.IsPositive() {
		return decimal.Zero
	}
	return amount.Mul(rate).Round(Scale)
}

// Normalize rounds a gateway-reported amount to the ledger scale.
func Normalize(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(Scale)
}
