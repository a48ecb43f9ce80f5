// Package money parses and formats the fixed-point amounts stored as decimal(10,2).
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits kept for every amount
const Places = 2

// MaxAmount is the largest value a decimal(10,2) column holds
var MaxAmount = decimal.RequireFromString("99999999.99")

const (
	// maxInputLen bounds the coefficient handed to Round
	maxInputLen = 64
	// maxIntegerDigits is the integer part of decimal(10,2)
	maxIntegerDigits = 8
	// minMagnitude is the digit position below which nothing rounds up to 0.01
	minMagnitude = -Places
)

var (
	ErrMissing     = errors.New("amount is missing")
	ErrNotNumeric  = errors.New("amount is not a number")
	ErrNotPositive = errors.New("amount must be positive")
	ErrTooLarge    = errors.New("amount exceeds maximum")
)

// Parse reads a decimal amount and rounds it half-up to two places.
// The rounded value must be strictly positive and fit the column.
func Parse(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Decimal{}, ErrMissing
	}
	if len(raw) > maxInputLen {
		return decimal.Decimal{}, ErrNotNumeric
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, ErrNotNumeric
	}
	if d.Sign() <= 0 {
		return decimal.Decimal{}, ErrNotPositive
	}
	// Round rescales by 10^|exponent|, so the magnitude is bounded first
	magnitude := d.NumDigits() + int(d.Exponent())
	if magnitude > maxIntegerDigits {
		return decimal.Decimal{}, ErrTooLarge
	}
	if magnitude < minMagnitude {
		return decimal.Decimal{}, ErrNotPositive
	}
	// positive amounts only, so half-away-from-zero equals half-up
	d = d.Round(Places)
	if !d.IsPositive() {
		return decimal.Decimal{}, ErrNotPositive
	}
	if d.GreaterThan(MaxAmount) {
		return decimal.Decimal{}, ErrTooLarge
	}
	return d, nil
}

// String renders an amount with exactly two decimals
func String(d decimal.Decimal) string {
	return d.StringFixed(Places)
}

// Grouped renders an amount with two decimals and comma thousands separators
func Grouped(d decimal.Decimal) string {
	fixed := String(d.Abs())
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// Format renders "<currency> <grouped amount>" or just the amount when currency is empty
func Format(currency string, d decimal.Decimal) string {
	if currency == "" {
		return Grouped(d)
	}
	return currency + " " + Grouped(d)
}
