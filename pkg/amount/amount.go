// Package amount holds the fixed-precision arithmetic shared by accounting and offers.
// Ledger amounts carry 7 fractional digits; intermediate prices keep 18.
package amount

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// Scale is the ledger's native fractional precision.
	Scale = 7
	// PriceScale is the precision kept for unit prices and ratios before rounding to Scale.
	PriceScale = 18
)

var (
	Zero = decimal.Zero
	One  = decimal.NewFromInt(1)
	// Epsilon is the smallest representable ledger amount.
	Epsilon = decimal.New(1, -Scale)
)

// Parse reads a decimal string and rejects values with more than Scale fractional digits.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if !d.Equal(d.Truncate(Scale)) {
		return decimal.Decimal{}, fmt.Errorf("amount %q exceeds %d decimals", s, Scale)
	}
	return d, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Round rounds half away from zero to Scale decimals.
func Round(d decimal.Decimal) decimal.Decimal { return d.Round(Scale) }

// Truncate drops digits beyond Scale, rounding toward zero.
func Truncate(d decimal.Decimal) decimal.Decimal { return d.Truncate(Scale) }

// Format renders d with exactly Scale decimals, the form the ledger accepts.
func Format(d decimal.Decimal) string { return d.StringFixed(Scale) }

// Div divides at PriceScale precision. b must be non-zero.
func Div(a, b decimal.Decimal) decimal.Decimal { return a.DivRound(b, PriceScale) }

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
