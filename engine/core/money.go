package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor currency units (pence). All monetary
// arithmetic and comparison in the engine happens on this integer type;
// decimal strings exist only at the wire boundary.
type Money int64

// ParseMoney converts a decimal string like "25.00" into minor units.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	minor := d.Mul(decimal.NewFromInt(100))
	if !minor.IsInteger() {
		return 0, fmt.Errorf("amount %q has sub-penny precision", s)
	}
	return Money(minor.IntPart()), nil
}

// MoneyFromUnits builds a Money value from whole major units and pence.
func MoneyFromUnits(major, pence int64) Money {
	return Money(major*100 + pence)
}

// Decimal renders the amount as a decimal string with two places.
func (m Money) Decimal() string {
	return decimal.New(int64(m), -2).StringFixed(2)
}

// IsPositive reports whether the amount is greater than zero.
func (m Money) IsPositive() bool {
	return m > 0
}
