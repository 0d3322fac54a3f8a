package models

import "github.com/shopspring/decimal"

// ToCents converts an amount to integer minor units, rounding half away from
// zero to two places.
func ToCents(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

// FromCents converts integer minor units to a decimal amount.
func FromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}
