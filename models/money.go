package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MaxAmount bounds every price, charge and payout. Its value in cents fits
// in int64 with room for ledger sums.
var MaxAmount = decimal.New(1_000_000_000, 0)

// InRange reports whether d is within ±MaxAmount.
func InRange(d decimal.Decimal) bool {
	return !d.Abs().GreaterThan(MaxAmount)
}

// Cents converts an amount to integer minor units, rounding half away from
// zero. Amounts outside ±MaxAmount return ErrInvalidAmount.
func Cents(d decimal.Decimal) (int64, error) {
	if !InRange(d) {
		return 0, fmt.Errorf("amount %s exceeds %s: %w", d, MaxAmount, ErrInvalidAmount)
	}
	shifted := d.Round(2).Shift(2)
	if !shifted.BigInt().IsInt64() {
		return 0, fmt.Errorf("amount %s: %w", d, ErrInvalidAmount)
	}
	return shifted.IntPart(), nil
}

// ToCents is Cents for amounts already validated against MaxAmount, as
// everything written by the services is.
func ToCents(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

// FromCents converts integer minor units back to an amount.
func FromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}
