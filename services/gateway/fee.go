package gateway

import (
	"fmt"

	"contratto/models"

	"github.com/shopspring/decimal"
)

// Charge splits what the buyer pays into the seller's price and the
// platform fee: fee = round(price * rate, 2), charge = price + fee.
func Charge(price, rate decimal.Decimal) (fee, charge decimal.Decimal, err error) {
	if !price.IsPositive() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("price %s: %w", price, models.ErrInvalidOrder)
	}
	fee = price.Mul(rate).Round(2)
	charge = price.Add(fee)
	if !models.InRange(price) || !models.InRange(charge) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("charge %s exceeds %s: %w", charge, models.MaxAmount, models.ErrInvalidOrder)
	}
	return fee, charge, nil
}
