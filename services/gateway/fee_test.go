package gateway

import (
	"testing"

	"contratto/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCharge(t *testing.T) {
	cases := []struct {
		price, rate, fee, charge string
	}{
		{"100.00", "0.05", "5", "105"},
		{"99.99", "0.05", "5", "104.99"},
		{"10.10", "0.05", "0.51", "10.61"},
		{"250", "0", "0", "250"},
	}
	for _, tc := range cases {
		fee, charge, err := Charge(decimal.RequireFromString(tc.price), decimal.RequireFromString(tc.rate))
		require.NoError(t, err)
		assert.True(t, fee.Equal(decimal.RequireFromString(tc.fee)), "fee of %s: %s", tc.price, fee)
		assert.True(t, charge.Equal(decimal.RequireFromString(tc.charge)), "charge of %s: %s", tc.price, charge)
	}
}

func TestChargeRejectsNonPositivePrice(t *testing.T) {
	_, _, err := Charge(decimal.Zero, decimal.RequireFromString("0.05"))
	assert.ErrorIs(t, err, models.ErrInvalidOrder)
	_, _, err = Charge(decimal.RequireFromString("-1"), decimal.RequireFromString("0.05"))
	assert.ErrorIs(t, err, models.ErrInvalidOrder)
}

func TestChargeRejectsAmountsBeyondMaximum(t *testing.T) {
	rate := decimal.RequireFromString("0.05")
	_, _, err := Charge(decimal.RequireFromString("175683276892471920"), rate)
	assert.ErrorIs(t, err, models.ErrInvalidOrder)

	// the price fits but price plus fee does not
	_, _, err = Charge(decimal.RequireFromString("990000000"), rate)
	assert.ErrorIs(t, err, models.ErrInvalidOrder)

	_, charge, err := Charge(models.MaxAmount.Div(decimal.RequireFromString("1.05")).Truncate(2), rate)
	require.NoError(t, err)
	assert.True(t, models.InRange(charge))
}
