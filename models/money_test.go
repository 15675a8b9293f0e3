package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCents(t *testing.T) {
	c, err := Cents(decimal.RequireFromString("104.995"))
	require.NoError(t, err)
	assert.Equal(t, int64(10500), c)

	c, err = Cents(MaxAmount)
	require.NoError(t, err)
	assert.Equal(t, int64(100_000_000_000), c)

	for _, amount := range []string{"184467440737095516", "184467440737095616.16", "-1000000000.01"} {
		_, err := Cents(decimal.RequireFromString(amount))
		assert.ErrorIs(t, err, ErrInvalidAmount, amount)
	}
}
