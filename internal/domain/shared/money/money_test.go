package money

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromDecimalRoundsHalfUp(t *testing.T) {
	assert.Equal(t, int64(3), FromDecimal(decimal.RequireFromString("2.5"), "idr").Amount)
	assert.Equal(t, int64(2), FromDecimal(decimal.RequireFromString("2.49"), "IDR").Amount)
	assert.Equal(t, "IDR", FromDecimal(decimal.NewFromInt(1), "idr").Currency)
}

func TestAddRequiresSameCurrency(t *testing.T) {
	_, err := Must(1, "IDR").Add(Must(1, "USD"))
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	sum, err := Must(1, "IDR").Add(Must(2, "IDR"))
	require.NoError(t, err)
	assert.Equal(t, Must(3, "IDR"), sum)
}

func TestAtLeast(t *testing.T) {
	assert.Equal(t, int64(1), Must(-500, "IDR").AtLeast(1).Amount)
	assert.Equal(t, int64(10), Must(10, "IDR").AtLeast(1).Amount)
}

func TestAddOverflow(t *testing.T) {
	_, err := Must(math.MaxInt64, "IDR").Add(Must(1, "IDR"))
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = Must(math.MinInt64, "IDR").Add(Must(-1, "IDR"))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestMultiply(t *testing.T) {
	got, err := Must(1_000_000, "IDR").Multiply(3)
	require.NoError(t, err)
	assert.Equal(t, Must(3_000_000, "IDR"), got)

	_, err = Must(1_000_000, "IDR").Multiply(1<<58 + 1)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = Must(math.MinInt64, "IDR").Multiply(-1)
	assert.ErrorIs(t, err, ErrOverflow)
}
