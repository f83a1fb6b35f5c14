package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsDecimalString(t *testing.T) {
	valid := []string{"0", "1", "0.01", "123.456789", " 10.5 ", "1000000"}
	for _, v := range valid {
		assert.True(t, IsDecimalString(v), "expected valid: %q", v)
	}
	invalid := []string{"", ".", ".5", "5.", "-1", "+1", "1e5", "1,000", "1.2.3", "abc", "0x10"}
	for _, v := range invalid {
		assert.False(t, IsDecimalString(v), "expected invalid: %q", v)
	}
}

func TestDecimalPlaces(t *testing.T) {
	assert.Equal(t, 0, DecimalPlaces("10"))
	assert.Equal(t, 2, DecimalPlaces("10.05"))
	assert.Equal(t, 6, DecimalPlaces("0.000001"))
}

func TestCompare(t *testing.T) {
	cmp, ok := Compare("0.1", "0.10")
	require.True(t, ok)
	assert.Equal(t, 0, cmp)

	cmp, ok = Compare("0.009999", "0.01")
	require.True(t, ok)
	assert.Equal(t, -1, cmp)

	cmp, ok = Compare("2", "1.999999")
	require.True(t, ok)
	assert.Equal(t, 1, cmp)

	_, ok = Compare("nope", "1")
	assert.False(t, ok)
}

func TestParseTransferAmount(t *testing.T) {
	min := decimal.RequireFromString("0.01")

	amount, err := ParseTransferAmount("25.50", 6, min)
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.RequireFromString("25.5")))

	// Exactly the minimum is accepted.
	_, err = ParseTransferAmount("0.01", 6, min)
	assert.NoError(t, err)

	for _, bad := range []string{"", "abc", "-5", "0", "0.009999", "1.0000001"} {
		_, err := ParseTransferAmount(bad, 6, min)
		assert.Error(t, err, "expected rejection: %q", bad)
	}
}
