package tax

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRates(t *testing.T) {
	rates, err := ParseRates([]string{"standard:20", " reduced : 5.5 ", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"reduced", "standard"}, rates.Classes())
	assert.True(t, decimal.RequireFromString("5.5").Equal(rates["reduced"]))

	for _, bad := range []string{"standard", ":10", "standard:abc", "standard:-1"} {
		_, err := ParseRates([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestCalculate(t *testing.T) {
	rates := Rates{"standard": decimal.NewFromInt(5), "reduced": decimal.RequireFromString("2.5")}

	taxes := rates.Calculate([]string{"standard", "reduced", "exotic"}, decimal.NewFromInt(20))
	assert.True(t, decimal.NewFromInt(1).Equal(taxes["standard"]))
	assert.True(t, decimal.RequireFromString("0.5").Equal(taxes["reduced"]))
	assert.True(t, decimal.Zero.Equal(taxes["exotic"]))
	assert.Len(t, taxes, 3)

	assert.Empty(t, rates.Calculate(nil, decimal.NewFromInt(20)))
}
