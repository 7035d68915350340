package shipping

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-orders/internal/domain/fault"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry(FlatRate{Amount: decimal.NewFromInt(5)}, Free{Threshold: decimal.NewFromInt(50)})

	m, err := r.Get(FlatRateID)
	require.NoError(t, err)
	assert.Equal(t, "Flat rate", m.Name())

	_, err = r.Get("ups")
	assert.True(t, fault.IsNotFound(err))

	assert.Len(t, r.Available(decimal.NewFromInt(20)), 1)
	available := r.Available(decimal.NewFromInt(50))
	require.Len(t, available, 2)
	assert.Equal(t, FlatRateID, available[0].ID(), "registration order is kept")
}

func TestSelect(t *testing.T) {
	sel := Select(FlatRate{Amount: decimal.RequireFromString("5")}, decimal.NewFromInt(20))
	assert.Equal(t, FlatRateID, sel.MethodID)
	assert.True(t, decimal.NewFromInt(5).Equal(sel.Rate))
	assert.Equal(t, map[string]string{"amount": "5.00"}, sel.State)

	clone := sel.Clone()
	clone.State["amount"] = "0"
	clone.Rate = decimal.Zero
	assert.Equal(t, "5.00", sel.State["amount"])
	assert.True(t, decimal.NewFromInt(5).Equal(sel.Rate))

	var none *Selection
	assert.Nil(t, none.Clone())
}

func TestFree(t *testing.T) {
	f := Free{Threshold: decimal.NewFromInt(30)}
	assert.False(t, f.Available(decimal.RequireFromString("29.99")))
	assert.True(t, f.Available(decimal.NewFromInt(30)))
	assert.True(t, decimal.Zero.Equal(f.Rate(decimal.NewFromInt(100))))
}
