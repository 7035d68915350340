package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-orders/internal/domain/fault"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry(ParseMethods([]string{"cheque", "cod:Cash on delivery", " "})...)
	require.Len(t, r.List(), 2)

	m, err := r.Get("cod")
	require.NoError(t, err)
	assert.Equal(t, "Cash on delivery", m.Name)

	m, err = r.Get("cheque")
	require.NoError(t, err)
	assert.Equal(t, "cheque", m.Name)

	_, err = r.Get("paypal")
	assert.True(t, fault.IsNotFound(err))
	assert.EqualError(t, err, `payment method "paypal" not found`)
}
