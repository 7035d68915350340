package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-orders/internal/domain/customer"
	"github.com/xenking/kart-orders/internal/domain/fault"
	"github.com/xenking/kart-orders/internal/domain/item"
	"github.com/xenking/kart-orders/internal/domain/money"
	"github.com/xenking/kart-orders/internal/domain/shipping"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func waffle(qty int) *item.Item {
	return &item.Item{
		Key:       item.KeyFor(1, nil),
		ProductID: 1,
		Type:      item.TypeProduct,
		Name:      "Waffle",
		Price:     d("10.00"),
		Quantity:  qty,
		Taxes:     money.Taxes{"standard": d("0.50").Mul(decimal.NewFromInt(int64(qty)))},
	}
}

func TestCart_Totals(t *testing.T) {
	c := New("session:abc", customer.Guest())
	c.Add(waffle(2))
	c.Shipping = shipping.Select(shipping.FlatRate{Amount: d("5.00")}, c.Subtotal())

	assert.True(t, d("20.00").Equal(c.Subtotal()))
	assert.True(t, d("1.00").Equal(c.TotalTax()))
	assert.True(t, d("1.00").Equal(c.Taxes()["standard"]))
	assert.True(t, d("26.00").Equal(c.Total()))

	c.Discount = d("25")
	assert.True(t, d("6.00").Equal(c.Total()), "discount never takes the net below zero")
}

func TestCart_AddMergesSameKey(t *testing.T) {
	c := New("session:abc", customer.Guest())
	c.Add(waffle(1))
	line := c.Add(waffle(2))

	require.Len(t, c.Items, 1)
	assert.Equal(t, 3, line.Quantity)
	assert.True(t, d("1.50").Equal(line.Taxes["standard"]))

	other := waffle(1)
	other.Key = item.KeyFor(1, map[string]string{"topping": "cream"})
	c.Add(other)
	assert.Len(t, c.Items, 2)
}

func TestCart_UpdateQuantity(t *testing.T) {
	c := New("session:abc", customer.Guest())
	key := c.Add(waffle(2)).Key

	require.NoError(t, c.UpdateQuantity(key, 4))
	line, ok := c.Item(key)
	require.True(t, ok)
	assert.Equal(t, 4, line.Quantity)

	require.NoError(t, c.UpdateQuantity(key, 0))
	assert.True(t, c.IsEmpty(), "zero quantity removes the line")

	err := c.UpdateQuantity(key, 1)
	assert.True(t, fault.IsValidation(err))
	assert.True(t, fault.IsValidation(c.Remove("missing")))
}

func TestCart_CloneIsDeep(t *testing.T) {
	c := New("customer:1", customer.Customer{ID: 1, Billing: customer.Address{Company: &customer.Company{Name: "ACME"}}})
	c.Add(waffle(1))
	c.Coupons = []string{"SAVE"}
	c.Shipping = shipping.Select(shipping.FlatRate{Amount: d("5")}, d("10"))

	clone := c.Clone()
	clone.Items[0].Quantity = 9
	clone.Coupons[0] = "OTHER"
	clone.Shipping.Rate = d("0")
	clone.Customer.Billing.Company.Name = "Changed"

	assert.Equal(t, 1, c.Items[0].Quantity)
	assert.Equal(t, "SAVE", c.Coupons[0])
	assert.True(t, d("5").Equal(c.Shipping.Rate))
	assert.Equal(t, "ACME", c.Customer.Billing.Company.Name)
}

func TestActor_CartID(t *testing.T) {
	assert.Equal(t, "customer:42", Actor{CustomerID: 42, SessionID: "s"}.CartID())
	assert.Equal(t, "session:s", Actor{SessionID: "s"}.CartID())
	assert.False(t, Actor{}.Valid())
}
