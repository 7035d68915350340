// Package cart implements the per-actor shopping cart.
package cart

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/coupon"
	"github.com/xenking/kart-orders/internal/domain/customer"
	"github.com/xenking/kart-orders/internal/domain/fault"
	"github.com/xenking/kart-orders/internal/domain/item"
	"github.com/xenking/kart-orders/internal/domain/money"
	"github.com/xenking/kart-orders/internal/domain/shipping"
)

// Cart is the mutable basket of a single actor.
type Cart struct {
	ID        string              `json:"id"`
	Items     []*item.Item        `json:"items"`
	Shipping  *shipping.Selection `json:"shipping,omitempty"`
	Customer  customer.Customer   `json:"customer"`
	Coupons   []string            `json:"coupons,omitempty"`
	Discount  decimal.Decimal     `json:"discount"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// New creates an empty cart for the given customer snapshot.
func New(id string, c customer.Customer) *Cart {
	return &Cart{ID: id, Customer: c.Snapshot()}
}

// Add puts it into the cart. A line with the same key absorbs the quantity
// instead of creating a second line.
func (c *Cart) Add(it *item.Item) *item.Item {
	if line, ok := c.Item(it.Key); ok {
		line.Quantity += it.Quantity
		if line.Taxes == nil {
			line.Taxes = make(money.Taxes, len(it.Taxes))
		}
		line.Taxes.Add(it.Taxes)
		return line
	}
	c.Items = append(c.Items, it)
	return it
}

// Item returns the line with the given key.
func (c *Cart) Item(key string) (*item.Item, bool) {
	for _, it := range c.Items {
		if it.Key == key {
			return it, true
		}
	}
	return nil, false
}

// Remove deletes the line with the given key.
func (c *Cart) Remove(key string) error {
	for i, it := range c.Items {
		if it.Key == key {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return nil
		}
	}
	return fault.Validation("item %q is not in the cart", key)
}

// UpdateQuantity sets the quantity of a line. A quantity of zero or less
// removes the line.
func (c *Cart) UpdateQuantity(key string, qty int) error {
	line, ok := c.Item(key)
	if !ok {
		return fault.Validation("item %q is not in the cart", key)
	}
	if qty <= 0 {
		return c.Remove(key)
	}
	return line.SetQuantity(qty)
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// HasCoupon reports whether code is applied.
func (c *Cart) HasCoupon(code string) bool {
	for _, applied := range c.Coupons {
		if applied == code {
			return true
		}
	}
	return false
}

// Subtotal returns the sum of line subtotals.
func (c *Cart) Subtotal() decimal.Decimal {
	return money.Round(item.Subtotal(c.Items))
}

// Taxes returns tax totals per class.
func (c *Cart) Taxes() money.Taxes {
	return item.Taxes(c.Items).Rounded()
}

// TotalTax returns the sum of all taxes.
func (c *Cart) TotalTax() decimal.Decimal {
	return money.Round(item.Taxes(c.Items).Total())
}

// ShippingRate returns the rate of the selected shipping method.
func (c *Cart) ShippingRate() decimal.Decimal {
	if c.Shipping == nil {
		return decimal.Zero
	}
	return c.Shipping.Rate
}

// Total returns subtotal minus discount, plus tax and shipping.
func (c *Cart) Total() decimal.Decimal {
	net := money.NonNegative(c.Subtotal().Sub(c.Discount))
	return money.Round(net.Add(c.TotalTax()).Add(c.ShippingRate()))
}

// CouponItems projects the lines for coupon evaluation.
func (c *Cart) CouponItems() []coupon.Item {
	out := make([]coupon.Item, 0, len(c.Items))
	for _, it := range c.Items {
		out = append(out, coupon.Item{ProductID: it.ProductID, Price: it.Price, Quantity: it.Quantity})
	}
	return out
}

// Clone returns a deep copy.
func (c *Cart) Clone() *Cart {
	out := *c
	out.Items = item.CloneAll(c.Items)
	out.Shipping = c.Shipping.Clone()
	out.Customer = c.Customer.Snapshot()
	out.Coupons = append([]string(nil), c.Coupons...)
	return &out
}
