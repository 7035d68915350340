// Package order implements the order aggregate and its transactional save.
package order

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/customer"
	"github.com/xenking/kart-orders/internal/domain/fault"
	"github.com/xenking/kart-orders/internal/domain/item"
	"github.com/xenking/kart-orders/internal/domain/money"
	"github.com/xenking/kart-orders/internal/domain/shipping"
)

// Order is a placed order. An Order with a zero ID has never been saved.
type Order struct {
	// ID is assigned by the first save and never changes afterwards.
	ID int64
	// Number is the customer-facing order number, assigned exactly once.
	Number int64
	// Key is the secret that lets a guest look the order up.
	Key    string
	Status Status
	Items  []*item.Item
	// Customer is a snapshot taken when the order was created.
	Customer      customer.Customer
	Shipping      *shipping.Selection
	PaymentMethod string
	Coupons       []string
	// Discount is the coupon discount captured at checkout. Line edits on
	// the order do not re-run coupon rules; see AppliedDiscount.
	Discount     decimal.Decimal
	CustomerNote string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  time.Time
}

// New returns an unsaved pending order.
func New() *Order {
	return &Order{Status: StatusPending}
}

// IsNew reports whether the order has never been saved.
func (o *Order) IsNew() bool {
	return o.ID == 0
}

// Title is the display title stored with the header.
func (o *Order) Title() string {
	if o.Number == 0 {
		return "Order"
	}
	return "Order #" + strconv.FormatInt(o.Number, 10)
}

// AddItem appends a line.
func (o *Order) AddItem(it *item.Item) error {
	if err := it.Validate(); err != nil {
		return err
	}
	o.Items = append(o.Items, it)
	return nil
}

// Item returns the line with the given stored identity.
func (o *Order) Item(id int64) (*item.Item, bool) {
	if id == 0 {
		return nil, false
	}
	for _, it := range o.Items {
		if it.ID == id {
			return it, true
		}
	}
	return nil, false
}

// RemoveItem deletes the line with the given identity.
func (o *Order) RemoveItem(id int64) error {
	for i, it := range o.Items {
		if id != 0 && it.ID == id {
			o.Items = append(o.Items[:i], o.Items[i+1:]...)
			return nil
		}
	}
	return fault.Validation("order has no item %d", id)
}

// UpdateQuantity changes a line quantity. A quantity of zero or less
// removes the line.
func (o *Order) UpdateQuantity(id int64, qty int) error {
	it, ok := o.Item(id)
	if !ok {
		return fault.Validation("order has no item %d", id)
	}
	if qty <= 0 {
		return o.RemoveItem(id)
	}
	return it.SetQuantity(qty)
}

// SetStatus moves the order to status s.
func (o *Order) SetStatus(s Status) error {
	if !s.Valid() {
		return fault.Validation("unknown order status %q", s)
	}
	o.Status = s
	return nil
}

// Subtotal returns the sum of line subtotals.
func (o *Order) Subtotal() decimal.Decimal {
	return money.Round(item.Subtotal(o.Items))
}

// Taxes returns tax totals per class.
func (o *Order) Taxes() money.Taxes {
	return item.Taxes(o.Items).Rounded()
}

// TotalTax returns the sum of all taxes.
func (o *Order) TotalTax() decimal.Decimal {
	return money.Round(item.Taxes(o.Items).Total())
}

// ShippingRate returns the captured shipping rate.
func (o *Order) ShippingRate() decimal.Decimal {
	if o.Shipping == nil {
		return decimal.Zero
	}
	return o.Shipping.Rate
}

// AppliedDiscount returns the captured discount capped at the current
// subtotal.
func (o *Order) AppliedDiscount() decimal.Decimal {
	return decimal.Min(money.NonNegative(o.Discount), o.Subtotal())
}

// Total returns subtotal minus discount, plus tax and shipping.
func (o *Order) Total() decimal.Decimal {
	net := o.Subtotal().Sub(o.AppliedDiscount())
	return money.Round(net.Add(o.TotalTax()).Add(o.ShippingRate()))
}

// Validate checks what must hold before the order is stored.
func (o *Order) Validate() error {
	if !o.Status.Valid() {
		return fault.Validation("unknown order status %q", o.Status)
	}
	if o.Discount.IsNegative() {
		return fault.Validation("discount must not be negative")
	}
	for _, it := range o.Items {
		if err := it.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy.
func (o *Order) Clone() *Order {
	out := *o
	out.Items = item.CloneAll(o.Items)
	out.Customer = o.Customer.Snapshot()
	out.Shipping = o.Shipping.Clone()
	out.Coupons = append([]string(nil), o.Coupons...)
	return &out
}
