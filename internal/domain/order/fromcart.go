package order

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/xenking/kart-orders/internal/domain/cart"
	"github.com/xenking/kart-orders/internal/domain/fault"
	"github.com/xenking/kart-orders/internal/domain/item"
	"github.com/xenking/kart-orders/internal/domain/message"
)

// Details are the checkout choices that do not live in the cart.
type Details struct {
	PaymentMethod string
	CustomerNote  string
}

// CreateFromCart builds an unsaved pending order from c. Lines, shipping
// selection, coupons and the customer are copied, so later changes to the
// cart do not reach the order.
func (s *Service) CreateFromCart(c *cart.Cart, d Details, msgs message.Sink) (*Order, error) {
	if c == nil || c.IsEmpty() {
		return nil, fault.Validation("cart is empty")
	}

	o := New()
	o.Key = uuid.NewString()
	o.Items = item.CloneAll(c.Items)
	for _, it := range o.Items {
		it.ID = 0
		it.Key = ""
	}
	o.Customer = c.Customer.Snapshot()
	o.Coupons = append([]string(nil), c.Coupons...)
	o.Discount = c.Discount
	o.CustomerNote = strings.TrimSpace(d.CustomerNote)

	if c.Shipping != nil {
		sel := c.Shipping.Clone()
		if s.shipping != nil {
			if _, err := s.shipping.Get(sel.MethodID); err != nil {
				if s.requireShipping {
					return nil, &fault.ValidationError{
						Reason: fmt.Sprintf("shipping method %q is not available", sel.MethodID),
						Err:    err,
					}
				}
				msgs.Warning(fmt.Sprintf("Shipping method %q is not available. The order has no shipping method.", sel.MethodID))
				sel = nil
			}
		}
		o.Shipping = sel
	}
	if o.Shipping == nil && s.requireShipping {
		return nil, fault.Validation("a shipping method must be selected")
	}

	if id := strings.TrimSpace(d.PaymentMethod); id != "" {
		switch {
		case s.payments == nil:
			o.PaymentMethod = id
		default:
			m, err := s.payments.Get(id)
			if err != nil {
				msgs.Warning(fmt.Sprintf("Payment method %q not found. The order has no payment method.", id))
				break
			}
			o.PaymentMethod = m.ID
		}
	}
	return o, nil
}
