// Package checkout turns an actor's cart into a placed order.
package checkout

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/cart"
	"github.com/xenking/kart-orders/internal/domain/coupon"
	"github.com/xenking/kart-orders/internal/domain/customer"
	"github.com/xenking/kart-orders/internal/domain/message"
	"github.com/xenking/kart-orders/internal/domain/order"
)

// Carts is the part of the cart service checkout needs.
type Carts interface {
	Get(ctx context.Context, actor cart.Actor) (*cart.Cart, error)
	Clear(ctx context.Context, actor cart.Actor) error
}

// Orders is the part of the order service checkout needs.
type Orders interface {
	CreateFromCart(c *cart.Cart, d order.Details, msgs message.Sink) (*order.Order, error)
	Save(ctx context.Context, o *order.Order) error
}

// Request holds the checkout form.
type Request struct {
	PaymentMethod string
	CustomerNote  string
	// Billing and Shipping override the addresses on the customer
	// snapshot when set.
	Billing  *customer.Address
	Shipping *customer.Address
}

// Service places orders.
type Service struct {
	carts    Carts
	orders   Orders
	redeemer coupon.Redeemer
}

// NewService creates a checkout Service.
func NewService(carts Carts, orders Orders, redeemer coupon.Redeemer) *Service {
	return &Service{
		carts:    carts,
		orders:   orders,
		redeemer: redeemer,
	}
}

// PlaceOrder converts the actor's cart into a saved order. Once the order
// is stored its coupons are redeemed and the cart is emptied; failures of
// those follow-ups are logged and do not undo the order.
func (s *Service) PlaceOrder(ctx context.Context, actor cart.Actor, req Request, msgs message.Sink) (*order.Order, error) {
	c, err := s.carts.Get(ctx, actor)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}

	o, err := s.orders.CreateFromCart(c, order.Details{
		PaymentMethod: req.PaymentMethod,
		CustomerNote:  req.CustomerNote,
	}, msgs)
	if err != nil {
		return nil, err
	}
	if req.Billing != nil {
		o.Customer.Billing = req.Billing.Clone()
	}
	if req.Shipping != nil {
		o.Customer.Shipping = req.Shipping.Clone()
	}

	if err := s.orders.Save(ctx, o); err != nil {
		return nil, err
	}

	lg := zctx.From(ctx).With(
		zap.Int64("order_id", o.ID),
		zap.Int64("order_number", o.Number),
	)
	for _, code := range o.Coupons {
		if err := s.redeemer.Redeem(ctx, code); err != nil {
			lg.Warn("Redeem coupon", zap.String("code", code), zap.Error(err))
		}
	}
	if err := s.carts.Clear(ctx, actor); err != nil {
		lg.Warn("Clear cart", zap.String("cart_id", actor.CartID()), zap.Error(err))
	}
	lg.Info("Order placed", zap.String("total", o.Total().StringFixed(2)))

	msgs.Notice(fmt.Sprintf("Thank you. %s has been received.", o.Title()))
	return o, nil
}
