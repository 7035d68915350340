// Package handler implements the JSON HTTP boundary for carts, checkout
// and order lookup. Every reply is a single JSON document.
package handler

import (
	"context"
	"net/http"

	"github.com/xenking/kart-orders/internal/domain/cart"
	"github.com/xenking/kart-orders/internal/domain/checkout"
	"github.com/xenking/kart-orders/internal/domain/message"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/pkg/httpmiddleware"
)

// Carts is the cart service used by the handlers.
type Carts interface {
	Get(ctx context.Context, actor cart.Actor) (*cart.Cart, error)
	AddProduct(ctx context.Context, actor cart.Actor, msgs message.Sink, productID int64, qty int, meta map[string]string) (*cart.Cart, error)
	UpdateQuantity(ctx context.Context, actor cart.Actor, msgs message.Sink, key string, qty int) (*cart.Cart, error)
	RemoveItem(ctx context.Context, actor cart.Actor, msgs message.Sink, key string) (*cart.Cart, error)
	SelectShipping(ctx context.Context, actor cart.Actor, msgs message.Sink, methodID string) (*cart.Cart, error)
	ChangeDestination(ctx context.Context, actor cart.Actor, msgs message.Sink, dst cart.Destination) (*cart.Cart, error)
	ApplyCoupon(ctx context.Context, actor cart.Actor, msgs message.Sink, code string) (*cart.Cart, error)
	RemoveCoupon(ctx context.Context, actor cart.Actor, msgs message.Sink, code string) (*cart.Cart, error)
}

// Checkout places orders.
type Checkout interface {
	PlaceOrder(ctx context.Context, actor cart.Actor, req checkout.Request, msgs message.Sink) (*order.Order, error)
}

// Orders loads placed orders.
type Orders interface {
	Find(ctx context.Context, id int64) (*order.Order, error)
}

var (
	_ Carts    = (*cart.Service)(nil)
	_ Checkout = (*checkout.Service)(nil)
	_ Orders   = (*order.Service)(nil)
)

// Config holds non-dependency settings of the Handler.
type Config struct {
	// Currency is used for the formatted amounts in replies.
	Currency string
	// SecureCookie marks the session cookie Secure.
	SecureCookie bool
	// CheckoutLimit wraps the checkout endpoint. Nil means unlimited.
	CheckoutLimit httpmiddleware.Middleware
}

// Handler serves the cart and order endpoints.
type Handler struct {
	carts    Carts
	checkout Checkout
	orders   Orders

	currency      string
	secureCookie  bool
	checkoutLimit httpmiddleware.Middleware
}

// New creates a Handler.
func New(cfg Config, carts Carts, co Checkout, orders Orders) *Handler {
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	limit := cfg.CheckoutLimit
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{
		carts:         carts,
		checkout:      co,
		orders:        orders,
		currency:      cfg.Currency,
		secureCookie:  cfg.SecureCookie,
		checkoutLimit: limit,
	}
}

// Register mounts the endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /cart", h.getCart)
	mux.HandleFunc("POST /cart/items", h.addItem)
	mux.HandleFunc("PUT /cart/items/{key}", h.updateItem)
	mux.HandleFunc("DELETE /cart/items/{key}", h.removeItem)
	mux.HandleFunc("PUT /cart/shipping", h.selectShipping)
	mux.HandleFunc("PUT /cart/destination", h.changeDestination)
	mux.HandleFunc("POST /cart/coupons", h.applyCoupon)
	mux.HandleFunc("DELETE /cart/coupons/{code}", h.removeCoupon)
	mux.Handle("POST /checkout", h.checkoutLimit(http.HandlerFunc(h.placeOrder)))
	mux.HandleFunc("GET /orders/{id}", h.getOrder)
}
