package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/kart-orders/internal/domain/cart"
	"github.com/xenking/kart-orders/internal/domain/fault"
	"github.com/xenking/kart-orders/internal/domain/message"
)

type cartOp func(ctx context.Context, a cart.Actor, msgs message.Sink) (*cart.Cart, error)

// serveCart runs op for the request's actor and replies with the resulting
// cart. On failure the reply carries the stored cart's totals.
func (h *Handler) serveCart(w http.ResponseWriter, r *http.Request, op cartOp, extra func(c *cart.Cart) func(e *jx.Encoder)) {
	ctx := r.Context()
	msgs := &message.Collector{}

	a, err := h.actor(w, r)
	if err != nil {
		h.writeError(w, r, err, nil, msgs.Messages())
		return
	}
	c, err := op(ctx, a, msgs)
	if err != nil {
		current, getErr := h.carts.Get(ctx, a)
		if getErr != nil {
			current = nil
		}
		h.writeError(w, r, err, current, msgs.Messages())
		return
	}

	var fields func(e *jx.Encoder)
	if extra != nil {
		fields = extra(c)
	}
	h.writeCart(w, c, msgs.Messages(), fields)
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	h.serveCart(w, r, func(ctx context.Context, a cart.Actor, _ message.Sink) (*cart.Cart, error) {
		return h.carts.Get(ctx, a)
	}, nil)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	h.serveCart(w, r, func(ctx context.Context, a cart.Actor, msgs message.Sink) (*cart.Cart, error) {
		var (
			productID int64
			qty       = 1
			meta      map[string]string
		)
		err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "product_id":
				productID, err = d.Int64()
			case "quantity":
				qty, err = d.Int()
			case "meta":
				meta, err = decodeMeta(d)
			default:
				return d.Skip()
			}
			return err
		})
		if err != nil {
			return nil, err
		}
		if productID <= 0 {
			return nil, fault.Validation("product_id is required")
		}
		return h.carts.AddProduct(ctx, a, msgs, productID, qty, meta)
	}, nil)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	h.serveCart(w, r, func(ctx context.Context, a cart.Actor, msgs message.Sink) (*cart.Cart, error) {
		var (
			qty  int
			seen bool
		)
		err := decodeObject(w, r, func(d *jx.Decoder, k string) error {
			if k != "quantity" {
				return d.Skip()
			}
			seen = true
			var err error
			qty, err = d.Int()
			return err
		})
		if err != nil {
			return nil, err
		}
		if !seen {
			return nil, fault.Validation("quantity is required")
		}
		return h.carts.UpdateQuantity(ctx, a, msgs, key, qty)
	}, func(c *cart.Cart) func(e *jx.Encoder) {
		return func(e *jx.Encoder) {
			line, ok := c.Item(key)
			if !ok {
				e.FieldStart("item_removed")
				e.Bool(true)
				return
			}
			e.FieldStart("item_price")
			amount(e, line.Price)
			e.FieldStart("item_subtotal")
			amount(e, line.Subtotal())
		}
	})
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	h.serveCart(w, r, func(ctx context.Context, a cart.Actor, msgs message.Sink) (*cart.Cart, error) {
		return h.carts.RemoveItem(ctx, a, msgs, key)
	}, nil)
}

func (h *Handler) selectShipping(w http.ResponseWriter, r *http.Request) {
	h.serveCart(w, r, func(ctx context.Context, a cart.Actor, msgs message.Sink) (*cart.Cart, error) {
		var method string
		err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
			if key != "method" {
				return d.Skip()
			}
			var err error
			method, err = d.Str()
			return err
		})
		if err != nil {
			return nil, err
		}
		if method == "" {
			return nil, fault.Validation("method is required")
		}
		return h.carts.SelectShipping(ctx, a, msgs, method)
	}, nil)
}

func (h *Handler) changeDestination(w http.ResponseWriter, r *http.Request) {
	h.serveCart(w, r, func(ctx context.Context, a cart.Actor, msgs message.Sink) (*cart.Cart, error) {
		var dst cart.Destination
		err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "country":
				dst.Country, err = d.Str()
			case "state":
				dst.State, err = d.Str()
			case "postcode":
				dst.Postcode, err = d.Str()
			default:
				return d.Skip()
			}
			return err
		})
		if err != nil {
			return nil, err
		}
		return h.carts.ChangeDestination(ctx, a, msgs, dst)
	}, nil)
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	h.serveCart(w, r, func(ctx context.Context, a cart.Actor, msgs message.Sink) (*cart.Cart, error) {
		var code string
		err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
			if key != "code" {
				return d.Skip()
			}
			var err error
			code, err = d.Str()
			return err
		})
		if err != nil {
			return nil, err
		}
		if code == "" {
			return nil, fault.Validation("code is required")
		}
		return h.carts.ApplyCoupon(ctx, a, msgs, code)
	}, nil)
}

func (h *Handler) removeCoupon(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	h.serveCart(w, r, func(ctx context.Context, a cart.Actor, msgs message.Sink) (*cart.Cart, error) {
		return h.carts.RemoveCoupon(ctx, a, msgs, code)
	}, nil)
}
