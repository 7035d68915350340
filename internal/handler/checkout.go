package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/kart-orders/internal/domain/checkout"
	"github.com/xenking/kart-orders/internal/domain/message"
	"github.com/xenking/kart-orders/internal/domain/money"
)

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	msgs := &message.Collector{}

	a, err := h.actor(w, r)
	if err != nil {
		h.writeError(w, r, err, nil, msgs.Messages())
		return
	}

	var req checkout.Request
	err = decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "payment_method":
			req.PaymentMethod, err = d.Str()
		case "customer_note":
			req.CustomerNote, err = d.Str()
		case "billing":
			req.Billing, err = decodeAddress(d)
		case "shipping":
			req.Shipping, err = decodeAddress(d)
		default:
			return d.Skip()
		}
		return err
	})
	if err != nil {
		h.writeError(w, r, err, nil, msgs.Messages())
		return
	}

	o, err := h.checkout.PlaceOrder(ctx, a, req, msgs)
	if err != nil {
		current, getErr := h.carts.Get(ctx, a)
		if getErr != nil {
			current = nil
		}
		h.writeError(w, r, err, current, msgs.Messages())
		return
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(true)
	e.FieldStart("order_id")
	e.Int64(o.ID)
	e.FieldStart("number")
	e.Int64(o.Number)
	e.FieldStart("key")
	e.Str(o.Key)
	e.FieldStart("total")
	amount(e, o.Total())
	e.FieldStart("formatted")
	e.ObjStart()
	e.FieldStart("total")
	e.Str(money.Format(o.Total(), h.currency))
	e.ObjEnd()
	encodeMessages(e, msgs.Messages())
	e.ObjEnd()
	writeJSON(w, http.StatusCreated, e)
}
