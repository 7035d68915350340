package handler

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/go-faster/jx"

	"github.com/xenking/kart-orders/internal/domain/fault"
	"github.com/xenking/kart-orders/internal/domain/order"
)

// getOrder returns an order to whoever holds its key. A wrong key looks
// exactly like a missing order.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("id")
	notFound := &fault.NotFoundError{Kind: "order", ID: raw}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, r, notFound, nil, nil)
		return
	}
	o, err := h.orders.Find(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err, nil, nil)
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(o.Key)) != 1 {
		h.writeError(w, r, notFound, nil, nil)
		return
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(true)
	h.encodeOrder(e, o)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) encodeOrder(e *jx.Encoder, o *order.Order) {
	e.FieldStart("order_id")
	e.Int64(o.ID)
	e.FieldStart("number")
	e.Int64(o.Number)
	e.FieldStart("title")
	e.Str(o.Title())
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("status_label")
	e.Str(o.Status.Label())
	encodeTime(e, "created_at", o.CreatedAt)
	encodeTime(e, "completed_at", o.CompletedAt)
	if o.PaymentMethod != "" {
		e.FieldStart("payment_method")
		e.Str(o.PaymentMethod)
	}
	if o.CustomerNote != "" {
		e.FieldStart("customer_note")
		e.Str(o.CustomerNote)
	}
	h.encodeTotals(e, totals{
		Subtotal: o.Subtotal(),
		Taxes:    o.Taxes(),
		Shipping: o.ShippingRate(),
		Discount: o.AppliedDiscount(),
		Total:    o.Total(),
	})
	encodeItems(e, o.Items)
	encodeShipping(e, o.Shipping)
	encodeStrings(e, "coupons", o.Coupons)
	encodeAddress(e, "billing_address", o.Customer.Billing)
	encodeAddress(e, "shipping_address", o.Customer.Shipping)
}
