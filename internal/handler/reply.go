package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/cart"
	"github.com/xenking/kart-orders/internal/domain/customer"
	"github.com/xenking/kart-orders/internal/domain/fault"
	"github.com/xenking/kart-orders/internal/domain/item"
	"github.com/xenking/kart-orders/internal/domain/message"
	"github.com/xenking/kart-orders/internal/domain/money"
	"github.com/xenking/kart-orders/internal/domain/shipping"
)

// totals is the money summary carried by cart and order replies.
type totals struct {
	Subtotal decimal.Decimal
	Taxes    money.Taxes
	Shipping decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

func cartTotals(c *cart.Cart) totals {
	return totals{
		Subtotal: c.Subtotal(),
		Taxes:    c.Taxes(),
		Shipping: c.ShippingRate(),
		Discount: c.Discount,
		Total:    c.Total(),
	}
}

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// statusOf maps an error to its HTTP status. Storage failures are never
// reported as client errors, whatever they wrap.
func statusOf(err error) int {
	switch {
	case fault.IsPersistence(err):
		return http.StatusInternalServerError
	case fault.IsValidation(err):
		return http.StatusBadRequest
	case fault.IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// errorText returns the message shown for err. Internal failures are
// logged and replaced with a generic text.
func errorText(r *http.Request, status int, err error) string {
	if status < http.StatusInternalServerError {
		return err.Error()
	}
	zctx.From(r.Context()).Error("Request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	return "internal error"
}

// writeError replies {success:false, error} plus the totals of c when known.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, c *cart.Cart, msgs []message.Message) {
	status := statusOf(err)
	text := errorText(r, status, err)

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(false)
	e.FieldStart("error")
	e.Str(text)
	if c != nil {
		h.encodeTotals(e, cartTotals(c))
	}
	encodeMessages(e, msgs)
	e.ObjEnd()
	writeJSON(w, status, e)
}

func amount(e *jx.Encoder, d decimal.Decimal) {
	e.Str(money.Round(d).StringFixed(money.Places))
}

func encodeTaxes(e *jx.Encoder, t money.Taxes, format func(decimal.Decimal)) {
	e.ObjStart()
	for _, class := range t.Classes() {
		e.FieldStart(class)
		format(t[class])
	}
	e.ObjEnd()
}

// encodeTotals writes the money fields and their display forms.
func (h *Handler) encodeTotals(e *jx.Encoder, t totals) {
	plain := func(d decimal.Decimal) { amount(e, d) }
	formatted := func(d decimal.Decimal) { e.Str(money.Format(d, h.currency)) }

	e.FieldStart("subtotal")
	plain(t.Subtotal)
	e.FieldStart("tax")
	encodeTaxes(e, t.Taxes, plain)
	e.FieldStart("shipping")
	plain(t.Shipping)
	e.FieldStart("discount")
	plain(t.Discount)
	e.FieldStart("total")
	plain(t.Total)

	e.FieldStart("formatted")
	e.ObjStart()
	e.FieldStart("subtotal")
	formatted(t.Subtotal)
	e.FieldStart("tax")
	encodeTaxes(e, t.Taxes, formatted)
	e.FieldStart("shipping")
	formatted(t.Shipping)
	e.FieldStart("discount")
	formatted(t.Discount)
	e.FieldStart("total")
	formatted(t.Total)
	e.ObjEnd()
}

func encodeMessages(e *jx.Encoder, msgs []message.Message) {
	e.FieldStart("messages")
	e.ArrStart()
	for _, m := range msgs {
		e.ObjStart()
		e.FieldStart("level")
		e.Str(string(m.Level))
		e.FieldStart("text")
		e.Str(m.Text)
		e.ObjEnd()
	}
	e.ArrEnd()
}

func encodeItems(e *jx.Encoder, items []*item.Item) {
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range items {
		e.ObjStart()
		if it.ID != 0 {
			e.FieldStart("id")
			e.Int64(it.ID)
		}
		if it.Key != "" {
			e.FieldStart("key")
			e.Str(it.Key)
		}
		if it.ProductID != 0 {
			e.FieldStart("product_id")
			e.Int64(it.ProductID)
		}
		e.FieldStart("type")
		e.Str(string(it.Type))
		e.FieldStart("name")
		e.Str(it.Name)
		e.FieldStart("price")
		amount(e, it.Price)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("subtotal")
		amount(e, it.Subtotal())
		e.FieldStart("tax")
		amount(e, it.TotalTax())
		if len(it.Meta) > 0 {
			e.FieldStart("meta")
			e.ObjStart()
			for _, k := range sortedKeys(it.Meta) {
				e.FieldStart(k)
				e.Str(it.Meta[k])
			}
			e.ObjEnd()
		}
		e.ObjEnd()
	}
	e.ArrEnd()
}

func encodeShipping(e *jx.Encoder, s *shipping.Selection) {
	e.FieldStart("shipping_method")
	if s == nil {
		e.Null()
		return
	}
	e.ObjStart()
	e.FieldStart("method")
	e.Str(s.MethodID)
	e.FieldStart("name")
	e.Str(s.Name)
	e.FieldStart("rate")
	amount(e, s.Rate)
	e.ObjEnd()
}

func encodeStrings(e *jx.Encoder, field string, values []string) {
	e.FieldStart(field)
	e.ArrStart()
	for _, v := range values {
		e.Str(v)
	}
	e.ArrEnd()
}

func encodeAddress(e *jx.Encoder, field string, a customer.Address) {
	e.FieldStart(field)
	e.ObjStart()
	str := func(name, v string) {
		if v == "" {
			return
		}
		e.FieldStart(name)
		e.Str(v)
	}
	str("first_name", a.FirstName)
	str("last_name", a.LastName)
	if a.Company != nil {
		e.FieldStart("company")
		e.ObjStart()
		e.FieldStart("name")
		e.Str(a.Company.Name)
		str("tax_id", a.Company.TaxID)
		e.ObjEnd()
	}
	str("address", a.Address)
	str("country", a.Country)
	str("state", a.State)
	str("postcode", a.Postcode)
	str("phone", a.Phone)
	str("email", a.Email)
	e.ObjEnd()
}

func encodeTime(e *jx.Encoder, field string, t time.Time) {
	if t.IsZero() {
		return
	}
	e.FieldStart(field)
	e.Str(t.UTC().Format(time.RFC3339))
}

// writeCart replies with the cart state. extra adds endpoint specific
// fields.
func (h *Handler) writeCart(w http.ResponseWriter, c *cart.Cart, msgs []message.Message, extra func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(true)
	h.encodeTotals(e, cartTotals(c))
	if extra != nil {
		extra(e)
	}
	encodeItems(e, c.Items)
	encodeShipping(e, c.Shipping)
	encodeStrings(e, "coupons", c.Coupons)
	encodeMessages(e, msgs)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, e)
}
