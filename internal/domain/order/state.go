package order

import (
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/item"
	"github.com/xenking/kart-orders/internal/domain/shipping"
)

// Keys of the order fields stored in the key/value side store. Status and
// customer note live in the header and never appear here.
const (
	FieldKey           = "key"
	FieldCustomer      = "customer"
	FieldShipping      = "shipping"
	FieldPayment       = "payment"
	FieldCoupons       = "coupons"
	FieldSubtotal      = "subtotal"
	FieldDiscount      = "discount"
	FieldTax           = "tax"
	FieldShippingTotal = "shipping_total"
	FieldTotal         = "total"
	FieldUpdatedAt     = "updated_at"
	FieldCompletedAt   = "completed_at"
)

// Header is the order header row.
type Header struct {
	ID           int64
	Number       int64
	Title        string
	Status       Status
	CustomerNote string
	CreatedAt    time.Time
}

// HeaderPatch lists the header columns a save changes. Nil fields are left
// alone.
type HeaderPatch struct {
	Title  *string
	Status *Status
	Number *int64
}

// IsEmpty reports whether the patch changes nothing.
func (p HeaderPatch) IsEmpty() bool {
	return p.Title == nil && p.Status == nil && p.Number == nil
}

func diffHeader(stored, next Header) HeaderPatch {
	var p HeaderPatch
	if stored.Title != next.Title {
		p.Title = &next.Title
	}
	if stored.Status != next.Status {
		p.Status = &next.Status
	}
	if stored.Number != next.Number {
		p.Number = &next.Number
	}
	return p
}

// ItemRecord is an order line as stored. Meta includes the per-class tax
// rows.
type ItemRecord struct {
	ID        int64
	ProductID int64
	Type      item.Type
	Name      string
	Price     decimal.Decimal
	Quantity  int
	Tax       decimal.Decimal
	Cost      decimal.Decimal
	Meta      map[string]string
}

func itemRecord(it *item.Item) ItemRecord {
	return ItemRecord{
		ID:        it.ID,
		ProductID: it.ProductID,
		Type:      it.Type,
		Name:      escape(it.Name),
		Price:     it.Price,
		Quantity:  it.Quantity,
		Tax:       it.TotalTax(),
		Cost:      it.Subtotal(),
		Meta:      it.MetaRows(),
	}
}

func restoreItem(r ItemRecord) (*item.Item, error) {
	meta, taxes, err := item.SplitMeta(r.Meta)
	if err != nil {
		return nil, errors.Wrapf(err, "item %d", r.ID)
	}
	if len(meta) == 0 {
		meta = nil
	}
	return &item.Item{
		ID:        r.ID,
		ProductID: r.ProductID,
		Type:      r.Type,
		Name:      r.Name,
		Price:     r.Price,
		Quantity:  r.Quantity,
		Taxes:     taxes,
		Meta:      meta,
	}, nil
}

// Record is a fully loaded order as stored.
type Record struct {
	Header Header
	Items  []ItemRecord
	Fields map[string]string
}

// State is everything a save considers writing. The save compares it with
// what is stored and touches only what differs.
type State struct {
	Header Header
	Items  []*item.Item
	Fields map[string]string
}

// StateToSave projects the order onto its stored shape. Header text is
// escaped the same way as the fields.
func (o *Order) StateToSave() (State, error) {
	customerJSON, err := json.Marshal(o.Customer)
	if err != nil {
		return State{}, errors.Wrap(err, "encode customer")
	}
	coupons := o.Coupons
	if coupons == nil {
		coupons = []string{}
	}
	couponsJSON, err := json.Marshal(coupons)
	if err != nil {
		return State{}, errors.Wrap(err, "encode coupons")
	}
	var shippingJSON []byte
	if o.Shipping != nil {
		if shippingJSON, err = json.Marshal(o.Shipping); err != nil {
			return State{}, errors.Wrap(err, "encode shipping")
		}
	}

	fields := map[string]string{
		FieldKey:           o.Key,
		FieldCustomer:      string(customerJSON),
		FieldShipping:      string(shippingJSON),
		FieldPayment:       o.PaymentMethod,
		FieldCoupons:       string(couponsJSON),
		FieldSubtotal:      o.Subtotal().StringFixed(2),
		FieldDiscount:      o.Discount.StringFixed(2),
		FieldTax:           o.TotalTax().StringFixed(2),
		FieldShippingTotal: o.ShippingRate().StringFixed(2),
		FieldTotal:         o.Total().StringFixed(2),
		FieldUpdatedAt:     formatTime(o.UpdatedAt),
		FieldCompletedAt:   formatTime(o.CompletedAt),
	}

	return State{
		Header: Header{
			ID:           o.ID,
			Number:       o.Number,
			Title:        escape(o.Title()),
			Status:       o.Status,
			CustomerNote: escape(o.CustomerNote),
			CreatedAt:    o.CreatedAt,
		},
		Items:  o.Items,
		Fields: fields,
	}, nil
}

// Restore rebuilds an order from its stored record. Totals are not read
// back; they are derived from the restored lines.
func Restore(rec Record) (*Order, error) {
	o := &Order{
		ID:            rec.Header.ID,
		Number:        rec.Header.Number,
		Status:        rec.Header.Status,
		CustomerNote:  rec.Header.CustomerNote,
		CreatedAt:     rec.Header.CreatedAt,
		Key:           rec.Fields[FieldKey],
		PaymentMethod: rec.Fields[FieldPayment],
	}

	if v := rec.Fields[FieldCustomer]; v != "" {
		if err := json.Unmarshal([]byte(v), &o.Customer); err != nil {
			return nil, errors.Wrap(err, "decode customer")
		}
	}
	if v := rec.Fields[FieldShipping]; v != "" {
		var sel shipping.Selection
		if err := json.Unmarshal([]byte(v), &sel); err != nil {
			return nil, errors.Wrap(err, "decode shipping")
		}
		o.Shipping = &sel
	}
	if v := rec.Fields[FieldCoupons]; v != "" {
		if err := json.Unmarshal([]byte(v), &o.Coupons); err != nil {
			return nil, errors.Wrap(err, "decode coupons")
		}
		if len(o.Coupons) == 0 {
			o.Coupons = nil
		}
	}
	if v := rec.Fields[FieldDiscount]; v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, errors.Wrap(err, "decode discount")
		}
		o.Discount = d
	}
	var err error
	if o.UpdatedAt, err = parseTime(rec.Fields[FieldUpdatedAt]); err != nil {
		return nil, errors.Wrap(err, "decode updated_at")
	}
	if o.CompletedAt, err = parseTime(rec.Fields[FieldCompletedAt]); err != nil {
		return nil, errors.Wrap(err, "decode completed_at")
	}

	for _, r := range rec.Items {
		it, err := restoreItem(r)
		if err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	return o, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, v)
}
