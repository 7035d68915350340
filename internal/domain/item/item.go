// Package item defines the line item shared by carts and orders.
package item

import (
	"sort"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/fault"
	"github.com/xenking/kart-orders/internal/domain/money"
)

// Type tags what a line item represents.
type Type string

const (
	TypeProduct  Type = "product"
	TypeShipping Type = "shipping"
	TypeFee      Type = "fee"
)

// Valid reports whether t is a known item type.
func (t Type) Valid() bool {
	switch t {
	case TypeProduct, TypeShipping, TypeFee:
		return true
	default:
		return false
	}
}

// TaxMetaPrefix prefixes the meta keys per-class taxes are persisted under.
// User metadata may not use it.
const TaxMetaPrefix = "tax_"

// keySpace namespaces line keys derived with uuid.NewSHA1.
var keySpace = uuid.MustParse("5f0b3c36-84a4-4b3e-9a64-2b1e8a1c6d10")

// Item is a line of a cart or an order. Name and Price are snapshots taken
// when the line was created and stay authoritative after the referenced
// product changes or is deleted.
type Item struct {
	// ID is assigned by storage; zero until the item is first persisted.
	ID int64 `json:"id,omitempty"`
	// Key identifies the line inside a cart: same product and same meta
	// collapse into one line.
	Key string `json:"key,omitempty"`
	// ProductID is zero when the line references no product.
	ProductID int64           `json:"product_id,omitempty"`
	Type      Type            `json:"type"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	// Taxes holds line totals per tax class.
	Taxes money.Taxes       `json:"taxes,omitempty"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// KeyFor derives the cart line key for a product and its meta.
func KeyFor(productID int64, meta map[string]string) string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(strconv.FormatInt(productID, 10))
	for _, k := range keys {
		b.WriteByte(0)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(meta[k])
	}
	return uuid.NewSHA1(keySpace, []byte(b.String())).String()
}

// Subtotal returns price times quantity.
func (it *Item) Subtotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// TotalTax returns the sum of all per-class taxes.
func (it *Item) TotalTax() decimal.Decimal {
	return it.Taxes.Total()
}

// TaxClasses returns the classes the item is taxed under.
func (it *Item) TaxClasses() []string {
	return it.Taxes.Classes()
}

// SetQuantity changes the quantity and rescales the per-class taxes.
func (it *Item) SetQuantity(qty int) error {
	if qty <= 0 {
		return fault.Validation("quantity must be greater than 0, got %d", qty)
	}
	if it.Quantity > 0 && len(it.Taxes) > 0 {
		it.Taxes = it.Taxes.Scale(it.Quantity, qty)
	}
	it.Quantity = qty
	return nil
}

// SetMeta stores a metadata entry.
func (it *Item) SetMeta(key, value string) error {
	if err := checkMetaKey(key); err != nil {
		return err
	}
	if it.Meta == nil {
		it.Meta = make(map[string]string)
	}
	it.Meta[key] = value
	return nil
}

// Validate checks the invariants an item must hold before it is stored.
func (it *Item) Validate() error {
	if it.Quantity <= 0 {
		return fault.Validation("item %q: quantity must be greater than 0", it.Name)
	}
	if it.Price.IsNegative() {
		return fault.Validation("item %q: price must not be negative", it.Name)
	}
	if strings.TrimSpace(it.Name) == "" {
		return fault.Validation("item name is required")
	}
	if !it.Type.Valid() {
		return fault.Validation("item %q: unknown type %q", it.Name, it.Type)
	}
	for k := range it.Meta {
		if err := checkMetaKey(k); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy.
func (it *Item) Clone() *Item {
	out := *it
	out.Taxes = it.Taxes.Clone()
	if it.Meta != nil {
		out.Meta = make(map[string]string, len(it.Meta))
		for k, v := range it.Meta {
			out.Meta[k] = v
		}
	}
	return &out
}

// MetaRows flattens user meta and per-class taxes into the key/value rows
// persisted for the item.
func (it *Item) MetaRows() map[string]string {
	rows := make(map[string]string, len(it.Meta)+len(it.Taxes))
	for k, v := range it.Meta {
		rows[k] = v
	}
	for class, v := range it.Taxes {
		rows[TaxMetaPrefix+class] = v.String()
	}
	return rows
}

// SplitMeta is the inverse of MetaRows.
func SplitMeta(rows map[string]string) (map[string]string, money.Taxes, error) {
	meta := make(map[string]string)
	taxes := make(money.Taxes)
	for k, v := range rows {
		class, ok := strings.CutPrefix(k, TaxMetaPrefix)
		if !ok {
			meta[k] = v
			continue
		}
		amount, err := decimal.NewFromString(v)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "parse tax %q", class)
		}
		taxes[class] = amount
	}
	return meta, taxes, nil
}

func checkMetaKey(key string) error {
	if key == "" {
		return fault.Validation("meta key is required")
	}
	if strings.HasPrefix(key, TaxMetaPrefix) {
		return fault.Validation("meta key %q uses reserved prefix %q", key, TaxMetaPrefix)
	}
	return nil
}

// Subtotal sums the subtotals of items.
func Subtotal(items []*Item) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Subtotal())
	}
	return sum
}

// Taxes sums per-class taxes across items.
func Taxes(items []*Item) money.Taxes {
	out := make(money.Taxes)
	for _, it := range items {
		out.Add(it.Taxes)
	}
	return out
}

// CloneAll deep-copies a slice of items.
func CloneAll(items []*Item) []*Item {
	out := make([]*Item, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}
