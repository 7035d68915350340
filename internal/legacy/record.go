// Package legacy converts orders exported from the previous shop into
// orders this service stores.
package legacy

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Keys read from Record.Meta.
const (
	MetaOrderKey      = "order_key"
	MetaCustomerUser  = "customer_user"
	MetaCompletedDate = "_js_completed_date"
)

// dateLayout is how the previous shop wrote timestamps.
const dateLayout = "2006-01-02 15:04:05"

// Record is one exported order, decoded from a line of the dump.
type Record struct {
	ID           int64             `json:"id"`
	Status       string            `json:"status"`
	Date         string            `json:"date"`
	CustomerNote string            `json:"customer_note"`
	Meta         map[string]string `json:"meta"`
	// OrderData is the flattened order_data blob: billing_* and shipping_*
	// address fields, shipping_method, payment_method, order_shipping,
	// order_subtotal, order_discount, order_total and
	// order_discount_coupons.
	OrderData map[string]string `json:"order_data"`
	Items     []Item            `json:"order_items"`
}

// Item is an exported order line.
type Item struct {
	ProductID int64  `json:"id"`
	Name      string `json:"name"`
	Quantity  int    `json:"qty"`
	// Cost is the unit price.
	Cost string `json:"cost"`
	// Tax is the line tax total.
	Tax      string `json:"tax"`
	TaxClass string `json:"tax_class"`
}

func (r Record) data(key string) string {
	return strings.TrimSpace(r.OrderData[key])
}

func (r Record) amount(key string) (decimal.Decimal, error) {
	return parseAmount(r.data(key))
}

func parseAmount(v string) (decimal.Decimal, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse amount %q", v)
	}
	return d, nil
}

// parseTime accepts the shop's date layout or unix seconds.
func parseTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	t, err := time.ParseInLocation(dateLayout, v, time.UTC)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse time %q", v)
	}
	return t, nil
}
