// Package money holds the decimal amount helpers used across the cart and
// order domains. Amounts are shopspring decimals; rounding to cents happens at
// the edges, never in the middle of a calculation.
package money

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits amounts are rounded to.
const Places = 2

// Round rounds an amount to cents.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// NonNegative clamps negative amounts to zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Scale rescales amount by to/from. Used when a line quantity changes and
// the already computed per-class taxes have to follow.
func Scale(amount decimal.Decimal, from, to int) decimal.Decimal {
	if from == 0 {
		return decimal.Zero
	}
	return amount.Mul(decimal.NewFromInt(int64(to))).Div(decimal.NewFromInt(int64(from)))
}

// Taxes maps a tax class name to an amount.
type Taxes map[string]decimal.Decimal

// Total returns the sum of all classes.
func (t Taxes) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, v := range t {
		sum = sum.Add(v)
	}
	return sum
}

// Add accumulates other into t.
func (t Taxes) Add(other Taxes) {
	for class, v := range other {
		t[class] = t[class].Add(v)
	}
}

// Clone returns an independent copy.
func (t Taxes) Clone() Taxes {
	out := make(Taxes, len(t))
	for class, v := range t {
		out[class] = v
	}
	return out
}

// Scale returns a copy with every class rescaled by to/from and rounded.
func (t Taxes) Scale(from, to int) Taxes {
	out := make(Taxes, len(t))
	for class, v := range t {
		out[class] = Round(Scale(v, from, to))
	}
	return out
}

// Rounded returns a copy with every class rounded to cents.
func (t Taxes) Rounded() Taxes {
	out := make(Taxes, len(t))
	for class, v := range t {
		out[class] = Round(v)
	}
	return out
}

// Classes returns the class names in lexical order.
func (t Taxes) Classes() []string {
	classes := make([]string, 0, len(t))
	for class := range t {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	return classes
}

var symbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"AUD": "A$",
	"CAD": "C$",
	"PLN": "zł",
}

// Format renders an amount for display, e.g. "$26.00" or "26.00 CHF".
// It is a projection only; formatted values are never stored.
func Format(amount decimal.Decimal, currency string) string {
	currency = strings.ToUpper(currency)
	value := Round(amount).StringFixed(Places)
	if sym, ok := symbols[currency]; ok {
		if amount.IsNegative() {
			return "-" + sym + strings.TrimPrefix(value, "-")
		}
		return sym + value
	}
	if currency == "" {
		return value
	}
	return value + " " + currency
}
