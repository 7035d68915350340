// Package tax computes per-class line taxes from configured percentage rates.
package tax

import (
	"sort"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/money"
)

var hundred = decimal.NewFromInt(100)

// Rates maps a tax class to its percentage rate.
type Rates map[string]decimal.Decimal

// ParseRates parses "class:percent" pairs such as "standard:20".
func ParseRates(entries []string) (Rates, error) {
	rates := make(Rates, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		class, pct, ok := strings.Cut(entry, ":")
		class = strings.TrimSpace(class)
		if !ok || class == "" {
			return nil, errors.Errorf("invalid tax rate %q: want class:percent", entry)
		}
		v, err := decimal.NewFromString(strings.TrimSpace(pct))
		if err != nil {
			return nil, errors.Wrapf(err, "parse tax rate %q", entry)
		}
		if v.IsNegative() {
			return nil, errors.Errorf("invalid tax rate %q: negative percent", entry)
		}
		rates[class] = v
	}
	return rates, nil
}

// Calculate returns the tax of base for each of the given classes, rounded
// to cents. Classes without a configured rate are taxed at zero.
func (r Rates) Calculate(classes []string, base decimal.Decimal) money.Taxes {
	out := make(money.Taxes, len(classes))
	for _, class := range classes {
		rate, ok := r[class]
		if !ok {
			out[class] = decimal.Zero
			continue
		}
		out[class] = money.Round(base.Mul(rate).Div(hundred))
	}
	return out
}

// Classes returns the configured class names in lexical order.
func (r Rates) Classes() []string {
	out := make([]string, 0, len(r))
	for class := range r {
		out = append(out, class)
	}
	sort.Strings(out)
	return out
}
