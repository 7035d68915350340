package shipping

import "github.com/shopspring/decimal"

// FlatRateID is the identifier of the flat rate method.
const FlatRateID = "flat"

// FreeID is the identifier of the free shipping method.
const FreeID = "free"

// FlatRate charges the same amount for every cart.
type FlatRate struct {
	Amount decimal.Decimal
}

var _ Method = FlatRate{}

func (FlatRate) ID() string   { return FlatRateID }
func (FlatRate) Name() string { return "Flat rate" }

func (FlatRate) Available(decimal.Decimal) bool { return true }

func (f FlatRate) Rate(decimal.Decimal) decimal.Decimal { return f.Amount }

func (f FlatRate) State() map[string]string {
	return map[string]string{"amount": f.Amount.StringFixed(2)}
}

// Free ships at no cost once the subtotal reaches Threshold.
type Free struct {
	Threshold decimal.Decimal
}

var _ Method = Free{}

func (Free) ID() string   { return FreeID }
func (Free) Name() string { return "Free shipping" }

func (f Free) Available(subtotal decimal.Decimal) bool {
	return subtotal.GreaterThanOrEqual(f.Threshold)
}

func (Free) Rate(decimal.Decimal) decimal.Decimal { return decimal.Zero }

func (f Free) State() map[string]string {
	return map[string]string{"threshold": f.Threshold.StringFixed(2)}
}
