package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestApply(t *testing.T) {
	tests := []struct {
		name        string
		rule        *Rule
		items       []Item
		wantAmount  decimal.Decimal
		wantErr     error
		wantErrText string
	}{
		{
			name:       "percentage of subtotal",
			rule:       &Rule{Code: "PCT18", DiscountType: DiscountPercentage, Value: d("18")},
			items:      []Item{{ProductID: 1, Price: d("50"), Quantity: 2}},
			wantAmount: d("18"),
		},
		{
			name:       "percentage rounds to cents",
			rule:       &Rule{Code: "PCT15", DiscountType: DiscountPercentage, Value: d("15")},
			items:      []Item{{ProductID: 1, Price: d("9.99"), Quantity: 3}},
			wantAmount: d("4.50"),
		},
		{
			name:       "percentage capped by max discount",
			rule:       &Rule{Code: "CAP", DiscountType: DiscountPercentage, Value: d("50"), MaxDiscount: d("20")},
			items:      []Item{{ProductID: 1, Price: d("100"), Quantity: 1}},
			wantAmount: d("20"),
		},
		{
			name:       "fixed amount",
			rule:       &Rule{Code: "FLAT9", DiscountType: DiscountFixed, Value: d("9")},
			items:      []Item{{ProductID: 1, Price: d("100"), Quantity: 1}},
			wantAmount: d("9"),
		},
		{
			name:       "fixed amount capped at subtotal",
			rule:       &Rule{Code: "BIG", DiscountType: DiscountFixed, Value: d("200")},
			items:      []Item{{ProductID: 1, Price: d("50"), Quantity: 2}},
			wantAmount: d("100"),
		},
		{
			name: "free lowest",
			rule: &Rule{Code: "FREELOW", DiscountType: DiscountFreeLowest},
			items: []Item{
				{ProductID: 1, Price: d("5"), Quantity: 1},
				{ProductID: 2, Price: d("10"), Quantity: 1},
			},
			wantAmount: d("5"),
		},
		{
			name:    "min items not met",
			rule:    &Rule{Code: "MIN2", DiscountType: DiscountPercentage, Value: d("10"), MinItems: 2},
			items:   []Item{{ProductID: 1, Price: d("50"), Quantity: 1}},
			wantErr: ErrInvalidCoupon,
		},
		{
			name:       "min items met by quantity",
			rule:       &Rule{Code: "MIN2", DiscountType: DiscountPercentage, Value: d("10"), MinItems: 2},
			items:      []Item{{ProductID: 1, Price: d("50"), Quantity: 2}},
			wantAmount: d("10"),
		},
		{
			name:       "empty cart without minimum",
			rule:       &Rule{Code: "ANY", DiscountType: DiscountPercentage, Value: d("10")},
			items:      nil,
			wantAmount: d("0"),
		},
		{
			name:        "unsupported discount type",
			rule:        &Rule{Code: "BAD", DiscountType: DiscountType("bogus")},
			items:       []Item{{ProductID: 1, Price: d("10"), Quantity: 1}},
			wantErrText: "unsupported discount type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.rule, tt.items)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			if tt.wantErrText != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrText)
				return
			}

			require.NoError(t, err)
			assert.True(t, tt.wantAmount.Equal(got.Amount), "expected %s, got %s", tt.wantAmount, got.Amount)
			assert.Equal(t, tt.rule.Code, got.Code)
		})
	}
}
