package market

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/guildecon/economy-api/internal/guildconfig"
)

func TestComputeQuote(t *testing.T) {
	cfg := &guildconfig.Config{
		TaxEnabled:       true,
		TaxRate:          0.10,
		MinTaxableAmount: 20,
		FeeRate:          0.02,
	}

	tests := []struct {
		name         string
		pricePerUnit int64
		qty          int64
		want         Quote
	}{
		{
			name:         "taxed at threshold",
			pricePerUnit: 10, qty: 2,
			want: Quote{Subtotal: 20, Tax: 2, Fee: 0, Total: 22, SellerPayout: 20},
		},
		{
			name:         "below taxable minimum",
			pricePerUnit: 19, qty: 1,
			want: Quote{Subtotal: 19, Tax: 0, Fee: 0, Total: 19, SellerPayout: 19},
		},
		{
			name:         "tax and fee both floor",
			pricePerUnit: 33, qty: 3,
			// 99 subtotal: tax 9.9 -> 9, fee 1.98 -> 1.
			want: Quote{Subtotal: 99, Tax: 9, Fee: 1, Total: 109, SellerPayout: 99},
		},
		{
			name:         "large order",
			pricePerUnit: 250, qty: 4,
			want: Quote{Subtotal: 1000, Tax: 100, Fee: 20, Total: 1120, SellerPayout: 1000},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ComputeQuote(tc.pricePerUnit, tc.qty, cfg))
		})
	}
}

func TestComputeQuote_TaxDisabled(t *testing.T) {
	cfg := &guildconfig.Config{
		TaxEnabled:       false,
		TaxRate:          0.10,
		MinTaxableAmount: 20,
		FeeRate:          0.02,
	}

	quote := ComputeQuote(100, 1, cfg)
	assert.Equal(t, int64(0), quote.Tax)
	assert.Equal(t, int64(2), quote.Fee)
	assert.Equal(t, int64(102), quote.Total)
	assert.Equal(t, int64(100), quote.SellerPayout)
}
