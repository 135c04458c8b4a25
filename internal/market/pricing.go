package market

import (
	"math"

	"github.com/guildecon/economy-api/internal/guildconfig"
)

// Quote is the priced breakdown of a prospective purchase. The buyer pays
// Total; the seller receives exactly Subtotal; tax and fee land in the
// guild treasury and never reach the seller.
type Quote struct {
	Subtotal     int64 `json:"subtotal"`
	Tax          int64 `json:"tax"`
	Fee          int64 `json:"fee"`
	Total        int64 `json:"total"`
	SellerPayout int64 `json:"seller_payout"`
}

// ComputeQuote prices a purchase of qty units at pricePerUnit under a
// guild's tax and fee configuration. Tax applies only when enabled and the
// subtotal reaches the minimum taxable amount; both tax and fee floor.
func ComputeQuote(pricePerUnit, qty int64, cfg *guildconfig.Config) Quote {
	subtotal := pricePerUnit * qty

	var tax int64
	if cfg.TaxEnabled && subtotal >= cfg.MinTaxableAmount {
		tax = int64(math.Floor(float64(subtotal) * cfg.TaxRate))
	}
	fee := int64(math.Floor(float64(subtotal) * cfg.FeeRate))

	return Quote{
		Subtotal:     subtotal,
		Tax:          tax,
		Fee:          fee,
		Total:        subtotal + tax + fee,
		SellerPayout: subtotal,
	}
}
