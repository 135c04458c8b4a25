package types

// CurrencyDelta is a requested change to one currency balance. Costs and
// rewards both use positive amounts; the ledger decides the sign.
type CurrencyDelta struct {
	CurrencyID string `json:"currency_id"`
	Amount     int64  `json:"amount"`
}

// ItemDelta is a requested change to one stackable item quantity.
type ItemDelta struct {
	ItemID   string `json:"item_id"`
	Quantity int64  `json:"quantity"`
}

// Deltas bundles the currency and item legs of one side of a mutation.
type Deltas struct {
	Currencies []CurrencyDelta
	Items      []ItemDelta
}

// IsEmpty reports whether the delta set requests no changes.
func (d Deltas) IsEmpty() bool {
	return len(d.Currencies) == 0 && len(d.Items) == 0
}
