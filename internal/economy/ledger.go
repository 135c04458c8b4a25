// Package economy holds the pure primitives of the guild economy: ledger
// delta application, the unique-instance registry, and inventory capacity
// checks. Nothing in this package performs I/O or touches shared state;
// every function computes a result from its inputs, which is what lets the
// account store retry these computations freely under contention.
package economy

import (
	"fmt"

	"github.com/guildecon/economy-api/internal/types"
)

// ApplyOptions tunes a single ApplyDelta call.
type ApplyOptions struct {
	// AllowDebt permits a currency cost to drive a balance negative. It
	// never applies to item quantities.
	AllowDebt bool

	// StackLimit returns the maximum stack size for an item. Rewards are
	// silently capped at this value. A nil func or non-positive limit means
	// no clamp.
	StackLimit func(itemID string) int64
}

// ApplyDelta computes the next account state from a snapshot and a set of
// costs and rewards. Costs are validated all-or-nothing before anything is
// mutated: if any single cost cannot be satisfied the call fails and the
// input snapshot is untouched. Rewards are additive and clamp stackable
// quantities to the item's stack limit.
//
// Instance-kind inventory entries are not addressable by quantity deltas;
// use the instance registry functions instead.
func ApplyDelta(snap *types.Snapshot, costs, rewards types.Deltas, opts ApplyOptions) (*types.Snapshot, error) {
	if err := validateAmounts(costs); err != nil {
		return nil, err
	}
	if err := validateAmounts(rewards); err != nil {
		return nil, err
	}
	if err := validateCosts(snap, costs, opts.AllowDebt); err != nil {
		return nil, err
	}

	next := snap.Clone()

	for _, c := range costs.Currencies {
		bal := next.Currencies[c.CurrencyID]
		bal.Hand -= c.Amount
		if bal.IsZero() {
			delete(next.Currencies, c.CurrencyID)
		} else {
			next.Currencies[c.CurrencyID] = bal
		}
	}

	for _, c := range costs.Items {
		entry := next.Inventory[c.ItemID]
		entry.Quantity -= c.Quantity
		if entry.IsEmpty() {
			delete(next.Inventory, c.ItemID)
		} else {
			next.Inventory[c.ItemID] = entry
		}
	}

	for _, r := range rewards.Currencies {
		bal := next.Currencies[r.CurrencyID]
		bal.Hand += r.Amount
		if bal.IsZero() {
			delete(next.Currencies, r.CurrencyID)
		} else {
			next.Currencies[r.CurrencyID] = bal
		}
	}

	for _, r := range rewards.Items {
		entry := next.Inventory[r.ItemID]
		if entry.IsInstanceEntry() {
			return nil, fmt.Errorf("item %s is instance-based: %w", r.ItemID, types.ErrValidation)
		}
		entry.Quantity += r.Quantity
		if limit := stackLimit(opts, r.ItemID); limit > 0 && entry.Quantity > limit {
			entry.Quantity = limit
		}
		if entry.IsEmpty() {
			delete(next.Inventory, r.ItemID)
		} else {
			next.Inventory[r.ItemID] = entry
		}
	}

	return next, nil
}

// validateAmounts rejects zero, negative and otherwise malformed deltas
// before any balance is inspected.
func validateAmounts(d types.Deltas) error {
	for _, c := range d.Currencies {
		if c.CurrencyID == "" || c.Amount <= 0 {
			return fmt.Errorf("currency delta %q amount %d: %w", c.CurrencyID, c.Amount, types.ErrValidation)
		}
	}
	for _, i := range d.Items {
		if i.ItemID == "" || i.Quantity <= 0 {
			return fmt.Errorf("item delta %q quantity %d: %w", i.ItemID, i.Quantity, types.ErrValidation)
		}
	}
	return nil
}

// validateCosts checks every cost against the snapshot without mutating it.
func validateCosts(snap *types.Snapshot, costs types.Deltas, allowDebt bool) error {
	for _, c := range costs.Currencies {
		if allowDebt {
			continue
		}
		if snap.Balance(c.CurrencyID).Hand < c.Amount {
			return fmt.Errorf("currency %s: need %d, have %d: %w",
				c.CurrencyID, c.Amount, snap.Balance(c.CurrencyID).Hand, types.ErrInsufficientFunds)
		}
	}
	for _, c := range costs.Items {
		entry := snap.Inventory[c.ItemID]
		if entry.IsInstanceEntry() {
			return fmt.Errorf("item %s is instance-based: %w", c.ItemID, types.ErrValidation)
		}
		if entry.Quantity < c.Quantity {
			return fmt.Errorf("item %s: need %d, have %d: %w",
				c.ItemID, c.Quantity, entry.Quantity, types.ErrInsufficientInventory)
		}
	}
	return nil
}

func stackLimit(opts ApplyOptions, itemID string) int64 {
	if opts.StackLimit == nil {
		return 0
	}
	return opts.StackLimit(itemID)
}
