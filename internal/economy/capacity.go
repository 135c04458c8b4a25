package economy

import (
	"fmt"

	"github.com/guildecon/economy-api/internal/types"
)

// CapacityLimits bounds an inventory by total weight and occupied slots.
// A non-positive limit means unlimited.
type CapacityLimits struct {
	MaxWeight float64
	MaxSlots  int
}

// CheckCapacity verifies that an inventory fits within the limits, using
// per-item weights from weightOf. It is run against the proposed
// post-mutation inventory before any write is committed.
func CheckCapacity(inv map[string]types.InventoryEntry, weightOf func(itemID string) float64, limits CapacityLimits) error {
	if limits.MaxSlots > 0 && len(inv) > limits.MaxSlots {
		return fmt.Errorf("%d slots used, %d allowed: %w", len(inv), limits.MaxSlots, types.ErrCapacityExceeded)
	}
	if limits.MaxWeight <= 0 {
		return nil
	}

	var total float64
	for itemID, entry := range inv {
		total += float64(entry.Count()) * weightOf(itemID)
	}
	if total > limits.MaxWeight {
		return fmt.Errorf("weight %.2f exceeds %.2f: %w", total, limits.MaxWeight, types.ErrCapacityExceeded)
	}
	return nil
}
