package economy

import (
	"github.com/google/uuid"

	"github.com/guildecon/economy-api/internal/types"
)

// NewInstance mints a fresh instance of an item at full durability.
func NewInstance(itemID string, durability int) types.ItemInstance {
	return types.ItemInstance{
		InstanceID: uuid.New().String(),
		ItemID:     itemID,
		Durability: durability,
	}
}

// DecrementDurability reduces an instance's durability by amount. The
// second return value is false when the instance breaks (durability would
// reach zero or below), in which case the caller discards it.
func DecrementDurability(inst types.ItemInstance, amount int) (types.ItemInstance, bool) {
	if inst.Durability-amount <= 0 {
		return types.ItemInstance{}, false
	}
	inst.Durability -= amount
	return inst, true
}

// AddInstances appends instances to the inventory entry for their item,
// creating the entry when absent. All instances must share one item id.
func AddInstances(inv map[string]types.InventoryEntry, itemID string, instances ...types.ItemInstance) {
	if len(instances) == 0 {
		return
	}
	entry := inv[itemID]
	entry.Instances = append(entry.Instances, instances...)
	inv[itemID] = entry
}

// PopInstances removes up to n instances of an item in first-in order and
// returns them. Asking for more than exist returns as many as exist; the
// caller checks sufficiency before committing to a flow that assumes exact
// counts. The entry is dropped from the map when it empties.
func PopInstances(inv map[string]types.InventoryEntry, itemID string, n int) []types.ItemInstance {
	entry, ok := inv[itemID]
	if !ok || len(entry.Instances) == 0 || n <= 0 {
		return nil
	}
	if n > len(entry.Instances) {
		n = len(entry.Instances)
	}

	removed := make([]types.ItemInstance, n)
	copy(removed, entry.Instances[:n])

	remaining := make([]types.ItemInstance, len(entry.Instances)-n)
	copy(remaining, entry.Instances[n:])
	entry.Instances = remaining

	if entry.IsEmpty() {
		delete(inv, itemID)
	} else {
		inv[itemID] = entry
	}
	return removed
}

// RemoveInstanceByID removes one specific instance from an item's entry.
// The second return value is false when no instance with that id exists.
func RemoveInstanceByID(inv map[string]types.InventoryEntry, itemID, instanceID string) (types.ItemInstance, bool) {
	entry, ok := inv[itemID]
	if !ok {
		return types.ItemInstance{}, false
	}
	for i, inst := range entry.Instances {
		if inst.InstanceID != instanceID {
			continue
		}
		remaining := make([]types.ItemInstance, 0, len(entry.Instances)-1)
		remaining = append(remaining, entry.Instances[:i]...)
		remaining = append(remaining, entry.Instances[i+1:]...)
		entry.Instances = remaining

		if entry.IsEmpty() {
			delete(inv, itemID)
		} else {
			inv[itemID] = entry
		}
		return inst, true
	}
	return types.ItemInstance{}, false
}

// MigrateLegacyEntry converts a legacy quantity-only entry for an
// instance-kind item into N fresh, full-durability instances. Entries that
// are already instance-based or absent are left alone. Run once at read
// time; the migrated state persists on the next successful transition.
func MigrateLegacyEntry(inv map[string]types.InventoryEntry, itemID string, durability int) {
	entry, ok := inv[itemID]
	if !ok || entry.IsInstanceEntry() || entry.Quantity <= 0 {
		return
	}
	instances := make([]types.ItemInstance, entry.Quantity)
	for i := range instances {
		instances[i] = NewInstance(itemID, durability)
	}
	inv[itemID] = types.InventoryEntry{Instances: instances}
}
