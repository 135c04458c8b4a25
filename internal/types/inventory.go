package types

import "encoding/json"

// ItemInstance is a unique, non-fungible unit of an instance-kind item.
// Instances carry their own identity and durability.
type ItemInstance struct {
	InstanceID string `json:"instance_id"`
	ItemID     string `json:"item_id"`
	Durability int    `json:"durability"`
}

// InventoryEntry is the per-item slot of an account inventory. An entry is
// either stackable (a plain quantity) or instance-based (a list of unique
// instances); it is never both.
//
// Entries are never persisted empty: a stackable quantity of zero or an
// empty instance list means the key is removed from the inventory map.
type InventoryEntry struct {
	Quantity  int64          `json:"quantity,omitempty"`
	Instances []ItemInstance `json:"instances,omitempty"`
}

// IsInstanceEntry reports whether the entry holds unique instances rather
// than a fungible stack.
func (e InventoryEntry) IsInstanceEntry() bool {
	return len(e.Instances) > 0
}

// Count returns the number of units the entry represents regardless of kind.
func (e InventoryEntry) Count() int64 {
	if e.IsInstanceEntry() {
		return int64(len(e.Instances))
	}
	return e.Quantity
}

// IsEmpty reports whether the entry represents zero units and should be
// dropped from the inventory map before persisting.
func (e InventoryEntry) IsEmpty() bool {
	return e.Quantity == 0 && len(e.Instances) == 0
}

// UnmarshalJSON accepts both the current object shape and the legacy
// quantity-only shape, where an entry was stored as a bare JSON number.
// Legacy entries decode as stackable; materializing instances for
// instance-kind items is the economy package's migration step.
func (e *InventoryEntry) UnmarshalJSON(data []byte) error {
	var legacy int64
	if err := json.Unmarshal(data, &legacy); err == nil {
		*e = InventoryEntry{Quantity: legacy}
		return nil
	}

	type entry InventoryEntry
	var current entry
	if err := json.Unmarshal(data, &current); err != nil {
		return err
	}
	*e = InventoryEntry(current)
	return nil
}
