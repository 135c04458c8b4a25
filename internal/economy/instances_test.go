package economy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildecon/economy-api/internal/types"
)

func TestNewInstance(t *testing.T) {
	a := NewInstance("axe", 100)
	b := NewInstance("axe", 100)

	assert.Equal(t, "axe", a.ItemID)
	assert.Equal(t, 100, a.Durability)
	assert.NotEmpty(t, a.InstanceID)
	assert.NotEqual(t, a.InstanceID, b.InstanceID)
}

func TestDecrementDurability(t *testing.T) {
	inst := types.ItemInstance{InstanceID: "i-1", ItemID: "axe", Durability: 10}

	worn, ok := DecrementDurability(inst, 3)
	require.True(t, ok)
	assert.Equal(t, 7, worn.Durability)

	_, ok = DecrementDurability(worn, 7)
	assert.False(t, ok, "reaching zero breaks the instance")

	_, ok = DecrementDurability(worn, 100)
	assert.False(t, ok)
}

func TestPopInstances_FirstInOrder(t *testing.T) {
	inv := map[string]types.InventoryEntry{
		"axe": {Instances: []types.ItemInstance{
			{InstanceID: "i-1", ItemID: "axe", Durability: 10},
			{InstanceID: "i-2", ItemID: "axe", Durability: 20},
			{InstanceID: "i-3", ItemID: "axe", Durability: 30},
		}},
	}

	removed := PopInstances(inv, "axe", 2)
	require.Len(t, removed, 2)
	assert.Equal(t, "i-1", removed[0].InstanceID)
	assert.Equal(t, "i-2", removed[1].InstanceID)

	entry := inv["axe"]
	require.Len(t, entry.Instances, 1)
	assert.Equal(t, "i-3", entry.Instances[0].InstanceID)
}

func TestPopInstances_MoreThanAvailable(t *testing.T) {
	inv := map[string]types.InventoryEntry{
		"axe": {Instances: []types.ItemInstance{{InstanceID: "i-1", ItemID: "axe", Durability: 10}}},
	}

	// Over-popping is not an error; callers verify sufficiency themselves.
	removed := PopInstances(inv, "axe", 5)
	require.Len(t, removed, 1)

	_, exists := inv["axe"]
	assert.False(t, exists, "emptied entry must be dropped")

	assert.Empty(t, PopInstances(inv, "axe", 1))
	assert.Empty(t, PopInstances(inv, "missing", 1))
}

func TestRemoveInstanceByID(t *testing.T) {
	inv := map[string]types.InventoryEntry{
		"axe": {Instances: []types.ItemInstance{
			{InstanceID: "i-1", ItemID: "axe", Durability: 10},
			{InstanceID: "i-2", ItemID: "axe", Durability: 20},
		}},
	}

	inst, ok := RemoveInstanceByID(inv, "axe", "i-2")
	require.True(t, ok)
	assert.Equal(t, 20, inst.Durability)
	require.Len(t, inv["axe"].Instances, 1)
	assert.Equal(t, "i-1", inv["axe"].Instances[0].InstanceID)

	_, ok = RemoveInstanceByID(inv, "axe", "i-9")
	assert.False(t, ok)

	_, ok = RemoveInstanceByID(inv, "missing", "i-1")
	assert.False(t, ok)

	inst, ok = RemoveInstanceByID(inv, "axe", "i-1")
	require.True(t, ok)
	_, exists := inv["axe"]
	assert.False(t, exists, "emptied entry must be dropped")
}

func TestMigrateLegacyEntry(t *testing.T) {
	inv := map[string]types.InventoryEntry{"axe": {Quantity: 3}}

	MigrateLegacyEntry(inv, "axe", 100)

	entry := inv["axe"]
	require.Len(t, entry.Instances, 3)
	assert.Zero(t, entry.Quantity)
	for _, inst := range entry.Instances {
		assert.Equal(t, "axe", inst.ItemID)
		assert.Equal(t, 100, inst.Durability)
		assert.NotEmpty(t, inst.InstanceID)
	}

	// Already-migrated and absent entries are untouched.
	before := inv["axe"]
	MigrateLegacyEntry(inv, "axe", 100)
	assert.Equal(t, before, inv["axe"])
	MigrateLegacyEntry(inv, "missing", 100)
	_, exists := inv["missing"]
	assert.False(t, exists)
}

func TestCheckCapacity(t *testing.T) {
	weightOf := func(string) float64 { return 2.0 }
	inv := map[string]types.InventoryEntry{
		"stick": {Quantity: 10},
		"axe":   {Instances: []types.ItemInstance{{InstanceID: "i-1", ItemID: "axe", Durability: 5}}},
	}

	// 11 units * 2.0 weight = 22
	require.NoError(t, CheckCapacity(inv, weightOf, CapacityLimits{MaxWeight: 22, MaxSlots: 2}))

	err := CheckCapacity(inv, weightOf, CapacityLimits{MaxWeight: 21.9})
	require.ErrorIs(t, err, types.ErrCapacityExceeded)

	err = CheckCapacity(inv, weightOf, CapacityLimits{MaxSlots: 1})
	require.ErrorIs(t, err, types.ErrCapacityExceeded)

	// Non-positive limits mean unlimited.
	require.NoError(t, CheckCapacity(inv, weightOf, CapacityLimits{}))
}
