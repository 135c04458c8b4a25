package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInventoryEntry_DecodesLegacyNumberShape(t *testing.T) {
	var inv map[string]InventoryEntry
	payload := `{"stick": 7, "rope": {"quantity": 2}, "iron_axe": {"instances": [{"instance_id": "a1", "item_id": "iron_axe", "durability": 55}]}}`
	require.NoError(t, json.Unmarshal([]byte(payload), &inv))

	assert.Equal(t, int64(7), inv["stick"].Quantity)
	assert.Equal(t, int64(2), inv["rope"].Quantity)

	axe := inv["iron_axe"]
	assert.True(t, axe.IsInstanceEntry())
	require.Len(t, axe.Instances, 1)
	assert.Equal(t, 55, axe.Instances[0].Durability)
}

func TestInventoryEntry_Count(t *testing.T) {
	assert.Equal(t, int64(4), InventoryEntry{Quantity: 4}.Count())
	assert.Equal(t, int64(2), InventoryEntry{Instances: []ItemInstance{{InstanceID: "a"}, {InstanceID: "b"}}}.Count())
	assert.True(t, InventoryEntry{}.IsEmpty())
	assert.False(t, InventoryEntry{Quantity: 1}.IsEmpty())
}

func TestSnapshot_EncodeDocumentIsDeterministic(t *testing.T) {
	snap := &Snapshot{
		UserID:  "u",
		GuildID: "g",
		Currencies: map[string]Balance{
			"gold": {Hand: 10, Bank: 5},
			"gems": {Hand: 1},
		},
		Inventory: map[string]InventoryEntry{
			"stick": {Quantity: 3},
			"rope":  {Quantity: 1},
		},
	}

	first, firstInv, err := snap.EncodeDocument()
	require.NoError(t, err)

	// Map iteration order must not leak into the serialized document; the
	// account store compares these bytes for its compare-and-swap.
	for i := 0; i < 20; i++ {
		cur, inv, err := snap.EncodeDocument()
		require.NoError(t, err)
		assert.Equal(t, first, cur)
		assert.Equal(t, firstInv, inv)
	}
}

func TestSnapshot_CloneIsDeep(t *testing.T) {
	snap := &Snapshot{
		UserID:     "u",
		GuildID:    "g",
		Currencies: map[string]Balance{"gold": {Hand: 10}},
		Inventory: map[string]InventoryEntry{
			"iron_axe": {Instances: []ItemInstance{{InstanceID: "a1", ItemID: "iron_axe", Durability: 80}}},
		},
	}

	clone := snap.Clone()
	clone.Currencies["gold"] = Balance{Hand: 999}
	clone.Inventory["iron_axe"].Instances[0].Durability = 1

	assert.Equal(t, int64(10), snap.Balance("gold").Hand)
	assert.Equal(t, 80, snap.Inventory["iron_axe"].Instances[0].Durability)
}
