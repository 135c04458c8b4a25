package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewService_AppliesPackDefaults(t *testing.T) {
	s := NewService([]ItemDefinition{
		{ID: "stick"},
		{ID: "iron_axe", Kind: KindInstance, Market: &MarketInfo{Tradable: true}},
	})

	stick := s.GetItemDefinition("stick")
	require.NotNil(t, stick)
	assert.Equal(t, KindStackable, stick.Kind)
	assert.Equal(t, DefaultMaxStack, stick.MaxStack)
	assert.Equal(t, DefaultWeight, stick.Weight)
	assert.False(t, stick.Tradable())

	axe := s.GetItemDefinition("iron_axe")
	require.NotNil(t, axe)
	assert.True(t, axe.IsInstanceBased())
	assert.Equal(t, DefaultDurability, axe.MaxDurability)
	assert.Equal(t, DefaultCategory, axe.Market.Category)
	assert.True(t, axe.Tradable())
}

func TestLookupFallbacks(t *testing.T) {
	s := NewService([]ItemDefinition{{ID: "boulder", MaxStack: 5, Weight: 25}})

	assert.Nil(t, s.GetItemDefinition("unknown"))
	assert.Equal(t, DefaultMaxStack, s.StackLimit("unknown"))
	assert.Equal(t, DefaultWeight, s.WeightOf("unknown"))
	assert.Equal(t, int64(5), s.StackLimit("boulder"))
	assert.Equal(t, 25.0, s.WeightOf("boulder"))
}

func TestLoadPack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pack.json")
	pack := `{"items": [
		{"id": "stick", "name": "Stick", "kind": "stackable",
		 "market": {"tradable": true, "min_price": 1, "max_price": 500}},
		{"id": "iron_axe", "name": "Iron Axe", "kind": "instance", "max_durability": 120}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(pack), 0o644))

	s, err := LoadPack(path)
	require.NoError(t, err)

	stick := s.GetItemDefinition("stick")
	require.NotNil(t, stick)
	assert.True(t, stick.Tradable())
	assert.Equal(t, int64(500), stick.Market.MaxPrice)

	axe := s.GetItemDefinition("iron_axe")
	require.NotNil(t, axe)
	assert.Equal(t, 120, axe.MaxDurability)

	_, err = LoadPack(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
