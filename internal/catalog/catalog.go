// Package catalog serves static item definitions loaded from a content
// pack. The engine treats an item with no definition, or a definition
// without market metadata, as non-tradable.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
)

// Item kinds.
const (
	KindStackable = "stackable"
	KindInstance  = "instance"
)

// Pack defaults, applied when a content pack omits a field.
const (
	DefaultMaxStack   = int64(99)
	DefaultWeight     = 1.0
	DefaultCategory   = "materials"
	DefaultDurability = 100
)

// MarketInfo is the trading configuration of an item. Items without a
// market block cannot be listed.
type MarketInfo struct {
	Tradable       bool   `json:"tradable"`
	Category       string `json:"category"`
	MinPrice       int64  `json:"min_price"`
	MaxPrice       int64  `json:"max_price"`
	SuggestedPrice int64  `json:"suggested_price"`
}

// ItemDefinition is a static item loaded from the content pack.
type ItemDefinition struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Kind          string      `json:"kind"`
	MaxStack      int64       `json:"max_stack"`
	Weight        float64     `json:"weight"`
	MaxDurability int         `json:"max_durability"`
	Value         int64       `json:"value"`
	Market        *MarketInfo `json:"market,omitempty"`
}

// IsInstanceBased reports whether units of this item are unique instances.
func (d *ItemDefinition) IsInstanceBased() bool {
	return d.Kind == KindInstance
}

// Tradable reports whether the item may be listed on the marketplace.
func (d *ItemDefinition) Tradable() bool {
	return d.Market != nil && d.Market.Tradable
}

// Service answers item definition lookups from an in-memory index.
type Service struct {
	items map[string]*ItemDefinition
}

// NewService builds a catalog from a set of definitions, applying pack
// defaults to omitted fields.
func NewService(items []ItemDefinition) *Service {
	index := make(map[string]*ItemDefinition, len(items))
	for i := range items {
		def := items[i]
		applyDefaults(&def)
		index[def.ID] = &def
	}
	return &Service{items: index}
}

// LoadPack reads a JSON content pack from disk and builds a catalog.
func LoadPack(path string) (*Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read content pack: %w", err)
	}

	var pack struct {
		Items []ItemDefinition `json:"items"`
	}
	if err := json.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("parse content pack: %w", err)
	}

	log.Info().Str("path", path).Int("items", len(pack.Items)).Msg("loaded item content pack")
	return NewService(pack.Items), nil
}

// GetItemDefinition returns the definition for an item, or nil when the
// catalog has no entry for it.
func (s *Service) GetItemDefinition(itemID string) *ItemDefinition {
	return s.items[itemID]
}

// StackLimit returns the max stack for an item, suitable for the ledger's
// StackLimit option. Unknown items fall back to the pack default.
func (s *Service) StackLimit(itemID string) int64 {
	if def := s.items[itemID]; def != nil {
		return def.MaxStack
	}
	return DefaultMaxStack
}

// WeightOf returns the unit weight for an item, for capacity checks.
func (s *Service) WeightOf(itemID string) float64 {
	if def := s.items[itemID]; def != nil {
		return def.Weight
	}
	return DefaultWeight
}

func applyDefaults(def *ItemDefinition) {
	if def.Kind == "" {
		def.Kind = KindStackable
	}
	if def.MaxStack <= 0 {
		def.MaxStack = DefaultMaxStack
	}
	if def.Weight <= 0 {
		def.Weight = DefaultWeight
	}
	if def.Kind == KindInstance && def.MaxDurability <= 0 {
		def.MaxDurability = DefaultDurability
	}
	if def.Market != nil && def.Market.Category == "" {
		def.Market.Category = DefaultCategory
	}
}
