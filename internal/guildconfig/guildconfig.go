// Package guildconfig stores per-guild economy knobs: marketplace toggle,
// tax and fee rates, listing caps, cooldowns and inventory capacity.
package guildconfig

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Config is the per-guild economy configuration row. Missing guilds get
// DefaultConfig.
type Config struct {
	gorm.Model         `json:"-"`
	GuildID            string  `gorm:"uniqueIndex" json:"guild_id"`
	MarketplaceEnabled bool    `json:"marketplace_enabled"`
	TaxEnabled         bool    `json:"tax_enabled"`
	TaxRate            float64 `json:"tax_rate"`
	MinTaxableAmount   int64   `json:"min_taxable_amount"`
	FeeRate            float64 `json:"fee_rate"`
	MaxActiveListings  int64   `json:"max_active_listings"`
	ListCooldownSecs   int     `json:"list_cooldown_secs"`
	BuyCooldownSecs    int     `json:"buy_cooldown_secs"`
	MaxInventoryWeight float64 `json:"max_inventory_weight"`
	MaxInventorySlots  int     `json:"max_inventory_slots"`
	ListingTTL         int     `json:"listing_ttl_secs"`
}

// DefaultConfig returns the configuration applied to guilds that have
// never been configured.
func DefaultConfig(guildID string) *Config {
	return &Config{
		GuildID:            guildID,
		MarketplaceEnabled: true,
		TaxEnabled:         true,
		TaxRate:            0.10,
		MinTaxableAmount:   20,
		FeeRate:            0.02,
		MaxActiveListings:  10,
		ListCooldownSecs:   30,
		BuyCooldownSecs:    5,
		MaxInventoryWeight: 0, // unlimited
		MaxInventorySlots:  0, // unlimited
		ListingTTL:         int((7 * 24 * time.Hour).Seconds()),
	}
}

// Service reads and writes guild configuration.
type Service struct {
	db *gorm.DB
}

// NewService creates a guild configuration service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Get returns the stored configuration for a guild, or the defaults when
// the guild has none.
func (s *Service) Get(ctx context.Context, guildID string) (*Config, error) {
	var cfg Config
	err := s.db.WithContext(ctx).Where("guild_id = ?", guildID).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DefaultConfig(guildID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch guild config: %w", err)
	}
	return &cfg, nil
}

// Upsert stores a guild's configuration, replacing any previous row.
func (s *Service) Upsert(ctx context.Context, cfg *Config) error {
	var existing Config
	err := s.db.WithContext(ctx).Where("guild_id = ?", cfg.GuildID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := s.db.WithContext(ctx).Create(cfg).Error; err != nil {
			return fmt.Errorf("create guild config: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("fetch guild config: %w", err)
	default:
		cfg.ID = existing.ID
		cfg.CreatedAt = existing.CreatedAt
		if err := s.db.WithContext(ctx).Save(cfg).Error; err != nil {
			return fmt.Errorf("update guild config: %w", err)
		}
		return nil
	}
}
