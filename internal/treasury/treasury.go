// Package treasury accumulates guild funds collected from marketplace tax
// and fees. Sectors are increment-only counters; nothing in the engine
// ever withdraws from them.
package treasury

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Well-known sector names.
const (
	SectorTax        = "tax"
	SectorMarketFees = "market_fees"
)

// Sector is one guild treasury bucket.
type Sector struct {
	gorm.Model `json:"-"`
	GuildID    string `gorm:"uniqueIndex:idx_treasury_guild_sector" json:"guild_id"`
	Sector     string `gorm:"uniqueIndex:idx_treasury_guild_sector" json:"sector"`
	Amount     int64  `json:"amount"`
}

// Service wraps the treasury sectors table.
type Service struct {
	db *gorm.DB
}

// NewService creates a treasury service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// WithTx returns a service bound to an open transaction.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{db: tx}
}

// Deposit adds amount to a guild sector, creating the sector on first use.
// Amounts must be positive; zero-value deposits are the caller's job to
// skip.
func (s *Service) Deposit(ctx context.Context, guildID, sector string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("deposit amount must be positive, got %d", amount)
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "guild_id"}, {Name: "sector"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"amount":     gorm.Expr("amount + ?", amount),
			"updated_at": time.Now(),
		}),
	}).Create(&Sector{GuildID: guildID, Sector: sector, Amount: amount}).Error
	if err != nil {
		return fmt.Errorf("treasury deposit: %w", err)
	}
	return nil
}

// Balance returns the current amount held in one sector, zero when the
// sector has never received a deposit.
func (s *Service) Balance(ctx context.Context, guildID, sector string) (int64, error) {
	var row Sector
	err := s.db.WithContext(ctx).
		Where("guild_id = ? AND sector = ?", guildID, sector).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("fetch treasury sector: %w", err)
	}
	return row.Amount, nil
}

// GuildSectors returns all sectors holding funds for a guild.
func (s *Service) GuildSectors(ctx context.Context, guildID string) ([]Sector, error) {
	var rows []Sector
	if err := s.db.WithContext(ctx).
		Where("guild_id = ?", guildID).
		Order("sector ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list treasury sectors: %w", err)
	}
	return rows, nil
}
