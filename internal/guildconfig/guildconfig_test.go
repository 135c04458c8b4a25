package guildconfig

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testService(t *testing.T) *Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&Config{}))
	return NewService(db)
}

func TestGet_DefaultsForUnknownGuild(t *testing.T) {
	s := testService(t)

	cfg, err := s.Get(context.Background(), "never-configured")
	require.NoError(t, err)
	assert.Equal(t, "never-configured", cfg.GuildID)
	assert.True(t, cfg.MarketplaceEnabled)
	assert.Equal(t, 0.10, cfg.TaxRate)
	assert.Equal(t, int64(20), cfg.MinTaxableAmount)
	assert.Equal(t, 0.02, cfg.FeeRate)
	assert.Equal(t, int64(10), cfg.MaxActiveListings)
}

func TestUpsert_CreatesThenReplaces(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	cfg := DefaultConfig("g1")
	cfg.TaxRate = 0.25
	require.NoError(t, s.Upsert(ctx, cfg))

	stored, err := s.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 0.25, stored.TaxRate)

	stored.MarketplaceEnabled = false
	stored.MaxActiveListings = 3
	require.NoError(t, s.Upsert(ctx, stored))

	again, err := s.Get(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, again.MarketplaceEnabled)
	assert.Equal(t, int64(3), again.MaxActiveListings)
	assert.Equal(t, 0.25, again.TaxRate)

	// Still exactly one row for the guild.
	var count int64
	require.NoError(t, s.db.Model(&Config{}).Where("guild_id = ?", "g1").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
