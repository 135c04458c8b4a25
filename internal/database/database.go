package database

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/guildecon/economy-api/internal/audit"
	"github.com/guildecon/economy-api/internal/guildconfig"
	"github.com/guildecon/economy-api/internal/market"
	"github.com/guildecon/economy-api/internal/treasury"
	"github.com/guildecon/economy-api/internal/types"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(path string) (*gorm.DB, error) {
	if path == "" {
		path = "economy.db"
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Auto-migrate schemas
	err = db.AutoMigrate(
		&types.Account{},
		&market.Listing{},
		&treasury.Sector{},
		&audit.Entry{},
		&guildconfig.Config{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
