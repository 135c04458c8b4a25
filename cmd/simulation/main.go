package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/guildecon/economy-api/internal/account"
	"github.com/guildecon/economy-api/internal/audit"
	"github.com/guildecon/economy-api/internal/catalog"
	"github.com/guildecon/economy-api/internal/guildconfig"
	"github.com/guildecon/economy-api/internal/market"
	"github.com/guildecon/economy-api/internal/ratelimit"
	"github.com/guildecon/economy-api/internal/treasury"
	"github.com/guildecon/economy-api/internal/types"
)

const (
	guildID     = "sim-guild"
	currencyID  = "gold"
	numSellers  = 4
	numBuyers   = 8
	numListings = 12
	startingGld = int64(10_000)
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// main drives concurrent list/buy/cancel rounds directly against the
// market service and verifies that money and items moved exactly once.
func main() {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to access connection pool")
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&types.Account{}, &market.Listing{}, &treasury.Sector{},
		&audit.Entry{}, &guildconfig.Config{},
	); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate schema")
	}

	items := catalog.NewService([]catalog.ItemDefinition{
		{ID: "stick", Name: "Stick", Kind: catalog.KindStackable, MaxStack: 99,
			Market: &catalog.MarketInfo{Tradable: true, Category: "materials", MinPrice: 1, MaxPrice: 500}},
		{ID: "iron_axe", Name: "Iron Axe", Kind: catalog.KindInstance, MaxDurability: 100,
			Market: &catalog.MarketInfo{Tradable: true, Category: "tools", MinPrice: 10, MaxPrice: 5000}},
	})

	guilds := guildconfig.NewService(db)
	cfg := guildconfig.DefaultConfig(guildID)
	cfg.ListCooldownSecs = 0
	cfg.BuyCooldownSecs = 0
	if err := guilds.Upsert(context.Background(), cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to store guild config")
	}

	svc := market.NewService(db, items, guilds, ratelimit.NewCooldowns(), market.NewTransactor(db))
	ctx := context.Background()

	seedAccounts(ctx, svc.Accounts())
	listings := createListings(ctx, svc)
	moneyBefore := totalMoney(ctx, svc.Accounts())

	log.Info().Int("listings", len(listings)).Int64("money_supply", moneyBefore).Msg("simulation seeded")

	purchased, spent := runBuyers(ctx, svc, listings)

	// Conservation check: buyer spend equals seller payout plus treasury.
	treasuryTotal := int64(0)
	treas := treasury.NewService(db)
	for _, sector := range []string{treasury.SectorTax, treasury.SectorMarketFees} {
		bal, err := treas.Balance(ctx, guildID, sector)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to read treasury")
		}
		treasuryTotal += bal
	}

	moneyAfter := totalMoney(ctx, svc.Accounts())
	if moneyBefore != moneyAfter+treasuryTotal {
		log.Fatal().
			Int64("before", moneyBefore).
			Int64("after", moneyAfter).
			Int64("treasury", treasuryTotal).
			Msg("money supply not conserved")
	}

	log.Info().
		Int64("units_purchased", purchased).
		Int64("total_spent", spent).
		Int64("treasury", treasuryTotal).
		Msg("simulation completed, ledger conserved")
}

func seedAccounts(ctx context.Context, accounts *account.Store) {
	for i := 0; i < numSellers; i++ {
		sellerID := fmt.Sprintf("seller-%d", i)
		_, err := accounts.Transition(ctx, sellerID, guildID, account.DefaultAttempts, func(snap *types.Snapshot) error {
			snap.Inventory["stick"] = types.InventoryEntry{Quantity: 50}
			return nil
		})
		if err != nil {
			log.Fatal().Err(err).Str("seller", sellerID).Msg("failed to seed seller")
		}
	}
	for i := 0; i < numBuyers; i++ {
		buyerID := fmt.Sprintf("buyer-%d", i)
		_, err := accounts.Transition(ctx, buyerID, guildID, account.DefaultAttempts, func(snap *types.Snapshot) error {
			snap.Currencies[currencyID] = types.Balance{Hand: startingGld}
			return nil
		})
		if err != nil {
			log.Fatal().Err(err).Str("buyer", buyerID).Msg("failed to seed buyer")
		}
	}
}

func createListings(ctx context.Context, svc *market.Service) []*market.Listing {
	listings := make([]*market.Listing, 0, numListings)
	for i := 0; i < numListings; i++ {
		sellerID := fmt.Sprintf("seller-%d", i%numSellers)
		listing, err := svc.List(ctx, market.ListRequest{
			GuildID:      guildID,
			SellerID:     sellerID,
			ItemID:       "stick",
			CurrencyID:   currencyID,
			PricePerUnit: int64(5 + rand.Intn(20)),
			Quantity:     int64(1 + rand.Intn(4)),
		})
		if err != nil {
			log.Fatal().Err(err).Str("seller", sellerID).Msg("failed to create listing")
		}
		listings = append(listings, listing)
	}
	return listings
}

func runBuyers(ctx context.Context, svc *market.Service, listings []*market.Listing) (purchased, spent int64) {
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < numBuyers; i++ {
		buyerID := fmt.Sprintf("buyer-%d", i)
		wg.Add(1)
		go func(buyerID string) {
			defer wg.Done()
			for _, listing := range listings {
				receipt, err := svc.Buy(ctx, market.BuyRequest{
					GuildID:   guildID,
					BuyerID:   buyerID,
					ListingID: listing.ListingID,
					Quantity:  1,
				})
				if err != nil {
					// Losing the race for exhausted listings is expected.
					continue
				}
				mu.Lock()
				purchased += receipt.Quantity
				spent += receipt.Total
				mu.Unlock()
			}
		}(buyerID)
	}
	wg.Wait()
	return purchased, spent
}

func totalMoney(ctx context.Context, accounts *account.Store) int64 {
	total := int64(0)
	for i := 0; i < numSellers; i++ {
		total += balanceOf(ctx, accounts, fmt.Sprintf("seller-%d", i))
	}
	for i := 0; i < numBuyers; i++ {
		total += balanceOf(ctx, accounts, fmt.Sprintf("buyer-%d", i))
	}
	return total
}

func balanceOf(ctx context.Context, accounts *account.Store, userID string) int64 {
	snap, err := accounts.Snapshot(ctx, userID, guildID)
	if err != nil {
		log.Fatal().Err(err).Str("user", userID).Msg("failed to read account")
	}
	return snap.Balance(currencyID).Hand
}
