// Package market implements the marketplace escrow protocol: listing,
// buying and cancelling chain several optimistic account transitions and
// one conditional listing write into operations that appear atomic to
// observers. Each flow first attempts a real multi-document transaction
// and falls back to independently CAS-protected steps with best-effort
// compensation when the store cannot provide one.
package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/guildecon/economy-api/internal/account"
	"github.com/guildecon/economy-api/internal/audit"
	"github.com/guildecon/economy-api/internal/catalog"
	"github.com/guildecon/economy-api/internal/economy"
	"github.com/guildecon/economy-api/internal/guildconfig"
	"github.com/guildecon/economy-api/internal/ratelimit"
	"github.com/guildecon/economy-api/internal/treasury"
	"github.com/guildecon/economy-api/internal/types"
)

// Service orchestrates the marketplace flows over the account store, the
// listing repository, the treasury and the audit sink.
type Service struct {
	listings  *Database
	accounts  *account.Store
	treasury  *treasury.Service
	audit     *audit.Service
	catalog   *catalog.Service
	guilds    *guildconfig.Service
	cooldowns *ratelimit.Cooldowns
	tx        Transactor
}

// NewService creates a market service with the given database connection
// and collaborators.
func NewService(gormDB *gorm.DB, cat *catalog.Service, guilds *guildconfig.Service, cooldowns *ratelimit.Cooldowns, tx Transactor) *Service {
	return &Service{
		listings:  NewDatabase(gormDB),
		accounts:  account.NewStore(gormDB),
		treasury:  treasury.NewService(gormDB),
		audit:     audit.NewService(gormDB),
		catalog:   cat,
		guilds:    guilds,
		cooldowns: cooldowns,
		tx:        tx,
	}
}

// Listings exposes the repository for read-only queries (browse, my
// listings) and for wiring in cmd packages.
func (s *Service) Listings() *Database {
	return s.listings
}

// Accounts exposes the account store for read-only queries.
func (s *Service) Accounts() *account.Store {
	return s.accounts
}

// List validates a listing request, escrows the item out of the seller's
// inventory and creates the listing record holding that escrow in one
// logical step.
func (s *Service) List(ctx context.Context, req ListRequest) (*Listing, error) {
	logger := log.With().
		Str("guild_id", req.GuildID).
		Str("seller_id", req.SellerID).
		Str("item_id", req.ItemID).
		Str("service", "market").
		Logger()

	cfg, err := s.guilds.Get(ctx, req.GuildID)
	if err != nil {
		return nil, err
	}
	if !cfg.MarketplaceEnabled {
		return nil, ErrMarketDisabled
	}

	def := s.catalog.GetItemDefinition(req.ItemID)
	if def == nil || !def.Tradable() {
		return nil, ErrItemNotTradable
	}
	if req.Category != "" && req.Category != def.Market.Category {
		return nil, ErrInvalidCategory
	}
	if err := validatePrice(req.PricePerUnit, def); err != nil {
		return nil, err
	}
	if req.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	if def.IsInstanceBased() && req.Quantity != 1 {
		return nil, ErrInvalidQuantity
	}
	if req.CurrencyID == "" {
		return nil, fmt.Errorf("currency id is required: %w", types.ErrValidation)
	}

	acc, err := s.accounts.Get(ctx, req.SellerID, req.GuildID)
	if err != nil {
		return nil, err
	}
	if acc != nil && acc.Restricted {
		return nil, types.ErrAccountRestricted
	}

	if !s.cooldowns.Allow(req.GuildID, req.SellerID, ratelimit.ActionList, time.Duration(cfg.ListCooldownSecs)*time.Second) {
		return nil, fmt.Errorf("listing cooldown active: %w", types.ErrRateLimited)
	}

	if cfg.MaxActiveListings > 0 {
		active, err := s.listings.CountActiveBySeller(ctx, req.GuildID, req.SellerID)
		if err != nil {
			return nil, err
		}
		if active >= cfg.MaxActiveListings {
			return nil, ErrListingCap
		}
	}

	correlationID := audit.NewCorrelationID("mlist")
	listing := s.newListing(req, def, cfg)

	// The compute step runs once per transition attempt; escrowed is reset
	// on every call so a retried attempt never sees stale captures.
	var escrowed []types.ItemInstance
	removeEscrow := func(snap *types.Snapshot) error {
		escrowed = nil
		if snap.Restricted {
			return types.ErrAccountRestricted
		}
		if def.IsInstanceBased() {
			economy.MigrateLegacyEntry(snap.Inventory, req.ItemID, def.MaxDurability)
			if req.InstanceID != "" {
				inst, ok := economy.RemoveInstanceByID(snap.Inventory, req.ItemID, req.InstanceID)
				if !ok {
					return fmt.Errorf("instance %s not held: %w", req.InstanceID, types.ErrInsufficientInventory)
				}
				escrowed = []types.ItemInstance{inst}
				return nil
			}
			escrowed = economy.PopInstances(snap.Inventory, req.ItemID, 1)
			if len(escrowed) != 1 {
				return fmt.Errorf("no %s instance held: %w", req.ItemID, types.ErrInsufficientInventory)
			}
			return nil
		}

		next, err := economy.ApplyDelta(snap,
			types.Deltas{Items: []types.ItemDelta{{ItemID: req.ItemID, Quantity: req.Quantity}}},
			types.Deltas{},
			economy.ApplyOptions{StackLimit: s.catalog.StackLimit})
		if err != nil {
			return err
		}
		*snap = *next
		return nil
	}

	finishListing := func() error {
		payload, err := EncodeInstances(escrowed)
		if err != nil {
			return err
		}
		listing.EscrowedInstances = payload
		return nil
	}

	// Fast path: escrow removal and listing creation in one transaction.
	txErr := s.tx.RunInTransaction(ctx, func(tx *gorm.DB) error {
		if _, err := s.accounts.WithTx(tx).Transition(ctx, req.SellerID, req.GuildID, account.DefaultAttempts, removeEscrow); err != nil {
			return err
		}
		if err := finishListing(); err != nil {
			return err
		}
		return s.listings.WithTx(tx).CreateListing(ctx, listing)
	})

	switch {
	case txErr == nil:
		// committed atomically

	case errors.Is(txErr, types.ErrTransactionsUnsupported):
		// Fallback: two CAS-protected steps. A listing-create failure after
		// the escrow left the seller's inventory is compensated by
		// returning the escrow.
		if _, err := s.accounts.Transition(ctx, req.SellerID, req.GuildID, account.DefaultAttempts, removeEscrow); err != nil {
			return nil, wrapConflict(err, ErrListConflict)
		}
		if err := finishListing(); err != nil {
			s.compensate(ctx, audit.OpMarketList, correlationID, req.GuildID, req.SellerID, func() error {
				return s.returnEscrowToSeller(ctx, req.GuildID, req.SellerID, req.ItemID, req.Quantity, escrowed)
			})
			return nil, err
		}
		if err := s.listings.CreateListing(ctx, listing); err != nil {
			logger.Error().Err(err).Msg("listing create failed after escrow removal, compensating")
			s.compensate(ctx, audit.OpMarketList, correlationID, req.GuildID, req.SellerID, func() error {
				return s.returnEscrowToSeller(ctx, req.GuildID, req.SellerID, req.ItemID, req.Quantity, escrowed)
			})
			return nil, fmt.Errorf("create listing: %w", types.ErrTransactionFailed)
		}

	default:
		return nil, wrapConflict(txErr, ErrListConflict)
	}

	s.audit.Record(ctx, audit.OpMarketList, req.SellerID, listing.ListingID, req.GuildID, correlationID, map[string]interface{}{
		"item_id":        req.ItemID,
		"item_kind":      listing.ItemKind,
		"quantity":       req.Quantity,
		"price_per_unit": req.PricePerUnit,
		"currency_id":    req.CurrencyID,
	})

	logger.Info().
		Str("listing_id", listing.ListingID).
		Int64("quantity", listing.Quantity).
		Int64("price_per_unit", listing.PricePerUnit).
		Msg("listing created")
	return listing, nil
}

func (s *Service) newListing(req ListRequest, def *catalog.ItemDefinition, cfg *guildconfig.Config) *Listing {
	kind := KindStackable
	if def.IsInstanceBased() {
		kind = KindInstance
	}

	listing := &Listing{
		ListingID:    "LST_" + uuid.New().String(),
		GuildID:      req.GuildID,
		SellerID:     req.SellerID,
		ItemID:       req.ItemID,
		Category:     def.Market.Category,
		ItemKind:     kind,
		CurrencyID:   req.CurrencyID,
		PricePerUnit: req.PricePerUnit,
		Quantity:     req.Quantity,
		Status:       StatusActive,
		Version:      1,
	}
	if cfg.ListingTTL > 0 {
		expires := time.Now().Add(time.Duration(cfg.ListingTTL) * time.Second)
		listing.ExpiresAt = &expires
	}
	return listing
}

func validatePrice(price int64, def *catalog.ItemDefinition) error {
	if price < 1 {
		return ErrInvalidPrice
	}
	if def.Market.MinPrice > 0 && price < def.Market.MinPrice {
		return ErrInvalidPrice
	}
	if def.Market.MaxPrice > 0 && price > def.Market.MaxPrice {
		return ErrInvalidPrice
	}
	return nil
}

// returnEscrowToSeller puts escrowed units back into the seller's
// inventory. Used by cancel and by compensation in the fallback paths.
func (s *Service) returnEscrowToSeller(ctx context.Context, guildID, sellerID, itemID string, qty int64, instances []types.ItemInstance) error {
	_, err := s.accounts.Transition(ctx, sellerID, guildID, account.DefaultAttempts, func(snap *types.Snapshot) error {
		if len(instances) > 0 {
			economy.AddInstances(snap.Inventory, itemID, instances...)
			return nil
		}
		next, err := economy.ApplyDelta(snap,
			types.Deltas{},
			types.Deltas{Items: []types.ItemDelta{{ItemID: itemID, Quantity: qty}}},
			economy.ApplyOptions{StackLimit: s.catalog.StackLimit})
		if err != nil {
			return err
		}
		*snap = *next
		return nil
	})
	return err
}

// compensate runs inverse mutations after a partial failure on the
// fallback path. Each step is retried once; a step that still fails is
// logged and recorded as a degraded-state audit entry for manual
// follow-up. Compensation is best-effort and never a substitute for the
// transactional path.
func (s *Service) compensate(ctx context.Context, op, correlationID, guildID, actorID string, steps ...func() error) {
	for i, step := range steps {
		err := step()
		if err != nil {
			err = step()
		}
		if err != nil {
			log.Error().Err(err).
				Str("operation", op).
				Str("correlation_id", correlationID).
				Int("step", i).
				Msg("compensation failed, manual reconciliation required")
			s.audit.Record(ctx, op+audit.OpSuffixCompensationFailed, actorID, "", guildID, correlationID, map[string]interface{}{
				"step":  i,
				"error": err.Error(),
			})
		}
	}
}

// wrapConflict replaces an exhausted-retries error with the flow-specific
// conflict kind; other errors pass through.
func wrapConflict(err, flowConflict error) error {
	if errors.Is(err, types.ErrConflict) {
		return flowConflict
	}
	return err
}
