package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/guildecon/economy-api/internal/account"
	"github.com/guildecon/economy-api/internal/audit"
	"github.com/guildecon/economy-api/internal/economy"
	"github.com/guildecon/economy-api/internal/ratelimit"
	"github.com/guildecon/economy-api/internal/treasury"
	"github.com/guildecon/economy-api/internal/types"
)

// Buy purchases units from an active listing. As one unit it debits the
// buyer by the quoted total, credits the seller with the subtotal, moves
// the purchased units from listing escrow into the buyer's inventory, and
// deposits tax and fee into the guild treasury.
func (s *Service) Buy(ctx context.Context, req BuyRequest) (*Receipt, error) {
	logger := log.With().
		Str("guild_id", req.GuildID).
		Str("buyer_id", req.BuyerID).
		Str("listing_id", req.ListingID).
		Str("service", "market").
		Logger()

	cfg, err := s.guilds.Get(ctx, req.GuildID)
	if err != nil {
		return nil, err
	}
	if !cfg.MarketplaceEnabled {
		return nil, ErrMarketDisabled
	}

	listing, err := s.listings.GetListing(ctx, req.ListingID)
	if err != nil {
		return nil, err
	}
	if listing == nil || listing.GuildID != req.GuildID {
		return nil, ErrListingNotFound
	}
	if listing.Status != StatusActive {
		return nil, ErrListingNotActive
	}
	if listing.SellerID == req.BuyerID {
		return nil, ErrSelfPurchase
	}
	if req.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	if listing.ItemKind == KindInstance && req.Quantity != 1 {
		return nil, ErrInvalidQuantity
	}
	if req.Quantity > listing.Quantity {
		return nil, ErrInsufficientListingQuantity
	}

	if !s.cooldowns.Allow(req.GuildID, req.BuyerID, ratelimit.ActionBuy, time.Duration(cfg.BuyCooldownSecs)*time.Second) {
		return nil, fmt.Errorf("purchase cooldown active: %w", types.ErrRateLimited)
	}

	quote := ComputeQuote(listing.PricePerUnit, req.Quantity, cfg)

	// Resolve which escrowed instances change hands, and what remains on
	// the listing, from the version of the listing we validated against.
	escrowAll, err := listing.Instances()
	if err != nil {
		return nil, err
	}
	var granted []types.ItemInstance
	var remainingPayload *string
	if listing.ItemKind == KindInstance {
		granted = escrowAll[:req.Quantity]
		rest, err := EncodeInstances(escrowAll[req.Quantity:])
		if err != nil {
			return nil, err
		}
		remainingPayload = &rest
	}

	// Capacity is verified against the buyer's post-purchase inventory
	// before anything is written.
	buyerSnap, err := s.accounts.Snapshot(ctx, req.BuyerID, req.GuildID)
	if err != nil {
		return nil, err
	}
	if buyerSnap.Restricted {
		return nil, types.ErrAccountRestricted
	}
	proposed := buyerSnap.Clone()
	if listing.ItemKind == KindInstance {
		economy.AddInstances(proposed.Inventory, listing.ItemID, granted...)
	} else {
		entry := proposed.Inventory[listing.ItemID]
		entry.Quantity += req.Quantity
		proposed.Inventory[listing.ItemID] = entry
	}
	limits := economy.CapacityLimits{MaxWeight: cfg.MaxInventoryWeight, MaxSlots: cfg.MaxInventorySlots}
	if err := economy.CheckCapacity(proposed.Inventory, s.catalog.WeightOf, limits); err != nil {
		return nil, err
	}

	correlationID := audit.NewCorrelationID("mbuy")

	var balanceBefore, balanceAfter int64
	debitBuyer := func(snap *types.Snapshot) error {
		if snap.Restricted {
			return types.ErrAccountRestricted
		}
		balanceBefore = snap.Balance(listing.CurrencyID).Hand

		rewards := types.Deltas{}
		if listing.ItemKind != KindInstance {
			rewards.Items = []types.ItemDelta{{ItemID: listing.ItemID, Quantity: req.Quantity}}
		}
		next, err := economy.ApplyDelta(snap,
			types.Deltas{Currencies: []types.CurrencyDelta{{CurrencyID: listing.CurrencyID, Amount: quote.Total}}},
			rewards,
			economy.ApplyOptions{StackLimit: s.catalog.StackLimit})
		if err != nil {
			return err
		}
		*snap = *next
		if listing.ItemKind == KindInstance {
			economy.AddInstances(snap.Inventory, listing.ItemID, granted...)
		}
		balanceAfter = snap.Balance(listing.CurrencyID).Hand
		return nil
	}

	creditSeller := func(snap *types.Snapshot) error {
		next, err := economy.ApplyDelta(snap,
			types.Deltas{},
			types.Deltas{Currencies: []types.CurrencyDelta{{CurrencyID: listing.CurrencyID, Amount: quote.SellerPayout}}},
			economy.ApplyOptions{})
		if err != nil {
			return err
		}
		*snap = *next
		return nil
	}

	var updated *Listing

	runSteps := func(listings *Database, accounts *account.Store, treas *treasury.Service) error {
		var err error
		updated, err = listings.DecrementEscrow(ctx, listing.ListingID, req.Quantity, nil, remainingPayload)
		if err != nil {
			return err
		}
		if updated == nil {
			return s.classifyDecrementMiss(ctx, listings, listing.ListingID, req.Quantity)
		}
		if _, err := accounts.Transition(ctx, req.BuyerID, req.GuildID, account.DefaultAttempts, debitBuyer); err != nil {
			return wrapConflict(err, ErrBuyConflict)
		}
		if _, err := accounts.Transition(ctx, listing.SellerID, req.GuildID, account.DefaultAttempts, creditSeller); err != nil {
			return wrapConflict(err, ErrBuyConflict)
		}
		if quote.Tax > 0 {
			if err := treas.Deposit(ctx, req.GuildID, treasury.SectorTax, quote.Tax); err != nil {
				return err
			}
		}
		if quote.Fee > 0 {
			if err := treas.Deposit(ctx, req.GuildID, treasury.SectorMarketFees, quote.Fee); err != nil {
				return err
			}
		}
		return nil
	}

	// Fast path: everything inside one transaction.
	txErr := s.tx.RunInTransaction(ctx, func(tx *gorm.DB) error {
		return runSteps(s.listings.WithTx(tx), s.accounts.WithTx(tx), s.treasury.WithTx(tx))
	})

	if errors.Is(txErr, types.ErrTransactionsUnsupported) {
		txErr = s.buyFallback(ctx, req, listing, quote, correlationID,
			runStepsFallback{
				debitBuyer:        debitBuyer,
				creditSeller:      creditSeller,
				granted:           granted,
				remainingPayload:  remainingPayload,
				originalInstances: listing.EscrowedInstances,
			}, &updated)
	}
	if txErr != nil {
		return nil, txErr
	}

	receipt := &Receipt{
		ListingID:          listing.ListingID,
		ItemID:             listing.ItemID,
		Quantity:           req.Quantity,
		CurrencyID:         listing.CurrencyID,
		Subtotal:           quote.Subtotal,
		Tax:                quote.Tax,
		Fee:                quote.Fee,
		Total:              quote.Total,
		SellerPayout:       quote.SellerPayout,
		Instances:          granted,
		RemainingQuantity:  updated.Quantity,
		ListingStatus:      updated.Status,
		BuyerBalanceBefore: balanceBefore,
		BuyerBalanceAfter:  balanceAfter,
		CorrelationID:      correlationID,
	}

	s.audit.Record(ctx, audit.OpMarketBuy, req.BuyerID, listing.ListingID, req.GuildID, correlationID, map[string]interface{}{
		"item_id":              listing.ItemID,
		"seller_id":            listing.SellerID,
		"quantity":             req.Quantity,
		"subtotal":             quote.Subtotal,
		"tax":                  quote.Tax,
		"fee":                  quote.Fee,
		"total":                quote.Total,
		"seller_payout":        quote.SellerPayout,
		"buyer_balance_before": balanceBefore,
		"buyer_balance_after":  balanceAfter,
		"listing_status":       updated.Status,
	})

	logger.Info().
		Int64("quantity", req.Quantity).
		Int64("total", quote.Total).
		Str("listing_status", updated.Status).
		Msg("purchase completed")
	return receipt, nil
}

type runStepsFallback struct {
	debitBuyer        func(*types.Snapshot) error
	creditSeller      func(*types.Snapshot) error
	granted           []types.ItemInstance
	remainingPayload  *string
	originalInstances string
}

// buyFallback executes the purchase as independently CAS-protected steps.
// A failure after an earlier step committed triggers the inverse mutation
// of everything already applied before the error is returned.
func (s *Service) buyFallback(ctx context.Context, req BuyRequest, listing *Listing, quote Quote, correlationID string, steps runStepsFallback, updated **Listing) error {
	restoreListing := func() error {
		restored, err := s.listings.RestoreEscrow(ctx, listing.ListingID, req.Quantity, &steps.originalInstances)
		if err != nil {
			return err
		}
		if restored == nil {
			return fmt.Errorf("listing %s no longer restorable: %w", listing.ListingID, types.ErrTransactionFailed)
		}
		return nil
	}

	refundBuyer := func() error {
		_, err := s.accounts.Transition(ctx, req.BuyerID, req.GuildID, account.DefaultAttempts, func(snap *types.Snapshot) error {
			costs := types.Deltas{}
			if listing.ItemKind == KindInstance {
				for _, inst := range steps.granted {
					economy.RemoveInstanceByID(snap.Inventory, listing.ItemID, inst.InstanceID)
				}
			} else {
				costs.Items = []types.ItemDelta{{ItemID: listing.ItemID, Quantity: req.Quantity}}
			}
			next, err := economy.ApplyDelta(snap, costs,
				types.Deltas{Currencies: []types.CurrencyDelta{{CurrencyID: listing.CurrencyID, Amount: quote.Total}}},
				economy.ApplyOptions{StackLimit: s.catalog.StackLimit})
			if err != nil {
				return err
			}
			*snap = *next
			return nil
		})
		return err
	}

	debitSeller := func() error {
		_, err := s.accounts.Transition(ctx, listing.SellerID, req.GuildID, account.DefaultAttempts, func(snap *types.Snapshot) error {
			next, err := economy.ApplyDelta(snap,
				types.Deltas{Currencies: []types.CurrencyDelta{{CurrencyID: listing.CurrencyID, Amount: quote.SellerPayout}}},
				types.Deltas{},
				// The payout may already be spent; reclaiming it may drive
				// the seller negative rather than lose the escrow.
				economy.ApplyOptions{AllowDebt: true})
			if err != nil {
				return err
			}
			*snap = *next
			return nil
		})
		return err
	}

	// Step 1: take units off the listing.
	var err error
	*updated, err = s.listings.DecrementEscrow(ctx, listing.ListingID, req.Quantity, nil, steps.remainingPayload)
	if err != nil {
		return err
	}
	if *updated == nil {
		return s.classifyDecrementMiss(ctx, s.listings, listing.ListingID, req.Quantity)
	}

	// Step 2: move money and items on the buyer.
	if _, err := s.accounts.Transition(ctx, req.BuyerID, req.GuildID, account.DefaultAttempts, steps.debitBuyer); err != nil {
		s.compensate(ctx, audit.OpMarketBuy, correlationID, req.GuildID, req.BuyerID, restoreListing)
		return wrapConflict(err, ErrBuyConflict)
	}

	// Step 3: credit the seller.
	if _, err := s.accounts.Transition(ctx, listing.SellerID, req.GuildID, account.DefaultAttempts, steps.creditSeller); err != nil {
		s.compensate(ctx, audit.OpMarketBuy, correlationID, req.GuildID, req.BuyerID, refundBuyer, restoreListing)
		return wrapConflict(err, ErrBuyConflict)
	}

	// Step 4: treasury deposits.
	if quote.Tax > 0 {
		if err := s.treasury.Deposit(ctx, req.GuildID, treasury.SectorTax, quote.Tax); err != nil {
			s.compensate(ctx, audit.OpMarketBuy, correlationID, req.GuildID, req.BuyerID, debitSeller, refundBuyer, restoreListing)
			return err
		}
	}
	if quote.Fee > 0 {
		if err := s.treasury.Deposit(ctx, req.GuildID, treasury.SectorMarketFees, quote.Fee); err != nil {
			s.compensate(ctx, audit.OpMarketBuy, correlationID, req.GuildID, req.BuyerID, debitSeller, refundBuyer, restoreListing)
			return err
		}
	}
	return nil
}

// classifyDecrementMiss turns a DecrementEscrow compare-and-swap miss into
// the precise error the buyer should see, from a fresh read.
func (s *Service) classifyDecrementMiss(ctx context.Context, listings *Database, listingID string, qty int64) error {
	fresh, err := listings.GetListing(ctx, listingID)
	if err != nil {
		return err
	}
	switch {
	case fresh == nil:
		return ErrListingNotFound
	case fresh.Status != StatusActive:
		return ErrListingNotActive
	case fresh.Quantity < qty:
		return ErrInsufficientListingQuantity
	default:
		return ErrBuyConflict
	}
}
