package market

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/guildecon/economy-api/internal/account"
	"github.com/guildecon/economy-api/internal/audit"
	"github.com/guildecon/economy-api/internal/economy"
	"github.com/guildecon/economy-api/internal/guildconfig"
	"github.com/guildecon/economy-api/internal/types"
)

// SystemActorID marks cancellations issued by the engine itself, such as
// listing expiry.
const SystemActorID = "system"

// cancelAttempts bounds re-reads when a concurrent partial buy moves the
// listing between the validation read and the cancel.
const cancelAttempts = 4

// errCancelRetry reports that the listing changed under an attempt but is
// still active, so the cancel should re-read and try again.
var errCancelRetry = errors.New("market: listing changed during cancel")

// Cancel returns an active listing's escrow to the seller and marks the
// listing cancelled. Only the seller, or an actor with the override flag,
// may cancel. The cancel is pinned to the listing version it validated, so
// the escrow returned always matches what was still held when the listing
// flipped; a partial buy landing in between forces a re-read.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (*Listing, error) {
	logger := log.With().
		Str("guild_id", req.GuildID).
		Str("actor_id", req.ActorID).
		Str("listing_id", req.ListingID).
		Str("service", "market").
		Logger()

	cfg, err := s.guilds.Get(ctx, req.GuildID)
	if err != nil {
		return nil, err
	}

	correlationID := audit.NewCorrelationID("mcancel")

	for attempt := 1; ; attempt++ {
		cancelled, err := s.cancelOnce(ctx, req, cfg, correlationID)
		if errors.Is(err, errCancelRetry) {
			if attempt >= cancelAttempts {
				return nil, ErrCancelConflict
			}
			logger.Debug().Int("attempt", attempt).Msg("listing changed during cancel, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}

		s.audit.Record(ctx, audit.OpMarketCancel, req.ActorID, req.ListingID, req.GuildID, correlationID, map[string]interface{}{
			"seller_id": cancelled.SellerID,
			"item_id":   cancelled.ItemID,
			"item_kind": cancelled.ItemKind,
			"quantity":  cancelled.Quantity,
			"override":  req.Override,
		})

		logger.Info().
			Str("seller_id", cancelled.SellerID).
			Int64("returned_quantity", cancelled.Quantity).
			Bool("override", req.Override).
			Msg("listing cancelled")
		return cancelled, nil
	}
}

// cancelOnce validates the listing, computes the escrow return from that
// exact read, and flips the listing with the read's version as a
// precondition so the two can never disagree.
func (s *Service) cancelOnce(ctx context.Context, req CancelRequest, cfg *guildconfig.Config, correlationID string) (*Listing, error) {
	listing, err := s.listings.GetListing(ctx, req.ListingID)
	if err != nil {
		return nil, err
	}
	if listing == nil || listing.GuildID != req.GuildID {
		return nil, ErrListingNotFound
	}
	if req.ActorID != listing.SellerID && !req.Override {
		return nil, ErrCancelForbidden
	}
	if listing.Status != StatusActive {
		return nil, ErrListingNotActive
	}

	escrowed, err := listing.Instances()
	if err != nil {
		return nil, err
	}

	// The seller must be able to hold the returned escrow before anything
	// is written.
	sellerSnap, err := s.accounts.Snapshot(ctx, listing.SellerID, req.GuildID)
	if err != nil {
		return nil, err
	}
	proposed := sellerSnap.Clone()
	if listing.ItemKind == KindInstance {
		economy.AddInstances(proposed.Inventory, listing.ItemID, escrowed...)
	} else {
		entry := proposed.Inventory[listing.ItemID]
		entry.Quantity += listing.Quantity
		proposed.Inventory[listing.ItemID] = entry
	}
	limits := economy.CapacityLimits{MaxWeight: cfg.MaxInventoryWeight, MaxSlots: cfg.MaxInventorySlots}
	if err := economy.CheckCapacity(proposed.Inventory, s.catalog.WeightOf, limits); err != nil {
		return nil, err
	}

	returnEscrow := func(snap *types.Snapshot) error {
		if listing.ItemKind == KindInstance {
			economy.AddInstances(snap.Inventory, listing.ItemID, escrowed...)
			return nil
		}
		next, err := economy.ApplyDelta(snap,
			types.Deltas{},
			types.Deltas{Items: []types.ItemDelta{{ItemID: listing.ItemID, Quantity: listing.Quantity}}},
			economy.ApplyOptions{StackLimit: s.catalog.StackLimit})
		if err != nil {
			return err
		}
		*snap = *next
		return nil
	}

	version := listing.Version
	var cancelled *Listing

	// Fast path: terminal flip and escrow return in one transaction.
	txErr := s.tx.RunInTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		cancelled, err = s.listings.WithTx(tx).CancelActive(ctx, req.ListingID, &version)
		if err != nil {
			return err
		}
		if cancelled == nil {
			return s.classifyCancelMiss(ctx, s.listings.WithTx(tx), req.ListingID)
		}
		_, err = s.accounts.WithTx(tx).Transition(ctx, listing.SellerID, req.GuildID, account.DefaultAttempts, returnEscrow)
		return wrapConflict(err, ErrCancelConflict)
	})

	if errors.Is(txErr, types.ErrTransactionsUnsupported) {
		// Fallback: flip the listing first, then return the escrow. A
		// failed return reactivates the listing so the escrow is never
		// orphaned.
		cancelled, err = s.listings.CancelActive(ctx, req.ListingID, &version)
		if err != nil {
			return nil, err
		}
		if cancelled == nil {
			return nil, s.classifyCancelMiss(ctx, s.listings, req.ListingID)
		}
		if _, err := s.accounts.Transition(ctx, listing.SellerID, req.GuildID, account.DefaultAttempts, returnEscrow); err != nil {
			s.compensate(ctx, audit.OpMarketCancel, correlationID, req.GuildID, req.ActorID, func() error {
				_, e := s.listings.UpdateByID(ctx, req.ListingID, map[string]interface{}{"status": StatusActive})
				return e
			})
			return nil, wrapConflict(err, ErrCancelConflict)
		}
		txErr = nil
	}
	if txErr != nil {
		return nil, txErr
	}
	return cancelled, nil
}

// classifyCancelMiss explains a CancelActive compare-and-swap miss from a
// fresh read. A listing that is still active only moved its version, so the
// cancel can be retried against the new state.
func (s *Service) classifyCancelMiss(ctx context.Context, listings *Database, listingID string) error {
	fresh, err := listings.GetListing(ctx, listingID)
	if err != nil {
		return err
	}
	if fresh == nil {
		return ErrListingNotFound
	}
	if fresh.Status == StatusActive {
		return errCancelRetry
	}
	return ErrListingNotActive
}

// ExpireListings cancels active listings whose expiry passed, returning
// their escrow to the sellers. Failures on individual listings are logged
// and skipped; the sweep reports how many listings it expired.
func (s *Service) ExpireListings(ctx context.Context, now time.Time, limit int) (int, error) {
	stale, err := s.listings.ExpiredActive(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, listing := range stale {
		_, err := s.Cancel(ctx, CancelRequest{
			GuildID:   listing.GuildID,
			ActorID:   SystemActorID,
			ListingID: listing.ListingID,
			Override:  true,
		})
		if err != nil {
			log.Warn().Err(err).
				Str("listing_id", listing.ListingID).
				Msg("expiry sweep could not cancel listing")
			continue
		}
		expired++
	}

	if expired > 0 {
		s.audit.Record(ctx, audit.OpMarketExpire, SystemActorID, "", "", audit.NewCorrelationID("mexpire"), map[string]interface{}{
			"expired": expired,
		})
		log.Info().Int("expired", expired).Msg("expiry sweep completed")
	}
	return expired, nil
}
