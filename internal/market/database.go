package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Database wraps the listings table. All writes to non-terminal listings
// go through conditional updates that bump the version counter; a zero
// RowsAffected result is a compare-and-swap miss, reported as a nil
// listing rather than an error.
type Database struct {
	db *gorm.DB
}

// NewDatabase creates a listing repository.
func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// WithTx returns a repository bound to an open transaction.
func (d *Database) WithTx(tx *gorm.DB) *Database {
	return &Database{db: tx}
}

// CreateListing inserts a new listing row.
func (d *Database) CreateListing(ctx context.Context, listing *Listing) error {
	if err := d.db.WithContext(ctx).Create(listing).Error; err != nil {
		return fmt.Errorf("create listing: %w", err)
	}
	return nil
}

// GetListing fetches a listing by id, nil when absent.
func (d *Database) GetListing(ctx context.Context, listingID string) (*Listing, error) {
	var listing Listing
	err := d.db.WithContext(ctx).Where("listing_id = ?", listingID).First(&listing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch listing: %w", err)
	}
	return &listing, nil
}

// DecrementEscrow atomically subtracts qty from an active listing with at
// least that many units, bumping the version and flipping the status to
// sold_out when the remainder reaches zero. When expectedVersion is
// non-nil it joins the precondition. remainingInstances, when non-nil,
// replaces the escrowed instance payload in the same write.
//
// Returns the updated listing, or nil when the precondition did not match.
// This is the compare-and-swap surface for buys.
func (d *Database) DecrementEscrow(ctx context.Context, listingID string, qty int64, expectedVersion *int64, remainingInstances *string) (*Listing, error) {
	patch := map[string]interface{}{
		"quantity":   gorm.Expr("quantity - ?", qty),
		"version":    gorm.Expr("version + 1"),
		"status":     gorm.Expr("CASE WHEN quantity - ? <= 0 THEN ? ELSE status END", qty, StatusSoldOut),
		"updated_at": time.Now(),
	}
	if remainingInstances != nil {
		patch["escrowed_instances"] = *remainingInstances
	}

	query := d.db.WithContext(ctx).Model(&Listing{}).
		Where("listing_id = ? AND status = ? AND quantity >= ?", listingID, StatusActive, qty)
	if expectedVersion != nil {
		query = query.Where("version = ?", *expectedVersion)
	}

	res := query.Updates(patch)
	if res.Error != nil {
		return nil, fmt.Errorf("decrement escrow: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return d.GetListing(ctx, listingID)
}

// RestoreEscrow is the inverse of DecrementEscrow, used only by buy
// compensation: it returns qty units to the listing, reactivating a
// listing the same failed operation just sold out. instancesPayload, when
// non-nil, restores the escrowed instance column.
func (d *Database) RestoreEscrow(ctx context.Context, listingID string, qty int64, instancesPayload *string) (*Listing, error) {
	patch := map[string]interface{}{
		"quantity":   gorm.Expr("quantity + ?", qty),
		"version":    gorm.Expr("version + 1"),
		"status":     StatusActive,
		"updated_at": time.Now(),
	}
	if instancesPayload != nil {
		patch["escrowed_instances"] = *instancesPayload
	}

	res := d.db.WithContext(ctx).Model(&Listing{}).
		Where("listing_id = ? AND status IN ?", listingID, []string{StatusActive, StatusSoldOut}).
		Updates(patch)
	if res.Error != nil {
		return nil, fmt.Errorf("restore escrow: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return d.GetListing(ctx, listingID)
}

// CancelActive marks an active listing cancelled. When expectedVersion is
// non-nil it joins the precondition, pinning the cancel to the exact state
// the caller validated and computed its escrow return from; a concurrent
// partial buy bumps the version and turns the cancel into a miss instead
// of letting it act on stale quantities. Returns nil when the listing is
// missing, already terminal, or the version moved.
func (d *Database) CancelActive(ctx context.Context, listingID string, expectedVersion *int64) (*Listing, error) {
	query := d.db.WithContext(ctx).Model(&Listing{}).
		Where("listing_id = ? AND status = ?", listingID, StatusActive)
	if expectedVersion != nil {
		query = query.Where("version = ?", *expectedVersion)
	}

	res := query.
		Updates(map[string]interface{}{
			"status":     StatusCancelled,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("cancel listing: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return d.GetListing(ctx, listingID)
}

// UpdateByID applies a generic patch to a listing, always bumping the
// version. Returns nil when the listing does not exist.
func (d *Database) UpdateByID(ctx context.Context, listingID string, patch map[string]interface{}) (*Listing, error) {
	full := map[string]interface{}{
		"version":    gorm.Expr("version + 1"),
		"updated_at": time.Now(),
	}
	for k, v := range patch {
		full[k] = v
	}

	res := d.db.WithContext(ctx).Model(&Listing{}).
		Where("listing_id = ?", listingID).
		Updates(full)
	if res.Error != nil {
		return nil, fmt.Errorf("update listing: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return d.GetListing(ctx, listingID)
}

// ActiveByGuild returns active listings in a guild, cheapest first. An
// empty itemID returns all items.
func (d *Database) ActiveByGuild(ctx context.Context, guildID, itemID string, limit int) ([]Listing, error) {
	query := d.db.WithContext(ctx).
		Where("guild_id = ? AND status = ?", guildID, StatusActive).
		Order("price_per_unit ASC, created_at ASC")
	if itemID != "" {
		query = query.Where("item_id = ?", itemID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var listings []Listing
	if err := query.Find(&listings).Error; err != nil {
		return nil, fmt.Errorf("browse listings: %w", err)
	}
	return listings, nil
}

// BySeller returns a seller's listings in a guild, newest first.
func (d *Database) BySeller(ctx context.Context, guildID, sellerID string, activeOnly bool) ([]Listing, error) {
	query := d.db.WithContext(ctx).
		Where("guild_id = ? AND seller_id = ?", guildID, sellerID).
		Order("created_at DESC")
	if activeOnly {
		query = query.Where("status = ?", StatusActive)
	}

	var listings []Listing
	if err := query.Find(&listings).Error; err != nil {
		return nil, fmt.Errorf("fetch seller listings: %w", err)
	}
	return listings, nil
}

// CountActiveBySeller counts a seller's active listings, for the per-seller
// cap.
func (d *Database) CountActiveBySeller(ctx context.Context, guildID, sellerID string) (int64, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&Listing{}).
		Where("guild_id = ? AND seller_id = ? AND status = ?", guildID, sellerID, StatusActive).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count active listings: %w", err)
	}
	return count, nil
}

// ExpiredActive returns active listings whose expiry has passed.
func (d *Database) ExpiredActive(ctx context.Context, now time.Time, limit int) ([]Listing, error) {
	query := d.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", StatusActive, now).
		Order("expires_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var listings []Listing
	if err := query.Find(&listings).Error; err != nil {
		return nil, fmt.Errorf("fetch expired listings: %w", err)
	}
	return listings, nil
}
