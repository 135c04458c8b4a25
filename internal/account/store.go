// Package account persists user economy documents and provides the
// optimistic transition primitive that every account mutation funnels
// through. Direct unconditional writes to the currencies and inventory
// columns are forbidden; contention is resolved by retry, never by locks.
package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/guildecon/economy-api/internal/types"
)

// Store wraps the accounts table.
type Store struct {
	db *gorm.DB
}

// NewStore creates an account store on the given database handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx returns a store bound to an open transaction. Used by the market
// service's transactional fast path.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

// Get retrieves an account row, or nil when none exists.
func (s *Store) Get(ctx context.Context, userID, guildID string) (*types.Account, error) {
	var acc types.Account
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND guild_id = ?", userID, guildID).
		First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch account: %w", err)
	}
	return &acc, nil
}

// GetOrCreate retrieves an account row, creating an empty document when the
// user has none in this guild yet.
func (s *Store) GetOrCreate(ctx context.Context, userID, guildID string) (*types.Account, error) {
	acc, err := s.Get(ctx, userID, guildID)
	if err != nil {
		return nil, err
	}
	if acc != nil {
		return acc, nil
	}

	fresh := &types.Account{
		UserID:     userID,
		GuildID:    guildID,
		Currencies: "{}",
		Inventory:  "{}",
	}
	if err := s.db.WithContext(ctx).Create(fresh).Error; err != nil {
		// A concurrent creator may have won the race on the unique index.
		existing, getErr := s.Get(ctx, userID, guildID)
		if getErr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return fresh, nil
}

// Snapshot loads and decodes the current state of an account, creating the
// account when absent.
func (s *Store) Snapshot(ctx context.Context, userID, guildID string) (*types.Snapshot, error) {
	acc, err := s.GetOrCreate(ctx, userID, guildID)
	if err != nil {
		return nil, err
	}
	return types.DecodeSnapshot(acc)
}

// SetRestricted flips the account's restricted flag. Restriction is a
// moderation action, not an economy mutation, so it bypasses the document
// CAS but still refuses to touch a missing row.
func (s *Store) SetRestricted(ctx context.Context, userID, guildID string, restricted bool) error {
	res := s.db.WithContext(ctx).Model(&types.Account{}).
		Where("user_id = ? AND guild_id = ?", userID, guildID).
		Updates(map[string]interface{}{
			"restricted": restricted,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("set restricted: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// commit conditionally writes the next document state. The WHERE clause
// matches the previous serialized currencies and inventory columns rather
// than a version counter, so independent call-sites sharing the account row
// only conflict when they actually touched the same sub-document bytes.
// A false return means another writer won the race.
func (s *Store) commit(ctx context.Context, prev *types.Account, next *types.Snapshot) (bool, error) {
	nextCur, nextInv, err := next.EncodeDocument()
	if err != nil {
		return false, err
	}

	res := s.db.WithContext(ctx).Model(&types.Account{}).
		Where("user_id = ? AND guild_id = ? AND currencies = ? AND inventory = ?",
			prev.UserID, prev.GuildID, prev.Currencies, prev.Inventory).
		Updates(map[string]interface{}{
			"currencies": nextCur,
			"inventory":  nextInv,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("commit account document: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
