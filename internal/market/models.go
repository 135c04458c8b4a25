package market

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/guildecon/economy-api/internal/types"
)

// Listing statuses. Transitions are one-directional: active listings move
// to sold_out or cancelled and terminal listings never reactivate.
const (
	StatusActive    = "active"
	StatusSoldOut   = "sold_out"
	StatusCancelled = "cancelled"
)

// Listing kinds mirror the catalog item kinds.
const (
	KindStackable = "stackable"
	KindInstance  = "instance"
)

// Listing is a marketplace listing holding escrowed units. The version
// counter increments on every successful mutation and is the
// compare-and-swap discriminator for listing updates.
type Listing struct {
	gorm.Model        `json:"-"`
	ListingID         string     `gorm:"uniqueIndex" json:"listing_id"`
	GuildID           string     `gorm:"index:idx_listings_browse,priority:1;index:idx_listings_seller,priority:1" json:"guild_id"`
	SellerID          string     `gorm:"index:idx_listings_seller,priority:2" json:"seller_id"`
	ItemID            string     `gorm:"index:idx_listings_browse,priority:2" json:"item_id"`
	Category          string     `json:"category"`
	ItemKind          string     `json:"item_kind"`
	CurrencyID        string     `json:"currency_id"`
	PricePerUnit      int64      `gorm:"index:idx_listings_browse,priority:3" json:"price_per_unit"`
	Quantity          int64      `json:"quantity"`
	EscrowedInstances string     `gorm:"type:text" json:"-"`
	Status            string     `gorm:"index:idx_listings_seller,priority:3" json:"status"`
	Version           int64      `json:"version"`
	ExpiresAt         *time.Time `gorm:"index" json:"expires_at,omitempty"`
}

// Instances decodes the escrowed instance list. Empty for stackable
// listings.
func (l *Listing) Instances() ([]types.ItemInstance, error) {
	if l.EscrowedInstances == "" {
		return nil, nil
	}
	var instances []types.ItemInstance
	if err := json.Unmarshal([]byte(l.EscrowedInstances), &instances); err != nil {
		return nil, fmt.Errorf("decode escrowed instances: %w", err)
	}
	return instances, nil
}

// EncodeInstances serializes an instance list for the escrow column.
func EncodeInstances(instances []types.ItemInstance) (string, error) {
	if len(instances) == 0 {
		return "", nil
	}
	data, err := json.Marshal(instances)
	if err != nil {
		return "", fmt.Errorf("encode escrowed instances: %w", err)
	}
	return string(data), nil
}

// ListRequest asks to create a listing. InstanceID selects a specific
// instance to escrow; when empty, instance-kind items escrow the oldest
// held instance.
type ListRequest struct {
	GuildID      string `json:"guild_id"`
	SellerID     string `json:"seller_id"`
	ItemID       string `json:"item_id" binding:"required"`
	Category     string `json:"category"`
	CurrencyID   string `json:"currency_id" binding:"required"`
	PricePerUnit int64  `json:"price_per_unit" binding:"required"`
	Quantity     int64  `json:"quantity" binding:"required"`
	InstanceID   string `json:"instance_id"`
}

// BuyRequest asks to purchase units from a listing.
type BuyRequest struct {
	GuildID   string `json:"guild_id"`
	BuyerID   string `json:"buyer_id"`
	ListingID string `json:"listing_id"`
	Quantity  int64  `json:"quantity" binding:"required"`
}

// CancelRequest asks to cancel an active listing. Override marks an actor
// with moderator rights cancelling someone else's listing.
type CancelRequest struct {
	GuildID   string `json:"guild_id"`
	ActorID   string `json:"actor_id"`
	ListingID string `json:"listing_id"`
	Override  bool   `json:"override"`
}

// Receipt reports the outcome of a successful purchase.
type Receipt struct {
	ListingID          string               `json:"listing_id"`
	ItemID             string               `json:"item_id"`
	Quantity           int64                `json:"quantity"`
	CurrencyID         string               `json:"currency_id"`
	Subtotal           int64                `json:"subtotal"`
	Tax                int64                `json:"tax"`
	Fee                int64                `json:"fee"`
	Total              int64                `json:"total"`
	SellerPayout       int64                `json:"seller_payout"`
	Instances          []types.ItemInstance `json:"instances,omitempty"`
	RemainingQuantity  int64                `json:"remaining_quantity"`
	ListingStatus      string               `json:"listing_status"`
	BuyerBalanceBefore int64                `json:"buyer_balance_before"`
	BuyerBalanceAfter  int64                `json:"buyer_balance_after"`
	CorrelationID      string               `json:"correlation_id"`
}
