package market

import (
	"fmt"

	"github.com/guildecon/economy-api/internal/types"
)

// Market error kinds. Validation-class errors wrap types.ErrValidation and
// conflict-class errors wrap types.ErrConflict so callers can match either
// the specific kind or the class.
var (
	ErrMarketDisabled  = fmt.Errorf("marketplace is disabled in this guild: %w", types.ErrValidation)
	ErrItemNotTradable = fmt.Errorf("item is not tradable: %w", types.ErrValidation)
	ErrInvalidCategory = fmt.Errorf("item does not belong to the requested category: %w", types.ErrValidation)
	ErrInvalidPrice    = fmt.Errorf("price is outside the allowed bounds: %w", types.ErrValidation)
	ErrInvalidQuantity = fmt.Errorf("invalid listing quantity: %w", types.ErrValidation)
	ErrSelfPurchase    = fmt.Errorf("cannot buy your own listing: %w", types.ErrValidation)
	ErrListingCap      = fmt.Errorf("active listing cap reached: %w", types.ErrValidation)
	ErrCancelForbidden = fmt.Errorf("only the seller or a moderator may cancel: %w", types.ErrValidation)

	ErrListingNotFound             = types.ErrListingNotFound
	ErrListingNotActive            = types.ErrListingNotActive
	ErrInsufficientListingQuantity = types.ErrInsufficientListingQuantity

	// Flow-specific conflict errors returned when optimistic retries are
	// exhausted, so callers can tell "lost the race" from a rule violation.
	ErrListConflict   = fmt.Errorf("listing creation lost too many write races: %w", types.ErrConflict)
	ErrBuyConflict    = fmt.Errorf("purchase lost too many write races: %w", types.ErrConflict)
	ErrCancelConflict = fmt.Errorf("cancellation lost too many write races: %w", types.ErrConflict)
)
