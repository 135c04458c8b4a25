package types

import "errors"

// Shared error kinds for the economy engine. Services wrap these with
// flow-specific context; callers match with errors.Is.
var (
	// ErrValidation covers bad input (price, quantity, category) detected
	// before any storage access.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientFunds is returned when a currency cost cannot be
	// satisfied without going into debt.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientInventory is returned when an item cost exceeds the
	// held quantity.
	ErrInsufficientInventory = errors.New("insufficient inventory")

	// ErrAccountRestricted is returned for blocked or banned accounts,
	// checked before any mutation.
	ErrAccountRestricted = errors.New("account restricted")

	// ErrCapacityExceeded is returned when the destination inventory cannot
	// hold the result of an operation.
	ErrCapacityExceeded = errors.New("inventory capacity exceeded")

	// ErrRateLimited is returned while an action cooldown is active.
	ErrRateLimited = errors.New("rate limited")

	// ErrListingNotFound is returned when a listing id resolves to nothing
	// in the caller's guild.
	ErrListingNotFound = errors.New("listing not found")

	// ErrListingNotActive is returned when a listing exists but is already
	// terminal (sold out or cancelled).
	ErrListingNotActive = errors.New("listing is not active")

	// ErrInsufficientListingQuantity is returned when a purchase asks for
	// more units than the listing still holds.
	ErrInsufficientListingQuantity = errors.New("listing has fewer units than requested")

	// ErrConflict is returned once optimistic retries are exhausted.
	ErrConflict = errors.New("optimistic write conflict")

	// ErrTransactionFailed wraps unexpected storage-layer failures.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrTransactionsUnsupported signals that the store cannot run
	// multi-document transactions in this deployment. It is handled
	// internally by the market service and never reaches callers.
	ErrTransactionsUnsupported = errors.New("transactions not supported")
)
