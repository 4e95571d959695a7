package tracker

import "errors"

// Sync failures are terminal for the attempt; retry is the caller's call.
var (
	// ErrIdentityNotFound means the vanity name or Steam ID resolved to no
	// profile. No state changes.
	ErrIdentityNotFound = errors.New("steam identity not found")

	// ErrEmptyInventory means normalization produced zero priceable items.
	// No sync is performed and no state changes.
	ErrEmptyInventory = errors.New("inventory contains no priceable items")

	// ErrPriceFetchIncomplete means at least one concurrent price lookup
	// failed. The whole sync is aborted and the store is untouched.
	ErrPriceFetchIncomplete = errors.New("could not fetch all item prices")
)
