// internal/engine/errors.go
package engine

import "errors"

var (
	// ErrInvalidPosition marks a position whose entry price is zero or
	// negative. Such a position cannot be evaluated and must not be
	// re-inserted without correction.
	ErrInvalidPosition = errors.New("invalid position: entry price must be positive")

	// ErrPriceUnavailable is returned by price feed adapters when no price
	// can be obtained right now. It is transient: the tick for that asset
	// is skipped and retried on the next cycle.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrCapacityExceeded is returned by the store when the configured
	// maximum number of concurrent open positions is reached.
	ErrCapacityExceeded = errors.New("position store at capacity")

	// ErrDuplicatePosition is returned by the store when a position for the
	// same asset is already open.
	ErrDuplicatePosition = errors.New("position already open for asset")

	// ErrTooManyLoopErrors is returned by the controller when the driving
	// loop itself keeps failing beyond the configured threshold. It signals
	// a graceful process shutdown, not a per-position problem.
	ErrTooManyLoopErrors = errors.New("too many consecutive loop errors")
)
