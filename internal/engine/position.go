// internal/engine/position.go
package engine

import "time"

// Position is an open (or partially closed) trade tracked by the engine.
//
// EntryPrice is fixed at creation and never mutated afterwards; every P&L
// percentage is computed against it. HighestPrice only ever increases and
// LowestPrice only ever decreases. TrailingActive latches on once armed and
// never reverts.
type Position struct {
	AssetID    string
	Symbol     string
	EntryPrice float64
	EntryTime  time.Time

	// InitialSize and RemainingSize are in token units. RemainingSize
	// decreases on partial closes and reaches zero exactly at full close.
	InitialSize   float64
	RemainingSize float64

	HighestPrice   float64
	LowestPrice    float64
	TrailingActive bool

	// TiersTaken[i] records whether take-profit tier i+1 has been consumed.
	// Flags are set at most once and only in ascending tier order.
	TiersTaken []bool

	// RealizedPnL accumulates quote-currency profit from partial closes.
	RealizedPnL float64

	// ExecFailures counts consecutive failed close attempts; reset on the
	// first successful execution.
	ExecFailures int
}

// NewPosition creates a position at the given entry. The entry price doubles
// as the initial value for both running extrema, so the extrema invariant
// holds before the first price observation.
func NewPosition(assetID, symbol string, entryPrice, size float64, entryTime time.Time, tiers int) (*Position, error) {
	if entryPrice <= 0 {
		return nil, ErrInvalidPosition
	}
	return &Position{
		AssetID:       assetID,
		Symbol:        symbol,
		EntryPrice:    entryPrice,
		EntryTime:     entryTime,
		InitialSize:   size,
		RemainingSize: size,
		HighestPrice:  entryPrice,
		LowestPrice:   entryPrice,
		TiersTaken:    make([]bool, tiers),
	}, nil
}

// ObservePrice refreshes the running extrema and arms the trailing stop once
// P&L reaches the activation threshold. Must be called before evaluating exit
// rules for the same price, since the trailing check reads HighestPrice.
func (p *Position) ObservePrice(price, trailingActivationPct float64) {
	if price > p.HighestPrice {
		p.HighestPrice = price
	}
	if price < p.LowestPrice {
		p.LowestPrice = price
	}
	if !p.TrailingActive && trailingActivationPct > 0 {
		if p.PnLPercent(price) >= trailingActivationPct {
			p.TrailingActive = true
		}
	}
}

// PnLPercent returns the percentage change of price against the entry price.
// The entry price is the invariant denominator.
func (p *Position) PnLPercent(price float64) float64 {
	return (price - p.EntryPrice) / p.EntryPrice * 100
}

// HoldDuration returns how long the position has been open as of now.
func (p *Position) HoldDuration(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}

// NextTier returns the index of the lowest take-profit tier not yet taken,
// or -1 when all tiers are consumed.
func (p *Position) NextTier() int {
	for i, taken := range p.TiersTaken {
		if !taken {
			return i
		}
	}
	return -1
}
