// internal/engine/evaluator.go
package engine

import (
	"fmt"
	"time"
)

// ExitReason identifies which rule produced an exit decision.
type ExitReason string

const (
	ReasonEmergencyStop ExitReason = "EMERGENCY_STOP"
	ReasonStopLoss      ExitReason = "STOP_LOSS"
	ReasonTimeout       ExitReason = "TIMEOUT"
	ReasonTrailingStop  ExitReason = "TRAILING_STOP"
	ReasonShutdown      ExitReason = "SHUTDOWN"
)

// TakeProfitReason returns the reason for take-profit tier n (1-based).
func TakeProfitReason(n int) ExitReason {
	return ExitReason(fmt.Sprintf("TAKE_PROFIT_%d", n))
}

// ExitDecision instructs the controller to close part or all of a position.
// A nil *ExitDecision means hold.
type ExitDecision struct {
	Reason       ExitReason
	ClosePercent float64

	// Tier is the 1-based take-profit tier consumed by this decision,
	// zero for non-tier exits.
	Tier int
}

// Full reports whether the decision closes the entire remaining position.
func (d *ExitDecision) Full() bool {
	return d.ClosePercent >= 100
}

// Evaluate applies the exit rules to a position snapshot at the given price
// and time. It is pure: the snapshot is taken by value and never mutated, and
// calling it twice with the same inputs yields the same decision.
//
// Rules are checked in fixed priority order and the first match wins, so at
// most one decision is returned per call:
//
//  1. emergency stop
//  2. standard stop loss
//  3. max hold timeout
//  4. trailing stop
//  5. take-profit tiers, highest threshold first, sequentially gated
//
// The caller must refresh the position extrema and trailing flag from the
// same price before evaluating (Position.ObservePrice), since the trailing
// and tier checks read them.
func Evaluate(pos Position, price float64, now time.Time, params RiskParams) (*ExitDecision, error) {
	if pos.EntryPrice <= 0 {
		return nil, ErrInvalidPosition
	}

	pnl := pos.PnLPercent(price)

	if pnl <= params.EmergencyStopPercent {
		return &ExitDecision{Reason: ReasonEmergencyStop, ClosePercent: 100}, nil
	}

	if pnl <= params.StopLossPercent {
		return &ExitDecision{Reason: ReasonStopLoss, ClosePercent: 100}, nil
	}

	if params.MaxHold > 0 && pos.HoldDuration(now) >= params.MaxHold {
		if !params.TimeoutRequiresLoss || pnl < 0 {
			return &ExitDecision{Reason: ReasonTimeout, ClosePercent: 100}, nil
		}
	}

	if pos.TrailingActive && params.TrailingStopPercent < 0 {
		threshold := pos.HighestPrice * (1 + params.TrailingStopPercent/100)
		if price <= threshold {
			return &ExitDecision{Reason: ReasonTrailingStop, ClosePercent: 100}, nil
		}
	}

	// Highest tier first, but a tier only fires once every lower tier has
	// been consumed. Skipping tiers is deliberately disallowed, matching
	// the sequential profit-taking ladder.
	for i := len(params.TakeProfitTiers) - 1; i >= 0; i-- {
		if i >= len(pos.TiersTaken) || pos.TiersTaken[i] {
			continue
		}
		if pnl < params.TakeProfitTiers[i].ThresholdPercent {
			continue
		}
		if !lowerTiersTaken(pos.TiersTaken, i) {
			continue
		}
		return &ExitDecision{
			Reason:       TakeProfitReason(i + 1),
			ClosePercent: params.TakeProfitTiers[i].ClosePercent,
			Tier:         i + 1,
		}, nil
	}

	return nil, nil
}

func lowerTiersTaken(taken []bool, tier int) bool {
	for i := 0; i < tier; i++ {
		if !taken[i] {
			return false
		}
	}
	return true
}
