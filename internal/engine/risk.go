// internal/engine/risk.go
package engine

import (
	"errors"
	"fmt"
	"time"
)

// TakeProfitTier pairs a P&L threshold with the share of the remaining
// position to close when the threshold is reached.
type TakeProfitTier struct {
	ThresholdPercent float64
	ClosePercent     float64
}

// RiskParams is the validated, immutable risk configuration handed to the
// evaluator. Percentages follow the sign convention of the trading variants:
// stop levels are negative, profit thresholds positive.
type RiskParams struct {
	// StopLossPercent closes the full position when P&L falls to or below
	// it (e.g. -10).
	StopLossPercent float64

	// EmergencyStopPercent is the catastrophic floor below the standard
	// stop loss (e.g. -25). Checked strictly before the stop loss so a
	// crash is attributed to EMERGENCY_STOP, not STOP_LOSS.
	EmergencyStopPercent float64

	// TakeProfitTiers in ascending threshold order. Tiers are consumed
	// sequentially: tier n requires tiers 1..n-1 already taken.
	TakeProfitTiers []TakeProfitTier

	TrailingActivationPercent float64
	TrailingStopPercent       float64

	// MaxHold closes positions held too long; zero disables the timeout.
	MaxHold time.Duration

	// TimeoutRequiresLoss makes the timeout exit apply only while the
	// position is under water.
	TimeoutRequiresLoss bool
}

// Validate checks internal consistency of the risk parameters.
func (r RiskParams) Validate() error {
	if r.StopLossPercent >= 0 {
		return errors.New("stop_loss_percent must be negative")
	}
	if r.EmergencyStopPercent >= 0 {
		return errors.New("emergency_stop_percent must be negative")
	}
	if r.EmergencyStopPercent > r.StopLossPercent {
		return errors.New("emergency_stop_percent must be at or below stop_loss_percent")
	}
	if r.TrailingStopPercent > 0 {
		return errors.New("trailing_stop_percent must be zero or negative")
	}
	if r.TrailingActivationPercent < 0 {
		return errors.New("trailing_activation_percent must not be negative")
	}
	prev := 0.0
	for i, tier := range r.TakeProfitTiers {
		if tier.ThresholdPercent <= prev {
			return fmt.Errorf("take profit tier %d: thresholds must be positive and strictly ascending", i+1)
		}
		if tier.ClosePercent <= 0 || tier.ClosePercent > 100 {
			return fmt.Errorf("take profit tier %d: close percent must be in (0, 100]", i+1)
		}
		prev = tier.ThresholdPercent
	}
	if r.MaxHold < 0 {
		return errors.New("max_hold must not be negative")
	}
	return nil
}
