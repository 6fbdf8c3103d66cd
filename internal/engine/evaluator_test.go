package engine

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() RiskParams {
	return RiskParams{
		StopLossPercent:      -10,
		EmergencyStopPercent: -25,
		TakeProfitTiers: []TakeProfitTier{
			{ThresholdPercent: 15, ClosePercent: 33},
			{ThresholdPercent: 30, ClosePercent: 50},
			{ThresholdPercent: 60, ClosePercent: 100},
		},
		TrailingActivationPercent: 20,
		TrailingStopPercent:       -8,
		MaxHold:                   time.Hour,
	}
}

func newTestPosition(t *testing.T, entryPrice float64, tiers int) *Position {
	t.Helper()
	pos, err := NewPosition("mint1", "TKN", entryPrice, 1000, time.Unix(1700000000, 0), tiers)
	require.NoError(t, err)
	return pos
}

func TestEvaluateStopLoss(t *testing.T) {
	params := testParams()
	pos := newTestPosition(t, 1.0, 3)

	// 15% drop is past the -10% stop but above the -25% emergency floor.
	pos.ObservePrice(0.85, params.TrailingActivationPercent)
	decision, err := Evaluate(*pos, 0.85, pos.EntryTime.Add(time.Minute), params)
	require.NoError(t, err)
	require.NotNil(t, decision)
	assert.Equal(t, ReasonStopLoss, decision.Reason)
	assert.Equal(t, 100.0, decision.ClosePercent)
	assert.True(t, decision.Full())
}

func TestEvaluateEmergencyStopBeatsStopLoss(t *testing.T) {
	params := testParams()
	pos := newTestPosition(t, 1.0, 3)

	// -30% satisfies both stops; emergency wins by priority.
	decision, err := Evaluate(*pos, 0.70, pos.EntryTime.Add(time.Minute), params)
	require.NoError(t, err)
	require.NotNil(t, decision)
	assert.Equal(t, ReasonEmergencyStop, decision.Reason)
}

func TestEvaluateTierLadder(t *testing.T) {
	params := testParams()
	pos := newTestPosition(t, 1.0, 3)
	now := pos.EntryTime.Add(time.Minute)

	// Tick 1: +16% consumes tier 1.
	pos.ObservePrice(1.16, params.TrailingActivationPercent)
	decision, err := Evaluate(*pos, 1.16, now, params)
	require.NoError(t, err)
	require.NotNil(t, decision)
	assert.Equal(t, TakeProfitReason(1), decision.Reason)
	assert.Equal(t, 33.0, decision.ClosePercent)
	assert.Equal(t, 1, decision.Tier)
	pos.TiersTaken[0] = true

	// Tick 2: +31% consumes tier 2.
	pos.ObservePrice(1.31, params.TrailingActivationPercent)
	decision, err = Evaluate(*pos, 1.31, now, params)
	require.NoError(t, err)
	require.NotNil(t, decision)
	assert.Equal(t, TakeProfitReason(2), decision.Reason)
	assert.Equal(t, 50.0, decision.ClosePercent)
	pos.TiersTaken[1] = true

	// Tick 3: +61% consumes tier 3, a full close.
	pos.ObservePrice(1.61, params.TrailingActivationPercent)
	decision, err = Evaluate(*pos, 1.61, now, params)
	require.NoError(t, err)
	require.NotNil(t, decision)
	assert.Equal(t, TakeProfitReason(3), decision.Reason)
	assert.True(t, decision.Full())
}

func TestEvaluateTierGatingBlocksSkips(t *testing.T) {
	params := testParams()
	pos := newTestPosition(t, 1.0, 3)
	now := pos.EntryTime.Add(time.Minute)

	// A jump straight to +65% still only unlocks tier 1: the trailing
	// stop is not yet active (extrema unchanged) and tiers 2 and 3 are
	// gated on tier 1.
	decision, err := Evaluate(*pos, 1.65, now, params)
	require.NoError(t, err)
	require.NotNil(t, decision)
	assert.Equal(t, TakeProfitReason(1), decision.Reason)
	assert.Equal(t, 1, decision.Tier)

	// With tier 1 taken the same price unlocks tier 2, not tier 3.
	pos.TiersTaken[0] = true
	decision, err = Evaluate(*pos, 1.65, now, params)
	require.NoError(t, err)
	require.NotNil(t, decision)
	assert.Equal(t, 2, decision.Tier)
}

func TestEvaluateTrailingStop(t *testing.T) {
	params := testParams()
	pos := newTestPosition(t, 1.0, 0)
	now := pos.EntryTime.Add(time.Minute)

	// Run-up to 1.25 arms the trailing stop (+25% >= +20% activation).
	pos.ObservePrice(1.25, params.TrailingActivationPercent)
	require.True(t, pos.TrailingActive)

	// 1.14 is below 1.25 * 0.92 = 1.15, so the trailing stop fires even
	// though P&L against entry is still +14%.
	pos.ObservePrice(1.14, params.TrailingActivationPercent)
	decision, err := Evaluate(*pos, 1.14, now, params)
	require.NoError(t, err)
	require.NotNil(t, decision)
	assert.Equal(t, ReasonTrailingStop, decision.Reason)
	assert.True(t, decision.Full())
}

func TestEvaluateTrailingNotArmedBelowActivation(t *testing.T) {
	params := testParams()
	pos := newTestPosition(t, 1.0, 0)
	now := pos.EntryTime.Add(time.Minute)

	// +10% never reaches the +20% activation; a pullback that would
	// violate a trailing threshold is just a hold.
	pos.ObservePrice(1.10, params.TrailingActivationPercent)
	require.False(t, pos.TrailingActive)
	pos.ObservePrice(1.00, params.TrailingActivationPercent)

	decision, err := Evaluate(*pos, 1.00, now, params)
	require.NoError(t, err)
	assert.Nil(t, decision)
}

func TestEvaluateTimeout(t *testing.T) {
	params := testParams()
	params.TimeoutRequiresLoss = true
	pos := newTestPosition(t, 1.0, 0)
	late := pos.EntryTime.Add(65 * time.Minute)

	// In profit after the deadline: the loss requirement blocks the exit.
	decision, err := Evaluate(*pos, 1.05, late, params)
	require.NoError(t, err)
	assert.Nil(t, decision)

	// Under water after the deadline: timeout fires.
	decision, err = Evaluate(*pos, 0.95, late, params)
	require.NoError(t, err)
	require.NotNil(t, decision)
	assert.Equal(t, ReasonTimeout, decision.Reason)
	assert.True(t, decision.Full())

	// Without the loss requirement the profitable position times out too.
	params.TimeoutRequiresLoss = false
	decision, err = Evaluate(*pos, 1.05, late, params)
	require.NoError(t, err)
	require.NotNil(t, decision)
	assert.Equal(t, ReasonTimeout, decision.Reason)
}

func TestEvaluateTimeoutDisabled(t *testing.T) {
	params := testParams()
	params.MaxHold = 0
	pos := newTestPosition(t, 1.0, 0)

	decision, err := Evaluate(*pos, 0.95, pos.EntryTime.Add(1000*time.Hour), params)
	require.NoError(t, err)
	assert.Nil(t, decision)
}

func TestEvaluateInvalidEntryPrice(t *testing.T) {
	params := testParams()
	pos := Position{AssetID: "mint1", EntryPrice: 0}

	_, err := Evaluate(pos, 1.0, time.Now(), params)
	assert.ErrorIs(t, err, ErrInvalidPosition)
}

func TestEvaluateIsPure(t *testing.T) {
	params := testParams()
	pos := newTestPosition(t, 1.0, 3)
	pos.ObservePrice(1.16, params.TrailingActivationPercent)
	now := pos.EntryTime.Add(time.Minute)

	before := snapshot(pos)
	first, err := Evaluate(*pos, 1.16, now, params)
	require.NoError(t, err)
	second, err := Evaluate(*pos, 1.16, now, params)
	require.NoError(t, err)

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, *first, *second, "same inputs must yield the same decision")
	assert.Equal(t, before, snapshot(pos), "evaluation must not mutate the position")
}

// TestEvaluateRandomWalkInvariants drives a position through random price
// paths and checks the structural invariants that must hold on every path:
// at most one decision per tick, tiers consumed strictly in order, extrema
// monotonic, and every stop producing a full close.
func TestEvaluateRandomWalkInvariants(t *testing.T) {
	params := testParams()
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 200; run++ {
		pos := newTestPosition(t, 1.0, len(params.TakeProfitTiers))
		price := 1.0
		now := pos.EntryTime

		for tick := 0; tick < 100; tick++ {
			price *= 1 + (rng.Float64()-0.5)*0.2
			if price < 0.01 {
				price = 0.01
			}
			now = now.Add(time.Minute)

			prevHigh := pos.HighestPrice
			prevLow := pos.LowestPrice
			wasTrailing := pos.TrailingActive
			pos.ObservePrice(price, params.TrailingActivationPercent)

			assert.GreaterOrEqual(t, pos.HighestPrice, prevHigh)
			assert.LessOrEqual(t, pos.LowestPrice, prevLow)
			if wasTrailing {
				assert.True(t, pos.TrailingActive, "trailing flag must never revert")
			}

			decision, err := Evaluate(*pos, price, now, params)
			require.NoError(t, err)
			if decision == nil {
				continue
			}

			switch decision.Reason {
			case ReasonEmergencyStop, ReasonStopLoss, ReasonTimeout, ReasonTrailingStop:
				assert.True(t, decision.Full())
			default:
				require.Positive(t, decision.Tier)
				require.True(t, lowerTiersTaken(pos.TiersTaken, decision.Tier-1),
					"tier %d fired with lower tiers untaken", decision.Tier)
				pos.TiersTaken[decision.Tier-1] = true
			}

			if decision.Full() {
				break
			}
		}
	}
}
