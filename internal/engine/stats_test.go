package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newFakeStats() (*Stats, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	return newStatsAt(clock.Now), clock
}

func TestStatsWinLossCounting(t *testing.T) {
	stats, _ := newFakeStats()

	stats.RecordClose(12.5, true)
	stats.RecordClose(-4.0, true)
	stats.RecordClose(0.0, true) // breakeven counts as a loss

	snap := stats.Snapshot()
	assert.Equal(t, 1, snap.Wins)
	assert.Equal(t, 2, snap.Losses)
	assert.Equal(t, 3, snap.OpenClosed)
	assert.InDelta(t, 33.33, snap.WinRate, 0.01)
	assert.InDelta(t, 8.5, snap.PnLTotal, 1e-9)
	assert.InDelta(t, 12.5, snap.BestTrade, 1e-9)
	assert.InDelta(t, -4.0, snap.WorstTrade, 1e-9)
}

func TestStatsPartialCloseIsNoOp(t *testing.T) {
	stats, _ := newFakeStats()

	stats.RecordClose(50.0, false)
	stats.RecordClose(-50.0, false)

	snap := stats.Snapshot()
	assert.Zero(t, snap.Wins)
	assert.Zero(t, snap.Losses)
	assert.Zero(t, snap.OpenClosed)
	assert.Zero(t, snap.PnLTotal)
}

func TestStatsBestWorstSingleTrade(t *testing.T) {
	stats, _ := newFakeStats()

	// A single losing trade is both the best and the worst; the zero
	// value must not win the comparison.
	stats.RecordClose(-7.0, true)

	snap := stats.Snapshot()
	assert.InDelta(t, -7.0, snap.BestTrade, 1e-9)
	assert.InDelta(t, -7.0, snap.WorstTrade, 1e-9)
}

func TestStatsDailyRollover(t *testing.T) {
	stats, clock := newFakeStats()

	stats.RecordClose(10.0, true)
	clock.Advance(23 * time.Hour)
	stats.RecordClose(5.0, true)

	snap := stats.Snapshot()
	assert.InDelta(t, 15.0, snap.PnLToday, 1e-9, "still the same 24h window")

	clock.Advance(2 * time.Hour) // crosses the 24h boundary
	stats.RecordClose(3.0, true)

	snap = stats.Snapshot()
	assert.InDelta(t, 3.0, snap.PnLToday, 1e-9, "today window reset")
	assert.InDelta(t, 18.0, snap.PnLWeek, 1e-9, "week window still accumulating")
	assert.InDelta(t, 18.0, snap.PnLTotal, 1e-9, "lifetime total never resets")
	assert.Equal(t, 3, snap.OpenClosed)
}

func TestStatsWeeklyRollover(t *testing.T) {
	stats, clock := newFakeStats()

	stats.RecordClose(10.0, true)
	clock.Advance(8 * 24 * time.Hour)

	snap := stats.Snapshot()
	assert.Zero(t, snap.PnLToday)
	assert.Zero(t, snap.PnLWeek)
	assert.InDelta(t, 10.0, snap.PnLTotal, 1e-9)
	assert.Equal(t, 1, snap.Wins)
}

func TestStatsRolloverAfterLongGap(t *testing.T) {
	stats, clock := newFakeStats()
	start := clock.t

	// A multi-day gap steps the window boundaries forward in whole
	// periods so later closes land in the correct window.
	clock.Advance(49 * time.Hour)
	stats.RecordClose(2.0, true)

	snap := stats.Snapshot()
	assert.InDelta(t, 2.0, snap.PnLToday, 1e-9)
	assert.Equal(t, start, snap.StartedAt)
}

func TestStatsScanSignalOpenCounters(t *testing.T) {
	stats, _ := newFakeStats()

	stats.RecordScan()
	stats.RecordScan()
	stats.RecordSignal()
	stats.RecordOpen()

	snap := stats.Snapshot()
	assert.Equal(t, 2, snap.Scans)
	assert.Equal(t, 1, snap.Signals)
	assert.Equal(t, 1, snap.Trades)
}

func TestStatsConcurrentRecording(t *testing.T) {
	stats, _ := newFakeStats()

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				stats.RecordClose(1.0, true)
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	snap := stats.Snapshot()
	require.Equal(t, 800, snap.OpenClosed)
	assert.Equal(t, 800, snap.Wins)
	assert.InDelta(t, 800.0, snap.PnLTotal, 1e-6)
}
