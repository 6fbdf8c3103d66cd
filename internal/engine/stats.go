// internal/engine/stats.go
package engine

import (
	"sync"
	"time"
)

// StatsSnapshot is an immutable view of the aggregate counters, taken after
// the update that a notification reports.
type StatsSnapshot struct {
	Scans      int       `json:"scans"`
	Signals    int       `json:"signals"`
	Trades     int       `json:"trades"`
	Wins       int       `json:"wins"`
	Losses     int       `json:"losses"`
	WinRate    float64   `json:"win_rate"`
	PnLTotal   float64   `json:"pnl_total"`
	PnLToday   float64   `json:"pnl_today"`
	PnLWeek    float64   `json:"pnl_week"`
	BestTrade  float64   `json:"best_trade"`
	WorstTrade float64   `json:"worst_trade"`
	OpenClosed int       `json:"closed_positions"`
	StartedAt  time.Time `json:"started_at"`
}

// Stats maintains process-wide trading counters. Wins and losses are marked
// only on full closes; a full close with P&L of exactly zero counts as a
// loss. Today/week windows roll over on elapsed wall-clock time and never
// touch the lifetime counters.
type Stats struct {
	mu sync.Mutex

	scans   int
	signals int
	trades  int
	wins    int
	losses  int
	closed  int

	pnlTotal float64
	pnlToday float64
	pnlWeek  float64

	bestTrade  float64
	worstTrade float64
	hasClosed  bool

	startedAt time.Time
	dayReset  time.Time
	weekReset time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewStats initializes the counters at process start.
func NewStats() *Stats {
	return newStatsAt(time.Now)
}

func newStatsAt(now func() time.Time) *Stats {
	t := now()
	return &Stats{
		startedAt: t,
		dayReset:  t,
		weekReset: t,
		now:       now,
	}
}

// RecordScan counts one discovery pass.
func (s *Stats) RecordScan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollover()
	s.scans++
}

// RecordSignal counts one candidate that passed the entry filters.
func (s *Stats) RecordSignal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollover()
	s.signals++
}

// RecordOpen counts one executed buy.
func (s *Stats) RecordOpen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollover()
	s.trades++
}

// RecordClose folds a close into the counters. Only full closes mark a win
// or loss and move the P&L windows; partial closes adjust position-level
// bookkeeping elsewhere and leave the aggregates untouched.
func (s *Stats) RecordClose(pnlPercent float64, full bool) {
	if !full {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollover()

	s.closed++
	if pnlPercent > 0 {
		s.wins++
	} else {
		s.losses++
	}

	s.pnlTotal += pnlPercent
	s.pnlToday += pnlPercent
	s.pnlWeek += pnlPercent

	if !s.hasClosed || pnlPercent > s.bestTrade {
		s.bestTrade = pnlPercent
	}
	if !s.hasClosed || pnlPercent < s.worstTrade {
		s.worstTrade = pnlPercent
	}
	s.hasClosed = true
}

// Snapshot returns the current counters after applying any pending window
// rollover.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollover()

	snap := StatsSnapshot{
		Scans:      s.scans,
		Signals:    s.signals,
		Trades:     s.trades,
		Wins:       s.wins,
		Losses:     s.losses,
		PnLTotal:   s.pnlTotal,
		PnLToday:   s.pnlToday,
		PnLWeek:    s.pnlWeek,
		BestTrade:  s.bestTrade,
		WorstTrade: s.worstTrade,
		OpenClosed: s.closed,
		StartedAt:  s.startedAt,
	}
	if s.closed > 0 {
		snap.WinRate = float64(s.wins) / float64(s.closed) * 100
	}
	return snap
}

// rollover resets the today window every 24h of elapsed time and the week
// window every 7 days. Lifetime counters are never reset. Caller holds mu.
func (s *Stats) rollover() {
	t := s.now()
	for t.Sub(s.dayReset) >= 24*time.Hour {
		s.pnlToday = 0
		s.dayReset = s.dayReset.Add(24 * time.Hour)
	}
	for t.Sub(s.weekReset) >= 7*24*time.Hour {
		s.pnlWeek = 0
		s.weekReset = s.weekReset.Add(7 * 24 * time.Hour)
	}
}
