// internal/engine/controller.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ControllerConfig wires the controller's collaborators and tuning knobs.
type ControllerConfig struct {
	Store    *Store
	Stats    *Stats
	Feed     PriceFeed
	Venue    ExecutionVenue
	Notifier Notifier
	TradeLog TradeLog
	Logger   *zap.Logger

	Params RiskParams

	// TickInterval is the cadence of position checks.
	TickInterval time.Duration

	// Workers bounds how many positions are evaluated concurrently per
	// tick. Mutations to a single position stay serialized regardless.
	Workers int

	// ExecTimeout bounds a single execution-venue call.
	ExecTimeout time.Duration

	// MaxExecFailures is the number of consecutive failed close attempts
	// for one position after which an operator escalation is sent. The
	// position is never auto-abandoned.
	MaxExecFailures int

	// MaxLoopErrors is the process-level circuit breaker: this many
	// consecutive failed ticks shut the controller down.
	MaxLoopErrors int

	// ShutdownTimeout bounds the best-effort final close pass.
	ShutdownTimeout time.Duration
}

// Controller drives the per-position lifecycle: pull price, refresh extrema,
// evaluate exit rules, execute the decision, update stats, persist and
// notify. Per-position failures are isolated; one asset's problem never
// blocks the others in the same tick.
type Controller struct {
	store    *Store
	stats    *Stats
	feed     PriceFeed
	venue    ExecutionVenue
	notifier Notifier
	tradeLog TradeLog
	logger   *zap.Logger

	params          RiskParams
	tickInterval    time.Duration
	workers         int
	execTimeout     time.Duration
	maxExecFailures int
	maxLoopErrors   int
	shutdownTimeout time.Duration

	// openMu serializes opens so the capacity/duplicate check and the buy
	// that follows act as one step.
	openMu sync.Mutex

	now func() time.Time
}

// NewController creates a lifecycle controller.
func NewController(cfg *ControllerConfig) (*Controller, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid risk params: %w", err)
	}
	if cfg.TickInterval <= 0 {
		return nil, errors.New("tick interval must be positive")
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	execTimeout := cfg.ExecTimeout
	if execTimeout <= 0 {
		execTimeout = 60 * time.Second
	}
	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}

	return &Controller{
		store:           cfg.Store,
		stats:           cfg.Stats,
		feed:            cfg.Feed,
		venue:           cfg.Venue,
		notifier:        cfg.Notifier,
		tradeLog:        cfg.TradeLog,
		logger:          cfg.Logger.Named("controller"),
		params:          cfg.Params,
		tickInterval:    cfg.TickInterval,
		workers:         workers,
		execTimeout:     execTimeout,
		maxExecFailures: cfg.MaxExecFailures,
		maxLoopErrors:   cfg.MaxLoopErrors,
		shutdownTimeout: shutdownTimeout,
		now:             time.Now,
	}, nil
}

// Run drives ticks until the context is cancelled or the loop circuit
// breaker trips. On shutdown every remaining position gets a best-effort
// final close attempt; nothing is silently orphaned.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("🚦 Position controller started",
		zap.Duration("tick_interval", c.tickInterval),
		zap.Int("workers", c.workers))

	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()

	consecutive := 0
	for {
		select {
		case <-ctx.Done():
			c.closeAllOnShutdown()
			return ctx.Err()

		case <-ticker.C:
			if err := c.Tick(ctx); err != nil {
				consecutive++
				c.logger.Error("Tick failed",
					zap.Error(err),
					zap.Int("consecutive_errors", consecutive))
				if c.maxLoopErrors > 0 && consecutive >= c.maxLoopErrors {
					c.closeAllOnShutdown()
					return fmt.Errorf("%w after %d ticks: %v", ErrTooManyLoopErrors, consecutive, err)
				}
				continue
			}
			consecutive = 0
		}
	}
}

// Tick evaluates every open position once. Positions are processed
// concurrently up to the worker limit; the store serializes mutation per
// asset. Tick reports an error only when every position in the pass failed,
// which feeds the loop circuit breaker.
func (c *Controller) Tick(ctx context.Context) error {
	ids := c.store.AssetIDs()
	if len(ids) == 0 {
		return nil
	}

	var (
		mu   sync.Mutex
		errs []error
	)

	g := new(errgroup.Group)
	g.SetLimit(c.workers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := c.checkPosition(ctx, id); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
				mu.Unlock()
			}
			// Never cancel sibling positions.
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 && len(errs) == len(ids) {
		return errors.Join(errs...)
	}
	return nil
}

// checkPosition runs one load-decide-mutate critical section for an asset.
func (c *Controller) checkPosition(ctx context.Context, assetID string) error {
	price, err := c.feed.GetPrice(ctx, assetID)
	if err != nil {
		// Transient by contract: skip this asset for the tick.
		c.logger.Warn("⏭  Price unavailable, skipping tick",
			zap.String("asset", assetID),
			zap.Error(err))
		return nil
	}

	var invalid error
	_, err = c.store.Update(assetID, func(p *Position) error {
		// Extrema and the trailing flag must reflect this price before
		// the rules run; the trailing and tier checks read them.
		p.ObservePrice(price, c.params.TrailingActivationPercent)

		decision, evalErr := Evaluate(snapshot(p), price, c.now(), c.params)
		if evalErr != nil {
			invalid = evalErr
			return evalErr
		}
		if decision == nil {
			return nil
		}
		return c.executeDecision(ctx, p, decision, price)
	})

	if invalid != nil {
		// Programmer-error class: the position cannot ever be evaluated.
		// Drop it and tell the operator rather than spinning on it.
		c.store.Remove(assetID)
		c.escalate(ctx, assetID, fmt.Sprintf("position dropped: %v", invalid))
		return invalid
	}
	return err
}

// executeDecision realizes a close on the venue and applies the bookkeeping.
// Called inside the per-asset critical section, so an applied decision can
// never be re-submitted. A venue failure leaves the position untouched; the
// evaluator will re-derive the decision on the next tick.
func (c *Controller) executeDecision(ctx context.Context, p *Position, decision *ExitDecision, price float64) error {
	c.logger.Info("🎯 Exit decision",
		zap.String("asset", p.AssetID),
		zap.String("reason", string(decision.Reason)),
		zap.Float64("close_percent", decision.ClosePercent),
		zap.Float64("pnl_percent", p.PnLPercent(price)))

	// Detached from tick cancellation: an in-flight close runs to
	// completion even when shutdown starts mid-tick.
	execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.execTimeout)
	defer cancel()

	exec, err := c.venue.ClosePosition(execCtx, p.AssetID, decision.ClosePercent)
	if err != nil {
		p.ExecFailures++
		c.logger.Error("❌ Close execution failed, will retry next tick",
			zap.String("asset", p.AssetID),
			zap.String("reason", string(decision.Reason)),
			zap.Int("consecutive_failures", p.ExecFailures),
			zap.Error(err))
		if c.maxExecFailures > 0 && p.ExecFailures%c.maxExecFailures == 0 {
			c.escalate(ctx, p.AssetID,
				fmt.Sprintf("%d consecutive close failures (%s): %v", p.ExecFailures, decision.Reason, err))
		}
		return nil
	}
	p.ExecFailures = 0

	exitPrice := exec.Price
	if exitPrice <= 0 {
		exitPrice = price
	}

	c.applyClose(ctx, p, decision, exitPrice, exec.ConfirmationID)
	return nil
}

// applyClose updates the position, the aggregate stats, the trade log and
// the notification sink, in that order. Stats are updated before the
// notification so the notification reports the counters it claims.
func (c *Controller) applyClose(ctx context.Context, p *Position, decision *ExitDecision, exitPrice float64, confirmationID string) {
	now := c.now()
	pnlPct := p.PnLPercent(exitPrice)
	closedSize := p.RemainingSize * decision.ClosePercent / 100

	p.RealizedPnL += (exitPrice - p.EntryPrice) * closedSize
	if decision.Tier > 0 && decision.Tier <= len(p.TiersTaken) {
		p.TiersTaken[decision.Tier-1] = true
	}
	p.RemainingSize -= closedSize

	full := decision.Full() || p.RemainingSize <= 1e-9
	if full {
		p.RemainingSize = 0
	}

	c.stats.RecordClose(pnlPct, full)

	rec := CloseRecord{
		AssetID:        p.AssetID,
		Symbol:         p.Symbol,
		EntryPrice:     p.EntryPrice,
		ExitPrice:      exitPrice,
		ClosePercent:   decision.ClosePercent,
		PnLPercent:     pnlPct,
		HoldDuration:   p.HoldDuration(now),
		Reason:         decision.Reason,
		ConfirmationID: confirmationID,
		ClosedAt:       now,
	}
	if err := c.tradeLog.RecordClose(ctx, rec); err != nil {
		c.logger.Error("Trade log write failed",
			zap.String("asset", p.AssetID),
			zap.Error(err))
	}

	kind := EventPartialClose
	if full {
		kind = EventPositionClosed
	}
	c.notifier.Notify(ctx, Event{
		Kind:       kind,
		AssetID:    p.AssetID,
		Symbol:     p.Symbol,
		Reason:     decision.Reason,
		PnLPercent: pnlPct,
		EntryPrice: p.EntryPrice,
		ExitPrice:  exitPrice,
		Stats:      c.stats.Snapshot(),
		Timestamp:  now,
	})

	c.logger.Info("✅ Close applied",
		zap.String("asset", p.AssetID),
		zap.String("reason", string(decision.Reason)),
		zap.Float64("pnl_percent", pnlPct),
		zap.Float64("remaining_size", p.RemainingSize),
		zap.Bool("full", full))
}

// OpenPosition buys the asset and starts tracking it. The capacity and
// duplicate checks run before the buy so the engine never holds a token it
// cannot track; CapacityExceeded and DuplicatePosition surface to the
// caller.
func (c *Controller) OpenPosition(ctx context.Context, assetID, symbol string, amountQuote float64) (Position, error) {
	c.openMu.Lock()
	defer c.openMu.Unlock()

	if _, exists := c.store.Get(assetID); exists {
		return Position{}, ErrDuplicatePosition
	}
	if c.store.Len() >= c.store.Capacity() {
		return Position{}, ErrCapacityExceeded
	}

	execCtx, cancel := context.WithTimeout(ctx, c.execTimeout)
	defer cancel()

	exec, err := c.venue.Buy(execCtx, assetID, amountQuote)
	if err != nil {
		return Position{}, fmt.Errorf("buy failed: %w", err)
	}

	entryPrice := exec.Price
	if entryPrice <= 0 && exec.TokenAmount > 0 {
		entryPrice = amountQuote / exec.TokenAmount
	}

	now := c.now()
	pos, err := NewPosition(assetID, symbol, entryPrice, exec.TokenAmount, now, len(c.params.TakeProfitTiers))
	if err != nil {
		return Position{}, fmt.Errorf("open %s: %w", assetID, err)
	}
	if err := c.store.Insert(pos); err != nil {
		return Position{}, err
	}

	c.stats.RecordOpen()

	if err := c.tradeLog.RecordOpen(ctx, OpenRecord{
		AssetID:        assetID,
		Symbol:         symbol,
		EntryPrice:     entryPrice,
		TokenAmount:    exec.TokenAmount,
		AmountQuote:    amountQuote,
		ConfirmationID: exec.ConfirmationID,
		OpenedAt:       now,
	}); err != nil {
		c.logger.Error("Trade log write failed",
			zap.String("asset", assetID),
			zap.Error(err))
	}

	c.notifier.Notify(ctx, Event{
		Kind:       EventPositionOpened,
		AssetID:    assetID,
		Symbol:     symbol,
		EntryPrice: entryPrice,
		Stats:      c.stats.Snapshot(),
		Timestamp:  now,
	})

	c.logger.Info("💰 Position opened",
		zap.String("asset", assetID),
		zap.Float64("entry_price", entryPrice),
		zap.Float64("amount_quote", amountQuote),
		zap.String("confirmation", exec.ConfirmationID))

	return snapshot(pos), nil
}

// closeAllOnShutdown makes one final close attempt per open position. Runs
// on a fresh context since the parent is already cancelled.
func (c *Controller) closeAllOnShutdown() {
	ids := c.store.AssetIDs()
	if len(ids) == 0 {
		return
	}

	c.logger.Info("🛑 Shutdown: closing remaining positions", zap.Int("count", len(ids)))

	ctx, cancel := context.WithTimeout(context.Background(), c.shutdownTimeout)
	defer cancel()

	for _, id := range ids {
		id := id
		_, err := c.store.Update(id, func(p *Position) error {
			decision := &ExitDecision{Reason: ReasonShutdown, ClosePercent: 100}
			return c.executeDecision(ctx, p, decision, p.EntryPrice)
		})
		if err != nil {
			c.logger.Error("Final close failed", zap.String("asset", id), zap.Error(err))
		}
	}
}

// escalate tells the operator about a condition that needs a human.
func (c *Controller) escalate(ctx context.Context, assetID, message string) {
	c.logger.Warn("🚨 Escalation", zap.String("asset", assetID), zap.String("message", message))
	c.notifier.Notify(ctx, Event{
		Kind:      EventEscalation,
		AssetID:   assetID,
		Message:   message,
		Stats:     c.stats.Snapshot(),
		Timestamp: c.now(),
	})
}
