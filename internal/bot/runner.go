// internal/bot/runner.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/avolkoff/solana-sentry/internal/config"
	"github.com/avolkoff/solana-sentry/internal/discovery"
	"github.com/avolkoff/solana-sentry/internal/engine"
	"github.com/avolkoff/solana-sentry/internal/feed"
	"github.com/avolkoff/solana-sentry/internal/notify"
	"github.com/avolkoff/solana-sentry/internal/rpcpool"
	"github.com/avolkoff/solana-sentry/internal/tradelog"
	"github.com/avolkoff/solana-sentry/internal/venue"
	"github.com/avolkoff/solana-sentry/internal/wallet"
)

// Runner assembles the full trading stack from config and supervises it:
// the exit controller, the optional pump.fun discovery listener and the
// daily summary job all run under one errgroup.
type Runner struct {
	cfg       *config.Config
	logger    *zap.Logger
	sessionID string

	store      *engine.Store
	stats      *engine.Stats
	controller *engine.Controller
	listener   *discovery.Listener
	notifier   engine.Notifier
	trades     tradelog.Log
	cron       *cron.Cron
}

func NewRunner(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Runner, error) {
	w, err := wallet.New(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	logger.Info("🔑 Wallet loaded", zap.String("pubkey", w.String()))

	rpcClient, err := rpcpool.New(cfg.RPCList, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build RPC pool: %w", err)
	}
	if healthy := rpcClient.HealthCheck(ctx); healthy == 0 {
		logger.Warn("⚠️ No RPC endpoint answered the health check")
	}

	priceFeed := feed.NewFallback(logger,
		feed.NewJupiterFeed(2, logger),
		feed.NewDexScreenerFeed(2, logger),
	)

	execVenue := venue.NewJupiter(rpcClient, w, venue.Config{
		SlippageBps:         cfg.SlippageBps,
		PriorityFeeLamports: cfg.PriorityFeeLamports,
	}, logger)

	sinks := []engine.Notifier{notify.NewLog(logger)}
	if cfg.TelegramToken != "" {
		sinks = append(sinks, notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, logger))
	}
	notifier := notify.NewMulti(sinks...)

	trades, err := tradelog.Open(ctx, cfg.PostgresURL, cfg.SQLitePath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open trade log: %w", err)
	}

	store := engine.NewStore(cfg.MaxPositions, logger)
	stats := engine.NewStats()

	controller, err := engine.NewController(&engine.ControllerConfig{
		Store:           store,
		Stats:           stats,
		Feed:            priceFeed,
		Venue:           execVenue,
		Notifier:        notifier,
		TradeLog:        trades,
		Logger:          logger,
		Params:          cfg.RiskParams(),
		TickInterval:    cfg.TickInterval(),
		Workers:         cfg.Workers,
		MaxExecFailures: cfg.MaxExecFailures,
		MaxLoopErrors:   cfg.MaxLoopErrors,
	})
	if err != nil {
		trades.Close()
		return nil, fmt.Errorf("failed to build controller: %w", err)
	}

	r := &Runner{
		cfg:        cfg,
		logger:     logger.Named("runner"),
		sessionID:  uuid.NewString(),
		store:      store,
		stats:      stats,
		controller: controller,
		notifier:   notifier,
		trades:     trades,
	}

	if cfg.DiscoveryEnabled {
		r.listener = discovery.NewListener(cfg.WebSocketURL, rpcClient, logger)
	}
	if cfg.SummarySchedule != "" {
		r.cron = cron.New()
		if _, err := r.cron.AddFunc(cfg.SummarySchedule, r.emitSummary); err != nil {
			trades.Close()
			return nil, fmt.Errorf("invalid summary schedule %q: %w", cfg.SummarySchedule, err)
		}
	}

	return r, nil
}

// Run blocks until ctx is cancelled or the controller gives up. The trade
// log is closed after the controller's final close pass so shutdown exits
// still get persisted.
func (r *Runner) Run(ctx context.Context) error {
	defer r.trades.Close()

	if r.cron != nil {
		r.cron.Start()
		defer r.cron.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return r.controller.Run(gctx)
	})

	if r.listener != nil {
		g.Go(func() error {
			return r.listener.Run(gctx)
		})
		g.Go(func() error {
			r.consumeCandidates(gctx)
			return nil
		})
	}

	r.logger.Info("🚀 Sentry running",
		zap.String("session", r.sessionID),
		zap.Int("max_positions", r.cfg.MaxPositions),
		zap.Bool("discovery", r.cfg.DiscoveryEnabled))

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		r.logger.Info("👋 Sentry stopped")
		return nil
	}
	return err
}

// consumeCandidates turns discovered mints into positions. Capacity and
// duplicate rejections are routine here, everything else is logged.
func (r *Runner) consumeCandidates(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case candidate, ok := <-r.listener.Candidates():
			if !ok {
				return
			}
			r.stats.RecordScan()
			r.stats.RecordSignal()

			pos, err := r.controller.OpenPosition(ctx, candidate.Mint, shortSymbol(candidate.Mint), r.cfg.BuyAmountSOL)
			switch {
			case err == nil:
				r.logger.Info("🎯 Sniped new token",
					zap.String("mint", pos.AssetID),
					zap.Float64("entry_price", pos.EntryPrice))
			case errors.Is(err, engine.ErrDuplicatePosition), errors.Is(err, engine.ErrCapacityExceeded):
				r.logger.Debug("Skipping candidate", zap.String("mint", candidate.Mint), zap.Error(err))
			default:
				r.logger.Warn("Buy failed", zap.String("mint", candidate.Mint), zap.Error(err))
			}
		}
	}
}

func (r *Runner) emitSummary() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	snapshot := r.stats.Snapshot()
	r.notifier.Notify(ctx, engine.Event{
		Kind:      engine.EventSummary,
		Message:   "Daily trading summary",
		Stats:     snapshot,
		Timestamp: time.Now(),
	})
}

func shortSymbol(mint string) string {
	if len(mint) <= 8 {
		return mint
	}
	return mint[:8]
}
