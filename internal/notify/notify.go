// internal/notify/notify.go
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/avolkoff/solana-sentry/internal/engine"
)

// Log writes events to the process logger. Used standalone when Telegram is
// not configured, and alongside it otherwise.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger.Named("events")}
}

func (l *Log) Notify(_ context.Context, event engine.Event) {
	fields := []zap.Field{
		zap.String("kind", string(event.Kind)),
		zap.String("asset", event.AssetID),
	}
	switch event.Kind {
	case engine.EventPositionOpened:
		fields = append(fields, zap.Float64("entry_price", event.EntryPrice))
		l.logger.Info("💰 Position opened", fields...)
	case engine.EventPartialClose, engine.EventPositionClosed:
		fields = append(fields,
			zap.String("reason", string(event.Reason)),
			zap.Float64("pnl_percent", event.PnLPercent))
		l.logger.Info("📈 Position close", fields...)
	case engine.EventEscalation:
		fields = append(fields, zap.String("message", event.Message))
		l.logger.Warn("🚨 Escalation", fields...)
	case engine.EventSummary:
		l.logger.Info("📊 Summary",
			zap.Int("trades", event.Stats.OpenClosed),
			zap.Float64("win_rate", event.Stats.WinRate),
			zap.Float64("pnl_total", event.Stats.PnLTotal))
	}
}

// Multi fans an event out to several sinks.
type Multi struct {
	sinks []engine.Notifier
}

func NewMulti(sinks ...engine.Notifier) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Notify(ctx context.Context, event engine.Event) {
	for _, sink := range m.sinks {
		sink.Notify(ctx, event)
	}
}
