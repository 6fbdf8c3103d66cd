// internal/tradelog/tradelog.go
package tradelog

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/avolkoff/solana-sentry/internal/engine"
)

// Log is an engine.TradeLog with a lifecycle and a query side used by
// the exporter.
type Log interface {
	engine.TradeLog
	Exits(ctx context.Context, since, until time.Time) ([]engine.CloseRecord, error)
	Close() error
}

// Open selects the trade log backend: Postgres when a URL is configured,
// the embedded SQLite file otherwise, and a no-op sink when persistence is
// disabled entirely.
func Open(ctx context.Context, postgresURL, sqlitePath string, logger *zap.Logger) (Log, error) {
	switch {
	case postgresURL != "":
		return NewPostgres(ctx, postgresURL, logger)
	case sqlitePath != "":
		return NewSQLite(sqlitePath, logger)
	default:
		logger.Warn("Trade persistence disabled")
		return Noop{}, nil
	}
}

// Noop discards all records.
type Noop struct{}

func (Noop) RecordOpen(context.Context, engine.OpenRecord) error   { return nil }
func (Noop) RecordClose(context.Context, engine.CloseRecord) error { return nil }
func (Noop) Close() error                                          { return nil }

func (Noop) Exits(context.Context, time.Time, time.Time) ([]engine.CloseRecord, error) {
	return nil, nil
}
