// internal/tradelog/postgres.go
package tradelog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/avolkoff/solana-sentry/internal/engine"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS trades (
    id           BIGSERIAL PRIMARY KEY,
    mint         TEXT NOT NULL,
    symbol       TEXT NOT NULL DEFAULT '',
    entry_price  DOUBLE PRECISION NOT NULL,
    token_amount DOUBLE PRECISION NOT NULL,
    amount_sol   DOUBLE PRECISION NOT NULL,
    tx_signature TEXT NOT NULL,
    opened_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS exits (
    id            BIGSERIAL PRIMARY KEY,
    mint          TEXT NOT NULL,
    symbol        TEXT NOT NULL DEFAULT '',
    entry_price   DOUBLE PRECISION NOT NULL,
    exit_price    DOUBLE PRECISION NOT NULL,
    close_percent DOUBLE PRECISION NOT NULL,
    pnl_percent   DOUBLE PRECISION NOT NULL,
    hold_seconds  BIGINT NOT NULL,
    reason        TEXT NOT NULL,
    tx_signature  TEXT NOT NULL,
    closed_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS exits_closed_at_idx ON exits (closed_at);
`

// Postgres persists trades in PostgreSQL through a pgx pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres connects, verifies the connection and applies the schema.
func NewPostgres(ctx context.Context, url string, logger *zap.Logger) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Info("📦 Trade log connected", zap.String("backend", "postgres"))
	return &Postgres{pool: pool, logger: logger.Named("tradelog")}, nil
}

func (p *Postgres) RecordOpen(ctx context.Context, rec engine.OpenRecord) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO trades (mint, symbol, entry_price, token_amount, amount_sol, tx_signature, opened_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.AssetID, rec.Symbol, rec.EntryPrice, rec.TokenAmount,
		rec.AmountQuote, rec.ConfirmationID, rec.OpenedAt,
	)
	return err
}

func (p *Postgres) RecordClose(ctx context.Context, rec engine.CloseRecord) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO exits (mint, symbol, entry_price, exit_price, close_percent, pnl_percent, hold_seconds, reason, tx_signature, closed_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.AssetID, rec.Symbol, rec.EntryPrice, rec.ExitPrice,
		rec.ClosePercent, rec.PnLPercent, int64(rec.HoldDuration.Seconds()),
		string(rec.Reason), rec.ConfirmationID, rec.ClosedAt,
	)
	return err
}

// Exits returns closed trades in [since, until), oldest first. Zero bounds
// mean unbounded.
func (p *Postgres) Exits(ctx context.Context, since, until time.Time) ([]engine.CloseRecord, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT mint, symbol, entry_price, exit_price, close_percent, pnl_percent, hold_seconds, reason, tx_signature, closed_at
         FROM exits
         WHERE ($1 OR closed_at >= $2) AND ($3 OR closed_at < $4)
         ORDER BY closed_at`,
		since.IsZero(), since, until.IsZero(), until,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []engine.CloseRecord
	for rows.Next() {
		var rec engine.CloseRecord
		var holdSeconds int64
		var reason string
		if err := rows.Scan(&rec.AssetID, &rec.Symbol, &rec.EntryPrice, &rec.ExitPrice,
			&rec.ClosePercent, &rec.PnLPercent, &holdSeconds, &reason,
			&rec.ConfirmationID, &rec.ClosedAt); err != nil {
			return nil, err
		}
		rec.HoldDuration = time.Duration(holdSeconds) * time.Second
		rec.Reason = engine.ExitReason(reason)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
