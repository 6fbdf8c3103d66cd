// internal/tradelog/sqlite.go
package tradelog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/avolkoff/solana-sentry/internal/engine"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS trades (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    mint         TEXT NOT NULL,
    symbol       TEXT NOT NULL DEFAULT '',
    entry_price  REAL NOT NULL,
    token_amount REAL NOT NULL,
    amount_sol   REAL NOT NULL,
    tx_signature TEXT NOT NULL,
    opened_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS exits (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    mint          TEXT NOT NULL,
    symbol        TEXT NOT NULL DEFAULT '',
    entry_price   REAL NOT NULL,
    exit_price    REAL NOT NULL,
    close_percent REAL NOT NULL,
    pnl_percent   REAL NOT NULL,
    hold_seconds  INTEGER NOT NULL,
    reason        TEXT NOT NULL,
    tx_signature  TEXT NOT NULL,
    closed_at     TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS exits_closed_at_idx ON exits (closed_at);
`

// SQLite persists trades in a local file, the default when no Postgres
// URL is configured.
type SQLite struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLite(path string, logger *zap.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// modernc sqlite does not tolerate concurrent writers on one file.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Info("📦 Trade log opened", zap.String("backend", "sqlite"), zap.String("path", path))
	return &SQLite{db: db, logger: logger.Named("tradelog")}, nil
}

func (s *SQLite) RecordOpen(ctx context.Context, rec engine.OpenRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trades (mint, symbol, entry_price, token_amount, amount_sol, tx_signature, opened_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.AssetID, rec.Symbol, rec.EntryPrice, rec.TokenAmount,
		rec.AmountQuote, rec.ConfirmationID, rec.OpenedAt,
	)
	return err
}

func (s *SQLite) RecordClose(ctx context.Context, rec engine.CloseRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exits (mint, symbol, entry_price, exit_price, close_percent, pnl_percent, hold_seconds, reason, tx_signature, closed_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.AssetID, rec.Symbol, rec.EntryPrice, rec.ExitPrice,
		rec.ClosePercent, rec.PnLPercent, int64(rec.HoldDuration.Seconds()),
		string(rec.Reason), rec.ConfirmationID, rec.ClosedAt,
	)
	return err
}

// Exits returns closed trades in [since, until), oldest first. Zero bounds
// mean unbounded.
func (s *SQLite) Exits(ctx context.Context, since, until time.Time) ([]engine.CloseRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT mint, symbol, entry_price, exit_price, close_percent, pnl_percent, hold_seconds, reason, tx_signature, closed_at
         FROM exits
         WHERE (? OR closed_at >= ?) AND (? OR closed_at < ?)
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

func (s *SQLite) Close() error {
	return s.db.Close()
}
