// internal/engine/collaborators.go
package engine

import (
	"context"
	"time"
)

// PriceFeed supplies a best-effort current price per asset. Transient
// problems are reported as ErrPriceUnavailable (possibly wrapped); the
// controller skips the asset for that tick and retries on the next one.
type PriceFeed interface {
	GetPrice(ctx context.Context, assetID string) (float64, error)
}

// Execution describes a confirmed swap on the venue.
type Execution struct {
	// ConfirmationID is the transaction signature (or an equivalent
	// venue-side id) of the confirmed swap.
	ConfirmationID string

	// Price is the effective per-token price of the execution in quote
	// currency. Zero when the venue could not determine it.
	Price float64

	// TokenAmount is the token quantity bought or sold.
	TokenAmount float64
}

// ExecutionVenue performs swaps. ClosePosition sells the given percentage of
// the currently held balance and must be called at most once per accepted
// decision; failures are non-fatal and the decision is retried on the next
// tick.
type ExecutionVenue interface {
	Buy(ctx context.Context, assetID string, amountQuote float64) (Execution, error)
	ClosePosition(ctx context.Context, assetID string, percent float64) (Execution, error)
}

// EventKind distinguishes notification events.
type EventKind string

const (
	EventPositionOpened EventKind = "position_opened"
	EventPositionClosed EventKind = "position_closed"
	EventPartialClose   EventKind = "partial_close"
	EventEscalation     EventKind = "escalation"
	EventSummary        EventKind = "summary"
)

// Event is what the engine hands to the notification sink. Stats is the
// aggregate snapshot taken after the counters were updated for this event.
type Event struct {
	Kind       EventKind
	AssetID    string
	Symbol     string
	Reason     ExitReason
	PnLPercent float64
	EntryPrice float64
	ExitPrice  float64
	Message    string
	Stats      StatsSnapshot
	Timestamp  time.Time
}

// Notifier is a best-effort, fire-and-forget notification sink. Errors are
// logged by implementations and never surfaced to the engine.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// CloseRecord is the durable trade-log entry for a partial or full close.
type CloseRecord struct {
	AssetID        string
	Symbol         string
	EntryPrice     float64
	ExitPrice      float64
	ClosePercent   float64
	PnLPercent     float64
	HoldDuration   time.Duration
	Reason         ExitReason
	ConfirmationID string
	ClosedAt       time.Time
}

// OpenRecord is the durable trade-log entry for an executed buy.
type OpenRecord struct {
	AssetID        string
	Symbol         string
	EntryPrice     float64
	TokenAmount    float64
	AmountQuote    float64
	ConfirmationID string
	OpenedAt       time.Time
}

// TradeLog is the append-only persistence sink for trade history. Writes
// are best-effort from the engine's point of view: a failed write is logged
// and does not block the close.
type TradeLog interface {
	RecordOpen(ctx context.Context, rec OpenRecord) error
	RecordClose(ctx context.Context, rec CloseRecord) error
}
