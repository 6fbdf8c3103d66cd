// internal/notify/telegram.go
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/avolkoff/solana-sentry/internal/engine"
)

const telegramAPIURL = "https://api.telegram.org"

// Telegram sends trade events to a Telegram chat. Delivery is best effort:
// a failed send is logged, never surfaced to the engine.
type Telegram struct {
	token      string
	chatID     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewTelegram(token, chatID string, logger *zap.Logger) *Telegram {
	return &Telegram{
		token:      token,
		chatID:     chatID,
		baseURL:    telegramAPIURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.Named("telegram"),
	}
}

// Notify formats and delivers the event.
func (t *Telegram) Notify(ctx context.Context, event engine.Event) {
	msg := FormatEvent(event)
	if msg == "" {
		return
	}

	apiURL := fmt.Sprintf(
		"%s/bot%s/sendMessage?chat_id=%s&text=%s&parse_mode=HTML",
		t.baseURL, t.token, t.chatID, url.QueryEscape(msg),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		t.logger.Error("Telegram request build failed", zap.Error(err))
		return
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.logger.Error("Telegram send failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.logger.Error("Telegram send rejected", zap.Int("status", resp.StatusCode))
	}
}

// FormatEvent renders an event as a Telegram message. The stats block in
// close messages reflects counters already updated for this close.
func FormatEvent(event engine.Event) string {
	short := shortenMint(event.AssetID)

	switch event.Kind {
	case engine.EventPositionOpened:
		return fmt.Sprintf("💰 BUY %s (%s)\nEntry: %.9f SOL\nhttps://solscan.io/token/%s",
			event.Symbol, short, event.EntryPrice, event.AssetID)

	case engine.EventPartialClose:
		return fmt.Sprintf("%s PARTIAL %s (%s)\n%s | PnL: %+.1f%%\n%.9f → %.9f SOL",
			pnlEmoji(event.PnLPercent), event.Symbol, short,
			event.Reason, event.PnLPercent, event.EntryPrice, event.ExitPrice)

	case engine.EventPositionClosed:
		return fmt.Sprintf("%s SELL %s (%s)\n%s | PnL: %+.1f%%\n%.9f → %.9f SOL\n\n%s",
			pnlEmoji(event.PnLPercent), event.Symbol, short,
			event.Reason, event.PnLPercent, event.EntryPrice, event.ExitPrice,
			formatStats(event.Stats))

	case engine.EventEscalation:
		return fmt.Sprintf("🚨 ATTENTION %s\n%s", short, event.Message)

	case engine.EventSummary:
		return fmt.Sprintf("📊 Daily summary\n\n%s", formatStats(event.Stats))

	default:
		return ""
	}
}

func formatStats(stats engine.StatsSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Trades: %d | W/L: %d/%d (%.0f%%)\n",
		stats.OpenClosed, stats.Wins, stats.Losses, stats.WinRate)
	fmt.Fprintf(&b, "PnL today: %+.1f%% | 7d: %+.1f%% | total: %+.1f%%",
		stats.PnLToday, stats.PnLWeek, stats.PnLTotal)
	return b.String()
}

func pnlEmoji(pnl float64) string {
	if pnl > 0 {
		return "🟢"
	}
	return "🔴"
}

func shortenMint(mint string) string {
	if len(mint) > 8 {
		return mint[:8]
	}
	return mint
}
