package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avolkoff/solana-sentry/internal/engine"
)

func closeEvent() engine.Event {
	return engine.Event{
		Kind:       engine.EventPositionClosed,
		AssetID:    "8FoHnRuDZUbPLFCm2AFLVYanFQKvnsdLsb4eje1npump",
		Symbol:     "TKN",
		Reason:     engine.ReasonStopLoss,
		PnLPercent: -12.5,
		EntryPrice: 0.00001,
		ExitPrice:  0.00000875,
		Stats: engine.StatsSnapshot{
			OpenClosed: 4,
			Wins:       1,
			Losses:     3,
			WinRate:    25,
			PnLTotal:   -8.2,
		},
		Timestamp: time.Now(),
	}
}

func TestTelegramSendsFormattedClose(t *testing.T) {
	var gotPath, gotText string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotText = r.URL.Query().Get("text")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	tg := NewTelegram("test-token", "42", zap.NewNop())
	tg.baseURL = server.URL

	tg.Notify(context.Background(), closeEvent())

	assert.Equal(t, "/bottest-token/sendMessage", gotPath)
	assert.Contains(t, gotText, "SELL TKN")
	assert.Contains(t, gotText, "STOP_LOSS")
	assert.Contains(t, gotText, "-12.5%")
	assert.Contains(t, gotText, "W/L: 1/3")
}

func TestTelegramSwallowsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	tg := NewTelegram("test-token", "42", zap.NewNop())
	tg.baseURL = server.URL

	// Must not panic or propagate anything.
	tg.Notify(context.Background(), closeEvent())
}

func TestFormatEventKinds(t *testing.T) {
	opened := engine.Event{
		Kind:       engine.EventPositionOpened,
		AssetID:    "8FoHnRuDZUbPLFCm2AFLVYanFQKvnsdLsb4eje1npump",
		Symbol:     "TKN",
		EntryPrice: 0.00001,
	}
	msg := FormatEvent(opened)
	assert.Contains(t, msg, "BUY TKN")
	assert.Contains(t, msg, "8FoHnRuD")

	partial := closeEvent()
	partial.Kind = engine.EventPartialClose
	partial.Reason = engine.TakeProfitReason(1)
	partial.PnLPercent = 16.0
	msg = FormatEvent(partial)
	assert.True(t, strings.HasPrefix(msg, "🟢"), "profit gets the green marker")
	assert.Contains(t, msg, "TAKE_PROFIT_1")

	escalation := engine.Event{
		Kind:    engine.EventEscalation,
		AssetID: "8FoHnRuDZUbPLFCm2AFLVYanFQKvnsdLsb4eje1npump",
		Message: "5 consecutive close failures",
	}
	msg = FormatEvent(escalation)
	assert.Contains(t, msg, "ATTENTION")
	assert.Contains(t, msg, "close failures")

	summary := engine.Event{
		Kind:  engine.EventSummary,
		Stats: engine.StatsSnapshot{OpenClosed: 10, Wins: 6, Losses: 4, WinRate: 60},
	}
	msg = FormatEvent(summary)
	assert.Contains(t, msg, "Daily summary")
	assert.Contains(t, msg, "W/L: 6/4")
}

func TestFormatEventBreakevenIsRed(t *testing.T) {
	ev := closeEvent()
	ev.PnLPercent = 0
	require.True(t, strings.HasPrefix(FormatEvent(ev), "🔴"))
}

func TestMultiFansOut(t *testing.T) {
	var count int
	sink := notifierFunc(func(context.Context, engine.Event) { count++ })

	m := NewMulti(sink, sink, NewLog(zap.NewNop()))
	m.Notify(context.Background(), closeEvent())
	assert.Equal(t, 2, count)
}

type notifierFunc func(context.Context, engine.Event)

func (f notifierFunc) Notify(ctx context.Context, ev engine.Event) { f(ctx, ev) }
