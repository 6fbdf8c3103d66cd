// internal/feed/jupiter.go
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/avolkoff/solana-sentry/internal/engine"
)

const (
	jupiterPriceURL = "https://api.jup.ag/price/v2"

	// Wrapped SOL; prices are quoted against it so the engine's P&L stays
	// in SOL terms.
	solMint = "So11111111111111111111111111111111111111112"
)

// JupiterFeed reads spot prices from the Jupiter price API. Requests are
// rate-limited and retried with exponential backoff; anything that survives
// the retries is reported as price unavailability, never as a hard failure.
type JupiterFeed struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	logger     *zap.Logger
}

// NewJupiterFeed creates a Jupiter price source. rps bounds the request rate
// against the public API.
func NewJupiterFeed(rps float64, logger *zap.Logger) *JupiterFeed {
	return &JupiterFeed{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		baseURL:    jupiterPriceURL,
		logger:     logger.Named("jupiter_feed"),
	}
}

type jupiterPriceResponse struct {
	Data map[string]struct {
		Price string `json:"price"`
	} `json:"data"`
}

// GetPrice returns the token price in SOL.
func (f *JupiterFeed) GetPrice(ctx context.Context, assetID string) (float64, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", engine.ErrPriceUnavailable, err)
	}

	op := func() (float64, error) {
		return f.fetchPrice(ctx, assetID)
	}

	price, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(8*time.Second))
	if err != nil {
		f.logger.Debug("Jupiter price fetch failed",
			zap.String("mint", assetID),
			zap.Error(err))
		return 0, fmt.Errorf("%w: %v", engine.ErrPriceUnavailable, err)
	}
	return price, nil
}

func (f *JupiterFeed) fetchPrice(ctx context.Context, mint string) (float64, error) {
	url := fmt.Sprintf("%s?ids=%s&vsToken=%s", f.baseURL, mint, solMint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, backoff.Permanent(err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("jupiter price status %d", resp.StatusCode)
	}

	var parsed jupiterPriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, err
	}

	entry, ok := parsed.Data[mint]
	if !ok || entry.Price == "" {
		// The API omits mints it does not know; retrying will not help.
		return 0, backoff.Permanent(fmt.Errorf("no price data for %s", mint))
	}

	price, err := strconv.ParseFloat(entry.Price, 64)
	if err != nil {
		return 0, backoff.Permanent(fmt.Errorf("bad price %q: %w", entry.Price, err))
	}
	if price <= 0 {
		return 0, backoff.Permanent(fmt.Errorf("non-positive price for %s", mint))
	}
	return price, nil
}
