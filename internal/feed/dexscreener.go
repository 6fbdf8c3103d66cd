// internal/feed/dexscreener.go
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

const dexScreenerTokensURL = "https://api.dexscreener.com/latest/dex/tokens"

// DexScreenerFeed reads prices from the DexScreener pair API. It is the
// fallback behind Jupiter: slower to reflect fresh pools but tolerant of
// mints Jupiter has not indexed yet.
type DexScreenerFeed struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	logger     *zap.Logger
}

func NewDexScreenerFeed(rps float64, logger *zap.Logger) *DexScreenerFeed {
	return &DexScreenerFeed{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		baseURL:    dexScreenerTokensURL,
		logger:     logger.Named("dexscreener_feed"),
	}
}

type dexScreenerPair struct {
	PriceNative string `json:"priceNative"`
	Liquidity   struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
}

type dexScreenerResponse struct {
	Pairs []dexScreenerPair `json:"pairs"`
}

// GetPrice returns the token price in SOL from the deepest listed pair.
func (f *DexScreenerFeed) GetPrice(ctx context.Context, assetID string) (float64, error) {
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
		f.logger.Debug("DexScreener price fetch failed",
			zap.String("mint", assetID),
			zap.Error(err))
		return 0, fmt.Errorf("%w: %v", engine.ErrPriceUnavailable, err)
	}
	return price, nil
}

func (f *DexScreenerFeed) fetchPrice(ctx context.Context, mint string) (float64, error) {
	url := fmt.Sprintf("%s/%s", f.baseURL, mint)
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
		return 0, fmt.Errorf("dexscreener status %d", resp.StatusCode)
	}

	var parsed dexScreenerResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, err
	}
	if len(parsed.Pairs) == 0 {
		return 0, backoff.Permanent(fmt.Errorf("no pairs for %s", mint))
	}

	best := parsed.Pairs[0]
	for _, pair := range parsed.Pairs[1:] {
		if pair.Liquidity.USD > best.Liquidity.USD {
			best = pair
		}
	}

	price, err := strconv.ParseFloat(best.PriceNative, 64)
	if err != nil {
		return 0, backoff.Permanent(fmt.Errorf("bad price %q: %w", best.PriceNative, err))
	}
	if price <= 0 {
		return 0, backoff.Permanent(fmt.Errorf("non-positive price for %s", mint))
	}
	return price, nil
}
