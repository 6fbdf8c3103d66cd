// internal/feed/fallback.go
package feed

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/avolkoff/solana-sentry/internal/engine"
)

// Fallback chains price sources and returns the first successful quote.
// Only when every source fails does the asset count as unpriceable for the
// tick.
type Fallback struct {
	sources []engine.PriceFeed
	logger  *zap.Logger
}

func NewFallback(logger *zap.Logger, sources ...engine.PriceFeed) *Fallback {
	return &Fallback{
		sources: sources,
		logger:  logger.Named("feed"),
	}
}

func (f *Fallback) GetPrice(ctx context.Context, assetID string) (float64, error) {
	var lastErr error
	for i, source := range f.sources {
		price, err := source.GetPrice(ctx, assetID)
		if err == nil {
			return price, nil
		}
		lastErr = err
		if i < len(f.sources)-1 {
			f.logger.Debug("Price source failed, trying next",
				zap.String("mint", assetID),
				zap.Int("source", i),
				zap.Error(err))
		}
	}
	if lastErr == nil {
		lastErr = engine.ErrPriceUnavailable
	}
	return 0, fmt.Errorf("all price sources failed: %w", lastErr)
}
