// internal/venue/jupiter.go
package venue

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/avolkoff/solana-sentry/internal/engine"
	"github.com/avolkoff/solana-sentry/internal/wallet"
)

const (
	defaultQuoteURL = "https://api.jup.ag/swap/v1/quote"
	defaultSwapURL  = "https://api.jup.ag/swap/v1/swap"

	solMint         = "So11111111111111111111111111111111111111112"
	lamportsPerSOL  = 1e9
	maxSendAttempts = 3
)

// solanaClient is the slice of the Solana RPC surface the venue needs.
// *rpc.Client satisfies it.
type solanaClient interface {
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*rpc.SimulateTransactionResponse, error)
	GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey, conf *rpc.GetTokenAccountsConfig, opts *rpc.GetTokenAccountsOpts) (*rpc.GetTokenAccountsResult, error)
	GetTokenSupply(ctx context.Context, mint solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenSupplyResult, error)
}

// Config tunes the Jupiter execution venue.
type Config struct {
	SlippageBps         int
	PriorityFeeLamports uint64
}

// Jupiter executes buys and sells through the Jupiter aggregator: quote,
// build swap, sign locally, simulate, send, then poll for confirmation.
// A trade counts as executed only after the cluster confirms it.
type Jupiter struct {
	client     solanaClient
	wallet     *wallet.Wallet
	httpClient *http.Client
	quoteURL   string
	swapURL    string
	cfg        Config
	logger     *zap.Logger

	decimalsMu    sync.Mutex
	decimalsCache map[string]uint8
}

// NewJupiter creates the execution venue.
func NewJupiter(client solanaClient, w *wallet.Wallet, cfg Config, logger *zap.Logger) *Jupiter {
	return &Jupiter{
		client:        client,
		wallet:        w,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		quoteURL:      defaultQuoteURL,
		swapURL:       defaultSwapURL,
		cfg:           cfg,
		logger:        logger.Named("venue"),
		decimalsCache: make(map[string]uint8),
	}
}

// Buy swaps amountQuote SOL into the token. The returned execution carries
// the confirmed signature, the filled token amount in whole tokens, and the
// effective entry price in SOL per token.
func (j *Jupiter) Buy(ctx context.Context, assetID string, amountQuote float64) (engine.Execution, error) {
	lamports := uint64(amountQuote * lamportsPerSOL)
	if lamports == 0 {
		return engine.Execution{}, fmt.Errorf("buy amount too small: %f SOL", amountQuote)
	}

	quote, err := j.getQuote(ctx, solMint, assetID, lamports)
	if err != nil {
		return engine.Execution{}, fmt.Errorf("quote: %w", err)
	}
	if quote.OutAmount == 0 {
		return engine.Execution{}, fmt.Errorf("no liquidity for %s", assetID)
	}

	sig, err := j.executeSwap(ctx, quote)
	if err != nil {
		return engine.Execution{}, err
	}

	decimals, err := j.tokenDecimals(ctx, assetID)
	if err != nil {
		return engine.Execution{}, fmt.Errorf("token decimals: %w", err)
	}

	tokenAmount := float64(quote.OutAmount) / math.Pow10(int(decimals))
	price := 0.0
	if tokenAmount > 0 {
		price = amountQuote / tokenAmount
	}

	j.logger.Info("💰 Buy confirmed",
		zap.String("mint", assetID),
		zap.Float64("sol_spent", amountQuote),
		zap.Float64("tokens", tokenAmount),
		zap.Float64("price", price),
		zap.String("signature", sig.String()))

	return engine.Execution{
		ConfirmationID: sig.String(),
		Price:          price,
		TokenAmount:    tokenAmount,
	}, nil
}

// ClosePosition sells the given percentage of the wallet's current balance
// of the token back into SOL.
func (j *Jupiter) ClosePosition(ctx context.Context, assetID string, percent float64) (engine.Execution, error) {
	if percent <= 0 || percent > 100 {
		return engine.Execution{}, fmt.Errorf("invalid close percent: %f", percent)
	}

	balance, err := j.tokenBalance(ctx, assetID)
	if err != nil {
		return engine.Execution{}, fmt.Errorf("token balance: %w", err)
	}
	if balance == 0 {
		return engine.Execution{}, fmt.Errorf("zero balance for %s", assetID)
	}

	sellRaw := uint64(float64(balance) * percent / 100)
	if percent >= 100 {
		sellRaw = balance
	}
	if sellRaw == 0 {
		return engine.Execution{}, fmt.Errorf("sell amount rounds to zero for %s", assetID)
	}

	quote, err := j.getQuote(ctx, assetID, solMint, sellRaw)
	if err != nil {
		return engine.Execution{}, fmt.Errorf("quote: %w", err)
	}
	if quote.OutAmount == 0 {
		return engine.Execution{}, fmt.Errorf("no liquidity for %s", assetID)
	}

	sig, err := j.executeSwap(ctx, quote)
	if err != nil {
		return engine.Execution{}, err
	}

	decimals, err := j.tokenDecimals(ctx, assetID)
	if err != nil {
		return engine.Execution{}, fmt.Errorf("token decimals: %w", err)
	}

	soldTokens := float64(sellRaw) / math.Pow10(int(decimals))
	receivedSOL := float64(quote.OutAmount) / lamportsPerSOL
	price := 0.0
	if soldTokens > 0 {
		price = receivedSOL / soldTokens
	}

	j.logger.Info("💸 Sell confirmed",
		zap.String("mint", assetID),
		zap.Float64("percent", percent),
		zap.Float64("tokens_sold", soldTokens),
		zap.Float64("sol_received", receivedSOL),
		zap.String("signature", sig.String()))

	return engine.Execution{
		ConfirmationID: sig.String(),
		Price:          price,
		TokenAmount:    soldTokens,
	}, nil
}
