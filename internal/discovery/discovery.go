// internal/discovery/discovery.go
package discovery

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"go.uber.org/zap"
)

// Pump.fun program, the source of new token mints.
var pumpProgramID = solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")

const solMint = "So11111111111111111111111111111111111111112"

var (
	mintRe       = regexp.MustCompile(`mint[:\s]+([1-9A-HJ-NP-Za-km-z]{32,44})`)
	createArgsRe = regexp.MustCompile(`Create\(([^)]+)\)`)
)

// Candidate is a freshly created token observed on-chain.
type Candidate struct {
	Mint       string
	Signature  solana.Signature
	DetectedAt time.Time
}

// TransactionFetcher is the slice of the RPC surface needed to resolve a
// create transaction into its mint.
type TransactionFetcher interface {
	GetTransaction(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
}

// Listener watches pump.fun program logs over websocket and emits new
// mints on a channel. The subscription is re-established on any error.
type Listener struct {
	wsURL      string
	rpcClient  TransactionFetcher
	logger     *zap.Logger
	candidates chan Candidate

	// swappable in tests
	connect func(ctx context.Context, url string) (*ws.Client, error)
}

func NewListener(wsURL string, rpcClient TransactionFetcher, logger *zap.Logger) *Listener {
	return &Listener{
		wsURL:      wsURL,
		rpcClient:  rpcClient,
		logger:     logger.Named("discovery"),
		candidates: make(chan Candidate, 16),
		connect:    ws.Connect,
	}
}

// Candidates returns the stream of detected tokens. Closed when Run exits.
func (l *Listener) Candidates() <-chan Candidate {
	return l.candidates
}

// Run blocks until ctx is cancelled, reconnecting after failures.
func (l *Listener) Run(ctx context.Context) error {
	defer close(l.candidates)

	for {
		if err := l.subscribeAndListen(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Warn("Subscription dropped, reconnecting",
				zap.Error(err))
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		return ctx.Err()
	}
}

func (l *Listener) subscribeAndListen(ctx context.Context) error {
	client, err := l.connect(ctx, l.wsURL)
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}
	defer client.Close()

	sub, err := client.LogsSubscribeMentions(pumpProgramID, rpc.CommitmentProcessed)
	if err != nil {
		return fmt.Errorf("logs subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	l.logger.Info("👂 Listening for new tokens",
		zap.String("program", pumpProgramID.String()))

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg, err := sub.Recv(ctx)
		if err != nil {
			return fmt.Errorf("recv: %w", err)
		}
		if msg.Value.Err != nil {
			continue
		}
		if !strings.Contains(strings.Join(msg.Value.Logs, " "), "Create") {
			continue
		}

		go l.resolveMint(ctx, msg.Value.Signature, time.Now())
	}
}

// resolveMint fetches the create transaction and extracts the token mint.
// The log notification carries only the signature, so a confirmed fetch is
// needed before the mint can be traded.
func (l *Listener) resolveMint(ctx context.Context, sig solana.Signature, detectedAt time.Time) {
	var res *rpc.GetTransactionResult
	var err error

	maxVersion := uint64(0)
	for i := 0; i < 3; i++ {
		res, err = l.rpcClient.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
			MaxSupportedTransactionVersion: &maxVersion,
			Commitment:                     rpc.CommitmentConfirmed,
		})
		if err == nil && res != nil {
			break
		}
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return
		}
	}
	if err != nil || res == nil {
		return
	}

	mint := parseMint(res)
	if mint == "" {
		return
	}

	l.logger.Info("🔍 New token detected",
		zap.String("mint", mint),
		zap.Int64("latency_ms", time.Since(detectedAt).Milliseconds()))

	select {
	case l.candidates <- Candidate{Mint: mint, Signature: sig, DetectedAt: detectedAt}:
	case <-ctx.Done():
	default:
		l.logger.Warn("Candidate queue full, dropping token",
			zap.String("mint", mint))
	}
}

func parseMint(tx *rpc.GetTransactionResult) string {
	if tx.Meta == nil {
		return ""
	}

	for _, logMsg := range tx.Meta.LogMessages {
		if !strings.Contains(logMsg, "Create") {
			continue
		}
		if m := mintRe.FindStringSubmatch(logMsg); len(m) > 1 {
			return strings.TrimSpace(m[1])
		}
		if m := createArgsRe.FindStringSubmatch(logMsg); len(m) > 1 {
			return strings.TrimSpace(m[1])
		}
	}

	for _, bal := range tx.Meta.PostTokenBalances {
		m := bal.Mint.String()
		if m != "" && m != solMint {
			return m
		}
	}
	return ""
}
