// internal/rpcpool/pool.go
package rpcpool

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// Pool rotates requests across several RPC endpoints and fails over to the
// next one when a call errors. All endpoints stay in the pool; a node that
// was down gets retried on its next turn.
type Pool struct {
	clients []*rpc.Client
	urls    []string
	next    atomic.Uint32
	logger  *zap.Logger
}

func New(urls []string, logger *zap.Logger) (*Pool, error) {
	if len(urls) == 0 {
		return nil, errors.New("empty RPC list")
	}

	clients := make([]*rpc.Client, len(urls))
	for i, u := range urls {
		clients[i] = rpc.New(u)
	}

	return &Pool{
		clients: clients,
		urls:    urls,
		logger:  logger.Named("rpc_pool"),
	}, nil
}

// candidates returns every client starting at the round-robin cursor.
func (p *Pool) candidates() []int {
	start := int(p.next.Add(1)-1) % len(p.clients)
	order := make([]int, len(p.clients))
	for i := range order {
		order[i] = (start + i) % len(p.clients)
	}
	return order
}

// HealthCheck pings every endpoint and reports how many responded.
func (p *Pool) HealthCheck(ctx context.Context) int {
	healthy := 0
	for i, client := range p.clients {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := client.GetHealth(checkCtx)
		cancel()
		if err != nil {
			p.logger.Warn("RPC endpoint unhealthy",
				zap.String("url", p.urls[i]), zap.Error(err))
			continue
		}
		healthy++
	}
	return healthy
}

func failover[T any](ctx context.Context, p *Pool, fn func(*rpc.Client) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for _, i := range p.candidates() {
		result, err := fn(p.clients[i])
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		p.logger.Debug("RPC call failed, trying next endpoint",
			zap.String("url", p.urls[i]), zap.Error(err))
	}
	return zero, lastErr
}

func (p *Pool) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	return failover(ctx, p, func(c *rpc.Client) (solana.Signature, error) {
		return c.SendTransactionWithOpts(ctx, tx, opts)
	})
}

func (p *Pool) GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	return failover(ctx, p, func(c *rpc.Client) (*rpc.GetSignatureStatusesResult, error) {
		return c.GetSignatureStatuses(ctx, searchTransactionHistory, sigs...)
	})
}

func (p *Pool) SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*rpc.SimulateTransactionResponse, error) {
	return failover(ctx, p, func(c *rpc.Client) (*rpc.SimulateTransactionResponse, error) {
		return c.SimulateTransaction(ctx, tx)
	})
}

func (p *Pool) GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey, conf *rpc.GetTokenAccountsConfig, opts *rpc.GetTokenAccountsOpts) (*rpc.GetTokenAccountsResult, error) {
	return failover(ctx, p, func(c *rpc.Client) (*rpc.GetTokenAccountsResult, error) {
		return c.GetTokenAccountsByOwner(ctx, owner, conf, opts)
	})
}

func (p *Pool) GetTokenSupply(ctx context.Context, mint solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenSupplyResult, error) {
	return failover(ctx, p, func(c *rpc.Client) (*rpc.GetTokenSupplyResult, error) {
		return c.GetTokenSupply(ctx, mint, commitment)
	})
}

func (p *Pool) GetTransaction(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	return failover(ctx, p, func(c *rpc.Client) (*rpc.GetTransactionResult, error) {
		return c.GetTransaction(ctx, txSig, opts)
	})
}
