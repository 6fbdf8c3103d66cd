// internal/venue/balance.go
package venue

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// tokenBalance returns the wallet's raw balance for a mint by scanning its
// token accounts. Raw units, not adjusted for decimals.
func (j *Jupiter) tokenBalance(ctx context.Context, mint string) (uint64, error) {
	mintPubkey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("bad mint %s: %w", mint, err)
	}

	tokenAccounts, err := j.client.GetTokenAccountsByOwner(
		ctx,
		j.wallet.PublicKey,
		&rpc.GetTokenAccountsConfig{
			Mint: &mintPubkey,
		},
		&rpc.GetTokenAccountsOpts{
			Commitment: rpc.CommitmentConfirmed,
		},
	)
	if err != nil {
		return 0, fmt.Errorf("get accounts: %w", err)
	}
	if len(tokenAccounts.Value) == 0 {
		return 0, nil
	}

	// SPL token account layout puts the u64 amount at byte 64.
	var total uint64
	for _, acc := range tokenAccounts.Value {
		data := acc.Account.Data.GetBinary()
		if data == nil || len(data) < 72 {
			continue
		}
		total += binary.LittleEndian.Uint64(data[64:72])
	}
	return total, nil
}

// tokenDecimals resolves a mint's decimal count, caching the answer since
// it never changes for a mint.
func (j *Jupiter) tokenDecimals(ctx context.Context, mint string) (uint8, error) {
	j.decimalsMu.Lock()
	if decimals, ok := j.decimalsCache[mint]; ok {
		j.decimalsMu.Unlock()
		return decimals, nil
	}
	j.decimalsMu.Unlock()

	mintPubkey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("bad mint %s: %w", mint, err)
	}

	supply, err := j.client.GetTokenSupply(ctx, mintPubkey, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, err
	}
	if supply.Value == nil {
		return 0, fmt.Errorf("no supply info for %s", mint)
	}

	j.decimalsMu.Lock()
	j.decimalsCache[mint] = supply.Value.Decimals
	j.decimalsMu.Unlock()
	return supply.Value.Decimals, nil
}
