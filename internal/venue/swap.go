// internal/venue/swap.go
package venue

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// swapQuote is the subset of the Jupiter quote response the venue reads.
// The raw body is kept because the swap endpoint wants the quote echoed
// back verbatim.
type swapQuote struct {
	InAmount  uint64
	OutAmount uint64
	Raw       json.RawMessage
}

func (j *Jupiter) getQuote(ctx context.Context, inputMint, outputMint string, amount uint64) (*swapQuote, error) {
	quoteURL := fmt.Sprintf("%s?inputMint=%s&outputMint=%s&amount=%d&slippageBps=%d&swapMode=ExactIn",
		j.quoteURL, inputMint, outputMint, amount, j.cfg.SlippageBps)

	op := func() (*swapQuote, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, quoteURL, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		resp, err := j.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("quote status %d", resp.StatusCode)
		}

		var body struct {
			InAmount  string `json:"inAmount"`
			OutAmount string `json:"outAmount"`
			Error     string `json:"error"`
		}
		var raw json.RawMessage
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, err
		}
		if body.Error != "" {
			return nil, backoff.Permanent(fmt.Errorf("quote error: %s", body.Error))
		}

		in, _ := strconv.ParseUint(body.InAmount, 10, 64)
		out, _ := strconv.ParseUint(body.OutAmount, 10, 64)
		return &swapQuote{InAmount: in, OutAmount: out, Raw: raw}, nil
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3))
}

// buildSwapTransaction asks Jupiter to assemble the swap for our wallet and
// returns the decoded, unsigned transaction.
func (j *Jupiter) buildSwapTransaction(ctx context.Context, quote *swapQuote) (*solana.Transaction, error) {
	swapBody := map[string]interface{}{
		"quoteResponse":             quote.Raw,
		"userPublicKey":             j.wallet.PublicKey.String(),
		"wrapAndUnwrapSol":          true,
		"dynamicComputeUnitLimit":   true,
		"prioritizationFeeLamports": j.cfg.PriorityFeeLamports,
	}
	body, err := json.Marshal(swapBody)
	if err != nil {
		return nil, err
	}

	op := func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.swapURL, bytes.NewReader(body))
		if err != nil {
			return "", backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := j.httpClient.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("swap status %d", resp.StatusCode)
		}

		var parsed struct {
			SwapTransaction string `json:"swapTransaction"`
			Error           string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return "", err
		}
		if parsed.Error != "" {
			return "", backoff.Permanent(fmt.Errorf("swap error: %s", parsed.Error))
		}
		if parsed.SwapTransaction == "" {
			return "", backoff.Permanent(fmt.Errorf("no swapTransaction in response"))
		}
		return parsed.SwapTransaction, nil
	}

	txBase64, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3))
	if err != nil {
		return nil, err
	}

	txBytes, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return nil, fmt.Errorf("decode swap transaction: %w", err)
	}
	return solana.TransactionFromBytes(txBytes)
}

// executeSwap runs the full build-sign-simulate-send-confirm pipeline for a
// quoted swap.
func (j *Jupiter) executeSwap(ctx context.Context, quote *swapQuote) (solana.Signature, error) {
	tx, err := j.buildSwapTransaction(ctx, quote)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build swap: %w", err)
	}

	if err := j.wallet.SignTransaction(tx); err != nil {
		return solana.Signature{}, fmt.Errorf("sign: %w", err)
	}

	sim, err := j.client.SimulateTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("simulate: %w", err)
	}
	if sim.Value != nil && sim.Value.Err != nil {
		return solana.Signature{}, fmt.Errorf("simulation error: %v", sim.Value.Err)
	}

	sig, err := j.sendWithRetry(ctx, tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send: %w", err)
	}

	if err := j.waitForConfirmation(ctx, sig); err != nil {
		return solana.Signature{}, err
	}
	return sig, nil
}

func (j *Jupiter) sendWithRetry(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	var lastErr error
	for i := 0; i < maxSendAttempts; i++ {
		sig, err := j.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			SkipPreflight:       true,
			PreflightCommitment: rpc.CommitmentProcessed,
		})
		if err == nil {
			return sig, nil
		}

		lastErr = err
		j.logger.Debug("Send attempt failed",
			zap.Int("attempt", i+1),
			zap.Error(err))
		if i < maxSendAttempts-1 {
			select {
			case <-ctx.Done():
				return solana.Signature{}, ctx.Err()
			case <-time.After(time.Duration(50*(i+1)) * time.Millisecond):
			}
		}
	}
	return solana.Signature{}, lastErr
}

// waitForConfirmation polls signature status until the cluster confirms the
// transaction. An on-chain error or poll exhaustion is an execution failure;
// the caller retries the whole decision on the next tick.
func (j *Jupiter) waitForConfirmation(ctx context.Context, sig solana.Signature) error {
	for i := 0; i < 8; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(400 * time.Millisecond):
		}

		statuses, err := j.client.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			continue
		}
		if len(statuses.Value) == 0 || statuses.Value[0] == nil {
			continue
		}

		status := statuses.Value[0]
		if status.Err != nil {
			return fmt.Errorf("transaction failed on chain: %v", status.Err)
		}
		if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
			status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
			return nil
		}
	}
	return fmt.Errorf("transaction not confirmed: %s", sig)
}
