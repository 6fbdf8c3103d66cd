package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testMint = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"

func txWithLogs(logs ...string) *rpc.GetTransactionResult {
	return &rpc.GetTransactionResult{
		Meta: &rpc.TransactionMeta{LogMessages: logs},
	}
}

func TestParseMintFromCreateLog(t *testing.T) {
	tx := txWithLogs(
		"Program log: Instruction: Create",
		"Program log: mint: "+testMint,
	)
	assert.Equal(t, testMint, parseMint(tx))
}

func TestParseMintFromCreateArgs(t *testing.T) {
	tx := txWithLogs("Program log: Create(" + testMint + ")")
	assert.Equal(t, testMint, parseMint(tx))
}

func TestParseMintFallsBackToTokenBalances(t *testing.T) {
	tx := txWithLogs("Program log: Instruction: Create")
	tx.Meta.PostTokenBalances = []rpc.TokenBalance{
		{Mint: solana.MustPublicKeyFromBase58(solMint)},
		{Mint: solana.MustPublicKeyFromBase58(testMint)},
	}
	assert.Equal(t, testMint, parseMint(tx))
}

func TestParseMintNothingFound(t *testing.T) {
	assert.Equal(t, "", parseMint(txWithLogs("Program log: Instruction: Buy")))
	assert.Equal(t, "", parseMint(&rpc.GetTransactionResult{}))
}

type stubFetcher struct {
	results []*rpc.GetTransactionResult
	errs    []error
	calls   int
}

func (s *stubFetcher) GetTransaction(ctx context.Context, sig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.results) {
		return s.results[i], nil
	}
	return nil, errors.New("no more results")
}

func newTestListener(fetcher TransactionFetcher) *Listener {
	return &Listener{
		rpcClient:  fetcher,
		logger:     zap.NewNop(),
		candidates: make(chan Candidate, 16),
	}
}

func TestResolveMintEmitsCandidate(t *testing.T) {
	fetcher := &stubFetcher{results: []*rpc.GetTransactionResult{
		txWithLogs("Program log: mint: " + testMint + " Create"),
	}}
	l := newTestListener(fetcher)

	sig := solana.Signature{1, 2, 3}
	l.resolveMint(context.Background(), sig, time.Now())

	select {
	case c := <-l.candidates:
		assert.Equal(t, testMint, c.Mint)
		assert.Equal(t, sig, c.Signature)
	default:
		t.Fatal("expected a candidate")
	}
	assert.Equal(t, 1, fetcher.calls)
}

func TestResolveMintRetriesFetch(t *testing.T) {
	fetcher := &stubFetcher{
		errs: []error{errors.New("not yet confirmed"), nil},
		results: []*rpc.GetTransactionResult{
			nil,
			txWithLogs("Program log: Create(" + testMint + ")"),
		},
	}
	l := newTestListener(fetcher)

	l.resolveMint(context.Background(), solana.Signature{}, time.Now())

	require.Len(t, l.candidates, 1)
	assert.Equal(t, 2, fetcher.calls)
}

func TestResolveMintGivesUpAfterRetries(t *testing.T) {
	boom := errors.New("node unavailable")
	fetcher := &stubFetcher{errs: []error{boom, boom, boom}}
	l := newTestListener(fetcher)

	l.resolveMint(context.Background(), solana.Signature{}, time.Now())

	assert.Empty(t, l.candidates)
	assert.Equal(t, 3, fetcher.calls)
}

func TestResolveMintDropsWhenQueueFull(t *testing.T) {
	fetcher := &stubFetcher{results: []*rpc.GetTransactionResult{
		txWithLogs("Program log: Create(" + testMint + ")"),
	}}
	l := newTestListener(fetcher)
	l.candidates = make(chan Candidate) // unbuffered, nobody reading

	done := make(chan struct{})
	go func() {
		l.resolveMint(context.Background(), solana.Signature{}, time.Now())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("resolveMint blocked on a full queue")
	}
}
