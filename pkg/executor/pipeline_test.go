package executor

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/certen/bridge-orchestrator/pkg/bridgeaction"
	"github.com/certen/bridge-orchestrator/pkg/chainclient"
	"github.com/certen/bridge-orchestrator/pkg/metrics"
	"github.com/certen/bridge-orchestrator/pkg/wal"
)

// --- test fakes -------------------------------------------------------

// scriptedChainClient answers status checks from a scripted, sticky-last
// sequence and executes transactions from a scripted, sticky-last
// sequence of outcomes. It records how many times a transaction was
// actually submitted so tests can assert on retry counts.
type scriptedChainClient struct {
	mu sync.Mutex

	statusSeq  []bridgeaction.Status
	statusCall int

	execSeq  []execOutcome
	execCall int

	submissions int32
}

type execOutcome struct {
	effects *chainclient.Effects
	err     error
}

func (c *scriptedChainClient) GetActionStatusUntilSuccess(ctx context.Context, action *bridgeaction.Action) (bridgeaction.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.statusCall
	if idx >= len(c.statusSeq) {
		idx = len(c.statusSeq) - 1
	}
	c.statusCall++
	return c.statusSeq[idx], nil
}

func (c *scriptedChainClient) GetGasObject(ctx context.Context, id string) (*chainclient.GasObject, error) {
	return &chainclient.GasObject{ID: id, Version: 1}, nil
}

func (c *scriptedChainClient) BuildTransaction(ctx context.Context, orchestratorAddr [20]byte, gas *chainclient.GasObject, cert *bridgeaction.VerifiedCertificate) ([]byte, error) {
	return []byte("unsigned-tx"), nil
}

func (c *scriptedChainClient) SignTransaction(ctx context.Context, raw []byte) (*chainclient.SignedTransaction, error) {
	return &chainclient.SignedTransaction{Raw: raw}, nil
}

func (c *scriptedChainClient) ExecuteTransactionWithEffects(ctx context.Context, tx *chainclient.SignedTransaction) (*chainclient.Effects, error) {
	atomic.AddInt32(&c.submissions, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.execCall
	if idx >= len(c.execSeq) {
		idx = len(c.execSeq) - 1
	}
	c.execCall++
	outcome := c.execSeq[idx]
	return outcome.effects, outcome.err
}

func (c *scriptedChainClient) submissionCount() int32 {
	return atomic.LoadInt32(&c.submissions)
}

// scriptedAggregator answers signing requests from a scripted,
// sticky-last sequence of (certificate, error) outcomes.
type scriptedAggregator struct {
	mu      sync.Mutex
	results []aggResult
	call    int
}

type aggResult struct {
	cert *bridgeaction.VerifiedCertificate
	err  error
}

func (a *scriptedAggregator) RequestCommitteeSignatures(ctx context.Context, action *bridgeaction.Action, threshold uint64) (*bridgeaction.VerifiedCertificate, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx := a.call
	if idx >= len(a.results) {
		idx = len(a.results) - 1
	}
	a.call++
	r := a.results[idx]
	return r.cert, r.err
}

func sampleAction(nonce uint64) *bridgeaction.Action {
	return &bridgeaction.Action{
		Type: bridgeaction.ActionTypeTokenTransfer,
		TokenTransfer: &bridgeaction.TokenTransfer{
			Direction:     bridgeaction.DirectionAToB,
			Nonce:         nonce,
			SourceChainID: 1,
			DestChainID:   11,
			SourceAddr:    make([]byte, 32),
			DestAddr:      make([]byte, 20),
			TokenID:       1,
			Amount:        1000,
		},
	}
}

func sampleCertificate(action *bridgeaction.Action) *bridgeaction.VerifiedCertificate {
	cert := &bridgeaction.Certificate{
		Action:     action,
		Signatures: map[string][]byte{"aa": []byte("sig")},
	}
	return bridgeaction.NewVerifiedCertificate(cert)
}

func newTestPipeline(t *testing.T, agg Aggregator, chain chainclient.DestinationChainClient) (*Pipeline, *wal.Store) {
	t.Helper()
	store := wal.NewStore(wal.NewMemDB())
	logger := log.New(log.Writer(), "[executor-test] ", 0)
	p := New(store, agg, chain, metrics.New(), Config{GasObjectID: "orchestrator"}, logger)
	return p, store
}

func runLoops(ctx context.Context, p *Pipeline) {
	go p.RunSigningLoop(ctx)
	go p.RunExecutionLoop(ctx)
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

// --- S1: happy path ----------------------------------------------------

func TestHappyPath(t *testing.T) {
	action := sampleAction(1)
	chain := &scriptedChainClient{
		statusSeq: []bridgeaction.Status{bridgeaction.StatusPending},
		execSeq:   []execOutcome{{effects: &chainclient.Effects{Status: chainclient.EffectsSuccess}}},
	}
	agg := &scriptedAggregator{results: []aggResult{{cert: sampleCertificate(action)}}}

	p, store := newTestPipeline(t, agg, chain)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runLoops(ctx, p)

	if _, err := store.Insert(action); err != nil {
		t.Fatalf("insert: %v", err)
	}
	p.SigningQueue() <- SigningItem{Action: action, Attempt: 0}

	waitUntil(t, 2*time.Second, func() bool {
		all, _ := store.ListAll()
		return len(all) == 0
	})
	if chain.submissionCount() != 1 {
		t.Fatalf("expected exactly one submission, got %d", chain.submissionCount())
	}
}

// --- S2: on-chain failure, no retry -------------------------------------

func TestOnChainFailureNoRetry(t *testing.T) {
	action := sampleAction(2)
	chain := &scriptedChainClient{
		statusSeq: []bridgeaction.Status{bridgeaction.StatusPending},
		execSeq:   []execOutcome{{effects: &chainclient.Effects{Status: chainclient.EffectsFailure, Error: "reverted"}}},
	}
	agg := &scriptedAggregator{results: []aggResult{{cert: sampleCertificate(action)}}}

	p, store := newTestPipeline(t, agg, chain)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runLoops(ctx, p)

	if _, err := store.Insert(action); err != nil {
		t.Fatalf("insert: %v", err)
	}
	p.SigningQueue() <- SigningItem{Action: action, Attempt: 0}

	waitUntil(t, 2*time.Second, func() bool {
		return chain.submissionCount() >= 1
	})
	// Give any erroneous retry a chance to fire before asserting it didn't.
	time.Sleep(300 * time.Millisecond)

	if chain.submissionCount() != 1 {
		t.Fatalf("expected no retry after an on-chain failure, got %d submissions", chain.submissionCount())
	}
	all, err := store.ListAll()
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected the action to remain in the WAL, got %d entries", len(all))
	}
}

// --- S3: submission error then eventual success -------------------------

func TestSubmissionErrorThenSuccess(t *testing.T) {
	action := sampleAction(3)
	chain := &scriptedChainClient{
		statusSeq: []bridgeaction.Status{bridgeaction.StatusPending},
		execSeq: []execOutcome{
			{err: context.DeadlineExceeded},
			{effects: &chainclient.Effects{Status: chainclient.EffectsSuccess}},
		},
	}
	agg := &scriptedAggregator{results: []aggResult{{cert: sampleCertificate(action)}}}

	p, store := newTestPipeline(t, agg, chain)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runLoops(ctx, p)

	if _, err := store.Insert(action); err != nil {
		t.Fatalf("insert: %v", err)
	}
	p.SigningQueue() <- SigningItem{Action: action, Attempt: 0}

	waitUntil(t, 2*time.Second, func() bool {
		all, _ := store.ListAll()
		return len(all) == 0
	})
	if chain.submissionCount() < 2 {
		t.Fatalf("expected at least two submission attempts, got %d", chain.submissionCount())
	}
}

// --- S4: sub-quorum signing then quorum reached -------------------------

func TestSubQuorumThenQuorumReached(t *testing.T) {
	action := sampleAction(4)
	chain := &scriptedChainClient{
		statusSeq: []bridgeaction.Status{bridgeaction.StatusPending},
		execSeq:   []execOutcome{{effects: &chainclient.Effects{Status: chainclient.EffectsSuccess}}},
	}
	agg := &scriptedAggregator{results: []aggResult{
		{err: &aggregatorInsufficientStakeError{}},
		{cert: sampleCertificate(action)},
	}}

	p, store := newTestPipeline(t, agg, chain)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runLoops(ctx, p)

	if _, err := store.Insert(action); err != nil {
		t.Fatalf("insert: %v", err)
	}
	p.SigningQueue() <- SigningItem{Action: action, Attempt: 0}

	waitUntil(t, 2*time.Second, func() bool {
		all, _ := store.ListAll()
		return len(all) == 0
	})
	if chain.submissionCount() != 1 {
		t.Fatalf("expected exactly one submission once quorum was reached, got %d", chain.submissionCount())
	}
}

type aggregatorInsufficientStakeError struct{}

func (*aggregatorInsufficientStakeError) Error() string { return "insufficient stake" }

// --- S5: already-processed bypass at the signing stage ------------------

func TestAlreadyProcessedBypassAtSigningStage(t *testing.T) {
	action := sampleAction(5)
	chain := &scriptedChainClient{
		statusSeq: []bridgeaction.Status{bridgeaction.StatusPending, bridgeaction.StatusApproved},
	}
	agg := &scriptedAggregator{results: []aggResult{{err: &aggregatorInsufficientStakeError{}}}}

	p, store := newTestPipeline(t, agg, chain)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runLoops(ctx, p)

	if _, err := store.Insert(action); err != nil {
		t.Fatalf("insert: %v", err)
	}
	p.SigningQueue() <- SigningItem{Action: action, Attempt: 0}

	waitUntil(t, 2*time.Second, func() bool {
		all, _ := store.ListAll()
		return len(all) == 0
	})
	if chain.submissionCount() != 0 {
		t.Fatalf("expected no transaction to be attempted, got %d submissions", chain.submissionCount())
	}
}

// --- S6: already-processed bypass at the execution stage -----------------

func TestAlreadyProcessedBypassAtExecutionStage(t *testing.T) {
	action := sampleAction(6)
	chain := &scriptedChainClient{
		statusSeq: []bridgeaction.Status{bridgeaction.StatusPending, bridgeaction.StatusApproved},
		execSeq:   []execOutcome{{err: context.DeadlineExceeded}},
	}

	p, store := newTestPipeline(t, nil, chain)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runLoops(ctx, p)

	if _, err := store.Insert(action); err != nil {
		t.Fatalf("insert: %v", err)
	}
	p.executionQueue <- ExecutionItem{Cert: sampleCertificate(action), Attempt: 0}

	waitUntil(t, 3*time.Second, func() bool {
		all, _ := store.ListAll()
		return len(all) == 0
	})
}
