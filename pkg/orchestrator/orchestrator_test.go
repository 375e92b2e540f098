package orchestrator

import (
	"context"
	"log"
	"testing"

	"github.com/certen/bridge-orchestrator/pkg/bridgeaction"
	"github.com/certen/bridge-orchestrator/pkg/chainclient"
	"github.com/certen/bridge-orchestrator/pkg/executor"
	"github.com/certen/bridge-orchestrator/pkg/metrics"
	"github.com/certen/bridge-orchestrator/pkg/wal"
)

// noopChainClient is never exercised here: Submit only reaches the WAL and
// the signing queue, it never drains them.
type noopChainClient struct{}

func (noopChainClient) GetActionStatusUntilSuccess(ctx context.Context, action *bridgeaction.Action) (bridgeaction.Status, error) {
	return bridgeaction.StatusPending, nil
}

func (noopChainClient) GetGasObject(ctx context.Context, id string) (*chainclient.GasObject, error) {
	return &chainclient.GasObject{ID: id}, nil
}

func (noopChainClient) BuildTransaction(ctx context.Context, orchestratorAddr [20]byte, gas *chainclient.GasObject, cert *bridgeaction.VerifiedCertificate) ([]byte, error) {
	return nil, nil
}

func (noopChainClient) SignTransaction(ctx context.Context, raw []byte) (*chainclient.SignedTransaction, error) {
	return nil, nil
}

func (noopChainClient) ExecuteTransactionWithEffects(ctx context.Context, tx *chainclient.SignedTransaction) (*chainclient.Effects, error) {
	return nil, nil
}

func sampleTransfer(nonce uint64) *bridgeaction.Action {
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
			Amount:        500,
		},
	}
}

func newTestOrchestrator(t *testing.T, queueCapacity int) (*Orchestrator, *wal.Store) {
	t.Helper()
	store := wal.NewStore(wal.NewMemDB())
	logger := log.New(log.Writer(), "[orchestrator-test] ", 0)
	pipeline := executor.New(store, nil, noopChainClient{}, metrics.New(), executor.Config{QueueCapacity: queueCapacity}, logger)
	return New(store, pipeline), store
}

func TestSubmitPersistsBeforeEnqueueing(t *testing.T) {
	entry, store := newTestOrchestrator(t, 1)
	action := sampleTransfer(1)

	if err := entry.Submit(context.Background(), action); err != nil {
		t.Fatalf("submit: %v", err)
	}

	all, err := store.ListAll()
	if err != nil {
		t.Fatalf("list_all: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected the action to be durable in the WAL, got %d entries", len(all))
	}
}

func TestSubmitSurfacesContextCancellationOnFullQueue(t *testing.T) {
	entry, store := newTestOrchestrator(t, 1)

	// The one-slot signing queue is drained by nothing in this test, so
	// this first Submit fills it.
	if err := entry.Submit(context.Background(), sampleTransfer(0)); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := entry.Submit(ctx, sampleTransfer(2)); err == nil {
		t.Fatalf("expected Submit to surface the context cancellation when the signing queue is full")
	}

	// The second action is still durably recorded even though it could
	// not be enqueued: the WAL insert happens before the queue send.
	all, err := store.ListAll()
	if err != nil {
		t.Fatalf("list_all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected both actions to be durable in the WAL, got %d entries", len(all))
	}
}
