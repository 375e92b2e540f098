// Package executor implements the two-stage pipeline (C4 signing stage,
// C5 execution stage) that turns a WAL-durable action into a certified,
// submitted destination-chain transaction. It is grounded on
// action_executor.rs's run_signature_aggregation_loop and
// run_onchain_execution_loop: the signing stage spawns one goroutine per
// queued item so a slow authority round never head-of-line blocks the
// next action, while the execution stage runs strictly sequentially
// since only one transaction may be in flight against the shared gas
// object at a time.
package executor

import (
	"context"
	"log"

	"github.com/certen/bridge-orchestrator/pkg/bridgeaction"
	"github.com/certen/bridge-orchestrator/pkg/chainclient"
	"github.com/certen/bridge-orchestrator/pkg/encoding"
	"github.com/certen/bridge-orchestrator/pkg/metrics"
	"github.com/certen/bridge-orchestrator/pkg/wal"
)

// DefaultQueueCapacity is the default buffered capacity of both queues.
const DefaultQueueCapacity = 1000

// Aggregator is the signing-stage dependency: collect committee
// signatures over action until threshold stake is reached. Satisfied by
// *pkg/aggregator.CommitteeAggregator; a structural interface here keeps
// pkg/executor's tests free to supply a fake.
type Aggregator interface {
	RequestCommitteeSignatures(ctx context.Context, action *bridgeaction.Action, threshold uint64) (*bridgeaction.VerifiedCertificate, error)
}

// SigningItem is one (action, attempt) tuple moving through the signing
// queue.
type SigningItem struct {
	Action  *bridgeaction.Action
	Attempt int
}

// ExecutionItem is one (certificate, attempt) tuple moving through the
// execution queue.
type ExecutionItem struct {
	Cert    *bridgeaction.VerifiedCertificate
	Attempt int
}

// Pipeline wires the WAL, aggregator, destination chain client, and
// metrics together around the two queues.
type Pipeline struct {
	wal        *wal.Store
	aggregator Aggregator
	chain      chainclient.DestinationChainClient
	metrics    *metrics.Metrics
	logger     *log.Logger

	orchestratorAddr [20]byte
	gasObjectID      string

	signingQueue   chan SigningItem
	executionQueue chan ExecutionItem
}

// Config holds the construction-time parameters for a Pipeline.
type Config struct {
	OrchestratorAddr [20]byte
	GasObjectID      string
	QueueCapacity    int // 0 selects DefaultQueueCapacity
}

// New builds a Pipeline. Callers must call RunSigningLoop and
// RunExecutionLoop (typically each in its own goroutine) to start
// draining the queues, and should call ReplayPending once at startup
// before traffic is expected.
func New(store *wal.Store, agg Aggregator, chain chainclient.DestinationChainClient, m *metrics.Metrics, cfg Config, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(log.Writer(), "[executor] ", log.LstdFlags)
	}
	capacity := cfg.QueueCapacity
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Pipeline{
		wal:              store,
		aggregator:       agg,
		chain:            chain,
		metrics:          m,
		logger:           logger,
		orchestratorAddr: cfg.OrchestratorAddr,
		gasObjectID:      cfg.GasObjectID,
		signingQueue:     make(chan SigningItem, capacity),
		executionQueue:   make(chan ExecutionItem, capacity),
	}
}

// SigningQueue exposes the signing queue's send side to the orchestrator
// entry point (C6), which enqueues freshly submitted actions here.
func (p *Pipeline) SigningQueue() chan<- SigningItem {
	return p.signingQueue
}

// ReplayPending lists every action still pending in the WAL and
// re-enqueues it into the signing stage, restoring in-flight work after
// a restart. Per this pipeline's replay contract every pending entry
// re-enters at the signing stage regardless of variant; the signing
// stage's own type assertion is the single place that decides whether an
// action actually belongs there.
func (p *Pipeline) ReplayPending(ctx context.Context) error {
	pending, err := p.wal.ListAll()
	if err != nil {
		return err
	}
	for _, action := range pending {
		select {
		case p.signingQueue <- SigningItem{Action: action, Attempt: 0}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (p *Pipeline) removeFromWAL(action *bridgeaction.Action) {
	digest, err := encoding.Digest(action)
	if err != nil {
		p.logger.Printf("executor: failed to digest action for WAL removal: %v", err)
		return
	}
	if err := p.wal.Remove(digest); err != nil {
		p.logger.Printf("executor: failed to remove action from WAL: %v", err)
	}
}
