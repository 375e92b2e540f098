// Package orchestrator implements the C6 entry point: the single
// operation the rest of this system exposes to whatever observes bridge
// events on the source chain. It is grounded on action_executor.rs's
// submit_to_executor free function — insert into the WAL, then hand the
// action to the signing stage, in that order, so nothing is ever
// enqueued without first being durable.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/certen/bridge-orchestrator/pkg/bridgeaction"
	"github.com/certen/bridge-orchestrator/pkg/executor"
	"github.com/certen/bridge-orchestrator/pkg/wal"
)

// Orchestrator is the bridge's single write path for newly observed
// actions.
type Orchestrator struct {
	wal          *wal.Store
	signingQueue chan<- executor.SigningItem
}

// New builds an Orchestrator over store, sending freshly submitted
// actions into pipeline's signing queue.
func New(store *wal.Store, pipeline *executor.Pipeline) *Orchestrator {
	return &Orchestrator{wal: store, signingQueue: pipeline.SigningQueue()}
}

// Submit durably persists action and enqueues it for signature
// collection. Both steps must succeed for Submit to report success: a
// WAL write failure is fatal (see pkg/wal), and a context cancellation
// while enqueueing is surfaced to the caller rather than silently
// dropped.
func (o *Orchestrator) Submit(ctx context.Context, action *bridgeaction.Action) error {
	if _, err := o.wal.Insert(action); err != nil {
		return fmt.Errorf("orchestrator: persist action: %w", err)
	}

	select {
	case o.signingQueue <- executor.SigningItem{Action: action, Attempt: 0}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("orchestrator: enqueue action for signing: %w", ctx.Err())
	}
}
