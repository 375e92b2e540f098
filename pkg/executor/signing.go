package executor

import (
	"context"
	"time"

	"github.com/certen/bridge-orchestrator/pkg/bridgeaction"
)

// RunSigningLoop drains the signing queue, spawning one goroutine per
// item so a stalled committee round for one action never delays the
// next. It returns when ctx is canceled or the queue is closed.
func (p *Pipeline) RunSigningLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-p.signingQueue:
			if !ok {
				return
			}
			p.metrics.SigningQueueLength.Set(float64(len(p.signingQueue)))
			go p.processSigningItem(ctx, item)
		}
	}
}

// processSigningItem runs the C4 per-item procedure: bypass non-transfer
// actions, check whether the destination chain already considers this
// action final, collect committee signatures, and hand the resulting
// certificate to the execution stage. A signing failure is retried with
// back-off up to MaxSigningAttempts before the action is left in the WAL
// for manual intervention or a future restart replay.
func (p *Pipeline) processSigningItem(ctx context.Context, item SigningItem) {
	p.metrics.SigningInFlight.Inc()
	defer p.metrics.SigningInFlight.Dec()

	action := item.Action
	if !action.IsTokenTransfer() {
		p.logger.Printf("executor: non-transfer action reached the signing stage, dropping (nonce=%d type=%s)", action.Nonce(), action.Type)
		return
	}

	status, err := p.chain.GetActionStatusUntilSuccess(ctx, action)
	if err != nil {
		// Only returns non-nil on context cancellation; shutting down.
		return
	}
	if status.IsFinal() {
		p.removeFromWAL(action)
		return
	}

	threshold := bridgeaction.ValidityThreshold(action.Type)
	cert, err := p.aggregator.RequestCommitteeSignatures(ctx, action, threshold)
	if err == nil {
		select {
		case p.executionQueue <- ExecutionItem{Cert: cert, Attempt: 0}:
		case <-ctx.Done():
		}
		return
	}

	p.logger.Printf("executor: signing attempt %d failed for action (nonce=%d): %v", item.Attempt, action.Nonce(), err)
	if item.Attempt >= MaxSigningAttempts {
		p.logger.Printf("executor: manual intervention needed, signing exhausted after %d retries (nonce=%d)", MaxSigningAttempts, action.Nonce())
		p.metrics.ManualInterventions.WithLabelValues("signing").Inc()
		return
	}
	p.metrics.RetryTotal.WithLabelValues("signing").Inc()

	select {
	case <-time.After(backoffDelay(item.Attempt)):
	case <-ctx.Done():
		return
	}
	select {
	case p.signingQueue <- SigningItem{Action: action, Attempt: item.Attempt + 1}:
	case <-ctx.Done():
	}
}
