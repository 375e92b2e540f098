package executor

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/certen/bridge-orchestrator/pkg/bridgeaction"
	"github.com/certen/bridge-orchestrator/pkg/chainclient"
)

// RunExecutionLoop drains the execution queue strictly sequentially: only
// one transaction is ever built, signed, and submitted against the
// shared gas object at a time. It returns when ctx is canceled or the
// queue is closed.
//
// The already-processed check below uses continue, not return, so a hit
// only skips that one item and the loop keeps draining the rest of the
// queue — the loop body inlines this check rather than delegating it to
// a helper so that distinction stays real instead of being erased by
// Go's ordinary "return from a called function" control flow.
func (p *Pipeline) RunExecutionLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-p.executionQueue:
			if !ok {
				return
			}
			p.metrics.ExecutionQueueLength.Set(float64(len(p.executionQueue)))
			p.metrics.ExecutionInFlight.Inc()

			action := item.Cert.Action()
			status, err := p.chain.GetActionStatusUntilSuccess(ctx, action)
			if err != nil {
				p.metrics.ExecutionInFlight.Dec()
				return
			}
			if status.IsFinal() {
				p.removeFromWAL(action)
				p.metrics.ExecutionInFlight.Dec()
				continue
			}

			p.runExecutionAttempt(ctx, item, action)
			p.metrics.ExecutionInFlight.Dec()
		}
	}
}

// runExecutionAttempt performs the C5 per-item procedure for one queue
// item that has already cleared the already-processed check: confirm gas
// ownership, build/sign/submit the transaction, and branch on the
// outcome exactly per the error-handling design:
//   - gas object no longer owned: fatal, operator must replace it
//   - build/sign failure: logged and dropped, not retried (same input
//     would fail identically)
//   - submission transport error: back off and re-enqueue, detached so
//     the sequential loop is never blocked on this item's delay
//   - on-chain success: remove from WAL
//   - on-chain failure: logged, counted as a manual intervention; the
//     certificate already exists and resubmitting it would not change
//     the outcome
func (p *Pipeline) runExecutionAttempt(ctx context.Context, item ExecutionItem, action *bridgeaction.Action) {
	gas, err := p.chain.GetGasObject(ctx, p.gasObjectID)
	if err != nil {
		if errors.Is(err, chainclient.ErrGasObjectNotOwned) {
			log.Fatalf("executor: gas object %s is no longer owned by the orchestrator address, aborting", p.gasObjectID)
		}
		log.Fatalf("executor: failed to load gas object %s: %v", p.gasObjectID, err)
	}

	raw, err := p.chain.BuildTransaction(ctx, p.orchestratorAddr, gas, item.Cert)
	if err != nil {
		p.logger.Printf("executor: failed to build transaction for action (nonce=%d), dropping: %v", action.Nonce(), err)
		return
	}

	signed, err := p.chain.SignTransaction(ctx, raw)
	if err != nil {
		p.logger.Printf("executor: failed to sign transaction for action (nonce=%d), dropping: %v", action.Nonce(), err)
		return
	}

	effects, err := p.chain.ExecuteTransactionWithEffects(ctx, signed)
	if err != nil {
		p.logger.Printf("executor: submission attempt %d failed for action (nonce=%d): %v", item.Attempt, action.Nonce(), err)
		p.scheduleReenqueue(item, action)
		return
	}

	switch effects.Status {
	case chainclient.EffectsSuccess:
		p.removeFromWAL(action)
	case chainclient.EffectsFailure:
		p.logger.Printf("executor: manual intervention needed, on-chain execution failed for action (nonce=%d): %s", action.Nonce(), effects.Error)
		p.metrics.ManualInterventions.WithLabelValues("execution").Inc()
	}
}

// scheduleReenqueue backs off and resubmits item in a detached goroutine
// so a full execution queue, or a long back-off delay, never blocks the
// sequential main loop from moving on to the next item.
func (p *Pipeline) scheduleReenqueue(item ExecutionItem, action *bridgeaction.Action) {
	if item.Attempt >= MaxExecutionAttempts {
		p.logger.Printf("executor: manual intervention needed, execution exhausted after %d retries (nonce=%d)", MaxExecutionAttempts, action.Nonce())
		p.metrics.ManualInterventions.WithLabelValues("execution").Inc()
		return
	}
	p.metrics.RetryTotal.WithLabelValues("execution").Inc()

	delay := backoffDelay(item.Attempt)
	next := ExecutionItem{Cert: item.Cert, Attempt: item.Attempt + 1}
	go func() {
		time.Sleep(delay)
		p.executionQueue <- next
	}()
}
