// Package chainclient defines the destination-chain contract the
// executor depends on, plus a concrete EVM-backed implementation. Event
// watchers, the committee signing service, and the on-chain verifier
// contracts are external collaborators and are not implemented here.
package chainclient

import (
	"context"
	"errors"

	"github.com/certen/bridge-orchestrator/pkg/bridgeaction"
)

// GasObject is the opaque, orchestrator-owned reference used to pay for
// a destination-chain submission.
type GasObject struct {
	ID      string
	Version uint64
	Digest  [32]byte
	Owner   [20]byte
}

// ErrGasObjectNotOwned is returned by GetGasObject when the object is no
// longer owned by the orchestrator address — a precondition failure the
// execution stage treats as fatal.
var ErrGasObjectNotOwned = errors.New("chainclient: gas object is no longer owned by the orchestrator address")

// EffectsStatus is the on-chain outcome of a submitted transaction.
type EffectsStatus uint8

const (
	EffectsSuccess EffectsStatus = iota
	EffectsFailure
)

// Effects is the result of executing a signed transaction.
type Effects struct {
	Status EffectsStatus
	Error  string // populated when Status == EffectsFailure
	TxHash [32]byte
}

// SignedTransaction is an opaque destination-chain transaction built and
// signed by the executor; only the chain client knows how to submit it.
type SignedTransaction struct {
	Raw []byte
}

// DestinationChainClient is everything the executor needs from the
// destination chain. Implementations must retry their own transport
// errors inside GetActionStatusUntilSuccess — the core never gives up on
// a status check by itself.
type DestinationChainClient interface {
	// GetActionStatusUntilSuccess blocks, retrying internally, until it
	// can report the action's status. It must not surface a transport
	// error to the caller.
	GetActionStatusUntilSuccess(ctx context.Context, action *bridgeaction.Action) (bridgeaction.Status, error)

	// GetGasObject resolves id to a gas object owned by the orchestrator
	// address. It returns ErrGasObjectNotOwned if ownership has moved.
	GetGasObject(ctx context.Context, id string) (*GasObject, error)

	// BuildTransaction deterministically (modulo the certificate's exact
	// signature subset) assembles the destination-chain transaction for
	// a certified action.
	BuildTransaction(ctx context.Context, orchestratorAddr [20]byte, gas *GasObject, cert *bridgeaction.VerifiedCertificate) ([]byte, error)

	// SignTransaction signs raw transaction bytes under the chain's
	// transaction-intent scope using the orchestrator key.
	SignTransaction(ctx context.Context, raw []byte) (*SignedTransaction, error)

	// ExecuteTransactionWithEffects submits a signed transaction and
	// awaits its effects.
	ExecuteTransactionWithEffects(ctx context.Context, tx *SignedTransaction) (*Effects, error)
}
