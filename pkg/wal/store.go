package wal

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"

	"github.com/certen/bridge-orchestrator/pkg/bridgeaction"
	"github.com/certen/bridge-orchestrator/pkg/encoding"
)

var keyActionPrefix = []byte("wal:action:")

func actionKey(digest [32]byte) []byte {
	return append(append([]byte{}, keyActionPrefix...), digest[:]...)
}

// wireAction is the JSON form an Action is persisted as. Forward
// compatibility: an unrecognized Type is skipped rather than rejected,
// so a future variant can be added without breaking replay on older
// binaries reading a newer WAL.
type wireAction struct {
	Type bridgeaction.ActionType `json:"type"`
	Raw  json.RawMessage         `json:"raw"`
}

// Store is the durable map digest -> action. It is safe for concurrent
// use by multiple readers and writers; the underlying KV is internally
// synchronized by the database driver.
type Store struct {
	kv KV
}

// NewStore wraps kv as a pending-action log.
func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

// Insert durably persists action before returning. It is idempotent on
// digest: inserting the same action twice is a no-op on the second call.
// Any write error is fatal to the orchestrator — the log cannot be
// allowed to silently drop an action it claimed to accept.
func (s *Store) Insert(action *bridgeaction.Action) ([32]byte, error) {
	digest, err := encoding.Digest(action)
	if err != nil {
		return digest, fmt.Errorf("wal: digest action: %w", err)
	}

	raw, err := marshalAction(action)
	if err != nil {
		return digest, fmt.Errorf("wal: marshal action: %w", err)
	}

	if err := s.kv.Set(actionKey(digest), raw); err != nil {
		log.Fatalf("wal: write to durable log failed, aborting: %v", err)
	}
	return digest, nil
}

// Remove deletes a batch of digests. Removing a digest that is not
// present is a no-op. Individual deletes are issued sequentially against
// the underlying store; a failure partway through is fatal, matching the
// "any write error is fatal" contract on the whole log.
func (s *Store) Remove(digests ...[32]byte) error {
	for _, d := range digests {
		if err := s.kv.Delete(actionKey(d)); err != nil {
			log.Fatalf("wal: delete from durable log failed, aborting: %v", err)
		}
	}
	return nil
}

// ListAll returns every pending action, used at startup to replay
// unfinished work into the signing stage.
func (s *Store) ListAll() (map[[32]byte]*bridgeaction.Action, error) {
	end := make([]byte, len(keyActionPrefix))
	copy(end, keyActionPrefix)
	end[len(end)-1]++

	it, err := s.kv.Iterator(keyActionPrefix, end)
	if err != nil {
		return nil, fmt.Errorf("wal: list_all: open iterator: %w", err)
	}
	defer it.Close()

	out := make(map[[32]byte]*bridgeaction.Action)
	for ; it.Valid(); it.Next() {
		key := it.Key()
		if len(key) != len(keyActionPrefix)+32 {
			continue
		}
		var digest [32]byte
		copy(digest[:], key[len(keyActionPrefix):])

		action, err := unmarshalAction(it.Value())
		if err != nil {
			log.Printf("wal: skipping undecodable entry %s on replay: %v", hex.EncodeToString(digest[:]), err)
			continue
		}
		if action == nil {
			// Unknown variant tag: forward-compatible skip, not an error.
			continue
		}
		out[digest] = action
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("wal: list_all: iterate: %w", err)
	}
	return out, nil
}

func marshalAction(a *bridgeaction.Action) ([]byte, error) {
	var raw json.RawMessage
	var err error
	switch a.Type {
	case bridgeaction.ActionTypeTokenTransfer:
		raw, err = json.Marshal(a.TokenTransfer)
	case bridgeaction.ActionTypeBlocklist:
		raw, err = json.Marshal(a.BlocklistCommittee)
	case bridgeaction.ActionTypeEmergency:
		raw, err = json.Marshal(a.Emergency)
	case bridgeaction.ActionTypeLimitUpdate:
		raw, err = json.Marshal(a.LimitUpdate)
	case bridgeaction.ActionTypeAssetPrice:
		raw, err = json.Marshal(a.AssetPriceUpdate)
	case bridgeaction.ActionTypeUpgrade:
		raw, err = json.Marshal(a.ContractUpgrade)
	case bridgeaction.ActionTypeAddTokensOnA:
		raw, err = json.Marshal(a.AddTokensOnA)
	case bridgeaction.ActionTypeAddTokensOnB:
		raw, err = json.Marshal(a.AddTokensOnB)
	default:
		return nil, fmt.Errorf("wal: unhandled action type %v", a.Type)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireAction{Type: a.Type, Raw: raw})
}

func unmarshalAction(b []byte) (*bridgeaction.Action, error) {
	var w wireAction
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, err
	}

	a := &bridgeaction.Action{Type: w.Type}
	switch w.Type {
	case bridgeaction.ActionTypeTokenTransfer:
		a.TokenTransfer = &bridgeaction.TokenTransfer{}
		return a, json.Unmarshal(w.Raw, a.TokenTransfer)
	case bridgeaction.ActionTypeBlocklist:
		a.BlocklistCommittee = &bridgeaction.BlocklistCommittee{}
		return a, json.Unmarshal(w.Raw, a.BlocklistCommittee)
	case bridgeaction.ActionTypeEmergency:
		a.Emergency = &bridgeaction.Emergency{}
		return a, json.Unmarshal(w.Raw, a.Emergency)
	case bridgeaction.ActionTypeLimitUpdate:
		a.LimitUpdate = &bridgeaction.LimitUpdate{}
		return a, json.Unmarshal(w.Raw, a.LimitUpdate)
	case bridgeaction.ActionTypeAssetPrice:
		a.AssetPriceUpdate = &bridgeaction.AssetPriceUpdate{}
		return a, json.Unmarshal(w.Raw, a.AssetPriceUpdate)
	case bridgeaction.ActionTypeUpgrade:
		a.ContractUpgrade = &bridgeaction.ContractUpgrade{}
		return a, json.Unmarshal(w.Raw, a.ContractUpgrade)
	case bridgeaction.ActionTypeAddTokensOnA:
		a.AddTokensOnA = &bridgeaction.AddTokensOnA{}
		return a, json.Unmarshal(w.Raw, a.AddTokensOnA)
	case bridgeaction.ActionTypeAddTokensOnB:
		a.AddTokensOnB = &bridgeaction.AddTokensOnB{}
		return a, json.Unmarshal(w.Raw, a.AddTokensOnB)
	default:
		// Unknown variant: forward-compatible skip.
		return nil, nil
	}
}
