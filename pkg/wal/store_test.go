package wal

import (
	"testing"

	"github.com/certen/bridge-orchestrator/pkg/bridgeaction"
	"github.com/certen/bridge-orchestrator/pkg/encoding"
)

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
			TokenID:       3,
			Amount:        1000,
		},
	}
}

func TestInsertListRemove(t *testing.T) {
	store := NewStore(NewMemDB())

	a1 := sampleAction(1)
	a2 := sampleAction(2)

	d1, err := store.Insert(a1)
	if err != nil {
		t.Fatalf("insert a1: %v", err)
	}
	d2, err := store.Insert(a2)
	if err != nil {
		t.Fatalf("insert a2: %v", err)
	}

	all, err := store.ListAll()
	if err != nil {
		t.Fatalf("list_all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 pending actions, got %d", len(all))
	}
	if got := all[d1].TokenTransfer.Nonce; got != 1 {
		t.Fatalf("expected nonce 1, got %d", got)
	}

	if err := store.Remove(d1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	all, err = store.ListAll()
	if err != nil {
		t.Fatalf("list_all after remove: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 pending action after remove, got %d", len(all))
	}
	if _, ok := all[d2]; !ok {
		t.Fatalf("expected a2 to still be present")
	}
}

func TestInsertIsIdempotentOnDigest(t *testing.T) {
	store := NewStore(NewMemDB())
	a := sampleAction(7)

	d1, err := store.Insert(a)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	d2, err := store.Insert(a)
	if err != nil {
		t.Fatalf("insert (again): %v", err)
	}
	if d1 != d2 {
		t.Fatalf("expected stable digest across re-insert")
	}

	all, err := store.ListAll()
	if err != nil {
		t.Fatalf("list_all: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected re-insert to be a no-op on digest, got %d entries", len(all))
	}
}

func TestRemoveMissingDigestIsNoop(t *testing.T) {
	store := NewStore(NewMemDB())
	var digest [32]byte
	if err := store.Remove(digest); err != nil {
		t.Fatalf("expected removing a missing digest to succeed, got %v", err)
	}
}

func TestDigestMatchesEncodingDigest(t *testing.T) {
	store := NewStore(NewMemDB())
	a := sampleAction(42)

	stored, err := store.Insert(a)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	want, err := encoding.Digest(a)
	if err != nil {
		t.Fatalf("encoding.Digest: %v", err)
	}
	if stored != want {
		t.Fatalf("wal digest does not match encoding digest")
	}
}
