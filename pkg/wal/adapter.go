// Package wal is the durable pending-action log: a crash-safe
// digest -> action map used to replay unfinished work on restart.
package wal

import (
	dbm "github.com/cometbft/cometbft-db"
)

// KV is the narrow key-value contract Store needs. kvAdapter below wraps
// a cometbft-db dbm.DB to satisfy it; tests can supply an in-memory
// fake.
type KV interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	Iterator(start, end []byte) (dbm.Iterator, error)
}

// kvAdapter wraps a cometbft-db dbm.DB and exposes KV. Set uses SetSync
// so a successful return implies the write is fsync'd, matching the
// crash-consistency requirement on insert.
type kvAdapter struct {
	db dbm.DB
}

// NewGoLevelDB opens (or creates) a GoLevelDB-backed store rooted at
// dir/name.
func NewGoLevelDB(name, dir string) (KV, error) {
	db, err := dbm.NewGoLevelDB(name, dir)
	if err != nil {
		return nil, err
	}
	return &kvAdapter{db: db}, nil
}

// NewMemDB returns a volatile in-memory store, used in tests (including
// pkg/executor's pipeline tests) and when no WAL directory is configured.
func NewMemDB() KV {
	return &kvAdapter{db: dbm.NewMemDB()}
}

func (a *kvAdapter) Get(key []byte) ([]byte, error) {
	v, err := a.db.Get(key)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (a *kvAdapter) Set(key, value []byte) error {
	return a.db.SetSync(key, value)
}

func (a *kvAdapter) Delete(key []byte) error {
	return a.db.DeleteSync(key)
}

func (a *kvAdapter) Iterator(start, end []byte) (dbm.Iterator, error) {
	return a.db.Iterator(start, end)
}
