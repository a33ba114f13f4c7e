// Package storage provides the key-value abstractions the chain state is
// persisted through, and their Badger, LevelDB and in-memory backends.
package storage

import "errors"

// Storage errors.
var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("key not found")
	// ErrTxnDone is returned when a transaction is used after Commit or Discard.
	ErrTxnDone = errors.New("transaction already finished")
)

// KV is the read/write surface shared by a database and its transactions.
type KV interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
}

// DB is the interface for key-value storage.
type DB interface {
	KV
	// ForEach iterates over all keys with the given prefix in key order.
	// The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	// NewTxn starts a read-write transaction. Writes are invisible to other
	// readers until Commit and are dropped by Discard.
	NewTxn() Txn
	Close() error
}

// Txn is an atomic unit of writes with read-your-writes semantics.
//
// Discard after Commit is a no-op, so callers can always defer Discard.
type Txn interface {
	KV
	Commit() error
	Discard()
}
