// Package db defines the storage surface the ledger persists through.
// Implementations live in subpackages; pebble backs the production store.
package db

// Writer is the mutation surface a store shares with its batches.
type Writer interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

// KVStore is an ordered key-value store.
type KVStore interface {
	Writer
	Get(key []byte) ([]byte, error)
	NewBatch() Batch
	NewIterator(start, end []byte) (Iterator, error)
	Close() error
}

// Batch stages writes and applies them in a single atomic commit. A batch
// that is not committed must be closed to release its resources.
type Batch interface {
	Writer
	Commit() error
	Close() error
}

// Iterator walks the keys in [start, end). Iterators must be closed after
// use.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() ([]byte, error)
	Valid() bool
	Close() error
}
