package store

import (
	"github.com/avianet/skysurety/pkg/db"
)

// Prefix constants for all persisted entity types
const (
	prefixAirline byte = iota + 1
	prefixPending
	prefixFlight
	prefixPassenger
	prefixReporter
	prefixCredited
	prefixMeta
)

// Meta keys
var (
	metaEscrowBalance   = []byte{prefixMeta, 1}
	metaReporterCounter = []byte{prefixMeta, 2}
)

// State persists ledger entities through a key-value store. Records are
// JSON payloads under one-byte type prefixes.
type State struct {
	db db.KVStore
}

// NewState creates an entity store using KVStore
func NewState(db db.KVStore) *State {
	return &State{db: db}
}

// makeKey creates a key from a prefix and an entity identifier
func makeKey(prefix byte, id []byte) []byte {
	key := make([]byte, 1+len(id))
	key[0] = prefix
	copy(key[1:], id)
	return key
}

// forEach iterates all values under a prefix.
func (s *State) forEach(prefix byte, fn func(value []byte) error) error {
	iter, err := s.db.NewIterator([]byte{prefix}, []byte{prefix + 1})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.Next() {
		if !iter.Valid() {
			break
		}
		value, err := iter.Value()
		if err != nil {
			return err
		}
		if err := fn(value); err != nil {
			return err
		}
	}
	return nil
}
