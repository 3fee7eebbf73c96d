package store

import (
	"github.com/avianet/skysurety/pkg/db"
)

// Update stages writes against several entities and applies them in one
// atomic commit, so a crash never leaves a partially persisted operation
// behind. Obtain one from NewUpdate and either Commit or Close it.
type Update struct {
	batch db.Batch
}

// NewUpdate opens an empty atomic update against the store.
func (s *State) NewUpdate() *Update {
	return &Update{batch: s.db.NewBatch()}
}

// Commit applies all staged writes atomically.
func (u *Update) Commit() error {
	return u.batch.Commit()
}

// Close discards the staged writes. Calling Close after Commit has no
// effect.
func (u *Update) Close() error {
	return u.batch.Close()
}
