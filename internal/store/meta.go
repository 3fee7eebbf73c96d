package store

import (
	"encoding/binary"
	"fmt"

	"github.com/avianet/skysurety/pkg/db"
	"github.com/avianet/skysurety/pkg/db/pebble"
)

func putEscrowBalance(w db.Writer, balance uint64) error {
	buf := binary.LittleEndian.AppendUint64(nil, balance)
	if err := w.Put(metaEscrowBalance, buf); err != nil {
		return fmt.Errorf("put escrow balance: %w", err)
	}
	return nil
}

// PutEscrowBalance stores the escrow balance snapshot
func (s *State) PutEscrowBalance(balance uint64) error {
	return putEscrowBalance(s.db, balance)
}

// PutEscrowBalance stages the escrow balance snapshot
func (u *Update) PutEscrowBalance(balance uint64) error {
	return putEscrowBalance(u.batch, balance)
}

// EscrowBalance retrieves the escrow balance snapshot, zero when never
// stored
func (s *State) EscrowBalance() (uint64, error) {
	value, err := s.db.Get(metaEscrowBalance)
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get escrow balance: %w", err)
	}
	if len(value) != 8 {
		return 0, fmt.Errorf("malformed escrow balance of length %d", len(value))
	}
	return binary.LittleEndian.Uint64(value), nil
}
