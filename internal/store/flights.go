package store

import (
	"encoding/json"
	"fmt"

	"github.com/avianet/skysurety/internal/crypto"
	"github.com/avianet/skysurety/internal/flight"
	"github.com/avianet/skysurety/pkg/db"
)

func putFlight(w db.Writer, f flight.Flight) error {
	bytes, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal flight: %w", err)
	}
	if err := w.Put(makeKey(prefixFlight, f.Key[:]), bytes); err != nil {
		return fmt.Errorf("put flight: %w", err)
	}
	return nil
}

// PutFlight stores a flight record
func (s *State) PutFlight(f flight.Flight) error {
	return putFlight(s.db, f)
}

// PutFlight stages a flight record
func (u *Update) PutFlight(f flight.Flight) error {
	return putFlight(u.batch, f)
}

// Flights retrieves all flight records
func (s *State) Flights() ([]flight.Flight, error) {
	var flights []flight.Flight
	err := s.forEach(prefixFlight, func(value []byte) error {
		var f flight.Flight
		if err := json.Unmarshal(value, &f); err != nil {
			return fmt.Errorf("unmarshal flight: %w", err)
		}
		flights = append(flights, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return flights, nil
}

func putCredited(w db.Writer, key crypto.Hash) error {
	if err := w.Put(makeKey(prefixCredited, key[:]), []byte{1}); err != nil {
		return fmt.Errorf("put credited flag: %w", err)
	}
	return nil
}

// PutCredited marks a flight's insurees as credited
func (s *State) PutCredited(key crypto.Hash) error {
	return putCredited(s.db, key)
}

// PutCredited stages a flight's credited flag
func (u *Update) PutCredited(key crypto.Hash) error {
	return putCredited(u.batch, key)
}

// CreditedFlights retrieves the keys of flights whose insurees were
// credited
func (s *State) CreditedFlights() ([]crypto.Hash, error) {
	iter, err := s.db.NewIterator([]byte{prefixCredited}, []byte{prefixCredited + 1})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var keys []crypto.Hash
	for iter.Next() {
		if !iter.Valid() {
			break
		}
		raw := iter.Key()
		if len(raw) != 1+crypto.HashSize {
			return nil, fmt.Errorf("malformed credited key of length %d", len(raw))
		}
		var key crypto.Hash
		copy(key[:], raw[1:])
		keys = append(keys, key)
	}
	return keys, nil
}
