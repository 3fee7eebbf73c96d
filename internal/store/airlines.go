package store

import (
	"encoding/json"
	"fmt"

	"github.com/avianet/skysurety/internal/admission"
	"github.com/avianet/skysurety/internal/crypto"
	"github.com/avianet/skysurety/pkg/db"
)

func putAirline(w db.Writer, a admission.Airline) error {
	bytes, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal airline: %w", err)
	}
	if err := w.Put(makeKey(prefixAirline, a.ID[:]), bytes); err != nil {
		return fmt.Errorf("put airline: %w", err)
	}
	return nil
}

// PutAirline stores a registered airline record
func (s *State) PutAirline(a admission.Airline) error {
	return putAirline(s.db, a)
}

// PutAirline stages a registered airline record
func (u *Update) PutAirline(a admission.Airline) error {
	return putAirline(u.batch, a)
}

// Airlines retrieves all registered airline records
func (s *State) Airlines() ([]admission.Airline, error) {
	var airlines []admission.Airline
	err := s.forEach(prefixAirline, func(value []byte) error {
		var a admission.Airline
		if err := json.Unmarshal(value, &a); err != nil {
			return fmt.Errorf("unmarshal airline: %w", err)
		}
		airlines = append(airlines, a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return airlines, nil
}

func putPending(w db.Writer, p admission.Pending) error {
	bytes, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pending airline: %w", err)
	}
	if err := w.Put(makeKey(prefixPending, p.ID[:]), bytes); err != nil {
		return fmt.Errorf("put pending airline: %w", err)
	}
	return nil
}

// PutPending stores a pending airline record
func (s *State) PutPending(p admission.Pending) error {
	return putPending(s.db, p)
}

// PutPending stages a pending airline record
func (u *Update) PutPending(p admission.Pending) error {
	return putPending(u.batch, p)
}

func deletePending(w db.Writer, id crypto.Identity) error {
	if err := w.Delete(makeKey(prefixPending, id[:])); err != nil {
		return fmt.Errorf("delete pending airline: %w", err)
	}
	return nil
}

// DeletePending removes a pending airline record after promotion
func (s *State) DeletePending(id crypto.Identity) error {
	return deletePending(s.db, id)
}

// DeletePending stages the removal of a pending airline record
func (u *Update) DeletePending(id crypto.Identity) error {
	return deletePending(u.batch, id)
}

// PendingAirlines retrieves all pending airline records
func (s *State) PendingAirlines() ([]admission.Pending, error) {
	var entries []admission.Pending
	err := s.forEach(prefixPending, func(value []byte) error {
		var p admission.Pending
		if err := json.Unmarshal(value, &p); err != nil {
			return fmt.Errorf("unmarshal pending airline: %w", err)
		}
		entries = append(entries, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
