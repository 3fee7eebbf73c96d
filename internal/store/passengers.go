package store

import (
	"encoding/json"
	"fmt"

	"github.com/avianet/skysurety/internal/insurance"
	"github.com/avianet/skysurety/pkg/db"
)

func putPassenger(w db.Writer, p insurance.Passenger) error {
	bytes, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal passenger: %w", err)
	}
	if err := w.Put(makeKey(prefixPassenger, p.ID[:]), bytes); err != nil {
		return fmt.Errorf("put passenger: %w", err)
	}
	return nil
}

// PutPassenger stores a passenger record
func (s *State) PutPassenger(p insurance.Passenger) error {
	return putPassenger(s.db, p)
}

// PutPassenger stages a passenger record
func (u *Update) PutPassenger(p insurance.Passenger) error {
	return putPassenger(u.batch, p)
}

// Passengers retrieves all passenger records
func (s *State) Passengers() ([]insurance.Passenger, error) {
	var passengers []insurance.Passenger
	err := s.forEach(prefixPassenger, func(value []byte) error {
		var p insurance.Passenger
		if err := json.Unmarshal(value, &p); err != nil {
			return fmt.Errorf("unmarshal passenger: %w", err)
		}
		passengers = append(passengers, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return passengers, nil
}
