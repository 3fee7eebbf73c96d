package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/avianet/skysurety/internal/oracle"
	"github.com/avianet/skysurety/pkg/db"
	"github.com/avianet/skysurety/pkg/db/pebble"
)

func putReporter(w db.Writer, r oracle.Reporter) error {
	bytes, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal reporter: %w", err)
	}
	if err := w.Put(makeKey(prefixReporter, r.ID[:]), bytes); err != nil {
		return fmt.Errorf("put reporter: %w", err)
	}
	return nil
}

// PutReporter stores a reporter record
func (s *State) PutReporter(r oracle.Reporter) error {
	return putReporter(s.db, r)
}

// PutReporter stages a reporter record
func (u *Update) PutReporter(r oracle.Reporter) error {
	return putReporter(u.batch, r)
}

// Reporters retrieves all reporter records
func (s *State) Reporters() ([]oracle.Reporter, error) {
	var reporters []oracle.Reporter
	err := s.forEach(prefixReporter, func(value []byte) error {
		var r oracle.Reporter
		if err := json.Unmarshal(value, &r); err != nil {
			return fmt.Errorf("unmarshal reporter: %w", err)
		}
		reporters = append(reporters, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reporters, nil
}

func putReporterCounter(w db.Writer, counter uint64) error {
	buf := binary.LittleEndian.AppendUint64(nil, counter)
	if err := w.Put(metaReporterCounter, buf); err != nil {
		return fmt.Errorf("put reporter counter: %w", err)
	}
	return nil
}

// PutReporterCounter stores the reporter registration counter
func (s *State) PutReporterCounter(counter uint64) error {
	return putReporterCounter(s.db, counter)
}

// PutReporterCounter stages the reporter registration counter
func (u *Update) PutReporterCounter(counter uint64) error {
	return putReporterCounter(u.batch, counter)
}

// ReporterCounter retrieves the reporter registration counter, zero when
// never stored
func (s *State) ReporterCounter() (uint64, error) {
	value, err := s.db.Get(metaReporterCounter)
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get reporter counter: %w", err)
	}
	if len(value) != 8 {
		return 0, fmt.Errorf("malformed reporter counter of length %d", len(value))
	}
	return binary.LittleEndian.Uint64(value), nil
}
