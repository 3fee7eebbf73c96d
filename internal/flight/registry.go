package flight

import (
	"encoding/binary"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/avianet/skysurety/internal/crypto"
)

var (
	ErrUnknownFlight     = errors.New("flight not registered")
	ErrAlreadyRegistered = errors.New("flight already registered")
	ErrStatusFinal       = errors.New("flight status already finalized")
	ErrBadStatus         = errors.New("invalid status code")
)

// Flight is a registered flight awaiting or holding an authoritative
// status.
type Flight struct {
	Key         crypto.Hash     `json:"key"`
	Airline     crypto.Identity `json:"airline"`
	Designator  string          `json:"designator"`
	Departure   int64           `json:"departure"`
	Status      Status          `json:"status"`
	StatusFinal bool            `json:"status_final"`
	UpdatedAt   int64           `json:"updated_at"`
}

// Key derives the flight key from the identifying triple. The same triple
// always yields the same key, so registration and later consensus lookups
// agree without coordination.
func Key(airline crypto.Identity, designator string, departure int64) crypto.Hash {
	buf := make([]byte, 0, crypto.IdentitySize+len(designator)+8)
	buf = append(buf, airline[:]...)
	buf = append(buf, designator...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(departure))
	return crypto.HashData(buf)
}

// Registry is the flight entity store. Status writes go through SetStatus
// and happen at most once per flight.
type Registry struct {
	mu      sync.RWMutex
	flights map[crypto.Hash]*Flight
	now     func() int64
}

func NewRegistry() *Registry {
	return &Registry{
		flights: make(map[crypto.Hash]*Flight),
		now:     func() int64 { return time.Now().Unix() },
	}
}

// Register creates a flight with status Unknown and returns its key.
func (r *Registry) Register(airline crypto.Identity, designator string, departure int64) (crypto.Hash, error) {
	key := Key(airline, designator, departure)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.flights[key]; ok {
		return crypto.Hash{}, ErrAlreadyRegistered
	}
	r.flights[key] = &Flight{
		Key:        key,
		Airline:    airline,
		Designator: designator,
		Departure:  departure,
		Status:     StatusUnknown,
		UpdatedAt:  r.now(),
	}
	return key, nil
}

// SetStatus records the finalized status for a flight. A second call for
// the same key is rejected; finalization is one-way.
func (r *Registry) SetStatus(key crypto.Hash, status Status) error {
	if !status.Valid() || status == StatusUnknown {
		return ErrBadStatus
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.flights[key]
	if !ok {
		return ErrUnknownFlight
	}
	if f.StatusFinal {
		return ErrStatusFinal
	}
	f.Status = status
	f.StatusFinal = true
	f.UpdatedAt = r.now()
	return nil
}

// Get returns a copy of the flight record.
func (r *Registry) Get(key crypto.Hash) (Flight, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.flights[key]
	if !ok {
		return Flight{}, false
	}
	return *f, true
}

// Finalized reports whether the flight's status has been set by consensus.
func (r *Registry) Finalized(key crypto.Hash) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.flights[key]
	return ok && f.StatusFinal
}

// All returns every flight ordered by key.
func (r *Registry) All() []Flight {
	r.mu.RLock()
	defer r.mu.RUnlock()

	flights := make([]Flight, 0, len(r.flights))
	for _, f := range r.flights {
		flights = append(flights, *f)
	}
	sort.Slice(flights, func(i, j int) bool {
		return string(flights[i].Key[:]) < string(flights[j].Key[:])
	})
	return flights
}

// Restore inserts a previously persisted flight record. Used only during
// startup recovery.
func (r *Registry) Restore(f Flight) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := f
	r.flights[f.Key] = &cp
}
