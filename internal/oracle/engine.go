// Package oracle implements threshold consensus over independently
// submitted flight-status reports. A request opens with a pseudo-random
// index; only reporters holding that index in their assignment answer, and
// the first status bucket to collect the minimum number of distinct
// matching reports finalizes the flight. Requests have no expiry: an open
// request stays open until some bucket reaches the threshold.
package oracle

import (
	"encoding/binary"
	"errors"
	"sort"
	"sync"

	"github.com/avianet/skysurety/internal/crypto"
	"github.com/avianet/skysurety/internal/flight"
	"github.com/avianet/skysurety/internal/safemath"
	"github.com/avianet/skysurety/pkg/log"
)

var (
	ErrUnknownReporter   = errors.New("reporter not registered")
	ErrDuplicateReporter = errors.New("reporter already registered")
	ErrWrongStake        = errors.New("stake must equal the required amount exactly")
	ErrWrongIndex        = errors.New("index not in reporter's assignment")
	ErrAlreadyFinalized  = errors.New("flight status already finalized")
	ErrUnknownRequest    = errors.New("no open request for index and flight")
)

// Reporter is a registered status reporter with its lifetime index
// assignment.
type Reporter struct {
	ID      crypto.Identity `json:"id"`
	Indexes []uint8         `json:"indexes"`
}

// Params are the engine's consensus constants.
type Params struct {
	Stake              uint64
	MinResponses       int
	IndexesPerReporter int
	IndexSpace         uint8
}

// FlightRegistry is the engine's view of the flight store.
type FlightRegistry interface {
	Get(key crypto.Hash) (flight.Flight, bool)
	SetStatus(key crypto.Hash, status flight.Status) error
}

// Crediter is invoked when a flight finalizes as late due to the airline.
type Crediter interface {
	CreditInsurees(key crypto.Hash) error
}

// Escrow receives reporter stakes.
type Escrow interface {
	Deposit(amount uint64) error
}

// requestKey identifies one status request. The same flight can carry
// several open requests under different indexes.
type requestKey struct {
	flightKey crypto.Hash
	index     uint8
}

// request aggregates responses per status code. buckets maps a status to
// the set of reporters that submitted it for this request.
type request struct {
	buckets map[flight.Status]map[crypto.Identity]struct{}
}

// Engine owns reporter registrations and response aggregation. All bucket
// updates are serialized under one lock so a threshold crossing and its
// finalization form a single atomic step.
type Engine struct {
	mu         sync.Mutex
	reporters  map[crypto.Identity]*Reporter
	requests   map[requestKey]*request
	regCounter uint64
	nonce      uint64

	flights FlightRegistry
	ledger  Crediter
	escrow  Escrow
	params  Params
}

func NewEngine(flights FlightRegistry, ledger Crediter, escrow Escrow, params Params) *Engine {
	return &Engine{
		reporters: make(map[crypto.Identity]*Reporter),
		requests:  make(map[requestKey]*request),
		flights:   flights,
		ledger:    ledger,
		escrow:    escrow,
		params:    params,
	}
}

// RegisterReporter registers a reporter for the exact stake amount and
// returns its index assignment. Indexes are derived from the identity and
// a monotonic registration counter, so assignments are stable and
// reproducible while still differing between registrations.
func (e *Engine) RegisterReporter(id crypto.Identity, stake uint64) ([]uint8, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if stake != e.params.Stake {
		return nil, ErrWrongStake
	}
	if _, ok := e.reporters[id]; ok {
		return nil, ErrDuplicateReporter
	}
	counter, ok := safemath.Add64(e.regCounter, 1)
	if !ok {
		return nil, safemath.ErrOverflow
	}
	if err := e.escrow.Deposit(stake); err != nil {
		return nil, err
	}

	e.regCounter = counter
	indexes := assignIndexes(id, counter, e.params.IndexesPerReporter, e.params.IndexSpace)
	e.reporters[id] = &Reporter{ID: id, Indexes: indexes}
	log.Consensus.Info().
		Stringer("reporter", id).
		Uints8("indexes", indexes).
		Msg("reporter registered")
	return append([]uint8(nil), indexes...), nil
}

// AssignedIndexes returns the reporter's index assignment.
func (e *Engine) AssignedIndexes(id crypto.Identity) ([]uint8, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.reporters[id]
	if !ok {
		return nil, ErrUnknownReporter
	}
	return append([]uint8(nil), r.Indexes...), nil
}

// RequestStatus opens a status request for the flight and returns the
// chosen index. The index is derived from the flight key and a request
// nonce; it is unpredictable to reporters ahead of time but not secret.
func (e *Engine) RequestStatus(airline crypto.Identity, designator string, departure int64) (uint8, error) {
	key := flight.Key(airline, designator, departure)

	e.mu.Lock()
	defer e.mu.Unlock()

	f, ok := e.flights.Get(key)
	if !ok {
		return 0, flight.ErrUnknownFlight
	}
	if f.StatusFinal {
		return 0, ErrAlreadyFinalized
	}

	nonce, ok := safemath.Add64(e.nonce, 1)
	if !ok {
		return 0, safemath.ErrOverflow
	}
	e.nonce = nonce
	index := deriveIndex(key, nonce, e.params.IndexSpace)

	rk := requestKey{flightKey: key, index: index}
	if _, ok := e.requests[rk]; !ok {
		e.requests[rk] = &request{buckets: make(map[flight.Status]map[crypto.Identity]struct{})}
	}
	log.Consensus.Debug().
		Stringer("flight", key).
		Uint8("index", index).
		Msg("status requested")
	return index, nil
}

// SubmitResponse records one reporter's status report. recorded reports
// whether the tally moved: a duplicate submission from the same reporter
// for the same tuple is a no-op, and submissions after finalization are
// kept for bookkeeping only. When a bucket reaches the minimum agreeing
// count the flight finalizes: the registry takes the status, and a
// late-due-to-airline outcome credits the insurees.
func (e *Engine) SubmitResponse(index uint8, airline crypto.Identity, designator string, departure int64, status flight.Status, reporter crypto.Identity) (recorded, finalized bool, err error) {
	if !status.Valid() || status == flight.StatusUnknown {
		return false, false, flight.ErrBadStatus
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.reporters[reporter]
	if !ok {
		return false, false, ErrUnknownReporter
	}
	if !hasIndex(r.Indexes, index) {
		return false, false, ErrWrongIndex
	}

	key := flight.Key(airline, designator, departure)
	req, ok := e.requests[requestKey{flightKey: key, index: index}]
	if !ok {
		return false, false, ErrUnknownRequest
	}

	bucket := req.buckets[status]
	if bucket == nil {
		bucket = make(map[crypto.Identity]struct{})
		req.buckets[status] = bucket
	}
	if _, ok := bucket[reporter]; ok {
		return false, false, nil
	}
	bucket[reporter] = struct{}{}

	f, ok := e.flights.Get(key)
	if !ok || f.StatusFinal {
		// The flight finalized through another bucket or request; keep the
		// submission for bookkeeping only.
		log.Consensus.Debug().
			Stringer("flight", key).
			Uint8("index", index).
			Stringer("status", status).
			Msg("response after finalization")
		return false, false, nil
	}
	log.Consensus.Debug().
		Stringer("flight", key).
		Uint8("index", index).
		Stringer("status", status).
		Int("responses", len(bucket)).
		Msg("response recorded")

	if len(bucket) < e.params.MinResponses {
		return true, false, nil
	}

	if err := e.flights.SetStatus(key, status); err != nil {
		return true, false, err
	}
	log.Consensus.Info().
		Stringer("flight", key).
		Stringer("status", status).
		Msg("status finalized")

	if status == flight.StatusLateAirline {
		if err := e.ledger.CreditInsurees(key); err != nil {
			return true, true, err
		}
	}
	return true, true, nil
}

// Reporters returns all registered reporters ordered by identity.
func (e *Engine) Reporters() []Reporter {
	e.mu.Lock()
	defer e.mu.Unlock()

	reporters := make([]Reporter, 0, len(e.reporters))
	for _, r := range e.reporters {
		cp := Reporter{ID: r.ID, Indexes: append([]uint8(nil), r.Indexes...)}
		reporters = append(reporters, cp)
	}
	sort.Slice(reporters, func(i, j int) bool {
		return string(reporters[i].ID[:]) < string(reporters[j].ID[:])
	})
	return reporters
}

// RegistrationCounter returns the monotonic registration counter, persisted
// so restored reporters keep their assignments unique.
func (e *Engine) RegistrationCounter() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.regCounter
}

// RestoreReporter inserts a persisted reporter record. Startup recovery
// only.
func (e *Engine) RestoreReporter(r Reporter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := Reporter{ID: r.ID, Indexes: append([]uint8(nil), r.Indexes...)}
	e.reporters[r.ID] = &cp
}

// RestoreRegistrationCounter sets the registration counter. Startup
// recovery only.
func (e *Engine) RestoreRegistrationCounter(counter uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.regCounter = counter
}

func hasIndex(indexes []uint8, index uint8) bool {
	for _, i := range indexes {
		if i == index {
			return true
		}
	}
	return false
}

// assignIndexes draws indexesPerReporter values with replacement from
// [0, indexSpace), each from a hash of the identity, the registration
// counter and the draw position.
func assignIndexes(id crypto.Identity, counter uint64, indexesPerReporter int, indexSpace uint8) []uint8 {
	indexes := make([]uint8, indexesPerReporter)
	buf := make([]byte, 0, crypto.IdentitySize+9)
	buf = append(buf, id[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, counter)
	for i := range indexes {
		h := crypto.HashData(append(buf, uint8(i)))
		indexes[i] = h[0] % indexSpace
	}
	return indexes
}

// deriveIndex picks the request index from the flight key and a
// per-request nonce.
func deriveIndex(key crypto.Hash, nonce uint64, indexSpace uint8) uint8 {
	buf := make([]byte, 0, crypto.HashSize+8)
	buf = append(buf, key[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, nonce)
	h := crypto.HashData(buf)
	return h[0] % indexSpace
}
