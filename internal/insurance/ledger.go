// Package insurance implements the underwriting and payout ledger.
// Passengers buy at most one unit of coverage per flight; a flight
// finalized as late due to the airline credits each insured passenger at
// the payout multiplier, and credit is settled by a full withdrawal.
package insurance

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/avianet/skysurety/internal/crypto"
	"github.com/avianet/skysurety/internal/flight"
	"github.com/avianet/skysurety/internal/safemath"
	"github.com/avianet/skysurety/pkg/log"
)

var (
	ErrCoverageBounds     = errors.New("coverage amount out of bounds")
	ErrDuplicateCoverage  = errors.New("passenger already insured for flight")
	ErrUnknownFlight      = errors.New("flight not registered")
	ErrFlightNotOpen      = errors.New("flight status already finalized")
	ErrFlightNotLate      = errors.New("flight is not late due to airline")
	ErrNoCredit           = errors.New("passenger has no credit")
	ErrInsufficientEscrow = errors.New("escrow balance does not cover withdrawal")
	ErrNotPassenger       = errors.New("caller is not the passenger")
)

// Passenger holds per-flight insured amounts and the accrued credit
// balance. Coverage entries are write-once per flight key.
type Passenger struct {
	ID       crypto.Identity        `json:"id"`
	Coverage map[crypto.Hash]uint64 `json:"coverage"`
	Credit   uint64                 `json:"credit"`
}

// FlightSource exposes flight records to the ledger.
type FlightSource interface {
	Get(key crypto.Hash) (flight.Flight, bool)
}

// Transferor releases withdrawn funds to the passenger. It is the external
// effect boundary: the ledger zeroes the credit and reduces the escrow
// before invoking it, so a re-entrant withdrawal observes no credit.
type Transferor interface {
	Transfer(passenger crypto.Identity, amount uint64) error
}

// LogTransferor is the default Transferor; it only records the release,
// leaving actual settlement to the orchestrating layer.
type LogTransferor struct{}

func (LogTransferor) Transfer(passenger crypto.Identity, amount uint64) error {
	log.Ledger.Info().Stringer("passenger", passenger).Uint64("amount", amount).Msg("funds released")
	return nil
}

// Ledger owns passenger records and the escrow balance. The balance is the
// pool of airline funding, reporter stakes and premiums that withdrawals
// draw from.
type Ledger struct {
	mu         sync.Mutex
	balance    uint64
	passengers map[crypto.Identity]*Passenger
	credited   map[crypto.Hash]bool
	flights    FlightSource
	transferor Transferor

	maxCoverage uint64
	payoutNum   uint64
	payoutDen   uint64
}

func NewLedger(flights FlightSource, transferor Transferor, maxCoverage, payoutNum, payoutDen uint64) *Ledger {
	return &Ledger{
		passengers:  make(map[crypto.Identity]*Passenger),
		credited:    make(map[crypto.Hash]bool),
		flights:     flights,
		transferor:  transferor,
		maxCoverage: maxCoverage,
		payoutNum:   payoutNum,
		payoutDen:   payoutDen,
	}
}

// Deposit adds funds (airline funding, reporter stakes, premiums) to the
// escrow balance.
func (l *Ledger) Deposit(amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := safemath.Add64(l.balance, amount)
	if !ok {
		return safemath.ErrOverflow
	}
	l.balance = balance
	return nil
}

// Balance returns the current escrow balance.
func (l *Ledger) Balance() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// Purchase records write-once coverage for a passenger on a flight whose
// status is still open. The premium joins the escrow balance.
func (l *Ledger) Purchase(key crypto.Hash, passenger crypto.Identity, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount == 0 || amount > l.maxCoverage {
		return ErrCoverageBounds
	}
	f, ok := l.flights.Get(key)
	if !ok {
		return ErrUnknownFlight
	}
	if f.StatusFinal || f.Status != flight.StatusUnknown {
		return ErrFlightNotOpen
	}

	p := l.passengers[passenger]
	if p != nil && p.Coverage[key] != 0 {
		return ErrDuplicateCoverage
	}
	balance, ok := safemath.Add64(l.balance, amount)
	if !ok {
		return safemath.ErrOverflow
	}

	if p == nil {
		p = &Passenger{ID: passenger, Coverage: make(map[crypto.Hash]uint64)}
		l.passengers[passenger] = p
	}
	p.Coverage[key] = amount
	l.balance = balance
	log.Ledger.Debug().
		Stringer("passenger", passenger).
		Stringer("flight", key).
		Uint64("amount", amount).
		Msg("coverage purchased")
	return nil
}

// CreditInsurees credits every passenger insured on the flight at the
// payout multiplier. It has an observable effect at most once per flight
// key: repeated invocations are no-ops.
func (l *Ledger) CreditInsurees(key crypto.Hash) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.credited[key] {
		return nil
	}
	f, ok := l.flights.Get(key)
	if !ok {
		return ErrUnknownFlight
	}
	if f.Status != flight.StatusLateAirline {
		return ErrFlightNotLate
	}

	// Compute every payout before applying any, so an overflow rejects the
	// whole operation without partial credit.
	type payout struct {
		p      *Passenger
		credit uint64
	}
	var payouts []payout
	for _, p := range l.passengers {
		amount := p.Coverage[key]
		if amount == 0 {
			continue
		}
		scaled, ok := safemath.Mul64(amount, l.payoutNum)
		if !ok {
			return safemath.ErrOverflow
		}
		credit, ok := safemath.Add64(p.Credit, scaled/l.payoutDen)
		if !ok {
			return safemath.ErrOverflow
		}
		payouts = append(payouts, payout{p: p, credit: credit})
	}

	for _, po := range payouts {
		po.p.Credit = po.credit
	}
	l.credited[key] = true
	log.Ledger.Info().
		Stringer("flight", key).
		Int("insurees", len(payouts)).
		Msg("insurees credited")
	return nil
}

// Withdraw settles the passenger's full credit. Only the passenger itself
// may withdraw; the credit is zeroed and the escrow reduced before the
// transfer fires, so a transfer-triggered re-entry observes a zero balance.
func (l *Ledger) Withdraw(origin, passenger crypto.Identity) error {
	if origin != passenger {
		return ErrNotPassenger
	}

	l.mu.Lock()
	p, ok := l.passengers[passenger]
	if !ok || p.Credit == 0 {
		l.mu.Unlock()
		return ErrNoCredit
	}
	balance, ok := safemath.Sub64(l.balance, p.Credit)
	if !ok {
		l.mu.Unlock()
		return ErrInsufficientEscrow
	}
	amount := p.Credit
	p.Credit = 0
	l.balance = balance
	l.mu.Unlock()

	if err := l.transferor.Transfer(passenger, amount); err != nil {
		// The release never happened; reinstate the liability.
		l.mu.Lock()
		p.Credit += amount
		l.balance += amount
		l.mu.Unlock()
		return fmt.Errorf("release funds: %w", err)
	}
	return nil
}

// Credit returns the passenger's current credit balance.
func (l *Ledger) Credit(passenger crypto.Identity) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.passengers[passenger]
	if !ok {
		return 0
	}
	return p.Credit
}

// CoverageOf returns the insured amount for a passenger and flight, zero
// when not insured.
func (l *Ledger) CoverageOf(passenger crypto.Identity, key crypto.Hash) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.passengers[passenger]
	if !ok {
		return 0
	}
	return p.Coverage[key]
}

// Credited reports whether the flight's insurees have been credited.
func (l *Ledger) Credited(key crypto.Hash) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.credited[key]
}

// Passengers returns all passenger records ordered by identity.
func (l *Ledger) Passengers() []Passenger {
	l.mu.Lock()
	defer l.mu.Unlock()

	passengers := make([]Passenger, 0, len(l.passengers))
	for _, p := range l.passengers {
		cp := Passenger{ID: p.ID, Coverage: make(map[crypto.Hash]uint64, len(p.Coverage)), Credit: p.Credit}
		for k, v := range p.Coverage {
			cp.Coverage[k] = v
		}
		passengers = append(passengers, cp)
	}
	sort.Slice(passengers, func(i, j int) bool {
		return string(passengers[i].ID[:]) < string(passengers[j].ID[:])
	})
	return passengers
}

// CreditedFlights returns the keys of flights whose insurees have been
// credited, ordered by key.
func (l *Ledger) CreditedFlights() []crypto.Hash {
	l.mu.Lock()
	defer l.mu.Unlock()

	keys := make([]crypto.Hash, 0, len(l.credited))
	for k := range l.credited {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return string(keys[i][:]) < string(keys[j][:])
	})
	return keys
}

// RestorePassenger inserts a persisted passenger record. Startup recovery
// only.
func (l *Ledger) RestorePassenger(p Passenger) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cp := Passenger{ID: p.ID, Coverage: make(map[crypto.Hash]uint64, len(p.Coverage)), Credit: p.Credit}
	for k, v := range p.Coverage {
		cp.Coverage[k] = v
	}
	l.passengers[p.ID] = &cp
}

// RestoreCredited marks a flight as already credited. Startup recovery
// only.
func (l *Ledger) RestoreCredited(key crypto.Hash) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credited[key] = true
}

// RestoreBalance sets the escrow balance. Startup recovery only.
func (l *Ledger) RestoreBalance(balance uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance = balance
}
