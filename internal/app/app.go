// Package app composes the admission controller, flight registry,
// consensus engine and insurance ledger behind one authorization boundary.
// The orchestrating collaborator authenticates external callers and
// forwards validated calls here; the app enforces the operational flag and
// the authorized-caller set, emits one notification per state transition,
// and writes mutated entities through to the persistent store.
package app

import (
	"errors"
	"sync"

	"github.com/avianet/skysurety/internal/admission"
	"github.com/avianet/skysurety/internal/config"
	"github.com/avianet/skysurety/internal/crypto"
	"github.com/avianet/skysurety/internal/flight"
	"github.com/avianet/skysurety/internal/insurance"
	"github.com/avianet/skysurety/internal/oracle"
	"github.com/avianet/skysurety/internal/store"
	"github.com/avianet/skysurety/pkg/log"
)

var (
	ErrNotOperational      = errors.New("contract is not operational")
	ErrCallerNotAuthorized = errors.New("caller is not authorized")
	ErrNotOwner            = errors.New("caller is not the owner")
)

// Options configures a new App.
type Options struct {
	Params config.Params
	// Owner may change the operational flag and the authorized-caller set.
	Owner crypto.Identity
	// BootstrapAirline is registered (unfunded) at construction.
	BootstrapAirline     crypto.Identity
	BootstrapAirlineName string
	// State enables write-through persistence when non-nil.
	State *store.State
	// Sink receives state-transition events; LogSink when nil.
	Sink Sink
	// Transferor releases withdrawn funds; insurance.LogTransferor when nil.
	Transferor insurance.Transferor
}

// App is the boundary around the ledger core. The authorized-caller set
// defaults closed: until the owner authorizes an orchestrator identity,
// every mutating operation is rejected.
type App struct {
	mu          sync.Mutex
	owner       crypto.Identity
	operational bool
	authorized  map[crypto.Identity]struct{}

	controller *admission.Controller
	registry   *flight.Registry
	engine     *oracle.Engine
	ledger     *insurance.Ledger
	state      *store.State
	sink       Sink
}

func New(opts Options) *App {
	if opts.Sink == nil {
		opts.Sink = LogSink{}
	}
	if opts.Transferor == nil {
		opts.Transferor = insurance.LogTransferor{}
	}

	registry := flight.NewRegistry()
	ledger := insurance.NewLedger(registry, opts.Transferor,
		opts.Params.MaxCoverage, opts.Params.PayoutNumerator, opts.Params.PayoutDenominator)
	controller := admission.NewController(opts.BootstrapAirline, opts.BootstrapAirlineName,
		opts.Params.MinAirlineFunding, ledger)
	engine := oracle.NewEngine(registry, ledger, ledger, oracle.Params{
		Stake:              opts.Params.ReporterStake,
		MinResponses:       opts.Params.MinResponses,
		IndexesPerReporter: opts.Params.IndexesPerReporter,
		IndexSpace:         opts.Params.IndexSpace,
	})

	return &App{
		owner:       opts.Owner,
		operational: true,
		authorized:  make(map[crypto.Identity]struct{}),
		controller:  controller,
		registry:    registry,
		engine:      engine,
		ledger:      ledger,
		state:       opts.State,
		sink:        opts.Sink,
	}
}

// guard rejects the call unless the contract is operational and the caller
// is in the authorized set.
func (a *App) guard(caller crypto.Identity) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.operational {
		return ErrNotOperational
	}
	if _, ok := a.authorized[caller]; !ok {
		return ErrCallerNotAuthorized
	}
	return nil
}

// SetOperational flips the operational flag. Owner only; this is the one
// mutating operation that works while the contract is disabled.
func (a *App) SetOperational(caller crypto.Identity, operational bool) error {
	a.mu.Lock()
	if caller != a.owner {
		a.mu.Unlock()
		return ErrNotOwner
	}
	changed := a.operational != operational
	a.operational = operational
	a.mu.Unlock()

	if changed {
		a.sink.Emit(Event{Kind: EventOperationalChanged, Operational: operational})
	}
	return nil
}

// IsOperational reports the operational flag.
func (a *App) IsOperational() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.operational
}

// AuthorizeCaller admits an identity to the mutating operations. Owner
// only.
func (a *App) AuthorizeCaller(caller, id crypto.Identity) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if caller != a.owner {
		return ErrNotOwner
	}
	a.authorized[id] = struct{}{}
	return nil
}

// DeauthorizeCaller removes an identity from the authorized set. Owner
// only.
func (a *App) DeauthorizeCaller(caller, id crypto.Identity) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if caller != a.owner {
		return ErrNotOwner
	}
	delete(a.authorized, id)
	return nil
}

// Nominate proposes a new airline with one vote from the nominator.
func (a *App) Nominate(caller crypto.Identity, name string, candidate, nominator crypto.Identity) (promoted bool, err error) {
	if err := a.guard(caller); err != nil {
		return false, err
	}
	promoted, err = a.controller.Nominate(name, candidate, nominator)
	if err != nil {
		return false, err
	}
	if err := a.persistAdmission(candidate, promoted); err != nil {
		return promoted, err
	}
	a.sink.Emit(Event{Kind: EventAirlineNominated, Candidate: candidate, Airline: nominator})
	if promoted {
		a.sink.Emit(Event{Kind: EventAirlineRegistered, Airline: candidate})
	}
	return promoted, nil
}

// Vote records one admission vote for a pending candidate.
func (a *App) Vote(caller crypto.Identity, candidate, voter crypto.Identity) (promoted bool, err error) {
	if err := a.guard(caller); err != nil {
		return false, err
	}
	promoted, err = a.controller.Vote(candidate, voter)
	if err != nil {
		return false, err
	}
	if err := a.persistAdmission(candidate, promoted); err != nil {
		return promoted, err
	}
	if promoted {
		a.sink.Emit(Event{Kind: EventAirlineRegistered, Airline: candidate})
	}
	return promoted, nil
}

// Fund records the airline's exact funding contribution.
func (a *App) Fund(caller crypto.Identity, airline crypto.Identity, amount uint64) error {
	if err := a.guard(caller); err != nil {
		return err
	}
	if err := a.controller.Fund(airline, amount); err != nil {
		return err
	}
	if a.state != nil {
		u := a.state.NewUpdate()
		defer u.Close()
		if err := a.stageAirline(u, airline); err != nil {
			return err
		}
		if err := u.PutEscrowBalance(a.ledger.Balance()); err != nil {
			return err
		}
		if err := u.Commit(); err != nil {
			return err
		}
	}
	a.sink.Emit(Event{Kind: EventAirlineFunded, Airline: airline, Amount: amount})
	return nil
}

// RegisterFlight creates a flight with status Unknown. Only funded
// airlines may register flights.
func (a *App) RegisterFlight(caller crypto.Identity, airline crypto.Identity, designator string, departure int64) (crypto.Hash, error) {
	if err := a.guard(caller); err != nil {
		return crypto.Hash{}, err
	}
	if !a.controller.IsRegistered(airline) {
		return crypto.Hash{}, admission.ErrNotRegistered
	}
	if !a.controller.IsFunded(airline) {
		return crypto.Hash{}, admission.ErrNotFunded
	}
	key, err := a.registry.Register(airline, designator, departure)
	if err != nil {
		return crypto.Hash{}, err
	}
	if err := a.persistFlight(key); err != nil {
		return key, err
	}
	a.sink.Emit(Event{Kind: EventFlightRegistered, Flight: key, Airline: airline})
	return key, nil
}

// RegisterReporter admits a status reporter for the exact stake and
// returns its index assignment.
func (a *App) RegisterReporter(caller crypto.Identity, reporter crypto.Identity, stake uint64) ([]uint8, error) {
	if err := a.guard(caller); err != nil {
		return nil, err
	}
	indexes, err := a.engine.RegisterReporter(reporter, stake)
	if err != nil {
		return nil, err
	}
	if a.state != nil {
		u := a.state.NewUpdate()
		defer u.Close()
		if err := u.PutReporter(oracle.Reporter{ID: reporter, Indexes: indexes}); err != nil {
			return indexes, err
		}
		if err := u.PutReporterCounter(a.engine.RegistrationCounter()); err != nil {
			return indexes, err
		}
		if err := u.PutEscrowBalance(a.ledger.Balance()); err != nil {
			return indexes, err
		}
		if err := u.Commit(); err != nil {
			return indexes, err
		}
	}
	a.sink.Emit(Event{Kind: EventReporterRegistered, Reporter: reporter, Amount: stake})
	return indexes, nil
}

// AssignedIndexes returns a reporter's index assignment.
func (a *App) AssignedIndexes(reporter crypto.Identity) ([]uint8, error) {
	return a.engine.AssignedIndexes(reporter)
}

// RequestStatus opens a consensus round for the flight and returns the
// chosen index.
func (a *App) RequestStatus(caller crypto.Identity, airline crypto.Identity, designator string, departure int64) (uint8, error) {
	if err := a.guard(caller); err != nil {
		return 0, err
	}
	index, err := a.engine.RequestStatus(airline, designator, departure)
	if err != nil {
		return 0, err
	}
	key := flight.Key(airline, designator, departure)
	a.sink.Emit(Event{Kind: EventStatusRequested, Flight: key, Index: index})
	return index, nil
}

// SubmitResponse records one reporter's status report and, on threshold,
// finalizes the flight.
func (a *App) SubmitResponse(caller crypto.Identity, index uint8, airline crypto.Identity, designator string, departure int64, status flight.Status, reporter crypto.Identity) (finalized bool, err error) {
	if err := a.guard(caller); err != nil {
		return false, err
	}
	recorded, finalized, err := a.engine.SubmitResponse(index, airline, designator, departure, status, reporter)
	if err != nil {
		return finalized, err
	}
	if !recorded {
		return false, nil
	}

	key := flight.Key(airline, designator, departure)
	a.sink.Emit(Event{Kind: EventResponseRecorded, Flight: key, Index: index, Status: status, Reporter: reporter})
	if !finalized {
		return false, nil
	}

	// The finalized status and any crediting land in one atomic commit.
	credited := a.ledger.Credited(key)
	if a.state != nil {
		u := a.state.NewUpdate()
		defer u.Close()
		if err := a.stageFlight(u, key); err != nil {
			return true, err
		}
		if credited {
			if err := a.stageCrediting(u, key); err != nil {
				return true, err
			}
		}
		if err := u.Commit(); err != nil {
			return true, err
		}
	}
	a.sink.Emit(Event{Kind: EventStatusFinalized, Flight: key, Status: status})
	if credited {
		a.sink.Emit(Event{Kind: EventInsureesCredited, Flight: key})
	}
	return true, nil
}

// Purchase records write-once coverage for a passenger.
func (a *App) Purchase(caller crypto.Identity, key crypto.Hash, passenger crypto.Identity, amount uint64) error {
	if err := a.guard(caller); err != nil {
		return err
	}
	if err := a.ledger.Purchase(key, passenger, amount); err != nil {
		return err
	}
	if a.state != nil {
		u := a.state.NewUpdate()
		defer u.Close()
		if err := a.stagePassenger(u, passenger); err != nil {
			return err
		}
		if err := u.PutEscrowBalance(a.ledger.Balance()); err != nil {
			return err
		}
		if err := u.Commit(); err != nil {
			return err
		}
	}
	a.sink.Emit(Event{Kind: EventCoveragePurchased, Flight: key, Passenger: passenger, Amount: amount})
	return nil
}

// CreditInsurees credits all passengers insured on a flight that was
// finalized late due to the airline. Normally invoked by the consensus
// engine on finalization; exposed for the orchestrator as well. Repeated
// calls are no-ops and emit nothing.
func (a *App) CreditInsurees(caller crypto.Identity, key crypto.Hash) error {
	if err := a.guard(caller); err != nil {
		return err
	}
	if a.ledger.Credited(key) {
		return nil
	}
	if err := a.ledger.CreditInsurees(key); err != nil {
		return err
	}
	if a.state != nil {
		u := a.state.NewUpdate()
		defer u.Close()
		if err := a.stageCrediting(u, key); err != nil {
			return err
		}
		if err := u.Commit(); err != nil {
			return err
		}
	}
	a.sink.Emit(Event{Kind: EventInsureesCredited, Flight: key})
	return nil
}

// Withdraw settles a passenger's full credit. origin is the authenticated
// identity the orchestrator validated; only the passenger itself may
// withdraw.
func (a *App) Withdraw(caller crypto.Identity, origin, passenger crypto.Identity) error {
	if err := a.guard(caller); err != nil {
		return err
	}
	amount := a.ledger.Credit(passenger)
	if err := a.ledger.Withdraw(origin, passenger); err != nil {
		return err
	}
	if a.state != nil {
		u := a.state.NewUpdate()
		defer u.Close()
		if err := a.stagePassenger(u, passenger); err != nil {
			return err
		}
		if err := u.PutEscrowBalance(a.ledger.Balance()); err != nil {
			return err
		}
		if err := u.Commit(); err != nil {
			return err
		}
	}
	a.sink.Emit(Event{Kind: EventCreditWithdrawn, Passenger: passenger, Amount: amount})
	return nil
}

// Read queries. All are side-effect free and bypass the caller gate.

func (a *App) IsAirlineRegistered(id crypto.Identity) bool { return a.controller.IsRegistered(id) }
func (a *App) IsAirlinePending(id crypto.Identity) bool    { return a.controller.IsPending(id) }
func (a *App) IsAirlineFunded(id crypto.Identity) bool     { return a.controller.IsFunded(id) }
func (a *App) RegisteredAirlines() int                     { return a.controller.RegisteredCount() }
func (a *App) Votes(candidate crypto.Identity) uint32      { return a.controller.Votes(candidate) }

func (a *App) Flight(key crypto.Hash) (flight.Flight, bool) { return a.registry.Get(key) }

func (a *App) Credit(passenger crypto.Identity) uint64 { return a.ledger.Credit(passenger) }
func (a *App) CoverageOf(passenger crypto.Identity, key crypto.Hash) uint64 {
	return a.ledger.CoverageOf(passenger, key)
}
func (a *App) EscrowBalance() uint64 { return a.ledger.Balance() }

// persistAdmission commits the candidate's admission state after a
// nomination or vote. A promotion removes the pending record and writes
// the airline record atomically.
func (a *App) persistAdmission(candidate crypto.Identity, promoted bool) error {
	if a.state == nil {
		return nil
	}
	u := a.state.NewUpdate()
	defer u.Close()
	if promoted {
		if err := u.DeletePending(candidate); err != nil {
			return err
		}
		if err := a.stageAirline(u, candidate); err != nil {
			return err
		}
		return u.Commit()
	}
	for _, p := range a.controller.PendingAirlines() {
		if p.ID == candidate {
			if err := u.PutPending(p); err != nil {
				return err
			}
			return u.Commit()
		}
	}
	return nil
}

func (a *App) stageAirline(u *store.Update, id crypto.Identity) error {
	for _, airline := range a.controller.Airlines() {
		if airline.ID == id {
			return u.PutAirline(airline)
		}
	}
	return nil
}

func (a *App) persistFlight(key crypto.Hash) error {
	if a.state == nil {
		return nil
	}
	f, ok := a.registry.Get(key)
	if !ok {
		return nil
	}
	return a.state.PutFlight(f)
}

func (a *App) stageFlight(u *store.Update, key crypto.Hash) error {
	f, ok := a.registry.Get(key)
	if !ok {
		return nil
	}
	return u.PutFlight(f)
}

func (a *App) stagePassenger(u *store.Update, id crypto.Identity) error {
	for _, p := range a.ledger.Passengers() {
		if p.ID == id {
			return u.PutPassenger(p)
		}
	}
	return nil
}

// stageCrediting stages every insured passenger's new credit balance and
// then the credited flag, so the flag can never land without the credits.
func (a *App) stageCrediting(u *store.Update, key crypto.Hash) error {
	for _, p := range a.ledger.Passengers() {
		if p.Coverage[key] == 0 {
			continue
		}
		if err := u.PutPassenger(p); err != nil {
			return err
		}
	}
	return u.PutCredited(key)
}

// Restore rebuilds an App from persisted state. The options' State must be
// non-nil; entities load in dependency order and the bootstrap airline is
// overwritten by its persisted record when present.
func Restore(opts Options) (*App, error) {
	a := New(opts)
	if a.state == nil {
		return a, nil
	}

	airlines, err := a.state.Airlines()
	if err != nil {
		return nil, err
	}
	for _, airline := range airlines {
		a.controller.RestoreAirline(airline)
	}
	pending, err := a.state.PendingAirlines()
	if err != nil {
		return nil, err
	}
	for _, p := range pending {
		a.controller.RestorePending(p)
	}
	flights, err := a.state.Flights()
	if err != nil {
		return nil, err
	}
	for _, f := range flights {
		a.registry.Restore(f)
	}
	passengers, err := a.state.Passengers()
	if err != nil {
		return nil, err
	}
	for _, p := range passengers {
		a.ledger.RestorePassenger(p)
	}
	credited, err := a.state.CreditedFlights()
	if err != nil {
		return nil, err
	}
	for _, key := range credited {
		a.ledger.RestoreCredited(key)
	}
	reporters, err := a.state.Reporters()
	if err != nil {
		return nil, err
	}
	for _, r := range reporters {
		a.engine.RestoreReporter(r)
	}
	counter, err := a.state.ReporterCounter()
	if err != nil {
		return nil, err
	}
	a.engine.RestoreRegistrationCounter(counter)
	balance, err := a.state.EscrowBalance()
	if err != nil {
		return nil, err
	}
	a.ledger.RestoreBalance(balance)

	log.Store.Info().
		Int("airlines", len(airlines)).
		Int("pending", len(pending)).
		Int("flights", len(flights)).
		Int("passengers", len(passengers)).
		Int("reporters", len(reporters)).
		Msg("state restored")
	return a, nil
}
