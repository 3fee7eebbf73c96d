package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avianet/skysurety/internal/admission"
	"github.com/avianet/skysurety/internal/config"
	"github.com/avianet/skysurety/internal/crypto"
	"github.com/avianet/skysurety/internal/flight"
	"github.com/avianet/skysurety/internal/insurance"
	"github.com/avianet/skysurety/internal/testutils"
)

type collectSink struct {
	events []Event
}

func (s *collectSink) Emit(ev Event) {
	s.events = append(s.events, ev)
}

func (s *collectSink) kinds() []EventKind {
	kinds := make([]EventKind, len(s.events))
	for i, ev := range s.events {
		kinds[i] = ev.Kind
	}
	return kinds
}

type fixture struct {
	app       *App
	sink      *collectSink
	owner     crypto.Identity
	orch      crypto.Identity
	bootstrap crypto.Identity
	params    config.Params
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sink:      &collectSink{},
		owner:     testutils.RandomIdentity(t),
		orch:      testutils.RandomIdentity(t),
		bootstrap: testutils.RandomIdentity(t),
		params:    config.DefaultParams(),
	}
	f.app = New(Options{
		Params:               f.params,
		Owner:                f.owner,
		BootstrapAirline:     f.bootstrap,
		BootstrapAirlineName: "Bootstrap Air",
		Sink:                 f.sink,
	})
	require.NoError(t, f.app.AuthorizeCaller(f.owner, f.orch))
	return f
}

func TestCallerGateDefaultsClosed(t *testing.T) {
	f := newFixture(t)
	stranger := testutils.RandomIdentity(t)

	err := f.app.Fund(stranger, f.bootstrap, f.params.MinAirlineFunding)
	require.Equal(t, ErrCallerNotAuthorized, err)
	require.Empty(t, f.sink.events)

	require.NoError(t, f.app.Fund(f.orch, f.bootstrap, f.params.MinAirlineFunding))

	// Deauthorization closes the gate again
	require.NoError(t, f.app.DeauthorizeCaller(f.owner, f.orch))
	_, err = f.app.Nominate(f.orch, "Second Air", testutils.RandomIdentity(t), f.bootstrap)
	require.Equal(t, ErrCallerNotAuthorized, err)
}

func TestOnlyOwnerAdministers(t *testing.T) {
	f := newFixture(t)
	stranger := testutils.RandomIdentity(t)

	require.Equal(t, ErrNotOwner, f.app.AuthorizeCaller(stranger, stranger))
	require.Equal(t, ErrNotOwner, f.app.DeauthorizeCaller(stranger, f.orch))
	require.Equal(t, ErrNotOwner, f.app.SetOperational(stranger, false))
}

func TestOperationalFlag(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.app.IsOperational())

	require.NoError(t, f.app.SetOperational(f.owner, false))
	require.False(t, f.app.IsOperational())

	err := f.app.Fund(f.orch, f.bootstrap, f.params.MinAirlineFunding)
	require.Equal(t, ErrNotOperational, err)

	// Re-enabling works while disabled
	require.NoError(t, f.app.SetOperational(f.owner, true))
	require.NoError(t, f.app.Fund(f.orch, f.bootstrap, f.params.MinAirlineFunding))

	// Only actual flips emit events
	require.NoError(t, f.app.SetOperational(f.owner, true))
	require.Equal(t, []EventKind{
		EventOperationalChanged, EventOperationalChanged, EventAirlineFunded,
	}, f.sink.kinds())
}

func TestFailedOperationsEmitNothing(t *testing.T) {
	f := newFixture(t)

	err := f.app.Fund(f.orch, f.bootstrap, f.params.MinAirlineFunding-1)
	require.Equal(t, admission.ErrWrongFundingAmount, err)
	require.False(t, f.app.IsAirlineFunded(f.bootstrap))
	require.Empty(t, f.sink.events)

	_, err = f.app.RegisterFlight(f.orch, f.bootstrap, "SS1014", 1735689600)
	require.Equal(t, admission.ErrNotFunded, err)
	require.Empty(t, f.sink.events)
}

func TestRegisterFlightRequiresFundedAirline(t *testing.T) {
	f := newFixture(t)

	_, err := f.app.RegisterFlight(f.orch, testutils.RandomIdentity(t), "SS1014", 1735689600)
	require.Equal(t, admission.ErrNotRegistered, err)

	require.NoError(t, f.app.Fund(f.orch, f.bootstrap, f.params.MinAirlineFunding))
	key, err := f.app.RegisterFlight(f.orch, f.bootstrap, "SS1014", 1735689600)
	require.NoError(t, err)

	got, ok := f.app.Flight(key)
	require.True(t, ok)
	require.Equal(t, flight.StatusUnknown, got.Status)
}

// runConsensus registers reporters until three hold the request's index
// and submits matching reports from them.
func runConsensus(t *testing.T, f *fixture, airline crypto.Identity, designator string, departure int64, status flight.Status) crypto.Hash {
	t.Helper()
	index, err := f.app.RequestStatus(f.orch, airline, designator, departure)
	require.NoError(t, err)

	var matching []crypto.Identity
	for i := 0; i < 1000 && len(matching) < 3; i++ {
		id := testutils.RandomIdentity(t)
		indexes, err := f.app.RegisterReporter(f.orch, id, f.params.ReporterStake)
		require.NoError(t, err)
		for _, idx := range indexes {
			if idx == index {
				matching = append(matching, id)
				break
			}
		}
	}
	require.Len(t, matching, 3)

	for i, reporter := range matching {
		finalized, err := f.app.SubmitResponse(f.orch, index, airline, designator, departure, status, reporter)
		require.NoError(t, err)
		require.Equal(t, i == len(matching)-1, finalized)
	}
	return flight.Key(airline, designator, departure)
}

// TestLateAirlinePayoutScenario walks the full flow: funding, coverage,
// consensus on a late-due-to-airline status, crediting at 1.5x, and a
// one-time full withdrawal.
func TestLateAirlinePayoutScenario(t *testing.T) {
	f := newFixture(t)
	passenger := testutils.RandomIdentity(t)

	require.NoError(t, f.app.Fund(f.orch, f.bootstrap, f.params.MinAirlineFunding))
	key, err := f.app.RegisterFlight(f.orch, f.bootstrap, "SS1014", 1735689600)
	require.NoError(t, err)

	require.NoError(t, f.app.Purchase(f.orch, key, passenger, 100))
	require.EqualValues(t, 100, f.app.CoverageOf(passenger, key))

	require.Equal(t, key, runConsensus(t, f, f.bootstrap, "SS1014", 1735689600, flight.StatusLateAirline))

	got, _ := f.app.Flight(key)
	require.Equal(t, flight.StatusLateAirline, got.Status)
	require.True(t, got.StatusFinal)
	require.EqualValues(t, 150, f.app.Credit(passenger))

	// Coverage can no longer be bought on the finalized flight
	err = f.app.Purchase(f.orch, key, testutils.RandomIdentity(t), 100)
	require.Equal(t, insurance.ErrFlightNotOpen, err)

	balanceBefore := f.app.EscrowBalance()
	require.NoError(t, f.app.Withdraw(f.orch, passenger, passenger))
	require.EqualValues(t, 0, f.app.Credit(passenger))
	require.Equal(t, balanceBefore-150, f.app.EscrowBalance())

	err = f.app.Withdraw(f.orch, passenger, passenger)
	require.Equal(t, insurance.ErrNoCredit, err)

	// Withdrawal on behalf of someone else is rejected
	err = f.app.Withdraw(f.orch, f.orch, passenger)
	require.Equal(t, insurance.ErrNotPassenger, err)
}

func TestOnTimeFlightDoesNotCredit(t *testing.T) {
	f := newFixture(t)
	passenger := testutils.RandomIdentity(t)

	require.NoError(t, f.app.Fund(f.orch, f.bootstrap, f.params.MinAirlineFunding))
	key, err := f.app.RegisterFlight(f.orch, f.bootstrap, "SS1014", 1735689600)
	require.NoError(t, err)
	require.NoError(t, f.app.Purchase(f.orch, key, passenger, 100))

	runConsensus(t, f, f.bootstrap, "SS1014", 1735689600, flight.StatusOnTime)

	require.EqualValues(t, 0, f.app.Credit(passenger))
	err = f.app.CreditInsurees(f.orch, key)
	require.Equal(t, insurance.ErrFlightNotLate, err)
}

func TestCreditInsureesIdempotentAtBoundary(t *testing.T) {
	f := newFixture(t)
	passenger := testutils.RandomIdentity(t)

	require.NoError(t, f.app.Fund(f.orch, f.bootstrap, f.params.MinAirlineFunding))
	key, err := f.app.RegisterFlight(f.orch, f.bootstrap, "SS1014", 1735689600)
	require.NoError(t, err)
	require.NoError(t, f.app.Purchase(f.orch, key, passenger, 100))
	runConsensus(t, f, f.bootstrap, "SS1014", 1735689600, flight.StatusLateAirline)

	credited := 0
	for _, ev := range f.sink.events {
		if ev.Kind == EventInsureesCredited {
			credited++
		}
	}
	require.Equal(t, 1, credited)

	// A duplicate crediting call is a no-op and emits nothing
	require.NoError(t, f.app.CreditInsurees(f.orch, key))
	require.EqualValues(t, 150, f.app.Credit(passenger))
	total := 0
	for _, ev := range f.sink.events {
		if ev.Kind == EventInsureesCredited {
			total++
		}
	}
	require.Equal(t, 1, total)
}

// TestInertResponsesEmitNothing submits reports the engine treats as
// no-ops and checks no notification is raised for them.
func TestInertResponsesEmitNothing(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.app.Fund(f.orch, f.bootstrap, f.params.MinAirlineFunding))
	_, err := f.app.RegisterFlight(f.orch, f.bootstrap, "SS1014", 1735689600)
	require.NoError(t, err)
	index, err := f.app.RequestStatus(f.orch, f.bootstrap, "SS1014", 1735689600)
	require.NoError(t, err)

	var reporter crypto.Identity
	for i := 0; i < 1000 && reporter.IsZero(); i++ {
		id := testutils.RandomIdentity(t)
		indexes, err := f.app.RegisterReporter(f.orch, id, f.params.ReporterStake)
		require.NoError(t, err)
		for _, idx := range indexes {
			if idx == index {
				reporter = id
				break
			}
		}
	}
	require.False(t, reporter.IsZero())

	responses := func() int {
		n := 0
		for _, ev := range f.sink.events {
			if ev.Kind == EventResponseRecorded {
				n++
			}
		}
		return n
	}

	_, err = f.app.SubmitResponse(f.orch, index, f.bootstrap, "SS1014", 1735689600, flight.StatusOnTime, reporter)
	require.NoError(t, err)
	require.Equal(t, 1, responses())

	// The duplicate moves nothing and emits nothing
	_, err = f.app.SubmitResponse(f.orch, index, f.bootstrap, "SS1014", 1735689600, flight.StatusOnTime, reporter)
	require.NoError(t, err)
	require.Equal(t, 1, responses())
}

func TestAdmissionScenario(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.app.Fund(f.orch, f.bootstrap, f.params.MinAirlineFunding))

	// Grow the registry to 4 funded airlines
	airlines := []crypto.Identity{f.bootstrap}
	for len(airlines) < 4 {
		candidate := testutils.RandomIdentity(t)
		promoted, err := f.app.Nominate(f.orch, "Airline", candidate, airlines[0])
		require.NoError(t, err)
		for i := 1; !promoted; i++ {
			promoted, err = f.app.Vote(f.orch, candidate, airlines[i])
			require.NoError(t, err)
		}
		require.NoError(t, f.app.Fund(f.orch, candidate, f.params.MinAirlineFunding))
		airlines = append(airlines, candidate)
	}
	require.Equal(t, 4, f.app.RegisteredAirlines())

	// Fifth airline needs ⌈4/2⌉ = 2 distinct voters
	candidate := testutils.RandomIdentity(t)
	promoted, err := f.app.Nominate(f.orch, "Fifth Air", candidate, airlines[0])
	require.NoError(t, err)
	require.False(t, promoted)
	require.True(t, f.app.IsAirlinePending(candidate))
	require.EqualValues(t, 1, f.app.Votes(candidate))

	_, err = f.app.Vote(f.orch, candidate, airlines[0])
	require.Equal(t, admission.ErrDuplicateVote, err)

	promoted, err = f.app.Vote(f.orch, candidate, airlines[1])
	require.NoError(t, err)
	require.True(t, promoted)
	require.True(t, f.app.IsAirlineRegistered(candidate))
	require.False(t, f.app.IsAirlinePending(candidate))
}
