package app

import (
	"github.com/avianet/skysurety/internal/crypto"
	"github.com/avianet/skysurety/internal/flight"
	"github.com/avianet/skysurety/pkg/log"
)

type EventKind string

const (
	EventAirlineNominated   EventKind = "airline-nominated"
	EventAirlineRegistered  EventKind = "airline-registered"
	EventAirlineFunded      EventKind = "airline-funded"
	EventFlightRegistered   EventKind = "flight-registered"
	EventReporterRegistered EventKind = "reporter-registered"
	EventStatusRequested    EventKind = "status-requested"
	EventResponseRecorded   EventKind = "response-recorded"
	EventStatusFinalized    EventKind = "status-finalized"
	EventInsureesCredited   EventKind = "insurees-credited"
	EventCoveragePurchased  EventKind = "coverage-purchased"
	EventCreditWithdrawn    EventKind = "credit-withdrawn"
	EventOperationalChanged EventKind = "operational-changed"
)

// Event is one state-transition notification. Each successful mutating
// operation emits exactly one event per meaningful change; failed
// operations emit nothing.
type Event struct {
	Kind        EventKind       `json:"kind"`
	Airline     crypto.Identity `json:"airline,omitempty"`
	Candidate   crypto.Identity `json:"candidate,omitempty"`
	Flight      crypto.Hash     `json:"flight,omitempty"`
	Passenger   crypto.Identity `json:"passenger,omitempty"`
	Reporter    crypto.Identity `json:"reporter,omitempty"`
	Status      flight.Status   `json:"status,omitempty"`
	Index       uint8           `json:"index,omitempty"`
	Amount      uint64          `json:"amount,omitempty"`
	Operational bool            `json:"operational,omitempty"`
}

// Sink receives state-transition notifications.
type Sink interface {
	Emit(ev Event)
}

// LogSink is the default Sink; it writes each notification to the root
// logger. Event delivery to external processes is the orchestrator's job.
type LogSink struct{}

func (LogSink) Emit(ev Event) {
	log.Root.Info().Str("event", string(ev.Kind)).Interface("detail", ev).Msg("state transition")
}
