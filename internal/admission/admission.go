// Package admission implements multi-party admission control for airlines.
// An airline joins the registry once at least half of the currently
// registered airlines vote for it, and becomes an active participant only
// after contributing the exact minimum funding amount.
package admission

import (
	"errors"
	"sort"
	"sync"

	"github.com/avianet/skysurety/internal/crypto"
	"github.com/avianet/skysurety/internal/safemath"
	"github.com/avianet/skysurety/pkg/log"
)

var (
	ErrDuplicateNomination = errors.New("candidate already nominated or registered")
	ErrDuplicateVote       = errors.New("voter already voted for candidate")
	ErrNotPending          = errors.New("candidate is not pending")
	ErrNotRegistered       = errors.New("airline is not registered")
	ErrNotFunded           = errors.New("airline has not funded")
	ErrAlreadyFunded       = errors.New("airline already funded")
	ErrWrongFundingAmount  = errors.New("funding amount must equal the minimum exactly")
)

// Airline is a registered member of the registry. Funded flips false→true
// exactly once, via Fund.
type Airline struct {
	ID     crypto.Identity `json:"id"`
	Name   string          `json:"name"`
	Funded bool            `json:"funded"`
}

// Pending is a nominated airline collecting votes. Votes never exceeds the
// number of distinct recorded voters.
type Pending struct {
	ID     crypto.Identity   `json:"id"`
	Name   string            `json:"name"`
	Voters []crypto.Identity `json:"voters"`
	Votes  uint32            `json:"votes"`
}

// Escrow receives funding contributions.
type Escrow interface {
	Deposit(amount uint64) error
}

// Controller owns the airline and pending-airline stores. The vote tally
// and the promotion check are applied under one lock so two concurrent
// votes cannot both observe a stale registered count.
type Controller struct {
	mu         sync.Mutex
	airlines   map[crypto.Identity]*Airline
	pending    map[crypto.Identity]*Pending
	escrow     Escrow
	minFunding uint64
}

// NewController creates a controller with a single bootstrap airline
// already registered (but not funded).
func NewController(bootstrap crypto.Identity, name string, minFunding uint64, escrow Escrow) *Controller {
	c := &Controller{
		airlines:   make(map[crypto.Identity]*Airline),
		pending:    make(map[crypto.Identity]*Pending),
		escrow:     escrow,
		minFunding: minFunding,
	}
	c.airlines[bootstrap] = &Airline{ID: bootstrap, Name: name}
	return c
}

// threshold is the vote count needed for promotion: ⌈registered/2⌉.
// Callers hold c.mu.
func (c *Controller) threshold() uint32 {
	return uint32((len(c.airlines) + 1) / 2)
}

// Nominate creates a pending entry for candidate with one vote from the
// nominator. The nomination vote counts toward promotion, so with a single
// registered airline the nomination itself promotes the candidate.
func (c *Controller) Nominate(name string, candidate, nominator crypto.Identity) (promoted bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireFunded(nominator); err != nil {
		return false, err
	}
	if _, ok := c.pending[candidate]; ok {
		return false, ErrDuplicateNomination
	}
	if _, ok := c.airlines[candidate]; ok {
		return false, ErrDuplicateNomination
	}

	p := &Pending{
		ID:     candidate,
		Name:   name,
		Voters: []crypto.Identity{nominator},
		Votes:  1,
	}
	c.pending[candidate] = p
	log.Admission.Debug().
		Stringer("candidate", candidate).
		Stringer("nominator", nominator).
		Msg("airline nominated")

	return c.maybePromote(p), nil
}

// Vote records a vote from voter for a pending candidate and promotes the
// candidate once the vote count reaches the threshold.
func (c *Controller) Vote(candidate, voter crypto.Identity) (promoted bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireFunded(voter); err != nil {
		return false, err
	}
	p, ok := c.pending[candidate]
	if !ok {
		return false, ErrNotPending
	}
	for _, v := range p.Voters {
		if v == voter {
			return false, ErrDuplicateVote
		}
	}
	votes, ok := safemath.Add32(p.Votes, 1)
	if !ok {
		return false, safemath.ErrOverflow
	}

	p.Voters = append(p.Voters, voter)
	p.Votes = votes
	log.Admission.Debug().
		Stringer("candidate", candidate).
		Stringer("voter", voter).
		Uint32("votes", p.Votes).
		Msg("vote recorded")

	return c.maybePromote(p), nil
}

// maybePromote moves a pending entry into the airline set once its vote
// count reaches the threshold. Callers hold c.mu.
func (c *Controller) maybePromote(p *Pending) bool {
	if p.Votes < c.threshold() {
		return false
	}
	c.airlines[p.ID] = &Airline{ID: p.ID, Name: p.Name}
	delete(c.pending, p.ID)
	log.Admission.Info().
		Stringer("airline", p.ID).
		Uint32("votes", p.Votes).
		Int("registered", len(c.airlines)).
		Msg("airline promoted")
	return true
}

// Fund records the airline's funding contribution. The amount must equal
// the minimum exactly; the contribution is deposited into the escrow
// before the funded flag flips.
func (c *Controller) Fund(id crypto.Identity, amount uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.airlines[id]
	if !ok {
		return ErrNotRegistered
	}
	if a.Funded {
		return ErrAlreadyFunded
	}
	if amount != c.minFunding {
		return ErrWrongFundingAmount
	}
	if err := c.escrow.Deposit(amount); err != nil {
		return err
	}
	a.Funded = true
	log.Admission.Info().Stringer("airline", id).Uint64("amount", amount).Msg("airline funded")
	return nil
}

// requireFunded checks that id is a registered, funded airline. Callers
// hold c.mu.
func (c *Controller) requireFunded(id crypto.Identity) error {
	a, ok := c.airlines[id]
	if !ok {
		return ErrNotRegistered
	}
	if !a.Funded {
		return ErrNotFunded
	}
	return nil
}

func (c *Controller) IsRegistered(id crypto.Identity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.airlines[id]
	return ok
}

func (c *Controller) IsPending(id crypto.Identity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	return ok
}

func (c *Controller) IsFunded(id crypto.Identity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.airlines[id]
	return ok && a.Funded
}

func (c *Controller) RegisteredCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.airlines)
}

// Votes returns the current vote count for a pending candidate, zero if
// the candidate is not pending.
func (c *Controller) Votes(candidate crypto.Identity) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[candidate]
	if !ok {
		return 0
	}
	return p.Votes
}

// Airlines returns all registered airlines ordered by identity.
func (c *Controller) Airlines() []Airline {
	c.mu.Lock()
	defer c.mu.Unlock()

	airlines := make([]Airline, 0, len(c.airlines))
	for _, a := range c.airlines {
		airlines = append(airlines, *a)
	}
	sort.Slice(airlines, func(i, j int) bool {
		return string(airlines[i].ID[:]) < string(airlines[j].ID[:])
	})
	return airlines
}

// PendingAirlines returns all pending entries ordered by identity.
func (c *Controller) PendingAirlines() []Pending {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make([]Pending, 0, len(c.pending))
	for _, p := range c.pending {
		cp := *p
		cp.Voters = append([]crypto.Identity(nil), p.Voters...)
		entries = append(entries, cp)
	}
	sort.Slice(entries, func(i, j int) bool {
		return string(entries[i].ID[:]) < string(entries[j].ID[:])
	})
	return entries
}

// RestoreAirline inserts a persisted airline record. Startup recovery only.
func (c *Controller) RestoreAirline(a Airline) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := a
	c.airlines[a.ID] = &cp
}

// RestorePending inserts a persisted pending entry. Startup recovery only.
func (c *Controller) RestorePending(p Pending) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := p
	cp.Voters = append([]crypto.Identity(nil), p.Voters...)
	c.pending[p.ID] = &cp
}
