package admission

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avianet/skysurety/internal/crypto"
	"github.com/avianet/skysurety/internal/testutils"
)

const minFunding = 10_000_000_000

type escrowStub struct {
	balance uint64
}

func (e *escrowStub) Deposit(amount uint64) error {
	e.balance += amount
	return nil
}

// newController returns a controller with n registered and funded airlines.
func newController(t *testing.T, n int) (*Controller, []crypto.Identity, *escrowStub) {
	t.Helper()
	escrow := &escrowStub{}
	ids := make([]crypto.Identity, n)
	ids[0] = testutils.RandomIdentity(t)
	c := NewController(ids[0], "Bootstrap Air", minFunding, escrow)
	require.NoError(t, c.Fund(ids[0], minFunding))

	for i := 1; i < n; i++ {
		ids[i] = testutils.RandomIdentity(t)
		// With few airlines registered a nomination from a funded member
		// promotes immediately or needs one extra vote.
		promoted, err := c.Nominate("Airline", ids[i], ids[0])
		require.NoError(t, err)
		for j := 1; !promoted; j++ {
			promoted, err = c.Vote(ids[i], ids[j])
			require.NoError(t, err)
		}
		require.NoError(t, c.Fund(ids[i], minFunding))
	}
	require.Equal(t, n, c.RegisteredCount())
	return c, ids, escrow
}

func TestBootstrapNominationPromotes(t *testing.T) {
	c, ids, _ := newController(t, 1)
	candidate := testutils.RandomIdentity(t)

	// One registered airline: threshold is 1, the nomination vote promotes
	promoted, err := c.Nominate("Second Air", candidate, ids[0])
	require.NoError(t, err)
	require.True(t, promoted)
	require.True(t, c.IsRegistered(candidate))
	require.False(t, c.IsPending(candidate))
	require.False(t, c.IsFunded(candidate))
}

func TestPromotionAtHalfOfRegistered(t *testing.T) {
	c, ids, _ := newController(t, 4)
	candidate := testutils.RandomIdentity(t)

	// 4 registered: threshold is 2
	promoted, err := c.Nominate("Fifth Air", candidate, ids[0])
	require.NoError(t, err)
	require.False(t, promoted)
	require.EqualValues(t, 1, c.Votes(candidate))

	// The nominator's vote is already recorded
	_, err = c.Vote(candidate, ids[0])
	require.Equal(t, ErrDuplicateVote, err)

	promoted, err = c.Vote(candidate, ids[1])
	require.NoError(t, err)
	require.True(t, promoted)
	require.True(t, c.IsRegistered(candidate))

	// Promotion destroyed the pending entry
	_, err = c.Vote(candidate, ids[2])
	require.Equal(t, ErrNotPending, err)
	require.EqualValues(t, 0, c.Votes(candidate))
}

func TestDuplicateNomination(t *testing.T) {
	c, ids, _ := newController(t, 4)
	candidate := testutils.RandomIdentity(t)

	_, err := c.Nominate("Fifth Air", candidate, ids[0])
	require.NoError(t, err)
	_, err = c.Nominate("Fifth Air", candidate, ids[1])
	require.Equal(t, ErrDuplicateNomination, err)

	// Nominating a registered airline is also a duplicate
	_, err = c.Nominate("Bootstrap Air", ids[0], ids[1])
	require.Equal(t, ErrDuplicateNomination, err)
}

func TestNominatorMustBeFunded(t *testing.T) {
	c, ids, _ := newController(t, 1)
	candidate := testutils.RandomIdentity(t)

	promoted, err := c.Nominate("Second Air", candidate, ids[0])
	require.NoError(t, err)
	require.True(t, promoted)

	// Registered but unfunded airlines cannot nominate or vote
	_, err = c.Nominate("Third Air", testutils.RandomIdentity(t), candidate)
	require.Equal(t, ErrNotFunded, err)

	_, err = c.Vote(testutils.RandomIdentity(t), candidate)
	require.Equal(t, ErrNotFunded, err)

	// Unknown identities cannot participate at all
	_, err = c.Nominate("Third Air", testutils.RandomIdentity(t), testutils.RandomIdentity(t))
	require.Equal(t, ErrNotRegistered, err)
}

func TestVoteOnUnknownCandidate(t *testing.T) {
	c, ids, _ := newController(t, 1)
	_, err := c.Vote(testutils.RandomIdentity(t), ids[0])
	require.Equal(t, ErrNotPending, err)
}

func TestFund(t *testing.T) {
	escrow := &escrowStub{}
	id := testutils.RandomIdentity(t)
	c := NewController(id, "Bootstrap Air", minFunding, escrow)

	require.False(t, c.IsFunded(id))

	// Amount must match exactly, not merely cover the minimum
	err := c.Fund(id, minFunding-1)
	require.Equal(t, ErrWrongFundingAmount, err)
	err = c.Fund(id, minFunding+1)
	require.Equal(t, ErrWrongFundingAmount, err)
	require.False(t, c.IsFunded(id))
	require.EqualValues(t, 0, escrow.balance)

	require.NoError(t, c.Fund(id, minFunding))
	require.True(t, c.IsFunded(id))
	require.EqualValues(t, minFunding, escrow.balance)

	err = c.Fund(id, minFunding)
	require.Equal(t, ErrAlreadyFunded, err)
	require.EqualValues(t, minFunding, escrow.balance)

	err = c.Fund(testutils.RandomIdentity(t), minFunding)
	require.Equal(t, ErrNotRegistered, err)
}

func TestVoteCountNeverExceedsDistinctVoters(t *testing.T) {
	c, ids, _ := newController(t, 6)
	candidate := testutils.RandomIdentity(t)

	_, err := c.Nominate("Seventh Air", candidate, ids[0])
	require.NoError(t, err)

	// Repeated votes from the same identity never move the tally
	for i := 0; i < 3; i++ {
		_, err = c.Vote(candidate, ids[1])
		if i == 0 {
			require.NoError(t, err)
		} else {
			require.Equal(t, ErrDuplicateVote, err)
		}
	}
	require.EqualValues(t, 2, c.Votes(candidate))

	pending := c.PendingAirlines()
	require.Len(t, pending, 1)
	require.EqualValues(t, len(pending[0].Voters), pending[0].Votes)
}

func TestAirlinesOrdered(t *testing.T) {
	c, _, _ := newController(t, 4)
	airlines := c.Airlines()
	require.Len(t, airlines, 4)
	for i := 1; i < len(airlines); i++ {
		require.Less(t, string(airlines[i-1].ID[:]), string(airlines[i].ID[:]))
	}
}
