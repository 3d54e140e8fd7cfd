package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eventseat/ticketing/internal/index"
	"github.com/eventseat/ticketing/internal/lock"
	"github.com/eventseat/ticketing/internal/model"
	"github.com/eventseat/ticketing/internal/repository"
)

// fakeTicketStore is an in-memory stand-in for the durable ticket store.
type fakeTicketStore struct {
	mu   sync.Mutex
	rows map[string]model.Ticket
}

func newFakeTicketStore() *fakeTicketStore {
	return &fakeTicketStore{rows: make(map[string]model.Ticket)}
}

func (s *fakeTicketStore) add(t model.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[t.ID] = t
}

func (s *fakeTicketStore) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
}

func (s *fakeTicketStore) GetByID(_ context.Context, ticketID string) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.rows[ticketID]
	if !ok {
		return nil, repository.ErrTicketNotFound
	}
	return &t, nil
}

func (s *fakeTicketStore) UpdateOwnership(_ context.Context, ticketID string, owner *string, isPaid bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.rows[ticketID]
	if !ok {
		return repository.ErrTicketNotFound
	}
	t.OwnerUserID = owner
	t.IsPaid = isPaid
	s.rows[ticketID] = t
	return nil
}

type fixture struct {
	engine *Engine
	index  *index.MemoryIndex
	store  *fakeTicketStore
}

// newFixture builds an engine over in-memory collaborators with the given
// tickets seeded into region "r1".
func newFixture(t *testing.T, ticketIDs ...string) *fixture {
	t.Helper()
	stores := []lock.Store{lock.NewMemoryStore(), lock.NewMemoryStore(), lock.NewMemoryStore()}
	locks := lock.New(stores, 5, 5*time.Millisecond)
	ix := index.NewMemoryIndex()
	ts := newFakeTicketStore()
	for i, id := range ticketIDs {
		ts.add(model.Ticket{ID: id, ActivityID: "a1", RegionID: "r1", SeatNumber: i + 1})
	}
	require.NoError(t, ix.SeedRegion(context.Background(), "r1", ticketIDs))
	return &fixture{
		engine: New(locks, ix, ts, zap.NewNop(), time.Second),
		index:  ix,
		store:  ts,
	}
}

func TestReserveTicket(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "t1")

	rec, err := f.engine.ReserveTicket(ctx, "t1", "alice")
	require.NoError(t, err)
	assert.Equal(t, model.HoldReserved, rec.Status)
	assert.Equal(t, "alice", rec.HolderID)
	assert.Equal(t, "r1", rec.RegionID)
	assert.WithinDuration(t, time.Now(), rec.HeldAt, time.Second)

	// Write-through to the durable store: owner set, not yet paid.
	row, err := f.store.GetByID(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, row.OwnerUserID)
	assert.Equal(t, "alice", *row.OwnerUserID)
	assert.False(t, row.IsPaid)

	// The ticket left the region's pool.
	avail, err := f.index.ListAvailable(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, avail)

	// A second reservation attempt is rejected without mutation.
	_, err = f.engine.ReserveTicket(ctx, "t1", "bob")
	assert.ErrorIs(t, err, ErrTicketNotAvailable)
	rec2, err := f.index.GetHold(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "alice", rec2.HolderID)
}

func TestReserveTicketUnknownTicket(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.ReserveTicket(context.Background(), "nope", "alice")
	assert.ErrorIs(t, err, repository.ErrTicketNotFound)
}

func TestReserveTicketLazyRegionLookup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	// Ticket exists durably but was never seeded into the index.
	f.store.add(model.Ticket{ID: "t9", ActivityID: "a1", RegionID: "r1", SeatNumber: 9})

	rec, err := f.engine.ReserveTicket(ctx, "t9", "alice")
	require.NoError(t, err)
	assert.Equal(t, "r1", rec.RegionID, "region comes from the system of record")

	held, err := f.index.ListHeld(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t9"}, held)
}

func TestReserveMutualExclusion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "t1")

	const racers = 16
	var wg sync.WaitGroup
	winners := make(chan string, racers)
	users := make([]string, racers)
	for i := range users {
		users[i] = string(rune('a' + i))
	}
	for _, u := range users {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			_, err := f.engine.ReserveTicket(ctx, "t1", user)
			switch {
			case err == nil:
				winners <- user
			case errors.Is(err, ErrTicketNotAvailable), errors.Is(err, lock.ErrLockUnavailable):
				// expected for the losers
			default:
				t.Errorf("unexpected error for %s: %v", user, err)
			}
		}(u)
	}
	wg.Wait()
	close(winners)

	var won []string
	for u := range winners {
		won = append(won, u)
	}
	require.Len(t, won, 1, "exactly one racer may get the seat")

	rec, err := f.index.GetHold(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.HoldReserved, rec.Status)
	assert.Equal(t, won[0], rec.HolderID)
}

func TestConfirmPaymentTransitions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "t1")

	// Paying an empty ticket is rejected.
	assert.ErrorIs(t, f.engine.ConfirmPayment(ctx, "t1", "alice"), ErrNotReservedByCaller)

	_, err := f.engine.ReserveTicket(ctx, "t1", "alice")
	require.NoError(t, err)

	// Only the holder can pay.
	assert.ErrorIs(t, f.engine.ConfirmPayment(ctx, "t1", "bob"), ErrNotReservedByCaller)

	require.NoError(t, f.engine.ConfirmPayment(ctx, "t1", "alice"))
	rec, err := f.index.GetHold(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.HoldPaid, rec.Status)
	row, err := f.store.GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, row.IsPaid)

	// Paying twice is rejected: the ticket is no longer reserved.
	assert.ErrorIs(t, f.engine.ConfirmPayment(ctx, "t1", "alice"), ErrNotReservedByCaller)
}

func TestRefundTransitions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "t1")

	// Nothing to refund on an empty ticket.
	assert.ErrorIs(t, f.engine.Refund(ctx, "t1", "alice"), ErrNotEligibleForRefund)

	// A reserved (unpaid) hold is refundable by its holder only.
	_, err := f.engine.ReserveTicket(ctx, "t1", "alice")
	require.NoError(t, err)
	assert.ErrorIs(t, f.engine.Refund(ctx, "t1", "bob"), ErrNotEligibleForRefund)
	require.NoError(t, f.engine.Refund(ctx, "t1", "alice"))

	rec, err := f.index.GetHold(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.HoldEmpty, rec.Status)
	assert.Empty(t, rec.HolderID)
	row, err := f.store.GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, row.OwnerUserID)

	// A paid ticket is refundable too.
	_, err = f.engine.ReserveTicket(ctx, "t1", "alice")
	require.NoError(t, err)
	require.NoError(t, f.engine.ConfirmPayment(ctx, "t1", "alice"))
	require.NoError(t, f.engine.Refund(ctx, "t1", "alice"))

	avail, err := f.index.ListAvailable(ctx, "r1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t1"}, avail, "refunded ticket rejoins the pool")
}

func TestReserveFromRegionScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "t1", "t2")

	recA, err := f.engine.Reserve(ctx, "r1", "alice")
	require.NoError(t, err)
	recB, err := f.engine.Reserve(ctx, "r1", "bob")
	require.NoError(t, err)
	assert.NotEqual(t, recA.TicketID, recB.TicketID, "each user gets a distinct seat")

	_, err = f.engine.Reserve(ctx, "r1", "carol")
	assert.ErrorIs(t, err, ErrNoTicketsAvailable)

	require.NoError(t, f.engine.ConfirmPayment(ctx, recA.TicketID, "alice"))
	require.NoError(t, f.engine.Refund(ctx, recA.TicketID, "alice"))

	avail, err := f.index.ListAvailable(ctx, "r1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{recA.TicketID}, avail)

	// Carol can now take the freed seat.
	recC, err := f.engine.Reserve(ctx, "r1", "carol")
	require.NoError(t, err)
	assert.Equal(t, recA.TicketID, recC.TicketID)
}

// A candidate whose durable row disappeared (teardown that failed halfway
// through index cleanup) must not abort the region scan.
func TestReserveSkipsOrphanedCandidates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "t1", "t2")
	f.store.remove("t2")

	rec, err := f.engine.Reserve(ctx, "r1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "t1", rec.TicketID, "the orphaned entry is skipped")

	// With the real seat taken only the orphan remains, which never
	// satisfies a reservation.
	_, err = f.engine.Reserve(ctx, "r1", "bob")
	assert.ErrorIs(t, err, ErrNoTicketsAvailable)
}

func TestReserveUnknownRegionIsSoldOut(t *testing.T) {
	f := newFixture(t, "t1")
	_, err := f.engine.Reserve(context.Background(), "no-such-region", "alice")
	assert.ErrorIs(t, err, ErrNoTicketsAvailable)
}

// TestAvailabilitySetConsistency checks the invariant that after any
// sequence of operations, the region's empty set holds exactly the tickets
// whose hold records read empty.
func TestAvailabilitySetConsistency(t *testing.T) {
	ctx := context.Background()
	ids := []string{"t1", "t2", "t3", "t4", "t5"}
	f := newFixture(t, ids...)

	_, err := f.engine.ReserveTicket(ctx, "t1", "alice")
	require.NoError(t, err)
	_, err = f.engine.ReserveTicket(ctx, "t2", "bob")
	require.NoError(t, err)
	require.NoError(t, f.engine.ConfirmPayment(ctx, "t2", "bob"))
	_, err = f.engine.ReserveTicket(ctx, "t3", "carol")
	require.NoError(t, err)
	require.NoError(t, f.engine.Refund(ctx, "t3", "carol"))
	require.NoError(t, f.engine.Refund(ctx, "t1", "alice"))

	avail, err := f.index.ListAvailable(ctx, "r1")
	require.NoError(t, err)

	var wantEmpty []string
	for _, id := range ids {
		rec, err := f.index.GetHold(ctx, id)
		require.NoError(t, err)
		if rec.Status == model.HoldEmpty {
			wantEmpty = append(wantEmpty, id)
		}
	}
	assert.ElementsMatch(t, wantEmpty, avail)
	assert.ElementsMatch(t, []string{"t1", "t3", "t4", "t5"}, avail)
}

func TestReleaseExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "t1", "t2")

	_, err := f.engine.ReserveTicket(ctx, "t1", "alice")
	require.NoError(t, err)

	// Fresh hold: not reclaimed.
	reclaimed, err := f.engine.ReleaseExpired(ctx, "t1", time.Hour)
	require.NoError(t, err)
	assert.False(t, reclaimed)

	// Age the hold past the timeout and try again.
	rec, err := f.index.GetHold(ctx, "t1")
	require.NoError(t, err)
	rec.HeldAt = rec.HeldAt.Add(-2 * time.Hour)
	require.NoError(t, f.index.SetHold(ctx, rec))

	reclaimed, err = f.engine.ReleaseExpired(ctx, "t1", time.Hour)
	require.NoError(t, err)
	assert.True(t, reclaimed)

	after, err := f.index.GetHold(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.HoldEmpty, after.Status)
	row, err := f.store.GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, row.OwnerUserID)

	// Idempotent: a second pass over the same ticket is a no-op, and a
	// paid ticket is never reclaimed.
	reclaimed, err = f.engine.ReleaseExpired(ctx, "t1", time.Hour)
	require.NoError(t, err)
	assert.False(t, reclaimed)

	_, err = f.engine.ReserveTicket(ctx, "t2", "bob")
	require.NoError(t, err)
	require.NoError(t, f.engine.ConfirmPayment(ctx, "t2", "bob"))
	reclaimed, err = f.engine.ReleaseExpired(ctx, "t2", 0)
	require.NoError(t, err)
	assert.False(t, reclaimed)
}
