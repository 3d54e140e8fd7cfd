package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, n int) *Manager {
	t.Helper()
	stores := make([]Store, 0, n)
	for i := 0; i < n; i++ {
		stores = append(stores, NewMemoryStore())
	}
	return New(stores, 3, 10*time.Millisecond)
}

// brokenStore simulates an unreachable replica.
type brokenStore struct{}

func (brokenStore) Acquire(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("replica down")
}
func (brokenStore) Release(context.Context, string, string) error { return errors.New("replica down") }
func (brokenStore) Extend(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("replica down")
}

func TestAcquireAndRelease(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, 3)

	l, err := m.Acquire(ctx, "ticket:t1", time.Second)
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, "ticket:t1", l.Key)
	assert.NotEmpty(t, l.Value)
	assert.True(t, l.Expiry.After(time.Now()))

	// Held lock blocks a second caller.
	_, err = m.Acquire(ctx, "ticket:t1", time.Second)
	assert.ErrorIs(t, err, ErrLockUnavailable)

	// A different key is unaffected.
	other, err := m.Acquire(ctx, "ticket:t2", time.Second)
	require.NoError(t, err)
	m.Release(ctx, other)

	// Release frees the key for re-acquisition.
	m.Release(ctx, l)
	l2, err := m.Acquire(ctx, "ticket:t1", time.Second)
	require.NoError(t, err)
	assert.NotEqual(t, l.Value, l2.Value, "new acquisition must carry a fresh fencing token")
}

func TestAcquireQuorumWithMinorityDown(t *testing.T) {
	ctx := context.Background()
	m := New([]Store{NewMemoryStore(), NewMemoryStore(), brokenStore{}}, 2, 10*time.Millisecond)

	l, err := m.Acquire(ctx, "ticket:t1", time.Second)
	require.NoError(t, err, "2 of 3 replicas are a quorum")
	m.Release(ctx, l)
}

func TestAcquireFailsWithoutQuorum(t *testing.T) {
	ctx := context.Background()
	m := New([]Store{NewMemoryStore(), brokenStore{}, brokenStore{}}, 2, 5*time.Millisecond)

	_, err := m.Acquire(ctx, "ticket:t1", time.Second)
	assert.ErrorIs(t, err, ErrLockUnavailable)
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	m := newTestManager(t, 3)
	ctx := context.Background()

	l, err := m.Acquire(ctx, "ticket:t1", time.Minute)
	require.NoError(t, err)
	defer m.Release(ctx, l)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = m.Acquire(cancelled, "ticket:t1", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExpiredLockCanBeReacquired(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, 3)

	l, err := m.Acquire(ctx, "ticket:t1", 20*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	l2, err := m.Acquire(ctx, "ticket:t1", time.Second)
	require.NoError(t, err, "lease expired, key must be free")

	// The stale holder's release must not free the new holder's lock.
	m.Release(ctx, l)
	_, err = m.Acquire(ctx, "ticket:t1", time.Second)
	assert.ErrorIs(t, err, ErrLockUnavailable)
	m.Release(ctx, l2)
}

func TestExtend(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, 3)

	l, err := m.Acquire(ctx, "ticket:t1", 50*time.Millisecond)
	require.NoError(t, err)

	renewed, err := m.Extend(ctx, l, time.Second)
	require.NoError(t, err)
	assert.True(t, renewed.Expiry.After(l.Expiry))

	// Once the lease lapses, extend must fail.
	m.Release(ctx, renewed)
	time.Sleep(5 * time.Millisecond)
	_, err = m.Extend(ctx, renewed, time.Second)
	assert.ErrorIs(t, err, ErrLockExpired)
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	ctx := context.Background()
	stores := []Store{NewMemoryStore(), NewMemoryStore(), NewMemoryStore()}
	// Enough retries that contention splits resolve, but a TTL long enough
	// that the winner still holds the lock when the losers give up.
	m := New(stores, 8, 2*time.Millisecond)

	const callers = 32
	var wg sync.WaitGroup
	wins := make(chan *Lock, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l, err := m.Acquire(ctx, "ticket:hot", time.Second); err == nil {
				wins <- l
			}
		}()
	}
	wg.Wait()
	close(wins)

	var got []*Lock
	for l := range wins {
		got = append(got, l)
	}
	require.Len(t, got, 1, "exactly one caller may win the race")
	m.Release(ctx, got[0])
}
