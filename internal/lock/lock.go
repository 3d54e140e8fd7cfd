// Package lock implements a majority-quorum distributed lock over a set of
// independent lock-store replicas.  Each ticket key is protected by its own
// lock; acquiring writes a random fencing token to a strict majority of the
// replicas with an expiry, so a single faulty replica can neither block nor
// falsely grant a lock.  Locks self-expire, and release/extend only act on
// replicas that still hold the caller's token.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	mrand "math/rand"
	"time"
)

// ErrLockUnavailable is returned when a lock cannot be acquired within the
// configured retry budget.  Callers should treat it as transient contention
// and retry later; it never means the protected resource is in a bad state.
var ErrLockUnavailable = errors.New("lock unavailable")

// ErrLockExpired is returned by Extend when the caller's token no longer
// holds a majority of the replicas, i.e. the lock lapsed and may have been
// re-acquired by someone else.
var ErrLockExpired = errors.New("lock expired")

// Lock is a successfully acquired lease on a resource key.  Value holds the
// fencing token proving ownership of this particular acquisition; Expiry is
// the instant after which the replicas may hand the key to another caller.
// Work protected by the lock must finish (or Extend) before Expiry.
type Lock struct {
	Key    string
	Value  string
	Expiry time.Time
}

// Store is a single lock-store replica.  Implementations must make Acquire
// atomic (set-if-absent with TTL) and must make Release and Extend
// conditional on the stored token matching value.
type Store interface {
	// Acquire sets key=value with the given TTL iff key is not currently
	// set.  It returns false, nil when the key is held by someone else.
	Acquire(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Release deletes key iff its current value equals value.
	Release(ctx context.Context, key, value string) error
	// Extend resets key's TTL iff its current value equals value.  It
	// returns false, nil when the token did not match or the key is gone.
	Extend(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

// Manager coordinates lock acquisition across the replicas.  The zero value
// is not usable; construct with New.
type Manager struct {
	stores     []Store
	quorum     int
	retryCount int
	retryDelay time.Duration
}

// New builds a Manager over the given replicas.  retryCount bounds how many
// acquisition rounds Acquire performs before giving up; retryDelay is the
// base delay between rounds (the actual sleep is jittered).  The replica
// count should be odd so the quorum is meaningful, but any non-empty set
// works.
func New(stores []Store, retryCount int, retryDelay time.Duration) *Manager {
	if len(stores) == 0 {
		panic("lock.New: no stores")
	}
	if retryCount < 1 {
		retryCount = 1
	}
	if retryDelay <= 0 {
		retryDelay = 50 * time.Millisecond
	}
	return &Manager{
		stores:     stores,
		quorum:     len(stores)/2 + 1,
		retryCount: retryCount,
		retryDelay: retryDelay,
	}
}

// Acquire takes the lock for key with the given TTL.  It attempts up to the
// configured retry count, sleeping a jittered delay between attempts, and
// returns ErrLockUnavailable once the budget is spent.  Partial grants from
// a failed round are released best-effort before retrying, so a minority of
// replicas never ends up pinning a token nobody owns.
func (m *Manager) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	token, err := fencingToken()
	if err != nil {
		return nil, fmt.Errorf("generate fencing token: %w", err)
	}

	for attempt := 0; attempt < m.retryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter(m.retryDelay)):
			}
		}

		start := time.Now()
		granted := 0
		for _, s := range m.stores {
			ok, err := s.Acquire(ctx, key, token, ttl)
			if err == nil && ok {
				granted++
			}
		}
		elapsed := time.Since(start)

		// The lock only counts if a strict majority accepted it and
		// there is still meaningful time left on the lease.
		if granted >= m.quorum && elapsed < ttl {
			return &Lock{Key: key, Value: token, Expiry: start.Add(ttl)}, nil
		}

		m.releaseToken(ctx, key, token)

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return nil, ErrLockUnavailable
}

// Release gives the lock back on every replica.  Replicas where the token
// no longer matches (expired and re-acquired) are left untouched, so
// releasing a stale lock is a safe no-op.  Errors from individual replicas
// are ignored: the token expires on its own either way.
func (m *Manager) Release(ctx context.Context, l *Lock) {
	if l == nil {
		return
	}
	m.releaseToken(ctx, l.Key, l.Value)
}

// Extend renews the lease on a held lock.  It succeeds only if a majority
// of replicas still carried the caller's token; otherwise ErrLockExpired is
// returned and the caller must abort the protected operation.
func (m *Manager) Extend(ctx context.Context, l *Lock, ttl time.Duration) (*Lock, error) {
	if l == nil {
		return nil, ErrLockExpired
	}
	start := time.Now()
	extended := 0
	for _, s := range m.stores {
		ok, err := s.Extend(ctx, l.Key, l.Value, ttl)
		if err == nil && ok {
			extended++
		}
	}
	if extended < m.quorum || time.Since(start) >= ttl {
		return nil, ErrLockExpired
	}
	return &Lock{Key: l.Key, Value: l.Value, Expiry: start.Add(ttl)}, nil
}

func (m *Manager) releaseToken(ctx context.Context, key, token string) {
	for _, s := range m.stores {
		_ = s.Release(ctx, key, token)
	}
}

// fencingToken returns 16 random bytes hex encoded.  The token only needs
// to be unique per acquisition, not secret, but crypto/rand is cheap and
// removes any seeding concerns.
func fencingToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// jitter spreads retries of competing callers apart: base/2 plus a random
// amount up to base.
func jitter(base time.Duration) time.Duration {
	return base/2 + time.Duration(mrand.Int63n(int64(base)))
}
