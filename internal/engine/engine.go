// Package engine implements the seat reservation state machine.  Every
// transition of a ticket (empty -> reserved -> paid, and back to empty via
// refund or hold expiry) runs under that ticket's distributed lock and
// writes through to both the fast availability index and the durable ticket
// store.  True serialization is enforced only per ticket id; operations on
// different tickets interleave freely.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eventseat/ticketing/internal/index"
	"github.com/eventseat/ticketing/internal/lock"
	"github.com/eventseat/ticketing/internal/model"
	"github.com/eventseat/ticketing/internal/repository"
)

const lockKeyPrefix = "lock:ticket:"

// TicketStore is the slice of the durable store the engine needs.  It is
// satisfied by *repository.TicketRepo.
type TicketStore interface {
	GetByID(ctx context.Context, ticketID string) (*model.Ticket, error)
	UpdateOwnership(ctx context.Context, ticketID string, owner *string, isPaid bool) error
}

// Engine is the reservation state machine.  All collaborators are injected
// at construction; the engine holds no global state and is safe for
// concurrent use.
type Engine struct {
	locks   *lock.Manager
	index   index.Index
	tickets TicketStore
	log     *zap.Logger
	lockTTL time.Duration
}

// New constructs an Engine.  lockTTL bounds how long a single transition
// may run while holding a ticket's lock; transitions are short (one index
// read, two index writes, one row update) so a few seconds is plenty.
func New(locks *lock.Manager, ix index.Index, tickets TicketStore, log *zap.Logger, lockTTL time.Duration) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if lockTTL <= 0 {
		lockTTL = 5 * time.Second
	}
	return &Engine{
		locks:   locks,
		index:   ix,
		tickets: tickets,
		log:     log.With(zap.String("component", "engine")),
		lockTTL: lockTTL,
	}
}

// Reserve picks any available seat in the region for the user.  It
// snapshots the region's empty set and tries each candidate in turn; a
// candidate that turns out taken or locked is skipped, since the snapshot
// may be stale.  When every candidate is exhausted the region is sold out
// and ErrNoTicketsAvailable is returned.  No ordering among candidates is
// promised.
func (e *Engine) Reserve(ctx context.Context, regionID, userID string) (model.HoldRecord, error) {
	candidates, err := e.index.ListAvailable(ctx, regionID)
	if err != nil {
		return model.HoldRecord{}, fmt.Errorf("list available tickets: %w", err)
	}
	for _, ticketID := range candidates {
		rec, err := e.ReserveTicket(ctx, ticketID, userID)
		if err == nil {
			return rec, nil
		}
		if errors.Is(err, ErrTicketNotAvailable) ||
			errors.Is(err, lock.ErrLockUnavailable) ||
			errors.Is(err, repository.ErrTicketNotFound) {
			// Someone else beat us to this seat, or its durable row is
			// gone and only the index entry lingers; try the next one.
			continue
		}
		return model.HoldRecord{}, err
	}
	return model.HoldRecord{}, ErrNoTicketsAvailable
}

// ReserveTicket places a hold on a specific ticket for the user.  Under the
// ticket's lock it validates the current hold is empty, writes the reserved
// record to the index, moves the ticket out of the region's empty set, and
// records the pending (unpaid) ownership in the durable store.
func (e *Engine) ReserveTicket(ctx context.Context, ticketID, userID string) (model.HoldRecord, error) {
	var reserved model.HoldRecord
	err := e.withTicketLock(ctx, ticketID, func(ctx context.Context) error {
		rec, err := e.index.GetHold(ctx, ticketID)
		if err != nil {
			return err
		}
		if rec.Status != model.HoldEmpty {
			return ErrTicketNotAvailable
		}
		if rec.RegionID == "" {
			// First touch of a ticket that was never seeded: pull
			// the region from the system of record.
			t, err := e.tickets.GetByID(ctx, ticketID)
			if err != nil {
				return err
			}
			rec.RegionID = t.RegionID
		}

		rec.Status = model.HoldReserved
		rec.HolderID = userID
		rec.HeldAt = time.Now().UTC()
		if err := e.index.SetHold(ctx, rec); err != nil {
			return err
		}
		if err := e.index.MoveAvailability(ctx, rec.RegionID, ticketID, model.HoldEmpty, model.HoldReserved); err != nil {
			return err
		}
		if err := e.tickets.UpdateOwnership(ctx, ticketID, &userID, false); err != nil {
			return err
		}
		reserved = rec
		return nil
	})
	if err != nil {
		return model.HoldRecord{}, err
	}
	e.log.Info("ticket reserved",
		zap.String("ticket_id", ticketID),
		zap.String("region_id", reserved.RegionID),
		zap.String("user_id", userID),
	)
	return reserved, nil
}

// ConfirmPayment transitions a ticket the user holds from reserved to paid
// and persists the payment flag.  Payment collection itself happens
// elsewhere; by the time this is called the money side is settled.
func (e *Engine) ConfirmPayment(ctx context.Context, ticketID, userID string) error {
	err := e.withTicketLock(ctx, ticketID, func(ctx context.Context) error {
		rec, err := e.index.GetHold(ctx, ticketID)
		if err != nil {
			return err
		}
		if rec.Status != model.HoldReserved || rec.HolderID != userID {
			return ErrNotReservedByCaller
		}

		rec.Status = model.HoldPaid
		if err := e.index.SetHold(ctx, rec); err != nil {
			return err
		}
		if err := e.index.MoveAvailability(ctx, rec.RegionID, ticketID, model.HoldReserved, model.HoldPaid); err != nil {
			return err
		}
		return e.tickets.UpdateOwnership(ctx, ticketID, &userID, true)
	})
	if err != nil {
		return err
	}
	e.log.Info("payment confirmed", zap.String("ticket_id", ticketID), zap.String("user_id", userID))
	return nil
}

// Refund releases a ticket the user holds, whether merely reserved or
// already paid, back to the region's pool.  Both origins are deliberate:
// a reserved hold can be cancelled before payment and a paid ticket can be
// refunded after it.
func (e *Engine) Refund(ctx context.Context, ticketID, userID string) error {
	err := e.withTicketLock(ctx, ticketID, func(ctx context.Context) error {
		rec, err := e.index.GetHold(ctx, ticketID)
		if err != nil {
			return err
		}
		eligible := rec.HolderID == userID &&
			(rec.Status == model.HoldReserved || rec.Status == model.HoldPaid)
		if !eligible {
			return ErrNotEligibleForRefund
		}
		return e.releaseHold(ctx, rec)
	})
	if err != nil {
		return err
	}
	e.log.Info("ticket refunded", zap.String("ticket_id", ticketID), zap.String("user_id", userID))
	return nil
}

// ReleaseExpired force-releases a reserved hold older than olderThan.  It
// is the sweeper's entry point and is idempotent: a ticket that some other
// actor already transitioned away from reserved is silently skipped, as is
// one whose hold is still fresh.  It reports whether a hold was reclaimed.
func (e *Engine) ReleaseExpired(ctx context.Context, ticketID string, olderThan time.Duration) (bool, error) {
	reclaimed := false
	err := e.withTicketLock(ctx, ticketID, func(ctx context.Context) error {
		rec, err := e.index.GetHold(ctx, ticketID)
		if err != nil {
			return err
		}
		if rec.Status != model.HoldReserved {
			return nil
		}
		if time.Since(rec.HeldAt) <= olderThan {
			return nil
		}
		if err := e.releaseHold(ctx, rec); err != nil {
			return err
		}
		reclaimed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if reclaimed {
		e.log.Info("expired hold released", zap.String("ticket_id", ticketID))
	}
	return reclaimed, nil
}

// releaseHold transitions any held record back to empty, re-inserts the
// ticket into the region's pool and clears the durable ownership.  The
// caller must hold the ticket's lock.
func (e *Engine) releaseHold(ctx context.Context, rec model.HoldRecord) error {
	from := rec.Status
	rec.Status = model.HoldEmpty
	rec.HolderID = ""
	rec.HeldAt = time.Time{}
	if err := e.index.SetHold(ctx, rec); err != nil {
		return err
	}
	if err := e.index.MoveAvailability(ctx, rec.RegionID, rec.TicketID, from, model.HoldEmpty); err != nil {
		return err
	}
	return e.tickets.UpdateOwnership(ctx, rec.TicketID, nil, false)
}

// withTicketLock runs fn under the ticket's distributed lock, releasing the
// lock on every exit path.  Whatever fn leaves behind on error is covered
// by the self-healing path: the index stays authoritative for the next
// lock-protected transition, and the sweeper reconciles stale holds.
func (e *Engine) withTicketLock(ctx context.Context, ticketID string, fn func(ctx context.Context) error) error {
	l, err := e.locks.Acquire(ctx, lockKeyPrefix+ticketID, e.lockTTL)
	if err != nil {
		return err
	}
	defer e.locks.Release(ctx, l)
	return fn(ctx)
}
