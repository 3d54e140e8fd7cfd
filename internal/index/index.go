// Package index provides the fast availability index: a low-latency view of
// every ticket's hold state plus per-region sets of currently available
// ticket ids.  The index is not the system of record (that is the durable
// ticket store), but it is authoritative for live reservation decisions.
//
// All read-modify-write access to a ticket's hold record and its
// availability-set membership must happen while that ticket's distributed
// lock is held; the index itself only guarantees that each individual
// operation is safe to issue concurrently.
package index

import (
	"context"

	"github.com/eventseat/ticketing/internal/model"
)

// Index is the data-access contract the reservation engine and the expiry
// sweeper work against.  Two implementations exist: RedisIndex for real
// deployments and MemoryIndex for tests and redis-less development runs.
type Index interface {
	// GetHold returns the hold record for a ticket.  A ticket with no
	// record yet reads as an empty hold (lazy creation).
	GetHold(ctx context.Context, ticketID string) (model.HoldRecord, error)

	// SetHold overwrites a ticket's hold record, including its membership
	// in the reserved-tickets set the sweeper enumerates; the two are
	// written atomically so a hold is never invisible to the sweeper.
	// Callers must hold the ticket's lock.
	SetHold(ctx context.Context, rec model.HoldRecord) error

	// MoveAvailability moves a ticket id between the region's per-status
	// sets: removed from (region, from), added to (region, to).  Callers
	// must hold the ticket's lock and call this together with the SetHold
	// that changes the status, so membership stays derivable from the
	// record.
	MoveAvailability(ctx context.Context, regionID, ticketID string, from, to model.HoldStatus) error

	// ListAvailable returns a snapshot of the ticket ids currently in the
	// region's empty set.  The snapshot may be stale by the time the
	// caller acts on it; every candidate must be re-validated under its
	// lock.
	ListAvailable(ctx context.Context, regionID string) ([]string, error)

	// ListHeld returns a snapshot of every ticket id currently in
	// reserved state, across all regions.  The sweeper iterates this
	// instead of scanning the whole keyspace.
	ListHeld(ctx context.Context) ([]string, error)

	// SeedRegion registers freshly created tickets: one empty hold record
	// per ticket and membership in the region's empty set.
	SeedRegion(ctx context.Context, regionID string, ticketIDs []string) error

	// RemoveRegion deletes the hold records and set memberships for a
	// region being torn down before go-live.
	RemoveRegion(ctx context.Context, regionID string, ticketIDs []string) error
}
