package model

import "time"

// HoldStatus is the availability state of a ticket in the fast index.
// The string values are also the values stored in redis, so they must
// stay stable across releases.
type HoldStatus string

const (
	// HoldEmpty means the ticket is free and listed in its region's
	// availability set.
	HoldEmpty HoldStatus = "empty"
	// HoldReserved means a user holds the ticket but has not paid.
	// Reserved holds expire after the configured hold timeout.
	HoldReserved HoldStatus = "reserved"
	// HoldPaid means payment has been confirmed for the ticket.
	HoldPaid HoldStatus = "paid"
)

// Valid reports whether s is one of the known hold statuses.
func (s HoldStatus) Valid() bool {
	switch s {
	case HoldEmpty, HoldReserved, HoldPaid:
		return true
	}
	return false
}

// HoldRecord is the fast-index view of a ticket: who holds it, in what
// state, and since when.  Its lifecycle is independent of the durable
// ticket row; a missing record reads as an empty hold (lazy creation on
// the first reservation attempt).
//
// All mutation of a HoldRecord must happen while the per-ticket lock is
// held; the record itself carries no concurrency protection.
type HoldRecord struct {
	TicketID string     // ticket this record describes
	RegionID string     // region the ticket belongs to (denormalized for set moves)
	Status   HoldStatus // empty | reserved | paid
	HolderID string     // user holding the ticket; empty when Status is empty
	HeldAt   time.Time  // when the current hold was taken; zero when Status is empty
}
