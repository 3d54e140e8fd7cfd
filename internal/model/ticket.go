package model

import "time"

// Ticket is the durable record of a single seat for sale.  One row is
// created per seat when a region is provisioned (seat numbers 1..capacity)
// and the row lives until the region is torn down before go-live.  The
// reservation engine mutates OwnerUserID and IsPaid; everything else is
// fixed at creation time.
//
// Fields:
//
//	ID          – opaque ticket identifier (uuid v4), primary key.
//	ActivityID  – activity (event) this ticket belongs to.
//	RegionID    – seating region within the activity's arena.
//	SeatNumber  – 1-based seat number within the region.
//	OwnerUserID – user currently holding or having bought the seat; nil when free.
//	IsPaid      – whether payment has been confirmed.
type Ticket struct {
	ID          string    // tickets.ticket_id
	ActivityID  string    // tickets.activity_id
	RegionID    string    // tickets.region_id
	SeatNumber  int       // tickets.seat_number
	OwnerUserID *string   // tickets.owner_user_id (nullable)
	IsPaid      bool      // tickets.is_paid
	CreatedAt   time.Time // tickets.created_at
	UpdatedAt   time.Time // tickets.updated_at
}
