// Package queue defines message payloads exchanged over the message broker
// and the background consumer that processes them.
package queue

// Ticket event types published to the ticket.events queue.
const (
	EventTicketReserved = "ticket.reserved"
	EventTicketPaid     = "ticket.paid"
	EventTicketRefunded = "ticket.refunded"
	EventTicketExpired  = "ticket.expired"
)

// TicketEvent is published on every ticket state transition.  It carries
// enough information for downstream consumers to log, notify, or feed
// analytics without querying the primary database.
type TicketEvent struct {
	Type       string `json:"type"`
	TicketID   string `json:"ticket_id"`
	RegionID   string `json:"region_id,omitempty"`
	ActivityID string `json:"activity_id,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	OccurredAt string `json:"occurred_at"`
}
