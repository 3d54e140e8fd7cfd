package engine

import "errors"

// ErrNoTicketsAvailable is returned when a region's availability set is
// exhausted: every candidate was taken (or locked) by the time it was
// re-validated.  This is "sold out", not a fault; callers should not retry.
var ErrNoTicketsAvailable = errors.New("no tickets available")

// ErrTicketNotAvailable is returned when a specific ticket is reserved or
// paid already.  Terminal for the request.
var ErrTicketNotAvailable = errors.New("ticket not available")

// ErrNotReservedByCaller is returned by ConfirmPayment when the ticket is
// not reserved, or is reserved by a different user.
var ErrNotReservedByCaller = errors.New("ticket not reserved by caller")

// ErrNotEligibleForRefund is returned by Refund when the ticket is not held
// or paid by the calling user.
var ErrNotEligibleForRefund = errors.New("ticket not eligible for refund")
