// Package repository provides data access to the durable ticket store.
// Sentinel errors defined here let handlers distinguish failure scenarios
// without inspecting driver-specific errors.
package repository

import "errors"

// ErrTicketNotFound is returned when a ticket id does not exist in the
// durable store. Handlers should translate this into an HTTP 404 response.
var ErrTicketNotFound = errors.New("ticket not found")

// ErrRegionNotEmpty is returned when a region teardown is attempted while
// some of its tickets are sold or held. Handlers should translate this
// into an HTTP 409 response.
var ErrRegionNotEmpty = errors.New("region has sold or held tickets")
