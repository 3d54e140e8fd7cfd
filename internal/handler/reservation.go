// Package handler contains the HTTP handlers.  Handlers translate engine
// and repository errors into status codes and JSON bodies; all invariants
// live in the layers below.
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/eventseat/ticketing/internal/engine"
	"github.com/eventseat/ticketing/internal/lock"
	"github.com/eventseat/ticketing/internal/middleware"
	"github.com/eventseat/ticketing/internal/model"
	q "github.com/eventseat/ticketing/internal/queue"
	"github.com/eventseat/ticketing/internal/repository"
	queue_publisher "github.com/eventseat/ticketing/internal/service"
)

// ReservationHandler exposes the reservation engine over HTTP.  All routes
// assume JWT authentication already ran; the caller's identity comes from
// the token, never from the request body.
type ReservationHandler struct {
	Engine *engine.Engine
	Log    *zap.Logger
}

// NewReservationHandler constructs a ReservationHandler.
func NewReservationHandler(eng *engine.Engine, log *zap.Logger) *ReservationHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReservationHandler{Engine: eng, Log: log.With(zap.String("handler", "reservation"))}
}

// Reserve handles POST /v1/tickets/reserve.  The body names either a
// region (any available seat) or a specific ticket.  Sold out is 404,
// transient lock contention is 423 and should be retried by the client,
// a specific ticket already taken is 400.
func (h *ReservationHandler) Reserve(c echo.Context) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		RegionID string `json:"region_id"`
		TicketID string `json:"ticket_id"`
	}
	if err := c.Bind(&body); err != nil || (body.RegionID == "" && body.TicketID == "") {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "region_id or ticket_id is required"})
	}

	ctx := c.Request().Context()
	var (
		rec model.HoldRecord
		err error
	)
	if body.TicketID != "" {
		rec, err = h.Engine.ReserveTicket(ctx, body.TicketID, userID)
	} else {
		rec, err = h.Engine.Reserve(ctx, body.RegionID, userID)
	}
	switch {
	case err == nil:
		h.publish(c, q.EventTicketReserved, rec.TicketID, rec.RegionID, userID)
		return c.JSON(http.StatusOK, echo.Map{"ticket_id": rec.TicketID})
	case errors.Is(err, engine.ErrNoTicketsAvailable):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no tickets available"})
	case errors.Is(err, engine.ErrTicketNotAvailable):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ticket is not available for reservation"})
	case errors.Is(err, repository.ErrTicketNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket not found"})
	case errors.Is(err, lock.ErrLockUnavailable):
		return c.JSON(http.StatusLocked, echo.Map{"error": "resource is locked, please retry"})
	default:
		h.Log.Error("reserve failed", zap.Error(err), zap.String("user_id", userID))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

// Pay handles POST /v1/tickets/pay.  Payment collection is simulated; this
// endpoint records the confirmation for a ticket the caller holds.
func (h *ReservationHandler) Pay(c echo.Context) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ticketID, ok := bindTicketID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ticket_id is required"})
	}

	err := h.Engine.ConfirmPayment(c.Request().Context(), ticketID, userID)
	switch {
	case err == nil:
		h.publish(c, q.EventTicketPaid, ticketID, "", userID)
		return c.JSON(http.StatusOK, echo.Map{"message": "payment confirmed"})
	case errors.Is(err, engine.ErrNotReservedByCaller):
		return c.JSON(http.StatusConflict, echo.Map{"error": "ticket is not reserved by you"})
	case errors.Is(err, lock.ErrLockUnavailable):
		return c.JSON(http.StatusLocked, echo.Map{"error": "resource is locked, please retry"})
	default:
		h.Log.Error("payment failed", zap.Error(err), zap.String("ticket_id", ticketID))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

// Refund handles POST /v1/tickets/refund.  Both a reserved (unpaid) hold
// and a paid ticket can be returned by their holder.
func (h *ReservationHandler) Refund(c echo.Context) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ticketID, ok := bindTicketID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ticket_id is required"})
	}

	err := h.Engine.Refund(c.Request().Context(), ticketID, userID)
	switch {
	case err == nil:
		h.publish(c, q.EventTicketRefunded, ticketID, "", userID)
		return c.JSON(http.StatusOK, echo.Map{"message": "ticket refunded"})
	case errors.Is(err, engine.ErrNotEligibleForRefund):
		return c.JSON(http.StatusConflict, echo.Map{"error": "ticket is not eligible for a refund"})
	case errors.Is(err, lock.ErrLockUnavailable):
		return c.JSON(http.StatusLocked, echo.Map{"error": "resource is locked, please retry"})
	default:
		h.Log.Error("refund failed", zap.Error(err), zap.String("ticket_id", ticketID))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

func bindTicketID(c echo.Context) (string, bool) {
	var body struct {
		TicketID string `json:"ticket_id"`
	}
	if err := c.Bind(&body); err != nil || body.TicketID == "" {
		return "", false
	}
	return body.TicketID, true
}

// publish sends a lifecycle event to the broker.  Failures are logged and
// swallowed: the state transition already happened and must not be undone
// by a broker outage.
func (h *ReservationHandler) publish(c echo.Context, eventType, ticketID, regionID, userID string) {
	ev := q.TicketEvent{
		Type:       eventType,
		TicketID:   ticketID,
		RegionID:   regionID,
		UserID:     userID,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := queue_publisher.PublishTicketEvent(c.Request().Context(), ev); err != nil {
		h.Log.Warn("event publish failed", zap.String("type", eventType), zap.Error(err))
	}
}
