package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/eventseat/ticketing/internal/index"
	"github.com/eventseat/ticketing/internal/model"
	"github.com/eventseat/ticketing/internal/repository"
)

// RegionHandler provisions and tears down the ticket inventory of a
// seating region, and exposes read-only views of it.  Catalog management
// (arenas, activities, region metadata) lives in a separate service; this
// handler only deals with the tickets themselves.
type RegionHandler struct {
	Tickets *repository.TicketRepo
	Index   index.Index
	Log     *zap.Logger
}

// NewRegionHandler constructs a RegionHandler.
func NewRegionHandler(tickets *repository.TicketRepo, ix index.Index, log *zap.Logger) *RegionHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &RegionHandler{Tickets: tickets, Index: ix, Log: log.With(zap.String("handler", "region"))}
}

// ProvisionTickets handles POST /v1/regions/:id/tickets.  It creates one
// durable ticket row per seat (1..capacity) and seeds the fast index so
// every seat is immediately reservable.  When seeding fails the created
// rows are rolled back; a region is provisioned fully or not at all.
func (h *RegionHandler) ProvisionTickets(c echo.Context) error {
	regionID := c.Param("id")
	var body struct {
		ActivityID string `json:"activity_id"`
		Capacity   int    `json:"capacity"`
	}
	if err := c.Bind(&body); err != nil || body.ActivityID == "" || body.Capacity <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "activity_id and a positive capacity are required"})
	}

	ctx := c.Request().Context()
	tickets, err := h.Tickets.CreateBatch(ctx, body.ActivityID, regionID, body.Capacity)
	if err != nil {
		h.Log.Error("ticket batch create failed", zap.String("region_id", regionID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create tickets"})
	}

	ids := make([]string, len(tickets))
	for i, t := range tickets {
		ids[i] = t.ID
	}
	if err := h.Index.SeedRegion(ctx, regionID, ids); err != nil {
		h.Log.Error("index seed failed, rolling back region", zap.String("region_id", regionID), zap.Error(err))
		if delErr := h.Tickets.DeleteByRegion(ctx, regionID); delErr != nil {
			h.Log.Error("rollback failed", zap.String("region_id", regionID), zap.Error(delErr))
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to seed availability index"})
	}

	h.Log.Info("region provisioned",
		zap.String("region_id", regionID),
		zap.String("activity_id", body.ActivityID),
		zap.Int("capacity", body.Capacity),
	)
	return c.JSON(http.StatusCreated, echo.Map{
		"region_id":  regionID,
		"ticket_ids": ids,
	})
}

// TeardownTickets handles DELETE /v1/regions/:id/tickets.  Removal is only
// valid before go-live: if any ticket is held or sold the request is
// rejected with 409.
func (h *RegionHandler) TeardownTickets(c echo.Context) error {
	regionID := c.Param("id")
	ctx := c.Request().Context()

	tickets, err := h.Tickets.ListByRegion(ctx, regionID, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if len(tickets) == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "region has no tickets"})
	}

	if err := h.Tickets.DeleteByRegion(ctx, regionID); err != nil {
		if errors.Is(err, repository.ErrRegionNotEmpty) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "region has sold or held tickets"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	ids := make([]string, len(tickets))
	for i, t := range tickets {
		ids[i] = t.ID
	}
	if err := h.Index.RemoveRegion(ctx, regionID, ids); err != nil {
		// Rows are gone; orphaned index entries only linger until the
		// next teardown attempt or manual cleanup, so log and continue.
		h.Log.Warn("index cleanup failed", zap.String("region_id", regionID), zap.Error(err))
	}
	return c.NoContent(http.StatusNoContent)
}

// ListTickets handles GET /v1/regions/:id/tickets.  It reads the durable
// store, the source of truth for payment and audit, optionally filtered by
// ?paid=true|false.
func (h *RegionHandler) ListTickets(c echo.Context) error {
	regionID := c.Param("id")
	var isPaid *bool
	if raw := c.QueryParam("paid"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid paid filter"})
		}
		isPaid = &v
	}

	tickets, err := h.Tickets.ListByRegion(c.Request().Context(), regionID, isPaid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if tickets == nil {
		tickets = []model.Ticket{}
	}

	out := make([]echo.Map, len(tickets))
	for i, t := range tickets {
		m := echo.Map{
			"ticket_id":   t.ID,
			"activity_id": t.ActivityID,
			"region_id":   t.RegionID,
			"seat_number": t.SeatNumber,
			"is_paid":     t.IsPaid,
		}
		if t.OwnerUserID != nil {
			m["owner_user_id"] = *t.OwnerUserID
		}
		out[i] = m
	}
	return c.JSON(http.StatusOK, echo.Map{"tickets": out})
}

// Availability handles GET /v1/regions/:id/availability.  It serves the
// fast index's live view: the seats a caller could reserve right now.  The
// snapshot may be stale by the time the caller acts on it.
func (h *RegionHandler) Availability(c echo.Context) error {
	ids, err := h.Index.ListAvailable(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "index error"})
	}
	if ids == nil {
		ids = []string{}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"region_id":  c.Param("id"),
		"available":  ids,
		"free_seats": len(ids),
	})
}
