// Package router wires HTTP routes to their handlers and middleware.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/eventseat/ticketing/internal/config"
	"github.com/eventseat/ticketing/internal/handler"
	"github.com/eventseat/ticketing/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterReservation registers the reservation endpoints under /v1.  All
// of them require a valid access token; the mutating ones additionally go
// through the redis-backed rate limiter (rdb may be nil, which disables
// limiting).
func RegisterReservation(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string, rdb *redis.Client) {
	g := e.Group("/v1/tickets")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	g.POST("/reserve", h.Reserve)
	g.POST("/pay", h.Pay)
	g.POST("/refund", h.Refund)
}

// RegisterRegion registers the region inventory endpoints.  Provisioning
// and teardown are admin-only; the read endpoints accept any authenticated
// user.
func RegisterRegion(e *echo.Echo, h *handler.RegionHandler, jwtSecret string) {
	g := e.Group("/v1/regions")
	g.Use(middleware.JWTAuth(jwtSecret))

	g.GET("/:id/tickets", h.ListTickets)
	g.GET("/:id/availability", h.Availability)

	admin := g.Group("")
	admin.Use(middleware.RequireRole("ADMIN", "OWNER"))
	admin.POST("/:id/tickets", h.ProvisionTickets)
	admin.DELETE("/:id/tickets", h.TeardownTickets)
}
