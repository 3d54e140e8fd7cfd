package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/eventseat/ticketing/internal/config"
	"github.com/eventseat/ticketing/internal/database"
	"github.com/eventseat/ticketing/internal/engine"
	"github.com/eventseat/ticketing/internal/handler"
	"github.com/eventseat/ticketing/internal/index"
	"github.com/eventseat/ticketing/internal/lock"
	"github.com/eventseat/ticketing/internal/queue"
	"github.com/eventseat/ticketing/internal/repository"
	"github.com/eventseat/ticketing/internal/router"
	queue_publisher "github.com/eventseat/ticketing/internal/service"
	"github.com/eventseat/ticketing/internal/sweeper"
)

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := database.Open(cfg)
	if err != nil {
		logger.Fatal("database connect failed", zap.Error(err))
	}
	defer db.Close()

	// Fast availability index: redis when reachable, in-memory otherwise
	// (dev mode; holds then do not survive a restart).
	rdb := config.NewRedisClient()
	var ix index.Index
	if rdb != nil {
		ix = index.NewRedisIndex(rdb)
	} else {
		logger.Warn("redis unreachable, using in-memory availability index")
		ix = index.NewMemoryIndex()
	}

	// Lock stores: one per configured redis replica, or in-process stores
	// when none are configured.  In-process stores only serialize within
	// this process; run at least three redis replicas in production.
	var stores []lock.Store
	for _, client := range config.NewLockClients() {
		stores = append(stores, lock.NewRedisStore(client))
	}
	if len(stores) == 0 {
		logger.Warn("REDIS_LOCK_ADDRS not set, using in-process lock stores")
		stores = []lock.Store{lock.NewMemoryStore(), lock.NewMemoryStore(), lock.NewMemoryStore()}
	}
	locks := lock.New(stores, cfg.LockRetryCount, cfg.LockRetryDelay)

	tickets := repository.NewTicketRepo(db)
	eng := engine.New(locks, ix, tickets, logger, cfg.LockTTL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Background reclamation of abandoned holds.
	sw := sweeper.New(eng, ix, cfg.SweepInterval, cfg.HoldTimeout, logger)
	sw.OnReclaim = func(ctx context.Context, ticketID string) {
		ev := queue.TicketEvent{Type: queue.EventTicketExpired, TicketID: ticketID}
		if err := queue_publisher.PublishTicketEvent(ctx, ev); err != nil {
			logger.Warn("expired event publish failed", zap.String("ticket_id", ticketID), zap.Error(err))
		}
	}
	go func() {
		if err := sw.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("sweeper exited", zap.Error(err))
		}
	}()

	// Background consumer writing ticket events to logs/tickets.log.
	go func() {
		if err := queue.StartTicketConsumer(); err != nil {
			logger.Error("ticket consumer exited", zap.Error(err))
		}
	}()

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e)
	router.RegisterReservation(e, handler.NewReservationHandler(eng, logger), cfg.JWTSecret, rdb)
	router.RegisterRegion(e, handler.NewRegionHandler(tickets, ix, logger), cfg.JWTSecret)

	addr := ":" + cfg.Port
	logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))

	go func() {
		<-ctx.Done()
		_ = e.Shutdown(context.Background())
	}()
	if err := e.Start(addr); err != nil && ctx.Err() == nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
