// Command sweeper runs the expiry sweeper as a standalone process, for
// deployments that prefer reclaiming abandoned holds outside the API
// servers.  It shares all configuration with cmd/server.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/eventseat/ticketing/internal/config"
	"github.com/eventseat/ticketing/internal/database"
	"github.com/eventseat/ticketing/internal/engine"
	"github.com/eventseat/ticketing/internal/index"
	"github.com/eventseat/ticketing/internal/lock"
	q "github.com/eventseat/ticketing/internal/queue"
	"github.com/eventseat/ticketing/internal/repository"
	queue_publisher "github.com/eventseat/ticketing/internal/service"
	"github.com/eventseat/ticketing/internal/sweeper"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := database.Open(cfg)
	if err != nil {
		logger.Fatal("database connect failed", zap.Error(err))
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		// A standalone sweeper without the shared index has nothing to
		// reconcile; an in-memory fallback would sweep a private,
		// empty view.
		logger.Fatal("redis unreachable; the standalone sweeper requires the shared index")
	}
	ix := index.NewRedisIndex(rdb)

	var stores []lock.Store
	for _, client := range config.NewLockClients() {
		stores = append(stores, lock.NewRedisStore(client))
	}
	if len(stores) == 0 {
		logger.Fatal("REDIS_LOCK_ADDRS not set; the sweeper must share lock replicas with the servers")
	}
	locks := lock.New(stores, cfg.LockRetryCount, cfg.LockRetryDelay)

	eng := engine.New(locks, ix, repository.NewTicketRepo(db), logger, cfg.LockTTL)

	sw := sweeper.New(eng, ix, cfg.SweepInterval, cfg.HoldTimeout, logger)
	sw.OnReclaim = func(ctx context.Context, ticketID string) {
		ev := q.TicketEvent{
			Type:       q.EventTicketExpired,
			TicketID:   ticketID,
			OccurredAt: time.Now().UTC().Format(time.RFC3339),
		}
		if err := queue_publisher.PublishTicketEvent(ctx, ev); err != nil {
			logger.Warn("expired event publish failed", zap.String("ticket_id", ticketID), zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("ticket refund service running")
	if err := sw.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("sweeper failed", zap.Error(err))
	}
}
