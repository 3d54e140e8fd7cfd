// Package sweeper implements the background reconciliation pass that
// reclaims abandoned holds.  A reservation that was never paid is released
// back to its region's pool once it is older than the hold timeout, exactly
// as if the holder had refunded it.  The sweeper runs independently of the
// request path and is the safety net for callers that died mid-hold.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/eventseat/ticketing/internal/engine"
	"github.com/eventseat/ticketing/internal/index"
)

// Sweeper periodically scans reserved holds and force-releases the expired
// ones through the engine, so every release runs under the ticket's lock
// and is mutually exclusive with live operations on that ticket.
type Sweeper struct {
	engine      *engine.Engine
	index       index.Index
	interval    time.Duration
	holdTimeout time.Duration
	log         *zap.Logger

	// OnReclaim, when set, is invoked after each reclaimed hold (for
	// event publication).  It must not block for long.
	OnReclaim func(ctx context.Context, ticketID string)
}

// New constructs a Sweeper.  interval is how often a pass runs; holdTimeout
// is the age beyond which a reserved hold is considered abandoned.
func New(eng *engine.Engine, ix index.Index, interval, holdTimeout time.Duration, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if holdTimeout <= 0 {
		holdTimeout = time.Hour
	}
	return &Sweeper{
		engine:      eng,
		index:       ix,
		interval:    interval,
		holdTimeout: holdTimeout,
		log:         log.With(zap.String("component", "sweeper")),
	}
}

// Run executes sweep passes on the configured interval until ctx is
// cancelled.  Failures within a pass are logged and retried on the next
// interval; Run itself only returns on cancellation.
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Info("sweeper started",
		zap.Duration("interval", s.interval),
		zap.Duration("hold_timeout", s.holdTimeout),
	)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.SweepOnce(ctx)
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SweepOnce performs a single reconciliation pass and reports how many
// holds it reclaimed.  Per-ticket failures (lock contention with a live
// request, store errors) are logged and skipped; the next pass will see the
// ticket again if it still needs reclaiming.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	held, err := s.index.ListHeld(ctx)
	if err != nil {
		s.log.Error("sweep: list held tickets failed", zap.Error(err))
		return 0
	}

	reclaimed := 0
	for _, ticketID := range held {
		if ctx.Err() != nil {
			return reclaimed
		}
		ok, err := s.engine.ReleaseExpired(ctx, ticketID, s.holdTimeout)
		if err != nil {
			s.log.Warn("sweep: release failed, will retry next pass",
				zap.String("ticket_id", ticketID),
				zap.Error(err),
			)
			continue
		}
		if ok {
			reclaimed++
			if s.OnReclaim != nil {
				s.OnReclaim(ctx, ticketID)
			}
		}
	}
	if reclaimed > 0 {
		s.log.Info("sweep pass complete",
			zap.Int("scanned", len(held)),
			zap.Int("reclaimed", reclaimed),
		)
	}
	return reclaimed
}
