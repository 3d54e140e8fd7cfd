package index

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eventseat/ticketing/internal/model"
)

const (
	ticketKeyPrefix = "ticket:"
	availKeyPrefix  = "avail:"
	heldSetKey      = "held:tickets"
)

func ticketKey(ticketID string) string { return ticketKeyPrefix + ticketID }

func availKey(regionID string, status model.HoldStatus) string {
	return fmt.Sprintf("%s%s:%s", availKeyPrefix, regionID, status)
}

// RedisIndex stores hold records as hashes (ticket:<id> with fields status,
// holder_id, held_at, region_id) and availability as sets keyed by region
// and status.  Reserved ticket ids are additionally tracked in a single
// held:tickets set so the sweeper can enumerate live holds without a
// keyspace scan.  Membership in that set is written in the same
// transaction as the hold hash, so a hold whose availability-set move
// never happened is still visible to the sweeper.
type RedisIndex struct {
	client *redis.Client
}

// NewRedisIndex wraps an existing redis client.
func NewRedisIndex(client *redis.Client) *RedisIndex {
	return &RedisIndex{client: client}
}

func (ix *RedisIndex) GetHold(ctx context.Context, ticketID string) (model.HoldRecord, error) {
	fields, err := ix.client.HGetAll(ctx, ticketKey(ticketID)).Result()
	if err != nil {
		return model.HoldRecord{}, fmt.Errorf("read hold %s: %w", ticketID, err)
	}
	rec := model.HoldRecord{
		TicketID: ticketID,
		RegionID: fields["region_id"],
		Status:   model.HoldStatus(fields["status"]),
		HolderID: fields["holder_id"],
	}
	if rec.Status == "" {
		// No record yet: the ticket has never been touched and reads
		// as an empty hold.
		rec.Status = model.HoldEmpty
	}
	if raw := fields["held_at"]; raw != "" {
		held, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return model.HoldRecord{}, fmt.Errorf("parse held_at for %s: %w", ticketID, err)
		}
		rec.HeldAt = held
	}
	return rec, nil
}

func (ix *RedisIndex) SetHold(ctx context.Context, rec model.HoldRecord) error {
	heldAt := ""
	if !rec.HeldAt.IsZero() {
		heldAt = rec.HeldAt.UTC().Format(time.RFC3339Nano)
	}
	pipe := ix.client.TxPipeline()
	pipe.HSet(ctx, ticketKey(rec.TicketID),
		"status", string(rec.Status),
		"holder_id", rec.HolderID,
		"held_at", heldAt,
		"region_id", rec.RegionID,
	)
	if rec.Status == model.HoldReserved {
		pipe.SAdd(ctx, heldSetKey, rec.TicketID)
	} else {
		pipe.SRem(ctx, heldSetKey, rec.TicketID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write hold %s: %w", rec.TicketID, err)
	}
	return nil
}

func (ix *RedisIndex) MoveAvailability(ctx context.Context, regionID, ticketID string, from, to model.HoldStatus) error {
	pipe := ix.client.TxPipeline()
	pipe.SRem(ctx, availKey(regionID, from), ticketID)
	pipe.SAdd(ctx, availKey(regionID, to), ticketID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("move %s from %s to %s: %w", ticketID, from, to, err)
	}
	return nil
}

func (ix *RedisIndex) ListAvailable(ctx context.Context, regionID string) ([]string, error) {
	ids, err := ix.client.SMembers(ctx, availKey(regionID, model.HoldEmpty)).Result()
	if err != nil {
		return nil, fmt.Errorf("list available for region %s: %w", regionID, err)
	}
	return ids, nil
}

func (ix *RedisIndex) ListHeld(ctx context.Context) ([]string, error) {
	ids, err := ix.client.SMembers(ctx, heldSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list held tickets: %w", err)
	}
	return ids, nil
}

func (ix *RedisIndex) SeedRegion(ctx context.Context, regionID string, ticketIDs []string) error {
	if len(ticketIDs) == 0 {
		return nil
	}
	pipe := ix.client.TxPipeline()
	for _, id := range ticketIDs {
		pipe.HSet(ctx, ticketKey(id),
			"status", string(model.HoldEmpty),
			"holder_id", "",
			"held_at", "",
			"region_id", regionID,
		)
	}
	members := make([]interface{}, len(ticketIDs))
	for i, id := range ticketIDs {
		members[i] = id
	}
	pipe.SAdd(ctx, availKey(regionID, model.HoldEmpty), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("seed region %s: %w", regionID, err)
	}
	return nil
}

func (ix *RedisIndex) RemoveRegion(ctx context.Context, regionID string, ticketIDs []string) error {
	pipe := ix.client.TxPipeline()
	for _, id := range ticketIDs {
		pipe.Del(ctx, ticketKey(id))
		pipe.SRem(ctx, heldSetKey, id)
	}
	pipe.Del(ctx,
		availKey(regionID, model.HoldEmpty),
		availKey(regionID, model.HoldReserved),
		availKey(regionID, model.HoldPaid),
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove region %s: %w", regionID, err)
	}
	return nil
}
