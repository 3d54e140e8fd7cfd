package index

import (
	"context"
	"sync"

	"github.com/eventseat/ticketing/internal/model"
)

// MemoryIndex is an in-process Index with the same semantics as
// RedisIndex.  It serves development runs without a redis and the test
// suite.
type MemoryIndex struct {
	mu    sync.RWMutex
	holds map[string]model.HoldRecord           // ticket id -> record
	avail map[string]map[string]map[string]bool // region -> status -> set of ticket ids
	held  map[string]bool                       // reserved ticket ids
}

// NewMemoryIndex returns an empty in-process index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		holds: make(map[string]model.HoldRecord),
		avail: make(map[string]map[string]map[string]bool),
		held:  make(map[string]bool),
	}
}

func (ix *MemoryIndex) set(regionID string, status model.HoldStatus) map[string]bool {
	region, ok := ix.avail[regionID]
	if !ok {
		region = make(map[string]map[string]bool)
		ix.avail[regionID] = region
	}
	s, ok := region[string(status)]
	if !ok {
		s = make(map[string]bool)
		region[string(status)] = s
	}
	return s
}

func (ix *MemoryIndex) GetHold(_ context.Context, ticketID string) (model.HoldRecord, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if rec, ok := ix.holds[ticketID]; ok {
		return rec, nil
	}
	return model.HoldRecord{TicketID: ticketID, Status: model.HoldEmpty}, nil
}

func (ix *MemoryIndex) SetHold(_ context.Context, rec model.HoldRecord) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.holds[rec.TicketID] = rec
	if rec.Status == model.HoldReserved {
		ix.held[rec.TicketID] = true
	} else {
		delete(ix.held, rec.TicketID)
	}
	return nil
}

func (ix *MemoryIndex) MoveAvailability(_ context.Context, regionID, ticketID string, from, to model.HoldStatus) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.set(regionID, from), ticketID)
	ix.set(regionID, to)[ticketID] = true
	return nil
}

func (ix *MemoryIndex) ListAvailable(_ context.Context, regionID string) ([]string, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var ids []string
	if region, ok := ix.avail[regionID]; ok {
		for id := range region[string(model.HoldEmpty)] {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (ix *MemoryIndex) ListHeld(_ context.Context) ([]string, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	ids := make([]string, 0, len(ix.held))
	for id := range ix.held {
		ids = append(ids, id)
	}
	return ids, nil
}

func (ix *MemoryIndex) SeedRegion(_ context.Context, regionID string, ticketIDs []string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, id := range ticketIDs {
		ix.holds[id] = model.HoldRecord{TicketID: id, RegionID: regionID, Status: model.HoldEmpty}
		ix.set(regionID, model.HoldEmpty)[id] = true
	}
	return nil
}

func (ix *MemoryIndex) RemoveRegion(_ context.Context, regionID string, ticketIDs []string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, id := range ticketIDs {
		delete(ix.holds, id)
		delete(ix.held, id)
	}
	delete(ix.avail, regionID)
	return nil
}
