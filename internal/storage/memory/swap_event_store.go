package memory

import (
	"context"
	"sort"
	"sync"

	"solana-atomic-swap/internal/domain"
	"solana-atomic-swap/internal/storage"
)

// SwapEventStore is an in-memory implementation of storage.SwapEventStore.
type SwapEventStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.SwapEvent // keyed by event_id
	nextID int64
}

// NewSwapEventStore creates a new in-memory swap event store.
func NewSwapEventStore() *SwapEventStore {
	return &SwapEventStore{
		data: make(map[string]*domain.SwapEvent),
	}
}

// Insert adds a new event. Returns ErrDuplicateKey if exists.
func (s *SwapEventStore) Insert(_ context.Context, e *domain.SwapEvent) error {
	if e == nil || e.EventID == "" || !e.Type.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.EventID]; exists {
		return storage.ErrDuplicateKey
	}

	s.store(e)
	return nil
}

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *SwapEventStore) InsertBulk(_ context.Context, events []*domain.SwapEvent) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: validate and check duplicates (existing + intra-batch)
	batchKeys := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.EventID == "" || !e.Type.IsValid() {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[e.EventID] = struct{}{}
	}

	// Second pass: insert all
	for _, e := range events {
		s.store(e)
	}
	return nil
}

// store must be called with mu held.
func (s *SwapEventStore) store(e *domain.SwapEvent) {
	s.nextID++
	c := *e
	c.ID = s.nextID
	s.data[e.EventID] = &c
}

// GetBySwapID retrieves all events of one swap, ordered by slot, event_index ASC.
func (s *SwapEventStore) GetBySwapID(_ context.Context, pool, swapID string) ([]*domain.SwapEvent, error) {
	return s.filter(func(e *domain.SwapEvent) bool {
		return e.Pool == pool && e.SwapID == swapID
	}), nil
}

// GetByPool retrieves all events of a pool, ordered by slot, event_index ASC.
func (s *SwapEventStore) GetByPool(_ context.Context, pool string) ([]*domain.SwapEvent, error) {
	return s.filter(func(e *domain.SwapEvent) bool {
		return e.Pool == pool
	}), nil
}

// GetByTimeRange retrieves events of a pool within [start, end] (inclusive).
func (s *SwapEventStore) GetByTimeRange(_ context.Context, pool string, start, end int64) ([]*domain.SwapEvent, error) {
	return s.filter(func(e *domain.SwapEvent) bool {
		return e.Pool == pool && e.Timestamp >= start && e.Timestamp <= end
	}), nil
}

func (s *SwapEventStore) filter(keep func(*domain.SwapEvent) bool) []*domain.SwapEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SwapEvent
	for _, e := range s.data {
		if keep(e) {
			c := *e
			result = append(result, &c)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Slot != result[j].Slot {
			return result[i].Slot < result[j].Slot
		}
		return result[i].EventIndex < result[j].EventIndex
	})

	return result
}

var _ storage.SwapEventStore = (*SwapEventStore)(nil)
