package ledger

import (
	"context"
	"time"

	"solana-atomic-swap/internal/domain"
	"solana-atomic-swap/internal/storage"
)

// StoreSink writes committed events to a SwapEventStore.
type StoreSink struct {
	store storage.SwapEventStore
}

// NewStoreSink creates a sink backed by store.
func NewStoreSink(store storage.SwapEventStore) *StoreSink {
	return &StoreSink{store: store}
}

// Publish inserts the events as one batch, stamping CreatedAt.
func (s *StoreSink) Publish(ctx context.Context, events []*domain.SwapEvent) error {
	now := time.Now().UnixMilli()
	batch := make([]*domain.SwapEvent, len(events))
	for i, e := range events {
		c := *e
		if c.CreatedAt == 0 {
			c.CreatedAt = now
		}
		batch[i] = &c
	}
	return s.store.InsertBulk(ctx, batch)
}

var _ EventSink = (*StoreSink)(nil)
