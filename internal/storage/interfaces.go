package storage

import (
	"context"

	"solana-atomic-swap/internal/domain"
)

// ChangeSet is the set of account writes produced by one committed ledger
// transaction.
type ChangeSet struct {
	Slot     uint64
	Accounts []*domain.AccountRecord
}

// AccountStore persists ledger accounts.
type AccountStore interface {
	// Apply upserts every record in the change set atomically.
	// Either all records are written or none are.
	Apply(ctx context.Context, cs *ChangeSet) error

	// Get retrieves an account by address. Returns ErrNotFound if not exists.
	Get(ctx context.Context, address string) (*domain.AccountRecord, error)

	// LoadAll retrieves every account, live and closed, ordered by address.
	LoadAll(ctx context.Context) ([]*domain.AccountRecord, error)

	// LastSlot returns the highest slot written. Returns 0 for an empty store.
	LastSlot(ctx context.Context) (uint64, error)
}

// SwapEventStore provides access to swap_events storage.
type SwapEventStore interface {
	// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
	Insert(ctx context.Context, e *domain.SwapEvent) error

	// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, events []*domain.SwapEvent) error

	// GetBySwapID retrieves all events of one swap, ordered by slot, event_index ASC.
	GetBySwapID(ctx context.Context, pool, swapID string) ([]*domain.SwapEvent, error)

	// GetByPool retrieves all events of a pool, ordered by slot, event_index ASC.
	GetByPool(ctx context.Context, pool string) ([]*domain.SwapEvent, error)

	// GetByTimeRange retrieves events of a pool within [start, end] (inclusive, Unix seconds).
	GetByTimeRange(ctx context.Context, pool string, start, end int64) ([]*domain.SwapEvent, error)
}
