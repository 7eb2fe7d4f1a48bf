package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-atomic-swap/internal/domain"
	"solana-atomic-swap/internal/storage"
	"solana-atomic-swap/internal/storage/postgres"
)

func makeSwapEvent(id string, typ domain.EventType, swapID string, slot uint64, ts int64) *domain.SwapEvent {
	return &domain.SwapEvent{
		EventID:     id,
		Type:        typ,
		TxSignature: "tx-" + id,
		Slot:        slot,
		Timestamp:   ts,
		Pool:        "Pool1",
		Mint:        "Mint1",
		SwapID:      swapID,
		Actor:       "Depositor1",
		Depositor:   "Depositor1",
		Buyer:       "Buyer1",
		Amount:      2500,
		SecretHash:  "hash",
		LockExpiry:  ts + 3600,
	}
}

func TestSwapEventStore_InsertAndGetBySwapID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewSwapEventStore(pool)

	redeemed := makeSwapEvent("e2", domain.EventRedeemed, "aa", 20, 1100)
	redeemed.Actor = "Buyer1"
	redeemed.Fee = 500
	redeemed.Payout = 2000
	redeemed.Secret = "beef"

	require.NoError(t, store.Insert(ctx, redeemed))
	require.NoError(t, store.Insert(ctx, makeSwapEvent("e1", domain.EventDeposited, "aa", 10, 1000)))
	require.NoError(t, store.Insert(ctx, makeSwapEvent("e3", domain.EventDeposited, "bb", 15, 1050)))

	events, err := store.GetBySwapID(ctx, "Pool1", "aa")
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, domain.EventDeposited, events[0].Type)
	assert.Equal(t, domain.EventRedeemed, events[1].Type)
	assert.NotZero(t, events[0].ID)
	assert.Equal(t, uint64(20), events[1].Slot)
	assert.Equal(t, uint64(500), events[1].Fee)
	assert.Equal(t, uint64(2000), events[1].Payout)
	assert.Equal(t, "beef", events[1].Secret)
	assert.Equal(t, int64(4700), events[1].LockExpiry)
}

func TestSwapEventStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewSwapEventStore(pool)

	event := makeSwapEvent("dup", domain.EventDeposited, "aa", 10, 1000)
	require.NoError(t, store.Insert(ctx, event))

	err := store.Insert(ctx, event)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestSwapEventStore_InsertBulkAtomic(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewSwapEventStore(pool)

	require.NoError(t, store.Insert(ctx, makeSwapEvent("existing", domain.EventDeposited, "aa", 10, 1000)))

	err := store.InsertBulk(ctx, []*domain.SwapEvent{
		makeSwapEvent("new", domain.EventDeposited, "bb", 11, 1001),
		makeSwapEvent("existing", domain.EventDeposited, "aa", 10, 1000),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	events, err := store.GetByPool(ctx, "Pool1")
	require.NoError(t, err)
	assert.Len(t, events, 1, "failed batch must not insert any row")

	err = store.InsertBulk(ctx, []*domain.SwapEvent{{EventID: "bad", Type: "UNKNOWN"}})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestSwapEventStore_GetByTimeRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewSwapEventStore(pool)

	require.NoError(t, store.InsertBulk(ctx, []*domain.SwapEvent{
		makeSwapEvent("t1", domain.EventDeposited, "aa", 10, 1000),
		makeSwapEvent("t2", domain.EventDeposited, "bb", 20, 2000),
		makeSwapEvent("t3", domain.EventDeposited, "cc", 30, 3000),
	}))

	events, err := store.GetByTimeRange(ctx, "Pool1", 1000, 2000)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "t1", events[0].EventID)
	assert.Equal(t, "t2", events[1].EventID)

	events, err = store.GetByTimeRange(ctx, "OtherPool", 0, 5000)
	require.NoError(t, err)
	assert.Empty(t, events)
}
