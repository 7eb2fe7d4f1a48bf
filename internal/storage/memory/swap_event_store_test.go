package memory

import (
	"context"
	"errors"
	"testing"

	"solana-atomic-swap/internal/domain"
	"solana-atomic-swap/internal/storage"
)

func TestSwapEventStore_InsertAndGet(t *testing.T) {
	store := NewSwapEventStore()
	ctx := context.Background()

	e := &domain.SwapEvent{
		EventID:   "ev1",
		Type:      domain.EventDeposited,
		Slot:      10,
		Timestamp: 1700000000,
		Pool:      "Pool1",
		SwapID:    "aa",
		Amount:    2500,
	}

	if err := store.Insert(ctx, e); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	result, err := store.GetBySwapID(ctx, "Pool1", "aa")
	if err != nil {
		t.Fatalf("GetBySwapID failed: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(result))
	}
	if result[0].Amount != 2500 || result[0].ID == 0 {
		t.Errorf("unexpected event: %+v", result[0])
	}
}

func TestSwapEventStore_DuplicateKey(t *testing.T) {
	store := NewSwapEventStore()
	ctx := context.Background()

	e := &domain.SwapEvent{EventID: "ev1", Type: domain.EventDeposited, Pool: "P"}
	if err := store.Insert(ctx, e); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, e)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestSwapEventStore_InvalidType(t *testing.T) {
	store := NewSwapEventStore()
	err := store.Insert(context.Background(), &domain.SwapEvent{EventID: "x", Type: "BOGUS"})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestSwapEventStore_InsertBulkPartialDuplicate(t *testing.T) {
	store := NewSwapEventStore()
	ctx := context.Background()

	first := &domain.SwapEvent{EventID: "ev1", Type: domain.EventDeposited, Pool: "P", SwapID: "s"}
	if err := store.Insert(ctx, first); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	events := []*domain.SwapEvent{
		{EventID: "ev2", Type: domain.EventRedeemed, Pool: "P", SwapID: "s"}, // new
		{EventID: "ev1", Type: domain.EventDeposited, Pool: "P", SwapID: "s"}, // duplicate
	}

	err := store.InsertBulk(ctx, events)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	// Verify no partial insert
	result, _ := store.GetBySwapID(ctx, "P", "s")
	if len(result) != 1 {
		t.Errorf("Expected 1 event (rollback), got %d", len(result))
	}
}

func TestSwapEventStore_OrderAndRange(t *testing.T) {
	store := NewSwapEventStore()
	ctx := context.Background()

	events := []*domain.SwapEvent{
		{EventID: "c", Type: domain.EventRefunded, Pool: "P", Slot: 3, Timestamp: 3000},
		{EventID: "a", Type: domain.EventDeposited, Pool: "P", Slot: 1, Timestamp: 1000},
		{EventID: "b2", Type: domain.EventDeposited, Pool: "P", Slot: 2, EventIndex: 1, Timestamp: 2000},
		{EventID: "b1", Type: domain.EventDeposited, Pool: "P", Slot: 2, EventIndex: 0, Timestamp: 2000},
		{EventID: "z", Type: domain.EventDeposited, Pool: "Other", Slot: 2, Timestamp: 2000},
	}
	if err := store.InsertBulk(ctx, events); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	all, _ := store.GetByPool(ctx, "P")
	want := []string{"a", "b1", "b2", "c"}
	if len(all) != len(want) {
		t.Fatalf("Expected %d events, got %d", len(want), len(all))
	}
	for i := range want {
		if all[i].EventID != want[i] {
			t.Errorf("all[%d] = %s, want %s", i, all[i].EventID, want[i])
		}
	}

	ranged, _ := store.GetByTimeRange(ctx, "P", 1500, 2500)
	if len(ranged) != 2 {
		t.Errorf("Expected 2 events in range, got %d", len(ranged))
	}
}
