package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-atomic-swap/internal/domain"
	"solana-atomic-swap/internal/observability"
	"solana-atomic-swap/internal/storage"
)

// SwapEventStore implements storage.SwapEventStore using ClickHouse.
type SwapEventStore struct {
	conn *Conn
}

// NewSwapEventStore creates a new SwapEventStore.
func NewSwapEventStore(conn *Conn) *SwapEventStore {
	return &SwapEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SwapEventStore = (*SwapEventStore)(nil)

const swapEventColumns = `
	event_id, type, tx_signature, event_index, slot, timestamp, pool, mint, swap_id,
	actor, depositor, buyer, amount, fee, payout, secret_hash, secret, lock_expiry, created_at
`

// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
func (s *SwapEventStore) Insert(ctx context.Context, e *domain.SwapEvent) error {
	return s.InsertBulk(ctx, []*domain.SwapEvent{e})
}

// InsertBulk adds multiple events. Fails entire batch on duplicate.
func (s *SwapEventStore) InsertBulk(ctx context.Context, events []*domain.SwapEvent) (err error) {
	if len(events) == 0 {
		return nil
	}
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "insert_swap_events", time.Since(start).Seconds(), err)
	}()

	// Check for intra-batch duplicates
	seen := make(map[string]struct{}, len(events))
	ids := make([]string, 0, len(events))
	for _, e := range events {
		if e == nil || e.EventID == "" || !e.Type.IsValid() {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[e.EventID] = struct{}{}
		ids = append(ids, e.EventID)
	}

	// Check for duplicates against existing rows
	var count uint64
	if err := s.conn.QueryRow(ctx, `SELECT count(*) FROM swap_events WHERE event_id IN (?)`, ids).Scan(&count); err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if count > 0 {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO swap_events (`+swapEventColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.EventID, string(e.Type), e.TxSignature, uint32(e.EventIndex), e.Slot, e.Timestamp,
			e.Pool, e.Mint, e.SwapID, e.Actor, e.Depositor, e.Buyer,
			e.Amount, e.Fee, e.Payout, e.SecretHash, e.Secret, e.LockExpiry, e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetBySwapID retrieves all events of one swap, ordered by slot, event_index ASC.
func (s *SwapEventStore) GetBySwapID(ctx context.Context, pool, swapID string) ([]*domain.SwapEvent, error) {
	query := `SELECT ` + swapEventColumns + `
		FROM swap_events FINAL
		WHERE pool = ? AND swap_id = ?
		ORDER BY slot ASC, event_index ASC
	`

	rows, err := s.conn.Query(ctx, query, pool, swapID)
	if err != nil {
		return nil, fmt.Errorf("query by swap id: %w", err)
	}
	defer rows.Close()

	return scanSwapEvents(rows)
}

// GetByPool retrieves all events of a pool, ordered by slot, event_index ASC.
func (s *SwapEventStore) GetByPool(ctx context.Context, pool string) ([]*domain.SwapEvent, error) {
	query := `SELECT ` + swapEventColumns + `
		FROM swap_events FINAL
		WHERE pool = ?
		ORDER BY slot ASC, event_index ASC
	`

	rows, err := s.conn.Query(ctx, query, pool)
	if err != nil {
		return nil, fmt.Errorf("query by pool: %w", err)
	}
	defer rows.Close()

	return scanSwapEvents(rows)
}

// GetByTimeRange retrieves events of a pool within [start, end] (inclusive).
func (s *SwapEventStore) GetByTimeRange(ctx context.Context, pool string, start, end int64) ([]*domain.SwapEvent, error) {
	query := `SELECT ` + swapEventColumns + `
		FROM swap_events FINAL
		WHERE pool = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY slot ASC, event_index ASC
	`

	rows, err := s.conn.Query(ctx, query, pool, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanSwapEvents(rows)
}

// scanSwapEvents scans multiple rows.
func scanSwapEvents(rows chRows) ([]*domain.SwapEvent, error) {
	var events []*domain.SwapEvent

	for rows.Next() {
		var e domain.SwapEvent
		var eventType string
		var eventIndex uint32

		err := rows.Scan(
			&e.EventID, &eventType, &e.TxSignature, &eventIndex, &e.Slot, &e.Timestamp,
			&e.Pool, &e.Mint, &e.SwapID, &e.Actor, &e.Depositor, &e.Buyer,
			&e.Amount, &e.Fee, &e.Payout, &e.SecretHash, &e.Secret, &e.LockExpiry, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan swap event row: %w", err)
		}

		e.Type = domain.EventType(eventType)
		e.EventIndex = int(eventIndex)
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate swap event rows: %w", err)
	}

	return events, nil
}
