package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-atomic-swap/internal/domain"
	"solana-atomic-swap/internal/observability"
	"solana-atomic-swap/internal/storage"
)

// SwapEventStore implements storage.SwapEventStore using PostgreSQL.
type SwapEventStore struct {
	pool *Pool
}

// NewSwapEventStore creates a new SwapEventStore.
func NewSwapEventStore(pool *Pool) *SwapEventStore {
	return &SwapEventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SwapEventStore = (*SwapEventStore)(nil)

const insertSwapEventQuery = `
	INSERT INTO swap_events (
		event_id, type, tx_signature, event_index, slot, timestamp, pool, mint, swap_id,
		actor, depositor, buyer, amount, fee, payout, secret_hash, secret, lock_expiry, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
`

const selectSwapEventColumns = `
	SELECT id, event_id, type, tx_signature, event_index, slot, timestamp, pool, mint, swap_id,
		actor, depositor, buyer, amount, fee, payout, secret_hash, secret, lock_expiry, created_at
	FROM swap_events
`

func swapEventArgs(e *domain.SwapEvent) []any {
	return []any{
		e.EventID, string(e.Type), e.TxSignature, e.EventIndex, int64(e.Slot), e.Timestamp,
		e.Pool, e.Mint, e.SwapID, e.Actor, e.Depositor, e.Buyer,
		int64(e.Amount), int64(e.Fee), int64(e.Payout), e.SecretHash, e.Secret, e.LockExpiry, e.CreatedAt,
	}
}

// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
func (s *SwapEventStore) Insert(ctx context.Context, e *domain.SwapEvent) error {
	if e == nil || e.EventID == "" || !e.Type.IsValid() {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertSwapEventQuery, swapEventArgs(e)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert swap event: %w", err)
	}
	return nil
}

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *SwapEventStore) InsertBulk(ctx context.Context, events []*domain.SwapEvent) (err error) {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if e == nil || e.EventID == "" || !e.Type.IsValid() {
			return storage.ErrInvalidInput
		}
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("postgres", "insert_swap_events", time.Since(start).Seconds(), err)
	}()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range events {
		if _, err := tx.Exec(ctx, insertSwapEventQuery, swapEventArgs(e)...); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert swap event in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetBySwapID retrieves all events of one swap, ordered by slot, event_index ASC.
func (s *SwapEventStore) GetBySwapID(ctx context.Context, pool, swapID string) ([]*domain.SwapEvent, error) {
	query := selectSwapEventColumns + `
		WHERE pool = $1 AND swap_id = $2
		ORDER BY slot ASC, event_index ASC
	`

	rows, err := s.pool.Query(ctx, query, pool, swapID)
	if err != nil {
		return nil, fmt.Errorf("get swap events by swap id: %w", err)
	}
	defer rows.Close()

	return scanSwapEvents(rows)
}

// GetByPool retrieves all events of a pool, ordered by slot, event_index ASC.
func (s *SwapEventStore) GetByPool(ctx context.Context, pool string) ([]*domain.SwapEvent, error) {
	query := selectSwapEventColumns + `
		WHERE pool = $1
		ORDER BY slot ASC, event_index ASC
	`

	rows, err := s.pool.Query(ctx, query, pool)
	if err != nil {
		return nil, fmt.Errorf("get swap events by pool: %w", err)
	}
	defer rows.Close()

	return scanSwapEvents(rows)
}

// GetByTimeRange retrieves events of a pool within [start, end] (inclusive).
func (s *SwapEventStore) GetByTimeRange(ctx context.Context, pool string, start, end int64) ([]*domain.SwapEvent, error) {
	query := selectSwapEventColumns + `
		WHERE pool = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY slot ASC, event_index ASC
	`

	rows, err := s.pool.Query(ctx, query, pool, start, end)
	if err != nil {
		return nil, fmt.Errorf("get swap events by time range: %w", err)
	}
	defer rows.Close()

	return scanSwapEvents(rows)
}

// scanSwapEvents scans multiple rows into a slice of SwapEvent.
func scanSwapEvents(rows pgx.Rows) ([]*domain.SwapEvent, error) {
	var events []*domain.SwapEvent

	for rows.Next() {
		var e domain.SwapEvent
		var eventType string
		var slot, amount, fee, payout int64

		err := rows.Scan(
			&e.ID, &e.EventID, &eventType, &e.TxSignature, &e.EventIndex, &slot, &e.Timestamp,
			&e.Pool, &e.Mint, &e.SwapID, &e.Actor, &e.Depositor, &e.Buyer,
			&amount, &fee, &payout, &e.SecretHash, &e.Secret, &e.LockExpiry, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan swap event row: %w", err)
		}

		e.Type = domain.EventType(eventType)
		e.Slot = uint64(slot)
		e.Amount = uint64(amount)
		e.Fee = uint64(fee)
		e.Payout = uint64(payout)
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate swap event rows: %w", err)
	}

	return events, nil
}
