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

// AccountStore implements storage.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *Pool
}

// NewAccountStore creates a new AccountStore.
func NewAccountStore(pool *Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AccountStore = (*AccountStore)(nil)

// Apply upserts every record of the change set and advances the last slot
// in one transaction.
func (s *AccountStore) Apply(ctx context.Context, cs *storage.ChangeSet) (err error) {
	if cs == nil {
		return storage.ErrInvalidInput
	}
	for _, rec := range cs.Accounts {
		if rec == nil || rec.Address == "" {
			return storage.ErrInvalidInput
		}
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("postgres", "apply_change_set", time.Since(start).Seconds(), err)
	}()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO accounts (address, owner, lamports, data, closed, slot)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (address) DO UPDATE SET
			owner = EXCLUDED.owner,
			lamports = EXCLUDED.lamports,
			data = EXCLUDED.data,
			closed = EXCLUDED.closed,
			slot = EXCLUDED.slot
	`

	batch := &pgx.Batch{}
	for _, rec := range cs.Accounts {
		data := rec.Data
		if data == nil {
			data = []byte{}
		}
		batch.Queue(query, rec.Address, rec.Owner, int64(rec.Lamports), data, rec.Closed, int64(rec.Slot))
	}
	batch.Queue(`
		INSERT INTO ledger_state (id, last_slot) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET last_slot = GREATEST(ledger_state.last_slot, EXCLUDED.last_slot)
	`, int64(cs.Slot))

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("apply change set for slot %d: %w", cs.Slot, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Get retrieves an account by address. Returns ErrNotFound if not exists.
func (s *AccountStore) Get(ctx context.Context, address string) (*domain.AccountRecord, error) {
	query := `
		SELECT address, owner, lamports, data, closed, slot
		FROM accounts
		WHERE address = $1
	`

	rec, err := scanAccount(s.pool.QueryRow(ctx, query, address))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return rec, nil
}

// LoadAll retrieves every account, live and closed, ordered by address.
func (s *AccountStore) LoadAll(ctx context.Context) ([]*domain.AccountRecord, error) {
	query := `
		SELECT address, owner, lamports, data, closed, slot
		FROM accounts
		ORDER BY address ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	defer rows.Close()

	var records []*domain.AccountRecord
	for rows.Next() {
		rec, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account row: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account rows: %w", err)
	}

	return records, nil
}

// LastSlot returns the highest slot written. Returns 0 for an empty store.
func (s *AccountStore) LastSlot(ctx context.Context) (uint64, error) {
	var slot int64
	err := s.pool.QueryRow(ctx, `SELECT last_slot FROM ledger_state WHERE id = 1`).Scan(&slot)
	if err != nil {
		if isNotFoundError(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("get last slot: %w", err)
	}
	return uint64(slot), nil
}

func scanAccount(row pgx.Row) (*domain.AccountRecord, error) {
	var rec domain.AccountRecord
	var lamports, slot int64

	if err := row.Scan(&rec.Address, &rec.Owner, &lamports, &rec.Data, &rec.Closed, &slot); err != nil {
		return nil, err
	}

	rec.Lamports = uint64(lamports)
	rec.Slot = uint64(slot)
	return &rec, nil
}
