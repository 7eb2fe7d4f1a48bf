package memory

import (
	"context"
	"sort"
	"sync"

	"solana-atomic-swap/internal/domain"
	"solana-atomic-swap/internal/storage"
)

// AccountStore is an in-memory implementation of storage.AccountStore.
type AccountStore struct {
	mu       sync.RWMutex
	data     map[string]*domain.AccountRecord // keyed by address
	lastSlot uint64
}

// NewAccountStore creates a new in-memory account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		data: make(map[string]*domain.AccountRecord),
	}
}

// Apply upserts every record in the change set atomically.
func (s *AccountStore) Apply(_ context.Context, cs *storage.ChangeSet) error {
	if cs == nil {
		return storage.ErrInvalidInput
	}
	for _, rec := range cs.Accounts {
		if rec == nil || rec.Address == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range cs.Accounts {
		s.data[rec.Address] = cloneAccount(rec)
	}
	if cs.Slot > s.lastSlot {
		s.lastSlot = cs.Slot
	}
	return nil
}

// Get retrieves an account by address. Returns ErrNotFound if not exists.
func (s *AccountStore) Get(_ context.Context, address string) (*domain.AccountRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneAccount(rec), nil
}

// LoadAll retrieves every account ordered by address.
func (s *AccountStore) LoadAll(_ context.Context) ([]*domain.AccountRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.AccountRecord, 0, len(s.data))
	for _, rec := range s.data {
		result = append(result, cloneAccount(rec))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Address < result[j].Address
	})

	return result, nil
}

// LastSlot returns the highest slot written.
func (s *AccountStore) LastSlot(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSlot, nil
}

func cloneAccount(rec *domain.AccountRecord) *domain.AccountRecord {
	c := *rec
	if rec.Data != nil {
		c.Data = append([]byte(nil), rec.Data...)
	}
	return &c
}

var _ storage.AccountStore = (*AccountStore)(nil)
