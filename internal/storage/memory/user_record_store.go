package memory

import (
	"context"
	"sync"

	"affiliate-vault/internal/domain"
	"affiliate-vault/internal/storage"
)

// UserRecordStore is an in-memory implementation of storage.UserRecordStore.
type UserRecordStore struct {
	mu      sync.RWMutex
	records []domain.UserRecord
	byID    map[string]int // index into records
}

// NewUserRecordStore creates a new in-memory user record store.
func NewUserRecordStore() *UserRecordStore {
	return &UserRecordStore{byID: make(map[string]int)}
}

// Compile-time interface check.
var _ storage.UserRecordStore = (*UserRecordStore)(nil)

// ReplaceAll swaps the cached snapshot for a new one.
func (s *UserRecordStore) ReplaceAll(_ context.Context, records []domain.UserRecord) error {
	byID := make(map[string]int, len(records))
	for i, r := range records {
		if r.CEUserID == "" {
			return storage.ErrInvalidInput
		}
		if _, dup := byID[r.CEUserID]; dup {
			return storage.ErrDuplicateKey
		}
		byID[r.CEUserID] = i
	}

	// Store a copy to prevent external mutation
	snapshot := make([]domain.UserRecord, len(records))
	copy(snapshot, records)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = snapshot
	s.byID = byID
	return nil
}

// List returns a copy of the full cached snapshot.
func (s *UserRecordStore) List(_ context.Context) ([]domain.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

// Get retrieves one record by ce_user_id.
func (s *UserRecordStore) Get(_ context.Context, ceUserID string) (*domain.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byID[ceUserID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	record := s.records[i]
	return &record, nil
}
