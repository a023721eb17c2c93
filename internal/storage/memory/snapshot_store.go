package memory

import (
	"context"
	"sort"
	"sync"

	"affiliate-vault/internal/domain"
	"affiliate-vault/internal/storage"
)

// EligibilitySnapshotStore is an in-memory implementation of
// storage.EligibilitySnapshotStore.
type EligibilitySnapshotStore struct {
	mu   sync.RWMutex
	data map[string]*domain.EligibilitySnapshot // keyed by snapshot_id
}

// NewEligibilitySnapshotStore creates a new in-memory snapshot store.
func NewEligibilitySnapshotStore() *EligibilitySnapshotStore {
	return &EligibilitySnapshotStore{
		data: make(map[string]*domain.EligibilitySnapshot),
	}
}

// Compile-time interface check.
var _ storage.EligibilitySnapshotStore = (*EligibilitySnapshotStore)(nil)

// Insert adds a snapshot. Returns ErrDuplicateKey if snapshot_id exists.
func (s *EligibilitySnapshotStore) Insert(_ context.Context, snap *domain.EligibilitySnapshot) error {
	if snap == nil || snap.SnapshotID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[snap.SnapshotID]; exists {
		return storage.ErrDuplicateKey
	}

	snapCopy := *snap
	s.data[snap.SnapshotID] = &snapCopy
	return nil
}

// ListRange retrieves snapshots taken within [start, end] (inclusive).
func (s *EligibilitySnapshotStore) ListRange(_ context.Context, start, end int64) ([]*domain.EligibilitySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.EligibilitySnapshot
	for _, snap := range s.data {
		if snap.TakenAt >= start && snap.TakenAt <= end {
			snapCopy := *snap
			result = append(result, &snapCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].TakenAt != result[j].TakenAt {
			return result[i].TakenAt < result[j].TakenAt
		}
		return result[i].SnapshotID < result[j].SnapshotID
	})

	return result, nil
}
