package memory

import (
	"context"
	"sort"
	"sync"

	"affiliate-vault/internal/domain"
	"affiliate-vault/internal/storage"
)

// PayoutAuditStore is an in-memory implementation of storage.PayoutAuditStore.
type PayoutAuditStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PayoutAudit // keyed by audit_id
}

// NewPayoutAuditStore creates a new in-memory payout audit store.
func NewPayoutAuditStore() *PayoutAuditStore {
	return &PayoutAuditStore{
		data: make(map[string]*domain.PayoutAudit),
	}
}

// Compile-time interface check.
var _ storage.PayoutAuditStore = (*PayoutAuditStore)(nil)

// Insert adds an audit entry. Returns ErrDuplicateKey if audit_id exists.
func (s *PayoutAuditStore) Insert(_ context.Context, a *domain.PayoutAudit) error {
	if a == nil || a.AuditID == "" || !a.Kind.Valid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[a.AuditID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	auditCopy := *a
	s.data[a.AuditID] = &auditCopy
	return nil
}

// GetByID retrieves an entry by audit_id. Returns ErrNotFound if absent.
func (s *PayoutAuditStore) GetByID(_ context.Context, auditID string) (*domain.PayoutAudit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[auditID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	auditCopy := *a
	return &auditCopy, nil
}

// ListByKind retrieves all entries of a kind, ordered by executed_at ASC.
func (s *PayoutAuditStore) ListByKind(_ context.Context, kind domain.TxKind) ([]*domain.PayoutAudit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PayoutAudit
	for _, a := range s.data {
		if a.Kind == kind {
			auditCopy := *a
			result = append(result, &auditCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ExecutedAt != result[j].ExecutedAt {
			return result[i].ExecutedAt < result[j].ExecutedAt
		}
		return result[i].TxID < result[j].TxID
	})

	return result, nil
}

// TotalPaid sums the executed amounts of a kind.
func (s *PayoutAuditStore) TotalPaid(_ context.Context, kind domain.TxKind) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total float64
	for _, a := range s.data {
		if a.Kind == kind {
			total += a.Amount
		}
	}
	return total, nil
}
