package storage

import (
	"context"

	"affiliate-vault/internal/domain"
)

// UserRecordStore caches the affiliate lead snapshot fetched from the
// backend. The snapshot is replaced wholesale on each sync; records are
// never edited in place.
type UserRecordStore interface {
	// ReplaceAll swaps the cached snapshot for a new one.
	ReplaceAll(ctx context.Context, records []domain.UserRecord) error

	// List returns the full cached snapshot.
	List(ctx context.Context) ([]domain.UserRecord, error)

	// Get retrieves one record by ce_user_id. Returns ErrNotFound if absent.
	Get(ctx context.Context, ceUserID string) (*domain.UserRecord, error)
}

// PayoutAuditStore is the append-only log of executed vault
// transactions.
type PayoutAuditStore interface {
	// Insert adds an audit entry. Returns ErrDuplicateKey if audit_id exists.
	Insert(ctx context.Context, a *domain.PayoutAudit) error

	// GetByID retrieves an entry by audit_id. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, auditID string) (*domain.PayoutAudit, error)

	// ListByKind retrieves all entries of a kind, ordered by executed_at ASC.
	// Payout and fee reports never mix.
	ListByKind(ctx context.Context, kind domain.TxKind) ([]*domain.PayoutAudit, error)

	// TotalPaid sums the executed amounts of a kind.
	TotalPaid(ctx context.Context, kind domain.TxKind) (float64, error)
}

// EligibilitySnapshotStore keeps the history of engine evaluations.
type EligibilitySnapshotStore interface {
	// Insert adds a snapshot. Returns ErrDuplicateKey if snapshot_id exists.
	Insert(ctx context.Context, s *domain.EligibilitySnapshot) error

	// ListRange retrieves snapshots taken within [start, end] (inclusive),
	// ordered by taken_at ASC.
	ListRange(ctx context.Context, start, end int64) ([]*domain.EligibilitySnapshot, error)
}
