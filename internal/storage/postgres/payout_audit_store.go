package postgres

import (
	"context"
	"fmt"

	"affiliate-vault/internal/domain"
	"affiliate-vault/internal/storage"
)

// PayoutAuditStore implements storage.PayoutAuditStore using PostgreSQL.
type PayoutAuditStore struct {
	pool *Pool
}

// NewPayoutAuditStore creates a new PayoutAuditStore.
func NewPayoutAuditStore(pool *Pool) *PayoutAuditStore {
	return &PayoutAuditStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PayoutAuditStore = (*PayoutAuditStore)(nil)

// Insert adds an audit entry. Returns ErrDuplicateKey if audit_id exists.
func (s *PayoutAuditStore) Insert(ctx context.Context, a *domain.PayoutAudit) error {
	query := `
		INSERT INTO payout_audit (
			audit_id, kind, tx_id, receiver, amount, block, executed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	_, err := s.pool.Exec(ctx, query,
		a.AuditID, string(a.Kind), a.TxID, a.Receiver, a.Amount, a.Block, a.ExecutedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert payout audit: %w", err)
	}
	return nil
}

// GetByID retrieves an entry by audit_id. Returns ErrNotFound if absent.
func (s *PayoutAuditStore) GetByID(ctx context.Context, auditID string) (*domain.PayoutAudit, error) {
	query := `
		SELECT audit_id, kind, tx_id, receiver, amount, block, executed_at
		FROM payout_audit
		WHERE audit_id = $1
	`

	var (
		a    domain.PayoutAudit
		kind string
	)

	err := s.pool.QueryRow(ctx, query, auditID).Scan(
		&a.AuditID, &kind, &a.TxID, &a.Receiver, &a.Amount, &a.Block, &a.ExecutedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get payout audit by id: %w", err)
	}

	a.Kind = domain.TxKind(kind)
	return &a, nil
}

// ListByKind retrieves all entries of a kind, ordered by executed_at ASC.
func (s *PayoutAuditStore) ListByKind(ctx context.Context, kind domain.TxKind) ([]*domain.PayoutAudit, error) {
	query := `
		SELECT audit_id, kind, tx_id, receiver, amount, block, executed_at
		FROM payout_audit
		WHERE kind = $1
		ORDER BY executed_at ASC, tx_id ASC
	`

	rows, err := s.pool.Query(ctx, query, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list payout audit by kind: %w", err)
	}
	defer rows.Close()

	var entries []*domain.PayoutAudit

	for rows.Next() {
		var (
			a domain.PayoutAudit
			k string
		)

		err := rows.Scan(&a.AuditID, &k, &a.TxID, &a.Receiver, &a.Amount, &a.Block, &a.ExecutedAt)
		if err != nil {
			return nil, fmt.Errorf("scan payout audit row: %w", err)
		}

		a.Kind = domain.TxKind(k)
		entries = append(entries, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payout audit rows: %w", err)
	}

	return entries, nil
}

// TotalPaid sums the executed amounts of a kind.
func (s *PayoutAuditStore) TotalPaid(ctx context.Context, kind domain.TxKind) (float64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM payout_audit
		WHERE kind = $1
	`

	var total float64
	if err := s.pool.QueryRow(ctx, query, string(kind)).Scan(&total); err != nil {
		return 0, fmt.Errorf("total paid by kind: %w", err)
	}

	return total, nil
}
