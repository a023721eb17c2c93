package postgres

import (
	"context"
	"fmt"

	"affiliate-vault/internal/domain"
	"affiliate-vault/internal/storage"
)

// UserRecordStore implements storage.UserRecordStore using PostgreSQL.
type UserRecordStore struct {
	pool *Pool
}

// NewUserRecordStore creates a new UserRecordStore.
func NewUserRecordStore(pool *Pool) *UserRecordStore {
	return &UserRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.UserRecordStore = (*UserRecordStore)(nil)

// ReplaceAll swaps the cached snapshot for a new one. The delete and
// inserts run in one transaction so readers never observe a partial sync.
func (s *UserRecordStore) ReplaceAll(ctx context.Context, records []domain.UserRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM user_records`); err != nil {
		return fmt.Errorf("clear user records: %w", err)
	}

	query := `
		INSERT INTO user_records (
			ce_user_id, customer_name, country,
			net_deposits, volume, commission, withdrawals,
			registration_date, qualification_date, tracking_code
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10
		)
	`

	for _, r := range records {
		_, err := tx.Exec(ctx, query,
			r.CEUserID, r.CustomerName, r.Country,
			r.NetDeposits, r.Volume, r.Commission, r.Withdrawals,
			r.RegistrationDate, r.QualificationDate, r.TrackingCode,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert user record: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// List returns the full cached snapshot.
func (s *UserRecordStore) List(ctx context.Context) ([]domain.UserRecord, error) {
	query := `
		SELECT
			ce_user_id, customer_name, country,
			net_deposits, volume, commission, withdrawals,
			registration_date, qualification_date, tracking_code
		FROM user_records
		ORDER BY ce_user_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list user records: %w", err)
	}
	defer rows.Close()

	var records []domain.UserRecord

	for rows.Next() {
		var r domain.UserRecord

		err := rows.Scan(
			&r.CEUserID, &r.CustomerName, &r.Country,
			&r.NetDeposits, &r.Volume, &r.Commission, &r.Withdrawals,
			&r.RegistrationDate, &r.QualificationDate, &r.TrackingCode,
		)
		if err != nil {
			return nil, fmt.Errorf("scan user record row: %w", err)
		}

		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user record rows: %w", err)
	}

	return records, nil
}

// Get retrieves one record by ce_user_id. Returns ErrNotFound if absent.
func (s *UserRecordStore) Get(ctx context.Context, ceUserID string) (*domain.UserRecord, error) {
	query := `
		SELECT
			ce_user_id, customer_name, country,
			net_deposits, volume, commission, withdrawals,
			registration_date, qualification_date, tracking_code
		FROM user_records
		WHERE ce_user_id = $1
	`

	var r domain.UserRecord

	err := s.pool.QueryRow(ctx, query, ceUserID).Scan(
		&r.CEUserID, &r.CustomerName, &r.Country,
		&r.NetDeposits, &r.Volume, &r.Commission, &r.Withdrawals,
		&r.RegistrationDate, &r.QualificationDate, &r.TrackingCode,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get user record by id: %w", err)
	}

	return &r, nil
}
