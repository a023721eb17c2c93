package clickhouse

import (
	"context"
	"fmt"

	"affiliate-vault/internal/domain"
	"affiliate-vault/internal/storage"
)

// EligibilitySnapshotStore implements storage.EligibilitySnapshotStore
// using ClickHouse.
type EligibilitySnapshotStore struct {
	conn *Conn
}

// NewEligibilitySnapshotStore creates a new EligibilitySnapshotStore.
func NewEligibilitySnapshotStore(conn *Conn) *EligibilitySnapshotStore {
	return &EligibilitySnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EligibilitySnapshotStore = (*EligibilitySnapshotStore)(nil)

// Insert adds a snapshot. Returns ErrDuplicateKey if snapshot_id exists.
func (s *EligibilitySnapshotStore) Insert(ctx context.Context, snap *domain.EligibilitySnapshot) error {
	// ReplacingMergeTree would silently replace, but the history is
	// append-only, so duplicates are rejected up front.
	exists, err := s.exists(ctx, snap.SnapshotID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	query := `
		INSERT INTO eligibility_snapshots (
			snapshot_id, taken_at, min_deposit, min_volume,
			pending_count, total_missing_deposit, total_missing_volume,
			avg_missing_deposit, avg_missing_volume,
			untriggered_count, total_net_deposits, total_volume,
			valid_trigger_count, valid_trigger_amount, potential_commission
		) VALUES (
			?, ?, ?, ?,
			?, ?, ?,
			?, ?,
			?, ?, ?,
			?, ?, ?
		)
	`

	err = s.conn.Exec(ctx, query,
		snap.SnapshotID, snap.TakenAt, snap.MinDeposit, snap.MinVolume,
		int32(snap.PendingCount), snap.TotalMissingDeposit, snap.TotalMissingVolume,
		snap.AvgMissingDeposit, snap.AvgMissingVolume,
		int32(snap.UntriggeredCount), snap.TotalNetDeposits, snap.TotalVolume,
		int32(snap.ValidTriggerCount), snap.ValidTriggerAmount, snap.PotentialCommission,
	)
	if err != nil {
		return fmt.Errorf("insert eligibility snapshot: %w", err)
	}
	return nil
}

// ListRange retrieves snapshots taken within [start, end] inclusive,
// ordered by taken_at ASC.
func (s *EligibilitySnapshotStore) ListRange(ctx context.Context, start, end int64) ([]*domain.EligibilitySnapshot, error) {
	query := `
		SELECT
			snapshot_id, taken_at, min_deposit, min_volume,
			pending_count, total_missing_deposit, total_missing_volume,
			avg_missing_deposit, avg_missing_volume,
			untriggered_count, total_net_deposits, total_volume,
			valid_trigger_count, valid_trigger_amount, potential_commission
		FROM eligibility_snapshots FINAL
		WHERE taken_at >= ? AND taken_at <= ?
		ORDER BY taken_at ASC, snapshot_id ASC
	`

	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query snapshot range: %w", err)
	}
	defer rows.Close()

	var snaps []*domain.EligibilitySnapshot

	for rows.Next() {
		var (
			snap                              domain.EligibilitySnapshot
			pending, untriggered, validCount int32
		)

		err := rows.Scan(
			&snap.SnapshotID, &snap.TakenAt, &snap.MinDeposit, &snap.MinVolume,
			&pending, &snap.TotalMissingDeposit, &snap.TotalMissingVolume,
			&snap.AvgMissingDeposit, &snap.AvgMissingVolume,
			&untriggered, &snap.TotalNetDeposits, &snap.TotalVolume,
			&validCount, &snap.ValidTriggerAmount, &snap.PotentialCommission,
		)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}

		snap.PendingCount = int(pending)
		snap.UntriggeredCount = int(untriggered)
		snap.ValidTriggerCount = int(validCount)
		snaps = append(snaps, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}

	return snaps, nil
}

// exists checks if a snapshot with the given id exists.
func (s *EligibilitySnapshotStore) exists(ctx context.Context, snapshotID string) (bool, error) {
	query := `
		SELECT count(*) FROM eligibility_snapshots FINAL
		WHERE snapshot_id = ?
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, snapshotID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}
