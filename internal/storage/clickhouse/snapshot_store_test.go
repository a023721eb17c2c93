package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"affiliate-vault/internal/domain"
	"affiliate-vault/internal/storage"
)

func createTestSnapshot(snapshotID string, takenAt int64) *domain.EligibilitySnapshot {
	return &domain.EligibilitySnapshot{
		SnapshotID:          snapshotID,
		TakenAt:             takenAt,
		MinDeposit:          300,
		MinVolume:           2,
		PendingCount:        5,
		TotalMissingDeposit: 420,
		TotalMissingVolume:  3.5,
		AvgMissingDeposit:   84,
		AvgMissingVolume:    0.7,
		UntriggeredCount:    2,
		TotalNetDeposits:    900,
		TotalVolume:         7,
		ValidTriggerCount:   1,
		ValidTriggerAmount:  400,
		PotentialCommission: 40,
	}
}

func TestEligibilitySnapshotStore_InsertAndListRange(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEligibilitySnapshotStore(conn)

	snap := createTestSnapshot("snap-001", 1700000000000)
	require.NoError(t, store.Insert(ctx, snap))

	snaps, err := store.ListRange(ctx, 1699999999000, 1700000001000)
	require.NoError(t, err)
	require.Len(t, snaps, 1)

	got := snaps[0]
	assert.Equal(t, snap.SnapshotID, got.SnapshotID)
	assert.Equal(t, snap.TakenAt, got.TakenAt)
	assert.InDelta(t, snap.MinDeposit, got.MinDeposit, 0.0001)
	assert.InDelta(t, snap.MinVolume, got.MinVolume, 0.0001)
	assert.Equal(t, snap.PendingCount, got.PendingCount)
	assert.InDelta(t, snap.TotalMissingDeposit, got.TotalMissingDeposit, 0.0001)
	assert.InDelta(t, snap.AvgMissingDeposit, got.AvgMissingDeposit, 0.0001)
	assert.Equal(t, snap.UntriggeredCount, got.UntriggeredCount)
	assert.Equal(t, snap.ValidTriggerCount, got.ValidTriggerCount)
	assert.InDelta(t, snap.ValidTriggerAmount, got.ValidTriggerAmount, 0.0001)
	assert.InDelta(t, snap.PotentialCommission, got.PotentialCommission, 0.0001)
}

func TestEligibilitySnapshotStore_InsertDuplicate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEligibilitySnapshotStore(conn)

	snap := createTestSnapshot("snap-001", 1700000000000)
	require.NoError(t, store.Insert(ctx, snap))

	err := store.Insert(ctx, snap)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestEligibilitySnapshotStore_ListRangeBoundsInclusive(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEligibilitySnapshotStore(conn)

	require.NoError(t, store.Insert(ctx, createTestSnapshot("snap-001", 1000)))
	require.NoError(t, store.Insert(ctx, createTestSnapshot("snap-002", 2000)))
	require.NoError(t, store.Insert(ctx, createTestSnapshot("snap-003", 3000)))

	snaps, err := store.ListRange(ctx, 1000, 2000)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "snap-001", snaps[0].SnapshotID)
	assert.Equal(t, "snap-002", snaps[1].SnapshotID)
}

func TestEligibilitySnapshotStore_ListRangeEmpty(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEligibilitySnapshotStore(conn)

	snaps, err := store.ListRange(ctx, 0, 999)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}
