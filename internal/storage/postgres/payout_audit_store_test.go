package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"affiliate-vault/internal/domain"
	"affiliate-vault/internal/storage"
)

func createTestPayoutAudit(auditID string, kind domain.TxKind, txID uint64) *domain.PayoutAudit {
	return &domain.PayoutAudit{
		AuditID:    auditID,
		Kind:       kind,
		TxID:       txID,
		Receiver:   "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		Amount:     125.5,
		Block:      42,
		ExecutedAt: 1700000001000,
	}
}

func TestPayoutAuditStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPayoutAuditStore(pool)

	audit := createTestPayoutAudit("audit-001", domain.TxPayout, 0)
	require.NoError(t, store.Insert(ctx, audit))

	retrieved, err := store.GetByID(ctx, "audit-001")
	require.NoError(t, err)

	assert.Equal(t, audit.AuditID, retrieved.AuditID)
	assert.Equal(t, audit.Kind, retrieved.Kind)
	assert.Equal(t, audit.TxID, retrieved.TxID)
	assert.Equal(t, audit.Receiver, retrieved.Receiver)
	assert.InDelta(t, audit.Amount, retrieved.Amount, 0.0001)
	assert.Equal(t, audit.Block, retrieved.Block)
	assert.Equal(t, audit.ExecutedAt, retrieved.ExecutedAt)
}

func TestPayoutAuditStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPayoutAuditStore(pool)

	audit := createTestPayoutAudit("audit-001", domain.TxPayout, 0)
	require.NoError(t, store.Insert(ctx, audit))

	err := store.Insert(ctx, audit)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestPayoutAuditStore_GetByIDNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPayoutAuditStore(pool)

	_, err := store.GetByID(ctx, "no-such-audit")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPayoutAuditStore_ListByKindSeparatesLogs(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPayoutAuditStore(pool)

	p0 := createTestPayoutAudit("audit-p0", domain.TxPayout, 0)
	p1 := createTestPayoutAudit("audit-p1", domain.TxPayout, 1)
	p1.ExecutedAt = 1700000002000
	f0 := createTestPayoutAudit("audit-f0", domain.TxFee, 0)

	// Insert out of order to exercise the executed_at sort.
	require.NoError(t, store.Insert(ctx, p1))
	require.NoError(t, store.Insert(ctx, f0))
	require.NoError(t, store.Insert(ctx, p0))

	payouts, err := store.ListByKind(ctx, domain.TxPayout)
	require.NoError(t, err)
	require.Len(t, payouts, 2)
	assert.Equal(t, "audit-p0", payouts[0].AuditID)
	assert.Equal(t, "audit-p1", payouts[1].AuditID)

	fees, err := store.ListByKind(ctx, domain.TxFee)
	require.NoError(t, err)
	require.Len(t, fees, 1)
	assert.Equal(t, "audit-f0", fees[0].AuditID)
}

func TestPayoutAuditStore_TotalPaid(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPayoutAuditStore(pool)

	p0 := createTestPayoutAudit("audit-p0", domain.TxPayout, 0)
	p0.Amount = 100
	p1 := createTestPayoutAudit("audit-p1", domain.TxPayout, 1)
	p1.Amount = 50.5
	f0 := createTestPayoutAudit("audit-f0", domain.TxFee, 0)
	f0.Amount = 10

	require.NoError(t, store.Insert(ctx, p0))
	require.NoError(t, store.Insert(ctx, p1))
	require.NoError(t, store.Insert(ctx, f0))

	total, err := store.TotalPaid(ctx, domain.TxPayout)
	require.NoError(t, err)
	assert.InDelta(t, 150.5, total, 0.0001)

	feeTotal, err := store.TotalPaid(ctx, domain.TxFee)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, feeTotal, 0.0001)
}

func TestPayoutAuditStore_TotalPaidEmpty(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPayoutAuditStore(pool)

	total, err := store.TotalPaid(ctx, domain.TxPayout)
	require.NoError(t, err)
	assert.Zero(t, total)
}
