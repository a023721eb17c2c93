package memory

import (
	"context"
	"errors"
	"testing"

	"affiliate-vault/internal/domain"
	"affiliate-vault/internal/storage"
)

func TestUserRecordStore_ReplaceAndGet(t *testing.T) {
	store := NewUserRecordStore()
	ctx := context.Background()

	records := []domain.UserRecord{
		{CEUserID: "u1", NetDeposits: 100},
		{CEUserID: "u2", NetDeposits: 350},
	}
	if err := store.ReplaceAll(ctx, records); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}

	got, err := store.Get(ctx, "u2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.NetDeposits != 350 {
		t.Errorf("expected 350, got %f", got.NetDeposits)
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("expected 2 records, got %d", len(list))
	}
}

func TestUserRecordStore_ReplaceSwapsSnapshot(t *testing.T) {
	store := NewUserRecordStore()
	ctx := context.Background()

	_ = store.ReplaceAll(ctx, []domain.UserRecord{{CEUserID: "u1"}})
	_ = store.ReplaceAll(ctx, []domain.UserRecord{{CEUserID: "u2"}})

	if _, err := store.Get(ctx, "u1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for replaced record, got %v", err)
	}
	if _, err := store.Get(ctx, "u2"); err != nil {
		t.Errorf("Get u2: %v", err)
	}
}

func TestUserRecordStore_RejectsBadInput(t *testing.T) {
	store := NewUserRecordStore()
	ctx := context.Background()

	err := store.ReplaceAll(ctx, []domain.UserRecord{{CEUserID: ""}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}

	err = store.ReplaceAll(ctx, []domain.UserRecord{{CEUserID: "u1"}, {CEUserID: "u1"}})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestUserRecordStore_GetReturnsCopy(t *testing.T) {
	store := NewUserRecordStore()
	ctx := context.Background()

	_ = store.ReplaceAll(ctx, []domain.UserRecord{{CEUserID: "u1", NetDeposits: 100}})

	got, _ := store.Get(ctx, "u1")
	got.NetDeposits = 999

	fresh, _ := store.Get(ctx, "u1")
	if fresh.NetDeposits != 100 {
		t.Error("Get leaked internal state")
	}
}
