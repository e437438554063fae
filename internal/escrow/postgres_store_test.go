//go:build integration

package escrow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/servimarket/disputes/internal/testutil"
)

func TestPostgresCreateAndGet(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	tx := &Transaction{
		ID:                "esc_pgtest001",
		BookingID:         "bkg_pg001",
		CustomerID:        "cus_pg",
		VendorID:          "acct_pg",
		AmountCents:       20000,
		Currency:          "USD",
		PlatformFeeCents:  2000,
		VendorAmountCents: 18000,
		Status:            StatusHeld,
		PaymentRef:        "hold_esc_pgtest001",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := store.Create(ctx, tx); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Get(ctx, tx.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusHeld || got.AmountCents != 20000 || got.PaymentRef != tx.PaymentRef {
		t.Errorf("roundtrip mismatch: %+v", got)
	}
	if got.SettledAt != nil {
		t.Errorf("expected nil SettledAt, got %v", got.SettledAt)
	}

	byBooking, err := store.GetByBooking(ctx, "bkg_pg001")
	if err != nil {
		t.Fatalf("GetByBooking: %v", err)
	}
	if byBooking.ID != tx.ID {
		t.Errorf("GetByBooking returned %s, want %s", byBooking.ID, tx.ID)
	}
}

func TestPostgresGetMissing(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	if _, err := store.Get(context.Background(), "esc_nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresUpdateSettlement(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	tx := &Transaction{
		ID:                "esc_pgtest002",
		BookingID:         "bkg_pg002",
		CustomerID:        "cus_pg",
		VendorID:          "acct_pg",
		AmountCents:       10000,
		Currency:          "USD",
		PlatformFeeCents:  1000,
		VendorAmountCents: 9000,
		Status:            StatusDisputed,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := store.Create(ctx, tx); err != nil {
		t.Fatalf("Create: %v", err)
	}

	settled := now.Add(time.Hour)
	tx.Status = StatusPartiallyReleased
	tx.CustomerRefundCents = 4000
	tx.VendorAmountCents = 6000
	tx.PlatformFeeCents = 4000
	tx.SettledAt = &settled
	tx.UpdatedAt = settled
	if err := store.Update(ctx, tx, StatusDisputed); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := store.Get(ctx, tx.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusPartiallyReleased || got.CustomerRefundCents != 4000 {
		t.Errorf("settlement not persisted: %+v", got)
	}
	if got.SettledAt == nil || !got.SettledAt.Equal(settled) {
		t.Errorf("SettledAt = %v, want %v", got.SettledAt, settled)
	}

	// the stored status moved on; a writer holding the old one loses
	stale := *got
	stale.Status = StatusRefunded
	if err := store.Update(ctx, &stale, StatusDisputed); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict for stale status, got %v", err)
	}

	ghost := *got
	ghost.ID = "esc_pgghost"
	if err := store.Update(ctx, &ghost, StatusPartiallyReleased); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresListByParty(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	for i, booking := range []string{"bkg_lp1", "bkg_lp2"} {
		tx := &Transaction{
			ID:                "esc_lp" + booking,
			BookingID:         booking,
			CustomerID:        "cus_list",
			VendorID:          "acct_other",
			AmountCents:       int64(1000 * (i + 1)),
			Currency:          "USD",
			VendorAmountCents: int64(1000 * (i + 1)),
			Status:            StatusHeld,
			CreatedAt:         now.Add(time.Duration(i) * time.Second),
			UpdatedAt:         now,
		}
		if err := store.Create(ctx, tx); err != nil {
			t.Fatalf("Create %s: %v", booking, err)
		}
	}

	list, err := store.ListByParty(ctx, "cus_list", 10)
	if err != nil {
		t.Fatalf("ListByParty: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(list))
	}

	none, err := store.ListByParty(ctx, "cus_absent", 10)
	if err != nil {
		t.Fatalf("ListByParty: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no transactions, got %d", len(none))
	}
}
