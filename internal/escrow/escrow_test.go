package escrow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servimarket/disputes/internal/payments"
)

func newTestService(t *testing.T) (*Service, *payments.Fake) {
	t.Helper()
	fake := payments.NewFake()
	// 10% platform commission
	return NewService(NewMemoryStore(), fake, 1000), fake
}

func createHold(t *testing.T, svc *Service, amount int64) *Transaction {
	t.Helper()
	tx, err := svc.CreateHold(context.Background(), CreateRequest{
		BookingID:  "bkg_test1",
		CustomerID: "cus_alice",
		VendorID:   "acct_bob",
		Amount:     amount,
		Currency:   "USD",
	})
	require.NoError(t, err)
	return tx
}

func TestCreateHold(t *testing.T) {
	svc, fake := newTestService(t)
	tx := createHold(t, svc, 20000)

	assert.Equal(t, StatusHeld, tx.Status)
	assert.Equal(t, int64(2000), tx.PlatformFeeCents)
	assert.Equal(t, int64(18000), tx.VendorAmountCents)
	assert.Equal(t, tx.AmountCents, tx.PlatformFeeCents+tx.VendorAmountCents)
	assert.NotEmpty(t, tx.PaymentRef)
	assert.Equal(t, 1, fake.OpCount("hold"))
}

func TestCreateHoldRejectsInvalid(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateHold(ctx, CreateRequest{
		BookingID: "bkg_x", CustomerID: "cus_a", VendorID: "acct_b",
		Amount: 0, Currency: "USD",
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.CreateHold(ctx, CreateRequest{
		BookingID: "bkg_x", CustomerID: "cus_a", VendorID: "cus_a",
		Amount: 100, Currency: "USD",
	})
	assert.Error(t, err)
}

func TestCreateHoldDuplicateBooking(t *testing.T) {
	svc, _ := newTestService(t)
	createHold(t, svc, 10000)

	_, err := svc.CreateHold(context.Background(), CreateRequest{
		BookingID:  "bkg_test1",
		CustomerID: "cus_alice",
		VendorID:   "acct_bob",
		Amount:     10000,
		Currency:   "USD",
	})
	assert.Error(t, err)
}

func TestMarkDisputed(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	tx := createHold(t, svc, 20000)

	got, err := svc.MarkDisputed(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDisputed, got.Status)

	// idempotent
	again, err := svc.MarkDisputed(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDisputed, again.Status)
}

func TestMarkDisputedRefusesSettled(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	tx := createHold(t, svc, 20000)

	_, err := svc.Release(ctx, tx.ID)
	require.NoError(t, err)

	_, err = svc.MarkDisputed(ctx, tx.ID)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestRelease(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()
	tx := createHold(t, svc, 20000)

	got, err := svc.Release(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReleased, got.Status)
	require.NotNil(t, got.SettledAt)

	ops := fake.Ops("release")
	require.Len(t, ops, 1)
	assert.Equal(t, int64(18000), ops[0].Amount)
	assert.Equal(t, "acct_bob", ops[0].Party)
}

func TestReleaseRefusesDisputed(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	tx := createHold(t, svc, 20000)

	_, err := svc.MarkDisputed(ctx, tx.ID)
	require.NoError(t, err)

	_, err = svc.Release(ctx, tx.ID)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestSettlePartial(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()
	tx := createHold(t, svc, 20000)
	_, err := svc.MarkDisputed(ctx, tx.ID)
	require.NoError(t, err)

	// customer 180.00, vendor 20.00
	got, err := svc.Settle(ctx, tx.ID, 18000, 2000, "settle_dsp_1")
	require.NoError(t, err)

	assert.Equal(t, StatusPartiallyReleased, got.Status)
	assert.Equal(t, int64(2000), got.VendorAmountCents)
	assert.Equal(t, int64(18000), got.PlatformFeeCents)
	assert.Equal(t, int64(18000), got.CustomerRefundCents)
	assert.Equal(t, got.AmountCents, got.PlatformFeeCents+got.VendorAmountCents)
	require.NotNil(t, got.SettledAt)

	assert.Equal(t, 1, fake.OpCount("refund"))
	assert.Equal(t, 1, fake.OpCount("release"))
}

func TestSettleFullVendor(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()
	tx := createHold(t, svc, 20000)
	_, err := svc.MarkDisputed(ctx, tx.ID)
	require.NoError(t, err)

	got, err := svc.Settle(ctx, tx.ID, 0, 20000, "settle_dsp_2")
	require.NoError(t, err)
	assert.Equal(t, StatusReleased, got.Status)
	assert.Equal(t, int64(0), got.PlatformFeeCents)
	assert.Equal(t, 0, fake.OpCount("refund"))
	assert.Equal(t, 1, fake.OpCount("release"))
}

func TestSettleFullCustomer(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()
	tx := createHold(t, svc, 20000)
	_, err := svc.MarkDisputed(ctx, tx.ID)
	require.NoError(t, err)

	got, err := svc.Settle(ctx, tx.ID, 20000, 0, "settle_dsp_3")
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, got.Status)
	assert.Equal(t, int64(20000), got.CustomerRefundCents)
	assert.Equal(t, 1, fake.OpCount("refund"))
	assert.Equal(t, 0, fake.OpCount("release"))
}

func TestSettleRejectsBadSplit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	tx := createHold(t, svc, 20000)
	_, err := svc.MarkDisputed(ctx, tx.ID)
	require.NoError(t, err)

	_, err = svc.Settle(ctx, tx.ID, 10000, 5000, "settle_dsp_4")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Settle(ctx, tx.ID, -100, 20100, "settle_dsp_5")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestSettleRequiresDisputed(t *testing.T) {
	svc, _ := newTestService(t)
	tx := createHold(t, svc, 20000)

	_, err := svc.Settle(context.Background(), tx.ID, 10000, 10000, "settle_dsp_6")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestSettleAlreadySettled(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	tx := createHold(t, svc, 20000)
	_, err := svc.MarkDisputed(ctx, tx.ID)
	require.NoError(t, err)

	_, err = svc.Settle(ctx, tx.ID, 18000, 2000, "settle_dsp_7")
	require.NoError(t, err)

	got, err := svc.Settle(ctx, tx.ID, 18000, 2000, "settle_dsp_7")
	require.ErrorIs(t, err, ErrAlreadySettled)
	assert.Equal(t, StatusPartiallyReleased, got.Status)
}

func TestSettleProcessorOutage(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()
	tx := createHold(t, svc, 20000)
	_, err := svc.MarkDisputed(ctx, tx.ID)
	require.NoError(t, err)

	fake.FailReleases = true
	_, err = svc.Settle(ctx, tx.ID, 18000, 2000, "settle_dsp_8")
	require.ErrorIs(t, err, payments.ErrUnavailable)

	// record unchanged, replay with the same op id succeeds
	cur, err := svc.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDisputed, cur.Status)

	fake.FailReleases = false
	got, err := svc.Settle(ctx, tx.ID, 18000, 2000, "settle_dsp_8")
	require.NoError(t, err)
	assert.Equal(t, StatusPartiallyReleased, got.Status)
	assert.Equal(t, 1, fake.OpCount("refund"))
	assert.Equal(t, 1, fake.OpCount("release"))
}

// hookStore injects a callback after Get, to force an interleaving with a
// second service instance sharing the store.
type hookStore struct {
	Store
	onGet func()
}

func (h *hookStore) Get(ctx context.Context, id string) (*Transaction, error) {
	tx, err := h.Store.Get(ctx, id)
	if f := h.onGet; f != nil {
		h.onGet = nil
		f()
	}
	return tx, err
}

// Two instances race on a held escrow: one releases, the other opens a
// dispute. The status guard in the store lets exactly one commit.
func TestMarkDisputedLosesToConcurrentRelease(t *testing.T) {
	fake := payments.NewFake()
	base := NewMemoryStore()
	releaser := NewService(base, fake, 1000)

	hs := &hookStore{Store: base}
	svc := NewService(hs, fake, 1000)

	tx, err := svc.CreateHold(context.Background(), CreateRequest{
		BookingID:  "bkg_race",
		CustomerID: "cus_alice",
		VendorID:   "acct_bob",
		Amount:     20000,
		Currency:   "USD",
	})
	require.NoError(t, err)

	hs.onGet = func() {
		_, err := releaser.Release(context.Background(), tx.ID)
		require.NoError(t, err)
	}

	_, err = svc.MarkDisputed(context.Background(), tx.ID)
	assert.ErrorIs(t, err, ErrConflict)

	cur, err := releaser.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReleased, cur.Status)
	assert.Equal(t, 1, fake.OpCount("release"))
}

func TestUpdateStatusGuard(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	tx := &Transaction{
		ID: "esc_guard", BookingID: "bkg_guard",
		CustomerID: "cus_alice", VendorID: "acct_bob",
		AmountCents: 10000, Currency: "USD",
		PlatformFeeCents: 1000, VendorAmountCents: 9000,
		Status: StatusHeld,
	}
	require.NoError(t, store.Create(ctx, tx))

	released := *tx
	released.Status = StatusReleased
	require.NoError(t, store.Update(ctx, &released, StatusHeld))

	disputed := *tx
	disputed.Status = StatusDisputed
	assert.ErrorIs(t, store.Update(ctx, &disputed, StatusHeld), ErrConflict)

	ghost := *tx
	ghost.ID = "esc_ghost"
	assert.ErrorIs(t, store.Update(ctx, &ghost, StatusHeld), ErrNotFound)
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusHeld, StatusReleased, true},
		{StatusHeld, StatusDisputed, true},
		{StatusHeld, StatusRefunded, true},
		{StatusHeld, StatusPartiallyReleased, false},
		{StatusDisputed, StatusReleased, true},
		{StatusDisputed, StatusPartiallyReleased, true},
		{StatusDisputed, StatusRefunded, true},
		{StatusDisputed, StatusHeld, false},
		{StatusReleased, StatusDisputed, false},
		{StatusRefunded, StatusDisputed, false},
		{StatusHeld, StatusHeld, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
