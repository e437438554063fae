package fees

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servimarket/disputes/internal/payments"
)

func newTestAssessor(t *testing.T) (*Assessor, *payments.Fake) {
	t.Helper()
	fake := payments.NewFake()
	return NewAssessor(NewMemoryStore(), fake, 1500, 4900), fake
}

func TestAssessOpenFee(t *testing.T) {
	a, fake := newTestAssessor(t)
	ctx := context.Background()

	charge, err := a.AssessOpenFee(ctx, "dsp_1", "cus_alice", "USD")
	require.NoError(t, err)
	assert.Equal(t, StatusCharged, charge.Status)
	assert.Equal(t, KindOpen, charge.Kind)
	assert.Equal(t, int64(1500), charge.AmountCents)
	assert.NotEmpty(t, charge.PaymentRef)
	assert.Equal(t, 1, fake.OpCount("fee"))
}

func TestAssessOpenFeeIdempotent(t *testing.T) {
	a, fake := newTestAssessor(t)
	ctx := context.Background()

	first, err := a.AssessOpenFee(ctx, "dsp_1", "cus_alice", "USD")
	require.NoError(t, err)

	second, err := a.AssessOpenFee(ctx, "dsp_1", "cus_alice", "USD")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, fake.OpCount("fee"))
}

func TestAssessEscalationFee(t *testing.T) {
	a, _ := newTestAssessor(t)
	ctx := context.Background()

	charge, err := a.AssessEscalationFee(ctx, "dsp_1", "acct_bob", "USD")
	require.NoError(t, err)
	assert.Equal(t, KindEscalation, charge.Kind)
	assert.Equal(t, int64(4900), charge.AmountCents)
	assert.Equal(t, StatusCharged, charge.Status)
}

func TestBothKindsCoexist(t *testing.T) {
	a, _ := newTestAssessor(t)
	ctx := context.Background()

	_, err := a.AssessOpenFee(ctx, "dsp_1", "cus_alice", "USD")
	require.NoError(t, err)
	_, err = a.AssessEscalationFee(ctx, "dsp_1", "acct_bob", "USD")
	require.NoError(t, err)

	charges, err := a.ListByDispute(ctx, "dsp_1")
	require.NoError(t, err)
	assert.Len(t, charges, 2)
}

func TestChargeFailureDoesNotBlock(t *testing.T) {
	a, fake := newTestAssessor(t)
	ctx := context.Background()
	fake.FailCharges = true

	charge, err := a.AssessOpenFee(ctx, "dsp_1", "cus_alice", "USD")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, charge.Status)
	assert.NotEmpty(t, charge.FailReason)
}

func TestRetryFailed(t *testing.T) {
	a, fake := newTestAssessor(t)
	ctx := context.Background()
	fake.FailCharges = true

	_, err := a.AssessOpenFee(ctx, "dsp_1", "cus_alice", "USD")
	require.NoError(t, err)

	fake.FailCharges = false
	n := a.RetryFailed(ctx, 10)
	assert.Equal(t, 1, n)

	charge, err := a.store.GetByDisputeAndKind(ctx, "dsp_1", KindOpen)
	require.NoError(t, err)
	assert.Equal(t, StatusCharged, charge.Status)
	assert.Empty(t, charge.FailReason)
}

func TestZeroFeeWaived(t *testing.T) {
	fake := payments.NewFake()
	a := NewAssessor(NewMemoryStore(), fake, 0, 4900)

	charge, err := a.AssessOpenFee(context.Background(), "dsp_1", "cus_alice", "USD")
	require.NoError(t, err)
	assert.Equal(t, StatusWaived, charge.Status)
	assert.Equal(t, 0, fake.OpCount("fee"))
}
