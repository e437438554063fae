package mediator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticProposalsPartitionAmount(t *testing.T) {
	for _, amount := range []int64{20000, 9999, 1, 3} {
		ev := Evidence{DisputeID: "dsp_x", AmountCents: amount, Currency: "USD"}
		proposals, err := NewStatic().ProposeOptions(context.Background(), ev)
		require.NoError(t, err)
		require.NoError(t, ValidateProposals(proposals, amount), "amount %d", amount)
	}
}

func TestStaticDecisionPartitionsAmount(t *testing.T) {
	ev := Evidence{DisputeID: "dsp_x", AmountCents: 9999, Currency: "USD"}
	d, err := NewStatic().IssueDecision(context.Background(), ev)
	require.NoError(t, err)
	require.NoError(t, ValidateDecision(d, 9999))
	// Odd cent goes to the customer.
	assert.Equal(t, int64(5000), d.CustomerAmount)
	assert.Equal(t, int64(4999), d.VendorAmount)
}

func TestValidateProposals(t *testing.T) {
	good := []Proposal{
		{Label: "A", CustomerAmount: 750, VendorAmount: 250},
		{Label: "B", CustomerAmount: 500, VendorAmount: 500},
		{Label: "C", CustomerAmount: 250, VendorAmount: 750},
	}
	assert.NoError(t, ValidateProposals(good, 1000))

	tests := []struct {
		name      string
		proposals []Proposal
	}{
		{"too few", good[:2]},
		{"bad label", []Proposal{
			{Label: "A", CustomerAmount: 750, VendorAmount: 250},
			{Label: "B", CustomerAmount: 500, VendorAmount: 500},
			{Label: "D", CustomerAmount: 250, VendorAmount: 750},
		}},
		{"duplicate label", []Proposal{
			{Label: "A", CustomerAmount: 750, VendorAmount: 250},
			{Label: "A", CustomerAmount: 500, VendorAmount: 500},
			{Label: "C", CustomerAmount: 250, VendorAmount: 750},
		}},
		{"split does not partition", []Proposal{
			{Label: "A", CustomerAmount: 750, VendorAmount: 250},
			{Label: "B", CustomerAmount: 500, VendorAmount: 400},
			{Label: "C", CustomerAmount: 250, VendorAmount: 750},
		}},
		{"negative share", []Proposal{
			{Label: "A", CustomerAmount: 1100, VendorAmount: -100},
			{Label: "B", CustomerAmount: 500, VendorAmount: 500},
			{Label: "C", CustomerAmount: 250, VendorAmount: 750},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProposals(tt.proposals, 1000)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestValidateDecision(t *testing.T) {
	assert.NoError(t, ValidateDecision(Decision{CustomerAmount: 600, VendorAmount: 400}, 1000))
	assert.ErrorIs(t, ValidateDecision(Decision{CustomerAmount: 600, VendorAmount: 500}, 1000), ErrMalformed)
	assert.ErrorIs(t, ValidateDecision(Decision{CustomerAmount: -1, VendorAmount: 1001}, 1000), ErrMalformed)
}
