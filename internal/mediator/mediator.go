// Package mediator consumes the AI mediation/arbitration capability.
//
// The capability is a pure function from dispute evidence to structured
// output: ProposeOptions returns exactly three resolution proposals,
// IssueDecision returns a single binding ruling. Both are invoked at most
// once per phase entry, plus bounded retries; internal model reasoning is
// opaque to this service.
package mediator

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable is returned when the capability failed or timed out.
	ErrUnavailable = errors.New("mediation capability unavailable")

	// ErrMalformed is returned when the capability answered but the output
	// did not validate (wrong option count, split not partitioning the amount).
	ErrMalformed = errors.New("mediation capability returned malformed output")
)

// OfferSummary is one negotiation offer included as evidence.
type OfferSummary struct {
	Party          string `json:"party"`
	CustomerAmount int64  `json:"customerAmount"`
	VendorAmount   int64  `json:"vendorAmount"`
	Message        string `json:"message,omitempty"`
}

// Evidence is the structured input handed to the capability.
type Evidence struct {
	DisputeID   string         `json:"disputeId"`
	BookingID   string         `json:"bookingId"`
	OpenedBy    string         `json:"openedBy"`
	Reason      string         `json:"reason"`
	AmountCents int64          `json:"amountCents"`
	Currency    string         `json:"currency"`
	Offers      []OfferSummary `json:"offers,omitempty"`
	// Options holds the mediation round's proposals when requesting a
	// binding decision, so the arbiter sees what both parties already saw.
	Options []Proposal `json:"options,omitempty"`
}

// Proposal is one AI-generated resolution proposal.
type Proposal struct {
	Label          string `json:"label"` // "A", "B", "C"
	CustomerAmount int64  `json:"customerAmount"`
	VendorAmount   int64  `json:"vendorAmount"`
	Rationale      string `json:"rationale"`
}

// Decision is the single binding ruling.
type Decision struct {
	CustomerAmount int64  `json:"customerAmount"`
	VendorAmount   int64  `json:"vendorAmount"`
	Rationale      string `json:"rationale"`
}

// Mediator is the AI capability consumed by the dispute engine.
type Mediator interface {
	ProposeOptions(ctx context.Context, ev Evidence) ([]Proposal, error)
	IssueDecision(ctx context.Context, ev Evidence) (Decision, error)
}

// ValidateProposals checks that the capability returned exactly three
// labeled proposals whose splits partition the disputed amount.
func ValidateProposals(proposals []Proposal, amountCents int64) error {
	if len(proposals) != 3 {
		return fmt.Errorf("%w: got %d proposals, want 3", ErrMalformed, len(proposals))
	}
	labels := map[string]bool{}
	for i, p := range proposals {
		if p.Label != "A" && p.Label != "B" && p.Label != "C" {
			return fmt.Errorf("%w: proposal %d has label %q", ErrMalformed, i, p.Label)
		}
		if labels[p.Label] {
			return fmt.Errorf("%w: duplicate label %q", ErrMalformed, p.Label)
		}
		labels[p.Label] = true
		if err := validateSplit(p.CustomerAmount, p.VendorAmount, amountCents); err != nil {
			return fmt.Errorf("%w: proposal %s: %v", ErrMalformed, p.Label, err)
		}
	}
	return nil
}

// ValidateDecision checks that the ruling's split partitions the disputed amount.
func ValidateDecision(d Decision, amountCents int64) error {
	if err := validateSplit(d.CustomerAmount, d.VendorAmount, amountCents); err != nil {
		return fmt.Errorf("%w: decision: %v", ErrMalformed, err)
	}
	return nil
}

func validateSplit(customer, vendor, total int64) error {
	if customer < 0 || vendor < 0 {
		return errors.New("negative share")
	}
	if customer+vendor != total {
		return fmt.Errorf("shares sum to %d, want %d", customer+vendor, total)
	}
	return nil
}

// Static is a deterministic mediator for demo mode and tests.
// Options are fixed fractions of the disputed amount; the decision splits
// the amount evenly (odd cent to the customer).
type Static struct{}

// NewStatic creates a deterministic mediator.
func NewStatic() *Static { return &Static{} }

func (s *Static) ProposeOptions(ctx context.Context, ev Evidence) ([]Proposal, error) {
	amt := ev.AmountCents
	threeQuarters := amt * 3 / 4
	quarter := amt / 4
	half := amt / 2
	return []Proposal{
		{Label: "A", CustomerAmount: threeQuarters, VendorAmount: amt - threeQuarters,
			Rationale: "Majority refund to the customer, retaining a service allowance for work performed."},
		{Label: "B", CustomerAmount: half, VendorAmount: amt - half,
			Rationale: "Even split reflecting shared responsibility for the disagreement."},
		{Label: "C", CustomerAmount: quarter, VendorAmount: amt - quarter,
			Rationale: "Majority payout to the vendor, with a goodwill refund to the customer."},
	}, nil
}

func (s *Static) IssueDecision(ctx context.Context, ev Evidence) (Decision, error) {
	half := ev.AmountCents / 2
	return Decision{
		CustomerAmount: ev.AmountCents - half,
		VendorAmount:   half,
		Rationale:      "Neither party substantiated full entitlement; the amount is divided evenly.",
	}, nil
}

// Compile-time assertion that Static implements Mediator.
var _ Mediator = (*Static)(nil)
