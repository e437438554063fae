// Package fees assesses dispute-handling fees against parties' saved
// payment methods.
//
// Fees are bookkeeping, not custody: a failed charge is recorded and
// retried out of band, and never blocks the dispute flow. At most one
// charge of each kind exists per dispute.
package fees

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/servimarket/disputes/internal/idgen"
	"github.com/servimarket/disputes/internal/logging"
	"github.com/servimarket/disputes/internal/metrics"
	"github.com/servimarket/disputes/internal/payments"
)

var (
	ErrNotFound = errors.New("fee charge not found")
)

// Kind identifies what a fee charge is for.
type Kind string

const (
	KindOpen       Kind = "open"       // charged to the opener when a dispute is filed
	KindEscalation Kind = "escalation" // charged when a dispute leaves the platform
)

// ChargeStatus is the lifecycle state of a fee charge.
type ChargeStatus string

const (
	StatusPending ChargeStatus = "pending"
	StatusCharged ChargeStatus = "charged"
	StatusWaived  ChargeStatus = "waived"
	StatusFailed  ChargeStatus = "failed"
)

// Charge is one fee assessment against a party.
type Charge struct {
	ID          string       `json:"id"`
	DisputeID   string       `json:"disputeId"`
	PartyID     string       `json:"partyId"`
	Kind        Kind         `json:"kind"`
	AmountCents int64        `json:"amountCents"`
	Currency    string       `json:"currency"`
	Status      ChargeStatus `json:"status"`
	PaymentRef  string       `json:"paymentRef,omitempty"`
	FailReason  string       `json:"failReason,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Store persists fee charges. GetByDisputeAndKind enforces the
// one-charge-per-kind rule.
type Store interface {
	Create(ctx context.Context, c *Charge) error
	Get(ctx context.Context, id string) (*Charge, error)
	Update(ctx context.Context, c *Charge) error
	GetByDisputeAndKind(ctx context.Context, disputeID string, kind Kind) (*Charge, error)
	ListByDispute(ctx context.Context, disputeID string) ([]*Charge, error)
	ListFailed(ctx context.Context, limit int) ([]*Charge, error)
}

// Assessor creates and charges dispute fees.
type Assessor struct {
	store     Store
	processor payments.Processor

	openCents       int64
	escalationCents int64
}

// NewAssessor creates a fee assessor. Zero fee amounts are recorded as waived.
func NewAssessor(store Store, processor payments.Processor, openCents, escalationCents int64) *Assessor {
	return &Assessor{
		store:           store,
		processor:       processor,
		openCents:       openCents,
		escalationCents: escalationCents,
	}
}

// AssessOpenFee charges the dispute-opening fee to the opener.
// Idempotent: a second call for the same dispute returns the existing charge.
func (a *Assessor) AssessOpenFee(ctx context.Context, disputeID, partyID, currency string) (*Charge, error) {
	return a.assess(ctx, disputeID, partyID, currency, KindOpen, a.openCents)
}

// AssessEscalationFee charges the external-escalation fee to the party who
// caused the escalation.
func (a *Assessor) AssessEscalationFee(ctx context.Context, disputeID, partyID, currency string) (*Charge, error) {
	return a.assess(ctx, disputeID, partyID, currency, KindEscalation, a.escalationCents)
}

func (a *Assessor) assess(ctx context.Context, disputeID, partyID, currency string, kind Kind, amountCents int64) (*Charge, error) {
	if existing, err := a.store.GetByDisputeAndKind(ctx, disputeID, kind); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	charge := &Charge{
		ID:          idgen.WithPrefix("fee_"),
		DisputeID:   disputeID,
		PartyID:     partyID,
		Kind:        kind,
		AmountCents: amountCents,
		Currency:    currency,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if amountCents == 0 {
		charge.Status = StatusWaived
	}
	if err := a.store.Create(ctx, charge); err != nil {
		return nil, fmt.Errorf("create fee charge: %w", err)
	}
	if charge.Status == StatusWaived {
		metrics.FeeChargesTotal.WithLabelValues(string(kind), string(StatusWaived)).Inc()
		return charge, nil
	}

	a.attempt(ctx, charge)
	return charge, nil
}

// attempt charges the fee and records the outcome. A failure is logged and
// stored as failed; callers never see it as an error.
func (a *Assessor) attempt(ctx context.Context, charge *Charge) {
	opID := fmt.Sprintf("fee_%s_%s", charge.DisputeID, charge.Kind)
	ref, err := a.processor.ChargeSavedMethod(ctx, opID, charge.PartyID, charge.AmountCents, charge.Currency)
	if err != nil {
		charge.Status = StatusFailed
		charge.FailReason = err.Error()
		charge.UpdatedAt = time.Now()
		if updErr := a.store.Update(ctx, charge); updErr != nil {
			logging.FromContext(ctx).Error("failed to record fee charge failure",
				"charge_id", charge.ID, "error", updErr)
		}
		logging.FromContext(ctx).Warn("fee charge failed",
			"charge_id", charge.ID, "dispute_id", charge.DisputeID,
			"kind", charge.Kind, "error", err)
		metrics.FeeChargesTotal.WithLabelValues(string(charge.Kind), string(StatusFailed)).Inc()
		return
	}

	charge.Status = StatusCharged
	charge.PaymentRef = ref
	charge.FailReason = ""
	charge.UpdatedAt = time.Now()
	if err := a.store.Update(ctx, charge); err != nil {
		logging.FromContext(ctx).Error("failed to record fee charge",
			"charge_id", charge.ID, "error", err)
		return
	}
	metrics.FeeChargesTotal.WithLabelValues(string(charge.Kind), string(StatusCharged)).Inc()
}

// RetryFailed re-attempts failed charges, newest first. Called by the
// background scheduler.
func (a *Assessor) RetryFailed(ctx context.Context, limit int) int {
	charges, err := a.store.ListFailed(ctx, limit)
	if err != nil {
		logging.FromContext(ctx).Error("failed to list failed fee charges", "error", err)
		return 0
	}

	retried := 0
	for _, charge := range charges {
		a.attempt(ctx, charge)
		if charge.Status == StatusCharged {
			retried++
		}
	}
	return retried
}

// ListByDispute returns all charges for a dispute.
func (a *Assessor) ListByDispute(ctx context.Context, disputeID string) ([]*Charge, error) {
	return a.store.ListByDispute(ctx, disputeID)
}
