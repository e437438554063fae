package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/servimarket/disputes/internal/escrow"
	"github.com/servimarket/disputes/internal/fees"
	"github.com/servimarket/disputes/internal/idgen"
	"github.com/servimarket/disputes/internal/logging"
	"github.com/servimarket/disputes/internal/mediator"
	"github.com/servimarket/disputes/internal/metrics"
	"github.com/servimarket/disputes/internal/retry"
	"github.com/servimarket/disputes/internal/traces"
)

// maxDecisionAttempts bounds ruling requests per case across retries.
const maxDecisionAttempts = 3

// Notifier receives dispute lifecycle events. Implementations must not block.
type Notifier interface {
	DisputeOpened(ctx context.Context, c *Case)
	PhaseChanged(ctx context.Context, c *Case, from Phase, trigger string)
	DeadlineApproaching(ctx context.Context, c *Case)
	Resolved(ctx context.Context, c *Case)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) DisputeOpened(context.Context, *Case)                {}
func (NopNotifier) PhaseChanged(context.Context, *Case, Phase, string) {}
func (NopNotifier) DeadlineApproaching(context.Context, *Case)         {}
func (NopNotifier) Resolved(context.Context, *Case)                    {}

// Windows holds the per-phase durations.
type Windows struct {
	Negotiation time.Duration
	Mediation   time.Duration
	Review      time.Duration
}

// DefaultWindows are the production phase durations.
func DefaultWindows() Windows {
	return Windows{
		Negotiation: 48 * time.Hour,
		Mediation:   48 * time.Hour,
		Review:      24 * time.Hour,
	}
}

// Service implements the dispute state machine.
type Service struct {
	store    Store
	escrows  *escrow.Service
	fees     *fees.Assessor
	med      mediator.Mediator
	notifier Notifier
	windows  Windows
}

// NewService creates a dispute service.
func NewService(store Store, escrows *escrow.Service, assessor *fees.Assessor, med mediator.Mediator, notifier Notifier, windows Windows) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		store:    store,
		escrows:  escrows,
		fees:     assessor,
		med:      med,
		notifier: notifier,
		windows:  windows,
	}
}

// OpenRequest contains the parameters for filing a dispute.
type OpenRequest struct {
	EscrowID string `json:"escrowId" binding:"required"`
	OpenedBy string `json:"-"` // from X-Party-ID
	Reason   string `json:"reason" binding:"required"`
}

// Open files a dispute against an escrowed booking: freezes the escrow,
// charges the opening fee, and enters the negotiation phase.
func (s *Service) Open(ctx context.Context, req OpenRequest) (*Case, error) {
	ctx, span := traces.StartSpan(ctx, "dispute.Open", traces.EscrowID(req.EscrowID))
	defer span.End()

	esc, err := s.escrows.Get(ctx, req.EscrowID)
	if err != nil {
		return nil, err
	}
	if req.OpenedBy != esc.CustomerID && req.OpenedBy != esc.VendorID {
		return nil, ErrNotParticipant
	}
	if existing, err := s.store.GetCaseByEscrow(ctx, req.EscrowID); err == nil {
		return nil, fmt.Errorf("escrow %s already has dispute %s: %w", req.EscrowID, existing.ID, ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// Freezing the escrow first means a racing normal release loses.
	if _, err := s.escrows.MarkDisputed(ctx, req.EscrowID); err != nil {
		return nil, err
	}

	// Filing is instantaneous: the case is born in negotiation with its
	// deadline set, in a single write. There is no intermediate open state
	// that a crash could strand.
	now := time.Now()
	c := &Case{
		ID:          idgen.WithPrefix("dsp_"),
		EscrowID:    esc.ID,
		BookingID:   esc.BookingID,
		CustomerID:  esc.CustomerID,
		VendorID:    esc.VendorID,
		OpenedBy:    req.OpenedBy,
		Reason:      req.Reason,
		AmountCents: esc.AmountCents,
		Currency:    esc.Currency,
		Phase:       PhaseInNegotiation,
		Deadline:    s.deadlineFor(PhaseInNegotiation, now),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateCase(ctx, c); err != nil {
		return nil, fmt.Errorf("create dispute: %w", err)
	}
	metrics.PhaseTransitionsTotal.WithLabelValues(string(PhaseInNegotiation), "party").Inc()

	// The opening fee is bookkeeping; a declined card never blocks the filing.
	if _, err := s.fees.AssessOpenFee(ctx, c.ID, c.OpenedBy, c.Currency); err != nil {
		logging.FromContext(ctx).Error("open fee assessment failed", logging.DisputeID(c.ID), "error", err)
	}

	metrics.DisputesOpenedTotal.Inc()
	metrics.OpenDisputes.Inc()
	s.notifier.DisputeOpened(ctx, c)
	logging.FromContext(ctx).Info("dispute opened",
		logging.DisputeID(c.ID), logging.EscrowID(c.EscrowID), "opened_by", c.OpenedBy)
	return c, nil
}

// deadlineFor returns the deadline for entering a phase, or nil for phases
// without a window.
func (s *Service) deadlineFor(p Phase, from time.Time) *time.Time {
	var d time.Duration
	switch p {
	case PhaseInNegotiation:
		d = s.windows.Negotiation
	case PhaseAIMediation:
		d = s.windows.Mediation
	case PhaseAIReview:
		d = s.windows.Review
	default:
		return nil
	}
	t := from.Add(d)
	return &t
}

// transition moves a case forward under the optimistic phase guard.
// mutate, if non-nil, is applied to the case before persisting.
func (s *Service) transition(ctx context.Context, c *Case, to Phase, trigger string, mutate func(*Case)) error {
	from := c.Phase
	if from.Terminal() {
		return ErrAlreadyResolved
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidPhase, from, to)
	}

	now := time.Now()
	c.Phase = to
	c.Deadline = s.deadlineFor(to, now)
	c.DeadlineWarned = false
	c.UpdatedAt = now
	if mutate != nil {
		mutate(c)
	}

	if err := s.store.UpdateCase(ctx, c, from); err != nil {
		if errors.Is(err, ErrConflict) {
			metrics.TransitionConflictsTotal.Inc()
		}
		return err
	}

	metrics.PhaseTransitionsTotal.WithLabelValues(string(to), trigger).Inc()
	s.notifier.PhaseChanged(ctx, c, from, trigger)
	logging.FromContext(ctx).Info("dispute phase changed",
		logging.DisputeID(c.ID), "from", from, "to", to, "trigger", trigger)
	return nil
}

// ProposeOffer records a settlement offer during negotiation.
func (s *Service) ProposeOffer(ctx context.Context, disputeID, partyID string, split Split, message string) (*Offer, error) {
	c, err := s.load(ctx, disputeID, partyID)
	if err != nil {
		return nil, err
	}
	if c.Phase != PhaseInNegotiation {
		if c.Phase.Terminal() {
			return nil, ErrAlreadyResolved
		}
		return nil, fmt.Errorf("%w: offers require %s, dispute is %s", ErrInvalidPhase, PhaseInNegotiation, c.Phase)
	}
	if err := split.Validate(c.AmountCents); err != nil {
		return nil, fmt.Errorf("%w: %d + %d != %d", ErrInvalidSplit, split.CustomerCents, split.VendorCents, c.AmountCents)
	}

	o := &Offer{
		ID:        idgen.WithPrefix("off_"),
		DisputeID: c.ID,
		PartyID:   partyID,
		Split:     split,
		Message:   message,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateOffer(ctx, o); err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	logging.FromContext(ctx).Info("offer proposed",
		logging.DisputeID(c.ID), "offer_id", o.ID, logging.Party(partyID))
	return o, nil
}

// AcceptOffer accepts the counterparty's outstanding offer, resolving the
// dispute by mutual agreement.
func (s *Service) AcceptOffer(ctx context.Context, disputeID, offerID, partyID string) (*Case, error) {
	c, err := s.load(ctx, disputeID, partyID)
	if err != nil {
		return nil, err
	}
	if c.Phase != PhaseInNegotiation {
		if c.Phase.Terminal() {
			return nil, ErrAlreadyResolved
		}
		return nil, fmt.Errorf("%w: acceptance requires %s, dispute is %s", ErrInvalidPhase, PhaseInNegotiation, c.Phase)
	}

	o, err := s.store.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if o.DisputeID != c.ID {
		return nil, ErrNotFound
	}
	if o.PartyID == partyID {
		return nil, ErrOwnOffer
	}

	if err := s.resolve(ctx, c, o.Split, OutcomeMutualAgreement, "party"); err != nil {
		return nil, err
	}

	now := time.Now()
	o.AcceptedAt = &now
	if err := s.store.UpdateOffer(ctx, o); err != nil {
		logging.FromContext(ctx).Error("failed to mark offer accepted",
			"offer_id", o.ID, "error", err)
	}
	return c, nil
}

// RespondToOption records a party's response to a mediation option. A later
// response from the same party overwrites the earlier one; accepting one
// option withdraws the party's acceptance of the others. When both parties
// have accepted the same option the dispute resolves on its split.
func (s *Service) RespondToOption(ctx context.Context, disputeID, label, partyID string, accept bool) (*Case, error) {
	c, err := s.load(ctx, disputeID, partyID)
	if err != nil {
		return nil, err
	}
	if c.Phase != PhaseAIMediation {
		if c.Phase.Terminal() {
			return nil, ErrAlreadyResolved
		}
		return nil, fmt.Errorf("%w: option responses require %s, dispute is %s", ErrInvalidPhase, PhaseAIMediation, c.Phase)
	}
	if c.MediationState != MediationReady {
		return nil, fmt.Errorf("%w: mediation options are not ready", ErrInvalidPhase)
	}

	opts, err := s.store.ListOptions(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	var chosen *Option
	for _, o := range opts {
		if o.Label == label {
			chosen = o
			break
		}
	}
	if chosen == nil {
		return nil, fmt.Errorf("%w: no option %q", ErrNotFound, label)
	}

	resp := ResponseRejected
	if accept {
		resp = ResponseAccepted
	}
	asCustomer := c.IsCustomer(partyID)
	if accept {
		// a party accepts at most one option
		for _, o := range opts {
			if o.Label != label && o.ResponseOf(c, partyID) == ResponseAccepted {
				if err := s.store.SetOptionResponse(ctx, c.ID, o.Label, asCustomer, ResponseNone); err != nil {
					return nil, fmt.Errorf("withdraw option response: %w", err)
				}
			}
		}
	}
	if err := s.store.SetOptionResponse(ctx, c.ID, label, asCustomer, resp); err != nil {
		return nil, fmt.Errorf("record option response: %w", err)
	}

	logging.FromContext(ctx).Info("option response recorded",
		logging.DisputeID(c.ID), "label", label, logging.Party(partyID), "response", resp)

	// The dual-acceptance check runs on a fresh read, so a response the
	// counterparty recorded in the meantime is never missed.
	opts, err = s.store.ListOptions(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	chosen = nil
	for _, o := range opts {
		if o.Label == label {
			chosen = o
			break
		}
	}
	if chosen != nil && chosen.CustomerResponse == ResponseAccepted && chosen.VendorResponse == ResponseAccepted {
		if err := s.resolve(ctx, c, chosen.Split, OutcomeMediatedAgreement, "party"); err != nil {
			// The counterparty's response may have resolved the case first.
			if errors.Is(err, ErrConflict) || errors.Is(err, ErrAlreadyResolved) {
				return s.store.GetCase(ctx, c.ID)
			}
			return nil, err
		}
	}
	return c, nil
}

// RespondToDecision records a party's response to the binding ruling.
// Each party responds at most once. A rejection escalates the dispute out
// of the platform and charges the rejecting party the escalation fee; two
// acceptances resolve on the ruling's split.
func (s *Service) RespondToDecision(ctx context.Context, disputeID, partyID string, accept bool) (*Case, error) {
	c, err := s.load(ctx, disputeID, partyID)
	if err != nil {
		return nil, err
	}
	if c.Phase != PhaseAIReview {
		if c.Phase.Terminal() {
			return nil, ErrAlreadyResolved
		}
		return nil, fmt.Errorf("%w: ruling responses require %s, dispute is %s", ErrInvalidPhase, PhaseAIReview, c.Phase)
	}

	d, err := s.store.GetDecision(ctx, c.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNoDecision
		}
		return nil, err
	}
	if !time.Now().Before(d.AcceptDeadline) {
		return nil, fmt.Errorf("%w: response window has closed", ErrInvalidPhase)
	}

	resp := ResponseRejected
	if accept {
		resp = ResponseAccepted
	}
	// The store enforces one response per party; only the acting party's
	// column is written, so the counterparty's response survives a race.
	if err := s.store.SetDecisionResponse(ctx, c.ID, c.IsCustomer(partyID), resp); err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("ruling response recorded",
		logging.DisputeID(c.ID), logging.Party(partyID), "accepted", accept)

	if !accept {
		if err := s.escalate(ctx, c, partyID, "party"); err != nil {
			// A concurrent rejection escalated the case first.
			if errors.Is(err, ErrConflict) || errors.Is(err, ErrAlreadyResolved) {
				return s.store.GetCase(ctx, c.ID)
			}
			return nil, err
		}
		return c, nil
	}

	// Re-read before the dual-acceptance check; the counterparty may have
	// accepted concurrently.
	d, err = s.store.GetDecision(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if d.CustomerResponse == ResponseAccepted && d.VendorResponse == ResponseAccepted {
		if err := s.resolve(ctx, c, d.Split, OutcomeBindingDecision, "party"); err != nil {
			if errors.Is(err, ErrConflict) || errors.Is(err, ErrAlreadyResolved) {
				return s.store.GetCase(ctx, c.ID)
			}
			return nil, err
		}
	}
	return c, nil
}

// resolve ends a dispute on a split and settles the escrow. The settlement
// operation id is recorded before the first settlement attempt so a retry
// after a crash replays the same processor operations.
func (s *Service) resolve(ctx context.Context, c *Case, split Split, outcome Outcome, trigger string) error {
	ctx, span := traces.StartSpan(ctx, "dispute.resolve",
		traces.DisputeID(c.ID), traces.Phase(string(c.Phase)))
	defer span.End()

	if err := split.Validate(c.AmountCents); err != nil {
		return err
	}

	opened := c.CreatedAt
	err := s.transition(ctx, c, PhaseResolved, trigger, func(c *Case) {
		now := time.Now()
		sp := split
		c.Outcome = outcome
		c.ResolvedSplit = &sp
		c.SettlementOpID = "settle_" + c.ID
		c.Settled = false
		c.ResolvedAt = &now
	})
	if err != nil {
		return err
	}

	metrics.DisputesResolvedTotal.WithLabelValues(string(outcome)).Inc()
	metrics.DisputeDuration.Observe(time.Since(opened).Seconds())
	metrics.OpenDisputes.Dec()
	s.notifier.Resolved(ctx, c)
	logging.FromContext(ctx).Info("dispute resolved",
		logging.DisputeID(c.ID), "outcome", outcome,
		"customer_cents", split.CustomerCents, "vendor_cents", split.VendorCents)

	s.settle(ctx, c)
	return nil
}

// settle applies the resolved split to the escrow. Failures are logged and
// retried by the scheduler; the case stays resolved with Settled=false.
func (s *Service) settle(ctx context.Context, c *Case) {
	if c.Phase != PhaseResolved || c.ResolvedSplit == nil || c.Settled {
		return
	}

	_, err := s.escrows.Settle(ctx, c.EscrowID,
		c.ResolvedSplit.CustomerCents, c.ResolvedSplit.VendorCents, c.SettlementOpID)
	if err != nil && !errors.Is(err, escrow.ErrAlreadySettled) {
		metrics.SettlementsTotal.WithLabelValues("error").Inc()
		logging.FromContext(ctx).Error("escrow settlement failed, will retry",
			logging.DisputeID(c.ID), logging.EscrowID(c.EscrowID), "error", err)
		return
	}

	c.Settled = true
	c.UpdatedAt = time.Now()
	if err := s.store.UpdateCase(ctx, c, PhaseResolved); err != nil {
		logging.FromContext(ctx).Error("failed to mark dispute settled",
			logging.DisputeID(c.ID), "error", err)
		return
	}
	metrics.SettlementsTotal.WithLabelValues("ok").Inc()
}

// escalate ends a dispute unresolved: the case leaves the platform and the
// escrow stays frozen pending the external outcome. feeParty is charged the
// escalation fee.
func (s *Service) escalate(ctx context.Context, c *Case, feeParty, trigger string) error {
	ctx, span := traces.StartSpan(ctx, "dispute.escalate",
		traces.DisputeID(c.ID), traces.Party(feeParty))
	defer span.End()

	err := s.transition(ctx, c, PhaseExternal, trigger, func(c *Case) {
		now := time.Now()
		c.Outcome = OutcomeExternal
		c.ResolvedAt = &now
	})
	if err != nil {
		return err
	}

	if _, err := s.fees.AssessEscalationFee(ctx, c.ID, feeParty, c.Currency); err != nil {
		logging.FromContext(ctx).Error("escalation fee assessment failed",
			logging.DisputeID(c.ID), "error", err)
	}

	metrics.DisputesResolvedTotal.WithLabelValues(string(OutcomeExternal)).Inc()
	metrics.OpenDisputes.Dec()
	s.notifier.Resolved(ctx, c)
	logging.FromContext(ctx).Info("dispute escalated externally",
		logging.DisputeID(c.ID), "fee_party", feeParty, "trigger", trigger)
	return nil
}

// startMediation enters the mediation phase and requests the option set.
// If the capability fails after a retry the mediation round is skipped and
// the case falls through to the review phase.
func (s *Service) startMediation(ctx context.Context, c *Case, trigger string) error {
	err := s.transition(ctx, c, PhaseAIMediation, trigger, func(c *Case) {
		c.MediationState = MediationPending
	})
	if err != nil {
		return err
	}

	ev, err := s.evidence(ctx, c, false)
	if err != nil {
		return err
	}

	var proposals []mediator.Proposal
	err = retry.Do(ctx, 2, 500*time.Millisecond, func() error {
		var perr error
		proposals, perr = s.med.ProposeOptions(ctx, ev)
		if errors.Is(perr, mediator.ErrMalformed) {
			return retry.Permanent(perr)
		}
		return perr
	})
	if err != nil {
		metrics.MediatorCallsTotal.WithLabelValues("propose_options", "error").Inc()
		logging.FromContext(ctx).Warn("mediation unavailable, skipping to review",
			logging.DisputeID(c.ID), "error", err)
		c.MediationState = MediationFailed
		return s.startReview(ctx, c, "fallback")
	}
	metrics.MediatorCallsTotal.WithLabelValues("propose_options", "ok").Inc()

	now := time.Now()
	opts := make([]*Option, 0, len(proposals))
	for _, p := range proposals {
		opts = append(opts, &Option{
			DisputeID: c.ID,
			Label:     p.Label,
			Split:     Split{CustomerCents: p.CustomerAmount, VendorCents: p.VendorAmount},
			Rationale: p.Rationale,
			CreatedAt: now,
		})
	}
	if err := s.store.CreateOptions(ctx, opts); err != nil {
		return fmt.Errorf("store options: %w", err)
	}

	c.MediationState = MediationReady
	c.UpdatedAt = time.Now()
	if err := s.store.UpdateCase(ctx, c, PhaseAIMediation); err != nil {
		return err
	}
	logging.FromContext(ctx).Info("mediation options ready", logging.DisputeID(c.ID))
	return nil
}

// startReview enters the review phase and requests the binding ruling.
func (s *Service) startReview(ctx context.Context, c *Case, trigger string) error {
	if err := s.transition(ctx, c, PhaseAIReview, trigger, nil); err != nil {
		return err
	}
	s.requestDecision(ctx, c)
	return nil
}

// requestDecision asks the capability for the binding ruling. Failures are
// retried by the scheduler up to maxDecisionAttempts.
func (s *Service) requestDecision(ctx context.Context, c *Case) {
	if c.Phase != PhaseAIReview || c.Deadline == nil {
		return
	}

	c.DecisionAttempts++
	c.UpdatedAt = time.Now()
	if err := s.store.UpdateCase(ctx, c, PhaseAIReview); err != nil {
		logging.FromContext(ctx).Error("failed to record ruling attempt",
			logging.DisputeID(c.ID), "error", err)
		return
	}

	ev, err := s.evidence(ctx, c, true)
	if err != nil {
		logging.FromContext(ctx).Error("failed to assemble evidence",
			logging.DisputeID(c.ID), "error", err)
		return
	}

	d, err := s.med.IssueDecision(ctx, ev)
	if err != nil {
		metrics.MediatorCallsTotal.WithLabelValues("issue_decision", "error").Inc()
		logging.FromContext(ctx).Warn("ruling request failed",
			logging.DisputeID(c.ID), "attempt", c.DecisionAttempts, "error", err)
		return
	}
	metrics.MediatorCallsTotal.WithLabelValues("issue_decision", "ok").Inc()

	dec := &Decision{
		DisputeID:      c.ID,
		Split:          Split{CustomerCents: d.CustomerAmount, VendorCents: d.VendorAmount},
		Rationale:      d.Rationale,
		IssuedAt:       time.Now(),
		AcceptDeadline: *c.Deadline,
	}
	if err := s.store.CreateDecision(ctx, dec); err != nil {
		logging.FromContext(ctx).Error("failed to store ruling",
			logging.DisputeID(c.ID), "error", err)
		return
	}
	logging.FromContext(ctx).Info("binding ruling issued",
		logging.DisputeID(c.ID),
		"customer_cents", dec.Split.CustomerCents, "vendor_cents", dec.Split.VendorCents)
}

// evidence assembles the capability input from the case record.
func (s *Service) evidence(ctx context.Context, c *Case, includeOptions bool) (mediator.Evidence, error) {
	offers, err := s.store.ListOffers(ctx, c.ID)
	if err != nil {
		return mediator.Evidence{}, err
	}

	ev := mediator.Evidence{
		DisputeID:   c.ID,
		BookingID:   c.BookingID,
		OpenedBy:    c.OpenedBy,
		Reason:      c.Reason,
		AmountCents: c.AmountCents,
		Currency:    c.Currency,
	}
	for _, o := range offers {
		ev.Offers = append(ev.Offers, mediator.OfferSummary{
			Party:          o.PartyID,
			CustomerAmount: o.Split.CustomerCents,
			VendorAmount:   o.Split.VendorCents,
			Message:        o.Message,
		})
	}
	if includeOptions {
		opts, err := s.store.ListOptions(ctx, c.ID)
		if err != nil {
			return mediator.Evidence{}, err
		}
		for _, o := range opts {
			ev.Options = append(ev.Options, mediator.Proposal{
				Label:          o.Label,
				CustomerAmount: o.Split.CustomerCents,
				VendorAmount:   o.Split.VendorCents,
				Rationale:      o.Rationale,
			})
		}
	}
	return ev, nil
}

// load fetches a case and verifies the acting party is a participant.
func (s *Service) load(ctx context.Context, disputeID, partyID string) (*Case, error) {
	c, err := s.store.GetCase(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !c.Participant(partyID) {
		return nil, ErrNotParticipant
	}
	return c, nil
}

// Detail is a case with its negotiation artifacts, for the read API.
type Detail struct {
	Case     *Case     `json:"dispute"`
	Offers   []*Offer  `json:"offers"`
	Options  []*Option `json:"options,omitempty"`
	Decision *Decision `json:"decision,omitempty"`
}

// Get returns a case with offers, options and ruling. partyID must be a
// participant.
func (s *Service) Get(ctx context.Context, disputeID, partyID string) (*Detail, error) {
	c, err := s.load(ctx, disputeID, partyID)
	if err != nil {
		return nil, err
	}
	offers, err := s.store.ListOffers(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	opts, err := s.store.ListOptions(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	d, err := s.store.GetDecision(ctx, c.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return &Detail{Case: c, Offers: offers, Options: opts, Decision: d}, nil
}

// ListByParty returns a party's disputes, optionally filtered by phase.
func (s *Service) ListByParty(ctx context.Context, partyID string, phase Phase, limit int) ([]*Case, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByParty(ctx, partyID, phase, limit)
}
