// Package dispute implements the three-phase dispute resolution engine.
//
// A dispute moves through time-boxed phases: direct negotiation, then
// AI-proposed mediation options, then a binding AI review. Each phase can
// end early by party agreement; the background scheduler advances cases
// whose deadline lapsed. Phase order is monotonic and terminal states are
// final. All phase transitions are guarded by a compare-and-swap on the
// stored phase so that a party action racing a scheduler tick yields
// exactly one winner.
package dispute

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("dispute not found")
	ErrInvalidPhase    = errors.New("operation not allowed in current phase")
	ErrConflict        = errors.New("dispute was modified concurrently")
	ErrInvalidSplit    = errors.New("split does not partition the disputed amount")
	ErrNotParticipant  = errors.New("party is not a participant in this dispute")
	ErrAlreadyResolved = errors.New("dispute already resolved")
	ErrAlreadyResponded = errors.New("party already responded")
	ErrNoDecision      = errors.New("no binding decision has been issued")
	ErrOwnOffer        = errors.New("cannot accept own offer")
)

// Phase is a dispute lifecycle stage. Phases only move forward.
type Phase string

const (
	PhaseOpen          Phase = "open"
	PhaseInNegotiation Phase = "in_negotiation"
	PhaseAIMediation   Phase = "ai_mediation"
	PhaseAIReview      Phase = "ai_review"
	PhaseResolved      Phase = "resolved"
	PhaseExternal      Phase = "external"
)

// phaseRank orders phases for the monotonicity guard.
var phaseRank = map[Phase]int{
	PhaseOpen:          0,
	PhaseInNegotiation: 1,
	PhaseAIMediation:   2,
	PhaseAIReview:      3,
	PhaseResolved:      4,
	PhaseExternal:      4, // terminal peer of resolved, not reachable from it
}

// CanTransition reports whether from -> to is a legal forward move.
// Terminal phases admit no transitions.
func CanTransition(from, to Phase) bool {
	if from.Terminal() {
		return false
	}
	fr, ok1 := phaseRank[from]
	tr, ok2 := phaseRank[to]
	if !ok1 || !ok2 {
		return false
	}
	return tr > fr
}

// Terminal reports whether the phase is final.
func (p Phase) Terminal() bool {
	return p == PhaseResolved || p == PhaseExternal
}

// MediationState tracks whether the mediation round's options were produced.
type MediationState string

const (
	MediationNone    MediationState = ""
	MediationPending MediationState = "pending"
	MediationReady   MediationState = "ready"
	MediationFailed  MediationState = "failed"
)

// Outcome records what ended a dispute.
type Outcome string

const (
	OutcomeMutualAgreement   Outcome = "mutual_agreement"   // negotiation offer accepted
	OutcomeMediatedAgreement Outcome = "mediated_agreement" // both parties accepted the same option
	OutcomeBindingDecision   Outcome = "binding_decision"   // both parties accepted the ruling
	OutcomeExternal          Outcome = "external"           // escalated out of the platform
)

// Split is a division of the disputed amount between the two parties.
type Split struct {
	CustomerCents int64 `json:"customerCents"`
	VendorCents   int64 `json:"vendorCents"`
}

// Validate checks that the split partitions the disputed amount.
func (s Split) Validate(amountCents int64) error {
	if s.CustomerCents < 0 || s.VendorCents < 0 {
		return ErrInvalidSplit
	}
	if s.CustomerCents+s.VendorCents != amountCents {
		return ErrInvalidSplit
	}
	return nil
}

// Case is one dispute over an escrowed booking.
type Case struct {
	ID         string `json:"id"`
	EscrowID   string `json:"escrowId"`
	BookingID  string `json:"bookingId"`
	CustomerID string `json:"customerId"`
	VendorID   string `json:"vendorId"`
	OpenedBy   string `json:"openedBy"` // CustomerID or VendorID

	Reason      string `json:"reason"`
	AmountCents int64  `json:"amountCents"`
	Currency    string `json:"currency"`

	Phase          Phase      `json:"phase"`
	Deadline       *time.Time `json:"deadline,omitempty"` // current phase deadline, nil when terminal
	DeadlineWarned bool       `json:"-"`                  // deadline-approaching notice sent for current phase

	MediationState   MediationState `json:"mediationState,omitempty"`
	DecisionAttempts int            `json:"-"` // ruling request attempts, bounded

	Outcome         Outcome `json:"outcome,omitempty"`
	ResolvedSplit   *Split  `json:"resolvedSplit,omitempty"`
	SettlementOpID  string  `json:"-"` // idempotency key for escrow settlement
	Settled         bool    `json:"settled"`

	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// Participant reports whether partyID is one of the two dispute parties.
func (c *Case) Participant(partyID string) bool {
	return partyID == c.CustomerID || partyID == c.VendorID
}

// IsCustomer reports whether partyID is the customer side of the case.
func (c *Case) IsCustomer(partyID string) bool {
	return partyID == c.CustomerID
}

// CounterpartyOf returns the other party, or "" if partyID is not a participant.
func (c *Case) CounterpartyOf(partyID string) string {
	switch partyID {
	case c.CustomerID:
		return c.VendorID
	case c.VendorID:
		return c.CustomerID
	}
	return ""
}

// DeadlineElapsed reports whether the current phase deadline has passed.
func (c *Case) DeadlineElapsed(now time.Time) bool {
	return c.Deadline != nil && !now.Before(*c.Deadline)
}

// Offer is a settlement proposal made by one party during negotiation.
// Offers stay open for the counterparty to accept until the negotiation
// phase ends.
type Offer struct {
	ID        string     `json:"id"`
	DisputeID string     `json:"disputeId"`
	PartyID   string     `json:"partyId"`
	Split     Split      `json:"split"`
	Message   string     `json:"message,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	AcceptedAt *time.Time `json:"acceptedAt,omitempty"`
}

// Response is a party's stance on an option or ruling.
type Response string

const (
	ResponseNone     Response = ""
	ResponseAccepted Response = "accepted"
	ResponseRejected Response = "rejected"
)

// Option is one AI-proposed resolution during the mediation phase.
// Exactly three exist per mediated dispute, labeled A, B and C.
type Option struct {
	DisputeID        string    `json:"disputeId"`
	Label            string    `json:"label"`
	Split            Split     `json:"split"`
	Rationale        string    `json:"rationale"`
	CustomerResponse Response  `json:"customerResponse,omitempty"`
	VendorResponse   Response  `json:"vendorResponse,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// ResponseOf returns the named party's recorded response.
func (o *Option) ResponseOf(c *Case, partyID string) Response {
	if partyID == c.CustomerID {
		return o.CustomerResponse
	}
	return o.VendorResponse
}

// Decision is the single binding ruling issued during the review phase.
// It is immutable once issued; only the party responses change.
type Decision struct {
	DisputeID        string    `json:"disputeId"`
	Split            Split     `json:"split"`
	Rationale        string    `json:"rationale"`
	IssuedAt         time.Time `json:"issuedAt"`
	AcceptDeadline   time.Time `json:"acceptDeadline"`
	CustomerResponse Response  `json:"customerResponse,omitempty"`
	VendorResponse   Response  `json:"vendorResponse,omitempty"`
}
