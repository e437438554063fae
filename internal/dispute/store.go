package dispute

import (
	"context"
	"time"
)

// Store persists dispute cases and their negotiation artifacts.
//
// UpdateCase takes the phase the caller loaded; implementations must apply
// the update only if the stored phase still matches and return ErrConflict
// otherwise. This is the optimistic guard every transition rides on.
type Store interface {
	CreateCase(ctx context.Context, c *Case) error
	GetCase(ctx context.Context, id string) (*Case, error)
	GetCaseByEscrow(ctx context.Context, escrowID string) (*Case, error)
	UpdateCase(ctx context.Context, c *Case, expectedPhase Phase) error
	ListByParty(ctx context.Context, partyID string, phase Phase, limit int) ([]*Case, error)

	// ListDeadlineElapsed returns non-terminal cases whose phase deadline
	// is at or before now.
	ListDeadlineElapsed(ctx context.Context, now time.Time, limit int) ([]*Case, error)

	// ListUnsettled returns resolved cases whose escrow settlement has not
	// completed yet.
	ListUnsettled(ctx context.Context, limit int) ([]*Case, error)

	// ListAwaitingDecision returns review-phase cases with no ruling issued.
	ListAwaitingDecision(ctx context.Context, limit int) ([]*Case, error)

	// ListDeadlineApproaching returns non-terminal cases whose deadline
	// falls inside (now, now+window] and that have not been warned yet.
	ListDeadlineApproaching(ctx context.Context, now time.Time, window time.Duration, limit int) ([]*Case, error)
	MarkDeadlineWarned(ctx context.Context, id string) error

	CreateOffer(ctx context.Context, o *Offer) error
	GetOffer(ctx context.Context, id string) (*Offer, error)
	UpdateOffer(ctx context.Context, o *Offer) error
	ListOffers(ctx context.Context, disputeID string) ([]*Offer, error)

	CreateOptions(ctx context.Context, opts []*Option) error
	ListOptions(ctx context.Context, disputeID string) ([]*Option, error)

	// SetOptionResponse writes one party's response to one option. Only the
	// acting party's column is touched, so two parties responding
	// concurrently never overwrite each other.
	SetOptionResponse(ctx context.Context, disputeID, label string, customer bool, resp Response) error

	CreateDecision(ctx context.Context, d *Decision) error
	GetDecision(ctx context.Context, disputeID string) (*Decision, error)

	// SetDecisionResponse writes a party's response to the ruling. The write
	// succeeds only if that party has not responded yet; a second write from
	// the same party returns ErrAlreadyResponded.
	SetDecisionResponse(ctx context.Context, disputeID string, customer bool, resp Response) error
}
