//go:build integration

package dispute

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/servimarket/disputes/internal/escrow"
	"github.com/servimarket/disputes/internal/testutil"
)

// seedEscrow satisfies the foreign key from disputes to escrow_transactions.
func seedEscrow(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	err := escrow.NewPostgresStore(db).Create(context.Background(), &escrow.Transaction{
		ID:                id,
		BookingID:         "bkg_" + id,
		CustomerID:        "cus_pg",
		VendorID:          "acct_pg",
		AmountCents:       20000,
		Currency:          "USD",
		PlatformFeeCents:  2000,
		VendorAmountCents: 18000,
		Status:            escrow.StatusDisputed,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	if err != nil {
		t.Fatalf("seed escrow: %v", err)
	}
}

func pgCase(escrowID string, now time.Time) *Case {
	deadline := now.Add(48 * time.Hour)
	return &Case{
		ID:          "dsp_" + escrowID,
		EscrowID:    escrowID,
		BookingID:   "bkg_" + escrowID,
		CustomerID:  "cus_pg",
		VendorID:    "acct_pg",
		OpenedBy:    "cus_pg",
		Reason:      "service not delivered",
		AmountCents: 20000,
		Currency:    "USD",
		Phase:       PhaseInNegotiation,
		Deadline:    &deadline,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestPostgresCaseRoundtrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	seedEscrow(t, db, "esc_rt")
	c := pgCase("esc_rt", now)
	if err := store.CreateCase(ctx, c); err != nil {
		t.Fatalf("CreateCase: %v", err)
	}

	got, err := store.GetCase(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCase: %v", err)
	}
	if got.Phase != PhaseInNegotiation || got.Reason != c.Reason || got.AmountCents != 20000 {
		t.Errorf("roundtrip mismatch: %+v", got)
	}
	if got.Deadline == nil || !got.Deadline.Equal(*c.Deadline) {
		t.Errorf("Deadline = %v, want %v", got.Deadline, c.Deadline)
	}
	if got.ResolvedSplit != nil || got.ResolvedAt != nil {
		t.Errorf("unresolved case has resolution fields set: %+v", got)
	}

	byEscrow, err := store.GetCaseByEscrow(ctx, "esc_rt")
	if err != nil {
		t.Fatalf("GetCaseByEscrow: %v", err)
	}
	if byEscrow.ID != c.ID {
		t.Errorf("GetCaseByEscrow returned %s, want %s", byEscrow.ID, c.ID)
	}
}

func TestPostgresUpdateCaseGuard(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	seedEscrow(t, db, "esc_cas")
	c := pgCase("esc_cas", now)
	if err := store.CreateCase(ctx, c); err != nil {
		t.Fatalf("CreateCase: %v", err)
	}

	// Guarded update from the current phase succeeds.
	c.Phase = PhaseAIMediation
	c.MediationState = MediationPending
	if err := store.UpdateCase(ctx, c, PhaseInNegotiation); err != nil {
		t.Fatalf("UpdateCase: %v", err)
	}

	// Same guard replayed against the new phase conflicts.
	stale := pgCase("esc_cas", now)
	stale.Phase = PhaseAIMediation
	if err := store.UpdateCase(ctx, stale, PhaseInNegotiation); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	// Unknown case reports not found, not conflict.
	ghost := pgCase("esc_cas", now)
	ghost.ID = "dsp_ghost"
	if err := store.UpdateCase(ctx, ghost, PhaseInNegotiation); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	got, err := store.GetCase(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCase: %v", err)
	}
	if got.Phase != PhaseAIMediation || got.MediationState != MediationPending {
		t.Errorf("guarded update not persisted: %+v", got)
	}
}

func TestPostgresResolutionFields(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	seedEscrow(t, db, "esc_res")
	c := pgCase("esc_res", now)
	if err := store.CreateCase(ctx, c); err != nil {
		t.Fatalf("CreateCase: %v", err)
	}

	resolved := now.Add(time.Hour)
	c.Phase = PhaseResolved
	c.Deadline = nil
	c.Outcome = OutcomeMutualAgreement
	c.ResolvedSplit = &Split{CustomerCents: 5000, VendorCents: 15000}
	c.SettlementOpID = "settle_" + c.ID
	c.Settled = true
	c.ResolvedAt = &resolved
	if err := store.UpdateCase(ctx, c, PhaseInNegotiation); err != nil {
		t.Fatalf("UpdateCase: %v", err)
	}

	got, err := store.GetCase(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCase: %v", err)
	}
	if got.Outcome != OutcomeMutualAgreement || !got.Settled {
		t.Errorf("resolution not persisted: %+v", got)
	}
	if got.ResolvedSplit == nil || got.ResolvedSplit.CustomerCents != 5000 || got.ResolvedSplit.VendorCents != 15000 {
		t.Errorf("ResolvedSplit = %+v", got.ResolvedSplit)
	}
	if got.Deadline != nil {
		t.Errorf("terminal case still has deadline %v", got.Deadline)
	}
	if got.SettlementOpID != "settle_"+c.ID {
		t.Errorf("SettlementOpID = %q", got.SettlementOpID)
	}
}

func TestPostgresDeadlineQueries(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	seedEscrow(t, db, "esc_past")
	past := pgCase("esc_past", now)
	lapsed := now.Add(-time.Minute)
	past.Deadline = &lapsed
	if err := store.CreateCase(ctx, past); err != nil {
		t.Fatalf("CreateCase: %v", err)
	}

	seedEscrow(t, db, "esc_soon")
	soon := pgCase("esc_soon", now)
	approaching := now.Add(2 * time.Hour)
	soon.Deadline = &approaching
	if err := store.CreateCase(ctx, soon); err != nil {
		t.Fatalf("CreateCase: %v", err)
	}

	elapsed, err := store.ListDeadlineElapsed(ctx, now, 10)
	if err != nil {
		t.Fatalf("ListDeadlineElapsed: %v", err)
	}
	if len(elapsed) != 1 || elapsed[0].ID != past.ID {
		t.Errorf("ListDeadlineElapsed = %+v", elapsed)
	}

	warn, err := store.ListDeadlineApproaching(ctx, now, 6*time.Hour, 10)
	if err != nil {
		t.Fatalf("ListDeadlineApproaching: %v", err)
	}
	if len(warn) != 1 || warn[0].ID != soon.ID {
		t.Errorf("ListDeadlineApproaching = %+v", warn)
	}

	if err := store.MarkDeadlineWarned(ctx, soon.ID); err != nil {
		t.Fatalf("MarkDeadlineWarned: %v", err)
	}
	warn, err = store.ListDeadlineApproaching(ctx, now, 6*time.Hour, 10)
	if err != nil {
		t.Fatalf("ListDeadlineApproaching: %v", err)
	}
	if len(warn) != 0 {
		t.Errorf("warned case still listed: %+v", warn)
	}
}

func TestPostgresOffersOptionsDecision(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	seedEscrow(t, db, "esc_art")
	c := pgCase("esc_art", now)
	if err := store.CreateCase(ctx, c); err != nil {
		t.Fatalf("CreateCase: %v", err)
	}

	offer := &Offer{
		ID:        "off_pg001",
		DisputeID: c.ID,
		PartyID:   "cus_pg",
		Split:     Split{CustomerCents: 8000, VendorCents: 12000},
		Message:   "partial refund for the delay",
		CreatedAt: now,
	}
	if err := store.CreateOffer(ctx, offer); err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	accepted := now.Add(time.Minute)
	offer.AcceptedAt = &accepted
	if err := store.UpdateOffer(ctx, offer); err != nil {
		t.Fatalf("UpdateOffer: %v", err)
	}
	offers, err := store.ListOffers(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListOffers: %v", err)
	}
	if len(offers) != 1 || offers[0].AcceptedAt == nil {
		t.Errorf("ListOffers = %+v", offers)
	}

	opts := []*Option{
		{DisputeID: c.ID, Label: "A", Split: Split{CustomerCents: 15000, VendorCents: 5000}, Rationale: "customer favored", CreatedAt: now},
		{DisputeID: c.ID, Label: "B", Split: Split{CustomerCents: 10000, VendorCents: 10000}, Rationale: "even split", CreatedAt: now},
		{DisputeID: c.ID, Label: "C", Split: Split{CustomerCents: 5000, VendorCents: 15000}, Rationale: "vendor favored", CreatedAt: now},
	}
	if err := store.CreateOptions(ctx, opts); err != nil {
		t.Fatalf("CreateOptions: %v", err)
	}
	if err := store.SetOptionResponse(ctx, c.ID, "A", true, ResponseAccepted); err != nil {
		t.Fatalf("SetOptionResponse: %v", err)
	}
	if err := store.SetOptionResponse(ctx, c.ID, "A", false, ResponseRejected); err != nil {
		t.Fatalf("SetOptionResponse: %v", err)
	}
	listed, err := store.ListOptions(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListOptions: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("expected 3 options, got %d", len(listed))
	}
	if listed[0].Label != "A" || listed[0].CustomerResponse != ResponseAccepted || listed[0].VendorResponse != ResponseRejected {
		t.Errorf("option A = %+v", listed[0])
	}
	if listed[1].CustomerResponse != ResponseNone || listed[1].VendorResponse != ResponseNone {
		t.Errorf("untouched option has responses: %+v", listed[1])
	}
	if err := store.SetOptionResponse(ctx, c.ID, "D", true, ResponseAccepted); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown label, got %v", err)
	}

	dec := &Decision{
		DisputeID:      c.ID,
		Split:          Split{CustomerCents: 12000, VendorCents: 8000},
		Rationale:      "evidence supports a majority refund",
		IssuedAt:       now,
		AcceptDeadline: now.Add(24 * time.Hour),
	}
	if err := store.CreateDecision(ctx, dec); err != nil {
		t.Fatalf("CreateDecision: %v", err)
	}
	if err := store.SetDecisionResponse(ctx, c.ID, false, ResponseRejected); err != nil {
		t.Fatalf("SetDecisionResponse: %v", err)
	}
	got, err := store.GetDecision(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetDecision: %v", err)
	}
	if got.VendorResponse != ResponseRejected || got.CustomerResponse != ResponseNone {
		t.Errorf("GetDecision = %+v", got)
	}
	if !got.AcceptDeadline.Equal(dec.AcceptDeadline) {
		t.Errorf("AcceptDeadline = %v, want %v", got.AcceptDeadline, dec.AcceptDeadline)
	}

	// each party responds once; the counterparty's column is independent
	if err := store.SetDecisionResponse(ctx, c.ID, false, ResponseAccepted); !errors.Is(err, ErrAlreadyResponded) {
		t.Errorf("expected ErrAlreadyResponded, got %v", err)
	}
	if err := store.SetDecisionResponse(ctx, c.ID, true, ResponseAccepted); err != nil {
		t.Fatalf("SetDecisionResponse customer: %v", err)
	}
	if err := store.SetDecisionResponse(ctx, "dsp_ghost", true, ResponseAccepted); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
