package dispute

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore is a Store backed by PostgreSQL. The phase guard in
// UpdateCase is expressed in the UPDATE's WHERE clause, so the
// compare-and-swap holds across multiple service instances.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const caseColumns = `id, escrow_id, booking_id, customer_id, vendor_id, opened_by,
	reason, amount_cents, currency, phase, deadline, deadline_warned,
	mediation_state, decision_attempts, outcome,
	resolved_customer_cents, resolved_vendor_cents, settlement_op_id, settled,
	created_at, updated_at, resolved_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCase(s scanner) (*Case, error) {
	var c Case
	var deadline, resolvedAt sql.NullTime
	var mediationState, outcome, settlementOpID sql.NullString
	var resolvedCustomer, resolvedVendor sql.NullInt64
	err := s.Scan(
		&c.ID, &c.EscrowID, &c.BookingID, &c.CustomerID, &c.VendorID, &c.OpenedBy,
		&c.Reason, &c.AmountCents, &c.Currency, &c.Phase, &deadline, &c.DeadlineWarned,
		&mediationState, &c.DecisionAttempts, &outcome,
		&resolvedCustomer, &resolvedVendor, &settlementOpID, &c.Settled,
		&c.CreatedAt, &c.UpdatedAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	if deadline.Valid {
		t := deadline.Time
		c.Deadline = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		c.ResolvedAt = &t
	}
	c.MediationState = MediationState(mediationState.String)
	c.Outcome = Outcome(outcome.String)
	c.SettlementOpID = settlementOpID.String
	if resolvedCustomer.Valid || resolvedVendor.Valid {
		c.ResolvedSplit = &Split{
			CustomerCents: resolvedCustomer.Int64,
			VendorCents:   resolvedVendor.Int64,
		}
	}
	return &c, nil
}

func caseArgs(c *Case) []interface{} {
	var resolvedCustomer, resolvedVendor sql.NullInt64
	if c.ResolvedSplit != nil {
		resolvedCustomer = sql.NullInt64{Int64: c.ResolvedSplit.CustomerCents, Valid: true}
		resolvedVendor = sql.NullInt64{Int64: c.ResolvedSplit.VendorCents, Valid: true}
	}
	return []interface{}{
		c.ID, c.EscrowID, c.BookingID, c.CustomerID, c.VendorID, c.OpenedBy,
		c.Reason, c.AmountCents, c.Currency, c.Phase, nullTime(c.Deadline), c.DeadlineWarned,
		nullString(string(c.MediationState)), c.DecisionAttempts, nullString(string(c.Outcome)),
		resolvedCustomer, resolvedVendor, nullString(c.SettlementOpID), c.Settled,
		c.CreatedAt, c.UpdatedAt, nullTime(c.ResolvedAt),
	}
}

func (s *PostgresStore) CreateCase(ctx context.Context, c *Case) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO disputes (`+caseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		caseArgs(c)...)
	if err != nil {
		return fmt.Errorf("insert dispute: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCase(ctx context.Context, id string) (*Case, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+caseColumns+` FROM disputes WHERE id = $1`, id)
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get dispute: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) GetCaseByEscrow(ctx context.Context, escrowID string) (*Case, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+caseColumns+` FROM disputes WHERE escrow_id = $1`, escrowID)
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get dispute by escrow: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) UpdateCase(ctx context.Context, c *Case, expectedPhase Phase) error {
	var resolvedCustomer, resolvedVendor sql.NullInt64
	if c.ResolvedSplit != nil {
		resolvedCustomer = sql.NullInt64{Int64: c.ResolvedSplit.CustomerCents, Valid: true}
		resolvedVendor = sql.NullInt64{Int64: c.ResolvedSplit.VendorCents, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE disputes SET
			phase = $2, deadline = $3, deadline_warned = $4,
			mediation_state = $5, decision_attempts = $6, outcome = $7,
			resolved_customer_cents = $8, resolved_vendor_cents = $9,
			settlement_op_id = $10, settled = $11,
			updated_at = $12, resolved_at = $13
		WHERE id = $1 AND phase = $14`,
		c.ID, c.Phase, nullTime(c.Deadline), c.DeadlineWarned,
		nullString(string(c.MediationState)), c.DecisionAttempts, nullString(string(c.Outcome)),
		resolvedCustomer, resolvedVendor,
		nullString(c.SettlementOpID), c.Settled,
		c.UpdatedAt, nullTime(c.ResolvedAt),
		expectedPhase,
	)
	if err != nil {
		return fmt.Errorf("update dispute: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM disputes WHERE id = $1)`, c.ID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrConflict
		}
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByParty(ctx context.Context, partyID string, phase Phase, limit int) ([]*Case, error) {
	if phase != "" {
		return s.listCases(ctx, `
			SELECT `+caseColumns+` FROM disputes
			WHERE (customer_id = $1 OR vendor_id = $1) AND phase = $2
			ORDER BY created_at DESC LIMIT $3`, partyID, phase, limit)
	}
	return s.listCases(ctx, `
		SELECT `+caseColumns+` FROM disputes
		WHERE customer_id = $1 OR vendor_id = $1
		ORDER BY created_at DESC LIMIT $2`, partyID, limit)
}

func (s *PostgresStore) ListDeadlineElapsed(ctx context.Context, now time.Time, limit int) ([]*Case, error) {
	return s.listCases(ctx, `
		SELECT `+caseColumns+` FROM disputes
		WHERE phase NOT IN ('resolved', 'external') AND deadline IS NOT NULL AND deadline <= $1
		ORDER BY deadline LIMIT $2`, now, limit)
}

func (s *PostgresStore) ListUnsettled(ctx context.Context, limit int) ([]*Case, error) {
	return s.listCases(ctx, `
		SELECT `+caseColumns+` FROM disputes
		WHERE phase = 'resolved' AND NOT settled
		ORDER BY updated_at LIMIT $1`, limit)
}

func (s *PostgresStore) ListAwaitingDecision(ctx context.Context, limit int) ([]*Case, error) {
	return s.listCases(ctx, `
		SELECT `+caseColumns+` FROM disputes d
		WHERE d.phase = 'ai_review'
		  AND NOT EXISTS (SELECT 1 FROM binding_decisions b WHERE b.dispute_id = d.id)
		ORDER BY d.updated_at LIMIT $1`, limit)
}

func (s *PostgresStore) ListDeadlineApproaching(ctx context.Context, now time.Time, window time.Duration, limit int) ([]*Case, error) {
	return s.listCases(ctx, `
		SELECT `+caseColumns+` FROM disputes
		WHERE phase NOT IN ('resolved', 'external')
		  AND NOT deadline_warned
		  AND deadline IS NOT NULL AND deadline > $1 AND deadline <= $2
		ORDER BY deadline LIMIT $3`, now, now.Add(window), limit)
}

func (s *PostgresStore) MarkDeadlineWarned(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE disputes SET deadline_warned = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark deadline warned: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) listCases(ctx context.Context, query string, args ...interface{}) ([]*Case, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list disputes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateOffer(ctx context.Context, o *Offer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO negotiation_offers (
			id, dispute_id, party_id, customer_cents, vendor_cents, message,
			created_at, accepted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		o.ID, o.DisputeID, o.PartyID, o.Split.CustomerCents, o.Split.VendorCents,
		nullString(o.Message), o.CreatedAt, nullTime(o.AcceptedAt),
	)
	if err != nil {
		return fmt.Errorf("insert offer: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetOffer(ctx context.Context, id string) (*Offer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, dispute_id, party_id, customer_cents, vendor_cents, message,
			created_at, accepted_at
		FROM negotiation_offers WHERE id = $1`, id)
	o, err := scanOffer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get offer: %w", err)
	}
	return o, nil
}

func scanOffer(s scanner) (*Offer, error) {
	var o Offer
	var message sql.NullString
	var acceptedAt sql.NullTime
	err := s.Scan(&o.ID, &o.DisputeID, &o.PartyID,
		&o.Split.CustomerCents, &o.Split.VendorCents, &message,
		&o.CreatedAt, &acceptedAt)
	if err != nil {
		return nil, err
	}
	o.Message = message.String
	if acceptedAt.Valid {
		t := acceptedAt.Time
		o.AcceptedAt = &t
	}
	return &o, nil
}

func (s *PostgresStore) UpdateOffer(ctx context.Context, o *Offer) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE negotiation_offers SET accepted_at = $2 WHERE id = $1`,
		o.ID, nullTime(o.AcceptedAt))
	if err != nil {
		return fmt.Errorf("update offer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListOffers(ctx context.Context, disputeID string) ([]*Offer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dispute_id, party_id, customer_cents, vendor_cents, message,
			created_at, accepted_at
		FROM negotiation_offers WHERE dispute_id = $1 ORDER BY created_at`, disputeID)
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateOptions(ctx context.Context, opts []*Option) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, o := range opts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO mediation_options (
				dispute_id, label, customer_cents, vendor_cents, rationale,
				customer_response, vendor_response, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			o.DisputeID, o.Label, o.Split.CustomerCents, o.Split.VendorCents, o.Rationale,
			nullString(string(o.CustomerResponse)), nullString(string(o.VendorResponse)),
			o.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert option %s: %w", o.Label, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) ListOptions(ctx context.Context, disputeID string) ([]*Option, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dispute_id, label, customer_cents, vendor_cents, rationale,
			customer_response, vendor_response, created_at
		FROM mediation_options WHERE dispute_id = $1 ORDER BY label`, disputeID)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Option
	for rows.Next() {
		var o Option
		var customerResp, vendorResp sql.NullString
		err := rows.Scan(&o.DisputeID, &o.Label,
			&o.Split.CustomerCents, &o.Split.VendorCents, &o.Rationale,
			&customerResp, &vendorResp, &o.CreatedAt)
		if err != nil {
			return nil, err
		}
		o.CustomerResponse = Response(customerResp.String)
		o.VendorResponse = Response(vendorResp.String)
		out = append(out, &o)
	}
	return out, rows.Err()
}

// responseColumn maps the acting side to its response column.
func responseColumn(customer bool) string {
	if customer {
		return "customer_response"
	}
	return "vendor_response"
}

func (s *PostgresStore) SetOptionResponse(ctx context.Context, disputeID, label string, customer bool, resp Response) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE mediation_options SET %s = $3
		WHERE dispute_id = $1 AND label = $2`, responseColumn(customer)),
		disputeID, label, nullString(string(resp)))
	if err != nil {
		return fmt.Errorf("set option response: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateDecision(ctx context.Context, d *Decision) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO binding_decisions (
			dispute_id, customer_cents, vendor_cents, rationale,
			issued_at, accept_deadline, customer_response, vendor_response
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.DisputeID, d.Split.CustomerCents, d.Split.VendorCents, d.Rationale,
		d.IssuedAt, d.AcceptDeadline,
		nullString(string(d.CustomerResponse)), nullString(string(d.VendorResponse)),
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDecision(ctx context.Context, disputeID string) (*Decision, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT dispute_id, customer_cents, vendor_cents, rationale,
			issued_at, accept_deadline, customer_response, vendor_response
		FROM binding_decisions WHERE dispute_id = $1`, disputeID)

	var d Decision
	var customerResp, vendorResp sql.NullString
	err := row.Scan(&d.DisputeID, &d.Split.CustomerCents, &d.Split.VendorCents, &d.Rationale,
		&d.IssuedAt, &d.AcceptDeadline, &customerResp, &vendorResp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get decision: %w", err)
	}
	d.CustomerResponse = Response(customerResp.String)
	d.VendorResponse = Response(vendorResp.String)
	return &d, nil
}

func (s *PostgresStore) SetDecisionResponse(ctx context.Context, disputeID string, customer bool, resp Response) error {
	col := responseColumn(customer)
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE binding_decisions SET %s = $2
		WHERE dispute_id = $1 AND %s IS NULL`, col, col),
		disputeID, nullString(string(resp)))
	if err != nil {
		return fmt.Errorf("set decision response: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM binding_decisions WHERE dispute_id = $1)`, disputeID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrAlreadyResponded
		}
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
