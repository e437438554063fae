package fees

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const chargeColumns = `id, dispute_id, party_id, kind, amount_cents, currency,
	status, payment_ref, fail_reason, created_at, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCharge(s scanner) (*Charge, error) {
	var c Charge
	var paymentRef, failReason sql.NullString
	err := s.Scan(
		&c.ID, &c.DisputeID, &c.PartyID, &c.Kind, &c.AmountCents, &c.Currency,
		&c.Status, &paymentRef, &failReason, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.PaymentRef = paymentRef.String
	c.FailReason = failReason.String
	return &c, nil
}

func (s *PostgresStore) Create(ctx context.Context, c *Charge) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dispute_fee_charges (
			id, dispute_id, party_id, kind, amount_cents, currency,
			status, payment_ref, fail_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.DisputeID, c.PartyID, c.Kind, c.AmountCents, c.Currency,
		c.Status, nullString(c.PaymentRef), nullString(c.FailReason),
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert fee charge: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Charge, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+chargeColumns+` FROM dispute_fee_charges WHERE id = $1`, id)
	c, err := scanCharge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get fee charge: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) Update(ctx context.Context, c *Charge) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE dispute_fee_charges SET
			status = $2, payment_ref = $3, fail_reason = $4, updated_at = $5
		WHERE id = $1`,
		c.ID, c.Status, nullString(c.PaymentRef), nullString(c.FailReason), c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update fee charge: %w", err)
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

func (s *PostgresStore) GetByDisputeAndKind(ctx context.Context, disputeID string, kind Kind) (*Charge, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+chargeColumns+` FROM dispute_fee_charges WHERE dispute_id = $1 AND kind = $2`,
		disputeID, kind)
	c, err := scanCharge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get fee charge by kind: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListByDispute(ctx context.Context, disputeID string) ([]*Charge, error) {
	return s.list(ctx, `
		SELECT `+chargeColumns+` FROM dispute_fee_charges
		WHERE dispute_id = $1 ORDER BY created_at`, disputeID)
}

func (s *PostgresStore) ListFailed(ctx context.Context, limit int) ([]*Charge, error) {
	return s.list(ctx, `
		SELECT `+chargeColumns+` FROM dispute_fee_charges
		WHERE status = 'failed' ORDER BY created_at LIMIT $1`, limit)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...interface{}) ([]*Charge, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list fee charges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Charge
	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
