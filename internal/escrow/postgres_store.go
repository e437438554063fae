package escrow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const escrowColumns = `id, booking_id, customer_id, vendor_id, amount_cents, currency,
	platform_fee_cents, vendor_amount_cents, customer_refund_cents, status,
	payment_ref, created_at, updated_at, settled_at`

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(s scanner) (*Transaction, error) {
	var tx Transaction
	var paymentRef sql.NullString
	var settledAt sql.NullTime
	err := s.Scan(
		&tx.ID, &tx.BookingID, &tx.CustomerID, &tx.VendorID,
		&tx.AmountCents, &tx.Currency,
		&tx.PlatformFeeCents, &tx.VendorAmountCents, &tx.CustomerRefundCents,
		&tx.Status, &paymentRef, &tx.CreatedAt, &tx.UpdatedAt, &settledAt,
	)
	if err != nil {
		return nil, err
	}
	tx.PaymentRef = paymentRef.String
	if settledAt.Valid {
		t := settledAt.Time
		tx.SettledAt = &t
	}
	return &tx, nil
}

func (s *PostgresStore) Create(ctx context.Context, tx *Transaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO escrow_transactions (
			id, booking_id, customer_id, vendor_id, amount_cents, currency,
			platform_fee_cents, vendor_amount_cents, customer_refund_cents, status,
			payment_ref, created_at, updated_at, settled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		tx.ID, tx.BookingID, tx.CustomerID, tx.VendorID, tx.AmountCents, tx.Currency,
		tx.PlatformFeeCents, tx.VendorAmountCents, tx.CustomerRefundCents, tx.Status,
		nullString(tx.PaymentRef), tx.CreatedAt, tx.UpdatedAt, nullTime(tx.SettledAt),
	)
	if err != nil {
		return fmt.Errorf("insert escrow: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+escrowColumns+` FROM escrow_transactions WHERE id = $1`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get escrow: %w", err)
	}
	return tx, nil
}

// Update applies the write only if the stored status still matches the one
// the caller loaded, so the custody guard holds across service instances.
func (s *PostgresStore) Update(ctx context.Context, tx *Transaction, expectedStatus Status) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE escrow_transactions SET
			platform_fee_cents = $2, vendor_amount_cents = $3, customer_refund_cents = $4,
			status = $5, payment_ref = $6, updated_at = $7, settled_at = $8
		WHERE id = $1 AND status = $9`,
		tx.ID, tx.PlatformFeeCents, tx.VendorAmountCents, tx.CustomerRefundCents,
		tx.Status, nullString(tx.PaymentRef), tx.UpdatedAt, nullTime(tx.SettledAt),
		expectedStatus,
	)
	if err != nil {
		return fmt.Errorf("update escrow: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM escrow_transactions WHERE id = $1)`, tx.ID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrConflict
		}
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetByBooking(ctx context.Context, bookingID string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+escrowColumns+` FROM escrow_transactions WHERE booking_id = $1`, bookingID)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get escrow by booking: %w", err)
	}
	return tx, nil
}

func (s *PostgresStore) ListByParty(ctx context.Context, partyID string, limit int) ([]*Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+escrowColumns+` FROM escrow_transactions
		WHERE customer_id = $1 OR vendor_id = $1
		ORDER BY created_at DESC LIMIT $2`, partyID, limit)
	if err != nil {
		return nil, fmt.Errorf("list escrows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
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
