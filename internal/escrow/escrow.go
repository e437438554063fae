// Package escrow tracks custody of funds held against a booking.
//
// A Transaction is created when a booking's payment succeeds and is never
// deleted; it is the audit trail. While a dispute is open the record is
// mutated only by the dispute resolver via Settle; the normal release and
// refund paths refuse disputed records.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/servimarket/disputes/internal/idgen"
	"github.com/servimarket/disputes/internal/payments"
	"github.com/servimarket/disputes/internal/traces"
)

var (
	ErrNotFound       = errors.New("escrow not found")
	ErrInvalidStatus  = errors.New("invalid escrow status for this operation")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrAlreadySettled = errors.New("escrow already settled")
	ErrConflict       = errors.New("escrow was modified concurrently")
)

// Status represents the custody state of held funds.
type Status string

const (
	StatusHeld              Status = "held"               // payment captured, funds held by platform
	StatusReleased          Status = "released"           // full vendor payout completed
	StatusDisputed          Status = "disputed"           // a dispute is open against the hold
	StatusRefunded          Status = "refunded"           // full refund to customer completed
	StatusPartiallyReleased Status = "partially_released" // split settlement completed
)

// transitions enumerates the legal status moves.
// held -> released | disputed | refunded
// disputed -> released | partially_released | refunded
var transitions = map[Status][]Status{
	StatusHeld:     {StatusReleased, StatusDisputed, StatusRefunded},
	StatusDisputed: {StatusReleased, StatusPartiallyReleased, StatusRefunded},
}

// CanTransition reports whether from -> to is a legal status move.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Transaction is the custody record for one booking's payment.
//
// Invariant: PlatformFeeCents + VendorAmountCents == AmountCents at all
// times. VendorAmountCents is what the vendor stands to receive under the
// current state; PlatformFeeCents is the remainder (commission, or after a
// disputed settlement, commission plus the customer's refunded share).
type Transaction struct {
	ID                  string     `json:"id"`
	BookingID           string     `json:"bookingId"`
	CustomerID          string     `json:"customerId"`
	VendorID            string     `json:"vendorId"`
	AmountCents         int64      `json:"amountCents"`
	Currency            string     `json:"currency"`
	PlatformFeeCents    int64      `json:"platformFeeCents"`
	VendorAmountCents   int64      `json:"vendorAmountCents"`
	CustomerRefundCents int64      `json:"customerRefundCents"`
	Status              Status     `json:"status"`
	PaymentRef          string     `json:"paymentRef,omitempty"` // processor hold reference
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
	SettledAt           *time.Time `json:"settledAt,omitempty"`
}

// IsTerminal returns true if the funds have been settled.
func (t *Transaction) IsTerminal() bool {
	switch t.Status {
	case StatusReleased, StatusRefunded, StatusPartiallyReleased:
		return true
	}
	return false
}

// checkInvariant verifies the fee partition before a record is persisted.
func (t *Transaction) checkInvariant() error {
	if t.AmountCents <= 0 {
		return ErrInvalidAmount
	}
	if t.PlatformFeeCents < 0 || t.VendorAmountCents < 0 {
		return ErrInvalidAmount
	}
	if t.PlatformFeeCents+t.VendorAmountCents != t.AmountCents {
		return fmt.Errorf("%w: platform fee %d + vendor amount %d != amount %d",
			ErrInvalidAmount, t.PlatformFeeCents, t.VendorAmountCents, t.AmountCents)
	}
	return nil
}

// Store persists escrow transactions.
//
// Update takes the status the caller loaded; implementations must apply the
// write only if the stored status still matches and return ErrConflict
// otherwise. The per-service locks serialize mutations within one process,
// the status guard serializes them across instances.
type Store interface {
	Create(ctx context.Context, tx *Transaction) error
	Get(ctx context.Context, id string) (*Transaction, error)
	Update(ctx context.Context, tx *Transaction, expectedStatus Status) error
	GetByBooking(ctx context.Context, bookingID string) (*Transaction, error)
	ListByParty(ctx context.Context, partyID string, limit int) ([]*Transaction, error)
}

// CreateRequest contains the parameters for recording a new escrow hold.
type CreateRequest struct {
	BookingID  string `json:"bookingId" binding:"required"`
	CustomerID string `json:"customerId" binding:"required"`
	VendorID   string `json:"vendorId" binding:"required"`
	Amount     int64  `json:"amountCents" binding:"required"`
	Currency   string `json:"currency" binding:"required"`
}

// Service implements escrow custody logic.
type Service struct {
	store     Store
	processor payments.Processor
	feeBps    int
	locks     sync.Map // per-escrow ID locks to serialize custody mutations
}

// NewService creates a new escrow service. feeBps is the platform commission
// in basis points of the booking amount.
func NewService(store Store, processor payments.Processor, feeBps int) *Service {
	return &Service{store: store, processor: processor, feeBps: feeBps}
}

// escrowLock returns a mutex for the given escrow ID.
// This serializes custody mutations (e.g. normal release racing a dispute open).
func (s *Service) escrowLock(id string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// CreateHold places a processor hold on the customer and records the
// custody transaction. Called from the booking payment-success path.
func (s *Service) CreateHold(ctx context.Context, req CreateRequest) (*Transaction, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.CustomerID == req.VendorID {
		return nil, errors.New("customer and vendor cannot be the same party")
	}
	if existing, err := s.store.GetByBooking(ctx, req.BookingID); err == nil && existing != nil {
		return nil, fmt.Errorf("booking %s already has escrow %s", req.BookingID, existing.ID)
	}

	fee := req.Amount * int64(s.feeBps) / 10000
	now := time.Now()
	tx := &Transaction{
		ID:                idgen.WithPrefix("esc_"),
		BookingID:         req.BookingID,
		CustomerID:        req.CustomerID,
		VendorID:          req.VendorID,
		AmountCents:       req.Amount,
		Currency:          req.Currency,
		PlatformFeeCents:  fee,
		VendorAmountCents: req.Amount - fee,
		Status:            StatusHeld,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := tx.checkInvariant(); err != nil {
		return nil, err
	}

	ref, err := s.processor.HoldFunds(ctx, "hold_"+tx.ID, tx.CustomerID, tx.AmountCents, tx.Currency)
	if err != nil {
		return nil, fmt.Errorf("failed to hold funds: %w", err)
	}
	tx.PaymentRef = ref

	if err := s.store.Create(ctx, tx); err != nil {
		// Best-effort void of the hold if the record could not be written.
		_, _ = s.processor.Refund(ctx, "void_"+tx.ID, ref, tx.AmountCents, tx.Currency)
		return nil, fmt.Errorf("failed to create escrow record: %w", err)
	}

	return tx, nil
}

// MarkDisputed moves held funds into the disputed state. Idempotent:
// marking an already-disputed escrow is a no-op.
func (s *Service) MarkDisputed(ctx context.Context, id string) (*Transaction, error) {
	mu := s.escrowLock(id)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if tx.Status == StatusDisputed {
		return tx, nil
	}
	if !CanTransition(tx.Status, StatusDisputed) {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidStatus, id, tx.Status)
	}

	from := tx.Status
	tx.Status = StatusDisputed
	tx.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, tx, from); err != nil {
		return nil, err
	}
	return tx, nil
}

// Release pays the vendor their share of a held (non-disputed) escrow.
// This is the normal completion path; disputed escrows are settled only
// through Settle by the dispute resolver.
func (s *Service) Release(ctx context.Context, id string) (*Transaction, error) {
	mu := s.escrowLock(id)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status != StatusHeld {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidStatus, id, tx.Status)
	}

	if _, err := s.processor.ReleaseFunds(ctx, "release_"+tx.ID, tx.VendorID, tx.VendorAmountCents, tx.Currency); err != nil {
		return nil, fmt.Errorf("failed to release funds: %w", err)
	}

	now := time.Now()
	tx.Status = StatusReleased
	tx.SettledAt = &now
	tx.UpdatedAt = now
	if err := s.store.Update(ctx, tx, StatusHeld); err != nil {
		return nil, err
	}
	return tx, nil
}

// Settle applies a dispute resolution split to a disputed escrow: refunds
// the customer share, transfers the vendor share, and records the final
// status. Idempotent per opID via the processor; calling Settle on an
// already-settled escrow returns ErrAlreadySettled.
func (s *Service) Settle(ctx context.Context, id string, customerCents, vendorCents int64, opID string) (*Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.Settle",
		traces.EscrowID(id), traces.AmountCents(customerCents+vendorCents))
	defer span.End()

	mu := s.escrowLock(id)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.IsTerminal() {
		return tx, ErrAlreadySettled
	}
	if tx.Status != StatusDisputed {
		return nil, fmt.Errorf("%w: %s is %s, settlement requires disputed", ErrInvalidStatus, id, tx.Status)
	}
	if customerCents < 0 || vendorCents < 0 || customerCents+vendorCents != tx.AmountCents {
		return nil, fmt.Errorf("%w: split %d/%d does not partition %d",
			ErrInvalidAmount, customerCents, vendorCents, tx.AmountCents)
	}

	// Fund movement first, record mutation second. Both processor calls are
	// idempotent per operation id, so a crash between them is recovered by
	// replaying Settle with the same opID.
	if customerCents > 0 {
		if _, err := s.processor.Refund(ctx, opID+"_refund", tx.PaymentRef, customerCents, tx.Currency); err != nil {
			return nil, fmt.Errorf("failed to refund customer share: %w", err)
		}
	}
	if vendorCents > 0 {
		if _, err := s.processor.ReleaseFunds(ctx, opID+"_release", tx.VendorID, vendorCents, tx.Currency); err != nil {
			return nil, fmt.Errorf("failed to release vendor share: %w", err)
		}
	}

	now := time.Now()
	tx.VendorAmountCents = vendorCents
	tx.PlatformFeeCents = tx.AmountCents - vendorCents
	tx.CustomerRefundCents = customerCents
	switch {
	case vendorCents == tx.AmountCents:
		tx.Status = StatusReleased
	case customerCents == tx.AmountCents:
		tx.Status = StatusRefunded
	default:
		tx.Status = StatusPartiallyReleased
	}
	tx.SettledAt = &now
	tx.UpdatedAt = now

	if err := tx.checkInvariant(); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, tx, StatusDisputed); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, err
		}
		// Funds already moved; persisting the record must not be dropped.
		if retryErr := s.store.Update(ctx, tx, StatusDisputed); retryErr != nil {
			return nil, fmt.Errorf("failed to update escrow after settlement (requires manual resolution): %w", err)
		}
	}
	return tx, nil
}

// Get returns an escrow transaction by ID.
func (s *Service) Get(ctx context.Context, id string) (*Transaction, error) {
	return s.store.Get(ctx, id)
}

// ListByParty returns escrows involving a party (as customer or vendor).
func (s *Service) ListByParty(ctx context.Context, partyID string, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByParty(ctx, partyID, limit)
}
