// Package payments abstracts the payment processor used for escrow custody.
//
// The marketplace stores processor-native references on its records: customer
// identities are processor customer ids, vendor identities are connected
// account ids, and an escrow hold is a manual-capture payment reference.
// Every operation takes a caller-chosen operation id and must be idempotent
// with respect to it: replaying an operation id returns the original result
// without moving funds twice.
package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrDeclined is returned when the processor refuses a charge
	// (insufficient funds, expired card, etc). Not retryable.
	ErrDeclined = errors.New("payment declined")

	// ErrUnavailable is returned when the processor could not be reached.
	// Retryable with the same operation id.
	ErrUnavailable = errors.New("payment processor unavailable")
)

// Processor moves funds on behalf of the escrow ledger and fee assessor.
type Processor interface {
	// HoldFunds places a hold on the customer's payment method and returns
	// the processor's payment reference for the hold.
	HoldFunds(ctx context.Context, opID, customerID string, amountCents int64, currency string) (string, error)

	// ReleaseFunds transfers part of a held amount to the vendor.
	ReleaseFunds(ctx context.Context, opID, vendorID string, amountCents int64, currency string) (string, error)

	// Refund returns part of a held amount to the customer, keyed by the
	// payment reference returned from HoldFunds.
	Refund(ctx context.Context, opID, paymentRef string, amountCents int64, currency string) (string, error)

	// ChargeSavedMethod charges a party's saved payment method off-session,
	// used for dispute-handling fees.
	ChargeSavedMethod(ctx context.Context, opID, partyID string, amountCents int64, currency string) (string, error)
}

// Op records one completed fake operation.
type Op struct {
	Kind   string
	Party  string
	Amount int64
	Ref    string
}

// Fake is an in-memory processor for demo mode and tests.
// Operations are idempotent per operation id, like the real processor.
type Fake struct {
	mu  sync.Mutex
	ops map[string]Op
	seq int

	// FailCharges makes ChargeSavedMethod return ErrDeclined.
	FailCharges bool
	// FailReleases makes ReleaseFunds and Refund return ErrUnavailable.
	FailReleases bool
}

// NewFake creates a fake processor.
func NewFake() *Fake {
	return &Fake{ops: make(map[string]Op)}
}

func (f *Fake) record(opID, kind, party string, amount int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if op, ok := f.ops[opID]; ok {
		return op.Ref, nil // idempotent replay
	}
	f.seq++
	ref := fmt.Sprintf("fake_%s_%d", kind, f.seq)
	f.ops[opID] = Op{Kind: kind, Party: party, Amount: amount, Ref: ref}
	return ref, nil
}

func (f *Fake) HoldFunds(ctx context.Context, opID, customerID string, amountCents int64, currency string) (string, error) {
	return f.record(opID, "hold", customerID, amountCents)
}

func (f *Fake) ReleaseFunds(ctx context.Context, opID, vendorID string, amountCents int64, currency string) (string, error) {
	if f.failReleases() {
		return "", ErrUnavailable
	}
	return f.record(opID, "release", vendorID, amountCents)
}

func (f *Fake) Refund(ctx context.Context, opID, paymentRef string, amountCents int64, currency string) (string, error) {
	if f.failReleases() {
		return "", ErrUnavailable
	}
	return f.record(opID, "refund", paymentRef, amountCents)
}

func (f *Fake) ChargeSavedMethod(ctx context.Context, opID, partyID string, amountCents int64, currency string) (string, error) {
	if f.failCharges() {
		return "", ErrDeclined
	}
	return f.record(opID, "fee", partyID, amountCents)
}

func (f *Fake) failCharges() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.FailCharges
}

func (f *Fake) failReleases() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.FailReleases
}

// Ops returns the recorded operations by kind, for test assertions.
func (f *Fake) Ops(kind string) []Op {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Op
	for _, op := range f.ops {
		if op.Kind == kind {
			out = append(out, op)
		}
	}
	return out
}

// OpCount returns the number of distinct operations of a kind.
func (f *Fake) OpCount(kind string) int {
	return len(f.Ops(kind))
}

// Compile-time assertion that Fake implements Processor.
var _ Processor = (*Fake)(nil)
