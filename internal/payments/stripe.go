package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

// StripeProcessor implements Processor against the Stripe API.
//
// Mapping: an escrow hold is a manual-capture PaymentIntent on the customer,
// a release is a Transfer to the vendor's connected account, a refund is a
// Refund against the hold's PaymentIntent, and a dispute fee is an
// off-session PaymentIntent on the party's default saved method.
type StripeProcessor struct {
	sc *client.API
}

// NewStripeProcessor creates a Stripe-backed processor.
func NewStripeProcessor(apiKey string) *StripeProcessor {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return &StripeProcessor{sc: sc}
}

func (p *StripeProcessor) HoldFunds(ctx context.Context, opID, customerID string, amountCents int64, currency string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Params:        stripe.Params{Context: ctx},
		Amount:        stripe.Int64(amountCents),
		Currency:      stripe.String(strings.ToLower(currency)),
		Customer:      stripe.String(customerID),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	params.SetIdempotencyKey(opID)

	pi, err := p.sc.PaymentIntents.New(params)
	if err != nil {
		return "", wrapStripeErr("hold funds", err)
	}
	return pi.ID, nil
}

func (p *StripeProcessor) ReleaseFunds(ctx context.Context, opID, vendorID string, amountCents int64, currency string) (string, error) {
	params := &stripe.TransferParams{
		Params:      stripe.Params{Context: ctx},
		Amount:      stripe.Int64(amountCents),
		Currency:    stripe.String(strings.ToLower(currency)),
		Destination: stripe.String(vendorID),
	}
	params.SetIdempotencyKey(opID)

	tr, err := p.sc.Transfers.New(params)
	if err != nil {
		return "", wrapStripeErr("release funds", err)
	}
	return tr.ID, nil
}

func (p *StripeProcessor) Refund(ctx context.Context, opID, paymentRef string, amountCents int64, currency string) (string, error) {
	params := &stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(paymentRef),
		Amount:        stripe.Int64(amountCents),
	}
	params.SetIdempotencyKey(opID)

	r, err := p.sc.Refunds.New(params)
	if err != nil {
		return "", wrapStripeErr("refund", err)
	}
	return r.ID, nil
}

func (p *StripeProcessor) ChargeSavedMethod(ctx context.Context, opID, partyID string, amountCents int64, currency string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Params:     stripe.Params{Context: ctx},
		Amount:     stripe.Int64(amountCents),
		Currency:   stripe.String(strings.ToLower(currency)),
		Customer:   stripe.String(partyID),
		Confirm:    stripe.Bool(true),
		OffSession: stripe.Bool(true),
	}
	params.SetIdempotencyKey(opID)

	pi, err := p.sc.PaymentIntents.New(params)
	if err != nil {
		return "", wrapStripeErr("charge saved method", err)
	}
	return pi.ID, nil
}

// wrapStripeErr maps Stripe errors onto the package sentinels so callers can
// distinguish declines (permanent) from outages (retryable).
func wrapStripeErr(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Type {
		case stripe.ErrorTypeCard:
			return fmt.Errorf("%s: %s: %w", op, stripeErr.Code, ErrDeclined)
		case stripe.ErrorTypeAPI:
			return fmt.Errorf("%s: %w", op, ErrUnavailable)
		}
		return fmt.Errorf("%s: %s: %v", op, stripeErr.Type, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}

// Compile-time assertion that StripeProcessor implements Processor.
var _ Processor = (*StripeProcessor)(nil)
