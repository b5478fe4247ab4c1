package gateway

import (
	"context"
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"
	"github.com/stripe/stripe-go/v81/refund"
	"github.com/stripe/stripe-go/v81/transfer"
	"github.com/stripe/stripe-go/v81/webhook"
)

// Stripe implements PaymentGateway against the Stripe API using
// destination charges grouped by transfer group.
type Stripe struct {
	webhookSecret string
}

// NewStripe configures the Stripe client with the given secret key.
func NewStripe(secretKey, webhookSecret string) *Stripe {
	stripe.Key = secretKey
	return &Stripe{webhookSecret: webhookSecret}
}

var _ PaymentGateway = (*Stripe)(nil)

func (s *Stripe) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	params := &stripe.PaymentIntentParams{
		Params:        stripe.Params{Context: ctx},
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(req.Currency),
		Description:   stripe.String(req.Description),
		TransferGroup: stripe.String(req.TransferGroup),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("order_id", req.OrderID)

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, mapStripeErr("create charge", err)
	}
	return &Charge{Ref: pi.ID, ClientSecret: pi.ClientSecret, Status: string(pi.Status)}, nil
}

func (s *Stripe) CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	params := &stripe.TransferParams{
		Params:        stripe.Params{Context: ctx},
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(req.Currency),
		Destination:   stripe.String(req.Destination),
		TransferGroup: stripe.String(req.TransferGroup),
	}
	params.AddMetadata("payout_id", req.PayoutID)
	params.AddMetadata("order_id", req.OrderID)

	tr, err := transfer.New(params)
	if err != nil {
		return nil, mapStripeErr("create transfer", err)
	}
	return &Transfer{Ref: tr.ID, Status: "pending"}, nil
}

func (s *Stripe) CreateRefund(ctx context.Context, chargeRef string, amount int64, reason string) (*Refund, error) {
	params := &stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(chargeRef),
	}
	if amount > 0 {
		params.Amount = stripe.Int64(amount)
	}
	if reason != "" {
		params.Reason = stripe.String(reason)
	}

	rf, err := refund.New(params)
	if err != nil {
		return nil, mapStripeErr("create refund", err)
	}
	return &Refund{Ref: rf.ID, Status: string(rf.Status)}, nil
}

func (s *Stripe) VerifyWebhook(payload []byte, signature string) error {
	_, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return nil
}

// mapStripeErr folds Stripe error types into the package sentinels so
// callers can decide whether to retry without importing stripe-go.
func mapStripeErr(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		// api_error covers transient processor-side failures; card,
		// invalid_request, and idempotency errors will not succeed on
		// retry.
		if se.Type == stripe.ErrorTypeAPI {
			return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
		}
		return fmt.Errorf("%s: %w: %v", op, ErrRejected, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}
