// Package gateway abstracts the external card processor.
//
// The settlement core only needs four capabilities: charge the client,
// transfer to the lawyer's connected account, refund a charge, and
// verify webhook signatures. Everything else (payment methods, SCA,
// receipts) stays on the processor's side of the fence.
package gateway

import (
	"context"
	"errors"
)

// Sentinel errors mapped from processor failures.
var (
	// ErrUnavailable means the processor could not be reached or
	// returned a retryable error.
	ErrUnavailable = errors.New("gateway: unavailable")
	// ErrRejected means the processor permanently refused the request.
	ErrRejected = errors.New("gateway: request rejected")
	// ErrBadSignature means a webhook payload failed verification.
	ErrBadSignature = errors.New("gateway: invalid webhook signature")
)

// ChargeRequest asks the processor to collect the order total
// (base + fee + tax) from the client.
type ChargeRequest struct {
	OrderID       string
	Amount        int64
	Currency      string
	Description   string
	TransferGroup string
}

// Charge is the processor's record of a client payment.
type Charge struct {
	Ref          string
	ClientSecret string
	Status       string
}

// TransferRequest asks the processor to move the lawyer's net amount
// to their connected account.
type TransferRequest struct {
	PayoutID      string
	OrderID       string
	Amount        int64
	Currency      string
	Destination   string
	TransferGroup string
}

// Transfer is the processor's record of a payout transfer.
type Transfer struct {
	Ref    string
	Status string
}

// Refund is the processor's record of a returned charge.
type Refund struct {
	Ref    string
	Status string
}

// PaymentGateway is the narrow processor interface the settlement
// services depend on.
type PaymentGateway interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error)
	// CreateRefund returns amount minor units of the charge; amount 0
	// refunds the full charge.
	CreateRefund(ctx context.Context, chargeRef string, amount int64, reason string) (*Refund, error)
	// VerifyWebhook checks the signature header on a raw webhook
	// payload. Returns ErrBadSignature on mismatch.
	VerifyWebhook(payload []byte, signature string) error
}
