package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/advoflow/advoflow/internal/idgen"
)

// Stub is an in-memory gateway for demo mode and tests. Refs are
// minted locally and webhook signatures are plain HMAC-SHA256 over
// the payload.
type Stub struct {
	secret []byte

	mu        sync.Mutex
	charges   []ChargeRequest
	transfers []TransferRequest
	refunds   []string

	// FailCharges, FailTransfers, and FailRefunds inject
	// ErrUnavailable for testing failure paths.
	FailCharges   bool
	FailTransfers bool
	FailRefunds   bool
}

// NewStub creates a stub gateway with the given webhook secret.
func NewStub(secret string) *Stub {
	return &Stub{secret: []byte(secret)}
}

var _ PaymentGateway = (*Stub)(nil)

func (s *Stub) CreateCharge(_ context.Context, req ChargeRequest) (*Charge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCharges {
		return nil, ErrUnavailable
	}
	s.charges = append(s.charges, req)
	return &Charge{
		Ref:          "pi_stub_" + idgen.Hex(8),
		ClientSecret: "secret_" + idgen.Hex(8),
		Status:       "requires_payment_method",
	}, nil
}

func (s *Stub) CreateTransfer(_ context.Context, req TransferRequest) (*Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailTransfers {
		return nil, ErrUnavailable
	}
	s.transfers = append(s.transfers, req)
	return &Transfer{Ref: "tr_stub_" + idgen.Hex(8), Status: "pending"}, nil
}

func (s *Stub) CreateRefund(_ context.Context, chargeRef string, _ int64, _ string) (*Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailRefunds {
		return nil, ErrUnavailable
	}
	s.refunds = append(s.refunds, chargeRef)
	return &Refund{Ref: "re_stub_" + idgen.Hex(8), Status: "succeeded"}, nil
}

func (s *Stub) VerifyWebhook(payload []byte, signature string) error {
	want := s.Sign(payload)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}

// Sign produces the signature the stub expects on a webhook payload.
// Tests use it to build valid deliveries.
func (s *Stub) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Charges returns the charge requests seen so far.
func (s *Stub) Charges() []ChargeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChargeRequest, len(s.charges))
	copy(out, s.charges)
	return out
}

// Transfers returns the transfer requests seen so far.
func (s *Stub) Transfers() []TransferRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TransferRequest, len(s.transfers))
	copy(out, s.transfers)
	return out
}

// Refunds returns the charge refs refunded so far.
func (s *Stub) Refunds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.refunds))
	copy(out, s.refunds)
	return out
}
