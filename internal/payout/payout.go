// Package payout moves the lawyer's net amount out once escrow
// releases. One payout per order, ever: the store enforces uniqueness
// on the order ID and the service treats enqueueing as idempotent.
package payout

import (
	"context"
	"errors"
	"time"
)

// Status tracks a payout through the gateway.
type Status string

const (
	// StatusPending means the payout row exists but no transfer has
	// been accepted by the gateway yet.
	StatusPending   Status = "pending"
	StatusInTransit Status = "in_transit"
	StatusPaid      Status = "paid"
	StatusFailed    Status = "failed"
	StatusReversed  Status = "reversed"
	StatusCancelled Status = "cancelled"
)

// Errors
var (
	ErrNotFound       = errors.New("payout not found")
	ErrDuplicate      = errors.New("order already has a payout")
	ErrExceedsNet     = errors.New("payout exceeds the lawyer's net amount")
	ErrNotCancellable = errors.New("payout already in transit or settled")
)

// Payout is one transfer of a lawyer's net amount. Fee snapshots the
// platform fee the order carried when the payout was created.
//
// A payout enqueued before the order's escrow release date is created
// on hold: the row exists (and blocks duplicates) but no transfer is
// attempted until HoldUntil passes.
type Payout struct {
	ID            string     `json:"id"`
	OrderID       string     `json:"orderId"`
	LawyerID      string     `json:"lawyerId"`
	Destination   string     `json:"destination"`
	Amount        int64      `json:"amount"`
	Fee           int64      `json:"fee"`
	Currency      string     `json:"currency"`
	Status        Status     `json:"status"`
	TransferRef   string     `json:"transferRef,omitempty"`
	FailureReason string     `json:"failureReason,omitempty"`
	OnHold        bool       `json:"onHold"`
	HoldUntil     *time.Time `json:"holdUntil,omitempty"`
	HoldReason    string     `json:"holdReason,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Store persists payouts.
type Store interface {
	// Create inserts a payout. Returns ErrDuplicate if the order
	// already has one.
	Create(ctx context.Context, p *Payout) error
	Get(ctx context.Context, id string) (*Payout, error)
	GetByOrder(ctx context.Context, orderID string) (*Payout, error)
	GetByTransferRef(ctx context.Context, transferRef string) (*Payout, error)
	Update(ctx context.Context, p *Payout) error
	ListByLawyer(ctx context.Context, lawyerID string, limit int) ([]*Payout, error)
}
