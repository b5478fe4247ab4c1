// Package order implements the escrow order lifecycle.
//
// Flow:
//  1. Client creates an order -> gateway charge for base + fee + tax
//  2. Gateway confirms the charge -> order funded, hold scheduled
//  3. Lawyer accepts, works, delivers
//  4. Client completes (or the sweeper auto-releases) -> payout enqueued
//  5. Either side may dispute before completion; resolution pays out
//     or refunds
//
// Every state change is guarded by a per-order lock plus an optimistic
// version check, and commits together with its audit record.
package order

import (
	"errors"
	"time"
)

// Status is the order's position in the lifecycle.
type Status string

const (
	StatusCreated    Status = "created"
	StatusFunded     Status = "funded"
	StatusInProgress Status = "in_progress"
	StatusDelivered  Status = "delivered"
	StatusCompleted  Status = "completed"
	StatusDisputed   Status = "disputed"
	StatusRefunded   Status = "refunded"
	StatusCancelled  Status = "cancelled"
)

// transitions is the only authority on which moves are legal.
var transitions = map[Status][]Status{
	StatusCreated:    {StatusFunded, StatusCancelled},
	StatusFunded:     {StatusInProgress, StatusDisputed, StatusCancelled},
	StatusInProgress: {StatusDelivered, StatusDisputed},
	StatusDelivered:  {StatusCompleted, StatusDisputed},
	StatusDisputed:   {StatusCompleted, StatusRefunded},
	StatusCompleted:  {},
	StatusRefunded:   {},
	StatusCancelled:  {},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no further transitions exist from s.
func (s Status) Terminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// CanTransitionTo reports whether s -> target is a legal move.
func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Errors
var (
	ErrNotFound          = errors.New("order not found")
	ErrInvalidAmount     = errors.New("order amount must be positive")
	ErrInvalidParty      = errors.New("client and lawyer IDs are required")
	ErrInvalidStatus     = errors.New("unknown order status")
	ErrSameParty         = errors.New("client and lawyer must differ")
	ErrIneligiblePayee   = errors.New("lawyer has no verified payout account")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrTerminalState     = errors.New("order is in a terminal state")
	ErrVersionConflict   = errors.New("order was modified concurrently")
	ErrNoDispute         = errors.New("order has no open dispute")
	ErrAlreadyResolved   = errors.New("dispute already resolved")
	ErrInvalidOutcome    = errors.New("unknown dispute outcome")
)

// DisputeOutcome is the ruling on a resolved dispute.
type DisputeOutcome string

const (
	OutcomeFavorLawyer DisputeOutcome = "favor_lawyer"
	OutcomeFavorClient DisputeOutcome = "favor_client"
)

// Dispute is embedded in its order; it has no life of its own.
type Dispute struct {
	ID         string         `json:"id"`
	RaisedBy   string         `json:"raisedBy"`
	Reason     string         `json:"reason"`
	Outcome    DisputeOutcome `json:"outcome,omitempty"`
	Note       string         `json:"note,omitempty"`
	OpenedAt   time.Time      `json:"openedAt"`
	ResolvedAt *time.Time     `json:"resolvedAt,omitempty"`
}

// Resolved reports whether a ruling has been recorded.
func (d *Dispute) Resolved() bool {
	return d != nil && d.ResolvedAt != nil
}

// Order is one engagement between a client and a lawyer. All amounts
// are minor units.
//
// Amount is the agreed base price. The client is charged ChargeTotal
// (base + platform fee + tax); the lawyer's payout is LawyerAmount
// (base - platform fee). Amount == PlatformFee + LawyerAmount always.
type Order struct {
	ID          string `json:"id"`
	ClientID    string `json:"clientId"`
	LawyerID    string `json:"lawyerId"`
	CaseRef     string `json:"caseRef,omitempty"`
	Description string `json:"description,omitempty"`

	Amount       int64  `json:"amount"`
	PlatformFee  int64  `json:"platformFee"`
	TaxAmount    int64  `json:"taxAmount"`
	ChargeTotal  int64  `json:"chargeTotal"`
	LawyerAmount int64  `json:"lawyerAmount"`
	Currency     string `json:"currency"`

	Status        Status `json:"status"`
	ChargeRef     string `json:"chargeRef,omitempty"`
	TransferGroup string `json:"transferGroup,omitempty"`

	// ReleaseEligibleAt is set when the order is funded; the sweeper
	// may auto-complete a delivered order once it has passed.
	ReleaseEligibleAt *time.Time `json:"releaseEligibleAt,omitempty"`

	Dispute *Dispute `json:"dispute,omitempty"`

	// Version increments on every successful write; stores reject
	// updates whose expected version is stale.
	Version int64 `json:"version"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	FundedAt    *time.Time `json:"fundedAt,omitempty"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	ClosedAt    *time.Time `json:"closedAt,omitempty"`
}

// Clone returns a deep copy so stores never hand out shared pointers.
func (o *Order) Clone() *Order {
	cp := *o
	if o.Dispute != nil {
		d := *o.Dispute
		cp.Dispute = &d
	}
	return &cp
}
