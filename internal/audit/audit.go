// Package audit provides the append-only financial audit trail.
//
// Every order transition, payout, refund, and dispute action appends a
// Record. Records are immutable once written; the single exception is
// AppendNote, which adds resolution notes to an existing record without
// touching any other field.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/advoflow/advoflow/internal/idgen"
	"github.com/advoflow/advoflow/internal/logging"
)

// Actor types recorded against audit entries.
const (
	ActorSystem  = "system"
	ActorClient  = "client"
	ActorLawyer  = "lawyer"
	ActorAdmin   = "admin"
	ActorGateway = "gateway"
)

// Actions recorded in the trail.
const (
	ActionOrderCreated    = "order.created"
	ActionOrderTransition = "order.transition"
	ActionDisputeOpened   = "dispute.opened"
	ActionDisputeResolved = "dispute.resolved"
	ActionPayoutCreated   = "payout.created"
	ActionPayoutUpdated   = "payout.updated"
	ActionRefundIssued    = "refund.issued"
	ActionSecurityEvent   = "security.violation"
)

// MaxRiskScore marks entries that must reach a human, such as forged
// webhook signatures.
const MaxRiskScore = 100

// ErrNotFound is returned when a record ID does not exist.
var ErrNotFound = errors.New("audit record not found")

type contextKey string

const (
	ctxActorType contextKey = "audit_actor_type"
	ctxActorID   contextKey = "audit_actor_id"
	ctxIPAddress contextKey = "audit_ip"
)

// WithActor attaches the acting party to the context so records carry
// who initiated the change.
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	ctx = context.WithValue(ctx, ctxActorType, actorType)
	return context.WithValue(ctx, ctxActorID, actorID)
}

// WithIP attaches the client IP for audit correlation.
func WithIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxIPAddress, ip)
}

// ActorFromContext returns the acting party, defaulting to system.
func ActorFromContext(ctx context.Context) (actorType, actorID string) {
	actorType = ActorSystem
	if v, ok := ctx.Value(ctxActorType).(string); ok && v != "" {
		actorType = v
	}
	if v, ok := ctx.Value(ctxActorID).(string); ok {
		actorID = v
	}
	return
}

func ipFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxIPAddress).(string); ok {
		return v
	}
	return ""
}

// Record is one immutable entry in the audit trail.
type Record struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"orderId"`
	Action     string    `json:"action"`
	ActorType  string    `json:"actorType"`
	ActorID    string    `json:"actorId,omitempty"`
	FromStatus string    `json:"fromStatus,omitempty"`
	ToStatus   string    `json:"toStatus,omitempty"`
	Amount     int64     `json:"amount,omitempty"`
	Currency   string    `json:"currency,omitempty"`
	Reference  string    `json:"reference,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Note       string    `json:"note,omitempty"`
	RiskScore  int       `json:"riskScore,omitempty"`
	RequestID  string    `json:"requestId,omitempty"`
	IPAddress  string    `json:"ipAddress,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// NewRecord builds a record for an order action, filling the actor,
// IP, and ID from the context and idgen.
func NewRecord(ctx context.Context, orderID, action string) *Record {
	actorType, actorID := ActorFromContext(ctx)
	return &Record{
		ID:        idgen.WithPrefix(idgen.PrefixAudit),
		OrderID:   orderID,
		Action:    action,
		ActorType: actorType,
		ActorID:   actorID,
		RequestID: logging.RequestID(ctx),
		IPAddress: ipFromContext(ctx),
	}
}

// Recorder persists audit records.
type Recorder interface {
	// Append writes a new record. Records are never updated or deleted.
	Append(ctx context.Context, rec *Record) error
	// ListByOrder returns records for an order, oldest first.
	ListByOrder(ctx context.Context, orderID string, limit int) ([]*Record, error)
	// AppendNote adds a resolution note to an existing record. All
	// other fields stay frozen.
	AppendNote(ctx context.Context, recordID, note string) error
}
