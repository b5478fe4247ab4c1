package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/advoflow/advoflow/internal/audit"
	"github.com/advoflow/advoflow/internal/idgen"
	"github.com/advoflow/advoflow/internal/metrics"
)

// OpenDispute freezes an order. Legal from funded, in_progress, and
// delivered; freezing a delivered order also stops the auto-release
// countdown because the sweeper only looks at delivered orders.
func (s *Service) OpenDispute(ctx context.Context, orderID, raisedBy, reason string) (*Order, error) {
	raisedBy = strings.TrimSpace(raisedBy)
	reason = strings.TrimSpace(reason)

	res, err := s.applyTransition(ctx, orderID, StatusDisputed, audit.ActionDisputeOpened,
		func(o *Order) error {
			if o.Dispute != nil && !o.Dispute.Resolved() {
				// Already frozen; the same-state no-op path handles
				// this, but guard against racing openers anyway.
				return nil
			}
			o.Dispute = &Dispute{
				ID:       idgen.WithPrefix(idgen.PrefixDispute),
				RaisedBy: raisedBy,
				Reason:   reason,
				OpenedAt: s.clock.Now(),
			}
			return nil
		},
		func(o *Order, rec *audit.Record) {
			rec.Detail = reason
			if o.Dispute != nil {
				rec.Reference = o.Dispute.ID
			}
		})
	if err != nil {
		return nil, err
	}
	if !res.noop {
		metrics.DisputesOpenedTotal.Inc()
		s.notify("dispute.opened", res.order)
	}
	return res.order, nil
}

// ResolveDispute records a ruling and settles the order: favor_lawyer
// completes it (payout), favor_client refunds the client in full.
func (s *Service) ResolveDispute(ctx context.Context, orderID string, outcome DisputeOutcome, note string) (*Order, error) {
	var target Status
	switch outcome {
	case OutcomeFavorLawyer:
		target = StatusCompleted
	case OutcomeFavorClient:
		target = StatusRefunded
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}

	res, err := s.applyTransition(ctx, orderID, target, audit.ActionDisputeResolved,
		func(o *Order) error {
			if o.Status != StatusDisputed || o.Dispute == nil {
				return ErrNoDispute
			}
			if o.Dispute.Resolved() {
				return ErrAlreadyResolved
			}
			now := s.clock.Now()
			o.Dispute.Outcome = outcome
			o.Dispute.Note = strings.TrimSpace(note)
			o.Dispute.ResolvedAt = &now
			return nil
		},
		func(o *Order, rec *audit.Record) {
			rec.Detail = string(outcome)
			rec.Note = strings.TrimSpace(note)
			if o.Dispute != nil {
				rec.Reference = o.Dispute.ID
			}
		})
	if err != nil {
		// A ruling in the opposite direction targets the other terminal
		// status and trips the terminal check before the dispute is
		// examined; report it as a double resolve, not a dead order.
		if errors.Is(err, ErrTerminalState) {
			if o, gerr := s.store.Get(ctx, orderID); gerr == nil && o.Dispute.Resolved() {
				return nil, fmt.Errorf("%w: already ruled %s", ErrAlreadyResolved, o.Dispute.Outcome)
			}
		}
		return nil, err
	}
	if res.noop {
		// Terminal already; a second resolve is not a silent success.
		if res.order.Dispute.Resolved() {
			return nil, ErrAlreadyResolved
		}
		return nil, ErrNoDispute
	}

	metrics.DisputesResolvedTotal.WithLabelValues(string(outcome)).Inc()

	o := res.order
	if outcome == OutcomeFavorClient {
		s.issueRefund(ctx, o)
	}
	s.afterTransition(ctx, o)
	return o, nil
}

// issueRefund returns the full charge (base + fee + tax) to the
// client. A gateway failure is logged and audited for manual retry;
// the order stays refunded either way.
func (s *Service) issueRefund(ctx context.Context, o *Order) {
	rf, err := s.gw.CreateRefund(ctx, o.ChargeRef, 0, "requested_by_customer")
	rec := audit.NewRecord(ctx, o.ID, audit.ActionRefundIssued)
	rec.Amount = o.ChargeTotal
	rec.Currency = o.Currency
	if err != nil {
		s.logger.Error("CRITICAL: dispute resolved for client but refund failed",
			"order_id", o.ID, "charge_ref", o.ChargeRef, "error", err)
		rec.Detail = "refund failed: " + err.Error()
	} else {
		rec.Reference = rf.Ref
		rec.Detail = "full refund"
	}
	if aerr := s.auditor.Append(ctx, rec); aerr != nil {
		s.logger.Error("audit append failed for refund", "order_id", o.ID, "error", aerr)
	}
}

// MarkFundedByChargeRef is the reconciliation entry for a confirmed
// charge. Replayed events land on the same-state no-op path.
func (s *Service) MarkFundedByChargeRef(ctx context.Context, chargeRef string) (*Order, error) {
	o, err := s.store.GetByChargeRef(ctx, chargeRef)
	if err != nil {
		return nil, err
	}
	return s.Transition(ctx, o.ID, StatusFunded)
}

// MarkChargeFailedByRef cancels an order whose charge failed. A stale
// failure arriving after the order moved past created is ignored.
func (s *Service) MarkChargeFailedByRef(ctx context.Context, chargeRef string) (*Order, error) {
	o, err := s.store.GetByChargeRef(ctx, chargeRef)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusCreated && o.Status != StatusCancelled {
		s.logger.Info("ignoring stale charge failure",
			"order_id", o.ID, "status", string(o.Status))
		return o, nil
	}
	return s.Transition(ctx, o.ID, StatusCancelled)
}

// OpenDisputeByChargeRef freezes an order when the gateway reports a
// card dispute (chargeback).
func (s *Service) OpenDisputeByChargeRef(ctx context.Context, chargeRef, reason string) (*Order, error) {
	o, err := s.store.GetByChargeRef(ctx, chargeRef)
	if err != nil {
		return nil, err
	}
	return s.OpenDispute(ctx, o.ID, audit.ActorGateway, reason)
}

// ResolveDisputeByChargeRef settles a gateway-reported dispute. won
// means the platform kept the funds (lawyer side), lost means the
// cardholder prevailed.
func (s *Service) ResolveDisputeByChargeRef(ctx context.Context, chargeRef, gatewayStatus string) (*Order, error) {
	o, err := s.store.GetByChargeRef(ctx, chargeRef)
	if err != nil {
		return nil, err
	}
	outcome := OutcomeFavorClient
	if gatewayStatus == "won" {
		outcome = OutcomeFavorLawyer
	}
	return s.ResolveDispute(ctx, o.ID, outcome, "gateway dispute "+gatewayStatus)
}

// AutoComplete releases a delivered order whose hold has passed. The
// sweeper calls this; a dispute raised between the listing and this
// call surfaces as ErrIllegalTransition and the order is skipped.
func (s *Service) AutoComplete(ctx context.Context, orderID string) (*Order, error) {
	res, err := s.applyTransition(ctx, orderID, StatusCompleted, audit.ActionOrderTransition,
		func(o *Order) error {
			if o.Status != StatusDelivered {
				return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, o.Status, StatusCompleted)
			}
			if o.ReleaseEligibleAt == nil || o.ReleaseEligibleAt.After(s.clock.Now()) {
				return fmt.Errorf("%w: hold has not elapsed", ErrIllegalTransition)
			}
			return nil
		},
		func(_ *Order, rec *audit.Record) {
			rec.Detail = "auto-release after hold"
		})
	if err != nil {
		return nil, err
	}
	if !res.noop {
		s.afterTransition(ctx, res.order)
	}
	return res.order, nil
}

// ReleaseEligible lists orders the sweeper should release as of now.
func (s *Service) ReleaseEligible(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return s.store.ListReleaseEligible(ctx, now, limit)
}

// IsStaleEventError reports whether reconciliation should treat err as
// an expected consequence of event ordering rather than a failure.
func IsStaleEventError(err error) bool {
	return errors.Is(err, ErrIllegalTransition) ||
		errors.Is(err, ErrTerminalState) ||
		errors.Is(err, ErrAlreadyResolved)
}
