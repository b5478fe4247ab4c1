package payout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/advoflow/advoflow/internal/audit"
	"github.com/advoflow/advoflow/internal/clock"
	"github.com/advoflow/advoflow/internal/gateway"
	"github.com/advoflow/advoflow/internal/idgen"
	"github.com/advoflow/advoflow/internal/metrics"
	"github.com/advoflow/advoflow/internal/order"
	"github.com/advoflow/advoflow/internal/payee"
	"github.com/advoflow/advoflow/internal/retry"
	"github.com/advoflow/advoflow/internal/traces"
)

const (
	transferRetries   = 3
	transferBaseDelay = 100 * time.Millisecond
)

// PayeeDirectory resolves the destination account for a lawyer.
type PayeeDirectory interface {
	Eligible(ctx context.Context, lawyerID string) (*payee.Profile, error)
}

// Service creates payouts when orders complete and reconciles their
// status from gateway events.
type Service struct {
	store   Store
	gw      gateway.PaymentGateway
	payees  PayeeDirectory
	auditor audit.Recorder
	logger  *slog.Logger
	clock   clock.Clock
}

// NewService creates the payout service.
func NewService(store Store, gw gateway.PaymentGateway, payees PayeeDirectory, rec audit.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		gw:      gw,
		payees:  payees,
		auditor: rec,
		logger:  logger,
		clock:   clock.System{},
	}
}

// WithClock overrides the clock (tests).
func (s *Service) WithClock(c clock.Clock) *Service { s.clock = c; return s }

var _ order.PayoutEnqueuer = (*Service)(nil)

// EnqueueForOrder creates and executes the payout for a completed
// order. Calling it again for the same order is a no-op, so the
// completion path and any reconcile sweep can both call it safely.
func (s *Service) EnqueueForOrder(ctx context.Context, o *order.Order) error {
	if existing, err := s.store.GetByOrder(ctx, o.ID); err == nil {
		s.logger.Debug("payout already exists for order",
			"order_id", o.ID, "payout_id", existing.ID, "status", string(existing.Status))
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	amount := o.LawyerAmount
	if amount <= 0 || amount > o.Amount {
		return fmt.Errorf("%w: %d of %d", ErrExceedsNet, amount, o.Amount)
	}

	profile, err := s.payees.Eligible(ctx, o.LawyerID)
	if err != nil {
		return fmt.Errorf("resolve payout destination: %w", err)
	}

	now := s.clock.Now()
	p := &Payout{
		ID:          idgen.WithPrefix(idgen.PrefixPayout),
		OrderID:     o.ID,
		LawyerID:    o.LawyerID,
		Destination: profile.AccountRef,
		Amount:      amount,
		Fee:         o.PlatformFee,
		Currency:    o.Currency,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	// An order can complete ahead of its escrow release date (early
	// client confirmation, or a dispute ruled for the lawyer). The
	// payout row is created either way, but the funds wait out the
	// hold.
	if o.ReleaseEligibleAt != nil && o.ReleaseEligibleAt.After(now) {
		until := *o.ReleaseEligibleAt
		p.OnHold = true
		p.HoldUntil = &until
		p.HoldReason = "escrow hold active"
	}
	if err := s.store.Create(ctx, p); err != nil {
		if errors.Is(err, ErrDuplicate) {
			// Lost a race with another completer; their payout stands.
			return nil
		}
		return err
	}

	if p.OnHold {
		rec := audit.NewRecord(ctx, p.OrderID, audit.ActionPayoutCreated)
		rec.Amount = p.Amount
		rec.Currency = p.Currency
		rec.Detail = "held: " + p.HoldReason
		s.append(ctx, rec)
		s.logger.Info("payout held",
			"payout_id", p.ID, "order_id", p.OrderID, "hold_until", p.HoldUntil)
		metrics.PayoutsTotal.WithLabelValues(string(StatusPending)).Inc()
		return nil
	}

	if err := s.executeTransfer(ctx, p, o.TransferGroup); err != nil {
		return err
	}
	return nil
}

// executeTransfer asks the gateway to move the funds, retrying
// transient failures. The payout row records the result either way.
func (s *Service) executeTransfer(ctx context.Context, p *Payout, transferGroup string) error {
	ctx, span := traces.StartSpan(ctx, "payout.transfer",
		traces.PayoutID(p.ID), traces.OrderID(p.OrderID), traces.Amount(p.Amount))
	defer span.End()

	var tr *gateway.Transfer
	err := retry.Do(ctx, transferRetries, transferBaseDelay, func() error {
		var terr error
		tr, terr = s.gw.CreateTransfer(ctx, gateway.TransferRequest{
			PayoutID:      p.ID,
			OrderID:       p.OrderID,
			Amount:        p.Amount,
			Currency:      p.Currency,
			Destination:   p.Destination,
			TransferGroup: transferGroup,
		})
		if terr != nil && !errors.Is(terr, gateway.ErrUnavailable) {
			return retry.Permanent(terr)
		}
		return terr
	})

	now := s.clock.Now()
	rec := audit.NewRecord(ctx, p.OrderID, audit.ActionPayoutCreated)
	rec.Amount = p.Amount
	rec.Currency = p.Currency

	if err != nil {
		p.Status = StatusFailed
		p.FailureReason = err.Error()
		p.UpdatedAt = now
		if uerr := s.store.Update(ctx, p); uerr != nil {
			s.logger.Error("failed to record failed payout", "payout_id", p.ID, "error", uerr)
		}
		rec.Detail = "transfer failed: " + err.Error()
		s.append(ctx, rec)
		metrics.PayoutsTotal.WithLabelValues(string(StatusFailed)).Inc()
		return fmt.Errorf("transfer for payout %s: %w", p.ID, err)
	}

	p.Status = StatusInTransit
	p.TransferRef = tr.Ref
	p.UpdatedAt = now
	if uerr := s.store.Update(ctx, p); uerr != nil {
		s.logger.Error("CRITICAL: transfer sent but payout update failed",
			"payout_id", p.ID, "transfer_ref", tr.Ref, "error", uerr)
		return uerr
	}
	rec.Reference = tr.Ref
	rec.Detail = "transfer accepted"
	s.append(ctx, rec)
	metrics.PayoutsTotal.WithLabelValues(string(StatusInTransit)).Inc()

	s.logger.Info("payout in transit",
		"payout_id", p.ID, "order_id", p.OrderID, "amount", p.Amount, "transfer_ref", tr.Ref)
	return nil
}

// Retry re-runs the gateway transfer for a failed or held payout. A
// hold whose release date has not passed is left untouched; once it
// has, the retry clears the hold and moves the funds.
func (s *Service) Retry(ctx context.Context, payoutID, transferGroup string) (*Payout, error) {
	p, err := s.store.Get(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusFailed && p.Status != StatusPending {
		return p, nil
	}
	if p.OnHold {
		if p.HoldUntil != nil && p.HoldUntil.After(s.clock.Now()) {
			return p, nil
		}
		p.OnHold = false
		p.HoldReason = ""
	}
	p.FailureReason = ""
	if transferGroup == "" {
		transferGroup = p.OrderID
	}
	if err := s.executeTransfer(ctx, p, transferGroup); err != nil {
		return nil, err
	}
	return p, nil
}

// Cancel voids a payout that has not reached the gateway. Cancelling
// twice is a no-op; a payout in transit or settled cannot be voided.
func (s *Service) Cancel(ctx context.Context, payoutID, reason string) (*Payout, error) {
	p, err := s.store.Get(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if p.Status == StatusCancelled {
		return p, nil
	}
	if p.Status != StatusPending && p.Status != StatusFailed {
		return nil, fmt.Errorf("%w: %s", ErrNotCancellable, p.Status)
	}

	p.Status = StatusCancelled
	p.OnHold = false
	p.HoldReason = ""
	p.UpdatedAt = s.clock.Now()
	if err := s.store.Update(ctx, p); err != nil {
		return nil, err
	}

	rec := audit.NewRecord(ctx, p.OrderID, audit.ActionPayoutUpdated)
	rec.Reference = p.ID
	rec.Detail = "cancelled: " + reason
	rec.Amount = p.Amount
	rec.Currency = p.Currency
	s.append(ctx, rec)
	metrics.PayoutsTotal.WithLabelValues(string(StatusCancelled)).Inc()
	s.logger.Info("payout cancelled", "payout_id", p.ID, "order_id", p.OrderID, "reason", reason)
	return p, nil
}

// MarkTransferStatus reconciles a gateway transfer event onto the
// payout. Unknown refs return ErrNotFound.
func (s *Service) MarkTransferStatus(ctx context.Context, transferRef string, status Status) (*Payout, error) {
	switch status {
	case StatusPaid, StatusFailed, StatusReversed:
	default:
		return nil, fmt.Errorf("unsupported transfer status %q", status)
	}

	p, err := s.store.GetByTransferRef(ctx, transferRef)
	if err != nil {
		return nil, err
	}
	if p.Status == status {
		return p, nil
	}
	// Paid is final; a late failed/reversed event after paid is a
	// genuine reversal and is applied.
	p.Status = status
	p.UpdatedAt = s.clock.Now()
	if err := s.store.Update(ctx, p); err != nil {
		return nil, err
	}

	rec := audit.NewRecord(ctx, p.OrderID, audit.ActionPayoutUpdated)
	rec.Reference = transferRef
	rec.Detail = string(status)
	rec.Amount = p.Amount
	rec.Currency = p.Currency
	s.append(ctx, rec)
	metrics.PayoutsTotal.WithLabelValues(string(status)).Inc()
	return p, nil
}

// GetByOrder returns the payout for an order.
func (s *Service) GetByOrder(ctx context.Context, orderID string) (*Payout, error) {
	return s.store.GetByOrder(ctx, orderID)
}

// ListByLawyer returns a lawyer's payouts, newest first.
func (s *Service) ListByLawyer(ctx context.Context, lawyerID string, limit int) ([]*Payout, error) {
	return s.store.ListByLawyer(ctx, lawyerID, limit)
}

func (s *Service) append(ctx context.Context, rec *audit.Record) {
	if err := s.auditor.Append(ctx, rec); err != nil {
		s.logger.Error("audit append failed", "order_id", rec.OrderID, "error", err)
	}
}
