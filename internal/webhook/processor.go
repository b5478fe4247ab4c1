package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/advoflow/advoflow/internal/audit"
	"github.com/advoflow/advoflow/internal/gateway"
	"github.com/advoflow/advoflow/internal/metrics"
	"github.com/advoflow/advoflow/internal/order"
	"github.com/advoflow/advoflow/internal/payout"
	"github.com/advoflow/advoflow/internal/traces"
)

// Orders is the slice of the order service that charge and dispute
// events reconcile against.
type Orders interface {
	MarkFundedByChargeRef(ctx context.Context, chargeRef string) (*order.Order, error)
	MarkChargeFailedByRef(ctx context.Context, chargeRef string) (*order.Order, error)
	OpenDisputeByChargeRef(ctx context.Context, chargeRef, reason string) (*order.Order, error)
	ResolveDisputeByChargeRef(ctx context.Context, chargeRef, gatewayStatus string) (*order.Order, error)
}

// Payouts is the slice of the payout service that transfer events
// reconcile against.
type Payouts interface {
	MarkTransferStatus(ctx context.Context, transferRef string, status payout.Status) (*payout.Payout, error)
}

// Verifier checks webhook signatures. The payment gateway implements it.
type Verifier interface {
	VerifyWebhook(payload []byte, signature string) error
}

// Alerter receives security notifications. Optional.
type Alerter interface {
	Notify(event string, payload map[string]string)
}

// Result classifies how a delivery was handled, for logging and
// metrics.
type Result string

const (
	ResultProcessed Result = "processed"
	ResultDuplicate Result = "duplicate"
	ResultStale     Result = "stale"
	ResultUnmatched Result = "unmatched"
	ResultUnhandled Result = "unhandled"
)

// Processor verifies, dedupes, and dispatches gateway deliveries.
type Processor struct {
	verifier Verifier
	store    Store
	orders   Orders
	payouts  Payouts
	auditor  audit.Recorder
	alerts   Alerter
	logger   *slog.Logger
}

// NewProcessor wires the webhook pipeline.
func NewProcessor(verifier Verifier, store Store, orders Orders, payouts Payouts, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		verifier: verifier,
		store:    store,
		orders:   orders,
		payouts:  payouts,
		logger:   logger,
	}
}

// WithAudit records signature failures in the audit trail.
func (p *Processor) WithAudit(rec audit.Recorder) *Processor { p.auditor = rec; return p }

// WithAlerts pushes security violations to the ops alert channel.
func (p *Processor) WithAlerts(a Alerter) *Processor { p.alerts = a; return p }

// Process handles one raw delivery.
//
// Error classes map to HTTP statuses at the handler: ErrBadSignature
// and ErrMalformed reject the delivery (400), a nil error acknowledges
// it (200), anything else asks the gateway to retry (500).
func (p *Processor) Process(ctx context.Context, payload []byte, signature string) (Result, error) {
	ctx, span := traces.StartSpan(ctx, "webhook.process")
	defer span.End()

	if err := p.verifier.VerifyWebhook(payload, signature); err != nil {
		p.recordViolation(ctx)
		return "", gateway.ErrBadSignature
	}

	evt, err := Decode(payload)
	if err != nil {
		return "", err
	}

	first, err := p.store.FirstDelivery(ctx, evt.EventID())
	if err != nil {
		return "", fmt.Errorf("dedupe check: %w", err)
	}
	if !first {
		p.logger.Debug("duplicate webhook delivery acknowledged", "event_id", evt.EventID())
		metrics.WebhookEventsTotal.WithLabelValues(string(ResultDuplicate)).Inc()
		return ResultDuplicate, nil
	}

	result, err := p.dispatch(ctx, evt)
	if err != nil {
		// Release the ID so the gateway's retry is not swallowed by
		// the dedupe check.
		if ferr := p.store.Forget(ctx, evt.EventID()); ferr != nil {
			p.logger.Error("failed to release event after dispatch error",
				"event_id", evt.EventID(), "error", ferr)
		}
		return "", err
	}
	metrics.WebhookEventsTotal.WithLabelValues(string(result)).Inc()
	return result, nil
}

// recordViolation audits a forged or corrupted delivery at maximum
// risk and raises an ops alert. State is never touched.
func (p *Processor) recordViolation(ctx context.Context) {
	p.logger.Warn("webhook signature verification failed")
	if p.auditor != nil {
		rec := audit.NewRecord(ctx, "", audit.ActionSecurityEvent)
		rec.ActorType = audit.ActorGateway
		rec.RiskScore = audit.MaxRiskScore
		rec.Detail = "webhook signature verification failed"
		if err := p.auditor.Append(ctx, rec); err != nil {
			p.logger.Error("failed to audit security violation", "error", err)
		}
	}
	if p.alerts != nil {
		p.alerts.Notify("security.violation", map[string]string{
			"source": "gateway_webhook",
			"detail": "signature verification failed",
		})
	}
}

func (p *Processor) dispatch(ctx context.Context, evt Event) (Result, error) {
	var err error
	switch e := evt.(type) {
	case ChargeSucceeded:
		_, err = p.orders.MarkFundedByChargeRef(ctx, e.ChargeRef)
	case ChargeFailed:
		_, err = p.orders.MarkChargeFailedByRef(ctx, e.ChargeRef)
	case DisputeOpened:
		_, err = p.orders.OpenDisputeByChargeRef(ctx, e.ChargeRef, e.Reason)
	case DisputeClosed:
		_, err = p.orders.ResolveDisputeByChargeRef(ctx, e.ChargeRef, e.Status)
	case TransferPaid:
		_, err = p.payouts.MarkTransferStatus(ctx, e.TransferRef, payout.StatusPaid)
	case TransferFailed:
		_, err = p.payouts.MarkTransferStatus(ctx, e.TransferRef, payout.StatusFailed)
	case TransferReversed:
		_, err = p.payouts.MarkTransferStatus(ctx, e.TransferRef, payout.StatusReversed)
	case Unknown:
		p.logger.Debug("unhandled webhook type acknowledged",
			"event_id", e.ID, "type", e.Type)
		return ResultUnhandled, nil
	default:
		return ResultUnhandled, nil
	}

	switch {
	case err == nil:
		return ResultProcessed, nil
	case errors.Is(err, order.ErrNotFound), errors.Is(err, payout.ErrNotFound):
		// A reference we never issued. Acknowledge so the gateway
		// stops retrying, but leave a trace for investigation.
		p.logger.Warn("webhook references unknown entity",
			"event_id", evt.EventID(), "error", err)
		return ResultUnmatched, nil
	case order.IsStaleEventError(err):
		p.logger.Info("stale webhook event dropped",
			"event_id", evt.EventID(), "error", err)
		return ResultStale, nil
	default:
		return "", err
	}
}
