package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/advoflow/advoflow/internal/audit"
	"github.com/advoflow/advoflow/internal/clock"
	"github.com/advoflow/advoflow/internal/fees"
	"github.com/advoflow/advoflow/internal/gateway"
	"github.com/advoflow/advoflow/internal/idgen"
	"github.com/advoflow/advoflow/internal/metrics"
	"github.com/advoflow/advoflow/internal/payee"
	"github.com/advoflow/advoflow/internal/retry"
	"github.com/advoflow/advoflow/internal/traces"
)

const (
	// DefaultHoldPeriod applies when no hold scheduler is configured.
	DefaultHoldPeriod = 7 * 24 * time.Hour

	maxConflictRetries = 5
	conflictBaseDelay  = 20 * time.Millisecond
)

// PayeeDirectory answers whether a lawyer can receive payouts.
type PayeeDirectory interface {
	Eligible(ctx context.Context, lawyerID string) (*payee.Profile, error)
}

// HoldScheduler decides when a funded order becomes release-eligible.
type HoldScheduler interface {
	HoldUntil(ctx context.Context, lawyerID string, fundedAt time.Time) (time.Time, error)
}

// PayoutEnqueuer creates the payout when an order completes. It must
// be idempotent per order.
type PayoutEnqueuer interface {
	EnqueueForOrder(ctx context.Context, o *Order) error
}

// Alerter pushes order events to interested listeners. Optional.
type Alerter interface {
	Notify(event string, payload map[string]string)
}

// Service owns the order lifecycle.
type Service struct {
	store   Store
	auditor audit.Recorder
	payees  PayeeDirectory
	gw      gateway.PaymentGateway
	rates   fees.Rates
	logger  *slog.Logger

	holds   HoldScheduler
	payouts PayoutEnqueuer
	alerts  Alerter
	clock   clock.Clock

	// locks serializes writes per order within this process. The
	// version check in the store covers concurrent processes.
	locks sync.Map
}

// NewService creates the order service. The store must share its audit
// sink with rec so transition records and reads agree.
func NewService(store Store, rec audit.Recorder, payees PayeeDirectory, gw gateway.PaymentGateway, rates fees.Rates, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		auditor: rec,
		payees:  payees,
		gw:      gw,
		rates:   rates,
		logger:  logger,
		clock:   clock.System{},
	}
}

// WithHolds sets the hold scheduler.
func (s *Service) WithHolds(h HoldScheduler) *Service { s.holds = h; return s }

// WithPayouts sets the payout enqueuer.
func (s *Service) WithPayouts(p PayoutEnqueuer) *Service { s.payouts = p; return s }

// WithAlerts sets the alert sink.
func (s *Service) WithAlerts(a Alerter) *Service { s.alerts = a; return s }

// WithClock overrides the clock (tests).
func (s *Service) WithClock(c clock.Clock) *Service { s.clock = c; return s }

func (s *Service) orderLock(id string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// CreateRequest carries the fields for a new order.
type CreateRequest struct {
	ClientID    string `json:"clientId"`
	LawyerID    string `json:"lawyerId"`
	CaseRef     string `json:"caseRef"`
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}

// CreateResult is an order plus the one-time client secret the client
// uses to complete payment. The secret is never persisted.
type CreateResult struct {
	Order        *Order `json:"order"`
	ClientSecret string `json:"clientSecret,omitempty"`
}

// Create validates the request, prices it, opens the gateway charge,
// and persists the order in status created.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	ctx, span := traces.StartSpan(ctx, "order.create",
		traces.PartyID(req.LawyerID), traces.Amount(req.Amount))
	defer span.End()

	clientID := strings.TrimSpace(req.ClientID)
	lawyerID := strings.TrimSpace(req.LawyerID)
	if clientID == "" || lawyerID == "" {
		return nil, ErrInvalidParty
	}
	if clientID == lawyerID {
		return nil, ErrSameParty
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, req.Amount)
	}

	if _, err := s.payees.Eligible(ctx, lawyerID); err != nil {
		if errors.Is(err, payee.ErrNotFound) || errors.Is(err, payee.ErrNotVerified) {
			return nil, fmt.Errorf("%w: %s", ErrIneligiblePayee, lawyerID)
		}
		return nil, err
	}

	breakdown, err := fees.Split(req.Amount, s.rates)
	if err != nil {
		return nil, err
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "usd"
	}

	now := s.clock.Now()
	o := &Order{
		ID:           idgen.WithPrefix(idgen.PrefixOrder),
		ClientID:     clientID,
		LawyerID:     lawyerID,
		CaseRef:      strings.TrimSpace(req.CaseRef),
		Description:  strings.TrimSpace(req.Description),
		Amount:       breakdown.Base,
		PlatformFee:  breakdown.Fee,
		TaxAmount:    breakdown.Tax,
		ChargeTotal:  breakdown.Total,
		LawyerAmount: breakdown.LawyerNet,
		Currency:     currency,
		Status:       StatusCreated,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	o.TransferGroup = o.ID

	charge, err := s.gw.CreateCharge(ctx, gateway.ChargeRequest{
		OrderID:       o.ID,
		Amount:        o.ChargeTotal,
		Currency:      o.Currency,
		Description:   o.Description,
		TransferGroup: o.TransferGroup,
	})
	if err != nil {
		return nil, fmt.Errorf("open charge: %w", err)
	}
	o.ChargeRef = charge.Ref

	rec := audit.NewRecord(ctx, o.ID, audit.ActionOrderCreated)
	rec.ToStatus = string(StatusCreated)
	rec.Amount = o.ChargeTotal
	rec.Currency = o.Currency
	rec.Reference = o.ChargeRef
	rec.Detail = fmt.Sprintf("base %d, fee %d, tax %d", o.Amount, o.PlatformFee, o.TaxAmount)

	if err := s.store.Create(ctx, o, rec); err != nil {
		// The charge exists at the gateway but the order does not.
		// The client never gets the secret, so the charge is never
		// confirmed and expires unfunded.
		s.logger.Error("order insert failed after charge was opened",
			"order_id", o.ID, "charge_ref", o.ChargeRef, "error", err)
		return nil, fmt.Errorf("store order: %w", err)
	}

	metrics.OrdersCreatedTotal.Inc()
	s.notify("order.created", o)
	return &CreateResult{Order: o, ClientSecret: charge.ClientSecret}, nil
}

// Get returns an order.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.store.Get(ctx, id)
}

// ListByParty returns a party's orders, newest first.
func (s *Service) ListByParty(ctx context.Context, partyID string, limit int) ([]*Order, error) {
	return s.store.ListByParty(ctx, partyID, limit)
}

// AuditTrail returns the order's audit records, oldest first.
func (s *Service) AuditTrail(ctx context.Context, orderID string, limit int) ([]*audit.Record, error) {
	if _, err := s.store.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return s.auditor.ListByOrder(ctx, orderID, limit)
}

// transitionResult carries what applyTransition decided.
type transitionResult struct {
	order *Order
	noop  bool
}

// applyTransition moves an order to target under the per-order lock
// with optimistic retries. mutate may adjust fields before the write;
// decorate may adjust the audit record. A same-state request is an
// idempotent no-op and writes nothing.
func (s *Service) applyTransition(ctx context.Context, orderID string, target Status,
	action string, mutate func(*Order) error, decorate func(*Order, *audit.Record)) (*transitionResult, error) {

	ctx, span := traces.StartSpan(ctx, "order.transition",
		traces.OrderID(orderID), traces.OrderStatus(string(target)))
	defer span.End()

	if !target.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, target)
	}

	mu := s.orderLock(orderID)
	mu.Lock()
	defer mu.Unlock()

	res := &transitionResult{}
	err := retry.Do(ctx, maxConflictRetries, conflictBaseDelay, func() error {
		o, err := s.store.Get(ctx, orderID)
		if err != nil {
			return retry.Permanent(err)
		}

		if o.Status == target {
			res.order = o
			res.noop = true
			return nil
		}
		if o.Status.Terminal() {
			return retry.Permanent(fmt.Errorf("%w: %s", ErrTerminalState, o.Status))
		}
		if !o.Status.CanTransitionTo(target) {
			return retry.Permanent(fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, o.Status, target))
		}

		from := o.Status
		now := s.clock.Now()
		if mutate != nil {
			if err := mutate(o); err != nil {
				return retry.Permanent(err)
			}
		}
		o.Status = target
		o.UpdatedAt = now
		s.stampTransition(ctx, o, target, now)

		rec := audit.NewRecord(ctx, o.ID, action)
		rec.FromStatus = string(from)
		rec.ToStatus = string(target)
		rec.Amount = o.Amount
		rec.Currency = o.Currency
		rec.Reference = o.ChargeRef
		if decorate != nil {
			decorate(o, rec)
		}

		if err := s.store.Update(ctx, o, o.Version, rec); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				return err // retryable
			}
			return retry.Permanent(err)
		}
		res.order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !res.noop {
		metrics.OrderTransitionsTotal.WithLabelValues(string(target)).Inc()
		if target == StatusCompleted && res.order.FundedAt != nil {
			metrics.EscrowHoldDuration.Observe(s.clock.Now().Sub(*res.order.FundedAt).Seconds())
		}
	}
	return res, nil
}

// stampTransition records per-status timestamps and schedules the
// escrow hold when funds land.
func (s *Service) stampTransition(ctx context.Context, o *Order, target Status, now time.Time) {
	switch target {
	case StatusFunded:
		o.FundedAt = &now
		releaseAt := now.Add(DefaultHoldPeriod)
		if s.holds != nil {
			at, err := s.holds.HoldUntil(ctx, o.LawyerID, now)
			if err != nil {
				s.logger.Warn("hold scheduler failed, using default period",
					"order_id", o.ID, "error", err)
			} else {
				releaseAt = at
			}
		}
		o.ReleaseEligibleAt = &releaseAt
	case StatusDelivered:
		o.DeliveredAt = &now
	case StatusCompleted, StatusRefunded, StatusCancelled:
		o.ClosedAt = &now
	}
}

// Transition moves an order to target with no extra mutation. Used by
// the accept/deliver/cancel endpoints.
func (s *Service) Transition(ctx context.Context, orderID string, target Status) (*Order, error) {
	res, err := s.applyTransition(ctx, orderID, target, audit.ActionOrderTransition, nil, nil)
	if err != nil {
		return nil, err
	}
	if !res.noop {
		s.afterTransition(ctx, res.order)
	}
	return res.order, nil
}

// Accept moves a funded order to in_progress.
func (s *Service) Accept(ctx context.Context, orderID string) (*Order, error) {
	return s.Transition(ctx, orderID, StatusInProgress)
}

// Deliver marks the work as delivered, starting the release countdown.
func (s *Service) Deliver(ctx context.Context, orderID string) (*Order, error) {
	return s.Transition(ctx, orderID, StatusDelivered)
}

// Complete releases escrow to the lawyer. Legal only from delivered.
func (s *Service) Complete(ctx context.Context, orderID string) (*Order, error) {
	return s.Transition(ctx, orderID, StatusCompleted)
}

// Cancel voids an order before work begins.
func (s *Service) Cancel(ctx context.Context, orderID string) (*Order, error) {
	return s.Transition(ctx, orderID, StatusCancelled)
}

// afterTransition runs side effects that happen outside the write:
// payout enqueue on completion and listener notifications. The payout
// service is idempotent per order, so a crash between the write and
// the enqueue is healed by the reconcile sweep.
func (s *Service) afterTransition(ctx context.Context, o *Order) {
	if o.Status == StatusCompleted && s.payouts != nil {
		if err := s.payouts.EnqueueForOrder(ctx, o); err != nil {
			s.logger.Error("CRITICAL: order completed but payout enqueue failed",
				"order_id", o.ID, "lawyer_id", o.LawyerID,
				"amount", o.LawyerAmount, "error", err)
		}
	}
	s.notify("order."+string(o.Status), o)
}

func (s *Service) notify(event string, o *Order) {
	if s.alerts == nil {
		return
	}
	s.alerts.Notify(event, map[string]string{
		"order_id": o.ID,
		"status":   string(o.Status),
		"client":   o.ClientID,
		"lawyer":   o.LawyerID,
	})
}
