package payout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/advoflow/advoflow/internal/audit"
	"github.com/advoflow/advoflow/internal/clock"
	"github.com/advoflow/advoflow/internal/gateway"
	"github.com/advoflow/advoflow/internal/logging"
	"github.com/advoflow/advoflow/internal/order"
	"github.com/advoflow/advoflow/internal/payee"
)

type stubPayees struct{}

func (stubPayees) Eligible(_ context.Context, lawyerID string) (*payee.Profile, error) {
	return &payee.Profile{LawyerID: lawyerID, Verified: true, AccountRef: "acct_" + lawyerID}, nil
}

func newService(t *testing.T) (*Service, *gateway.Stub, *audit.MemoryRecorder) {
	t.Helper()
	gw := gateway.NewStub("whsec_test")
	rec := audit.NewMemoryRecorder()
	svc := NewService(NewMemoryStore(), gw, stubPayees{}, rec, logging.Discard()).
		WithClock(clock.NewFake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
	return svc, gw, rec
}

func completedOrder() *order.Order {
	return &order.Order{
		ID:            "ord_1",
		LawyerID:      "lw_1",
		Amount:        10000,
		PlatformFee:   200,
		LawyerAmount:  9800,
		Currency:      "usd",
		Status:        order.StatusCompleted,
		TransferGroup: "ord_1",
	}
}

func TestEnqueueForOrder(t *testing.T) {
	svc, gw, rec := newService(t)
	ctx := context.Background()

	if err := svc.EnqueueForOrder(ctx, completedOrder()); err != nil {
		t.Fatalf("EnqueueForOrder: %v", err)
	}

	p, err := svc.GetByOrder(ctx, "ord_1")
	if err != nil {
		t.Fatalf("GetByOrder: %v", err)
	}
	if p.Status != StatusInTransit {
		t.Errorf("status = %s, want in_transit", p.Status)
	}
	if p.Amount != 9800 {
		t.Errorf("amount = %d, want 9800", p.Amount)
	}
	if p.Fee != 200 {
		t.Errorf("fee = %d, want 200", p.Fee)
	}
	if p.Destination != "acct_lw_1" {
		t.Errorf("destination = %q", p.Destination)
	}
	if p.TransferRef == "" {
		t.Error("transfer ref not recorded")
	}

	transfers := gw.Transfers()
	if len(transfers) != 1 || transfers[0].Amount != 9800 || transfers[0].TransferGroup != "ord_1" {
		t.Errorf("transfers = %+v", transfers)
	}

	recs := rec.Records()
	if len(recs) != 1 || recs[0].Action != audit.ActionPayoutCreated {
		t.Errorf("audit = %+v", recs)
	}
}

func TestEnqueueIsIdempotent(t *testing.T) {
	svc, gw, _ := newService(t)
	ctx := context.Background()
	o := completedOrder()

	if err := svc.EnqueueForOrder(ctx, o); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if err := svc.EnqueueForOrder(ctx, o); err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if got := len(gw.Transfers()); got != 1 {
		t.Errorf("transfers = %d, want 1 (idempotent)", got)
	}
}

func TestEnqueueRejectsExcessAmount(t *testing.T) {
	svc, _, _ := newService(t)
	o := completedOrder()
	o.LawyerAmount = o.Amount + 1

	if err := svc.EnqueueForOrder(context.Background(), o); !errors.Is(err, ErrExceedsNet) {
		t.Errorf("err = %v, want ErrExceedsNet", err)
	}
}

func TestEnqueueRecordsTransferFailure(t *testing.T) {
	svc, gw, _ := newService(t)
	gw.FailTransfers = true

	err := svc.EnqueueForOrder(context.Background(), completedOrder())
	if err == nil {
		t.Fatal("expected transfer failure")
	}

	p, gerr := svc.GetByOrder(context.Background(), "ord_1")
	if gerr != nil {
		t.Fatalf("GetByOrder: %v", gerr)
	}
	if p.Status != StatusFailed || p.FailureReason == "" {
		t.Errorf("payout = %+v", p)
	}
}

func TestRetryFailedPayout(t *testing.T) {
	svc, gw, _ := newService(t)
	gw.FailTransfers = true
	_ = svc.EnqueueForOrder(context.Background(), completedOrder())

	gw.FailTransfers = false
	p, _ := svc.GetByOrder(context.Background(), "ord_1")
	retried, err := svc.Retry(context.Background(), p.ID, "ord_1")
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if retried.Status != StatusInTransit {
		t.Errorf("status = %s, want in_transit", retried.Status)
	}
	if retried.FailureReason != "" {
		t.Errorf("failure reason not cleared: %q", retried.FailureReason)
	}
}

func TestRetryInTransitIsNoop(t *testing.T) {
	svc, gw, _ := newService(t)
	_ = svc.EnqueueForOrder(context.Background(), completedOrder())
	p, _ := svc.GetByOrder(context.Background(), "ord_1")

	if _, err := svc.Retry(context.Background(), p.ID, ""); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if got := len(gw.Transfers()); got != 1 {
		t.Errorf("transfers = %d, want 1", got)
	}
}

func TestEnqueueHeldUntilEscrowRelease(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	gw := gateway.NewStub("whsec_test")
	svc := NewService(NewMemoryStore(), gw, stubPayees{}, audit.NewMemoryRecorder(), logging.Discard()).
		WithClock(clk)
	ctx := context.Background()

	// Dispute ruled for the lawyer three days before the escrow hold
	// lapses.
	o := completedOrder()
	release := clk.Now().Add(72 * time.Hour)
	o.ReleaseEligibleAt = &release

	if err := svc.EnqueueForOrder(ctx, o); err != nil {
		t.Fatalf("EnqueueForOrder: %v", err)
	}
	if got := len(gw.Transfers()); got != 0 {
		t.Fatalf("transfers before release = %d, want 0", got)
	}

	p, err := svc.GetByOrder(ctx, "ord_1")
	if err != nil {
		t.Fatalf("GetByOrder: %v", err)
	}
	if p.Status != StatusPending || !p.OnHold {
		t.Errorf("payout = %+v, want pending on hold", p)
	}
	if p.HoldUntil == nil || !p.HoldUntil.Equal(release) {
		t.Errorf("hold until = %v, want %v", p.HoldUntil, release)
	}
	if p.HoldReason == "" {
		t.Error("hold reason not recorded")
	}

	// A retry while the hold is active does not move money.
	if _, err := svc.Retry(ctx, p.ID, ""); err != nil {
		t.Fatalf("early Retry: %v", err)
	}
	if got := len(gw.Transfers()); got != 0 {
		t.Errorf("transfers during hold = %d, want 0", got)
	}

	clk.Advance(72*time.Hour + time.Minute)
	released, err := svc.Retry(ctx, p.ID, "")
	if err != nil {
		t.Fatalf("Retry after hold: %v", err)
	}
	if released.OnHold || released.Status != StatusInTransit {
		t.Errorf("payout = %+v, want in_transit with hold cleared", released)
	}
	if got := len(gw.Transfers()); got != 1 {
		t.Errorf("transfers after release = %d, want 1", got)
	}
}

func TestCancelPayout(t *testing.T) {
	svc, gw, rec := newService(t)
	ctx := context.Background()
	gw.FailTransfers = true
	_ = svc.EnqueueForOrder(ctx, completedOrder())
	p, _ := svc.GetByOrder(ctx, "ord_1")

	cancelled, err := svc.Cancel(ctx, p.ID, "payee offboarded")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}

	// Cancelling again is a no-op, and the retry path stays closed.
	if again, err := svc.Cancel(ctx, p.ID, "dup"); err != nil || again.Status != StatusCancelled {
		t.Errorf("second cancel = %+v, %v", again, err)
	}
	gw.FailTransfers = false
	if _, err := svc.Retry(ctx, p.ID, ""); err != nil {
		t.Fatalf("Retry after cancel: %v", err)
	}
	if got := len(gw.Transfers()); got != 0 {
		t.Errorf("transfers after cancel = %d, want 0", got)
	}

	found := false
	for _, r := range rec.Records() {
		if r.Action == audit.ActionPayoutUpdated && r.Detail == "cancelled: payee offboarded" {
			found = true
		}
	}
	if !found {
		t.Error("cancellation not audited")
	}
}

func TestCancelInTransitRejected(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	_ = svc.EnqueueForOrder(ctx, completedOrder())
	p, _ := svc.GetByOrder(ctx, "ord_1")

	if _, err := svc.Cancel(ctx, p.ID, "too late"); !errors.Is(err, ErrNotCancellable) {
		t.Errorf("err = %v, want ErrNotCancellable", err)
	}
}

func TestMarkTransferStatus(t *testing.T) {
	svc, _, rec := newService(t)
	ctx := context.Background()
	if err := svc.EnqueueForOrder(ctx, completedOrder()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	p, _ := svc.GetByOrder(ctx, "ord_1")

	updated, err := svc.MarkTransferStatus(ctx, p.TransferRef, StatusPaid)
	if err != nil {
		t.Fatalf("MarkTransferStatus: %v", err)
	}
	if updated.Status != StatusPaid {
		t.Errorf("status = %s, want paid", updated.Status)
	}

	// A replay of the same event is a no-op.
	before := len(rec.Records())
	if _, err := svc.MarkTransferStatus(ctx, p.TransferRef, StatusPaid); err != nil {
		t.Fatalf("replayed MarkTransferStatus: %v", err)
	}
	if len(rec.Records()) != before {
		t.Error("replay appended another audit record")
	}

	if _, err := svc.MarkTransferStatus(ctx, "tr_unknown", StatusPaid); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown ref: %v", err)
	}
	if _, err := svc.MarkTransferStatus(ctx, p.TransferRef, Status("created")); err == nil {
		t.Error("unsupported status accepted")
	}
}

func TestListByLawyer(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	a := completedOrder()
	b := completedOrder()
	b.ID = "ord_2"
	b.TransferGroup = "ord_2"
	if err := svc.EnqueueForOrder(ctx, a); err != nil {
		t.Fatalf("enqueue a: %v", err)
	}
	if err := svc.EnqueueForOrder(ctx, b); err != nil {
		t.Fatalf("enqueue b: %v", err)
	}

	payouts, err := svc.ListByLawyer(ctx, "lw_1", 10)
	if err != nil {
		t.Fatalf("ListByLawyer: %v", err)
	}
	if len(payouts) != 2 {
		t.Errorf("payouts = %d, want 2", len(payouts))
	}
}
