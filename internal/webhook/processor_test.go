package webhook

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advoflow/advoflow/internal/audit"
	"github.com/advoflow/advoflow/internal/gateway"
	"github.com/advoflow/advoflow/internal/logging"
	"github.com/advoflow/advoflow/internal/order"
	"github.com/advoflow/advoflow/internal/payout"
)

type orderCall struct {
	method string
	ref    string
	arg    string
}

type fakeOrders struct {
	calls []orderCall
	err   error
}

func (f *fakeOrders) MarkFundedByChargeRef(_ context.Context, ref string) (*order.Order, error) {
	f.calls = append(f.calls, orderCall{"funded", ref, ""})
	return nil, f.err
}

func (f *fakeOrders) MarkChargeFailedByRef(_ context.Context, ref string) (*order.Order, error) {
	f.calls = append(f.calls, orderCall{"failed", ref, ""})
	return nil, f.err
}

func (f *fakeOrders) OpenDisputeByChargeRef(_ context.Context, ref, reason string) (*order.Order, error) {
	f.calls = append(f.calls, orderCall{"dispute_opened", ref, reason})
	return nil, f.err
}

func (f *fakeOrders) ResolveDisputeByChargeRef(_ context.Context, ref, status string) (*order.Order, error) {
	f.calls = append(f.calls, orderCall{"dispute_closed", ref, status})
	return nil, f.err
}

type transferCall struct {
	ref    string
	status payout.Status
}

type fakePayouts struct {
	calls []transferCall
	err   error
}

func (f *fakePayouts) MarkTransferStatus(_ context.Context, ref string, status payout.Status) (*payout.Payout, error) {
	f.calls = append(f.calls, transferCall{ref, status})
	return nil, f.err
}

func newTestProcessor(t *testing.T) (*Processor, *gateway.Stub, *fakeOrders, *fakePayouts) {
	t.Helper()
	gw := gateway.NewStub("whsec_test")
	orders := &fakeOrders{}
	payouts := &fakePayouts{}
	p := NewProcessor(gw, NewMemoryStore(), orders, payouts, logging.Discard())
	return p, gw, orders, payouts
}

func chargeEvent(id, typ, chargeRef string) []byte {
	return fmt.Appendf(nil,
		`{"id":%q,"type":%q,"data":{"object":{"id":%q}}}`, id, typ, chargeRef)
}

func TestProcessRejectsBadSignature(t *testing.T) {
	p, _, orders, _ := newTestProcessor(t)

	payload := chargeEvent("evt_1", TypeChargeSucceeded, "pi_1")
	_, err := p.Process(context.Background(), payload, "t=1,v1=deadbeef")
	require.ErrorIs(t, err, gateway.ErrBadSignature)
	assert.Empty(t, orders.calls)
}

type fakeAlerter struct {
	events []string
}

func (f *fakeAlerter) Notify(event string, _ map[string]string) {
	f.events = append(f.events, event)
}

func TestProcessBadSignatureAuditedAndAlerted(t *testing.T) {
	p, _, _, _ := newTestProcessor(t)
	rec := audit.NewMemoryRecorder()
	alerter := &fakeAlerter{}
	p = p.WithAudit(rec).WithAlerts(alerter)

	payload := chargeEvent("evt_1", TypeChargeSucceeded, "pi_1")
	_, err := p.Process(context.Background(), payload, "t=1,v1=deadbeef")
	require.ErrorIs(t, err, gateway.ErrBadSignature)

	records := rec.Records()
	require.Len(t, records, 1)
	assert.Equal(t, audit.ActionSecurityEvent, records[0].Action)
	assert.Equal(t, audit.MaxRiskScore, records[0].RiskScore)
	assert.Equal(t, []string{"security.violation"}, alerter.events)
}

func TestProcessRejectsMalformedPayload(t *testing.T) {
	p, gw, orders, _ := newTestProcessor(t)

	payload := []byte(`{"id":"evt_1"}`)
	_, err := p.Process(context.Background(), payload, gw.Sign(payload))
	require.ErrorIs(t, err, ErrMalformed)
	assert.Empty(t, orders.calls)
}

func TestProcessChargeSucceededReconcilesOrder(t *testing.T) {
	p, gw, orders, _ := newTestProcessor(t)

	payload := chargeEvent("evt_1", TypeChargeSucceeded, "pi_42")
	result, err := p.Process(context.Background(), payload, gw.Sign(payload))
	require.NoError(t, err)
	assert.Equal(t, ResultProcessed, result)

	require.Len(t, orders.calls, 1)
	assert.Equal(t, orderCall{"funded", "pi_42", ""}, orders.calls[0])
}

func TestProcessReplayHasExactlyOneEffect(t *testing.T) {
	p, gw, orders, _ := newTestProcessor(t)

	payload := chargeEvent("evt_1", TypeChargeSucceeded, "pi_42")
	sig := gw.Sign(payload)

	result, err := p.Process(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, ResultProcessed, result)

	for i := 0; i < 3; i++ {
		result, err = p.Process(context.Background(), payload, sig)
		require.NoError(t, err)
		assert.Equal(t, ResultDuplicate, result)
	}
	assert.Len(t, orders.calls, 1)
}

func TestProcessDispatchFailureReleasesDedupe(t *testing.T) {
	p, gw, orders, _ := newTestProcessor(t)
	orders.err = errors.New("database is down")

	payload := chargeEvent("evt_1", TypeChargeSucceeded, "pi_42")
	sig := gw.Sign(payload)

	_, err := p.Process(context.Background(), payload, sig)
	require.Error(t, err)

	// The gateway retries; the event must process this time.
	orders.err = nil
	result, err := p.Process(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, ResultProcessed, result)
	assert.Len(t, orders.calls, 2)
}

func TestProcessUnknownTypeAcknowledged(t *testing.T) {
	p, gw, orders, payouts := newTestProcessor(t)

	payload := []byte(`{"id":"evt_9","type":"balance.available","data":{"object":{}}}`)
	result, err := p.Process(context.Background(), payload, gw.Sign(payload))
	require.NoError(t, err)
	assert.Equal(t, ResultUnhandled, result)
	assert.Empty(t, orders.calls)
	assert.Empty(t, payouts.calls)
}

func TestProcessStaleEventAcknowledged(t *testing.T) {
	p, gw, orders, _ := newTestProcessor(t)
	orders.err = fmt.Errorf("%w: delivered -> cancelled", order.ErrIllegalTransition)

	payload := chargeEvent("evt_1", TypeChargeFailed, "pi_42")
	result, err := p.Process(context.Background(), payload, gw.Sign(payload))
	require.NoError(t, err)
	assert.Equal(t, ResultStale, result)
}

func TestProcessUnknownChargeRefAcknowledged(t *testing.T) {
	p, gw, orders, _ := newTestProcessor(t)
	orders.err = order.ErrNotFound

	payload := chargeEvent("evt_1", TypeChargeSucceeded, "pi_missing")
	result, err := p.Process(context.Background(), payload, gw.Sign(payload))
	require.NoError(t, err)
	assert.Equal(t, ResultUnmatched, result)
}

func TestProcessTransferEventsUpdatePayoutStatus(t *testing.T) {
	p, gw, _, payouts := newTestProcessor(t)

	cases := []struct {
		typ  string
		want payout.Status
	}{
		{TypeTransferPaid, payout.StatusPaid},
		{TypeTransferFailed, payout.StatusFailed},
		{TypeTransferReversed, payout.StatusReversed},
	}
	for i, tc := range cases {
		payload := fmt.Appendf(nil,
			`{"id":"evt_%d","type":%q,"data":{"object":{"id":"tr_7"}}}`, i, tc.typ)
		result, err := p.Process(context.Background(), payload, gw.Sign(payload))
		require.NoError(t, err)
		assert.Equal(t, ResultProcessed, result)
	}

	require.Len(t, payouts.calls, 3)
	for i, tc := range cases {
		assert.Equal(t, transferCall{"tr_7", tc.want}, payouts.calls[i])
	}
}

func TestProcessDisputeLifecycle(t *testing.T) {
	p, gw, orders, _ := newTestProcessor(t)

	opened := []byte(`{"id":"evt_1","type":"dispute.opened","data":{"object":{"id":"dp_1","charge":"pi_42","reason":"fraudulent"}}}`)
	result, err := p.Process(context.Background(), opened, gw.Sign(opened))
	require.NoError(t, err)
	assert.Equal(t, ResultProcessed, result)

	closed := []byte(`{"id":"evt_2","type":"dispute.closed","data":{"object":{"id":"dp_1","charge":"pi_42","status":"won"}}}`)
	result, err = p.Process(context.Background(), closed, gw.Sign(closed))
	require.NoError(t, err)
	assert.Equal(t, ResultProcessed, result)

	require.Len(t, orders.calls, 2)
	assert.Equal(t, orderCall{"dispute_opened", "pi_42", "fraudulent"}, orders.calls[0])
	assert.Equal(t, orderCall{"dispute_closed", "pi_42", "won"}, orders.calls[1])
}

func TestDecodeRejectsMissingObjectFields(t *testing.T) {
	cases := map[string]string{
		"charge without id":     `{"id":"evt_1","type":"charge.succeeded","data":{"object":{}}}`,
		"transfer without id":   `{"id":"evt_1","type":"transfer.paid","data":{"object":{}}}`,
		"dispute without ref":   `{"id":"evt_1","type":"dispute.opened","data":{"object":{"id":"dp_1"}}}`,
		"missing envelope type": `{"id":"evt_1"}`,
		"not json":              `{{`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(payload))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestMemoryStoreForgetAllowsReprocessing(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.FirstDelivery(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, first)

	first, err = s.FirstDelivery(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, first)

	require.NoError(t, s.Forget(ctx, "evt_1"))
	first, err = s.FirstDelivery(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, first)
}
