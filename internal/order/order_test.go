package order

import "testing"

func TestTransitionTable(t *testing.T) {
	legal := []struct{ from, to Status }{
		{StatusCreated, StatusFunded},
		{StatusCreated, StatusCancelled},
		{StatusFunded, StatusInProgress},
		{StatusFunded, StatusDisputed},
		{StatusFunded, StatusCancelled},
		{StatusInProgress, StatusDelivered},
		{StatusInProgress, StatusDisputed},
		{StatusDelivered, StatusCompleted},
		{StatusDelivered, StatusDisputed},
		{StatusDisputed, StatusCompleted},
		{StatusDisputed, StatusRefunded},
	}
	for _, tc := range legal {
		if !tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%s -> %s should be legal", tc.from, tc.to)
		}
	}

	illegal := []struct{ from, to Status }{
		{StatusCreated, StatusInProgress},
		{StatusCreated, StatusDelivered},
		{StatusCreated, StatusDisputed},
		{StatusFunded, StatusCompleted},
		{StatusFunded, StatusDelivered},
		{StatusInProgress, StatusCompleted},
		{StatusInProgress, StatusCancelled},
		{StatusDelivered, StatusCancelled},
		{StatusDelivered, StatusRefunded},
		{StatusDisputed, StatusCancelled},
		{StatusDisputed, StatusDelivered},
		{StatusCompleted, StatusRefunded},
		{StatusRefunded, StatusCompleted},
		{StatusCancelled, StatusFunded},
	}
	for _, tc := range illegal {
		if tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%s -> %s should be illegal", tc.from, tc.to)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusRefunded, StatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusCreated, StatusFunded, StatusInProgress, StatusDelivered, StatusDisputed} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestStatusValid(t *testing.T) {
	if Status("pending").Valid() {
		t.Error("unknown status accepted")
	}
	if !StatusFunded.Valid() {
		t.Error("funded rejected")
	}
}

func TestCloneIsDeep(t *testing.T) {
	o := &Order{ID: "ord_1", Dispute: &Dispute{ID: "dsp_1", Reason: "late"}}
	cp := o.Clone()
	cp.Dispute.Reason = "changed"
	if o.Dispute.Reason != "late" {
		t.Error("Clone shares the dispute pointer")
	}
}
