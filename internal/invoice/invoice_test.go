package invoice

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advoflow/advoflow/internal/order"
)

func fundedOrder() *order.Order {
	funded := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &order.Order{
		ID:           "ord_abc",
		ClientID:     "cl_1",
		LawyerID:     "lw_1",
		CaseRef:      "2026-CV-0042",
		Amount:       10000,
		PlatformFee:  200,
		TaxAmount:    1800,
		ChargeTotal:  12000,
		LawyerAmount: 9800,
		Currency:     "usd",
		Status:       order.StatusFunded,
		FundedAt:     &funded,
	}
}

func TestBuildLinesSumToChargeTotal(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	inv, err := Build(fundedOrder(), now)
	require.NoError(t, err)

	var sum int64
	for _, line := range inv.Lines {
		sum += line.Amount
	}
	assert.Equal(t, inv.Total, sum)
	assert.Equal(t, int64(12000), inv.Total)
	assert.Equal(t, "ord_abc", inv.OrderID)
	assert.Equal(t, now, inv.IssuedAt)
	assert.True(t, strings.HasPrefix(inv.ID, "inv_"))
}

func TestBuildIncludesCaseRef(t *testing.T) {
	inv, err := Build(fundedOrder(), time.Now())
	require.NoError(t, err)
	assert.Contains(t, inv.Lines[0].Description, "2026-CV-0042")

	o := fundedOrder()
	o.CaseRef = ""
	inv, err = Build(o, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "Legal services", inv.Lines[0].Description)
}

func TestBuildRejectsUnfundedOrder(t *testing.T) {
	o := fundedOrder()
	o.FundedAt = nil
	o.Status = order.StatusCreated

	_, err := Build(o, time.Now())
	assert.ErrorIs(t, err, ErrNotInvoiceable)
}
