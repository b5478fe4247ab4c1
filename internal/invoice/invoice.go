// Package invoice renders an itemized billing view of an order.
//
// Line amounts come straight off the stored order, which was priced by
// the same fee split that created the charge, so the invoice total
// always equals what the client was actually charged.
package invoice

import (
	"errors"
	"time"

	"github.com/advoflow/advoflow/internal/idgen"
	"github.com/advoflow/advoflow/internal/order"
)

// ErrNotInvoiceable is returned for orders that were never funded.
var ErrNotInvoiceable = errors.New("order has no charge to invoice")

// Line is one invoice line item.
type Line struct {
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
}

// Invoice is the rendered billing document for one order.
type Invoice struct {
	ID       string    `json:"id"`
	OrderID  string    `json:"orderId"`
	ClientID string    `json:"clientId"`
	LawyerID string    `json:"lawyerId"`
	CaseRef  string    `json:"caseRef,omitempty"`
	Currency string    `json:"currency"`
	Lines    []Line    `json:"lines"`
	Total    int64     `json:"total"`
	IssuedAt time.Time `json:"issuedAt"`
}

// Build renders an invoice for a funded order. Orders still awaiting
// payment, or cancelled before payment, have nothing to invoice.
func Build(o *order.Order, now time.Time) (*Invoice, error) {
	if o.FundedAt == nil {
		return nil, ErrNotInvoiceable
	}

	lines := []Line{
		{Description: "Legal services" + caseSuffix(o), Amount: o.Amount},
		{Description: "Platform service fee", Amount: o.PlatformFee},
		{Description: "Tax", Amount: o.TaxAmount},
	}

	return &Invoice{
		ID:       idgen.WithPrefix(idgen.PrefixInvoice),
		OrderID:  o.ID,
		ClientID: o.ClientID,
		LawyerID: o.LawyerID,
		CaseRef:  o.CaseRef,
		Currency: o.Currency,
		Lines:    lines,
		Total:    o.ChargeTotal,
		IssuedAt: now.UTC(),
	}, nil
}

func caseSuffix(o *order.Order) string {
	if o.CaseRef == "" {
		return ""
	}
	return " (case " + o.CaseRef + ")"
}
