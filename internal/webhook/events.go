// Package webhook ingests payment gateway events and reconciles them
// onto orders and payouts.
//
// Flow per delivery:
//  1. Verify the signature over the raw payload
//  2. Decode into a known event variant
//  3. Dedupe on the gateway event ID
//  4. Dispatch to the order or payout service
//
// Replays and out-of-order arrivals are normal: duplicates are
// acknowledged without effect, and stale events (a failure for a
// charge that already progressed) are logged and dropped.
package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed means the payload is not a decodable gateway event.
var ErrMalformed = errors.New("malformed webhook payload")

// Event kinds the processor understands.
const (
	TypeChargeSucceeded  = "charge.succeeded"
	TypeChargeFailed     = "charge.failed"
	TypeTransferPaid     = "transfer.paid"
	TypeTransferFailed   = "transfer.failed"
	TypeTransferReversed = "transfer.reversed"
	TypeDisputeOpened    = "dispute.opened"
	TypeDisputeClosed    = "dispute.closed"
)

// Event is one decoded gateway notification.
type Event interface {
	EventID() string
}

// ChargeSucceeded confirms the client's payment landed.
type ChargeSucceeded struct {
	ID        string
	ChargeRef string
}

// ChargeFailed reports a failed or abandoned client payment.
type ChargeFailed struct {
	ID        string
	ChargeRef string
	Reason    string
}

// TransferPaid confirms a payout reached the lawyer's account.
type TransferPaid struct {
	ID          string
	TransferRef string
}

// TransferFailed reports a payout that bounced.
type TransferFailed struct {
	ID          string
	TransferRef string
}

// TransferReversed reports a payout clawed back after settling.
type TransferReversed struct {
	ID          string
	TransferRef string
}

// DisputeOpened reports a chargeback raised with the card issuer.
type DisputeOpened struct {
	ID        string
	ChargeRef string
	Reason    string
}

// DisputeClosed reports the issuer's ruling: "won" keeps the funds,
// "lost" returns them to the cardholder.
type DisputeClosed struct {
	ID        string
	ChargeRef string
	Status    string
}

// Unknown is any event type the processor does not handle. It is
// acknowledged and dropped.
type Unknown struct {
	ID   string
	Type string
}

func (e ChargeSucceeded) EventID() string  { return e.ID }
func (e ChargeFailed) EventID() string     { return e.ID }
func (e TransferPaid) EventID() string     { return e.ID }
func (e TransferFailed) EventID() string   { return e.ID }
func (e TransferReversed) EventID() string { return e.ID }
func (e DisputeOpened) EventID() string    { return e.ID }
func (e DisputeClosed) EventID() string    { return e.ID }
func (e Unknown) EventID() string          { return e.ID }

// envelope is the wire shape shared by all gateway events.
type envelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type chargeObject struct {
	ID             string `json:"id"`
	FailureMessage string `json:"failure_message"`
}

type transferObject struct {
	ID string `json:"id"`
}

type disputeObject struct {
	ID     string `json:"id"`
	Charge string `json:"charge"`
	Reason string `json:"reason"`
	Status string `json:"status"`
}

// Decode parses a raw gateway payload into an event variant.
func Decode(payload []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.ID == "" || env.Type == "" {
		return nil, fmt.Errorf("%w: missing id or type", ErrMalformed)
	}

	switch env.Type {
	case TypeChargeSucceeded, TypeChargeFailed:
		var obj chargeObject
		if err := json.Unmarshal(env.Data.Object, &obj); err != nil || obj.ID == "" {
			return nil, fmt.Errorf("%w: charge object", ErrMalformed)
		}
		if env.Type == TypeChargeSucceeded {
			return ChargeSucceeded{ID: env.ID, ChargeRef: obj.ID}, nil
		}
		return ChargeFailed{ID: env.ID, ChargeRef: obj.ID, Reason: obj.FailureMessage}, nil

	case TypeTransferPaid, TypeTransferFailed, TypeTransferReversed:
		var obj transferObject
		if err := json.Unmarshal(env.Data.Object, &obj); err != nil || obj.ID == "" {
			return nil, fmt.Errorf("%w: transfer object", ErrMalformed)
		}
		switch env.Type {
		case TypeTransferPaid:
			return TransferPaid{ID: env.ID, TransferRef: obj.ID}, nil
		case TypeTransferFailed:
			return TransferFailed{ID: env.ID, TransferRef: obj.ID}, nil
		default:
			return TransferReversed{ID: env.ID, TransferRef: obj.ID}, nil
		}

	case TypeDisputeOpened, TypeDisputeClosed:
		var obj disputeObject
		if err := json.Unmarshal(env.Data.Object, &obj); err != nil || obj.Charge == "" {
			return nil, fmt.Errorf("%w: dispute object", ErrMalformed)
		}
		if env.Type == TypeDisputeOpened {
			return DisputeOpened{ID: env.ID, ChargeRef: obj.Charge, Reason: obj.Reason}, nil
		}
		return DisputeClosed{ID: env.ID, ChargeRef: obj.Charge, Status: obj.Status}, nil

	default:
		return Unknown{ID: env.ID, Type: env.Type}, nil
	}
}
