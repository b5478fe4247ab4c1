// Package fees computes the platform fee and tax breakdown for an
// order. All money is handled in integer minor units (cents, paise)
// and all rates are basis points, so the math is exact and
// deterministic for any input.
package fees

import (
	"errors"
	"fmt"
)

// Rate bounds in basis points. 10000 bps = 100%.
const (
	MaxFeeBPS = 10000
	MaxTaxBPS = 10000
)

var (
	// ErrInvalidAmount means the base amount is zero or negative.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInvalidRate means a rate is negative or above 100%.
	ErrInvalidRate = errors.New("rate out of range")
)

// Rates holds the platform's configured fee and tax rates in basis
// points. The platform fee is charged on the base amount and deducted
// from the lawyer's payout; tax is charged on the base amount and
// collected on top from the client.
type Rates struct {
	FeeBPS int64
	TaxBPS int64
}

// Validate checks both rates are within [0, 10000] bps.
func (r Rates) Validate() error {
	if r.FeeBPS < 0 || r.FeeBPS > MaxFeeBPS {
		return fmt.Errorf("%w: fee %d bps", ErrInvalidRate, r.FeeBPS)
	}
	if r.TaxBPS < 0 || r.TaxBPS > MaxTaxBPS {
		return fmt.Errorf("%w: tax %d bps", ErrInvalidRate, r.TaxBPS)
	}
	return nil
}

// Breakdown is the result of splitting a base amount.
//
// Total is what the client is charged (Base + Fee + Tax).
// LawyerNet is what the lawyer receives (Base - Fee).
type Breakdown struct {
	Base      int64 `json:"base"`
	Fee       int64 `json:"fee"`
	Tax       int64 `json:"tax"`
	Total     int64 `json:"total"`
	LawyerNet int64 `json:"lawyer_net"`
}

// Split computes the fee and tax on a base amount.
//
// Fee and tax are each rounded half-up independently, and Total is the
// sum of the rounded parts, so the breakdown always reconciles:
// Total == Base + Fee + Tax and Base == Fee + LawyerNet.
func Split(amount int64, rates Rates) (Breakdown, error) {
	if amount <= 0 {
		return Breakdown{}, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	if err := rates.Validate(); err != nil {
		return Breakdown{}, err
	}

	fee := applyBPS(amount, rates.FeeBPS)
	tax := applyBPS(amount, rates.TaxBPS)

	return Breakdown{
		Base:      amount,
		Fee:       fee,
		Tax:       tax,
		Total:     amount + fee + tax,
		LawyerNet: amount - fee,
	}, nil
}

// applyBPS multiplies amount by a basis-point rate, rounding half-up.
// amount*bps fits in int64 for any realistic order size (amounts up to
// ~9e14 minor units at 100%).
func applyBPS(amount, bps int64) int64 {
	return (amount*bps + 5000) / 10000
}
