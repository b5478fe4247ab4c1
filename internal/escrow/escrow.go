// Package escrow decides how long funds stay held and releases them
// when the hold lapses.
//
// Policy picks the hold period per payee (new payees wait longer);
// Sweeper walks delivered orders whose hold has passed and
// auto-completes them.
package escrow

import (
	"context"
	"time"
)

// Default hold configuration.
const (
	DefaultStandardHold = 7 * 24 * time.Hour
	DefaultExtendedHold = 14 * 24 * time.Hour
	DefaultNewPayeeAge  = 90 * 24 * time.Hour
)

// Policy maps a payee's account age to a hold period.
type Policy struct {
	// StandardHold applies to established payees.
	StandardHold time.Duration
	// ExtendedHold applies to payees younger than NewPayeeAge.
	ExtendedHold time.Duration
	NewPayeeAge  time.Duration
}

// DefaultPolicy returns the 7/14-day policy with a 90-day maturity
// threshold.
func DefaultPolicy() Policy {
	return Policy{
		StandardHold: DefaultStandardHold,
		ExtendedHold: DefaultExtendedHold,
		NewPayeeAge:  DefaultNewPayeeAge,
	}
}

// HoldPeriod returns the hold for a payee of the given account age.
func (p Policy) HoldPeriod(accountAge time.Duration) time.Duration {
	if accountAge < p.NewPayeeAge {
		return p.ExtendedHold
	}
	return p.StandardHold
}

// AccountAges reports how long a payee has been onboarded.
type AccountAges interface {
	AccountAge(ctx context.Context, lawyerID string, now time.Time) (time.Duration, error)
}

// Scheduler computes release times for funded orders.
type Scheduler struct {
	policy Policy
	ages   AccountAges
}

// NewScheduler builds a scheduler from a policy and an age source.
func NewScheduler(policy Policy, ages AccountAges) *Scheduler {
	return &Scheduler{policy: policy, ages: ages}
}

// HoldUntil returns when funds landed at fundedAt become
// release-eligible for the given payee.
func (s *Scheduler) HoldUntil(ctx context.Context, lawyerID string, fundedAt time.Time) (time.Time, error) {
	age, err := s.ages.AccountAge(ctx, lawyerID, fundedAt)
	if err != nil {
		return time.Time{}, err
	}
	return fundedAt.Add(s.policy.HoldPeriod(age)), nil
}
