// Package payee tracks the lawyers who receive payouts.
//
// A lawyer must have a verified payout account before any order can
// name them as payee. The profile's age also drives the escrow hold
// period: recently onboarded payees get a longer hold.
package payee

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no profile exists for a lawyer.
	ErrNotFound = errors.New("payee not found")
	// ErrNotVerified is returned when a lawyer has no verified payout account.
	ErrNotVerified = errors.New("payee has no verified payout account")
	// ErrInvalidProfile is returned when a profile fails validation.
	ErrInvalidProfile = errors.New("invalid payee profile")
)

// Profile is a lawyer's payout identity.
type Profile struct {
	LawyerID     string    `json:"lawyerId"`
	DisplayName  string    `json:"displayName"`
	Email        string    `json:"email"`
	BarID        string    `json:"barId,omitempty"`
	Jurisdiction string    `json:"jurisdiction,omitempty"`
	// AccountRef is the payment gateway's connected-account reference
	// that transfers are sent to. Set during verification.
	AccountRef  string    `json:"accountRef,omitempty"`
	Verified    bool      `json:"verified"`
	OnboardedAt time.Time `json:"onboardedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Validate checks the fields a profile must carry before it is stored.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.LawyerID) == "" {
		return errors.Join(ErrInvalidProfile, errors.New("lawyer id required"))
	}
	if strings.TrimSpace(p.DisplayName) == "" {
		return errors.Join(ErrInvalidProfile, errors.New("display name required"))
	}
	if !strings.Contains(p.Email, "@") {
		return errors.Join(ErrInvalidProfile, errors.New("valid email required"))
	}
	return nil
}

// Store persists payee profiles.
type Store interface {
	Put(ctx context.Context, p *Profile) error
	Get(ctx context.Context, lawyerID string) (*Profile, error)
}

// Directory exposes payee lookups to the order and payout services.
type Directory struct {
	store Store
}

// NewDirectory wraps a store.
func NewDirectory(store Store) *Directory {
	return &Directory{store: store}
}

// Register creates or refreshes a profile. Registration never sets
// the verified flag; that happens in Verify.
func (d *Directory) Register(ctx context.Context, p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	existing, err := d.store.Get(ctx, p.LawyerID)
	switch {
	case err == nil:
		// Keep the original onboarding time and verification state.
		p.OnboardedAt = existing.OnboardedAt
		p.Verified = existing.Verified
		p.AccountRef = existing.AccountRef
	case errors.Is(err, ErrNotFound):
		if p.OnboardedAt.IsZero() {
			p.OnboardedAt = time.Now().UTC()
		}
		p.Verified = false
		p.AccountRef = ""
	default:
		return err
	}
	p.UpdatedAt = time.Now().UTC()
	return d.store.Put(ctx, p)
}

// Verify marks a lawyer's payout account as verified and records the
// gateway account transfers will be routed to.
func (d *Directory) Verify(ctx context.Context, lawyerID, accountRef string) (*Profile, error) {
	if strings.TrimSpace(accountRef) == "" {
		return nil, errors.Join(ErrInvalidProfile, errors.New("account ref required"))
	}
	p, err := d.store.Get(ctx, lawyerID)
	if err != nil {
		return nil, err
	}
	p.Verified = true
	p.AccountRef = accountRef
	p.UpdatedAt = time.Now().UTC()
	if err := d.store.Put(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Get returns a profile.
func (d *Directory) Get(ctx context.Context, lawyerID string) (*Profile, error) {
	return d.store.Get(ctx, lawyerID)
}

// Eligible returns the profile if the lawyer can be named as payee on
// a new order, or ErrNotVerified.
func (d *Directory) Eligible(ctx context.Context, lawyerID string) (*Profile, error) {
	p, err := d.store.Get(ctx, lawyerID)
	if err != nil {
		return nil, err
	}
	if !p.Verified || p.AccountRef == "" {
		return nil, ErrNotVerified
	}
	return p, nil
}

// AccountAge reports how long the lawyer has been onboarded as of now.
func (d *Directory) AccountAge(ctx context.Context, lawyerID string, now time.Time) (time.Duration, error) {
	p, err := d.store.Get(ctx, lawyerID)
	if err != nil {
		return 0, err
	}
	age := now.Sub(p.OnboardedAt)
	if age < 0 {
		age = 0
	}
	return age, nil
}
