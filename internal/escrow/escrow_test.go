package escrow

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPolicyHoldPeriod(t *testing.T) {
	p := DefaultPolicy()

	if got := p.HoldPeriod(365 * 24 * time.Hour); got != DefaultStandardHold {
		t.Errorf("established payee hold = %v, want %v", got, DefaultStandardHold)
	}
	if got := p.HoldPeriod(30 * 24 * time.Hour); got != DefaultExtendedHold {
		t.Errorf("new payee hold = %v, want %v", got, DefaultExtendedHold)
	}
	// Exactly at the threshold counts as established.
	if got := p.HoldPeriod(DefaultNewPayeeAge); got != DefaultStandardHold {
		t.Errorf("threshold payee hold = %v, want %v", got, DefaultStandardHold)
	}
	// Just under the threshold is still new.
	if got := p.HoldPeriod(DefaultNewPayeeAge - time.Second); got != DefaultExtendedHold {
		t.Errorf("just-under-threshold hold = %v, want %v", got, DefaultExtendedHold)
	}
}

type fixedAges struct {
	age time.Duration
	err error
}

func (f fixedAges) AccountAge(context.Context, string, time.Time) (time.Duration, error) {
	return f.age, f.err
}

func TestSchedulerHoldUntil(t *testing.T) {
	funded := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s := NewScheduler(DefaultPolicy(), fixedAges{age: 400 * 24 * time.Hour})
	at, err := s.HoldUntil(context.Background(), "lw_1", funded)
	if err != nil {
		t.Fatalf("HoldUntil: %v", err)
	}
	if want := funded.Add(DefaultStandardHold); !at.Equal(want) {
		t.Errorf("HoldUntil = %v, want %v", at, want)
	}

	s = NewScheduler(DefaultPolicy(), fixedAges{age: 10 * 24 * time.Hour})
	at, err = s.HoldUntil(context.Background(), "lw_new", funded)
	if err != nil {
		t.Fatalf("HoldUntil: %v", err)
	}
	if want := funded.Add(DefaultExtendedHold); !at.Equal(want) {
		t.Errorf("new payee HoldUntil = %v, want %v", at, want)
	}
}

func TestSchedulerPropagatesAgeError(t *testing.T) {
	boom := errors.New("directory down")
	s := NewScheduler(DefaultPolicy(), fixedAges{err: boom})
	if _, err := s.HoldUntil(context.Background(), "lw_1", time.Now()); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}
