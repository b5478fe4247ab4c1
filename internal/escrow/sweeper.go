package escrow

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/advoflow/advoflow/internal/clock"
	"github.com/advoflow/advoflow/internal/metrics"
	"github.com/advoflow/advoflow/internal/order"
)

// Releaser is the slice of the order service the sweeper drives.
type Releaser interface {
	ReleaseEligible(ctx context.Context, now time.Time, limit int) ([]string, error)
	AutoComplete(ctx context.Context, orderID string) (*order.Order, error)
}

// Sweeper periodically auto-completes delivered orders whose hold has
// lapsed.
type Sweeper struct {
	orders    Releaser
	interval  time.Duration
	batchSize int
	clock     clock.Clock
	logger    *slog.Logger
	stop      chan struct{}
	running   atomic.Bool
}

// NewSweeper creates a sweeper over the order service.
func NewSweeper(orders Releaser, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		orders:    orders,
		interval:  interval,
		batchSize: 100,
		clock:     clock.System{},
		logger:    logger,
		stop:      make(chan struct{}),
	}
}

// WithClock overrides the clock (tests).
func (s *Sweeper) WithClock(c clock.Clock) *Sweeper { s.clock = c; return s }

// Running reports whether the sweep loop is active.
func (s *Sweeper) Running() bool {
	return s.running.Load()
}

// Start begins the sweep loop. Call in a goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	s.running.Store(true)
	defer s.running.Store(false)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.safeSweep(ctx)
		}
	}
}

// Stop signals the sweep loop to stop.
func (s *Sweeper) Stop() {
	select {
	case s.stop <- struct{}{}:
	default:
	}
}

func (s *Sweeper) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in escrow sweeper", "panic", fmt.Sprint(r))
		}
	}()
	s.Sweep(ctx)
}

// Sweep runs one pass and returns how many orders were released.
// Exported so tests can trigger a pass without the ticker.
func (s *Sweeper) Sweep(ctx context.Context) int {
	now := s.clock.Now()
	ids, err := s.orders.ReleaseEligible(ctx, now, s.batchSize)
	if err != nil {
		s.logger.Warn("failed to list release-eligible orders", "error", err)
		return 0
	}

	released := 0
	for _, id := range ids {
		o, err := s.orders.AutoComplete(ctx, id)
		if err != nil {
			// Orders disputed or completed between the listing and
			// this call are expected; anything else is a real fault.
			if order.IsStaleEventError(err) {
				s.logger.Debug("skipping order no longer eligible", "order_id", id)
			} else {
				s.logger.Warn("failed to auto-release order", "order_id", id, "error", err)
			}
			continue
		}
		released++
		metrics.SweepReleasesTotal.Inc()
		s.logger.Info("auto-released escrow",
			"order_id", o.ID, "lawyer_id", o.LawyerID, "amount", o.LawyerAmount)
	}
	return released
}
