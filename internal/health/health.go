// Package health aggregates readiness checks for the subsystems a
// settlement server depends on: the database, the payment gateway, and
// anything else registered at startup.
package health

import (
	"context"
	"sync"
	"time"
)

// checkTimeout bounds a single checker so one slow subsystem cannot
// stall the whole health endpoint.
const checkTimeout = 3 * time.Second

// Status is the result of probing a single subsystem.
type Status struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

// Checker probes one subsystem. Implementations must honor ctx.
type Checker func(ctx context.Context) Status

// Registry holds named checkers and probes them on demand.
type Registry struct {
	mu       sync.RWMutex
	checkers []namedChecker
}

type namedChecker struct {
	name  string
	check Checker
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a checker. Registration order is preserved in results.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	r.checkers = append(r.checkers, namedChecker{name: name, check: check})
	r.mu.Unlock()
}

// CheckAll probes every registered subsystem concurrently and reports
// aggregate health along with per-subsystem results. A check that
// overruns checkTimeout is reported unhealthy.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	checkers := make([]namedChecker, len(r.checkers))
	copy(checkers, r.checkers)
	r.mu.RUnlock()

	statuses = make([]Status, len(checkers))
	var wg sync.WaitGroup
	for i, nc := range checkers {
		wg.Add(1)
		go func(i int, nc namedChecker) {
			defer wg.Done()
			statuses[i] = runOne(ctx, nc)
		}(i, nc)
	}
	wg.Wait()

	healthy = true
	for _, st := range statuses {
		if !st.Healthy {
			healthy = false
		}
	}
	return healthy, statuses
}

func runOne(ctx context.Context, nc namedChecker) Status {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan Status, 1)
	go func() {
		done <- nc.check(ctx)
	}()

	select {
	case st := <-done:
		st.Name = nc.name
		st.LatencyMS = time.Since(start).Milliseconds()
		return st
	case <-ctx.Done():
		return Status{
			Name:      nc.name,
			Healthy:   false,
			Detail:    "check timed out",
			LatencyMS: time.Since(start).Milliseconds(),
		}
	}
}
