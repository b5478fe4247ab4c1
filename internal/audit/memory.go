package audit

import (
	"context"
	"sync"
	"time"
)

// MemoryRecorder stores records in memory for demo mode and tests.
type MemoryRecorder struct {
	mu      sync.RWMutex
	records []*Record
}

// NewMemoryRecorder creates an in-memory audit recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

var _ Recorder = (*MemoryRecorder)(nil)

func (r *MemoryRecorder) Append(_ context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *rec
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	r.records = append(r.records, &cp)
	return nil
}

func (r *MemoryRecorder) ListByOrder(_ context.Context, orderID string, limit int) ([]*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	var out []*Record
	for _, rec := range r.records {
		if rec.OrderID != orderID {
			continue
		}
		cp := *rec
		out = append(out, &cp)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRecorder) AppendNote(_ context.Context, recordID, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.records {
		if rec.ID == recordID {
			if rec.Note == "" {
				rec.Note = note
			} else {
				rec.Note += "\n" + note
			}
			return nil
		}
	}
	return ErrNotFound
}

// Records returns a copy of everything appended so far (for tests).
func (r *MemoryRecorder) Records() []*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Record, len(r.records))
	for i, rec := range r.records {
		cp := *rec
		out[i] = &cp
	}
	return out
}
