package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/advoflow/advoflow/internal/audit"
)

// MemoryStore keeps orders in memory for demo mode and tests. Audit
// records go to the attached recorder under the same lock, mirroring
// the transactional coupling of the Postgres store.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]*Order
	audit  audit.Recorder
}

// NewMemoryStore creates an empty in-memory store writing audit
// records to rec.
func NewMemoryStore(rec audit.Recorder) *MemoryStore {
	return &MemoryStore{orders: make(map[string]*Order), audit: rec}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Create(ctx context.Context, o *Order, rec *audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders[o.ID] = o.Clone()
	if rec != nil && s.audit != nil {
		return s.audit.Append(ctx, rec)
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o.Clone(), nil
}

func (s *MemoryStore) GetByChargeRef(_ context.Context, chargeRef string) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if chargeRef == "" {
		return nil, ErrNotFound
	}
	for _, o := range s.orders {
		if o.ChargeRef == chargeRef {
			return o.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Update(ctx context.Context, o *Order, expectedVersion int64, rec *audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != expectedVersion {
		return ErrVersionConflict
	}
	o.Version = expectedVersion + 1
	s.orders[o.ID] = o.Clone()
	if rec != nil && s.audit != nil {
		return s.audit.Append(ctx, rec)
	}
	return nil
}

func (s *MemoryStore) ListByParty(_ context.Context, partyID string, limit int) ([]*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	var out []*Order
	for _, o := range s.orders {
		if o.ClientID == partyID || o.LawyerID == partyID {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListReleaseEligible(_ context.Context, before time.Time, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	type eligible struct {
		id string
		at time.Time
	}
	var found []eligible
	for _, o := range s.orders {
		if o.Status != StatusDelivered || o.ReleaseEligibleAt == nil {
			continue
		}
		if o.ReleaseEligibleAt.After(before) {
			continue
		}
		found = append(found, eligible{o.ID, *o.ReleaseEligibleAt})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].at.Before(found[j].at) })
	if len(found) > limit {
		found = found[:limit]
	}
	ids := make([]string, len(found))
	for i, e := range found {
		ids[i] = e.id
	}
	return ids, nil
}
