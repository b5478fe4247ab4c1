package payout

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps payouts in memory for demo mode and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	payouts map[string]*Payout
	byOrder map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payouts: make(map[string]*Payout),
		byOrder: make(map[string]string),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Create(_ context.Context, p *Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byOrder[p.OrderID]; exists {
		return ErrDuplicate
	}
	cp := *p
	s.payouts[p.ID] = &cp
	s.byOrder[p.OrderID] = p.ID
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payouts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) GetByOrder(_ context.Context, orderID string) (*Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byOrder[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.payouts[id]
	return &cp, nil
}

func (s *MemoryStore) GetByTransferRef(_ context.Context, transferRef string) (*Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if transferRef == "" {
		return nil, ErrNotFound
	}
	for _, p := range s.payouts {
		if p.TransferRef == transferRef {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Update(_ context.Context, p *Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payouts[p.ID]; !ok {
		return ErrNotFound
	}
	cp := *p
	s.payouts[p.ID] = &cp
	return nil
}

func (s *MemoryStore) ListByLawyer(_ context.Context, lawyerID string, limit int) ([]*Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	var out []*Payout
	for _, p := range s.payouts {
		if p.LawyerID == lawyerID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
