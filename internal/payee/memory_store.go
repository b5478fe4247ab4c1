package payee

import (
	"context"
	"sync"
)

// MemoryStore keeps profiles in memory for demo mode and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]*Profile)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Put(_ context.Context, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.profiles[p.LawyerID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, lawyerID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[lawyerID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}
