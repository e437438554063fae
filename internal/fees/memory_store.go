package fees

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for demo mode and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]*Charge
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Charge)}
}

func (s *MemoryStore) Create(ctx context.Context, c *Charge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.byID[c.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Charge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) Update(ctx context.Context, c *Charge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[c.ID]; !ok {
		return ErrNotFound
	}
	cp := *c
	s.byID[c.ID] = &cp
	return nil
}

func (s *MemoryStore) GetByDisputeAndKind(ctx context.Context, disputeID string, kind Kind) (*Charge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.byID {
		if c.DisputeID == disputeID && c.Kind == kind {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListByDispute(ctx context.Context, disputeID string) ([]*Charge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Charge
	for _, c := range s.byID {
		if c.DisputeID == disputeID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListFailed(ctx context.Context, limit int) ([]*Charge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Charge
	for _, c := range s.byID {
		if c.Status == StatusFailed {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
