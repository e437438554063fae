package escrow

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for demo mode and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	byID      map[string]*Transaction
	byBooking map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:      make(map[string]*Transaction),
		byBooking: make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tx
	s.byID[tx.ID] = &cp
	s.byBooking[tx.BookingID] = tx.ID
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (s *MemoryStore) Update(ctx context.Context, tx *Transaction, expectedStatus Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[tx.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != expectedStatus {
		return ErrConflict
	}
	cp := *tx
	s.byID[tx.ID] = &cp
	return nil
}

func (s *MemoryStore) GetByBooking(ctx context.Context, bookingID string) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byBooking[bookingID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *MemoryStore) ListByParty(ctx context.Context, partyID string, limit int) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Transaction
	for _, tx := range s.byID {
		if tx.CustomerID == partyID || tx.VendorID == partyID {
			cp := *tx
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
