package dispute

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for demo mode and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	cases     map[string]*Case
	byEscrow  map[string]string
	offers    map[string]*Offer
	options   map[string][]*Option // by dispute ID
	decisions map[string]*Decision // by dispute ID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cases:     make(map[string]*Case),
		byEscrow:  make(map[string]string),
		offers:    make(map[string]*Offer),
		options:   make(map[string][]*Option),
		decisions: make(map[string]*Decision),
	}
}

func copyCase(c *Case) *Case {
	cp := *c
	if c.Deadline != nil {
		t := *c.Deadline
		cp.Deadline = &t
	}
	if c.ResolvedAt != nil {
		t := *c.ResolvedAt
		cp.ResolvedAt = &t
	}
	if c.ResolvedSplit != nil {
		sp := *c.ResolvedSplit
		cp.ResolvedSplit = &sp
	}
	return &cp
}

func (s *MemoryStore) CreateCase(ctx context.Context, c *Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cases[c.ID] = copyCase(c)
	s.byEscrow[c.EscrowID] = c.ID
	return nil
}

func (s *MemoryStore) GetCase(ctx context.Context, id string) (*Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyCase(c), nil
}

func (s *MemoryStore) GetCaseByEscrow(ctx context.Context, escrowID string) (*Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEscrow[escrowID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyCase(s.cases[id]), nil
}

func (s *MemoryStore) UpdateCase(ctx context.Context, c *Case, expectedPhase Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.cases[c.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Phase != expectedPhase {
		return ErrConflict
	}
	s.cases[c.ID] = copyCase(c)
	return nil
}

func (s *MemoryStore) ListByParty(ctx context.Context, partyID string, phase Phase, limit int) ([]*Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Case
	for _, c := range s.cases {
		if !c.Participant(partyID) {
			continue
		}
		if phase != "" && c.Phase != phase {
			continue
		}
		out = append(out, copyCase(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListDeadlineElapsed(ctx context.Context, now time.Time, limit int) ([]*Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Case
	for _, c := range s.cases {
		if c.Phase.Terminal() || c.Deadline == nil {
			continue
		}
		if !now.Before(*c.Deadline) {
			out = append(out, copyCase(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(*out[j].Deadline) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListUnsettled(ctx context.Context, limit int) ([]*Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Case
	for _, c := range s.cases {
		if c.Phase == PhaseResolved && !c.Settled {
			out = append(out, copyCase(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListAwaitingDecision(ctx context.Context, limit int) ([]*Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Case
	for _, c := range s.cases {
		if c.Phase != PhaseAIReview {
			continue
		}
		if _, ok := s.decisions[c.ID]; ok {
			continue
		}
		out = append(out, copyCase(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListDeadlineApproaching(ctx context.Context, now time.Time, window time.Duration, limit int) ([]*Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := now.Add(window)
	var out []*Case
	for _, c := range s.cases {
		if c.Phase.Terminal() || c.Deadline == nil || c.DeadlineWarned {
			continue
		}
		if c.Deadline.After(now) && !c.Deadline.After(cutoff) {
			out = append(out, copyCase(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(*out[j].Deadline) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) MarkDeadlineWarned(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[id]
	if !ok {
		return ErrNotFound
	}
	c.DeadlineWarned = true
	return nil
}

func (s *MemoryStore) CreateOffer(ctx context.Context, o *Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	s.offers[o.ID] = &cp
	return nil
}

func (s *MemoryStore) GetOffer(ctx context.Context, id string) (*Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.offers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *MemoryStore) UpdateOffer(ctx context.Context, o *Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.offers[o.ID]; !ok {
		return ErrNotFound
	}
	cp := *o
	s.offers[o.ID] = &cp
	return nil
}

func (s *MemoryStore) ListOffers(ctx context.Context, disputeID string) ([]*Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Offer
	for _, o := range s.offers {
		if o.DisputeID == disputeID {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CreateOptions(ctx context.Context, opts []*Option) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range opts {
		cp := *o
		s.options[o.DisputeID] = append(s.options[o.DisputeID], &cp)
	}
	return nil
}

func (s *MemoryStore) ListOptions(ctx context.Context, disputeID string) ([]*Option, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Option
	for _, o := range s.options[disputeID] {
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

func (s *MemoryStore) SetOptionResponse(ctx context.Context, disputeID, label string, customer bool, resp Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.options[disputeID] {
		if o.Label != label {
			continue
		}
		if customer {
			o.CustomerResponse = resp
		} else {
			o.VendorResponse = resp
		}
		return nil
	}
	return ErrNotFound
}

func (s *MemoryStore) CreateDecision(ctx context.Context, d *Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.decisions[d.DisputeID] = &cp
	return nil
}

func (s *MemoryStore) GetDecision(ctx context.Context, disputeID string) (*Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.decisions[disputeID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *MemoryStore) SetDecisionResponse(ctx context.Context, disputeID string, customer bool, resp Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.decisions[disputeID]
	if !ok {
		return ErrNotFound
	}
	cur := &d.VendorResponse
	if customer {
		cur = &d.CustomerResponse
	}
	if *cur != ResponseNone {
		return ErrAlreadyResponded
	}
	*cur = resp
	return nil
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
