// Package memstore provides in-process implementations of the claim, gesture
// and settlement stores and of the external collaborators. It backs tests and
// single-node deployments that do not need durability.
package memstore

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/screwyprof/luvsettle/claim"
	"github.com/screwyprof/luvsettle/ledger"
	"github.com/screwyprof/luvsettle/settlement"
)

// Store keeps claims, their gesture logs and settlement records under one
// mutex, so every method is atomic with respect to every other
type Store struct {
	mu          sync.Mutex
	claims      map[claim.ID]claim.Claim
	gestures    map[claim.ID][]ledger.Gesture
	settlements map[claim.ID]settlement.Record
	seq         int64
}

// New creates an empty Store
func New() *Store {
	return &Store{
		claims:      make(map[claim.ID]claim.Claim),
		gestures:    make(map[claim.ID][]ledger.Gesture),
		settlements: make(map[claim.ID]settlement.Record),
	}
}

// CreateClaim implements claim.Store
func (s *Store) CreateClaim(_ context.Context, c claim.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.claims[c.ID]; ok {
		return claim.ErrClaimExists
	}
	c.Score = 0
	s.claims[c.ID] = c
	return nil
}

// Claim implements claim.Store
func (s *Store) Claim(_ context.Context, id claim.ID) (claim.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.claimLocked(id)
}

// CompareAndSetState implements claim.Store
func (s *Store) CompareAndSetState(_ context.Context, id claim.ID, expected, next claim.State) (claim.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.claimLocked(id)
	if err != nil {
		return claim.Claim{}, err
	}
	if c.State != expected {
		return c, claim.ErrStateConflict
	}

	c.State = next
	s.claims[id] = c
	return c, nil
}

// AppendGesture implements ledger.Log
func (s *Store) AppendGesture(_ context.Context, g ledger.Gesture) (ledger.Gesture, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.claimLocked(g.ClaimID)
	if err != nil {
		return ledger.Gesture{}, 0, err
	}
	if c.State == claim.Settled {
		return ledger.Gesture{}, 0, claim.ErrClaimSettled
	}

	s.seq++
	g.Sequence = s.seq
	s.gestures[g.ClaimID] = append(s.gestures[g.ClaimID], g)

	return g, c.Score + g.Amount, nil
}

// Score implements ledger.Log
func (s *Store) Score(_ context.Context, id claim.ID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.claimLocked(id)
	if err != nil {
		return 0, err
	}
	return c.Score, nil
}

// Contributions implements ledger.Log
func (s *Store) Contributions(_ context.Context, id claim.ID) ([]ledger.Contribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.claims[id]; !ok {
		return nil, claim.ErrClaimNotFound
	}
	return s.contributionsLocked(id), nil
}

// Gestures returns the claim's log in append order
func (s *Store) Gestures(_ context.Context, id claim.ID) ([]ledger.Gesture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.claims[id]; !ok {
		return nil, claim.ErrClaimNotFound
	}
	return slices.Clone(s.gestures[id]), nil
}

// CommitSettlement implements settlement.Store. The mutex is held across
// compute, so no gesture or transition interleaves with the settlement.
func (s *Store) CommitSettlement(_ context.Context, id claim.ID, compute settlement.ComputeFunc) (settlement.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.claimLocked(id)
	if err != nil {
		return settlement.Record{}, err
	}

	record, err := compute(c, s.contributionsLocked(id))
	if err != nil {
		return settlement.Record{}, err
	}
	if c.State != claim.Eligible {
		return settlement.Record{}, claim.ErrStateConflict
	}

	c.State = claim.Settled
	s.claims[id] = c
	s.settlements[id] = record

	return record, nil
}

// Settlement implements settlement.Store
func (s *Store) Settlement(_ context.Context, id claim.ID) (settlement.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.settlements[id]
	if !ok {
		return settlement.Record{}, settlement.ErrSettlementNotFound
	}
	return record, nil
}

// MarkPayoutCommitted implements settlement.Store
func (s *Store) MarkPayoutCommitted(_ context.Context, id claim.ID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.settlements[id]
	if !ok {
		return settlement.ErrSettlementNotFound
	}
	record.PayoutStatus = settlement.PayoutCommitted
	record.PayoutCommittedAt = &at
	s.settlements[id] = record
	return nil
}

// PendingPayouts returns up to limit records whose batch is not yet committed,
// oldest settlement first
func (s *Store) PendingPayouts(_ context.Context, limit int) ([]settlement.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []settlement.Record
	for _, r := range s.settlements {
		if r.PayoutStatus == settlement.PayoutPending {
			pending = append(pending, r)
		}
	}
	slices.SortFunc(pending, func(a, b settlement.Record) int {
		if c := a.SettledAt.Compare(b.SettledAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ClaimID, b.ClaimID)
	})

	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *Store) claimLocked(id claim.ID) (claim.Claim, error) {
	c, ok := s.claims[id]
	if !ok {
		return claim.Claim{}, claim.ErrClaimNotFound
	}
	c.Score = 0
	for _, g := range s.gestures[id] {
		c.Score += g.Amount
	}
	return c, nil
}

func (s *Store) contributionsLocked(id claim.ID) []ledger.Contribution {
	totals := make(map[string]int64)
	for _, g := range s.gestures[id] {
		totals[g.Endorser] += g.Amount
	}

	out := make([]ledger.Contribution, 0, len(totals))
	for endorser, amount := range totals {
		out = append(out, ledger.Contribution{Endorser: endorser, Amount: amount})
	}
	slices.SortFunc(out, func(a, b ledger.Contribution) int {
		return cmp.Compare(a.Endorser, b.Endorser)
	})
	return out
}
