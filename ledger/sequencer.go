package ledger

import (
	"context"
	"sync"
)

// Sequencer serializes work per key while letting different keys run
// concurrently. Waiters on the same key are admitted in arrival order.
type Sequencer struct {
	mu    sync.Mutex
	lanes map[string]*lane
}

type lane struct {
	slot chan struct{}
	refs int
}

// NewSequencer creates an empty Sequencer
func NewSequencer() *Sequencer {
	return &Sequencer{lanes: make(map[string]*lane)}
}

// Acquire blocks until the lane for key is free or ctx is done.
// The returned release function must be called exactly once; extra calls are no-ops.
func (s *Sequencer) Acquire(ctx context.Context, key string) (func(), error) {
	s.mu.Lock()
	l, ok := s.lanes[key]
	if !ok {
		l = &lane{slot: make(chan struct{}, 1)}
		s.lanes[key] = l
	}
	l.refs++
	s.mu.Unlock()

	select {
	case l.slot <- struct{}{}:
	case <-ctx.Done():
		s.leave(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.slot
			s.leave(key, l)
		})
	}, nil
}

// Len returns the number of keys currently held or waited on
func (s *Sequencer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lanes)
}

func (s *Sequencer) leave(key string, l *lane) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(s.lanes, key)
	}
}
