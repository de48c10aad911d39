package results

import (
	"context"
	"sync"

	"github.com/vinayprograms/rectopt/errors"
)

const defaultSubBuffer = 16

// subscribers tracks live subscriptions per run.
type subscribers struct {
	mu   sync.Mutex
	subs map[string][]*resultSub
}

func (s *subscribers) add(sub *resultSub) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[string][]*resultSub)
	}
	s.subs[sub.runID] = append(s.subs[sub.runID], sub)
}

func (s *subscribers) remove(sub *resultSub) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.subs[sub.runID]
	for i, other := range list {
		if other == sub {
			s.subs[sub.runID] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(s.subs[sub.runID]) == 0 {
		delete(s.subs, sub.runID)
	}
}

func (s *subscribers) snapshot(runID string) []*resultSub {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*resultSub(nil), s.subs[runID]...)
}

func (s *subscribers) closeAll() {
	s.mu.Lock()
	var all []*resultSub
	for _, list := range s.subs {
		all = append(all, list...)
	}
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range all {
		sub.Cancel()
	}
}

// MemoryPublisher implements Publisher in memory.
type MemoryPublisher struct {
	store *store
	subs  subscribers
}

var _ Publisher = (*MemoryPublisher)(nil)

// NewMemoryPublisher creates a new in-memory result publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{store: newStore()}
}

// Publish stores r and notifies subscribers of r.RunID.
func (p *MemoryPublisher) Publish(ctx context.Context, r Result) error {
	stored, err := p.store.put(r)
	if err != nil {
		return err
	}

	for _, sub := range p.subs.snapshot(stored.RunID) {
		sub.send(stored.Clone())
		if sub.isClosed() {
			p.subs.remove(sub)
		}
	}
	return nil
}

// Get retrieves a result by run ID.
func (p *MemoryPublisher) Get(ctx context.Context, runID string) (*Result, error) {
	return p.store.get(runID)
}

// List returns matching results, oldest first.
func (p *MemoryPublisher) List(filter Filter) ([]*Result, error) {
	return p.store.list(filter)
}

// Subscribe delivers updates for runID.
func (p *MemoryPublisher) Subscribe(runID string) (Subscription, error) {
	if p.store.isClosed() {
		return nil, errClosed()
	}
	if runID == "" {
		return nil, errors.InvalidInput("subscribe needs a run ID")
	}

	sub := newResultSub(runID, defaultSubBuffer)
	sub.onCancel = func() { p.subs.remove(sub) }

	if existing := p.store.peek(runID); existing != nil {
		sub.send(existing)
		if sub.isClosed() {
			return sub, nil
		}
	}
	p.subs.add(sub)
	return sub, nil
}

// Close shuts down the publisher.
func (p *MemoryPublisher) Close() error {
	if p.store.close() {
		p.subs.closeAll()
	}
	return nil
}
