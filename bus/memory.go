package bus

import (
	"context"
	"sync"
	"sync/atomic"
)

// MemoryBus implements MessageBus using in-memory channels.
// Every rank of an in-process group shares one MemoryBus.
type MemoryBus struct {
	config Config

	mu     sync.RWMutex
	subs   map[string][]*chanSub
	closed atomic.Bool
}

// NewMemoryBus creates a new in-memory message bus.
func NewMemoryBus(cfg Config) *MemoryBus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}

	return &MemoryBus{
		config: cfg,
		subs:   make(map[string][]*chanSub),
	}
}

// Publish sends a message to all subscribers, blocking on full buffers.
func (b *MemoryBus) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ValidateSubject(subject); err != nil {
		return err
	}
	if b.closed.Load() {
		return ErrClosed
	}

	msg := &Message{
		Subject: subject,
		Data:    data,
	}

	// Snapshot so Unsubscribe never waits on a blocked publisher.
	b.mu.RLock()
	subs := make([]*chanSub, len(b.subs[subject]))
	copy(subs, b.subs[subject])
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.deliver(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe creates a subscription to a subject.
func (b *MemoryBus) Subscribe(subject string) (Subscription, error) {
	if err := ValidateSubject(subject); err != nil {
		return nil, err
	}
	if b.closed.Load() {
		return nil, ErrClosed
	}

	sub := newChanSub(subject, b.config.BufferSize)
	sub.onUnsubscribe = func() error {
		b.removeSub(subject, sub)
		return nil
	}

	b.mu.Lock()
	b.subs[subject] = append(b.subs[subject], sub)
	b.mu.Unlock()

	return sub, nil
}

// subscriberCount returns the number of live subscriptions on subject.
func (b *MemoryBus) subscriberCount(subject string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[subject])
}

// Close shuts down the bus and ends every subscription.
func (b *MemoryBus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}

	b.mu.Lock()
	var all []*chanSub
	for _, subs := range b.subs {
		all = append(all, subs...)
	}
	b.subs = make(map[string][]*chanSub)
	b.mu.Unlock()

	for _, sub := range all {
		sub.Unsubscribe()
	}
	return nil
}

// removeSub removes a subscription.
func (b *MemoryBus) removeSub(subject string, target *chanSub) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[subject]
	for i, sub := range subs {
		if sub == target {
			b.subs[subject] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[subject]) == 0 {
		delete(b.subs, subject)
	}
}
