package results

import (
	"context"
	"encoding/json"

	"github.com/vinayprograms/rectopt/bus"
	"github.com/vinayprograms/rectopt/errors"
)

// BusPublisherConfig configures the bus-backed result publisher.
type BusPublisherConfig struct {
	// SubjectPrefix is the prefix for result subjects.
	// Default: "results"
	SubjectPrefix string

	// BufferSize for subscription channels.
	// Default: 16
	BufferSize int
}

// DefaultBusPublisherConfig returns configuration with sensible defaults.
func DefaultBusPublisherConfig() BusPublisherConfig {
	return BusPublisherConfig{
		SubjectPrefix: "results",
		BufferSize:    defaultSubBuffer,
	}
}

// BusPublisher implements Publisher with local storage and updates
// broadcast over a message bus. Subscribers see updates published by any
// process on the same bus.
type BusPublisher struct {
	bus    bus.MessageBus
	config BusPublisherConfig
	store  *store
	subs   subscribers
}

var _ Publisher = (*BusPublisher)(nil)

// NewBusPublisher creates a new bus-backed result publisher.
func NewBusPublisher(mb bus.MessageBus, cfg BusPublisherConfig) *BusPublisher {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultBusPublisherConfig().SubjectPrefix
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBusPublisherConfig().BufferSize
	}

	return &BusPublisher{
		bus:    mb,
		config: cfg,
		store:  newStore(),
	}
}

// Subject returns the bus subject carrying updates for runID.
func (p *BusPublisher) Subject(runID string) string {
	return p.config.SubjectPrefix + "." + runID
}

// Publish stores r and broadcasts it. A broadcast failure is returned even
// though the local copy was stored.
func (p *BusPublisher) Publish(ctx context.Context, r Result) error {
	stored, err := p.store.put(r)
	if err != nil {
		return err
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return errors.Wrap(err, "encode result")
	}
	if err := p.bus.Publish(ctx, p.Subject(stored.RunID), data); err != nil {
		return errors.WrapWithCode(err, errors.ErrCodeUnavailable, "broadcast result",
			errors.WithRunID(stored.RunID))
	}
	return nil
}

// Get retrieves a result by run ID from the local cache.
func (p *BusPublisher) Get(ctx context.Context, runID string) (*Result, error) {
	return p.store.get(runID)
}

// List returns matching results from the local cache, oldest first.
func (p *BusPublisher) List(filter Filter) ([]*Result, error) {
	return p.store.list(filter)
}

// Subscribe relays bus updates for runID. Relayed results also refresh
// the local cache.
func (p *BusPublisher) Subscribe(runID string) (Subscription, error) {
	if p.store.isClosed() {
		return nil, errClosed()
	}
	if runID == "" {
		return nil, errors.InvalidInput("subscribe needs a run ID")
	}

	sub := newResultSub(runID, p.config.BufferSize)
	if existing := p.store.peek(runID); existing != nil {
		sub.send(existing)
		if sub.isClosed() {
			return sub, nil
		}
	}

	busSub, err := p.bus.Subscribe(p.Subject(runID))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeUnavailable, "subscribe to results",
			errors.WithRunID(runID))
	}

	sub.onCancel = func() {
		p.subs.remove(sub)
		busSub.Unsubscribe()
	}
	p.subs.add(sub)

	go p.relay(sub, busSub)
	return sub, nil
}

// relay forwards bus messages until a terminal result arrives or the bus
// subscription ends.
func (p *BusPublisher) relay(sub *resultSub, busSub bus.Subscription) {
	defer func() {
		busSub.Unsubscribe()
		p.subs.remove(sub)
		sub.close()
	}()

	for msg := range busSub.Messages() {
		var r Result
		if err := json.Unmarshal(msg.Data, &r); err != nil {
			continue
		}
		if r.RunID != sub.runID {
			continue
		}

		p.store.cache(&r)
		sub.send(r.Clone())
		if r.Status.IsTerminal() || sub.isClosed() {
			return
		}
	}
}

// Close shuts down the publisher. The bus is not closed.
func (p *BusPublisher) Close() error {
	if p.store.close() {
		p.subs.closeAll()
	}
	return nil
}
