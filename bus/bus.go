package bus

import (
	"context"
	"errors"
	"sync"
)

// Common errors.
var (
	ErrClosed         = errors.New("bus closed")
	ErrInvalidSubject = errors.New("invalid subject")
)

// Message represents a message received from the bus.
type Message struct {
	// Subject the message was published to.
	Subject string

	// Data is the message payload. Read-only.
	Data []byte
}

// MessageBus provides lossless pub/sub messaging.
type MessageBus interface {
	// Publish sends a message to all subscribers of a subject. It blocks
	// while a subscriber's buffer is full, until ctx is done.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe creates a subscription to a subject.
	// All subscribers receive all messages.
	Subscribe(subject string) (Subscription, error)

	// Close shuts down the bus and ends every subscription.
	Close() error
}

// Subscription represents an active subscription.
type Subscription interface {
	// Messages returns the channel for incoming messages.
	// Channel is closed when the subscription ends.
	Messages() <-chan *Message

	// Unsubscribe cancels the subscription.
	Unsubscribe() error
}

// Config holds common bus configuration.
type Config struct {
	// BufferSize for subscription channels.
	// Default: 256
	BufferSize int
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize: 256,
	}
}

// ValidateSubject checks if a subject is valid.
func ValidateSubject(subject string) error {
	if subject == "" {
		return ErrInvalidSubject
	}
	return nil
}

// chanSub is the channel-backed subscription shared by both buses.
// Senders hold mu for reading while they block; Unsubscribe signals done
// first so blocked senders leave, then closes ch under the write lock.
type chanSub struct {
	subject string
	ch      chan *Message
	done    chan struct{}
	once    sync.Once

	mu     sync.RWMutex
	closed bool

	// onUnsubscribe detaches the subscription from its bus.
	onUnsubscribe func() error
}

func newChanSub(subject string, bufferSize int) *chanSub {
	return &chanSub{
		subject: subject,
		ch:      make(chan *Message, bufferSize),
		done:    make(chan struct{}),
	}
}

// deliver blocks until msg is queued, the subscription ends (nil), or ctx is
// done (ctx.Err()).
func (s *chanSub) deliver(ctx context.Context, msg *Message) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil
	}

	select {
	case s.ch <- msg:
		return nil
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Messages returns the message channel.
func (s *chanSub) Messages() <-chan *Message {
	return s.ch
}

// Unsubscribe cancels the subscription.
func (s *chanSub) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		if s.onUnsubscribe != nil {
			err = s.onUnsubscribe()
		}

		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
	return err
}
