package bus

import (
	"context"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/vinayprograms/rectopt/errors"
	"github.com/vinayprograms/rectopt/logging"
)

// NATSBus implements MessageBus using NATS. Each rank of a multi-process
// run owns one NATSBus connected to the same server.
type NATSBus struct {
	conn   *nats.Conn
	config NATSConfig
	logger *logging.Logger

	mu   sync.Mutex
	subs map[*chanSub]struct{}
}

// NATSConfig holds NATS connection configuration.
type NATSConfig struct {
	Config

	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// Name identifies the client in server monitoring, e.g. the group
	// subject and rank.
	Name string

	// Token for token-based auth.
	Token string

	// User and Password for basic auth.
	User     string
	Password string

	// ReconnectWait is the time to wait between reconnection attempts.
	ReconnectWait time.Duration

	// MaxReconnects is the maximum number of reconnection attempts.
	// -1 = unlimited
	MaxReconnects int

	// ConnectTimeout for initial connection.
	ConnectTimeout time.Duration

	// Logger receives connection events. Default: discard.
	Logger *logging.Logger
}

// DefaultNATSConfig returns configuration with sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		Config:         DefaultConfig(),
		URL:            nats.DefaultURL,
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1,
		ConnectTimeout: 5 * time.Second,
	}
}

// NewNATSBus connects to cfg.URL. A connection failure is UNAVAILABLE.
func NewNATSBus(cfg NATSConfig) (*NATSBus, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	b := &NATSBus{
		config: cfg,
		logger: cfg.Logger.WithComponent("bus"),
		subs:   make(map[*chanSub]struct{}),
	}

	conn, err := nats.Connect(cfg.URL, b.options()...)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeUnavailable, "nats connect",
			errors.WithMetadata("url", cfg.URL))
	}
	b.conn = conn
	return b, nil
}

// options builds connection options. A rank that loses its connection
// loses collective traffic, so disconnects are logged as errors even when
// the client later reconnects.
func (b *NATSBus) options() []nats.Option {
	cfg := b.config
	opts := []nats.Option{
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			fields := map[string]interface{}{"url": cfg.URL}
			if err != nil {
				fields["error"] = err.Error()
			}
			b.logger.Error("nats disconnected", fields)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			b.logger.Warn("nats reconnected", map[string]interface{}{"url": c.ConnectedUrl()})
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			fields := map[string]interface{}{"error": err.Error()}
			if sub != nil {
				fields["subject"] = sub.Subject
			}
			b.logger.Error("nats async error", fields)
		}),
	}

	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}
	return opts
}

// Publish sends a message to a subject. NATS buffers outbound data, so the
// context is only checked before handing the message over.
func (b *NATSBus) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ValidateSubject(subject); err != nil {
		return err
	}
	if b.conn.IsClosed() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := b.conn.Publish(subject, data); err != nil {
		return errors.WrapWithCode(err, errors.ErrCodeUnavailable, "nats publish",
			errors.WithMetadata("subject", subject))
	}

	return nil
}

// Subscribe creates a subscription to a subject. The NATS callback blocks
// while the local buffer is full; pending limits are lifted so the server
// side never drops a slow rank's messages.
func (b *NATSBus) Subscribe(subject string) (Subscription, error) {
	if err := ValidateSubject(subject); err != nil {
		return nil, err
	}
	if b.conn.IsClosed() {
		return nil, ErrClosed
	}

	sub := newChanSub(subject, b.config.BufferSize)

	natsSub, err := b.conn.Subscribe(subject, func(m *nats.Msg) {
		sub.deliver(context.Background(), &Message{
			Subject: m.Subject,
			Data:    m.Data,
		})
	})
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeUnavailable, "nats subscribe",
			errors.WithMetadata("subject", subject))
	}
	if err := natsSub.SetPendingLimits(-1, -1); err != nil {
		natsSub.Unsubscribe()
		return nil, errors.Wrap(err, "nats pending limits")
	}

	// Subscriptions must be registered server-side before peers publish.
	if err := b.conn.Flush(); err != nil {
		natsSub.Unsubscribe()
		return nil, errors.WrapWithCode(err, errors.ErrCodeUnavailable, "nats flush")
	}

	sub.onUnsubscribe = func() error {
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
		if b.conn.IsClosed() {
			return nil
		}
		return natsSub.Unsubscribe()
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub, nil
}

// Close shuts down the NATS connection and ends every subscription.
func (b *NATSBus) Close() error {
	b.conn.Close()

	b.mu.Lock()
	subs := make([]*chanSub, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	return nil
}

// Stats reports traffic counters for this connection.
func (b *NATSBus) Stats() nats.Statistics {
	return b.conn.Stats()
}
