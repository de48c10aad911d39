package bus

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/vinayprograms/rectopt/errors"
)

// getNATSURL returns the NATS URL for testing, or skips the test.
func getNATSURL(t *testing.T) string {
	url := os.Getenv("NATS_URL")
	if url == "" {
		url = "nats://localhost:4222"
	}

	if testing.Short() {
		t.Skip("skipping NATS test in short mode")
	}

	cfg := DefaultNATSConfig()
	cfg.URL = url
	cfg.ConnectTimeout = 2 * time.Second
	cfg.MaxReconnects = 0

	bus, err := NewNATSBus(cfg)
	if err != nil {
		t.Skipf("skipping: NATS not available at %s: %v", url, err)
	}
	bus.Close()

	return url
}

func newTestNATSBus(t *testing.T, url string, bufferSize int) *NATSBus {
	t.Helper()
	cfg := DefaultNATSConfig()
	cfg.URL = url
	cfg.BufferSize = bufferSize
	bus, err := NewNATSBus(cfg)
	if err != nil {
		t.Fatalf("NewNATSBus error: %v", err)
	}
	t.Cleanup(func() { bus.Close() })
	return bus
}

// --- Integration Tests ---

func TestNATSBus_PubSub(t *testing.T) {
	url := getNATSURL(t)
	bus := newTestNATSBus(t, url, 16)

	sub, err := bus.Subscribe("rectopt.test.nats")
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	defer sub.Unsubscribe()

	if err := bus.Publish(context.Background(), "rectopt.test.nats", []byte("hello nats")); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	select {
	case msg := <-sub.Messages():
		if string(msg.Data) != "hello nats" {
			t.Errorf("data = %q, want %q", msg.Data, "hello nats")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestNATSBus_SlowSubscriberLosesNothing(t *testing.T) {
	url := getNATSURL(t)
	pub := newTestNATSBus(t, url, 16)
	recv := newTestNATSBus(t, url, 1)

	sub, err := recv.Subscribe("rectopt.test.slow")
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	defer sub.Unsubscribe()

	const n = 200
	for i := 0; i < n; i++ {
		if err := pub.Publish(context.Background(), "rectopt.test.slow", []byte{byte(i)}); err != nil {
			t.Fatalf("Publish %d: %v", i, err)
		}
	}

	for i := 0; i < n; i++ {
		select {
		case msg := <-sub.Messages():
			if int(msg.Data[0]) != i%256 {
				t.Fatalf("message %d arrived as %d", i, msg.Data[0])
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout at message %d", i)
		}
	}
}

func TestNATSBus_CloseEndsSubscriptions(t *testing.T) {
	url := getNATSURL(t)
	bus := newTestNATSBus(t, url, 4)

	sub, err := bus.Subscribe("rectopt.test.close")
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}

	bus.Close()

	select {
	case _, ok := <-sub.Messages():
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}

	if err := bus.Publish(context.Background(), "rectopt.test.close", nil); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestNewNATSBus_Unreachable(t *testing.T) {
	cfg := DefaultNATSConfig()
	cfg.URL = "nats://127.0.0.1:1"
	cfg.MaxReconnects = 0
	cfg.ConnectTimeout = 200 * time.Millisecond

	_, err := NewNATSBus(cfg)
	if err == nil {
		t.Fatal("expected connect error")
	}
	if !errors.Is(err, errors.ErrCodeUnavailable) {
		t.Fatalf("expected UNAVAILABLE, got %v", err)
	}
	if got := errors.As(err).Metadata()["url"]; got != cfg.URL {
		t.Errorf("url metadata = %q", got)
	}
}

func TestNATSBus_Stats(t *testing.T) {
	url := getNATSURL(t)
	bus := newTestNATSBus(t, url, 8)

	sub, err := bus.Subscribe("rectopt.test.stats")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if err := bus.Publish(context.Background(), "rectopt.test.stats", []byte("x")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case <-sub.Messages():
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
	if st := bus.Stats(); st.OutMsgs < 1 || st.InMsgs < 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}
