package collective

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vinayprograms/rectopt/bus"
	"github.com/vinayprograms/rectopt/errors"
)

// --- Unit Tests ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"single", Config{Rank: 0, Size: 1}, false},
		{"last rank", Config{Rank: 3, Size: 4}, false},
		{"zero size", Config{Rank: 0, Size: 0}, true},
		{"rank too high", Config{Rank: 4, Size: 4}, true},
		{"negative rank", Config{Rank: -1, Size: 4}, true},
		{"negative timeout", Config{Rank: 0, Size: 2, PeerTimeout: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrCodeInvalidInput) {
				t.Errorf("code = %s, want INVALID_INPUT", errors.Code(err))
			}
		})
	}
}

func TestLocalBufferSize(t *testing.T) {
	if got := LocalBufferSize(1); got != 256 {
		t.Errorf("LocalBufferSize(1) = %d, want 256", got)
	}
	if got := LocalBufferSize(100); got != 408 {
		t.Errorf("LocalBufferSize(100) = %d, want 408", got)
	}
}

func TestNewGroup_InvalidSize(t *testing.T) {
	if _, err := NewLocalGroup(0, Config{}); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
}

// --- Group Tests ---

func newTestGroup(t *testing.T, size int) *Group {
	t.Helper()
	g, err := NewLocalGroup(size, Config{PeerTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewLocalGroup: %v", err)
	}
	t.Cleanup(func() { g.Close() })
	return g
}

func TestGroup_Broadcast(t *testing.T) {
	for _, size := range []int{1, 2, 4, 7} {
		t.Run(fmt.Sprintf("size=%d", size), func(t *testing.T) {
			g := newTestGroup(t, size)
			root := size - 1

			var mu sync.Mutex
			got := make(map[int]string)

			err := Run(context.Background(), g.Comms(), func(ctx context.Context, comm Communicator) error {
				var data []byte
				if comm.Rank() == root {
					data = []byte("pool")
				}
				out, err := comm.Broadcast(ctx, root, data)
				if err != nil {
					return err
				}
				mu.Lock()
				got[comm.Rank()] = string(out)
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}

			for rank := 0; rank < size; rank++ {
				if got[rank] != "pool" {
					t.Errorf("rank %d received %q", rank, got[rank])
				}
			}
		})
	}
}

func TestGroup_AllgatherOrderedByRank(t *testing.T) {
	const size = 5
	g := newTestGroup(t, size)

	results := make([][][]byte, size)
	err := Run(context.Background(), g.Comms(), func(ctx context.Context, comm Communicator) error {
		// Several rounds so that fast ranks run ahead of slow ones.
		for round := 0; round < 10; round++ {
			out, err := comm.Allgather(ctx, []byte(fmt.Sprintf("r%d-%d", comm.Rank(), round)))
			if err != nil {
				return err
			}
			if round == 9 {
				results[comm.Rank()] = out
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for rank, out := range results {
		if len(out) != size {
			t.Fatalf("rank %d gathered %d entries", rank, len(out))
		}
		for i, d := range out {
			if want := fmt.Sprintf("r%d-9", i); string(d) != want {
				t.Errorf("rank %d entry %d = %q, want %q", rank, i, d, want)
			}
		}
	}
}

func TestGroup_MixedCallsStayInStep(t *testing.T) {
	const size = 4
	g := newTestGroup(t, size)

	err := Run(context.Background(), g.Comms(), func(ctx context.Context, comm Communicator) error {
		for round := 0; round < 20; round++ {
			var data []byte
			if comm.Rank() == 0 {
				data = []byte{byte(round)}
			}
			out, err := comm.Broadcast(ctx, 0, data)
			if err != nil {
				return err
			}
			if len(out) != 1 || out[0] != byte(round) {
				return fmt.Errorf("rank %d round %d: broadcast %v", comm.Rank(), round, out)
			}
			if _, err := comm.Allgather(ctx, out); err != nil {
				return err
			}
			if err := comm.Barrier(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestGroup_OpMismatch(t *testing.T) {
	g := newTestGroup(t, 2)

	err := Run(context.Background(), g.Comms(), func(ctx context.Context, comm Communicator) error {
		if comm.Rank() == 0 {
			return comm.Barrier(ctx)
		}
		_, err := comm.Allgather(ctx, []byte("x"))
		return err
	})
	if !errors.Is(err, errors.ErrCodeCoordination) {
		t.Fatalf("expected COORDINATION, got %v", err)
	}
}

func TestGroup_PeerTimeout(t *testing.T) {
	g, err := NewLocalGroup(2, Config{PeerTimeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewLocalGroup: %v", err)
	}
	defer g.Close()

	// Rank 1 never shows up.
	_, err = g.Comms()[0].Allgather(context.Background(), []byte("x"))
	if !errors.Is(err, errors.ErrCodeTimeout) {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
	if typed := errors.As(err); typed.Rank() != 0 {
		t.Errorf("rank = %d, want 0", typed.Rank())
	}
	if md := errors.As(err).Metadata(); md["op"] != "allgather" || md["seq"] != "1" {
		t.Errorf("metadata = %v", md)
	}
}

func TestGroup_CanceledContext(t *testing.T) {
	g := newTestGroup(t, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := g.Comms()[0].Barrier(ctx)
	if !errors.Is(err, errors.ErrCodeCanceled) {
		t.Fatalf("expected CANCELED, got %v", err)
	}
}

func TestGroup_ClosedBus(t *testing.T) {
	mb := bus.NewMemoryBus(bus.Config{BufferSize: 16})
	g, err := NewGroup(mb, 2, Config{PeerTimeout: time.Second})
	if err != nil {
		t.Fatalf("NewGroup: %v", err)
	}
	defer g.Close()

	mb.Close()

	err = g.Comms()[1].Barrier(context.Background())
	if !errors.Is(err, errors.ErrCodeUnavailable) {
		t.Fatalf("expected UNAVAILABLE, got %v", err)
	}
}

func TestBroadcast_InvalidRoot(t *testing.T) {
	g := newTestGroup(t, 2)

	_, err := g.Comms()[0].Broadcast(context.Background(), 2, nil)
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

// --- Wire Tests ---

// newWireComm returns rank 1 of a two-rank group and a function that
// injects envelopes as if sent by rank 0.
func newWireComm(t *testing.T) (*BusComm, func(env envelope)) {
	t.Helper()

	mb := bus.NewMemoryBus(bus.Config{BufferSize: 64})
	t.Cleanup(func() { mb.Close() })

	comm, err := newBusComm(mb, Config{Rank: 1, Size: 2, PeerTimeout: time.Second})
	if err != nil {
		t.Fatalf("newBusComm: %v", err)
	}

	inject := func(env envelope) {
		data, err := json.Marshal(env)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if err := mb.Publish(context.Background(), comm.cfg.collSubject(), data); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	return comm, inject
}

func TestBusComm_EarlyContributionHeld(t *testing.T) {
	comm, inject := newWireComm(t)

	inject(envelope{Seq: 2, Rank: 0, Op: OpAllgather, Data: []byte("second")})
	inject(envelope{Seq: 1, Rank: 0, Op: OpAllgather, Data: []byte("first")})

	out, err := comm.Allgather(context.Background(), []byte("a"))
	if err != nil {
		t.Fatalf("first Allgather: %v", err)
	}
	if string(out[0]) != "first" || string(out[1]) != "a" {
		t.Errorf("first call gathered %q", out)
	}

	out, err = comm.Allgather(context.Background(), []byte("b"))
	if err != nil {
		t.Fatalf("second Allgather: %v", err)
	}
	if string(out[0]) != "second" || string(out[1]) != "b" {
		t.Errorf("second call gathered %q", out)
	}
	if comm.seq != 2 {
		t.Errorf("seq = %d, want 2", comm.seq)
	}
}

func TestBusComm_StaleContribution(t *testing.T) {
	comm, inject := newWireComm(t)

	inject(envelope{Seq: 1, Rank: 0, Op: OpBarrier})
	if err := comm.Barrier(context.Background()); err != nil {
		t.Fatalf("Barrier: %v", err)
	}

	inject(envelope{Seq: 1, Rank: 0, Op: OpBarrier})
	err := comm.Barrier(context.Background())
	if !errors.Is(err, errors.ErrCodeCoordination) {
		t.Fatalf("expected COORDINATION, got %v", err)
	}
}

func TestBusComm_DuplicateContribution(t *testing.T) {
	comm, inject := newWireComm(t)

	inject(envelope{Seq: 1, Rank: 0, Op: OpAllgather, Data: []byte("x")})
	inject(envelope{Seq: 1, Rank: 0, Op: OpAllgather, Data: []byte("y")})

	_, err := comm.Allgather(context.Background(), []byte("z"))
	if !errors.Is(err, errors.ErrCodeCoordination) {
		t.Fatalf("expected COORDINATION, got %v", err)
	}
}

func TestBusComm_BroadcastFromWrongRank(t *testing.T) {
	comm, inject := newWireComm(t)

	// Rank 0 claims to be root while rank 1 expects itself as root.
	inject(envelope{Seq: 1, Rank: 0, Op: OpBroadcast, Data: []byte("x")})

	_, err := comm.Broadcast(context.Background(), 1, []byte("mine"))
	if !errors.Is(err, errors.ErrCodeCoordination) {
		t.Fatalf("expected COORDINATION, got %v", err)
	}
}

func TestBusComm_CorruptEnvelope(t *testing.T) {
	comm, _ := newWireComm(t)

	mb := comm.mb
	if err := mb.Publish(context.Background(), comm.cfg.collSubject(), []byte("{not json")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	err := comm.Barrier(context.Background())
	if !errors.Is(err, errors.ErrCodeCorruption) {
		t.Fatalf("expected CORRUPTION, got %v", err)
	}
}

// --- Dial Tests ---

func TestDial_Handshake(t *testing.T) {
	const size = 3
	mb := bus.NewMemoryBus(bus.Config{BufferSize: LocalBufferSize(size)})
	defer mb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	comms := make([]Communicator, size)
	errs := make([]error, size)
	var wg sync.WaitGroup
	for rank := 0; rank < size; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			// Stagger so some ranks announce before the root listens.
			time.Sleep(time.Duration(size-rank) * 20 * time.Millisecond)
			comm, err := Dial(ctx, mb, Config{
				Subject:      "dialtest",
				Rank:         rank,
				Size:         size,
				JoinInterval: 10 * time.Millisecond,
				PeerTimeout:  2 * time.Second,
			})
			comms[rank], errs[rank] = comm, err
		}(rank)
	}
	wg.Wait()

	for rank, err := range errs {
		if err != nil {
			t.Fatalf("rank %d Dial: %v", rank, err)
		}
	}
	defer func() {
		for _, c := range comms {
			c.Close()
		}
	}()

	err := Run(ctx, comms, func(ctx context.Context, comm Communicator) error {
		out, err := comm.Allgather(ctx, []byte{byte(comm.Rank())})
		if err != nil {
			return err
		}
		for i, d := range out {
			if len(d) != 1 || int(d[0]) != i {
				return fmt.Errorf("rank %d: entry %d = %v", comm.Rank(), i, d)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run after Dial: %v", err)
	}
}

func TestDial_RootWaitsForMissingRank(t *testing.T) {
	mb := bus.NewMemoryBus(bus.DefaultConfig())
	defer mb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Dial(ctx, mb, Config{Rank: 0, Size: 2})
	if !errors.Is(err, errors.ErrCodeTimeout) {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
}

func TestDial_SingleRank(t *testing.T) {
	mb := bus.NewMemoryBus(bus.DefaultConfig())
	defer mb.Close()

	comm, err := Dial(context.Background(), mb, Config{Rank: 0, Size: 1})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer comm.Close()

	out, err := comm.Broadcast(context.Background(), 0, []byte("solo"))
	if err != nil || string(out) != "solo" {
		t.Fatalf("Broadcast = %q, %v", out, err)
	}
}
