package collective

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vinayprograms/rectopt/bus"
	"github.com/vinayprograms/rectopt/errors"
)

// Group is an in-process set of communicators sharing one bus.
type Group struct {
	comms   []*BusComm
	mb      bus.MessageBus
	ownsBus bool
}

// NewGroup creates size communicators on mb. Every rank is subscribed
// before NewGroup returns, so no join handshake is needed.
func NewGroup(mb bus.MessageBus, size int, cfg Config) (*Group, error) {
	if size < 1 {
		return nil, errors.InvalidInput("group size must be at least 1")
	}

	g := &Group{mb: mb}
	for rank := 0; rank < size; rank++ {
		rc := cfg
		rc.Rank = rank
		rc.Size = size
		comm, err := newBusComm(mb, rc)
		if err != nil {
			g.Close()
			return nil, err
		}
		g.comms = append(g.comms, comm)
	}
	return g, nil
}

// LocalBufferSize returns the subscription buffer a MemoryBus needs so that
// a group of size ranks never blocks a publisher on a rank that is between
// calls.
func LocalBufferSize(size int) int {
	n := 4*size + 8
	if n < bus.DefaultConfig().BufferSize {
		n = bus.DefaultConfig().BufferSize
	}
	return n
}

// NewLocalGroup creates a group on a private MemoryBus that is closed with
// the group.
func NewLocalGroup(size int, cfg Config) (*Group, error) {
	mb := bus.NewMemoryBus(bus.Config{BufferSize: LocalBufferSize(size)})
	g, err := NewGroup(mb, size, cfg)
	if err != nil {
		mb.Close()
		return nil, err
	}
	g.ownsBus = true
	return g, nil
}

// Comms returns the communicators ordered by rank.
func (g *Group) Comms() []Communicator {
	out := make([]Communicator, len(g.comms))
	for i, c := range g.comms {
		out[i] = c
	}
	return out
}

// Size returns the number of ranks.
func (g *Group) Size() int {
	return len(g.comms)
}

// Close releases every communicator, and the bus if the group created it.
func (g *Group) Close() error {
	var errs []error
	for _, c := range g.comms {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if g.ownsBus {
		if err := g.mb.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run calls fn once per communicator, each on its own goroutine, and
// returns the first error. The context passed to fn is canceled as soon as
// any rank fails so that peers blocked in a collective return.
func Run(ctx context.Context, comms []Communicator, fn func(ctx context.Context, comm Communicator) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, comm := range comms {
		comm := comm
		g.Go(func() error {
			return fn(gctx, comm)
		})
	}
	return g.Wait()
}

type joinMessage struct {
	Rank int `json:"rank"`
}

type startMessage struct {
	Size int `json:"size"`
}

// Dial creates the communicator for cfg.Rank on a bus shared with other
// processes. It returns once every rank of cfg.Size has joined, or when
// ctx is done.
//
// Non-root ranks announce themselves on "<subject>.join" every
// JoinInterval until rank 0 answers on "<subject>.start". Rank 0 answers
// after it has heard from all of them. Each rank subscribes to the
// collective subject before announcing, so no contribution can be missed.
func Dial(ctx context.Context, mb bus.MessageBus, cfg Config) (*BusComm, error) {
	comm, err := newBusComm(mb, cfg)
	if err != nil {
		return nil, err
	}
	cfg = comm.cfg

	if cfg.Size > 1 {
		if cfg.Rank == 0 {
			err = awaitJoins(ctx, mb, cfg)
		} else {
			err = announce(ctx, mb, cfg)
		}
	}
	if err != nil {
		comm.Close()
		return nil, err
	}

	comm.logger.Info("group joined", map[string]interface{}{
		"subject": cfg.Subject,
		"size":    cfg.Size,
	})
	return comm, nil
}

func awaitJoins(ctx context.Context, mb bus.MessageBus, cfg Config) error {
	sub, err := mb.Subscribe(cfg.joinSubject())
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrCodeUnavailable, "subscribe join subject", errors.WithRank(cfg.Rank))
	}
	defer sub.Unsubscribe()

	joined := make(map[int]bool, cfg.Size-1)
	for len(joined) < cfg.Size-1 {
		select {
		case msg, ok := <-sub.Messages():
			if !ok {
				return errors.New(errors.ErrCodeUnavailable, "join subscription closed", errors.WithRank(cfg.Rank))
			}
			var jm joinMessage
			if err := json.Unmarshal(msg.Data, &jm); err != nil {
				return errors.Corruption("decode join message", errors.WithCause(err), errors.WithRank(cfg.Rank))
			}
			if jm.Rank <= 0 || jm.Rank >= cfg.Size {
				return errors.CoordinationFailure(
					fmt.Sprintf("join from rank %d outside group of %d", jm.Rank, cfg.Size), errors.WithRank(cfg.Rank))
			}
			joined[jm.Rank] = true
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), fmt.Sprintf("waiting for %d of %d ranks", cfg.Size-1-len(joined), cfg.Size-1),
				errors.WithRank(cfg.Rank))
		}
	}

	data, err := json.Marshal(startMessage{Size: cfg.Size})
	if err != nil {
		return errors.Wrap(err, "encode start message")
	}
	if err := mb.Publish(ctx, cfg.startSubject(), data); err != nil {
		return errors.WrapWithCode(err, errors.ErrCodeUnavailable, "publish start", errors.WithRank(cfg.Rank))
	}
	return nil
}

func announce(ctx context.Context, mb bus.MessageBus, cfg Config) error {
	sub, err := mb.Subscribe(cfg.startSubject())
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrCodeUnavailable, "subscribe start subject", errors.WithRank(cfg.Rank))
	}
	defer sub.Unsubscribe()

	hello, err := json.Marshal(joinMessage{Rank: cfg.Rank})
	if err != nil {
		return errors.Wrap(err, "encode join message")
	}

	ticker := time.NewTicker(cfg.JoinInterval)
	defer ticker.Stop()

	for {
		if err := mb.Publish(ctx, cfg.joinSubject(), hello); err != nil {
			return errors.WrapWithCode(err, errors.ErrCodeUnavailable, "publish join", errors.WithRank(cfg.Rank))
		}

		select {
		case msg, ok := <-sub.Messages():
			if !ok {
				return errors.New(errors.ErrCodeUnavailable, "start subscription closed", errors.WithRank(cfg.Rank))
			}
			var sm startMessage
			if err := json.Unmarshal(msg.Data, &sm); err != nil {
				return errors.Corruption("decode start message", errors.WithCause(err), errors.WithRank(cfg.Rank))
			}
			if sm.Size != cfg.Size {
				return errors.CoordinationFailure(
					fmt.Sprintf("root started a group of %d, expected %d", sm.Size, cfg.Size), errors.WithRank(cfg.Rank))
			}
			return nil
		case <-ticker.C:
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "waiting for root to start the group", errors.WithRank(cfg.Rank))
		}
	}
}
