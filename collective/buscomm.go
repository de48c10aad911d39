package collective

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"

	"github.com/vinayprograms/rectopt/bus"
	"github.com/vinayprograms/rectopt/errors"
	"github.com/vinayprograms/rectopt/logging"
)

// envelope is one rank's contribution to one collective call.
type envelope struct {
	Seq  uint64 `json:"seq"`
	Rank int    `json:"rank"`
	Op   Op     `json:"op"`
	Data []byte `json:"data,omitempty"`
}

// BusComm implements Communicator over a bus.MessageBus. A BusComm is used
// by one goroutine at a time.
type BusComm struct {
	mb     bus.MessageBus
	cfg    Config
	logger *logging.Logger

	sub   bus.Subscription
	seq   uint64
	early map[uint64][]envelope
}

var _ Communicator = (*BusComm)(nil)

// newBusComm validates cfg and subscribes to the group subject.
func newBusComm(mb bus.MessageBus, cfg Config) (*BusComm, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sub, err := mb.Subscribe(cfg.collSubject())
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeUnavailable, "subscribe collective subject",
			errors.WithRank(cfg.Rank))
	}

	return &BusComm{
		mb:     mb,
		cfg:    cfg,
		logger: cfg.Logger.WithComponent("collective").WithRank(cfg.Rank),
		sub:    sub,
		early:  make(map[uint64][]envelope),
	}, nil
}

// Rank returns this communicator's rank.
func (c *BusComm) Rank() int { return c.cfg.Rank }

// Size returns the group size.
func (c *BusComm) Size() int { return c.cfg.Size }

// Broadcast returns root's data on every rank. Root receives its own
// contribution back through the bus like every other rank.
func (c *BusComm) Broadcast(ctx context.Context, root int, data []byte) ([]byte, error) {
	if root < 0 || root >= c.cfg.Size {
		return nil, errors.Newf(errors.ErrCodeInvalidInput, "broadcast root %d outside group of %d", root, c.cfg.Size)
	}

	c.seq++
	seq := c.seq

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	if c.cfg.Rank == root {
		if err := c.publish(ctx, OpBroadcast, seq, data); err != nil {
			return nil, c.fail(OpBroadcast, seq, err)
		}
	}

	got, err := c.collect(ctx, OpBroadcast, seq, func(env envelope) error {
		if env.Rank != root {
			return errors.CoordinationFailure(
				fmt.Sprintf("broadcast from rank %d, expected root %d", env.Rank, root))
		}
		return nil
	}, 1)
	if err != nil {
		return nil, c.fail(OpBroadcast, seq, err)
	}
	return got[root], nil
}

// Allgather returns every rank's data ordered by rank.
func (c *BusComm) Allgather(ctx context.Context, data []byte) ([][]byte, error) {
	return c.gather(ctx, OpAllgather, data)
}

// Barrier returns once every rank has entered it.
func (c *BusComm) Barrier(ctx context.Context) error {
	_, err := c.gather(ctx, OpBarrier, nil)
	return err
}

func (c *BusComm) gather(ctx context.Context, op Op, data []byte) ([][]byte, error) {
	c.seq++
	seq := c.seq

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	if err := c.publish(ctx, op, seq, data); err != nil {
		return nil, c.fail(op, seq, err)
	}

	got, err := c.collect(ctx, op, seq, nil, c.cfg.Size)
	if err != nil {
		return nil, c.fail(op, seq, err)
	}

	out := make([][]byte, c.cfg.Size)
	for rank, d := range got {
		out[rank] = d
	}
	return out, nil
}

// Close releases the subscription. The bus itself is not closed.
func (c *BusComm) Close() error {
	return c.sub.Unsubscribe()
}

func (c *BusComm) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.PeerTimeout > 0 {
		return context.WithTimeout(ctx, c.cfg.PeerTimeout)
	}
	return context.WithCancel(ctx)
}

func (c *BusComm) publish(ctx context.Context, op Op, seq uint64, data []byte) error {
	payload, err := json.Marshal(envelope{Seq: seq, Rank: c.cfg.Rank, Op: op, Data: data})
	if err != nil {
		return errors.Wrap(err, "encode envelope")
	}
	return c.mb.Publish(ctx, c.cfg.collSubject(), payload)
}

// collect gathers need distinct contributions for call seq. Contributions
// for later calls are held in c.early; anything for an earlier call, a
// different op, a foreign rank or a repeated rank is a coordination error.
func (c *BusComm) collect(ctx context.Context, op Op, seq uint64, check func(envelope) error, need int) (map[int][]byte, error) {
	got := make(map[int][]byte, need)

	accept := func(env envelope) error {
		if env.Op != op {
			return errors.CoordinationFailure(
				fmt.Sprintf("rank %d issued %s for call %d, expected %s", env.Rank, env.Op, seq, op))
		}
		if env.Rank < 0 || env.Rank >= c.cfg.Size {
			return errors.CoordinationFailure(fmt.Sprintf("contribution from rank %d outside group", env.Rank))
		}
		if _, dup := got[env.Rank]; dup {
			return errors.CoordinationFailure(fmt.Sprintf("rank %d contributed twice to call %d", env.Rank, seq))
		}
		if check != nil {
			if err := check(env); err != nil {
				return err
			}
		}
		got[env.Rank] = env.Data
		return nil
	}

	for _, env := range c.early[seq] {
		if err := accept(env); err != nil {
			return nil, err
		}
	}
	delete(c.early, seq)

	for len(got) < need {
		select {
		case msg, ok := <-c.sub.Messages():
			if !ok {
				return nil, errors.New(errors.ErrCodeUnavailable, "collective subscription closed")
			}

			var env envelope
			if err := json.Unmarshal(msg.Data, &env); err != nil {
				return nil, errors.Corruption("decode envelope", errors.WithCause(err))
			}

			switch {
			case env.Seq > seq:
				c.early[env.Seq] = append(c.early[env.Seq], env)
			case env.Seq < seq:
				return nil, errors.CoordinationFailure(
					fmt.Sprintf("rank %d contributed to finished call %d during call %d", env.Rank, env.Seq, seq))
			default:
				if err := accept(env); err != nil {
					return nil, err
				}
			}

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return got, nil
}

// fail attributes err to this rank and call, logs it and returns it typed.
func (c *BusComm) fail(op Op, seq uint64, err error) error {
	msg := fmt.Sprintf("%s call %d", op, seq)
	opts := []errors.Option{
		errors.WithRank(c.cfg.Rank),
		errors.WithMetadata("op", string(op)),
		errors.WithMetadata("seq", strconv.FormatUint(seq, 10)),
	}

	var typed *errors.Error
	if stderrors.Is(err, bus.ErrClosed) {
		typed = errors.WrapWithCode(err, errors.ErrCodeUnavailable, msg, opts...)
	} else {
		typed = errors.Wrap(err, msg, opts...)
	}
	c.logger.CollectiveFailure(string(op), seq, typed)
	return typed
}
