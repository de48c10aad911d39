package optimize

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/vinayprograms/rectopt/collective"
	"github.com/vinayprograms/rectopt/errors"
	"github.com/vinayprograms/rectopt/logging"
	"github.com/vinayprograms/rectopt/telemetry"
)

// CoordinatorRank owns the authoritative pool.
const CoordinatorRank = 0

// Engine runs the distributed search for one rank.
//
// Every rank issues the same collective calls in the same order each
// round: broadcast of the pool size, broadcast of the pool, and an
// allgather of local candidates. Only the coordinator splits; the other
// ranks discard their replica and receive a fresh one next round.
type Engine struct {
	comm   collective.Communicator
	opts   Options
	logger *logging.Logger
}

// NewEngine returns an engine for comm's rank.
func NewEngine(comm collective.Communicator, opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		comm:   comm,
		opts:   opts,
		logger: opts.Logger.WithComponent("optimize").WithRank(comm.Rank()),
	}, nil
}

// Run executes the search. Every rank returns the same Outcome.
func (e *Engine) Run(ctx context.Context) (out Outcome, err error) {
	rank, size := e.comm.Rank(), e.comm.Size()
	coordinator := rank == CoordinatorRank
	start := time.Now()

	ctx, runSpan := e.opts.Tracer.StartRunSpan(ctx, telemetry.RunSpanOptions{
		RunID:      e.opts.RunID,
		Mode:       "distributed",
		Objective:  e.opts.ObjectiveName,
		Iterations: e.opts.Iterations,
		Workers:    size,
		Rank:       rank,
	})
	defer func() {
		e.opts.Tracer.EndRunSpan(runSpan, telemetry.RunResult{Minimum: out.Minimum, PoolSize: out.PoolSize, Rounds: out.Rounds}, err)
	}()

	if coordinator {
		e.logger.RunStart("distributed", e.opts.Iterations, size)
	}

	if err := e.agree(ctx); err != nil {
		return Outcome{}, err
	}

	rounds := e.opts.rounds(e.logger)
	scorer := Scorer{Objective: e.opts.Objective, Penalty: e.opts.Penalty}

	pool := &Pool{}
	if coordinator {
		pool = NewPool(e.opts.Bounds)
	}

	for round := 0; round < rounds; round++ {
		if err := e.round(ctx, round, pool, scorer); err != nil {
			return Outcome{}, err
		}
	}

	var payload []byte
	if coordinator {
		payload = encodeOutcome(Outcome{
			Minimum:  pool.Minimum(e.opts.Objective),
			PoolSize: pool.Len(),
			Rounds:   rounds,
		})
	}
	payload, err = e.comm.Broadcast(ctx, CoordinatorRank, payload)
	if err != nil {
		return Outcome{}, e.wrap(err, "broadcast outcome")
	}
	out, err = decodeOutcome(payload)
	if err != nil {
		return Outcome{}, e.wrap(err, "decode outcome")
	}

	if coordinator {
		e.logger.RunComplete("distributed", out.Minimum, out.PoolSize, time.Since(start))
	}
	return out, nil
}

// agree fails every rank when any two ranks were started with different
// inputs, since they would otherwise issue different collective sequences.
func (e *Engine) agree(ctx context.Context) error {
	mine := e.opts.fingerprint()
	all, err := e.comm.Allgather(ctx, mine)
	if err != nil {
		return e.wrap(err, "exchange run parameters")
	}
	for peer, theirs := range all {
		if !bytes.Equal(theirs, mine) {
			return errors.CoordinationFailure(
				fmt.Sprintf("rank %d runs %s, rank %d runs %s", peer, theirs, e.comm.Rank(), mine),
				errors.WithRank(e.comm.Rank()),
				errors.WithRunID(e.opts.RunID),
			)
		}
	}
	return nil
}

func (e *Engine) round(ctx context.Context, round int, pool *Pool, scorer Scorer) error {
	coordinator := e.comm.Rank() == CoordinatorRank

	ctx, span := e.opts.Tracer.StartRoundSpan(ctx, round)
	var res telemetry.RoundResult
	var err error
	defer func() { e.opts.Tracer.EndRoundSpan(span, res, err) }()

	// (a) pool size
	var countData []byte
	if coordinator {
		countData = EncodeCount(pool.Len())
	}
	if countData, err = e.comm.Broadcast(ctx, CoordinatorRank, countData); err != nil {
		return e.wrapRound(err, round, "broadcast pool size")
	}
	count, err := DecodeCount(countData)
	if err != nil {
		return e.wrapRound(err, round, "decode pool size")
	}

	// (b) pool contents
	var poolData []byte
	if coordinator {
		poolData = EncodeRegions(pool.Regions())
	}
	if poolData, err = e.comm.Broadcast(ctx, CoordinatorRank, poolData); err != nil {
		return e.wrapRound(err, round, "broadcast pool")
	}
	if !coordinator {
		regions, derr := DecodeRegions(poolData)
		if derr != nil {
			err = derr
			return e.wrapRound(err, round, "decode pool")
		}
		if len(regions) != count {
			err = errors.CoordinationFailure(fmt.Sprintf("pool holds %d regions, size broadcast said %d", len(regions), count))
			return e.wrapRound(err, round, "replicate pool")
		}
		pool.Replace(regions)
	}

	// (c) slice, (d) local best
	slice, err := Plan(count, e.comm.Size(), e.comm.Rank())
	if err != nil {
		return e.wrapRound(err, round, "plan")
	}
	local := SelectLocal(pool.Regions(), slice, scorer)

	// (e) global best
	best, err := Reduce(ctx, e.comm, local)
	if err != nil {
		return e.wrapRound(err, round, "reduce")
	}
	if best.Valid() && best.Index >= count {
		err = errors.CoordinationFailure(fmt.Sprintf("winning index %d outside pool of %d", best.Index, count))
		return e.wrapRound(err, round, "reduce")
	}

	// (f) split on the coordinator only
	after := count
	if best.Valid() {
		after += 3
		if coordinator {
			if err = pool.Split(best.Index); err != nil {
				return e.wrapRound(err, round, "split")
			}
		}
	}

	res = telemetry.RoundResult{PoolSize: after, Index: best.Index, Score: best.Score}
	e.logger.RoundComplete(round, after, best.Index, best.Score)
	return nil
}

func (e *Engine) wrap(err error, msg string) error {
	return errors.Wrap(err, msg,
		errors.WithRank(e.comm.Rank()),
		errors.WithRunID(e.opts.RunID),
	)
}

func (e *Engine) wrapRound(err error, round int, msg string) error {
	return errors.Wrap(err, fmt.Sprintf("round %d: %s", round, msg),
		errors.WithRank(e.comm.Rank()),
		errors.WithRunID(e.opts.RunID),
		errors.WithMetadata("round", strconv.Itoa(round)),
	)
}

// MinimizeLocal runs the distributed engine with workers ranks in this
// process, one goroutine per rank over a private in-memory bus.
func MinimizeLocal(ctx context.Context, workers int, opts Options, cfg collective.Config) (Outcome, error) {
	if workers < 1 {
		return Outcome{}, errors.InvalidInput(fmt.Sprintf("worker count %d must be at least 1", workers))
	}
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return Outcome{}, err
	}
	if cfg.Logger == nil {
		cfg.Logger = opts.Logger
	}

	group, err := collective.NewLocalGroup(workers, cfg)
	if err != nil {
		return Outcome{}, err
	}
	defer group.Close()

	outcomes := make([]Outcome, workers)
	err = collective.Run(ctx, group.Comms(), func(ctx context.Context, comm collective.Communicator) error {
		engine, err := NewEngine(comm, opts)
		if err != nil {
			return err
		}
		out, err := engine.Run(ctx)
		if err != nil {
			return err
		}
		outcomes[comm.Rank()] = out
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	return outcomes[CoordinatorRank], nil
}
