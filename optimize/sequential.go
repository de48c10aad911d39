package optimize

import (
	"context"
	"time"

	"github.com/vinayprograms/rectopt/telemetry"
)

// Minimize is the single-process reference. Every round scores the whole
// pool and splits the first region with the strictly greatest score. The
// result is the smallest objective value over the final region centers.
//
// After Validate succeeds Minimize cannot fail; ctx only carries the
// parent span.
func Minimize(ctx context.Context, opts Options) (Outcome, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return Outcome{}, err
	}

	logger := opts.Logger.WithComponent("optimize")
	rounds := opts.rounds(logger)
	logger.RunStart("seq", opts.Iterations, 1)
	start := time.Now()

	ctx, runSpan := opts.Tracer.StartRunSpan(ctx, telemetry.RunSpanOptions{
		RunID:      opts.RunID,
		Mode:       "seq",
		Objective:  opts.ObjectiveName,
		Iterations: opts.Iterations,
		Workers:    1,
	})

	pool := NewPool(opts.Bounds)
	scorer := Scorer{Objective: opts.Objective, Penalty: opts.Penalty}

	for round := 0; round < rounds; round++ {
		_, span := opts.Tracer.StartRoundSpan(ctx, round)

		best := SelectLocal(pool.Regions(), Slice{Offset: 0, Count: pool.Len()}, scorer)
		if best.Valid() {
			// Index comes from the scan above, so Split cannot fail.
			_ = pool.Split(best.Index)
		}

		logger.RoundComplete(round, pool.Len(), best.Index, best.Score)
		opts.Tracer.EndRoundSpan(span, telemetry.RoundResult{PoolSize: pool.Len(), Index: best.Index, Score: best.Score}, nil)
	}

	out := Outcome{
		Minimum:  pool.Minimum(opts.Objective),
		PoolSize: pool.Len(),
		Rounds:   rounds,
	}

	logger.RunComplete("seq", out.Minimum, out.PoolSize, time.Since(start))
	opts.Tracer.EndRunSpan(runSpan, telemetry.RunResult{Minimum: out.Minimum, PoolSize: out.PoolSize, Rounds: out.Rounds}, nil)
	return out, nil
}
