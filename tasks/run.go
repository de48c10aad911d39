package tasks

import (
	"context"
	"time"

	"github.com/vinayprograms/rectopt/errors"
	"github.com/vinayprograms/rectopt/logging"
	"github.com/vinayprograms/rectopt/telemetry"
)

type runConfig struct {
	logger *logging.Logger
	tracer *telemetry.Tracer
}

// RunOption configures Run.
type RunOption func(*runConfig)

// WithLogger sets the logger for phase events. Default: discard.
func WithLogger(l *logging.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = l
	}
}

// WithTracer sets the tracer for phase spans. Default: the global tracer.
func WithTracer(t *telemetry.Tracer) RunOption {
	return func(c *runConfig) {
		c.tracer = t
	}
}

// Run calls Validate, Prepare, Execute and Finalize on t in order and stops
// at the first failure. The returned error keeps the failing phase's code
// and records the step under the "step" metadata key.
func Run(ctx context.Context, t Task, opts ...RunOption) error {
	cfg := runConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.Discard()
	}
	if cfg.tracer == nil {
		cfg.tracer = telemetry.GetTracer()
	}
	logger := cfg.logger.WithComponent("tasks")

	calls := map[Step]func(context.Context) error{
		StepValidate: t.Validate,
		StepPrepare:  t.Prepare,
		StepExecute:  t.Execute,
		StepFinalize: t.Finalize,
	}

	for _, step := range Steps {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, string(step)+" "+t.Name(), errors.WithMetadata("step", string(step)))
		}

		logger.PhaseStart(t.Name(), string(step))
		start := time.Now()

		sctx, span := cfg.tracer.StartPhaseSpan(ctx, t.Name(), string(step))
		err := calls[step](sctx)
		cfg.tracer.EndPhaseSpan(span, err)

		logger.PhaseComplete(t.Name(), string(step), time.Since(start), err)
		if err != nil {
			return errors.Wrap(err, string(step)+" "+t.Name(), errors.WithMetadata("step", string(step)))
		}
	}
	return nil
}
