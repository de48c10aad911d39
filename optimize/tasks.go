package optimize

import (
	"context"
	"fmt"
	"math"

	"github.com/vinayprograms/rectopt/collective"
	"github.com/vinayprograms/rectopt/errors"
	"github.com/vinayprograms/rectopt/tasks"
)

var (
	_ tasks.Task = (*SequentialTask)(nil)
	_ tasks.Task = (*DistributedTask)(nil)
)

// validateBudget rejects runs that would do no refinement. The engines
// themselves accept such budgets; the lifecycle contract does not.
func validateBudget(opts Options) error {
	if opts.Iterations <= 0 {
		return errors.InvalidInput(fmt.Sprintf("iterations must be positive, got %d", opts.Iterations))
	}
	return opts.withDefaults().Validate()
}

func finalizeOutput(out Outcome) error {
	if math.IsNaN(out.Minimum) {
		return errors.Internal("objective produced no comparable value at any region center")
	}
	return nil
}

// SequentialTask runs Minimize under the task lifecycle.
type SequentialTask struct {
	tasks.Lifecycle

	opts    Options
	outcome Outcome
}

// NewSequentialTask returns a task for opts.
func NewSequentialTask(opts Options) *SequentialTask {
	return &SequentialTask{opts: opts}
}

// Name identifies the task.
func (t *SequentialTask) Name() string { return "optimize.seq" }

// Validate rejects a non-positive iteration budget and invalid bounds.
func (t *SequentialTask) Validate(ctx context.Context) error {
	return t.Advance(tasks.StepValidate, func() error {
		return validateBudget(t.opts)
	})
}

// Prepare applies defaults and clears any previous output.
func (t *SequentialTask) Prepare(ctx context.Context) error {
	return t.Advance(tasks.StepPrepare, func() error {
		t.opts = t.opts.withDefaults()
		t.outcome = Outcome{Minimum: math.NaN()}
		return nil
	})
}

// Execute runs the sequential reference.
func (t *SequentialTask) Execute(ctx context.Context) error {
	return t.Advance(tasks.StepExecute, func() error {
		out, err := Minimize(ctx, t.opts)
		if err != nil {
			return err
		}
		t.outcome = out
		return nil
	})
}

// Finalize rejects a NaN result.
func (t *SequentialTask) Finalize(ctx context.Context) error {
	return t.Advance(tasks.StepFinalize, func() error {
		return finalizeOutput(t.outcome)
	})
}

// Output returns the approximate minimum.
func (t *SequentialTask) Output() float64 { return t.outcome.Minimum }

// Outcome returns the full run outcome.
func (t *SequentialTask) Outcome() Outcome { return t.outcome }

// DistributedTask runs one rank of the distributed engine under the task
// lifecycle. Every rank of the group runs its own DistributedTask.
type DistributedTask struct {
	tasks.Lifecycle

	comm    collective.Communicator
	opts    Options
	engine  *Engine
	outcome Outcome
}

// NewDistributedTask returns a task for comm's rank.
func NewDistributedTask(comm collective.Communicator, opts Options) *DistributedTask {
	return &DistributedTask{comm: comm, opts: opts}
}

// Name identifies the task.
func (t *DistributedTask) Name() string { return "optimize.distributed" }

// Validate rejects a non-positive iteration budget, invalid bounds and a
// missing communicator.
func (t *DistributedTask) Validate(ctx context.Context) error {
	return t.Advance(tasks.StepValidate, func() error {
		if t.comm == nil {
			return errors.InvalidInput("distributed task needs a communicator")
		}
		return validateBudget(t.opts)
	})
}

// Prepare builds the engine.
func (t *DistributedTask) Prepare(ctx context.Context) error {
	return t.Advance(tasks.StepPrepare, func() error {
		engine, err := NewEngine(t.comm, t.opts)
		if err != nil {
			return err
		}
		t.engine = engine
		t.outcome = Outcome{Minimum: math.NaN()}
		return nil
	})
}

// Execute runs the coordinator loop.
func (t *DistributedTask) Execute(ctx context.Context) error {
	return t.Advance(tasks.StepExecute, func() error {
		out, err := t.engine.Run(ctx)
		if err != nil {
			return err
		}
		t.outcome = out
		return nil
	})
}

// Finalize rejects a NaN result.
func (t *DistributedTask) Finalize(ctx context.Context) error {
	return t.Advance(tasks.StepFinalize, func() error {
		return finalizeOutput(t.outcome)
	})
}

// Output returns the approximate minimum.
func (t *DistributedTask) Output() float64 { return t.outcome.Minimum }

// Outcome returns the full run outcome.
func (t *DistributedTask) Outcome() Outcome { return t.outcome }
