package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/vinayprograms/rectopt/errors"
)

// Task is a unit of work driven through the four-phase lifecycle.
type Task interface {
	// Name identifies the task in logs and spans.
	Name() string

	// Validate checks the input. A validation failure means the task is
	// never attempted.
	Validate(ctx context.Context) error

	// Prepare allocates whatever Execute needs.
	Prepare(ctx context.Context) error

	// Execute does the work.
	Execute(ctx context.Context) error

	// Finalize checks and publishes the output.
	Finalize(ctx context.Context) error
}

// Step names one lifecycle call.
type Step string

const (
	StepValidate Step = "validate"
	StepPrepare  Step = "prepare"
	StepExecute  Step = "execute"
	StepFinalize Step = "finalize"
)

// Steps lists the lifecycle calls in order.
var Steps = []Step{StepValidate, StepPrepare, StepExecute, StepFinalize}

// Phase is the state a task has reached.
type Phase string

const (
	PhaseNew       Phase = "new"
	PhaseValidated Phase = "validated"
	PhasePrepared  Phase = "prepared"
	PhaseExecuted  Phase = "executed"
	PhaseFinalized Phase = "finalized"
	PhaseFailed    Phase = "failed"
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// IsTerminal returns true if no further step is allowed.
func (p Phase) IsTerminal() bool {
	return p == PhaseFinalized || p == PhaseFailed
}

// transitions maps each step to the phase it requires and the phase it
// leads to on success.
var transitions = map[Step][2]Phase{
	StepValidate: {PhaseNew, PhaseValidated},
	StepPrepare:  {PhaseValidated, PhasePrepared},
	StepExecute:  {PhasePrepared, PhaseExecuted},
	StepFinalize: {PhaseExecuted, PhaseFinalized},
}

// Lifecycle guards the phase order of one task instance. The zero value
// is in PhaseNew.
type Lifecycle struct {
	mu    sync.Mutex
	phase Phase
	err   error
}

// Phase returns the current phase.
func (l *Lifecycle) Phase() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase == "" {
		return PhaseNew
	}
	return l.phase
}

// Err returns the error that moved the task to PhaseFailed, if any.
func (l *Lifecycle) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Advance runs fn as step if the task is in the phase step requires, then
// moves to the next phase, or to PhaseFailed if fn returns an error.
func (l *Lifecycle) Advance(step Step, fn func() error) error {
	tr, ok := transitions[step]
	if !ok {
		return errors.InvalidInput(fmt.Sprintf("unknown lifecycle step %q", step))
	}

	if current := l.Phase(); current != tr[0] {
		return errors.Precondition(
			fmt.Sprintf("%s called in phase %s, requires %s", step, current, tr[0]),
			errors.WithMetadata("step", string(step)),
			errors.WithMetadata("phase", string(current)),
		)
	}

	err := fn()

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.phase = PhaseFailed
		l.err = err
		return err
	}
	l.phase = tr[1]
	return nil
}
