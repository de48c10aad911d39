package optimize

import (
	"context"
	"math"
	"testing"

	"github.com/vinayprograms/rectopt/collective"
	"github.com/vinayprograms/rectopt/errors"
	"github.com/vinayprograms/rectopt/tasks"
)

func TestSequentialTask_Lifecycle(t *testing.T) {
	task := NewSequentialTask(quietOptions(40))

	if err := tasks.Run(context.Background(), task); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if task.Phase() != tasks.PhaseFinalized {
		t.Errorf("phase = %s", task.Phase())
	}
	if task.Output() != 0.0006103515625 {
		t.Errorf("Output() = %v", task.Output())
	}
	if task.Outcome().PoolSize != 121 {
		t.Errorf("PoolSize = %d", task.Outcome().PoolSize)
	}
}

func TestSequentialTask_RejectsNonPositiveBudget(t *testing.T) {
	for _, iters := range []int{0, -1} {
		task := NewSequentialTask(quietOptions(iters))
		err := tasks.Run(context.Background(), task)
		if !errors.Is(err, errors.ErrCodeInvalidInput) {
			t.Errorf("iterations=%d: expected INVALID_INPUT, got %v", iters, err)
		}
		if task.Phase() != tasks.PhaseFailed {
			t.Errorf("phase = %s, want failed", task.Phase())
		}
	}
}

func TestSequentialTask_OutOfOrder(t *testing.T) {
	task := NewSequentialTask(quietOptions(5))
	if err := task.Execute(context.Background()); !errors.Is(err, errors.ErrCodePrecondition) {
		t.Fatalf("expected PRECONDITION, got %v", err)
	}
	if task.Phase() != tasks.PhaseNew || task.Outcome().Rounds != 0 {
		t.Errorf("Execute ran: phase %s outcome %+v", task.Phase(), task.Outcome())
	}
}

func TestSequentialTask_FinalizeRejectsNaN(t *testing.T) {
	opts := quietOptions(3)
	opts.Objective = func(x, y float64) float64 { return math.NaN() }
	opts.ObjectiveName = "nan"

	err := tasks.Run(context.Background(), NewSequentialTask(opts))
	if err == nil {
		t.Fatal("expected finalize error")
	}
	if step := errors.As(err).Metadata()["step"]; step != "finalize" {
		t.Errorf("failed in %q, want finalize", step)
	}
}

func TestDistributedTask_AllRanks(t *testing.T) {
	const workers = 4
	group, err := collective.NewLocalGroup(workers, localConfig())
	if err != nil {
		t.Fatalf("NewLocalGroup: %v", err)
	}
	defer group.Close()

	outputs := make([]float64, workers)
	err = collective.Run(context.Background(), group.Comms(), func(ctx context.Context, comm collective.Communicator) error {
		task := NewDistributedTask(comm, quietOptions(20))
		if err := tasks.Run(ctx, task); err != nil {
			return err
		}
		outputs[comm.Rank()] = task.Output()
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	seq := minimize(t, quietOptions(20))
	for rank, out := range outputs {
		if math.Abs(out-seq.Minimum) > 1e-2 {
			t.Errorf("rank %d output %v, sequential %v", rank, out, seq.Minimum)
		}
	}
}

func TestDistributedTask_Validate(t *testing.T) {
	if err := NewDistributedTask(nil, quietOptions(5)).Validate(context.Background()); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("nil communicator: %v", err)
	}

	group, err := collective.NewLocalGroup(1, localConfig())
	if err != nil {
		t.Fatalf("NewLocalGroup: %v", err)
	}
	defer group.Close()

	if err := NewDistributedTask(group.Comms()[0], quietOptions(0)).Validate(context.Background()); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("zero iterations: %v", err)
	}
}
