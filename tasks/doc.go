// Package tasks defines the four-phase lifecycle shared by every runnable
// task: Validate, Prepare, Execute, Finalize.
//
// A harness calls the phases in that order, exactly once each, per task
// instance. Run drives a task through all four with logging and tracing:
//
//	task := optimize.NewSequentialTask(opts)
//	if err := tasks.Run(ctx, task, tasks.WithLogger(logger)); err != nil {
//	    // err carries the failing phase in its metadata
//	}
//	fmt.Println(task.Output())
//
// # Phases
//
// Task implementations embed a Lifecycle and route every phase through
// Lifecycle.Advance, which rejects out-of-order or repeated calls with a
// PRECONDITION error:
//
//	New → Validated → Prepared → Executed → Finalized
//	  ↘        ↘          ↘          ↘
//	                 Failed
//
// A failed phase is terminal; the instance cannot be resumed.
//
// # Thread Safety
//
// Lifecycle is safe for concurrent use, but phases of one task are meant
// to be called sequentially.
package tasks
