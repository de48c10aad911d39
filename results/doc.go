// Package results publishes the outcome of optimization runs.
//
// Every run gets a RunID (NewRunID). The runner publishes a StatusRunning
// result when it starts and a terminal StatusSucceeded or StatusFailed
// result when it ends. Subscribers to a run receive each update and their
// channel closes after the terminal one.
//
// Two implementations are provided:
//   - MemoryPublisher: in-process storage and notification
//   - BusPublisher: local storage with updates broadcast on
//     "<prefix>.<runID>", so subscribers in other processes see them
//
// # Basic Usage
//
//	pub := results.NewMemoryPublisher()
//	defer pub.Close()
//
//	runID := results.NewRunID()
//	sub, _ := pub.Subscribe(runID)
//
//	pub.Publish(ctx, results.Result{
//	    RunID:   runID,
//	    Status:  results.StatusSucceeded,
//	    Mode:    "local",
//	    Minimum: 0.00061,
//	})
//
//	for r := range sub.Results() {
//	    fmt.Println(r.Status, r.Minimum)
//	}
//
// A failed run carries its *errors.Error, which survives the JSON round
// trip over the bus with code, rank and metadata intact.
package results
