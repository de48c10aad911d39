// Package shutdown releases a run's resources in order.
//
// The rectopt command registers each resource it opens under a phase:
// communicators first, then the result publisher, then the message bus,
// and finally the telemetry provider so that spans recorded while closing
// the others are still exported. Handlers sharing a phase are released
// concurrently.
//
//	coord := shutdown.NewCoordinator(shutdown.DefaultConfig(), logger)
//	coord.RegisterCloser("nats", shutdown.PhaseTransport, mb.Close)
//	coord.RegisterFunc("telemetry", shutdown.PhaseTelemetry, provider.Shutdown)
//	defer coord.ShutdownWithTimeout(0)
//
// WatchSignals turns SIGINT and SIGTERM into context cancellation so an
// interrupted run returns through its normal error path before Shutdown
// runs.
package shutdown
