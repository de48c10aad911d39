package shutdown

import (
	"context"
	"time"
)

// Release phases used by the rectopt command. Lower phases run first.
const (
	PhaseRanks     = 10
	PhaseResults   = 20
	PhaseTransport = 30
	PhaseTelemetry = 40
)

// Handler releases one resource.
type Handler interface {
	OnShutdown(ctx context.Context) error
}

// Func adapts a function to Handler.
type Func func(ctx context.Context) error

// OnShutdown implements Handler.
func (f Func) OnShutdown(ctx context.Context) error {
	return f(ctx)
}

// HandlerResult records one handler's release.
type HandlerResult struct {
	Name     string
	Phase    int
	Duration time.Duration
	Err      error
}

// Result records a complete shutdown.
type Result struct {
	TotalDuration time.Duration
	Results       []HandlerResult
	Err           error
}

// Failed returns true if any handler failed.
func (r *Result) Failed() bool {
	return r.Err != nil
}

// FailedHandlers returns the names of handlers that failed.
func (r *Result) FailedHandlers() []string {
	var failed []string
	for _, hr := range r.Results {
		if hr.Err != nil {
			failed = append(failed, hr.Name)
		}
	}
	return failed
}

// Config configures the coordinator.
type Config struct {
	// Timeout bounds ShutdownWithTimeout when it is passed zero.
	// Default: 10 seconds
	Timeout time.Duration

	// ContinueOnError keeps releasing later phases after a failure.
	// Default: true
	ContinueOnError bool

	// OnProgress is called as each handler completes.
	OnProgress func(result HandlerResult)
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:         10 * time.Second,
		ContinueOnError: true,
	}
}

type registration struct {
	name    string
	handler Handler
	phase   int
}
