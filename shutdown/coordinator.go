package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/vinayprograms/rectopt/errors"
	"github.com/vinayprograms/rectopt/logging"
)

// Coordinator releases registered resources in phase order. Handlers in
// the same phase run concurrently.
type Coordinator struct {
	config Config
	logger *logging.Logger

	mu       sync.Mutex
	handlers []registration
	once     sync.Once
	done     chan struct{}
	result   *Result
}

// NewCoordinator creates a coordinator. A nil logger discards output.
func NewCoordinator(cfg Config, logger *logging.Logger) *Coordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Coordinator{
		config: cfg,
		logger: logger.WithComponent("shutdown"),
		done:   make(chan struct{}),
	}
}

// Register adds a handler to phase.
func (c *Coordinator) Register(name string, phase int, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, registration{name: name, handler: handler, phase: phase})
}

// RegisterFunc adds fn to phase.
func (c *Coordinator) RegisterFunc(name string, phase int, fn func(ctx context.Context) error) {
	c.Register(name, phase, Func(fn))
}

// RegisterCloser adds a Close method that takes no context.
func (c *Coordinator) RegisterCloser(name string, phase int, close func() error) {
	c.Register(name, phase, Func(func(context.Context) error { return close() }))
}

// Shutdown runs every handler once. Later calls return the first call's
// error.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.once.Do(func() {
		c.result = c.run(ctx)
		close(c.done)
	})
	<-c.done
	return c.result.Err
}

// ShutdownWithTimeout runs Shutdown bounded by timeout, or by the
// configured timeout when zero.
func (c *Coordinator) ShutdownWithTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = c.config.Timeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Shutdown(ctx)
}

// WatchSignals returns a context canceled on SIGINT or SIGTERM. The run
// observes the cancellation and returns; resources are then released by
// Shutdown. Call stop to restore default signal handling.
func (c *Coordinator) WatchSignals(parent context.Context) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancel(parent)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	stopped := make(chan struct{})
	go func() {
		select {
		case sig := <-signals:
			c.logger.Warn("interrupted", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-stopped:
		}
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			signal.Stop(signals)
			close(stopped)
			cancel()
		})
	}
}

// Done is closed once Shutdown has finished.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Result returns the shutdown record, or nil before Done is closed.
func (c *Coordinator) Result() *Result {
	select {
	case <-c.done:
		return c.result
	default:
		return nil
	}
}

func (c *Coordinator) run(ctx context.Context) *Result {
	start := time.Now()

	c.mu.Lock()
	handlers := make([]registration, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].phase < handlers[j].phase
	})

	result := &Result{}
	var failures []error
	for _, group := range groupByPhase(handlers) {
		if err := ctx.Err(); err != nil {
			failures = append(failures, errors.Wrap(err, "shutdown interrupted",
				errors.WithMetadata("phase", phaseName(group[0].phase))))
			break
		}

		phaseResults := c.runPhase(ctx, group)
		result.Results = append(result.Results, phaseResults...)

		failed := false
		for _, hr := range phaseResults {
			if hr.Err != nil {
				failed = true
				failures = append(failures, errors.Wrap(hr.Err, "release "+hr.Name,
					errors.WithMetadata("phase", phaseName(hr.Phase))))
			}
		}
		if failed && !c.config.ContinueOnError {
			break
		}
	}

	result.Err = errors.Join(failures...)
	result.TotalDuration = time.Since(start)
	return result
}

func (c *Coordinator) runPhase(ctx context.Context, group []registration) []HandlerResult {
	results := make([]HandlerResult, len(group))
	var wg sync.WaitGroup

	for i, reg := range group {
		wg.Add(1)
		go func(idx int, r registration) {
			defer wg.Done()

			start := time.Now()
			err := r.handler.OnShutdown(ctx)
			hr := HandlerResult{Name: r.name, Phase: r.phase, Duration: time.Since(start), Err: err}
			results[idx] = hr

			if err != nil {
				c.logger.Error("release_failed", map[string]interface{}{"name": r.name, "error": err.Error()})
			} else {
				c.logger.Debug("released", map[string]interface{}{"name": r.name, "duration": hr.Duration.String()})
			}
			if c.config.OnProgress != nil {
				c.config.OnProgress(hr)
			}
		}(i, reg)
	}

	wg.Wait()
	return results
}

// groupByPhase splits handlers, already sorted by phase, into runs of
// equal phase.
func groupByPhase(handlers []registration) [][]registration {
	var groups [][]registration
	for i := 0; i < len(handlers); {
		j := i
		for j < len(handlers) && handlers[j].phase == handlers[i].phase {
			j++
		}
		groups = append(groups, handlers[i:j])
		i = j
	}
	return groups
}

func phaseName(phase int) string {
	switch phase {
	case PhaseRanks:
		return "ranks"
	case PhaseResults:
		return "results"
	case PhaseTransport:
		return "transport"
	case PhaseTelemetry:
		return "telemetry"
	}
	return "custom"
}
