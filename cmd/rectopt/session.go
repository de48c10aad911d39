package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/rectopt/bus"
	"github.com/vinayprograms/rectopt/collective"
	"github.com/vinayprograms/rectopt/config"
	"github.com/vinayprograms/rectopt/errors"
	"github.com/vinayprograms/rectopt/logging"
	"github.com/vinayprograms/rectopt/optimize"
	"github.com/vinayprograms/rectopt/results"
	"github.com/vinayprograms/rectopt/shutdown"
	"github.com/vinayprograms/rectopt/tasks"
	"github.com/vinayprograms/rectopt/telemetry"
)

// Run modes.
const (
	modeSeq   = "seq"
	modeLocal = "local"
	modeNATS  = "nats"
)

// session owns everything a command opens: telemetry, transport and the
// result publisher. close releases them in shutdown phase order.
type session struct {
	cfg       *config.Config
	logger    *logging.Logger
	tracer    *telemetry.Tracer
	closer    *shutdown.Coordinator
	bus       bus.MessageBus
	publisher results.Publisher
}

func openSession(ctx context.Context, cmd *cobra.Command, cfg *config.Config) (s *session, err error) {
	logger := newLogger(cmd, cfg)
	s = &session{
		cfg:    cfg,
		logger: logger,
		tracer: telemetry.GetTracer(),
		closer: shutdown.NewCoordinator(shutdown.DefaultConfig(), logger),
	}
	defer func() {
		if err != nil {
			s.close()
		}
	}()

	if cfg.Telemetry.Endpoint != "" {
		rank := -1
		if cfg.Transport.Kind == modeNATS {
			rank = cfg.Transport.Rank
		}
		provider, err := telemetry.InitProvider(ctx, telemetry.ProviderConfig{
			ServiceName: telemetry.DefaultServiceName,
			Endpoint:    cfg.Telemetry.Endpoint,
			Protocol:    cfg.Telemetry.Protocol,
			Insecure:    cfg.Telemetry.Insecure,
			Debug:       cfg.Telemetry.Debug,
			Group:       cfg.Transport.Subject,
			Rank:        rank,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return s, err
		}
		s.closer.RegisterFunc("telemetry", shutdown.PhaseTelemetry, provider.Shutdown)
		s.tracer = provider.Tracer()
	}

	if cfg.Transport.Kind == modeNATS {
		natsCfg := bus.DefaultNATSConfig()
		natsCfg.URL = cfg.Transport.URL
		natsCfg.Name = fmt.Sprintf("rectopt-%s-rank-%d", cfg.Transport.Subject, cfg.Transport.Rank)
		natsCfg.BufferSize = collective.LocalBufferSize(cfg.Transport.Size)
		natsCfg.Logger = logger

		mb, err := bus.NewNATSBus(natsCfg)
		if err != nil {
			return s, errors.WrapWithCode(err, errors.ErrCodeUnavailable, "connect to "+cfg.Transport.URL)
		}
		s.closer.RegisterCloser("nats", shutdown.PhaseTransport, func() error {
			st := mb.Stats()
			logger.Debug("nats traffic", map[string]interface{}{
				"in_msgs":    st.InMsgs,
				"out_msgs":   st.OutMsgs,
				"reconnects": st.Reconnects,
			})
			return mb.Close()
		})
		s.bus = mb
	}
	s.publisher = publisherFor(cfg, s.bus)
	s.closer.RegisterCloser("results", shutdown.PhaseResults, s.publisher.Close)
	return s, nil
}

// publisherFor returns the bus publisher for rank 0 of a distributed run,
// so the run yields one shared record. Other ranks keep theirs local.
func publisherFor(cfg *config.Config, mb bus.MessageBus) results.Publisher {
	if mb == nil || cfg.Transport.Rank != 0 {
		return results.NewMemoryPublisher()
	}
	return results.NewBusPublisher(mb, results.BusPublisherConfig{
		SubjectPrefix: cfg.Transport.Subject + ".results",
	})
}

func (s *session) close() {
	if err := s.closer.ShutdownWithTimeout(0); err != nil {
		s.logger.Warn("release failed", map[string]interface{}{"error": err.Error()})
	}
}

// options builds run options tagged with runID.
func (s *session) options(runID string) (optimize.Options, error) {
	opts, err := s.cfg.Options()
	if err != nil {
		return optimize.Options{}, err
	}
	opts.RunID = runID
	opts.Logger = s.logger
	opts.Tracer = s.tracer
	return opts, nil
}

func (s *session) collectiveConfig() collective.Config {
	t := s.cfg.Transport
	return collective.Config{
		Subject:      t.Subject,
		Rank:         t.Rank,
		Size:         t.Size,
		PeerTimeout:  t.PeerTimeout.Duration,
		JoinInterval: t.JoinInterval.Duration,
		Logger:       s.logger,
	}
}

func (s *session) taskOptions() []tasks.RunOption {
	return []tasks.RunOption{tasks.WithLogger(s.logger), tasks.WithTracer(s.tracer)}
}

// workers returns how many ranks mode runs with.
func (s *session) workers(mode string) int {
	switch mode {
	case modeSeq:
		return 1
	case modeNATS:
		return s.cfg.Transport.Size
	}
	return s.cfg.Workers
}

// execute runs one search in mode.
func (s *session) execute(ctx context.Context, mode string, opts optimize.Options) (optimize.Outcome, error) {
	switch mode {
	case modeSeq:
		return s.runSequential(ctx, opts)
	case modeLocal:
		return s.runLocal(ctx, opts, s.cfg.Workers)
	case modeNATS:
		return s.runNATS(ctx, opts)
	}
	return optimize.Outcome{}, errors.InvalidInput(fmt.Sprintf("unknown mode %q", mode))
}

func (s *session) runSequential(ctx context.Context, opts optimize.Options) (optimize.Outcome, error) {
	task := optimize.NewSequentialTask(opts)
	if err := tasks.Run(ctx, task, s.taskOptions()...); err != nil {
		return optimize.Outcome{}, err
	}
	return task.Outcome(), nil
}

// runLocal runs every rank as a goroutine over a private in-memory bus.
func (s *session) runLocal(ctx context.Context, opts optimize.Options, workers int) (optimize.Outcome, error) {
	group, err := collective.NewLocalGroup(workers, s.collectiveConfig())
	if err != nil {
		return optimize.Outcome{}, err
	}
	defer group.Close()

	ranks := make([]*optimize.DistributedTask, group.Size())
	err = collective.Run(ctx, group.Comms(), func(ctx context.Context, comm collective.Communicator) error {
		task := optimize.NewDistributedTask(comm, opts)
		ranks[comm.Rank()] = task
		return tasks.Run(ctx, task, s.taskOptions()...)
	})
	if err != nil {
		return optimize.Outcome{}, err
	}
	return ranks[optimize.CoordinatorRank].Outcome(), nil
}

// runNATS runs this process's rank. The other ranks are separate
// processes started with the same configuration and their own rank.
func (s *session) runNATS(ctx context.Context, opts optimize.Options) (optimize.Outcome, error) {
	cfg := s.collectiveConfig()

	dialCtx := ctx
	if cfg.PeerTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.PeerTimeout)
		defer cancel()
	}
	comm, err := collective.Dial(dialCtx, s.bus, cfg)
	if err != nil {
		return optimize.Outcome{}, errors.Wrap(err, "join group "+cfg.Subject, errors.WithRank(cfg.Rank))
	}
	s.closer.RegisterCloser(fmt.Sprintf("rank-%d", cfg.Rank), shutdown.PhaseRanks, comm.Close)

	task := optimize.NewDistributedTask(comm, opts)
	if err := tasks.Run(ctx, task, s.taskOptions()...); err != nil {
		return optimize.Outcome{}, err
	}
	return task.Outcome(), nil
}

// track publishes a running result, executes the search and publishes the
// terminal result. The trace context of the search is recorded in the
// result metadata so it can be joined with exported spans.
func (s *session) track(ctx context.Context, mode, runID string, metadata map[string]string) (*results.Result, error) {
	opts, err := s.options(runID)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.StartSpan(ctx, "rectopt."+mode)
	defer span.End()

	carrier := telemetry.MapCarrier{}
	telemetry.InjectContext(ctx, carrier)
	for k, v := range metadata {
		carrier[k] = v
	}
	if mode == modeNATS {
		carrier["rank"] = fmt.Sprint(s.cfg.Transport.Rank)
	}

	running := results.Result{
		RunID:     runID,
		Status:    results.StatusRunning,
		Mode:      mode,
		Objective: opts.ObjectiveName,
		Workers:   s.workers(mode),
		Metadata:  carrier,
	}
	if err := s.publisher.Publish(ctx, running); err != nil {
		return nil, err
	}

	out, runErr := s.execute(ctx, mode, opts)

	final := running
	if runErr != nil {
		final.Status = results.StatusFailed
		final.Error = errors.As(runErr)
		if final.Error == nil {
			final.Error = errors.Wrap(runErr, mode+" run")
		}
	} else {
		final.Status = results.StatusSucceeded
		final.Minimum = out.Minimum
		final.Rounds = out.Rounds
		final.PoolSize = out.PoolSize
	}

	// The terminal record is written even when ctx was canceled.
	if err := s.publisher.Publish(context.WithoutCancel(ctx), final); err != nil {
		if runErr == nil {
			return nil, err
		}
		s.logger.Warn("publish failed result", map[string]interface{}{"run_id": runID, "error": err.Error()})
	}
	if runErr != nil {
		return nil, runErr
	}
	return s.publisher.Get(ctx, runID)
}
