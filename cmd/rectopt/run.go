package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/rectopt/config"
	"github.com/vinayprograms/rectopt/errors"
	"github.com/vinayprograms/rectopt/results"
)

// searchFlags override the search section of the config file. Only flags
// set on the command line take effect.
type searchFlags struct {
	iterations int
	workers    int
	objective  string
	penalty    float64
}

func (f *searchFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.iterations, "iterations", "n", 0, "refinement rounds (default from config)")
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 0, "ranks for local runs (default from config)")
	cmd.Flags().StringVarP(&f.objective, "objective", "o", "", "objective function, see 'rectopt objectives'")
	cmd.Flags().Float64Var(&f.penalty, "penalty", 0, "weight of region size in the score")
}

func (f *searchFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("iterations") {
		cfg.Iterations = f.iterations
	}
	if flags.Changed("workers") {
		cfg.Workers = f.workers
	}
	if flags.Changed("objective") {
		cfg.Objective = f.objective
	}
	if flags.Changed("penalty") {
		cfg.Penalty = f.penalty
	}
}

type runFlags struct {
	searchFlags

	mode        string
	rank        int
	size        int
	natsURL     string
	subject     string
	peerTimeout time.Duration
	runID       string
	jsonOut     bool
}

func newRunCmd(ro *rootOptions) *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Search for the minimum and print it",
		Long: `Run one search and print the approximate minimum.

Modes:
  seq    single process, no communication
  local  --workers ranks inside this process over an in-memory bus
  nats   this process is rank --rank of --size; start one process per rank

Without --mode, transport.kind in the config file decides between local
and nats.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, ro, f)
		},
	}

	f.register(cmd)
	cmd.Flags().StringVarP(&f.mode, "mode", "m", "", "seq, local or nats")
	cmd.Flags().IntVar(&f.rank, "rank", 0, "this process's rank (nats)")
	cmd.Flags().IntVar(&f.size, "size", 0, "number of ranks (nats)")
	cmd.Flags().StringVar(&f.natsURL, "nats-url", "", "NATS server URL (nats)")
	cmd.Flags().StringVar(&f.subject, "subject", "", "subject prefix shared by the group")
	cmd.Flags().DurationVar(&f.peerTimeout, "peer-timeout", 0, "bound on each collective call and on joining, 0 waits forever")
	cmd.Flags().StringVar(&f.runID, "run-id", "", "run identifier (default: random)")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "print the published result as JSON")
	return cmd
}

func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) (string, error) {
	f.searchFlags.apply(cmd, cfg)

	flags := cmd.Flags()
	t := &cfg.Transport
	if flags.Changed("rank") {
		t.Rank = f.rank
	}
	if flags.Changed("size") {
		t.Size = f.size
	}
	if flags.Changed("nats-url") {
		t.URL = f.natsURL
	}
	if flags.Changed("subject") {
		t.Subject = f.subject
	}
	if flags.Changed("peer-timeout") {
		t.PeerTimeout = config.Duration{Duration: f.peerTimeout}
	}

	mode := f.mode
	if mode == "" {
		mode = modeLocal
		if t.Kind == modeNATS {
			mode = modeNATS
		}
	}
	switch mode {
	case modeSeq, modeLocal:
		t.Kind = "memory"
	case modeNATS:
		t.Kind = modeNATS
	default:
		return "", errors.InvalidInput(fmt.Sprintf("unknown mode %q (use seq, local or nats)", mode))
	}
	return mode, nil
}

func runRun(cmd *cobra.Command, ro *rootOptions, f *runFlags) error {
	cfg, err := ro.loadConfig(cmd)
	if err != nil {
		return err
	}
	mode, err := f.apply(cmd, cfg)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	// Ranks of one distributed run must publish under the same run ID.
	if mode == modeNATS && cfg.Transport.Size > 1 && f.runID == "" {
		return errors.InvalidInput("--run-id is required in nats mode when transport size is greater than 1")
	}

	s, err := openSession(cmd.Context(), cmd, cfg)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, stop := s.closer.WatchSignals(cmd.Context())
	defer stop()

	runID := f.runID
	if runID == "" {
		runID = results.NewRunID()
	}

	res, err := s.track(ctx, mode, runID, nil)
	if err != nil {
		return err
	}
	return printResult(cmd, res, f.jsonOut)
}

func printResult(cmd *cobra.Command, r *results.Result, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return errors.Wrap(err, "encode result")
		}
		printf(cmd, "%s\n", data)
		return nil
	}
	printf(cmd, "minimum=%s rounds=%d pool=%d workers=%d mode=%s run=%s\n",
		formatFloat(r.Minimum), r.Rounds, r.PoolSize, r.Workers, r.Mode, r.RunID)
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
