package main

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/rectopt/errors"
	"github.com/vinayprograms/rectopt/results"
)

// DefaultTolerance is the largest accepted difference between the
// sequential and distributed minima.
const DefaultTolerance = 1e-2

func newCompareCmd(ro *rootOptions) *cobra.Command {
	f := &searchFlags{}
	var tolerance float64

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Run sequential and local distributed searches and compare them",
		Long: `Run the sequential search and the distributed search over --workers
in-process ranks with the same inputs, then print both minima and their
absolute difference. The command fails when the difference exceeds
--tolerance.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ro.loadConfig(cmd)
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			cfg.Transport.Kind = "memory"
			if err := cfg.Validate(); err != nil {
				return err
			}
			if math.IsNaN(tolerance) || tolerance < 0 {
				return errors.InvalidInput(fmt.Sprintf("tolerance %v must be non-negative", tolerance))
			}

			s, err := openSession(cmd.Context(), cmd, cfg)
			if err != nil {
				return err
			}
			defer s.close()

			ctx, stop := s.closer.WatchSignals(cmd.Context())
			defer stop()

			group := map[string]string{"compare": results.NewRunID()}
			seq, err := s.track(ctx, modeSeq, results.NewRunID(), group)
			if err != nil {
				return err
			}
			dist, err := s.track(ctx, modeLocal, results.NewRunID(), group)
			if err != nil {
				return err
			}

			diff := math.Abs(seq.Minimum - dist.Minimum)
			printf(cmd, "sequential  minimum=%s rounds=%d\n", formatFloat(seq.Minimum), seq.Rounds)
			printf(cmd, "distributed minimum=%s rounds=%d workers=%d\n", formatFloat(dist.Minimum), dist.Rounds, dist.Workers)
			printf(cmd, "difference  %s\n", formatFloat(diff))

			if diff > tolerance {
				return errors.Internal(fmt.Sprintf("minima differ by %s, tolerance %s", formatFloat(diff), formatFloat(tolerance)),
					errors.WithMetadata("compare", group["compare"]))
			}
			return nil
		},
	}

	f.register(cmd)
	cmd.Flags().Float64Var(&tolerance, "tolerance", DefaultTolerance, "largest accepted difference")
	return cmd
}
