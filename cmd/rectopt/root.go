package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/rectopt/config"
	"github.com/vinayprograms/rectopt/logging"
)

// rootOptions holds the persistent flags.
type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	ro := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "rectopt",
		Short: "Global minimization by rectangle partitioning",
		Long: `rectopt approximates the global minimum of a function of two variables
over a rectangular domain. Each round it scores every region of a pool,
splits the best one into four, and reports the smallest objective value
seen at any region center.

Runs can be sequential, spread over ranks inside this process, or spread
over one process per rank connected through NATS.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&ro.configPath, "config", "c", "", "config file (default is ./rectopt.toml, then $HOME/.config/rectopt/rectopt.toml)")
	cmd.PersistentFlags().StringVar(&ro.logLevel, "log-level", "", "log level: debug, info, warn or error (overrides config)")

	cmd.AddCommand(newRunCmd(ro))
	cmd.AddCommand(newCompareCmd(ro))
	cmd.AddCommand(newObjectivesCmd())
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

// loadConfig reads --config, or the first standard path, and applies the
// persistent flag overrides. The result is not validated yet.
func (ro *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if ro.configPath != "" {
		cfg, err = config.LoadFile(ro.configPath)
	} else {
		cfg, _, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if ro.logLevel != "" {
		cfg.Logging.Level = ro.logLevel
	}
	return cfg, nil
}

// newLogger writes to stderr so stdout carries only results.
func newLogger(cmd *cobra.Command, cfg *config.Config) *logging.Logger {
	logger := logging.New()
	logger.SetOutput(cmd.ErrOrStderr())
	level, _ := logging.ParseLevel(cfg.Logging.Level)
	logger.SetLevel(level)
	return logger
}

func printf(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
