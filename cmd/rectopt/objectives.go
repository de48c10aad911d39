package main

import (
	"github.com/spf13/cobra"

	"github.com/vinayprograms/rectopt/optimize"
)

func newObjectivesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "objectives",
		Short: "List the built-in objective functions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range optimize.ObjectiveNames() {
				marker := ""
				if name == optimize.DefaultObjective {
					marker = " (default)"
				}
				printf(cmd, "%s%s\n", name, marker)
			}
			return nil
		},
	}
}
