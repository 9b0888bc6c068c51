package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fmristage/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report whether a run could start",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			run, err := flags.runConfig(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			results := preflight.RunAll(cmd.Context(), cfg, run)

			fmt.Fprintf(out, "Preflight for %s\n", run.Key())
			for _, r := range results {
				fmt.Fprintln(out, renderCheckLine(r, colorize))
			}

			if err := preflight.Err(results); err != nil {
				return err
			}
			fmt.Fprintln(out, "Ready")
			return nil
		},
	}

	flags.bindTarget(cmd)
	return cmd
}
