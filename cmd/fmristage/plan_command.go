package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"fmristage/internal/pipeline"
	"fmristage/internal/procrun"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the commands a run would execute",
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
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			plan, err := newSequencer(cfg, logger, flags, nil).Plan(run)
			if err != nil {
				return err
			}
			printPlan(cmd, plan)
			return nil
		},
	}

	flags.bindTarget(cmd)
	cmd.Flags().StringVar(&flags.runID, "run-id", "", "Run identifier used in the workspace name (default: random)")
	return cmd
}

func printPlan(cmd *cobra.Command, plan pipeline.Plan) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run ID:      %s\n", plan.Run.RunID)
	fmt.Fprintf(out, "Input:       %s\n", plan.Run.SourceDir())
	fmt.Fprintf(out, "Workspace:   %s\n", plan.Workspace.Root)
	fmt.Fprintf(out, "Processes:   %d\n", plan.Run.Procs)
	fmt.Fprintf(out, "Assets:      %s\n", strings.Join(plan.Assets, ", "))
	fmt.Fprintf(out, "Destination: %s\n", plan.Destination)
	if len(plan.Scans) == 0 {
		fmt.Fprintln(out, "Denoising:   skipped (no matching scans)")
	}
	for _, scan := range plan.Scans {
		fmt.Fprintf(out, "Scan:        %s\n", scan)
	}
	fmt.Fprintln(out)

	rows := make([][]string, 0, len(plan.Steps))
	for i, step := range plan.Steps {
		rows = append(rows, []string{strconv.Itoa(i + 1), step.Stage, procrun.FormatCommand(step.Command())})
	}
	fmt.Fprintln(out, renderTable(
		[]column{{title: "#", right: true}, {title: "Stage"}, {title: "Command"}},
		rows,
	))
}
