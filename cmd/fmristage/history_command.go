package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"fmristage/internal/ledger"
	"fmristage/internal/runspec"
	"fmristage/internal/services"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		subject string
		session string
		limit   int
		runID   string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past runs recorded in the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Ledger.Enabled {
				fmt.Fprintln(cmd.OutOrStdout(), "Run ledger disabled (ledger.enabled = false)")
				return nil
			}

			store, err := ledger.Open(cfg.Paths.LedgerPath)
			if err != nil {
				return services.Wrap(services.ErrConfiguration, "history", "open ledger", cfg.Paths.LedgerPath, err)
			}
			defer store.Close()

			if runID != "" {
				return printTransitions(cmd, store, runID)
			}

			runs, err := store.List(cmd.Context(), ledger.ListOptions{
				Subject: runspec.NormalizeSubject(subject),
				Session: runspec.NormalizeSession(session),
				Limit:   limit,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}

			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				key := run.Subject
				if run.Session != "" {
					key += "_" + run.Session
				}
				duration := "-"
				if run.Finished() {
					duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
				}
				rows = append(rows, []string{
					run.RunID,
					key,
					run.State,
					humanize.Time(run.StartedAt),
					duration,
					run.FailureCategory,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]column{{title: "Run"}, {title: "Subject"}, {title: "State"}, {title: "Started", right: true}, {title: "Duration", right: true}, {title: "Failure"}},
				rows,
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "sub", "", "Only show runs for this subject")
	cmd.Flags().StringVar(&session, "ses", "", "Only show runs for this session")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show (0 for all)")
	cmd.Flags().StringVar(&runID, "run-id", "", "Show the state transitions of one run")
	return cmd
}

func printTransitions(cmd *cobra.Command, store *ledger.Store, runID string) error {
	run, err := store.Get(cmd.Context(), runID)
	if err != nil {
		return err
	}
	transitions, err := store.Transitions(cmd.Context(), runID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:       %s\n", run.RunID)
	fmt.Fprintf(out, "Subject:   %s\n", run.Subject)
	if run.Session != "" {
		fmt.Fprintf(out, "Session:   %s\n", run.Session)
	}
	fmt.Fprintf(out, "Workspace: %s\n", run.WorkspaceDir)
	fmt.Fprintf(out, "State:     %s\n", run.State)
	if run.Destination != "" {
		fmt.Fprintf(out, "Published: %s\n", run.Destination)
	}
	if run.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:     %s\n", run.ErrorMessage)
	}
	fmt.Fprintln(out)

	rows := make([][]string, 0, len(transitions))
	for _, t := range transitions {
		rows = append(rows, []string{t.At.Local().Format("2006-01-02 15:04:05"), t.From, t.To, t.Detail})
	}
	fmt.Fprintln(out, renderTable(
		[]column{{title: "At"}, {title: "From"}, {title: "To"}, {title: "Detail"}},
		rows,
	))
	return nil
}
