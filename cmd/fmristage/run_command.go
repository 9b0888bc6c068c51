package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"fmristage/internal/config"
	"fmristage/internal/ledger"
	"fmristage/internal/logging"
	"fmristage/internal/pipeline"
	"fmristage/internal/preflight"
	"fmristage/internal/procrun"
	"fmristage/internal/runspec"
	"fmristage/internal/workspace"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process one subject (or session) end to end",
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

			if flags.dryRun {
				seq := newSequencer(cfg, logger, flags, nil)
				plan, err := seq.Plan(run)
				if err != nil {
					return err
				}
				printPlan(cmd, plan)
				return nil
			}

			return executeRun(cmd, cfg, logger, flags, run)
		},
	}

	flags.bindTarget(cmd)
	flags.bindExecution(cmd)
	return cmd
}

func executeRun(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, flags *runFlags, run runspec.RunConfig) error {
	runCtx := cmd.Context()
	out := cmd.OutOrStdout()

	if !flags.skipPreflight {
		results := preflight.RunAll(runCtx, cfg, run)
		for _, r := range results {
			if !r.Passed && r.Advisory {
				logging.WarnWithContext(logger, "preflight advisory", "preflight_advisory",
					logging.String("check", r.Name),
					logging.String("detail", r.Detail),
					logging.String(logging.FieldImpact, "run may be slow or run out of memory"),
					logging.String(logging.FieldErrorHint, "adjust --n-procs"),
				)
			}
		}
		if err := preflight.Err(results); err != nil {
			return err
		}
	}

	lock, err := workspace.Acquire(run.WorkRoot, run.Key())
	if err != nil {
		return err
	}
	defer func() {
		_ = lock.Release()
	}()

	store := openLedger(cfg, logger)
	if store != nil {
		defer store.Close()
	}

	seq := newSequencer(cfg, logger, flags, store)
	outcome, err := seq.Execute(runCtx, run)

	fmt.Fprintf(out, "Run %s: %s\n", outcome.RunID, outcome.State)
	if outcome.Destination != "" {
		fmt.Fprintf(out, "Derivatives: %s\n", outcome.Destination)
	}
	if outcome.Kept {
		fmt.Fprintf(out, "Workspace kept: %s\n", outcome.Workspace)
	}
	fmt.Fprintf(out, "Denoised scans: %d\n", len(outcome.Denoised))
	return err
}

func newSequencer(cfg *config.Config, logger *slog.Logger, flags *runFlags, store *ledger.Store) *pipeline.Sequencer {
	runner := procrun.NewRunner(
		procrun.WithLogger(logger),
		procrun.WithTimeout(flags.timeout(cfg)),
	)
	manager := workspace.NewManager(cfg, logger)
	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithKeepWorkspace(flags.keepWorkspace),
	}
	if store != nil {
		opts = append(opts, pipeline.WithRecorder(pipeline.NewLedgerRecorder(store)))
	}
	return pipeline.NewSequencer(cfg, runner, manager, opts...)
}

// openLedger returns nil when the ledger is disabled or unavailable; history
// is bookkeeping and never blocks a run.
func openLedger(cfg *config.Config, logger *slog.Logger) *ledger.Store {
	if !cfg.Ledger.Enabled {
		return nil
	}
	store, err := ledger.Open(cfg.Paths.LedgerPath)
	if err != nil {
		hint := "check paths.ledger_path"
		if errors.Is(err, ledger.ErrSchemaMismatch) {
			hint = "move the old ledger aside"
		}
		logging.WarnWithContext(logger, "run ledger unavailable", "ledger_open_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "this run will not appear in history"),
			logging.String(logging.FieldErrorHint, hint),
		)
		return nil
	}
	return store
}
