package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"fmristage/internal/config"
	"fmristage/internal/services"
	"fmristage/internal/workspace"
)

type workRootFlags struct {
	workDir string
	bidsDir string
}

func (f *workRootFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.workDir, "work-dir", "w", "", "Work root (default: paths.work_root)")
	cmd.Flags().StringVarP(&f.bidsDir, "bids-dir", "b", "", "Use <bids-dir>/work as the work root")
}

func (f *workRootFlags) resolve(cfg *config.Config) (string, error) {
	switch {
	case strings.TrimSpace(f.workDir) != "":
		return config.ExpandPath(strings.TrimSpace(f.workDir))
	case strings.TrimSpace(f.bidsDir) != "":
		root, err := config.ExpandPath(strings.TrimSpace(f.bidsDir))
		if err != nil {
			return "", err
		}
		return filepath.Join(root, "work"), nil
	case cfg.Paths.WorkRoot != "":
		return cfg.Paths.WorkRoot, nil
	default:
		return "", services.Wrap(services.ErrConfiguration, "workspace", "resolve work root",
			"set --work-dir, --bids-dir, or paths.work_root", nil)
	}
}

func newWorkspaceCommand(ctx *commandContext) *cobra.Command {
	workspaceCmd := &cobra.Command{
		Use:   "workspace",
		Short: "Manage per-run workspaces",
	}

	workspaceCmd.AddCommand(newWorkspaceListCommand(ctx))
	workspaceCmd.AddCommand(newWorkspaceCleanCommand(ctx))

	return workspaceCmd
}

func newWorkspaceListCommand(ctx *commandContext) *cobra.Command {
	flags := &workRootFlags{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workspaces under the work root",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			workRoot, err := flags.resolve(cfg)
			if err != nil {
				return err
			}

			dirs, err := workspace.List(workRoot)
			if err != nil {
				return fmt.Errorf("list workspaces: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(dirs) == 0 {
				fmt.Fprintln(out, "No workspaces found")
				return nil
			}
			fmt.Fprintf(out, "Work root: %s\n\n", workRoot)

			var totalSize int64
			rows := make([][]string, 0, len(dirs))
			for _, dir := range dirs {
				totalSize += dir.Size
				subject, runID := "-", "-"
				if dir.Managed {
					subject = dir.Key()
					runID = dir.Marker.RunID
				}
				rows = append(rows, []string{
					dir.Name,
					subject,
					runID,
					humanize.Time(dir.ModTime),
					humanize.IBytes(uint64(dir.Size)),
				})
			}

			fmt.Fprintln(out, renderTable(
				[]column{{title: "Directory"}, {title: "Subject"}, {title: "Run"}, {title: "Modified", right: true}, {title: "Size", right: true}},
				rows,
			))
			fmt.Fprintf(out, "\nTotal: %d directories, %s\n", len(dirs), humanize.IBytes(uint64(totalSize)))
			return nil
		},
	}

	flags.bind(cmd)
	return cmd
}

func newWorkspaceCleanCommand(ctx *commandContext) *cobra.Command {
	flags := &workRootFlags{}
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove fmristage workspaces older than a threshold",
		Long: "Remove workspaces carrying an fmristage marker whose modification time is older\n" +
			"than --older-than (default: workspace.stale_after_hours). Directories without a\n" +
			"marker and workspaces of runs still holding their lock are never removed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			workRoot, err := flags.resolve(cfg)
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			maxAge := olderThan
			if maxAge <= 0 {
				maxAge = time.Duration(cfg.Workspace.StaleAfterHours) * time.Hour
			}

			result := workspace.CleanStale(cmd.Context(), workRoot, maxAge, logger)
			out := cmd.OutOrStdout()
			for _, path := range result.Removed {
				fmt.Fprintf(out, "Removed %s\n", path)
			}
			for _, path := range result.Skipped {
				fmt.Fprintf(out, "Skipped %s (in use)\n", path)
			}
			fmt.Fprintf(out, "Removed %d workspaces older than %s\n", len(result.Removed), maxAge)

			if len(result.Errors) > 0 {
				errs := make([]error, 0, len(result.Errors))
				for _, e := range result.Errors {
					errs = append(errs, fmt.Errorf("%s: %w", e.Path, e.Error))
				}
				return services.Wrap(services.ErrStaging, "workspace", "clean", "", errors.Join(errs...))
			}
			return nil
		},
	}

	flags.bind(cmd)
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Minimum age of workspaces to remove (e.g. 48h)")
	return cmd
}
