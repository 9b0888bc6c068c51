package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"fmristage/internal/config"
	"fmristage/internal/runspec"
)

type runFlags struct {
	bidsDir       string
	workDir       string
	subject       string
	session       string
	procs         int
	runID         string
	keepWorkspace bool
	dryRun        bool
	skipPreflight bool
	stageTimeout  time.Duration
}

// bindTarget registers the flags that identify a subject/session.
func (f *runFlags) bindTarget(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.bidsDir, "bids-dir", "b", "", "BIDS dataset root (required)")
	cmd.Flags().StringVarP(&f.workDir, "work-dir", "w", "", "Work root for per-run workspaces (default: paths.work_root, else <bids-dir>/work)")
	cmd.Flags().StringVar(&f.subject, "sub", "", "Subject label, with or without the sub- prefix (required)")
	cmd.Flags().StringVar(&f.session, "ses", "", "Session label, with or without the ses- prefix")
	cmd.Flags().IntVar(&f.procs, "n-procs", 1, "Process count passed to both stages")
	_ = cmd.MarkFlagRequired("bids-dir")
	_ = cmd.MarkFlagRequired("sub")
	cmd.Flags().SetNormalizeFunc(legacyFlagNames)
}

// legacyFlags maps the flag spellings used by existing job scripts onto the
// current names.
var legacyFlags = map[string]string{
	"bidsdir": "bids-dir",
	"workdir": "work-dir",
	"n_procs": "n-procs",
}

func legacyFlagNames(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	if current, ok := legacyFlags[name]; ok {
		name = current
	}
	return pflag.NormalizedName(name)
}

// bindExecution registers the flags that only apply to a real run.
func (f *runFlags) bindExecution(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.runID, "run-id", "", "Run identifier used in the workspace name (default: random)")
	cmd.Flags().BoolVar(&f.keepWorkspace, "keep-workspace", false, "Preserve the workspace after the run")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Print the plan without staging or running anything")
	cmd.Flags().BoolVar(&f.skipPreflight, "skip-preflight", false, "Skip readiness checks")
	cmd.Flags().DurationVar(&f.stageTimeout, "stage-timeout", 0, "Bound each stage invocation (0 uses runtime.stage_timeout)")
}

func (f *runFlags) runConfig(cfg *config.Config) (runspec.RunConfig, error) {
	workRoot := strings.TrimSpace(f.workDir)
	if workRoot == "" {
		workRoot = cfg.Paths.WorkRoot
	} else if expanded, err := config.ExpandPath(workRoot); err == nil {
		workRoot = expanded
	}
	bidsDir := strings.TrimSpace(f.bidsDir)
	if expanded, err := config.ExpandPath(bidsDir); err == nil {
		bidsDir = expanded
	}
	return runspec.New(bidsDir, workRoot, f.subject, f.session, f.procs, f.runID)
}

func (f *runFlags) timeout(cfg *config.Config) time.Duration {
	if f.stageTimeout > 0 {
		return f.stageTimeout
	}
	return cfg.StageTimeout()
}
