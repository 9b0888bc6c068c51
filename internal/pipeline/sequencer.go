package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"fmristage/internal/config"
	"fmristage/internal/logging"
	"fmristage/internal/procrun"
	"fmristage/internal/runspec"
	"fmristage/internal/services"
	"fmristage/internal/workspace"
)

// Runner launches one external invocation.
type Runner interface {
	Run(ctx context.Context, inv procrun.Invocation) (procrun.Result, error)
}

// Workspaces is the workspace lifecycle the Sequencer drives.
type Workspaces interface {
	Layout(run runspec.RunConfig) *workspace.Workspace
	Prepare(ctx context.Context, run runspec.RunConfig) (*workspace.Workspace, error)
	EnsureOutputDir(ws *workspace.Workspace) error
	Publish(ctx context.Context, ws *workspace.Workspace, run runspec.RunConfig) (string, error)
	Teardown(ws *workspace.Workspace) error
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithRecorder sets the run history recorder.
func WithRecorder(recorder Recorder) Option {
	return func(s *Sequencer) {
		if recorder != nil {
			s.recorder = recorder
		}
	}
}

// WithLogger sets the sequencer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sequencer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithKeepWorkspace preserves the workspace regardless of outcome.
func WithKeepWorkspace(keep bool) Option {
	return func(s *Sequencer) {
		s.keepWorkspace = keep
	}
}

// Sequencer runs the stages of one subject/session in order.
type Sequencer struct {
	cfg           *config.Config
	runner        Runner
	workspaces    Workspaces
	recorder      Recorder
	logger        *slog.Logger
	keepWorkspace bool
}

// NewSequencer constructs a Sequencer.
func NewSequencer(cfg *config.Config, runner Runner, workspaces Workspaces, opts ...Option) *Sequencer {
	s := &Sequencer{
		cfg:        cfg,
		runner:     runner,
		workspaces: workspaces,
		recorder:   nopRecorder{},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "pipeline")
	return s
}

// Outcome summarizes a finished run.
type Outcome struct {
	RunID       string
	Workspace   string
	Kept        bool
	Destination string
	Denoised    []string
	State       State
	Duration    time.Duration
}

type runTracker struct {
	runID  string
	state  State
	logger *slog.Logger
}

// Execute performs the whole run. The workspace is removed on every exit
// path, panics included, unless it is preserved by WithKeepWorkspace or by
// workspace.keep_on_failure after a failure. Teardown errors are joined with
// the run error.
func (s *Sequencer) Execute(ctx context.Context, run runspec.RunConfig) (outcome Outcome, err error) {
	ctx = services.WithRunID(ctx, run.RunID)
	ctx = services.WithSubject(ctx, run.Subject, run.Session)
	started := time.Now()

	tracker := &runTracker{
		runID:  run.RunID,
		state:  StateIdle,
		logger: logging.WithContext(ctx, s.logger),
	}
	layout := s.workspaces.Layout(run)
	outcome = Outcome{RunID: run.RunID, Workspace: layout.Root, State: StateIdle}

	if recErr := s.recorder.Start(context.WithoutCancel(ctx), run, layout.Root); recErr != nil {
		s.warnRecorder(tracker.logger, recErr)
	}
	tracker.logger.Info("run starting",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("dataset", run.DatasetRoot),
		logging.String("workspace", layout.Root),
		logging.Int("procs", run.Procs),
	)

	var ws *workspace.Workspace
	defer func() {
		panicked := recover()
		if panicked != nil {
			err = errors.Join(err, fmt.Errorf("run panicked: %v", panicked))
		}
		err = s.finish(ctx, tracker, run, layout, ws, &outcome, err)
		outcome.Duration = time.Since(started)
		if panicked != nil {
			panic(panicked)
		}
	}()

	ws, err = s.workspaces.Prepare(ctx, run)
	if err != nil {
		return outcome, err
	}
	s.transition(ctx, tracker, StateStaged, ws.Root)

	var scans []string
	if s.cfg.Denoise.Enabled {
		scans, err = DiscoverScans(ws.StagedDir, s.cfg.Denoise.ScanPattern, s.cfg.Denoise.ScanSuffix)
		if err != nil {
			return outcome, services.Wrap(services.ErrStaging, StageDenoise, "discover scans", ws.StagedDir, err)
		}
		if len(scans) == 0 {
			tracker.logger.Info("no functional scans matched; skipping denoising",
				logging.Args(logging.DecisionAttrs("denoise", "skipped",
					fmt.Sprintf("no func/*%s*%s files", s.cfg.Denoise.ScanPattern, s.cfg.Denoise.ScanSuffix))...)...,
			)
		}
	}

	for i, scan := range scans {
		rel, relErr := filepath.Rel(ws.DatasetDir, scan)
		if relErr != nil {
			rel = scan
		}
		s.transition(ctx, tracker, StateDenoising, fmt.Sprintf("scan %d/%d %s", i+1, len(scans), rel))
		stageCtx := services.WithStage(ctx, StageDenoise)
		if _, err = s.runner.Run(stageCtx, BuildDenoise(s.cfg, ws, run, scan)); err != nil {
			return outcome, err
		}
		outcome.Denoised = append(outcome.Denoised, scan)
	}

	detail := ""
	if s.cfg.Denoise.Enabled && len(scans) == 0 {
		detail = "denoising skipped: no scans matched"
	}
	s.transition(ctx, tracker, StatePreprocessing, detail)
	if err = s.workspaces.EnsureOutputDir(ws); err != nil {
		return outcome, err
	}
	stageCtx := services.WithStage(ctx, StagePreprocess)
	if _, err = s.runner.Run(stageCtx, BuildPreprocess(s.cfg, ws, run)); err != nil {
		return outcome, err
	}

	dest, err := s.workspaces.Publish(ctx, ws, run)
	if err != nil {
		return outcome, err
	}
	outcome.Destination = dest
	s.transition(ctx, tracker, StatePublished, dest)
	return outcome, nil
}

// finish handles teardown, the terminal transition, and the ledger record.
func (s *Sequencer) finish(ctx context.Context, tracker *runTracker, run runspec.RunConfig, layout, ws *workspace.Workspace, outcome *Outcome, runErr error) error {
	if runErr != nil {
		s.transition(ctx, tracker, StateFailed, runErr.Error())
	}

	target := ws
	if target == nil {
		// Prepare failed part way; only clean up what this run created.
		if marker, err := workspace.ReadMarker(layout.Root); err == nil && marker.Matches(run) {
			target = layout
		}
	}

	keep := s.keepWorkspace || (runErr != nil && s.cfg.Workspace.KeepOnFailure)
	switch {
	case target == nil:
	case keep:
		outcome.Kept = true
		logging.WarnWithContext(tracker.logger, "workspace preserved", "workspace_preserved",
			logging.String("workspace", target.Root),
			logging.String(logging.FieldImpact, "disk space remains in use"),
			logging.String(logging.FieldErrorHint, "remove it with fmristage workspace clean once inspected"),
		)
	default:
		if err := s.workspaces.Teardown(target); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}

	if runErr == nil {
		s.transition(ctx, tracker, StateTerminated, "")
	} else if tracker.state != StateFailed {
		s.transition(ctx, tracker, StateFailed, runErr.Error())
	}
	outcome.State = tracker.state

	if recErr := s.recorder.Finish(context.WithoutCancel(ctx), run.RunID, runErr, outcome.Destination); recErr != nil {
		s.warnRecorder(tracker.logger, recErr)
	}

	if runErr != nil {
		logging.ErrorWithContext(tracker.logger, "run failed", "run_failed",
			logging.String("failure", services.Category(runErr)),
			logging.Error(runErr),
			logging.String(logging.FieldErrorHint, hintFor(runErr)),
		)
		return runErr
	}
	tracker.logger.Info("run complete",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.String("destination", outcome.Destination),
		logging.Int("denoised", len(outcome.Denoised)),
	)
	return nil
}

func (s *Sequencer) transition(ctx context.Context, tracker *runTracker, to State, detail string) {
	from := tracker.state
	if !CanTransition(from, to) {
		logging.WarnWithContext(tracker.logger, "unexpected state transition", "state_transition_invalid",
			logging.String("from", from.String()),
			logging.String("to", to.String()),
		)
	}
	tracker.state = to

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "state_transition"),
		logging.String("from", from.String()),
		logging.String("to", to.String()),
	}
	if detail != "" {
		attrs = append(attrs, logging.String("detail", detail))
	}
	tracker.logger.Info("run state changed", logging.Args(attrs...)...)

	if err := s.recorder.Transition(context.WithoutCancel(ctx), tracker.runID, from, to, detail); err != nil {
		s.warnRecorder(tracker.logger, err)
	}
}

func (s *Sequencer) warnRecorder(logger *slog.Logger, err error) {
	logging.WarnWithContext(logger, "run history not recorded", "ledger_write_failed",
		logging.Error(err),
		logging.String(logging.FieldImpact, "history command will miss this run"),
		logging.String(logging.FieldErrorHint, "check ledger_path permissions"),
	)
}

func hintFor(err error) string {
	var exitErr *procrun.ExitError
	switch {
	case errors.As(err, &exitErr):
		return "inspect the " + exitErr.Stage + " output above"
	case errors.Is(err, services.ErrPublish):
		return "check the derivatives directory and derivatives.overwrite"
	case errors.Is(err, services.ErrStaging):
		return "check the dataset, asset directory, and work root"
	default:
		return "check logs for details"
	}
}
