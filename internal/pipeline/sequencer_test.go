package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"fmristage/internal/config"
	"fmristage/internal/logging"
	"fmristage/internal/pipeline"
	"fmristage/internal/procrun"
	"fmristage/internal/runspec"
	"fmristage/internal/services"
	"fmristage/internal/testsupport"
	"fmristage/internal/workspace"
)

type stubRunner struct {
	calls   []procrun.Invocation
	failAt  int
	panicAt int
}

func newStubRunner() *stubRunner {
	return &stubRunner{failAt: -1, panicAt: -1}
}

func (r *stubRunner) Run(_ context.Context, inv procrun.Invocation) (procrun.Result, error) {
	r.calls = append(r.calls, inv)
	idx := len(r.calls) - 1
	if idx == r.panicAt {
		panic("runner exploded")
	}
	if idx == r.failAt {
		return procrun.Result{}, &procrun.ExitError{
			Stage:    inv.Stage,
			Command:  procrun.FormatCommand(inv.Command()),
			ExitCode: 1,
			Output:   "boom\n",
		}
	}
	if inv.Stage == pipeline.StagePreprocess {
		for i, arg := range inv.Args {
			if arg == "participant" {
				out := inv.Args[i-1]
				if err := os.WriteFile(filepath.Join(out, "dataset_description.json"), []byte("{}"), 0o644); err != nil {
					return procrun.Result{}, err
				}
			}
		}
	}
	return procrun.Result{ExitCode: 0}, nil
}

func (r *stubRunner) stages() []string {
	out := make([]string, 0, len(r.calls))
	for _, call := range r.calls {
		out = append(out, call.Stage)
	}
	return out
}

type fixture struct {
	cfg     *config.Config
	dataset *testsupport.Dataset
	run     runspec.RunConfig
	runner  *stubRunner
}

func newFixture(t *testing.T, session string, scans []string, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	ds := testsupport.NewDataset(t)
	sessionLabel := runspec.NormalizeSession(session)
	ds.AddFile("sub-01", sessionLabel, "anat/sub-01_T1w.nii.gz")
	for _, scan := range scans {
		ds.AddFunctional("sub-01", sessionLabel, scan)
	}
	run, err := runspec.New(ds.Root, cfg.Paths.WorkRoot, "01", session, 4, "run1")
	if err != nil {
		t.Fatalf("runspec.New: %v", err)
	}
	return &fixture{cfg: cfg, dataset: ds, run: run, runner: newStubRunner()}
}

func (f *fixture) sequencer(opts ...pipeline.Option) *pipeline.Sequencer {
	manager := workspace.NewManager(f.cfg, logging.NewNop())
	return pipeline.NewSequencer(f.cfg, f.runner, manager, opts...)
}

func TestExecuteRunsStagesInOrderAndPublishes(t *testing.T) {
	f := newFixture(t, "", []string{
		"sub-01_task-rest_run-2_bold.nii.gz",
		"sub-01_task-rest_run-1_bold.nii.gz",
		"sub-01_task-motor_bold.nii.gz",
		"sub-01_task-rest_run-1_bold.json",
	})

	outcome, err := f.sequencer().Execute(context.Background(), f.run)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if diff := cmp.Diff([]string{"denoise", "denoise", "preprocess"}, f.runner.stages()); diff != "" {
		t.Fatalf("stage order mismatch (-want +got):\n%s", diff)
	}
	staged := filepath.Join(f.run.WorkspaceDir(), "dset", "sub-01", "func")
	wantScans := []string{
		filepath.Join(staged, "sub-01_task-rest_run-1_bold.nii.gz"),
		filepath.Join(staged, "sub-01_task-rest_run-2_bold.nii.gz"),
	}
	if diff := cmp.Diff(wantScans, outcome.Denoised); diff != "" {
		t.Fatalf("denoised scans mismatch (-want +got):\n%s", diff)
	}
	for i, scan := range wantScans {
		args := f.runner.calls[i].Args
		if args[len(args)-1] != scan || args[len(args)-2] != scan {
			t.Fatalf("denoise call %d should process %s in place, got %v", i, scan, args)
		}
	}

	wantDest := filepath.Join(f.dataset.Root, "derivatives", f.cfg.Derivatives.Label, "sub-01")
	if outcome.Destination != wantDest {
		t.Fatalf("destination = %q, want %q", outcome.Destination, wantDest)
	}
	if _, err := os.Stat(filepath.Join(wantDest, "dataset_description.json")); err != nil {
		t.Fatalf("expected published output: %v", err)
	}
	if _, err := os.Stat(f.run.WorkspaceDir()); !os.IsNotExist(err) {
		t.Fatalf("expected workspace removed, err=%v", err)
	}
	if outcome.State != pipeline.StateTerminated {
		t.Fatalf("state = %s", outcome.State)
	}
}

func TestExecuteSkipsDenoiseWithoutScans(t *testing.T) {
	f := newFixture(t, "1", nil)

	outcome, err := f.sequencer().Execute(context.Background(), f.run)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if diff := cmp.Diff([]string{"preprocess"}, f.runner.stages()); diff != "" {
		t.Fatalf("stages mismatch (-want +got):\n%s", diff)
	}
	want := filepath.Join(f.dataset.Root, "derivatives", f.cfg.Derivatives.Label, "sub-01", "ses-1")
	if outcome.Destination != want {
		t.Fatalf("destination = %q, want %q", outcome.Destination, want)
	}
}

func TestExecuteDenoiseDisabled(t *testing.T) {
	f := newFixture(t, "", []string{"sub-01_task-rest_bold.nii.gz"}, testsupport.WithDenoise(false))

	if _, err := f.sequencer().Execute(context.Background(), f.run); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if diff := cmp.Diff([]string{"preprocess"}, f.runner.stages()); diff != "" {
		t.Fatalf("stages mismatch (-want +got):\n%s", diff)
	}
}

func TestExecuteStopsOnDenoiseFailure(t *testing.T) {
	f := newFixture(t, "", []string{
		"sub-01_task-rest_run-1_bold.nii.gz",
		"sub-01_task-rest_run-2_bold.nii.gz",
		"sub-01_task-rest_run-3_bold.nii.gz",
	})
	f.runner.failAt = 1

	outcome, err := f.sequencer().Execute(context.Background(), f.run)
	if !errors.Is(err, services.ErrExternalProcess) {
		t.Fatalf("expected external process error, got %v", err)
	}
	var exitErr *procrun.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode != 1 {
		t.Fatalf("expected exit code 1, got %v", err)
	}
	if len(f.runner.calls) != 2 {
		t.Fatalf("expected no invocation after the failure, got %d calls", len(f.runner.calls))
	}
	if _, statErr := os.Stat(filepath.Join(f.dataset.Root, "derivatives")); !os.IsNotExist(statErr) {
		t.Fatalf("nothing may be published after a failure, err=%v", statErr)
	}
	if _, statErr := os.Stat(f.run.WorkspaceDir()); !os.IsNotExist(statErr) {
		t.Fatalf("expected workspace removed after failure, err=%v", statErr)
	}
	if outcome.State != pipeline.StateFailed {
		t.Fatalf("state = %s", outcome.State)
	}
}

func TestExecuteStopsOnPreprocessFailure(t *testing.T) {
	f := newFixture(t, "", []string{"sub-01_task-rest_bold.nii.gz"})
	f.runner.failAt = 1

	_, err := f.sequencer().Execute(context.Background(), f.run)
	if services.ExitStatus(err) != services.ExitExternal {
		t.Fatalf("expected external exit status, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(f.dataset.Root, "derivatives")); !os.IsNotExist(statErr) {
		t.Fatalf("nothing may be published after a failure, err=%v", statErr)
	}
}

func TestExecuteKeepsWorkspaceOnFailureWhenConfigured(t *testing.T) {
	f := newFixture(t, "", []string{"sub-01_task-rest_bold.nii.gz"})
	f.cfg.Workspace.KeepOnFailure = true
	f.runner.failAt = 0

	outcome, err := f.sequencer().Execute(context.Background(), f.run)
	if err == nil {
		t.Fatal("expected failure")
	}
	if !outcome.Kept {
		t.Fatal("expected workspace to be kept")
	}
	if _, statErr := os.Stat(filepath.Join(f.run.WorkspaceDir(), workspace.MarkerFileName)); statErr != nil {
		t.Fatalf("expected preserved workspace: %v", statErr)
	}
}

func TestExecuteKeepWorkspaceFlag(t *testing.T) {
	f := newFixture(t, "", nil)

	outcome, err := f.sequencer(pipeline.WithKeepWorkspace(true)).Execute(context.Background(), f.run)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !outcome.Kept {
		t.Fatal("expected workspace to be kept")
	}
	if _, statErr := os.Stat(f.run.WorkspaceDir()); statErr != nil {
		t.Fatalf("expected preserved workspace: %v", statErr)
	}
}

func TestExecuteTearsDownOnPanic(t *testing.T) {
	f := newFixture(t, "", []string{"sub-01_task-rest_bold.nii.gz"})
	f.runner.panicAt = 0

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_, _ = f.sequencer().Execute(context.Background(), f.run)
	}()

	if _, err := os.Stat(f.run.WorkspaceDir()); !os.IsNotExist(err) {
		t.Fatalf("expected workspace removed after panic, err=%v", err)
	}
}

func TestExecuteLeavesForeignWorkspaceAlone(t *testing.T) {
	f := newFixture(t, "", nil)
	foreign := filepath.Join(f.run.WorkspaceDir(), "keep.txt")
	testsupport.WriteFile(t, foreign, 4)

	_, err := f.sequencer().Execute(context.Background(), f.run)
	if !errors.Is(err, services.ErrStaging) {
		t.Fatalf("expected staging error, got %v", err)
	}
	if len(f.runner.calls) != 0 {
		t.Fatalf("no stage may run, got %d calls", len(f.runner.calls))
	}
	if _, statErr := os.Stat(foreign); statErr != nil {
		t.Fatalf("foreign file must survive: %v", statErr)
	}
}

func TestExecuteRecordsTransitions(t *testing.T) {
	f := newFixture(t, "", []string{"sub-01_task-rest_bold.nii.gz"})
	store := testsupport.MustOpenLedger(t, f.cfg)

	seq := f.sequencer(pipeline.WithRecorder(pipeline.NewLedgerRecorder(store)))
	if _, err := seq.Execute(context.Background(), f.run); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	transitions, err := store.Transitions(context.Background(), f.run.RunID)
	if err != nil {
		t.Fatalf("Transitions: %v", err)
	}
	var got []string
	for _, tr := range transitions {
		got = append(got, tr.To)
	}
	want := []string{"staged", "denoising", "preprocessing", "published", "terminated"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("transitions mismatch (-want +got):\n%s", diff)
	}

	run, err := store.Get(context.Background(), f.run.RunID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if run.State != "terminated" || run.Destination == "" || !run.Finished() {
		t.Fatalf("unexpected ledger row %+v", run)
	}
}

func TestPlanMatchesExecution(t *testing.T) {
	f := newFixture(t, "", []string{"sub-01_task-rest_bold.nii.gz"})
	seq := f.sequencer()

	plan, err := seq.Plan(f.run)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if _, err := os.Stat(f.run.WorkspaceDir()); !os.IsNotExist(err) {
		t.Fatalf("plan must not create the workspace, err=%v", err)
	}
	if _, err := seq.Execute(context.Background(), f.run); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if diff := cmp.Diff(plan.Steps, f.runner.calls); diff != "" {
		t.Fatalf("plan and execution differ (-plan +exec):\n%s", diff)
	}
}
