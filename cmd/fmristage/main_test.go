package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"fmristage/internal/procrun"
	"fmristage/internal/services"
	"fmristage/internal/workspace"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.cfg.Runtime.Binary)

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected config init to refuse an existing file")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidateRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("bogus = true\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, err := runCLI(t, []string{"config", "validate"}, path)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if got := services.ExitStatus(err); got != services.ExitConfiguration {
		t.Fatalf("exit status = %d, want %d", got, services.ExitConfiguration)
	}
}

func TestPlanListsStagesWithoutStaging(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{
		"plan", "-b", env.dataset.Root, "--sub", "01", "--run-id", "plan1", "--n-procs", "4",
	}, env.configPath)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	requireContains(t, out, "Run ID:      plan1")
	requireContains(t, out, filepath.Join(env.cfg.Paths.WorkRoot, "sub-01-plan1"))
	requireContains(t, out, "denoise")
	requireContains(t, out, "preprocess")
	requireContains(t, out, "sub-01_task-rest_bold.nii.gz")
	requireContains(t, out, "participant")
	requireNotContains(t, out, "sub-01_task-rest_bold.json")

	if _, err := os.Stat(filepath.Join(env.cfg.Paths.WorkRoot, "sub-01-plan1")); !os.IsNotExist(err) {
		t.Fatalf("plan must not create the workspace, stat err = %v", err)
	}
}

func TestRunDryRunPrintsPlan(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{
		"run", "-b", env.dataset.Root, "--sub", "sub-01", "--run-id", "dry", "--dry-run",
	}, env.configPath)
	if err != nil {
		t.Fatalf("run --dry-run: %v", err)
	}
	requireContains(t, out, "Run ID:      dry")
	requireNotContains(t, out, "Run dry:")
}

func TestRunAcceptsLegacyFlagSpellings(t *testing.T) {
	env := setupCLITestEnv(t)
	workDir := filepath.Join(env.baseDir, "legacy-work")

	out, _, err := runCLI(t, []string{
		"run", "--dry-run", "--bidsdir", env.dataset.Root, "--workdir", workDir,
		"--sub", "01", "--n_procs", "4", "--run-id", "legacy",
	}, env.configPath)
	if err != nil {
		t.Fatalf("run with legacy flags: %v", err)
	}
	requireContains(t, out, "Run ID:      legacy")
	requireContains(t, out, "Workspace:   "+filepath.Join(workDir, "sub-01-legacy"))
	requireContains(t, out, "Processes:   4")
}

func TestRunPublishesAndTearsDown(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{
		"run", "-b", env.dataset.Root, "--sub", "01", "--run-id", "ok1", "--skip-preflight",
	}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	requireContains(t, out, "Run ok1: terminated")
	requireContains(t, out, "Denoised scans: 1")

	dest := filepath.Join(env.dataset.Root, "derivatives", env.cfg.Derivatives.Label, "sub-01")
	requireContains(t, out, "Derivatives: "+dest)
	if _, err := os.Stat(filepath.Join(dest, "report.html")); err != nil {
		t.Fatalf("expected published report: %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.WorkRoot, "sub-01-ok1")); !os.IsNotExist(err) {
		t.Fatalf("expected workspace removed, stat err = %v", err)
	}

	out, _, err = runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "ok1")
	requireContains(t, out, "terminated")

	out, _, err = runCLI(t, []string{"history", "--run-id", "ok1"}, env.configPath)
	if err != nil {
		t.Fatalf("history --run-id: %v", err)
	}
	requireContains(t, out, "Published: "+dest)
	requireContains(t, out, "preprocessing")
	requireContains(t, out, "published")

	// A second run for the same subject must not clobber published results.
	_, _, err = runCLI(t, []string{
		"run", "-b", env.dataset.Root, "--sub", "01", "--run-id", "ok2", "--skip-preflight",
	}, env.configPath)
	if !errors.Is(err, services.ErrPublish) {
		t.Fatalf("expected publish error on existing derivatives, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.WorkRoot, "sub-01-ok2")); !os.IsNotExist(err) {
		t.Fatalf("expected failed workspace removed, stat err = %v", err)
	}
}

func TestRunStageFailureKeepsWorkspaceWhenAsked(t *testing.T) {
	env := setupCLITestEnv(t)
	t.Setenv("STUB_EXIT", "3")

	out, _, err := runCLI(t, []string{
		"run", "-b", env.dataset.Root, "--sub", "01", "--run-id", "bad1",
		"--skip-preflight", "--keep-workspace",
	}, env.configPath)
	if err == nil {
		t.Fatal("expected run to fail")
	}
	var exitErr *procrun.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %T: %v", err, err)
	}
	if exitErr.ExitCode != 3 {
		t.Fatalf("exit code = %d, want 3", exitErr.ExitCode)
	}
	if got := services.ExitStatus(err); got != services.ExitExternal {
		t.Fatalf("exit status = %d, want %d", got, services.ExitExternal)
	}
	requireContains(t, out, "Run bad1: failed")

	wsDir := filepath.Join(env.cfg.Paths.WorkRoot, "sub-01-bad1")
	requireContains(t, out, "Workspace kept: "+wsDir)
	if _, err := os.Stat(filepath.Join(wsDir, workspace.MarkerFileName)); err != nil {
		t.Fatalf("expected kept workspace marker: %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.dataset.Root, "derivatives")); !os.IsNotExist(err) {
		t.Fatalf("failed run must not publish, stat err = %v", err)
	}

	out, _, err = runCLI(t, []string{"workspace", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("workspace list: %v", err)
	}
	requireContains(t, out, "sub-01-bad1")
	requireContains(t, out, "bad1")

	out, _, err = runCLI(t, []string{"workspace", "clean", "--older-than", "1ns"}, env.configPath)
	if err != nil {
		t.Fatalf("workspace clean: %v", err)
	}
	requireContains(t, out, "Removed "+wsDir)
	if _, err := os.Stat(wsDir); !os.IsNotExist(err) {
		t.Fatalf("expected workspace cleaned, stat err = %v", err)
	}

	out, _, err = runCLI(t, []string{"workspace", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("workspace list: %v", err)
	}
	requireContains(t, out, "No workspaces found")
}

func TestRunFailsFastWhenSubjectLocked(t *testing.T) {
	env := setupCLITestEnv(t)

	lock, err := workspace.Acquire(env.cfg.Paths.WorkRoot, "sub-01")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer lock.Release()

	_, _, err = runCLI(t, []string{
		"run", "-b", env.dataset.Root, "--sub", "01", "--run-id", "busy", "--skip-preflight",
	}, env.configPath)
	if !errors.Is(err, services.ErrWorkspaceBusy) {
		t.Fatalf("expected busy error, got %v", err)
	}
	if got := services.ExitStatus(err); got != services.ExitBusy {
		t.Fatalf("exit status = %d, want %d", got, services.ExitBusy)
	}
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.WorkRoot, "sub-01-busy")); !os.IsNotExist(err) {
		t.Fatalf("locked run must not stage, stat err = %v", err)
	}
}

func TestRunRejectsMissingSubject(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{
		"run", "-b", env.dataset.Root, "--sub", "02", "--run-id", "missing",
	}, env.configPath)
	if err == nil {
		t.Fatal("expected missing subject to fail preflight")
	}
	if got := services.ExitStatus(err); got != services.ExitConfiguration {
		t.Fatalf("exit status = %d, want %d (%v)", got, services.ExitConfiguration, err)
	}
}

func TestCheckReportsReadiness(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"check", "-b", env.dataset.Root, "--sub", "01"}, env.configPath)
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	requireContains(t, out, "Preflight for sub-01")
	requireContains(t, out, "stub-runtime 1.0")
	requireContains(t, out, "Ready")

	if err := os.Remove(filepath.Join(env.cfg.Assets.Dir, env.cfg.Assets.License)); err != nil {
		t.Fatalf("remove license: %v", err)
	}
	out, _, err = runCLI(t, []string{"check", "-b", env.dataset.Root, "--sub", "01"}, env.configPath)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	requireContains(t, out, env.cfg.Assets.License)
	requireNotContains(t, out, "Ready")
}

func TestHistoryEmptyLedger(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No runs recorded")
}
