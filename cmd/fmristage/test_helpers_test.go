package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fmristage/internal/config"
	"fmristage/internal/testsupport"
)

// stubRuntime stands in for the container runtime. It creates a report in the
// directory preceding "participant" and exits with $STUB_EXIT.
const stubRuntime = `#!/bin/sh
if [ "$1" = "--version" ]; then
  echo "stub-runtime 1.0"
  exit 0
fi
echo "stub $*"
prev=""
for arg in "$@"; do
  if [ "$arg" = "participant" ]; then
    mkdir -p "$prev" && echo ok > "$prev/report.html"
  fi
  prev="$arg"
done
exit "${STUB_EXIT:-0}"
`

type cliTestEnv struct {
	cfg        *config.Config
	dataset    *testsupport.Dataset
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("STUB_EXIT", "0")

	runtime := filepath.Join(base, "bin", "stub-runtime")
	if err := os.MkdirAll(filepath.Dir(runtime), 0o755); err != nil {
		t.Fatalf("mkdir bin: %v", err)
	}
	if err := os.WriteFile(runtime, []byte(stubRuntime), 0o755); err != nil {
		t.Fatalf("write stub runtime: %v", err)
	}
	cfg.Runtime.Binary = runtime

	configPath := filepath.Join(base, "fmristage.toml")
	writeTestConfig(t, configPath, cfg)

	dataset := testsupport.NewDataset(t)
	dataset.AddFile("sub-01", "", "anat/sub-01_T1w.nii.gz")
	dataset.AddFunctional("sub-01", "", "sub-01_task-rest_bold.nii.gz")
	dataset.AddFunctional("sub-01", "", "sub-01_task-rest_bold.json")

	return &cliTestEnv{
		cfg:        cfg,
		dataset:    dataset,
		configPath: configPath,
		baseDir:    base,
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nwork_root = %q\nlog_dir = %q\nledger_path = %q\n\n"+
			"[runtime]\nbinary = %q\n\n"+
			"[assets]\ndir = %q\n\n"+
			"[preflight]\nmin_free_gib = 0\n\n"+
			"[logging]\nlevel = \"warn\"\n",
		cfg.Paths.WorkRoot,
		cfg.Paths.LogDir,
		cfg.Paths.LedgerPath,
		cfg.Runtime.Binary,
		cfg.Assets.Dir,
	)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func requireNotContains(t *testing.T, output, substr string) {
	t.Helper()
	if strings.Contains(output, substr) {
		t.Fatalf("expected %q not to contain %q", output, substr)
	}
}
