package deps

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"fmristage/internal/config"
)

func writeStub(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckBinaries(t *testing.T) {
	present := writeStub(t, t.TempDir(), "present", "#!/bin/sh\nexit 0\n")
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Path != present {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("expected blank command to be reported, got %#v", results[2])
	}
}

func TestCheckSystemDepsProbesVersion(t *testing.T) {
	dir := t.TempDir()
	runtimeBin := writeStub(t, dir, "singularity", "#!/bin/sh\necho 'singularity version 3.5.3'\n")

	cfg := config.Default()
	cfg.Runtime.Binary = runtimeBin

	statuses := CheckSystemDeps(context.Background(), &cfg)
	if len(statuses) != 1 {
		t.Fatalf("expected 1 status, got %d", len(statuses))
	}
	if !statuses[0].Available {
		t.Fatalf("expected runtime available, got %#v", statuses[0])
	}
	if statuses[0].Version != "singularity version 3.5.3" {
		t.Fatalf("version = %q", statuses[0].Version)
	}
}
