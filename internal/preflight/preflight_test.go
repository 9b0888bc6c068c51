package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"fmristage/internal/runspec"
	"fmristage/internal/services"
	"fmristage/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	result := CheckDirectoryAccess("test", t.TempDir())
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckDirectoryAccess("test", f); result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestEnsureDirectoryCreates(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if result := EnsureDirectory("work", dir); !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("expected directory created: %v", err)
	}
}

func TestCheckAsset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fs_license.txt")
	testsupport.WriteFile(t, path, 2048)

	if result := CheckAsset("fs_license.txt", path); !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}
	if result := CheckAsset("missing", filepath.Join(dir, "missing")); result.Passed {
		t.Fatal("expected failure for missing asset")
	}
	if result := CheckAsset("dir", dir); result.Passed {
		t.Fatal("expected failure for directory asset")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace("free", dir, 0); !result.Passed {
		t.Fatalf("zero threshold should pass, got %s", result.Detail)
	}
	if result := CheckFreeSpace("free", dir, 1<<30); result.Passed {
		t.Fatal("expected failure for an exabyte threshold")
	}
}

func TestSizingChecksAreAdvisory(t *testing.T) {
	for _, result := range []Result{CheckCPU(1 << 20), CheckMemory(1 << 20)} {
		if !result.Advisory {
			t.Fatalf("%s should be advisory", result.Name)
		}
		if result.Passed {
			t.Fatalf("%s should not pass for an absurd process count", result.Name)
		}
	}
}

func TestRunAllPassesForPreparedEnvironment(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	ds := testsupport.NewDataset(t)
	ds.AddFunctional("sub-01", "", "sub-01_task-rest_bold.nii.gz")
	run, err := runspec.New(ds.Root, cfg.Paths.WorkRoot, "01", "", 1, "pf")
	if err != nil {
		t.Fatalf("runspec.New: %v", err)
	}

	results := RunAll(context.Background(), cfg, run)
	if err := Err(results); err != nil {
		t.Fatalf("expected no blocking failures, got %v", err)
	}
}

func TestRunAllReportsMissingPieces(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutAssets())
	cfg.Runtime.Binary = "fmristage-no-such-runtime"
	ds := testsupport.NewDataset(t)
	run, err := runspec.New(ds.Root, cfg.Paths.WorkRoot, "01", "", 1, "pf")
	if err != nil {
		t.Fatalf("runspec.New: %v", err)
	}

	results := RunAll(context.Background(), cfg, run)
	failed := Blocking(results)
	// subject input, three assets, runtime
	if len(failed) != 5 {
		t.Fatalf("expected 5 blocking failures, got %d: %+v", len(failed), failed)
	}
	if err := Err(results); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
