package runspec_test

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"fmristage/internal/runspec"
	"fmristage/internal/services"
)

func TestNewNormalizesLabels(t *testing.T) {
	root := t.TempDir()
	cfg, err := runspec.New(root, "", "01", "1", 4, "abc")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if cfg.Subject != "sub-01" || cfg.Session != "ses-1" {
		t.Fatalf("unexpected labels: %q %q", cfg.Subject, cfg.Session)
	}
	if cfg.ParticipantLabel() != "01" {
		t.Fatalf("participant label = %q", cfg.ParticipantLabel())
	}
	if cfg.WorkRoot != filepath.Join(root, "work") {
		t.Fatalf("work root = %q", cfg.WorkRoot)
	}
	if got, want := cfg.WorkspaceDir(), filepath.Join(root, "work", "sub-01_ses-1-abc"); got != want {
		t.Fatalf("workspace dir = %q, want %q", got, want)
	}
	if got, want := cfg.DerivativesDir("label"), filepath.Join(root, "derivatives", "label", "sub-01", "ses-1"); got != want {
		t.Fatalf("derivatives dir = %q, want %q", got, want)
	}
}

func TestNewWithoutSession(t *testing.T) {
	root := t.TempDir()
	cfg, err := runspec.New(root, filepath.Join(root, "scratch"), "sub-07", "", 1, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if cfg.Key() != "sub-07" {
		t.Fatalf("key = %q", cfg.Key())
	}
	if cfg.SubjectRelPath() != "sub-07" {
		t.Fatalf("rel path = %q", cfg.SubjectRelPath())
	}
	if cfg.RunID == "" {
		t.Fatal("expected generated run id")
	}
	if !strings.HasPrefix(cfg.WorkspaceName(), "sub-07-") {
		t.Fatalf("workspace name = %q", cfg.WorkspaceName())
	}
}

func TestRunIDsAreDistinct(t *testing.T) {
	if runspec.NewRunID() == runspec.NewRunID() {
		t.Fatal("expected distinct run ids")
	}
}

func TestNewRejectsInvalidInput(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		name    string
		dataset string
		subject string
		session string
		procs   int
		runID   string
	}{
		{name: "missing dataset", dataset: "", subject: "01", procs: 1},
		{name: "missing subject", dataset: root, subject: "", procs: 1},
		{name: "bare prefix", dataset: root, subject: "sub-", procs: 1},
		{name: "zero procs", dataset: root, subject: "01", procs: 0},
		{name: "separator in subject", dataset: root, subject: "01/../02", procs: 1},
		{name: "dotdot in session", dataset: root, subject: "01", session: "..", procs: 1},
		{name: "separator in run id", dataset: root, subject: "01", procs: 1, runID: "a/b"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := runspec.New(tc.dataset, "", tc.subject, tc.session, tc.procs, tc.runID)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}
