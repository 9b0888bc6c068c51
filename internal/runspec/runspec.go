// Package runspec describes a single subject/session processing run.
package runspec

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"fmristage/internal/services"
)

const (
	subjectPrefix = "sub-"
	sessionPrefix = "ses-"
)

// RunConfig is the immutable description of one run. Build it with New.
type RunConfig struct {
	DatasetRoot string
	WorkRoot    string
	Subject     string
	Session     string
	Procs       int
	RunID       string
}

// New normalizes labels and paths, assigns a run id when none is supplied, and
// validates the result. Validation failures wrap services.ErrConfiguration.
func New(datasetRoot, workRoot, subject, session string, procs int, runID string) (RunConfig, error) {
	cfg := RunConfig{
		DatasetRoot: strings.TrimSpace(datasetRoot),
		WorkRoot:    strings.TrimSpace(workRoot),
		Subject:     NormalizeSubject(subject),
		Session:     NormalizeSession(session),
		Procs:       procs,
		RunID:       strings.TrimSpace(runID),
	}
	if cfg.DatasetRoot != "" {
		abs, err := filepath.Abs(cfg.DatasetRoot)
		if err != nil {
			return RunConfig{}, services.Wrap(services.ErrConfiguration, "run", "resolve dataset root", cfg.DatasetRoot, err)
		}
		cfg.DatasetRoot = abs
	}
	if cfg.WorkRoot == "" && cfg.DatasetRoot != "" {
		cfg.WorkRoot = filepath.Join(cfg.DatasetRoot, "work")
	}
	if cfg.WorkRoot != "" {
		abs, err := filepath.Abs(cfg.WorkRoot)
		if err != nil {
			return RunConfig{}, services.Wrap(services.ErrConfiguration, "run", "resolve work root", cfg.WorkRoot, err)
		}
		cfg.WorkRoot = abs
	}
	if cfg.RunID == "" {
		cfg.RunID = NewRunID()
	}
	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// NewRunID returns a fresh random run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// NormalizeSubject trims the label and ensures the sub- prefix.
func NormalizeSubject(label string) string {
	return normalizeLabel(label, subjectPrefix)
}

// NormalizeSession trims the label and ensures the ses- prefix. An empty label
// stays empty.
func NormalizeSession(label string) string {
	return normalizeLabel(label, sessionPrefix)
}

func normalizeLabel(label, prefix string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return ""
	}
	if strings.HasPrefix(label, prefix) {
		return label
	}
	return prefix + label
}

// Validate enforces the RunConfig invariants.
func (c RunConfig) Validate() error {
	if c.DatasetRoot == "" {
		return invalid("dataset root is required")
	}
	if c.WorkRoot == "" {
		return invalid("work root is required")
	}
	if err := validateLabel("subject", c.Subject, subjectPrefix); err != nil {
		return err
	}
	if c.Session != "" {
		if err := validateLabel("session", c.Session, sessionPrefix); err != nil {
			return err
		}
	}
	if c.Procs < 1 {
		return invalid(fmt.Sprintf("process count must be at least 1 (got %d)", c.Procs))
	}
	if err := validateComponent("run id", c.RunID); err != nil {
		return err
	}
	return nil
}

func validateLabel(kind, label, prefix string) error {
	if strings.TrimPrefix(label, prefix) == "" {
		return invalid(kind + " label is required")
	}
	return validateComponent(kind+" label", label)
}

func validateComponent(kind, value string) error {
	if value == "" {
		return invalid(kind + " is required")
	}
	if strings.ContainsAny(value, `/\`) || strings.Contains(value, "..") {
		return invalid(fmt.Sprintf("%s %q must not contain path separators or '..'", kind, value))
	}
	return nil
}

func invalid(message string) error {
	return services.Wrap(services.ErrConfiguration, "run", "validate", message, nil)
}

// ParticipantLabel returns the subject label without the sub- prefix, as the
// preprocessing pipeline expects it.
func (c RunConfig) ParticipantLabel() string {
	return strings.TrimPrefix(c.Subject, subjectPrefix)
}

// Key identifies the subject/session pair: sub-01 or sub-01_ses-1.
func (c RunConfig) Key() string {
	if c.Session == "" {
		return c.Subject
	}
	return c.Subject + "_" + c.Session
}

// SubjectRelPath is sub-01 or sub-01/ses-1, relative to a BIDS root.
func (c RunConfig) SubjectRelPath() string {
	if c.Session == "" {
		return c.Subject
	}
	return filepath.Join(c.Subject, c.Session)
}

// SourceDir is the subject (or session) directory inside the dataset.
func (c RunConfig) SourceDir() string {
	return filepath.Join(c.DatasetRoot, c.SubjectRelPath())
}

// WorkspaceName is the per-run directory name under the work root.
func (c RunConfig) WorkspaceName() string {
	return c.Key() + "-" + c.RunID
}

// WorkspaceDir is the absolute workspace root for this run.
func (c RunConfig) WorkspaceDir() string {
	return filepath.Join(c.WorkRoot, c.WorkspaceName())
}

// DerivativesDir is the publish destination for the given pipeline label.
func (c RunConfig) DerivativesDir(label string) string {
	return filepath.Join(c.DatasetRoot, "derivatives", label, c.SubjectRelPath())
}
