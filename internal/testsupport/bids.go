package testsupport

import (
	"path/filepath"
	"testing"
)

// Dataset builds a minimal BIDS tree for tests.
type Dataset struct {
	t    testing.TB
	Root string
}

// NewDataset creates an empty dataset root under a fresh temp directory.
func NewDataset(t testing.TB) *Dataset {
	t.Helper()
	root := filepath.Join(t.TempDir(), "bids")
	WriteFile(t, filepath.Join(root, "dataset_description.json"), 32)
	return &Dataset{t: t, Root: root}
}

// AddFile writes a file at rel (slash separated) below the subject, or below
// subject/session when session is non-empty, and returns its absolute path.
func (d *Dataset) AddFile(subject, session, rel string) string {
	d.t.Helper()
	parts := []string{d.Root, subject}
	if session != "" {
		parts = append(parts, session)
	}
	parts = append(parts, filepath.FromSlash(rel))
	path := filepath.Join(parts...)
	WriteFile(d.t, path, 16)
	return path
}

// AddFunctional writes func/<name> for the subject/session.
func (d *Dataset) AddFunctional(subject, session, name string) string {
	d.t.Helper()
	return d.AddFile(subject, session, "func/"+name)
}
