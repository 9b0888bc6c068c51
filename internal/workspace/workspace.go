package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fmristage/internal/config"
	"fmristage/internal/fileutil"
	"fmristage/internal/logging"
	"fmristage/internal/runspec"
	"fmristage/internal/services"
)

// StagedDirName is the BIDS root inside a workspace.
const StagedDirName = "dset"

// Workspace is the on-disk layout of one run.
type Workspace struct {
	Root       string
	DatasetDir string
	StagedDir  string
	OutputDir  string
	ScratchDir string
	assetNames []string
}

// AssetPath returns the workspace copy of the named asset.
func (w *Workspace) AssetPath(name string) string {
	return filepath.Join(w.Root, name)
}

// AssetNames lists the assets staged into the workspace root.
func (w *Workspace) AssetNames() []string {
	return append([]string(nil), w.assetNames...)
}

// Manager prepares, publishes, and tears down workspaces.
type Manager struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewManager constructs a Manager for the supplied configuration.
func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "workspace"),
	}
}

// Layout derives the workspace paths for a run without touching the filesystem.
func (m *Manager) Layout(run runspec.RunConfig) *Workspace {
	root := run.WorkspaceDir()
	datasetDir := filepath.Join(root, StagedDirName)
	return &Workspace{
		Root:       root,
		DatasetDir: datasetDir,
		StagedDir:  filepath.Join(datasetDir, run.SubjectRelPath()),
		OutputDir:  filepath.Join(root, m.cfg.Preprocess.OutputDirName),
		ScratchDir: filepath.Join(root, m.cfg.Preprocess.ScratchDirName),
		assetNames: m.cfg.AssetNames(),
	}
}

// Prepare creates the workspace, copies the subject (or session) subtree
// into dset/, and copies every asset into the workspace root.
//
// An existing workspace carrying this run's marker is removed and recreated.
// An existing empty directory is reused. Anything else is refused.
func (m *Manager) Prepare(ctx context.Context, run runspec.RunConfig) (*Workspace, error) {
	ws := m.Layout(run)
	logger := logging.WithContext(ctx, m.logger)

	source := run.SourceDir()
	info, err := os.Stat(source)
	if err != nil {
		return nil, services.Wrap(services.ErrStaging, "workspace", "locate input", source, err)
	}
	if !info.IsDir() {
		return nil, services.Wrap(services.ErrStaging, "workspace", "locate input", source+" is not a directory", nil)
	}

	if err := m.claimRoot(ws.Root, run, logger); err != nil {
		return nil, err
	}
	if err := writeMarker(ws.Root, markerFor(run)); err != nil {
		return nil, services.Wrap(services.ErrStaging, "workspace", "write marker", ws.Root, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, services.Wrap(services.ErrStaging, "workspace", "stage input", "cancelled", err)
	}
	if err := os.MkdirAll(filepath.Dir(ws.StagedDir), 0o755); err != nil {
		return nil, services.Wrap(services.ErrStaging, "workspace", "create dataset dir", ws.DatasetDir, err)
	}
	if err := fileutil.CopyTree(source, ws.StagedDir); err != nil {
		return nil, services.Wrap(services.ErrStaging, "workspace", "stage input", source, err)
	}
	logger.Info("staged input",
		logging.String(logging.FieldEventType, "input_staged"),
		logging.String("source", source),
		logging.String("destination", ws.StagedDir),
	)

	for _, name := range ws.assetNames {
		if err := ctx.Err(); err != nil {
			return nil, services.Wrap(services.ErrStaging, "workspace", "copy asset", "cancelled", err)
		}
		src := m.cfg.AssetPath(name)
		if err := fileutil.CopyFileVerified(src, ws.AssetPath(name)); err != nil {
			return nil, services.Wrap(services.ErrStaging, "workspace", "copy asset", src, err)
		}
		logger.Debug("copied asset", logging.String("asset", name))
	}

	logger.Info("workspace prepared",
		logging.String(logging.FieldEventType, "workspace_prepared"),
		logging.String("workspace", ws.Root),
		logging.Int("assets", len(ws.assetNames)),
	)
	return ws, nil
}

// claimRoot leaves root as an empty directory this run may use.
func (m *Manager) claimRoot(root string, run runspec.RunConfig, logger *slog.Logger) error {
	entries, err := os.ReadDir(root)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(root, 0o755); err != nil {
			return services.Wrap(services.ErrStaging, "workspace", "create", root, err)
		}
		return nil
	case err != nil:
		return services.Wrap(services.ErrStaging, "workspace", "inspect", root, err)
	case len(entries) == 0:
		return nil
	}

	marker, err := ReadMarker(root)
	if err != nil || !marker.Matches(run) {
		return services.Wrap(services.ErrStaging, "workspace", "claim",
			fmt.Sprintf("%s exists and does not belong to run %s; refusing to delete it", root, run.RunID), nil)
	}

	logger.Info("resetting existing workspace",
		logging.String(logging.FieldEventType, "workspace_reset"),
		logging.String("workspace", root),
	)
	if err := os.RemoveAll(root); err != nil {
		return services.Wrap(services.ErrStaging, "workspace", "reset", root, err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return services.Wrap(services.ErrStaging, "workspace", "create", root, err)
	}
	return nil
}

// EnsureOutputDir creates the preprocessing output directory.
func (m *Manager) EnsureOutputDir(ws *Workspace) error {
	if err := os.MkdirAll(ws.OutputDir, 0o755); err != nil {
		return services.Wrap(services.ErrStaging, "workspace", "create output dir", ws.OutputDir, err)
	}
	return nil
}

// Publish moves the preprocessing output into
// <dataset>/derivatives/<label>/<sub>[/<ses>] and returns that path.
func (m *Manager) Publish(ctx context.Context, ws *Workspace, run runspec.RunConfig) (string, error) {
	logger := logging.WithContext(ctx, m.logger)
	dest := run.DerivativesDir(m.cfg.Derivatives.Label)

	info, err := os.Stat(ws.OutputDir)
	if err != nil {
		return "", services.Wrap(services.ErrPublish, "publish", "locate output", ws.OutputDir, err)
	}
	if !info.IsDir() {
		return "", services.Wrap(services.ErrPublish, "publish", "locate output", ws.OutputDir+" is not a directory", nil)
	}

	if _, err := os.Lstat(dest); err == nil {
		if !m.cfg.Derivatives.Overwrite {
			return "", services.Wrap(services.ErrPublish, "publish", "check destination",
				dest+" already exists (set derivatives.overwrite to replace it)", nil)
		}
		logging.WarnWithContext(logger, "replacing existing derivatives", "derivatives_overwrite",
			logging.String("destination", dest),
			logging.String(logging.FieldImpact, "previous results for this subject are removed"),
			logging.String(logging.FieldErrorHint, "disable derivatives.overwrite to keep prior results"),
		)
		if err := os.RemoveAll(dest); err != nil {
			return "", services.Wrap(services.ErrPublish, "publish", "remove existing destination", dest, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", services.Wrap(services.ErrPublish, "publish", "check destination", dest, err)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", services.Wrap(services.ErrPublish, "publish", "create parent", filepath.Dir(dest), err)
	}
	if err := fileutil.MoveTree(ws.OutputDir, dest); err != nil {
		return "", services.Wrap(services.ErrPublish, "publish", "move output", dest, err)
	}

	logger.Info("published derivatives",
		logging.String(logging.FieldEventType, "derivatives_published"),
		logging.String("destination", dest),
	)
	return dest, nil
}

// Teardown removes the workspace. Removing an absent workspace succeeds.
func (m *Manager) Teardown(ws *Workspace) error {
	if ws == nil || strings.TrimSpace(ws.Root) == "" {
		return nil
	}
	started := time.Now()
	if err := os.RemoveAll(ws.Root); err != nil {
		return services.Wrap(services.ErrStaging, "teardown", "remove workspace", ws.Root, err)
	}
	m.logger.Info("workspace removed",
		logging.String(logging.FieldEventType, "workspace_removed"),
		logging.String("workspace", ws.Root),
		logging.Duration("duration", time.Since(started)),
	)
	return nil
}
