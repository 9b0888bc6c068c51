package workspace

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"fmristage/internal/fileutil"
	"fmristage/internal/logging"
)

// DirInfo contains metadata about a directory under the work root.
type DirInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
	// Managed is true when the directory carries a readable marker.
	Managed bool
	Marker  Marker
}

// Key returns the subject/session key recorded in the marker.
func (d DirInfo) Key() string {
	if d.Marker.Session == "" {
		return d.Marker.Subject
	}
	return d.Marker.Subject + "_" + d.Marker.Session
}

// CleanStaleResult contains the outcome of a stale workspace cleanup.
type CleanStaleResult struct {
	Removed []string
	Skipped []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// List returns every directory in workRoot with its metadata, oldest first.
// The lock directory is omitted. A missing work root yields no entries.
func List(workRoot string) ([]DirInfo, error) {
	workRoot = strings.TrimSpace(workRoot)
	if workRoot == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(workRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []DirInfo
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == locksDirName {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}

		dirPath := filepath.Join(workRoot, entry.Name())
		size, _ := fileutil.DirSize(dirPath)
		dir := DirInfo{
			Name:    entry.Name(),
			Path:    dirPath,
			ModTime: info.ModTime(),
			Size:    size,
		}
		if marker, err := ReadMarker(dirPath); err == nil {
			dir.Managed = true
			dir.Marker = marker
		}
		dirs = append(dirs, dir)
	}

	sort.Slice(dirs, func(i, j int) bool {
		return dirs[i].ModTime.Before(dirs[j].ModTime)
	})
	return dirs, nil
}

// CleanStale removes managed workspaces older than maxAge. Directories without
// a marker are never touched, and workspaces whose subject/session lock is
// currently held are skipped.
func CleanStale(ctx context.Context, workRoot string, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	result := CleanStaleResult{}
	logger = logging.NewComponentLogger(logger, "workspace")

	dirs, err := List(workRoot)
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: workRoot, Error: err})
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, dir := range dirs {
		if ctx.Err() != nil {
			break
		}
		if !dir.Managed || !dir.ModTime.Before(cutoff) {
			continue
		}

		lock, err := Acquire(workRoot, dir.Key())
		if err != nil {
			result.Skipped = append(result.Skipped, dir.Path)
			logger.Info("skipping workspace in use",
				logging.String("path", dir.Path),
				logging.String(logging.FieldEventType, "workspace_cleanup_skipped"),
			)
			continue
		}

		if err := os.RemoveAll(dir.Path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dir.Path, Error: err})
			logging.WarnWithContext(logger, "failed to remove stale workspace", "workspace_cleanup_failed",
				logging.String("path", dir.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check work root permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
		} else {
			result.Removed = append(result.Removed, dir.Path)
			logger.Info("removed stale workspace",
				logging.String("path", dir.Path),
				logging.Duration("age", time.Since(dir.ModTime)),
				logging.String(logging.FieldEventType, "workspace_cleanup"),
			)
		}
		_ = lock.Release()
	}

	return result
}
