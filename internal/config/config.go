package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkRoot   string `toml:"work_root"`
	LogDir     string `toml:"log_dir"`
	LedgerPath string `toml:"ledger_path"`
}

// Runtime describes the container runtime used to launch both stages.
type Runtime struct {
	Binary string `toml:"binary"`
	// Binds are passed as -B <bind> to every container invocation.
	Binds []string `toml:"binds"`
	// StageTimeout bounds a single stage invocation in seconds. Zero disables it.
	StageTimeout int `toml:"stage_timeout"`
}

// Assets names the fixed external artifacts copied into every workspace.
type Assets struct {
	Dir          string `toml:"dir"`
	DenoiseImage string `toml:"denoise_image"`
	PrepImage    string `toml:"preprocess_image"`
	License      string `toml:"license"`
}

// Denoise contains configuration for the per-scan denoising stage.
type Denoise struct {
	Enabled     bool              `toml:"enabled"`
	ScanPattern string            `toml:"scan_pattern"`
	ScanSuffix  string            `toml:"scan_suffix"`
	Env         map[string]string `toml:"env"`
}

// Preprocess contains configuration for the preprocessing pipeline stage.
type Preprocess struct {
	OutputDirName  string            `toml:"output_dir_name"`
	ScratchDirName string            `toml:"scratch_dir_name"`
	OutputSpaces   []string          `toml:"output_spaces"`
	ExtraArgs      []string          `toml:"extra_args"`
	CleanEnv       bool              `toml:"clean_env"`
	Env            map[string]string `toml:"env"`
}

// Derivatives controls publication into the shared derivatives tree.
type Derivatives struct {
	Label     string `toml:"label"`
	Overwrite bool   `toml:"overwrite"`
}

// Workspace controls workspace retention.
type Workspace struct {
	KeepOnFailure bool `toml:"keep_on_failure"`
	// StaleAfterHours is the default age for `workspace clean`.
	StaleAfterHours int `toml:"stale_after_hours"`
}

// Ledger controls the SQLite run history.
type Ledger struct {
	Enabled bool `toml:"enabled"`
}

// Preflight contains thresholds for readiness checks.
type Preflight struct {
	MinFreeGiB int `toml:"min_free_gib"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level string `toml:"level"`
}

// Config encapsulates all configuration values for fmristage.
//
// Configuration sections by subsystem:
//   - Paths: work root, log directory, and ledger database
//   - Runtime: container runtime binary, binds, and stage timeout
//   - Assets: container images and license copied into each workspace
//   - Denoise: functional scan discovery and denoising env
//   - Preprocess: preprocessing output layout and options
//   - Derivatives: pipeline version label and overwrite policy
//   - Workspace: retention of failed workspaces
//   - Ledger: run history
//   - Preflight: free space threshold
//   - Logging: log level
type Config struct {
	Paths       Paths       `toml:"paths"`
	Runtime     Runtime     `toml:"runtime"`
	Assets      Assets      `toml:"assets"`
	Denoise     Denoise     `toml:"denoise"`
	Preprocess  Preprocess  `toml:"preprocess"`
	Derivatives Derivatives `toml:"derivatives"`
	Workspace   Workspace   `toml:"workspace"`
	Ledger      Ledger      `toml:"ledger"`
	Preflight   Preflight   `toml:"preflight"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/fmristage/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("fmristage.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories fmristage writes outside of a
// workspace. The work root is left to the workspace manager because it may
// default to a dataset-relative location.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.LogDir}
	if c.Ledger.Enabled && strings.TrimSpace(c.Paths.LedgerPath) != "" {
		dirs = append(dirs, filepath.Dir(c.Paths.LedgerPath))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StageTimeout returns the configured per-stage timeout, zero when disabled.
func (c *Config) StageTimeout() time.Duration {
	if c.Runtime.StageTimeout <= 0 {
		return 0
	}
	return time.Duration(c.Runtime.StageTimeout) * time.Second
}

// AssetNames lists the workspace-root file names of every auxiliary asset.
func (c *Config) AssetNames() []string {
	names := []string{c.Assets.License, c.Assets.PrepImage}
	if c.Denoise.Enabled {
		names = append([]string{c.Assets.DenoiseImage}, names...)
	}
	return names
}

// AssetPath returns the source location of an asset file name.
func (c *Config) AssetPath(name string) string {
	return filepath.Join(c.Assets.Dir, name)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
