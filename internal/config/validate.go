package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAssets(); err != nil {
		return err
	}
	if err := c.validateDenoise(); err != nil {
		return err
	}
	if err := c.validatePreprocess(); err != nil {
		return err
	}
	if err := c.validateDerivatives(); err != nil {
		return err
	}
	if err := c.validateLimits(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateAssets() error {
	if c.Denoise.Enabled {
		if err := ensureBaseName("assets.denoise_image", c.Assets.DenoiseImage); err != nil {
			return err
		}
	}
	if err := ensureBaseName("assets.preprocess_image", c.Assets.PrepImage); err != nil {
		return err
	}
	if err := ensureBaseName("assets.license", c.Assets.License); err != nil {
		return err
	}
	seen := make(map[string]struct{}, 3)
	for _, name := range c.AssetNames() {
		if _, dup := seen[name]; dup {
			return fmt.Errorf("assets: %q is configured more than once", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

func (c *Config) validateDenoise() error {
	if !c.Denoise.Enabled {
		return nil
	}
	if c.Denoise.ScanPattern == "" {
		return errors.New("denoise.scan_pattern must be set when denoise.enabled is true")
	}
	if strings.ContainsAny(c.Denoise.ScanPattern+c.Denoise.ScanSuffix, `/\`) {
		return errors.New("denoise.scan_pattern and denoise.scan_suffix must not contain path separators")
	}
	return ensureEnvKeys("denoise.env", c.Denoise.Env)
}

func (c *Config) validatePreprocess() error {
	if err := ensureBaseName("preprocess.output_dir_name", c.Preprocess.OutputDirName); err != nil {
		return err
	}
	if err := ensureBaseName("preprocess.scratch_dir_name", c.Preprocess.ScratchDirName); err != nil {
		return err
	}
	if c.Preprocess.OutputDirName == c.Preprocess.ScratchDirName {
		return errors.New("preprocess.output_dir_name and preprocess.scratch_dir_name must differ")
	}
	if c.Preprocess.OutputDirName == "dset" || c.Preprocess.ScratchDirName == "dset" {
		return errors.New(`preprocess directories must not be named "dset"`)
	}
	return ensureEnvKeys("preprocess.env", c.Preprocess.Env)
}

func (c *Config) validateDerivatives() error {
	return ensureBaseName("derivatives.label", c.Derivatives.Label)
}

func (c *Config) validateLimits() error {
	if c.Workspace.StaleAfterHours <= 0 {
		return errors.New("workspace.stale_after_hours must be positive")
	}
	if c.Preflight.MinFreeGiB < 0 {
		return errors.New("preflight.min_free_gib must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func ensureBaseName(key, value string) error {
	if value == "" {
		return fmt.Errorf("%s must be set", key)
	}
	if value == "." || value == ".." || filepath.Base(value) != value || strings.ContainsAny(value, `/\`) {
		return fmt.Errorf("%s must be a plain file or directory name, got %q", key, value)
	}
	return nil
}

func ensureEnvKeys(section string, env map[string]string) error {
	for key := range env {
		if key == "" || strings.Contains(key, "=") {
			return fmt.Errorf("%s: invalid variable name %q", section, key)
		}
	}
	return nil
}
