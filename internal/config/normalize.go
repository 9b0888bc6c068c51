package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeRuntime(); err != nil {
		return err
	}
	if err := c.normalizeAssets(); err != nil {
		return err
	}
	c.normalizeDenoise()
	c.normalizePreprocess()
	c.normalizeDerivatives()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkRoot) == "" {
		if value, ok := os.LookupEnv(envWorkRoot); ok {
			c.Paths.WorkRoot = strings.TrimSpace(value)
		}
	}
	if c.Paths.WorkRoot, err = expandPath(strings.TrimSpace(c.Paths.WorkRoot)); err != nil {
		return fmt.Errorf("paths.work_root: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LedgerPath) == "" {
		c.Paths.LedgerPath = defaultLedgerPath
	}
	if c.Paths.LedgerPath, err = expandPath(c.Paths.LedgerPath); err != nil {
		return fmt.Errorf("paths.ledger_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeRuntime() error {
	if value, ok := os.LookupEnv(envRuntimeBinaryOverride); ok && strings.TrimSpace(value) != "" {
		c.Runtime.Binary = value
	}
	c.Runtime.Binary = strings.TrimSpace(c.Runtime.Binary)
	if c.Runtime.Binary == "" {
		c.Runtime.Binary = defaultRuntimeBinary
	}
	c.Runtime.Binds = trimAll(c.Runtime.Binds)
	if c.Runtime.StageTimeout < 0 {
		c.Runtime.StageTimeout = 0
	}
	return nil
}

func (c *Config) normalizeAssets() error {
	var err error
	if value, ok := os.LookupEnv(envAssetDir); ok && strings.TrimSpace(value) != "" {
		c.Assets.Dir = value
	}
	if strings.TrimSpace(c.Assets.Dir) == "" {
		c.Assets.Dir = defaultAssetDir
	}
	if c.Assets.Dir, err = expandPath(strings.TrimSpace(c.Assets.Dir)); err != nil {
		return fmt.Errorf("assets.dir: %w", err)
	}
	c.Assets.DenoiseImage = strings.TrimSpace(c.Assets.DenoiseImage)
	c.Assets.PrepImage = strings.TrimSpace(c.Assets.PrepImage)
	c.Assets.License = strings.TrimSpace(c.Assets.License)
	return nil
}

func (c *Config) normalizeDenoise() {
	c.Denoise.ScanPattern = strings.TrimSpace(c.Denoise.ScanPattern)
	c.Denoise.ScanSuffix = strings.TrimSpace(c.Denoise.ScanSuffix)
	if c.Denoise.ScanSuffix == "" {
		c.Denoise.ScanSuffix = defaultScanSuffix
	}
	c.Denoise.Env = trimEnv(c.Denoise.Env)
}

func (c *Config) normalizePreprocess() {
	c.Preprocess.OutputDirName = strings.TrimSpace(c.Preprocess.OutputDirName)
	if c.Preprocess.OutputDirName == "" {
		c.Preprocess.OutputDirName = defaultOutputDirName
	}
	c.Preprocess.ScratchDirName = strings.TrimSpace(c.Preprocess.ScratchDirName)
	if c.Preprocess.ScratchDirName == "" {
		c.Preprocess.ScratchDirName = defaultScratchDirName
	}
	c.Preprocess.OutputSpaces = trimAll(c.Preprocess.OutputSpaces)
	if len(c.Preprocess.OutputSpaces) == 0 {
		c.Preprocess.OutputSpaces = append([]string(nil), defaultOutputSpaces...)
	}
	c.Preprocess.ExtraArgs = trimAll(c.Preprocess.ExtraArgs)
	c.Preprocess.Env = trimEnv(c.Preprocess.Env)
}

func (c *Config) normalizeDerivatives() {
	c.Derivatives.Label = strings.TrimSpace(c.Derivatives.Label)
	if c.Derivatives.Label == "" {
		c.Derivatives.Label = defaultDerivativesLabel
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func trimAll(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func trimEnv(env map[string]string) map[string]string {
	if len(env) == 0 {
		return nil
	}
	out := make(map[string]string, len(env))
	for key, value := range env {
		out[strings.TrimSpace(key)] = value
	}
	return out
}
