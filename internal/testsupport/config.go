package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"fmristage/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t          testing.TB
	baseDir    string
	cfg        *config.Config
	skipAssets bool
}

// NewConfig produces a config seeded with unique temp directories per test.
// Every configured asset exists as a small file in the asset directory.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkRoot = filepath.Join(base, "work")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.LedgerPath = filepath.Join(base, "state", "runs.db")
	cfgVal.Assets.Dir = filepath.Join(base, "assets")
	cfgVal.Preflight.MinFreeGiB = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if !builder.skipAssets {
		for _, name := range []string{cfgVal.Assets.DenoiseImage, cfgVal.Assets.PrepImage, cfgVal.Assets.License} {
			WriteFile(t, filepath.Join(cfgVal.Assets.Dir, name), 64)
		}
	}

	return builder.cfg
}

// WithoutAssets leaves the asset directory unpopulated.
func WithoutAssets() ConfigOption {
	return func(b *configBuilder) {
		b.skipAssets = true
	}
}

// WithDenoise toggles the denoising stage.
func WithDenoise(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Denoise.Enabled = enabled
	}
}

// WithOverwrite toggles replacement of existing derivatives.
func WithOverwrite(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Derivatives.Overwrite = enabled
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default container runtime is
// stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{b.cfg.Runtime.Binary}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkRoot)
}
