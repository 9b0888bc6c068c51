package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"fmristage/internal/config"
	"fmristage/internal/procrun"
	"fmristage/internal/runspec"
	"fmristage/internal/workspace"
)

// DiscoverScans returns the sorted functional scans under subjectDir/func
// whose names contain pattern and end with suffix. A missing func directory
// yields no scans; a match that cannot be resolved, such as a dangling
// symlink, is an error rather than a silently skipped scan.
func DiscoverScans(subjectDir, pattern, suffix string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(subjectDir, "func", "*"+globEscape(pattern)+"*"))
	if err != nil {
		return nil, err
	}
	scans := make([]string, 0, len(matches))
	for _, match := range matches {
		if !strings.HasSuffix(filepath.Base(match), suffix) {
			continue
		}
		info, err := os.Stat(match)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", match, err)
		}
		if info.IsDir() {
			continue
		}
		scans = append(scans, match)
	}
	sort.Strings(scans)
	return scans, nil
}

func globEscape(pattern string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`)
	return replacer.Replace(pattern)
}

func runtimePrefix(cfg *config.Config, extra ...string) []string {
	args := append([]string{"run"}, extra...)
	for _, bind := range cfg.Runtime.Binds {
		args = append(args, "-B", bind)
	}
	return args
}

// BuildDenoise returns the in-place denoising invocation for one scan.
func BuildDenoise(cfg *config.Config, ws *workspace.Workspace, run runspec.RunConfig, scan string) procrun.Invocation {
	args := runtimePrefix(cfg)
	args = append(args,
		ws.AssetPath(cfg.Assets.DenoiseImage),
		"-nthreads", strconv.Itoa(run.Procs),
		"-force",
		scan,
		scan,
	)
	return procrun.Invocation{
		Stage:   StageDenoise,
		Program: cfg.Runtime.Binary,
		Args:    args,
		Env:     copyEnv(cfg.Denoise.Env),
		Dir:     ws.Root,
	}
}

// BuildPreprocess returns the preprocessing invocation for the run.
func BuildPreprocess(cfg *config.Config, ws *workspace.Workspace, run runspec.RunConfig) procrun.Invocation {
	var runtimeFlags []string
	if cfg.Preprocess.CleanEnv {
		runtimeFlags = append(runtimeFlags, "--cleanenv")
	}
	args := runtimePrefix(cfg, runtimeFlags...)
	args = append(args,
		ws.AssetPath(cfg.Assets.PrepImage),
		ws.DatasetDir,
		ws.OutputDir,
		"participant",
		"--participant-label", run.ParticipantLabel(),
		"--verbose",
		"-w", ws.ScratchDir,
		"--omp-nthreads", strconv.Itoa(run.Procs),
		"--fs-license-file", ws.AssetPath(cfg.Assets.License),
		"--notrack",
	)
	if len(cfg.Preprocess.OutputSpaces) > 0 {
		args = append(args, "--output-spaces")
		args = append(args, cfg.Preprocess.OutputSpaces...)
	}
	args = append(args, cfg.Preprocess.ExtraArgs...)
	return procrun.Invocation{
		Stage:   StagePreprocess,
		Program: cfg.Runtime.Binary,
		Args:    args,
		Env:     copyEnv(cfg.Preprocess.Env),
		Dir:     ws.Root,
	}
}

func copyEnv(env map[string]string) map[string]string {
	if len(env) == 0 {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}
