package preflight

import (
	"context"
	"fmt"
	"strings"

	"fmristage/internal/config"
	"fmristage/internal/deps"
	"fmristage/internal/runspec"
	"fmristage/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Detail   string
	Advisory bool
}

// RunAll executes every preflight check for a run. The work root is created
// when missing so its permissions and free space can be checked.
func RunAll(ctx context.Context, cfg *config.Config, run runspec.RunConfig) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckInputDirectory("Subject input", run.SourceDir()))
	results = append(results, CheckDirectoryAccess("Dataset root", run.DatasetRoot))
	results = append(results, EnsureDirectory("Work root", run.WorkRoot))
	results = append(results, CheckFreeSpace("Work root free space", run.WorkRoot, cfg.Preflight.MinFreeGiB))

	for _, name := range cfg.AssetNames() {
		results = append(results, CheckAsset(name, cfg.AssetPath(name)))
	}

	for _, status := range deps.CheckSystemDeps(ctx, cfg) {
		results = append(results, fromDependency(status))
	}

	results = append(results, CheckCPU(run.Procs), CheckMemory(run.Procs))
	return results
}

// Blocking returns the failed results that should stop a run.
func Blocking(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Advisory {
			failed = append(failed, r)
		}
	}
	return failed
}

// Err summarizes blocking failures as a configuration error, or nil.
func Err(results []Result) error {
	failed := Blocking(results)
	if len(failed) == 0 {
		return nil
	}
	parts := make([]string, 0, len(failed))
	for _, r := range failed {
		parts = append(parts, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	return services.Wrap(services.ErrConfiguration, "preflight", "check readiness", strings.Join(parts, "; "), nil)
}

func fromDependency(status deps.Status) Result {
	result := Result{Name: status.Name, Passed: status.Available, Advisory: status.Optional}
	switch {
	case !status.Available:
		result.Detail = status.Detail
	case status.Version != "":
		result.Detail = fmt.Sprintf("%s (%s)", status.Path, status.Version)
	default:
		result.Detail = status.Path
	}
	return result
}
