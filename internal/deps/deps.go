// Package deps reports whether the external programs fmristage launches are
// installed.
package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"fmristage/internal/config"
)

// Requirement defines an external dependency fmristage relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Path        string
	Version     string
	Detail      string
}

var lookPath = exec.LookPath

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		path, err := lookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		status.Path = path
		results = append(results, status)
	}
	return results
}

// Requirements lists the programs a run needs for the given config.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "Container runtime",
			Command:     cfg.Runtime.Binary,
			Description: "Launches the denoising and preprocessing images",
		},
	}
}

// CheckSystemDeps evaluates every requirement for cfg and probes the version
// of each available program.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []Status {
	statuses := CheckBinaries(Requirements(cfg))
	for i := range statuses {
		if !statuses[i].Available {
			continue
		}
		if version, err := ProbeVersion(ctx, statuses[i].Path); err == nil {
			statuses[i].Version = version
		}
	}
	return statuses
}

// ProbeVersion runs "<binary> --version" and returns the first output line.
func ProbeVersion(ctx context.Context, binary string) (string, error) {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(probeCtx, binary, "--version").CombinedOutput() //nolint:gosec
	if err != nil {
		return "", fmt.Errorf("%s --version: %w", binary, err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(line), nil
}
