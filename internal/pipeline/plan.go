package pipeline

import (
	"path/filepath"

	"fmristage/internal/procrun"
	"fmristage/internal/runspec"
	"fmristage/internal/services"
	"fmristage/internal/workspace"
)

// Plan is everything a run would do, computed without touching the workspace.
type Plan struct {
	Run         runspec.RunConfig
	Workspace   *workspace.Workspace
	Assets      []string
	Scans       []string
	Steps       []procrun.Invocation
	Destination string
}

// Plan builds the invocation list for a run from the source dataset. Scan
// paths are reported as they will appear inside the workspace.
func (s *Sequencer) Plan(run runspec.RunConfig) (Plan, error) {
	ws := s.workspaces.Layout(run)
	plan := Plan{
		Run:         run,
		Workspace:   ws,
		Assets:      ws.AssetNames(),
		Destination: run.DerivativesDir(s.cfg.Derivatives.Label),
	}

	if s.cfg.Denoise.Enabled {
		sourceScans, err := DiscoverScans(run.SourceDir(), s.cfg.Denoise.ScanPattern, s.cfg.Denoise.ScanSuffix)
		if err != nil {
			return Plan{}, services.Wrap(services.ErrStaging, StageDenoise, "discover scans", run.SourceDir(), err)
		}
		for _, scan := range sourceScans {
			rel, err := filepath.Rel(run.SourceDir(), scan)
			if err != nil {
				return Plan{}, services.Wrap(services.ErrStaging, StageDenoise, "map scan", scan, err)
			}
			staged := filepath.Join(ws.StagedDir, rel)
			plan.Scans = append(plan.Scans, staged)
			plan.Steps = append(plan.Steps, BuildDenoise(s.cfg, ws, run, staged))
		}
	}
	plan.Steps = append(plan.Steps, BuildPreprocess(s.cfg, ws, run))
	return plan, nil
}
