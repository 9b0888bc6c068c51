package pipeline

import (
	"context"

	"fmristage/internal/ledger"
	"fmristage/internal/runspec"
	"fmristage/internal/services"
)

// Recorder persists run history. Recorder failures are logged and never fail
// a run.
type Recorder interface {
	Start(ctx context.Context, run runspec.RunConfig, workspaceDir string) error
	Transition(ctx context.Context, runID string, from, to State, detail string) error
	Finish(ctx context.Context, runID string, runErr error, destination string) error
}

// LedgerRecorder writes run history to a ledger.Store.
type LedgerRecorder struct {
	store *ledger.Store
}

// NewLedgerRecorder wraps store.
func NewLedgerRecorder(store *ledger.Store) *LedgerRecorder {
	return &LedgerRecorder{store: store}
}

func (r *LedgerRecorder) Start(ctx context.Context, run runspec.RunConfig, workspaceDir string) error {
	return r.store.StartRun(ctx, ledger.Run{
		RunID:        run.RunID,
		Subject:      run.Subject,
		Session:      run.Session,
		DatasetRoot:  run.DatasetRoot,
		WorkspaceDir: workspaceDir,
		Procs:        run.Procs,
		State:        StateIdle.String(),
	})
}

func (r *LedgerRecorder) Transition(ctx context.Context, runID string, from, to State, detail string) error {
	return r.store.Transition(ctx, runID, from.String(), to.String(), detail)
}

func (r *LedgerRecorder) Finish(ctx context.Context, runID string, runErr error, destination string) error {
	message := ""
	if runErr != nil {
		message = runErr.Error()
	}
	return r.store.Finish(ctx, runID, services.Category(runErr), message, destination)
}

type nopRecorder struct{}

func (nopRecorder) Start(context.Context, runspec.RunConfig, string) error { return nil }

func (nopRecorder) Transition(context.Context, string, State, State, string) error { return nil }

func (nopRecorder) Finish(context.Context, string, error, string) error { return nil }
