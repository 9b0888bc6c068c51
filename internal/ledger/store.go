package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run id has no ledger row.
var ErrNotFound = errors.New("run not found")

// Run is one row of run history.
type Run struct {
	RunID           string
	Subject         string
	Session         string
	DatasetRoot     string
	WorkspaceDir    string
	Procs           int
	State           string
	FailureCategory string
	ErrorMessage    string
	Destination     string
	StartedAt       time.Time
	UpdatedAt       time.Time
	FinishedAt      time.Time
}

// Finished reports whether the run reached a terminal record.
func (r Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// Transition is one recorded state change.
type Transition struct {
	RunID  string
	From   string
	To     string
	Detail string
	At     time.Time
}

// Store manages run history persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger database.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("ledger path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", dataSourceName(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	store := &Store{db: db, path: path}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// dataSourceName carries the connection pragmas in the DSN so every pooled
// connection gets them, not only the first one used.
func dataSourceName(path string) string {
	params := url.Values{}
	for _, pragma := range ledgerPragmas {
		params.Add("_pragma", pragma)
	}
	return "file:" + path + "?" + params.Encode()
}

var ledgerPragmas = []string{
	"busy_timeout(5000)",
	"foreign_keys(1)",
	"journal_mode(WAL)",
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// StartRun inserts the run row. State is taken from run.State.
func (s *Store) StartRun(ctx context.Context, run Run) error {
	now := time.Now().UTC()
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (
            run_id, subject, session, dataset_root, workspace_dir, procs,
            state, started_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID,
		run.Subject,
		nullableString(run.Session),
		run.DatasetRoot,
		run.WorkspaceDir,
		run.Procs,
		run.State,
		formatTime(run.StartedAt),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Transition records a state change and updates the run's current state.
func (s *Store) Transition(ctx context.Context, runID, from, to, detail string) error {
	now := formatTime(time.Now().UTC())
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET state = ?, updated_at = ? WHERE run_id = ?`,
		to, now, runID,
	)
	if err != nil {
		return fmt.Errorf("update run state: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("transition %s: %w", runID, ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transitions (run_id, from_state, to_state, detail, at) VALUES (?, ?, ?, ?, ?)`,
		runID, from, to, nullableString(detail), now,
	); err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return tx.Commit()
}

// Finish stamps the terminal outcome of a run.
func (s *Store) Finish(ctx context.Context, runID, category, message, destination string) error {
	now := formatTime(time.Now().UTC())
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET failure_category = ?, error_message = ?, destination = ?,
            updated_at = ?, finished_at = ? WHERE run_id = ?`,
		nullableString(category),
		nullableString(message),
		nullableString(destination),
		now, now, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("finish %s: %w", runID, ErrNotFound)
	}
	return nil
}

// ListOptions filters List.
type ListOptions struct {
	Subject string
	Session string
	// Limit caps the number of rows; zero means no limit.
	Limit int
}

const runColumns = `run_id, subject, session, dataset_root, workspace_dir, procs, state,
    failure_category, error_message, destination, started_at, updated_at, finished_at`

// List returns runs newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var (
		clauses []string
		args    []any
	)
	if opts.Subject != "" {
		clauses = append(clauses, "subject = ?")
		args = append(args, opts.Subject)
	}
	if opts.Session != "" {
		clauses = append(clauses, "session = ?")
		args = append(args, opts.Session)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY started_at DESC, rowid DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get returns one run by id.
func (s *Store) Get(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get %s: %w", runID, ErrNotFound)
	}
	return run, err
}

// Transitions returns the recorded state changes of a run in order.
func (s *Store) Transitions(ctx context.Context, runID string) ([]Transition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, from_state, to_state, detail, at FROM transitions WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var (
			t      Transition
			detail sql.NullString
			at     string
		)
		if err := rows.Scan(&t.RunID, &t.From, &t.To, &detail, &at); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.Detail = detail.String
		t.At = parseTime(at)
		out = append(out, t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run                              Run
		session, category, message, dest sql.NullString
		startedAt, updatedAt             string
		finishedAt                       sql.NullString
	)
	if err := row.Scan(
		&run.RunID, &run.Subject, &session, &run.DatasetRoot, &run.WorkspaceDir, &run.Procs, &run.State,
		&category, &message, &dest, &startedAt, &updatedAt, &finishedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Session = session.String
	run.FailureCategory = category.String
	run.ErrorMessage = message.String
	run.Destination = dest.String
	run.StartedAt = parseTime(startedAt)
	run.UpdatedAt = parseTime(updatedAt)
	if finishedAt.Valid {
		run.FinishedAt = parseTime(finishedAt.String)
	}
	return run, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
