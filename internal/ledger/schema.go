package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is stored in the SQLite user_version header field. Bump it
// whenever schema.sql changes shape.
const schemaVersion = 1

// ErrSchemaMismatch is returned by Open for a ledger written by a different
// version of fmristage.
var ErrSchemaMismatch = errors.New("ledger schema version mismatch")

// migrate stamps a fresh ledger with the run tables and refuses one stamped
// with another version. Creation and stamping share a transaction, so a
// ledger never holds tables without a version.
func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var version int
	if err := tx.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read ledger version: %w", err)
	}

	switch version {
	case schemaVersion:
		return nil
	case 0:
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create run tables: %w", err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			return fmt.Errorf("stamp ledger version: %w", err)
		}
		return tx.Commit()
	default:
		return fmt.Errorf("%w: %s has version %d with %s, expected %d (move it aside to start a new ledger)",
			ErrSchemaMismatch, s.path, version, describeRuns(ctx, tx), schemaVersion)
	}
}

// describeRuns reports how much history a mismatched ledger holds so the
// operator knows what moving it aside would hide.
func describeRuns(ctx context.Context, tx *sql.Tx) string {
	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM runs").Scan(&count); err != nil {
		return "an unreadable runs table"
	}
	if count == 1 {
		return "1 recorded run"
	}
	return fmt.Sprintf("%d recorded runs", count)
}
