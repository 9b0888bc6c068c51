// Package logging assembles slog loggers and formatting helpers used across
// fmristage.
//
// It owns the key=value console handler, centralizes level and output
// plumbing (console plus an appended log file), and exposes context-aware
// helpers so stage code can tag log lines with run IDs, subject/session
// labels, and stage names. The package also provides a no-op logger for tests
// and wiring code that cannot fail.
//
// Output is always plain text: one line per record, suitable for batch
// scheduler log capture.
package logging
