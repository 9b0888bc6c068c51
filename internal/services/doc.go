// Package services defines shared utilities consumed by the workspace
// manager, process runner, and stage sequencer.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, subject/session labels, and stage
//     names for logging.
//   - Structured error markers plus the Wrap helper that keep failures
//     attributable to a stage and operation, and map them to CLI exit codes
//     and ledger failure categories.
//
// Use these helpers when wiring new stage logic so error handling and log
// context stay uniform across a run.
package services
