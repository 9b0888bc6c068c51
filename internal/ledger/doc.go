// Package ledger records run history in SQLite so a multi-subject campaign
// can see which subjects finished, failed, or are still in flight.
//
// Each run gets one row in runs plus one row per state transition. The
// database uses WAL mode so concurrent runs on a cluster filesystem that
// supports locking can share a ledger.
package ledger
