// Package procrun launches external programs with structured argument lists,
// streams their merged stdout/stderr line by line to a sink, and reports
// non-zero exits as ExitError values.
//
// The child environment is the ambient environment snapshot with per-stage
// overrides applied; the parent process environment is never mutated.
// Output is read on the calling goroutine, so Run blocks until the child
// closes its output and exits.
package procrun
