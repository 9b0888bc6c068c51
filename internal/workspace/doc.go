// Package workspace owns the per-run scratch directory: staging the subject's
// input and auxiliary assets, publishing preprocessing output into the
// dataset's derivatives tree, and tearing the directory down afterwards.
//
// Every workspace carries a marker file naming the run that created it.
// Prepare only ever deletes a directory that carries its own run's marker, so
// a mistyped work root can never wipe unrelated data. A per subject/session
// lock file serializes concurrent runs for the same subject.
package workspace
