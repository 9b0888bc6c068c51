// Package preflight provides readiness checks for the filesystem paths,
// assets, and external programs a run depends on.
//
// These checks run in two contexts:
//   - The run command calls RunAll before staging anything. If any blocking
//     check fails, the run stops before copying data or launching containers.
//   - The "fmristage check" command renders every result as a status line.
//
// Advisory results (CPU and memory sizing) are reported but never block.
package preflight
