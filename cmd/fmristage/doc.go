// Command fmristage stages one BIDS subject (optionally one session) into an
// isolated workspace, runs resting-state denoising and fMRIPrep inside the
// configured container runtime, publishes the results into the dataset's
// derivatives tree, and removes the workspace.
//
// Subcommands:
//
//	run        process one subject/session
//	plan       print the commands a run would execute
//	check      report preflight readiness
//	workspace  list or clean leftover workspaces
//	history    show past runs from the ledger
//	config     create or validate the configuration file
//
// Exit status is 0 on success and non-zero per failure class: 2 configuration,
// 3 staging, 4 external process, 5 publish, 6 subject/session busy.
package main
