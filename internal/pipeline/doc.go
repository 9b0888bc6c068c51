// Package pipeline sequences one run: stage the workspace, denoise each
// resting-state scan, run preprocessing, publish the derivatives, and tear
// the workspace down.
//
// The Sequencer owns the run state machine
//
//	idle -> staged -> denoising -> preprocessing -> published -> terminated
//
// with any state able to move to failed. Every transition is logged and
// handed to the Recorder. Stages run strictly one after another; any failure
// stops the run before the next stage and before publishing.
package pipeline
