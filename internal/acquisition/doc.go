// Package acquisition is the scan engine: it drives the instrument through
// a multi-dimensional experiment (time points x regions x fields of view x
// Z planes x channels) and hands every captured frame to a save sink.
//
// The Controller is a four-state machine (idle, starting, acquiring,
// stopping). Start validates and snapshots the run's Parameters, then hands
// the scan to a Worker on the actor's side-work pool so the command
// processing goroutine stays responsive for the run's whole duration. Stop
// requests flip one shared cancellation flag; the Worker polls it at every
// leaf boundary and at every autofocus sub-step, unwinds, and always
// finishes through the same teardown: streaming stopped, pre-scan
// illumination and trigger state restored, sink flushed, one terminal
// AcquisitionWorkerFinished published.
//
// The contrast autofocus sub-scan steps the stage through a window of Z
// planes, scores each frame's sharpness, early-stops once the score falls
// well below the running maximum, and returns to the best plane by counted
// steps.
package acquisition
