// Package history persists acquisition runs and their timelines.
//
// A Recorder subscribes to the event bus and turns the acquisition
// lifecycle into rows: one acquisition_runs row per run, opened when the
// run starts and closed with its outcome when the worker finishes, plus a
// run_events timeline of progress and state-machine entries. Captured
// frames are counted in memory and written with the outcome rather than
// stored per frame.
//
// The Repository interface hides the store; SQLiteRepository is the only
// implementation and shares the instrument database with the channel
// registry.
package history
