// Package polling drives the status state machine of one remote job.
//
// An Engine performs one step per Poll call: it queries the status source,
// clamps the snapshot so progress never moves backwards, dispatches the
// progress callback when the snapshot changed, and delivers exactly one
// terminal outcome. Run loops Poll with a Suspender between steps; other
// schedulers drive Poll directly so every execution mode shares the same
// algorithm.
package polling
