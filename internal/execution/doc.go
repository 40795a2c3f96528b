// Package execution runs polling engines in blocking or background mode.
//
// Controller.Execute either drives an engine on the calling goroutine or
// hands it to a Scheduler and returns a Handle at once. Two schedulers share
// the same polling.Engine: GoroutineScheduler gives every job its own
// goroutine, Loop interleaves all jobs on a single goroutine ordered by next
// poll time. Errors raised in the background reach Registration.OnError and
// the Handle; Shutdown drains running jobs before cancelling the rest.
package execution
