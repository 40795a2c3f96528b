// Package multiperson runs the two-phase multi-person workflow: a detection
// job that finds the people in a video, then a processing job that binds a
// character model to every detected slot.
package multiperson
