// Package main hosts the animate3d CLI entrypoint and command graph.
//
// The Cobra command tree turns terminal invocations into calls on the
// internal client: submitting single and multi-person jobs, waiting on and
// rerunning them, downloading artifacts, and managing character models. It
// also scaffolds configuration and runs the local mock service used for
// development.
//
// Keep this package lean: new behaviour belongs in the internal packages
// first, surfaced here through dedicated commands or flags.
package main
