// Package preflight provides readiness checks for the remote service and
// the filesystem paths animate3d depends on.
//
// The CLI "config check" command runs RunAll and renders each Result. Checks
// that need credentials report a failure instead of erroring when the
// credentials are missing, so one run shows every problem at once.
package preflight
