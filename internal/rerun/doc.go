// Package rerun derives a new job from a finished one. The original job's
// stored parameters are the base; only the fields set in the overrides
// change, and the service reuses the original media.
package rerun
