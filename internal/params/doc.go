// Package params models the processing options of a motion extraction job.
//
// ProcessParams distinguishes unset fields from zero values so that reruns can
// overlay only what a caller changed (Merge). Encode and Decode translate to
// and from the service's key=value list, and Validate enforces the ranges the
// service accepts before anything is sent.
package params
