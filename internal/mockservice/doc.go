// Package mockservice is a local stand-in for the remote animation service.
//
// It implements every endpoint the client uses, backed by SQLite (in memory
// or on disk). Jobs progress deterministically: each status query moves a
// job one step through PENDING, QUEUED and the processing steps until it
// succeeds, or fails when its media name contains "fail". Detection jobs
// report two tracked persons so the multi-person flow can run end to end.
//
// Artifacts and uploads live in a blob table served under /blob/, which
// stands in for the signed storage URLs of the real service.
package mockservice
