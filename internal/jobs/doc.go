// Package jobs models remote processing jobs and submits them.
//
// Status values follow the local lifecycle PENDING, QUEUED, PROCESSING and one
// of the terminal states SUCCESS, FAILURE or CANCELLED. Service reads the
// remote status, result, list and download endpoints and normalizes their
// loosely typed payloads into Snapshot, StatusReport and Result values.
// Submitter validates a Request for one of the four submission kinds and
// returns the new RID.
package jobs
