// Package services defines shared error and context utilities consumed by the
// job lifecycle packages and the remote service integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job RIDs, submission kinds, and correlation
//     identifiers for logging.
//   - Structured error markers, the Wrap helper, and the typed APIError and
//     TimeoutError values that callers classify with errors.Is and errors.As.
//
// Job-level failures reported by the service are not errors in this sense;
// they travel as data through result callbacks.
package services
