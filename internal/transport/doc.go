// Package transport issues authenticated JSON requests against the motion
// extraction service.
//
// It attaches bearer tokens from a TokenSource, replays a request once after a
// 401 with a refreshed token, retries idempotent reads with exponential
// backoff, and turns non-2xx responses into services.APIError values that keep
// the service's own code and message. Pre-signed upload and download URLs are
// handled without a bearer token.
package transport
