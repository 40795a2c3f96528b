// Package logging assembles structured slog loggers and formatting helpers used
// across animate3d.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so job code can tag log lines with RIDs,
// submission kinds, and correlation IDs. The package also provides a no-op
// logger for tests and a progress sampler that keeps default progress logging
// quiet when no callback is registered.
package logging
