// Package notifications delivers job lifecycle events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Events cover job
// completion, failure, timeouts and batch summaries so the client facade can
// emit consistent messages without duplicating HTTP glue. The per-event
// toggles in [notifications] suppress completion or failure pushes.
package notifications
