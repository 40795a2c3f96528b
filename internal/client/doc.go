// Package client wires the job lifecycle components into one facade.
//
// A Client owns the token manager, transport, submitter, execution
// controller, multi-person orchestrator and rerun coordinator for one set of
// credentials. Media arguments accept either an http(s) URL the service can
// fetch or a local file path, which is uploaded first. Every method that
// starts a job takes an execution.Registration; DefaultRegistration fills it
// from the [jobs] config section.
package client
