// Package config loads, normalizes, and validates animate3d configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// ANIMATE3D_CLIENT_ID. The Config type centralizes every knob the client and
// CLI need: service credentials, polling defaults, and download locations.
//
// Always obtain settings through this package so downstream code receives
// sanitized URLs, canonical log formats, and clear validation errors.
package config
