// Package config loads, normalizes, and validates speculum configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// GH_TOKEN. The Config type centralizes every knob the planner, executor, and
// CLI need, allowing state/output/definition directories and tracker
// credentials to be discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
