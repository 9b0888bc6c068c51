// Package config loads, normalizes, and validates fmristage configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FMRISTAGE_ASSET_DIR. The Config type centralizes the container runtime,
// asset, stage, and workspace settings the CLI needs so a subject run can be
// described in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
