// Package config loads, normalizes, and validates audiograb configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// PORT and AUDIOGRAB_MAX_JOBS. The Config value is built once at startup and
// handed to constructors explicitly; no package keeps its own globals.
package config
