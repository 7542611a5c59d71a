// Package logging assembles structured slog loggers and formatting helpers used
// across audiograb.
//
// It owns the console and JSON handlers, level and output plumbing, and the
// context helpers that tag log lines with job IDs, stages, and request IDs.
// A no-op logger is provided for tests and wiring code that cannot fail.
package logging
