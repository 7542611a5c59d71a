// Package preflight provides readiness checks for the filesystem paths and
// external programs audiograb depends on.
//
// The daemon runs RunAll at startup and refuses to serve when a required
// check fails. The CLI deps command renders the same results as a table.
package preflight
