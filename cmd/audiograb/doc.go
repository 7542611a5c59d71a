// Command audiograb runs the audio extraction service and offers one-shot
// helpers (info, fetch, deps, sweep) that share the daemon's configuration.
package main
