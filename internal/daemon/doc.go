// Package daemon runs the audiograb HTTP service.
//
// It wires the job orchestrator behind a small JSON API (health, audio
// download, metadata lookup), wraps the routes in CORS, rate limiting and
// security-header middleware, and owns the process lifecycle: exclusive
// ownership of the workspace root through a flock, a startup sweep of
// workspaces orphaned by a previous crash, a periodic sweeper, and graceful
// shutdown of the listener.
//
// Request handling lives here; the pipeline itself belongs to the workflow
// package and below.
package daemon
