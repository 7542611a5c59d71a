// Package workspace gives every job a private directory under a shared root
// and guarantees that directory is removed when the job ends.
//
// Directory names come from the job ID, never from video titles, and are
// created with an exclusive mkdir so two jobs can never share one. The root
// itself is guarded by an advisory file lock so only one service process
// sweeps it for workspaces orphaned by a crash.
package workspace
