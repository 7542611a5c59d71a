// Package media holds the value types that flow through a job: the accepted
// request, resolved metadata, candidate streams, the quality policy, and the
// produced artifact.
package media
