package workflow

import (
	"audiograb/internal/media"
	"audiograb/internal/services"
)

// State is a job lifecycle state.
type State string

const (
	StateReceived    State = "received"
	StateResolving   State = "resolving"
	StateSelecting   State = "selecting"
	StateFetching    State = "fetching"
	StateTranscoding State = "transcoding"
	StateDelivering  State = "delivering"
	StateSucceeded   State = "succeeded"
	StateFailed      State = "failed"
)

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Result is the outcome of one job.
type Result struct {
	JobID string
	// States lists every state the job entered, in order.
	States []State
	// Selection describes the stream that was fetched, when one was chosen.
	Selection *media.Stream
	Err       error
}

// State returns the final state.
func (r Result) State() State {
	if len(r.States) == 0 {
		return StateReceived
	}
	return r.States[len(r.States)-1]
}

// Succeeded reports whether the artifact was delivered.
func (r Result) Succeeded() bool {
	return r.State() == StateSucceeded
}

// Kind returns the failure kind, or "" on success.
func (r Result) Kind() services.Kind {
	if r.Err == nil {
		return ""
	}
	return services.KindOf(r.Err)
}

// Status maps the outcome to an HTTP status.
func (r Result) Status() int {
	if r.Err == nil {
		return 200
	}
	return services.HTTPStatus(r.Err)
}

// Message returns the caller-safe failure description.
func (r Result) Message() string {
	if r.Err == nil {
		return ""
	}
	return services.PublicMessage(r.Err)
}
