package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Failure markers. Every error leaving a pipeline component carries exactly
// one of these so callers can classify it with errors.Is.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrExtraction       = errors.New("extraction error")
	ErrNoSuitableStream = errors.New("no suitable stream")
	ErrDownload         = errors.New("download error")
	ErrTranscode        = errors.New("transcode error")
	ErrWorkspace        = errors.New("workspace error")
	ErrTimeout          = errors.New("timeout")
	ErrBusy             = errors.New("busy")
	ErrCanceled         = errors.New("canceled")
)

// Kind names a failure class in logs and job results.
type Kind string

const (
	KindInvalidInput     Kind = "InvalidInput"
	KindExtraction       Kind = "ExtractionError"
	KindNoSuitableStream Kind = "NoSuitableStream"
	KindDownload         Kind = "DownloadError"
	KindTranscode        Kind = "TranscodeError"
	KindWorkspace        Kind = "WorkspaceError"
	KindTimeout          Kind = "Timeout"
	KindBusy             Kind = "Busy"
	KindCanceled         Kind = "Canceled"
	KindInternal         Kind = "Internal"
)

// StatusClientClosedRequest is reported when the caller went away mid-job.
const StatusClientClosedRequest = 499

type classification struct {
	marker  error
	kind    Kind
	status  int
	message string
}

var classifications = []classification{
	{ErrInvalidInput, KindInvalidInput, http.StatusBadRequest, "invalid request"},
	{ErrExtraction, KindExtraction, http.StatusNotFound, "video not found or unavailable"},
	{ErrNoSuitableStream, KindNoSuitableStream, http.StatusUnprocessableEntity, "no audio track available"},
	{ErrDownload, KindDownload, http.StatusInternalServerError, "failed to download audio"},
	{ErrTranscode, KindTranscode, http.StatusInternalServerError, "failed to convert audio"},
	{ErrWorkspace, KindWorkspace, http.StatusInternalServerError, "server storage unavailable"},
	{ErrTimeout, KindTimeout, http.StatusGatewayTimeout, "request timed out"},
	{ErrBusy, KindBusy, http.StatusServiceUnavailable, "server busy, try again later"},
	{ErrCanceled, KindCanceled, StatusClientClosedRequest, "request canceled"},
}

var internalClass = classification{kind: KindInternal, status: http.StatusInternalServerError, message: "internal error"}

// Error is a classified pipeline failure. Detail (stage, operation, cause)
// stays in logs; only Public is meant for callers.
type Error struct {
	Marker    error
	Stage     string
	Operation string
	Public    string
	Err       error
}

// Wrap tags err with a failure marker and stage context. public is the message
// shown to callers; when empty the marker's default message is used. It must
// never contain file paths or tool output.
func Wrap(marker error, stage, operation, public string, err error) error {
	if marker == nil {
		marker = ErrDownload
	}
	return &Error{
		Marker:    marker,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Public:    strings.TrimSpace(public),
		Err:       err,
	}
}

func (e *Error) Error() string {
	parts := []string{e.Marker.Error()}
	if e.Stage != "" {
		parts = append(parts, e.Stage)
	}
	if e.Operation != "" {
		parts = append(parts, e.Operation)
	}
	if e.Public != "" {
		parts = append(parts, e.Public)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

// Unwrap exposes both the marker and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Marker}
	}
	return []error{e.Marker, e.Err}
}

func classify(err error) classification {
	if err == nil {
		return internalClass
	}
	var classified *Error
	if errors.As(err, &classified) {
		if c, ok := lookup(classified.Marker); ok {
			return c
		}
	}
	for _, c := range classifications {
		if errors.Is(err, c.marker) {
			return c
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		c, _ := lookup(ErrTimeout)
		return c
	case errors.Is(err, context.Canceled):
		c, _ := lookup(ErrCanceled)
		return c
	}
	return internalClass
}

func lookup(marker error) (classification, bool) {
	for _, c := range classifications {
		if c.marker == marker {
			return c, true
		}
	}
	return classification{}, false
}

// KindOf reports the failure kind carried by err.
func KindOf(err error) Kind {
	return classify(err).kind
}

// HTTPStatus maps err to the response status code for its kind.
func HTTPStatus(err error) int {
	return classify(err).status
}

// PublicMessage returns a caller-safe description of err.
func PublicMessage(err error) string {
	var classified *Error
	if errors.As(err, &classified) && classified.Public != "" {
		return classified.Public
	}
	return classify(err).message
}
