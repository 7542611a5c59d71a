// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// The transcode executor uses it to confirm that a produced file really is a
// single-track audio file before it is handed to a caller.
package ffprobe
