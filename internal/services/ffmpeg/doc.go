// Package ffmpeg wraps the ffmpeg CLI as the pipeline's transcoding engine.
//
// Engine converts one fetched source file into an MP3 at a fixed bitrate,
// reports progress parsed from ffmpeg's -progress output, and maps every
// failure (non-zero exit, own timeout, start failure) to
// services.ErrTranscode. Command execution sits behind Executor so tests can
// run without ffmpeg installed.
package ffmpeg
