package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"audiograb/internal/services"
)

// Request describes one conversion.
type Request struct {
	Input           string
	Output          string
	BitrateKbps     int
	DurationSeconds float64
	Title           string
	Artist          string
}

// ProgressUpdate reports how much of the input has been encoded.
type ProgressUpdate struct {
	Encoded time.Duration
	// Percent is -1 when the input duration is unknown.
	Percent float64
	Done    bool
}

// Option configures the engine.
type Option func(*Engine)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(e *Engine) {
		if exec != nil {
			e.exec = exec
		}
	}
}

// WithSampleRate overrides the output sample rate.
func WithSampleRate(hz int) Option {
	return func(e *Engine) {
		if hz > 0 {
			e.sampleRate = hz
		}
	}
}

// Engine runs ffmpeg to produce MP3 files.
type Engine struct {
	binary     string
	timeout    time.Duration
	sampleRate int
	exec       Executor
}

// New constructs an engine. A zero timeout leaves the caller's deadline as
// the only bound.
func New(binary string, timeout time.Duration, opts ...Option) *Engine {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	e := &Engine{binary: binary, timeout: timeout, sampleRate: 44100, exec: commandExecutor{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Transcode converts req.Input to an MP3 at req.Output.
func (e *Engine) Transcode(ctx context.Context, req Request, progress func(ProgressUpdate)) error {
	if strings.TrimSpace(req.Input) == "" || strings.TrimSpace(req.Output) == "" {
		return services.Wrap(services.ErrTranscode, "transcoding", "validate", "", errors.New("input and output paths required"))
	}
	if req.BitrateKbps <= 0 {
		return services.Wrap(services.ErrTranscode, "transcoding", "validate", "", fmt.Errorf("invalid bitrate %d", req.BitrateKbps))
	}

	runCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	err := e.exec.Run(runCtx, e.binary, e.BuildArgs(req), func(line string) {
		if progress == nil {
			return
		}
		if update, ok := parseProgress(line, req.DurationSeconds); ok {
			progress(update)
		}
	})
	if err != nil {
		if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return services.Wrap(services.ErrTranscode, "transcoding", "ffmpeg", "audio conversion took too long", err)
		}
		return services.Wrap(services.ErrTranscode, "transcoding", "ffmpeg", "", err)
	}
	return nil
}

// BuildArgs returns the ffmpeg argument list for req.
func (e *Engine) BuildArgs(req Request) []string {
	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-loglevel", "error",
		"-i", req.Input,
		"-vn", "-map", "0:a:0",
		"-codec:a", "libmp3lame",
		"-b:a", strconv.Itoa(req.BitrateKbps) + "k",
		"-ar", strconv.Itoa(e.sampleRate),
		"-map_metadata", "-1",
	}
	if title := strings.TrimSpace(req.Title); title != "" {
		args = append(args, "-metadata", "title="+title)
	}
	if artist := strings.TrimSpace(req.Artist); artist != "" {
		args = append(args, "-metadata", "artist="+artist)
	}
	args = append(args, "-progress", "pipe:1", "-nostats", "-f", "mp3", req.Output)
	return args
}

// parseProgress reads one line of ffmpeg's key=value progress stream.
func parseProgress(line string, durationSeconds float64) (ProgressUpdate, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return ProgressUpdate{}, false
	}
	switch key {
	case "out_time_us", "out_time_ms":
		// ffmpeg reports microseconds under both keys.
		us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || us < 0 {
			return ProgressUpdate{}, false
		}
		encoded := time.Duration(us) * time.Microsecond
		update := ProgressUpdate{Encoded: encoded, Percent: -1}
		if durationSeconds > 0 {
			update.Percent = encoded.Seconds() / durationSeconds * 100
			if update.Percent > 100 {
				update.Percent = 100
			}
		}
		return update, true
	case "progress":
		if strings.TrimSpace(value) == "end" {
			return ProgressUpdate{Percent: 100, Done: true}, true
		}
	}
	return ProgressUpdate{}, false
}
