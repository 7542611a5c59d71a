package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"audiograb/internal/logging"
	"audiograb/internal/media"
	"audiograb/internal/media/ffprobe"
	"audiograb/internal/services"
	"audiograb/internal/services/ffmpeg"
	"audiograb/internal/textutil"
)

const (
	outputName     = "output.mp3"
	sourcePrefix   = "source."
	displayNameMax = 100
)

// Fetcher opens the raw bytes of a stream.
type Fetcher interface {
	Open(ctx context.Context, stream media.Stream) (io.ReadCloser, int64, error)
}

// Transcoder converts a local file to MP3.
type Transcoder interface {
	Transcode(ctx context.Context, req ffmpeg.Request, progress func(ffmpeg.ProgressUpdate)) error
}

// Prober inspects a finished artifact.
type Prober interface {
	Inspect(ctx context.Context, path string) (ffprobe.Result, error)
}

// Workspace is the job directory the executor writes into.
type Workspace interface {
	ID() string
	Path(name string) string
}

// Option configures an Executor.
type Option func(*Executor)

// WithProber enables post-conversion verification of the artifact.
func WithProber(p Prober) Option {
	return func(e *Executor) {
		e.prober = p
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logging.NewComponentLogger(logger, "pipeline")
	}
}

// Executor fetches and converts one selected stream per call. It holds no
// per-job state and is safe for concurrent use.
type Executor struct {
	fetcher    Fetcher
	transcoder Transcoder
	prober     Prober
	logger     *slog.Logger
}

// New constructs an executor.
func New(fetcher Fetcher, transcoder Transcoder, opts ...Option) *Executor {
	e := &Executor{fetcher: fetcher, transcoder: transcoder, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run downloads stream into ws and transcodes it at bitrateKbps. The
// returned artifact lives inside ws; the caller owns its lifetime.
func (e *Executor) Run(ctx context.Context, ws Workspace, meta media.Metadata, stream media.Stream, bitrateKbps int) (media.Artifact, error) {
	source, err := e.Fetch(ctx, ws, stream)
	if err != nil {
		return media.Artifact{}, err
	}
	return e.Transcode(ctx, ws, meta, source, bitrateKbps)
}

// Fetch writes stream's bytes to the workspace and returns the local path.
func (e *Executor) Fetch(ctx context.Context, ws Workspace, stream media.Stream) (string, error) {
	if ws == nil {
		return "", services.Wrap(services.ErrWorkspace, "fetching", "executor", "", errors.New("workspace required"))
	}
	if e.fetcher == nil {
		return "", errors.New("executor has no fetcher")
	}
	sourcePath := ws.Path(sourcePrefix + textutil.SanitizeToken(stream.Ext, "bin"))
	if err := e.fetch(ctx, stream, sourcePath); err != nil {
		return "", err
	}
	return sourcePath, nil
}

// Transcode converts source to the workspace's output.mp3 at bitrateKbps.
func (e *Executor) Transcode(ctx context.Context, ws Workspace, meta media.Metadata, source string, bitrateKbps int) (media.Artifact, error) {
	if ws == nil {
		return media.Artifact{}, services.Wrap(services.ErrWorkspace, "transcoding", "executor", "", errors.New("workspace required"))
	}
	if e.transcoder == nil {
		return media.Artifact{}, errors.New("executor has no transcoder")
	}
	outputPath := ws.Path(outputName)
	size, err := e.transcode(ctx, meta, source, outputPath, bitrateKbps)
	if err != nil {
		return media.Artifact{}, err
	}
	return media.Artifact{
		Path:        outputPath,
		DisplayName: textutil.DisplayName(meta.Title, displayNameMax),
		MimeType:    media.MimeMP3,
		Size:        size,
	}, nil
}

func (e *Executor) fetch(ctx context.Context, stream media.Stream, dest string) error {
	logger := logging.WithContext(ctx, e.logger)
	started := time.Now()

	body, expected, err := e.fetcher.Open(ctx, stream)
	if err != nil {
		return err
	}
	defer body.Close()

	file, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return services.Wrap(services.ErrWorkspace, "fetching", "create source file", "", err)
	}

	sampler := logging.NewProgressSampler(10)
	counter := &progressWriter{
		total: expected,
		report: func(done, total int64) {
			percent := logging.Percent(done, total)
			if sampler.ShouldLog(percent) {
				logger.Debug("download progress",
					logging.Float64("percent", percent),
					logging.Int64("bytes", done),
				)
			}
		},
	}

	written, copyErr := io.Copy(io.MultiWriter(file, counter), body)
	closeErr := file.Close()
	if copyErr != nil {
		return services.Wrap(services.ErrDownload, "fetching", "copy stream", "", copyErr)
	}
	if closeErr != nil {
		return services.Wrap(services.ErrDownload, "fetching", "close source file", "", closeErr)
	}
	if written == 0 {
		return services.Wrap(services.ErrDownload, "fetching", "copy stream", "", errors.New("stream was empty"))
	}
	if expected > 0 && written != expected {
		return services.Wrap(services.ErrDownload, "fetching", "copy stream", "",
			fmt.Errorf("stream size mismatch: got %d of %d bytes", written, expected))
	}

	logger.Info("download complete",
		logging.String(logging.FieldEventType, "download_complete"),
		logging.String("format_id", stream.FormatID),
		logging.Int64("bytes", written),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}

func (e *Executor) transcode(ctx context.Context, meta media.Metadata, input, output string, bitrateKbps int) (int64, error) {
	logger := logging.WithContext(ctx, e.logger)
	started := time.Now()
	sampler := logging.NewProgressSampler(25)

	req := ffmpeg.Request{
		Input:           input,
		Output:          output,
		BitrateKbps:     bitrateKbps,
		DurationSeconds: meta.DurationSeconds,
		Title:           strings.TrimSpace(meta.Title),
		Artist:          strings.TrimSpace(meta.Uploader),
	}
	err := e.transcoder.Transcode(ctx, req, func(update ffmpeg.ProgressUpdate) {
		percent := update.Percent
		if update.Done {
			percent = 100
		}
		if sampler.ShouldLog(percent) {
			logger.Debug("transcode progress",
				logging.Float64("percent", percent),
				logging.Duration("encoded", update.Encoded),
			)
		}
	})
	if err != nil {
		return 0, err
	}

	info, err := os.Stat(output)
	if err != nil {
		return 0, services.Wrap(services.ErrTranscode, "transcoding", "stat output", "", err)
	}
	if info.Size() == 0 {
		return 0, services.Wrap(services.ErrTranscode, "transcoding", "stat output", "", errors.New("output is empty"))
	}

	if e.prober != nil {
		result, err := e.prober.Inspect(ctx, output)
		if err != nil {
			return 0, services.Wrap(services.ErrTranscode, "transcoding", "verify output", "", err)
		}
		if err := result.CheckAudioOnly(); err != nil {
			return 0, services.Wrap(services.ErrTranscode, "transcoding", "verify output", "", err)
		}
	}

	logger.Info("transcode complete",
		logging.String(logging.FieldEventType, "transcode_complete"),
		logging.Int("bitrate_kbps", bitrateKbps),
		logging.Int64("bytes", info.Size()),
		logging.Duration("elapsed", time.Since(started)),
	)
	return info.Size(), nil
}

type progressWriter struct {
	done   int64
	total  int64
	report func(done, total int64)
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.done += int64(len(p))
	if w.report != nil {
		w.report(w.done, w.total)
	}
	return len(p), nil
}
