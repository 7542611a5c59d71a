package testsupport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"audiograb/internal/config"
	"audiograb/internal/media"
	"audiograb/internal/pipeline"
	"audiograb/internal/services"
	"audiograb/internal/services/ffmpeg"
	"audiograb/internal/workflow"
	"audiograb/internal/workspace"
)

// AudioMetadata returns metadata carrying two audio-only streams (50 and
// 160 kbps) whose URLs are derived from url.
func AudioMetadata(title, url string) media.Metadata {
	return media.Metadata{
		Title:           title,
		DurationSeconds: 212,
		Uploader:        "Test Uploader",
		ViewCount:       42,
		Streams: []media.Stream{
			{FormatID: "249", Codec: "opus", Ext: "webm", BitrateKbps: 50, AudioOnly: true, HasAudio: true, URL: url + "#249"},
			{FormatID: "251", Codec: "opus", Ext: "webm", BitrateKbps: 160, AudioOnly: true, HasAudio: true, URL: url + "#251"},
		},
	}
}

// VideoOnlyMetadata returns metadata with no audio-capable stream.
func VideoOnlyMetadata(title string) media.Metadata {
	return media.Metadata{
		Title:   title,
		Streams: []media.Stream{{FormatID: "137", Codec: "avc1", Ext: "mp4", BitrateKbps: 4000}},
	}
}

// Resolver is a scripted extractor. URLs without an entry resolve to
// AudioMetadata titled after the URL; entries in Failures fail with the
// given error.
type Resolver struct {
	mu       sync.Mutex
	calls    int
	Metadata map[string]media.Metadata
	Failures map[string]error
	// Gate, when non-nil, holds every Resolve until it is closed.
	Gate chan struct{}
	// Entered receives one value per Resolve call when non-nil.
	Entered chan string
}

// NewResolver constructs an empty scripted resolver.
func NewResolver() *Resolver {
	return &Resolver{Metadata: map[string]media.Metadata{}, Failures: map[string]error{}}
}

// Resolve implements workflow.Resolver.
func (r *Resolver) Resolve(ctx context.Context, url string) (media.Metadata, error) {
	r.mu.Lock()
	r.calls++
	meta, ok := r.Metadata[url]
	failure := r.Failures[url]
	gate := r.Gate
	entered := r.Entered
	r.mu.Unlock()

	if entered != nil {
		entered <- url
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return media.Metadata{}, services.Wrap(services.ErrExtraction, "resolving", "yt-dlp", "", ctx.Err())
		}
	}
	if failure != nil {
		return media.Metadata{}, failure
	}
	if !ok {
		meta = AudioMetadata("Track "+url, url)
	}
	return meta, nil
}

// Calls reports how many times Resolve ran.
func (r *Resolver) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// ExtractionFailure builds the error a real extractor returns for a
// missing or private video.
func ExtractionFailure() error {
	return services.Wrap(services.ErrExtraction, "resolving", "yt-dlp", "", errors.New("ERROR: Video unavailable"))
}

// EchoFetcher serves each stream's URL as its bytes.
type EchoFetcher struct{}

// Open implements pipeline.Fetcher.
func (EchoFetcher) Open(_ context.Context, stream media.Stream) (io.ReadCloser, int64, error) {
	return io.NopCloser(strings.NewReader(stream.URL)), int64(len(stream.URL)), nil
}

// FakeTranscoder writes "mp3@<kbps>:" followed by the input bytes.
type FakeTranscoder struct{}

// Transcode implements pipeline.Transcoder.
func (FakeTranscoder) Transcode(ctx context.Context, req ffmpeg.Request, _ func(ffmpeg.ProgressUpdate)) error {
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrTranscode, "transcoding", "ffmpeg", "", err)
	}
	data, err := os.ReadFile(req.Input)
	if err != nil {
		return services.Wrap(services.ErrTranscode, "transcoding", "read input", "", err)
	}
	payload := append([]byte(fmt.Sprintf("mp3@%d:", req.BitrateKbps)), data...)
	return os.WriteFile(req.Output, payload, 0o600)
}

// NewOrchestrator builds a real orchestrator over resolver, the echo
// fetcher and the fake transcoder, rooted in cfg's workspace root.
func NewOrchestrator(t testing.TB, cfg *config.Config, resolver workflow.Resolver) (*workflow.Orchestrator, *workspace.Manager) {
	t.Helper()
	mgr, err := workspace.NewManager(cfg.Paths.WorkspaceRoot, workspace.WithMinFreeBytes(cfg.MinFreeBytes()))
	if err != nil {
		t.Fatalf("workspace manager: %v", err)
	}
	exec := pipeline.New(EchoFetcher{}, FakeTranscoder{})
	orch := workflow.New(resolver, exec, mgr, workflow.Options{
		MaxConcurrent: cfg.Jobs.MaxConcurrent,
		Timeout:       cfg.JobTimeout(),
	})
	return orch, mgr
}

// WorkspaceCount returns how many job workspaces exist under root.
func WorkspaceCount(t testing.TB, root string) int {
	t.Helper()
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0
		}
		t.Fatalf("read workspace root: %v", err)
	}
	count := 0
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), "job-") {
			count++
		}
	}
	return count
}
