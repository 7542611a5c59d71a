package ytdlp

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"audiograb/internal/media"
	"audiograb/internal/services"
)

const sampleInfo = `{
  "_type": "video",
  "title": "Song",
  "duration": 180,
  "uploader": "Artist",
  "view_count": 1000,
  "formats": [
    {"format_id": "sb0", "ext": "mhtml", "acodec": "none", "vcodec": "none", "protocol": "mhtml", "url": "https://cdn.example/sb"},
    {"format_id": "233", "ext": "mp4", "acodec": "unknown", "vcodec": "none", "protocol": "m3u8_native", "url": "https://cdn.example/233.m3u8"},
    {"format_id": "249", "ext": "webm", "acodec": "opus", "vcodec": "none", "abr": 50.1, "protocol": "https", "url": "https://cdn.example/249", "filesize": 1200},
    {"format_id": "140", "ext": "m4a", "acodec": "mp4a.40.2", "vcodec": "none", "abr": 129.5, "protocol": "https", "url": "https://cdn.example/140", "http_headers": {"Referer": "https://valid.example/"}},
    {"format_id": "137", "ext": "mp4", "acodec": "none", "vcodec": "avc1.640028", "tbr": 4000, "protocol": "https", "url": "https://cdn.example/137"},
    {"format_id": "18", "ext": "mp4", "acodec": "mp4a.40.2", "vcodec": "avc1.42001E", "tbr": 600, "protocol": "https", "url": "https://cdn.example/18"}
  ]
}`

type stubRunner struct {
	payload     string
	err         error
	calls       int
	urls        []string
	hadDeadline bool
	block       bool
}

func (s *stubRunner) DumpJSON(ctx context.Context, url string) ([]byte, error) {
	s.calls++
	s.urls = append(s.urls, url)
	_, s.hadDeadline = ctx.Deadline()
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.payload), nil
}

func TestResolveMapsMetadataAndStreams(t *testing.T) {
	runner := &stubRunner{payload: sampleInfo}
	client := New("yt-dlp", time.Minute, WithRunner(runner))

	meta, err := client.Resolve(context.Background(), "https://valid.example/watch?v=abc")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !runner.hadDeadline {
		t.Fatal("expected resolve timeout to bound the runner context")
	}
	if meta.Title != "Song" || meta.DurationSeconds != 180 || meta.Uploader != "Artist" || meta.ViewCount != 1000 {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	ids := make([]string, 0, len(meta.Streams))
	for _, s := range meta.Streams {
		ids = append(ids, s.FormatID)
	}
	if strings.Join(ids, ",") != "249,140,18" {
		t.Fatalf("unexpected candidate streams %v", ids)
	}
	first := meta.Streams[0]
	if !first.AudioOnly || first.Codec != "opus" || first.BitrateKbps != 50.1 || first.SizeBytes != 1200 || first.Ext != "webm" {
		t.Fatalf("unexpected first stream %+v", first)
	}
	muxed := meta.Streams[2]
	if muxed.AudioOnly || !muxed.HasAudio || muxed.BitrateKbps != 600 {
		t.Fatalf("unexpected muxed stream %+v", muxed)
	}
}

func TestResolveRejectsInvalidURLWithoutCallingRunner(t *testing.T) {
	runner := &stubRunner{payload: sampleInfo}
	client := New("yt-dlp", time.Minute, WithRunner(runner))
	_, err := client.Resolve(context.Background(), "not-a-url")
	if !errors.Is(err, services.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if runner.calls != 0 {
		t.Fatalf("expected no runner calls, got %d", runner.calls)
	}
}

func TestResolveExtractionFailures(t *testing.T) {
	cases := map[string]*stubRunner{
		"runner error":  {err: errors.New("ERROR: [youtube] abc: Private video")},
		"bad json":      {payload: "{"},
		"missing title": {payload: `{"title": "  ", "formats": []}`},
		"playlist":      {payload: `{"_type": "playlist", "title": "Mix"}`},
	}
	for name, runner := range cases {
		t.Run(name, func(t *testing.T) {
			client := New("yt-dlp", time.Minute, WithRunner(runner))
			_, err := client.Resolve(context.Background(), "https://valid.example/watch?v=abc")
			if !errors.Is(err, services.ErrExtraction) {
				t.Fatalf("expected extraction error, got %v", err)
			}
			if msg := services.PublicMessage(err); strings.Contains(msg, "Private") {
				t.Fatalf("tool output leaked into public message %q", msg)
			}
		})
	}
}

func TestResolveOwnTimeoutHasTimeoutMessage(t *testing.T) {
	client := New("yt-dlp", 20*time.Millisecond, WithRunner(&stubRunner{block: true}))
	_, err := client.Resolve(context.Background(), "https://valid.example/watch?v=abc")
	if !errors.Is(err, services.ErrExtraction) {
		t.Fatalf("expected extraction error, got %v", err)
	}
	if msg := services.PublicMessage(err); msg != "video lookup timed out" {
		t.Fatalf("unexpected public message %q", msg)
	}
}

func TestResolveCallerCancelKeepsDefaultMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := New("yt-dlp", time.Minute, WithRunner(&stubRunner{block: true}))
	_, err := client.Resolve(ctx, "https://valid.example/watch?v=abc")
	if msg := services.PublicMessage(err); msg == "video lookup timed out" {
		t.Fatalf("caller cancellation reported as lookup timeout: %v", err)
	}
}

func TestResolveWithoutAudioFormatsIsNotAnError(t *testing.T) {
	runner := &stubRunner{payload: `{"title": "Silent", "formats": [{"format_id": "137", "acodec": "none", "vcodec": "avc1", "protocol": "https", "url": "https://cdn.example/137"}]}`}
	client := New("", time.Minute, WithRunner(runner))
	meta, err := client.Resolve(context.Background(), "https://valid.example/watch?v=silent")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(meta.Streams) != 0 {
		t.Fatalf("expected no candidate streams, got %+v", meta.Streams)
	}
}

func TestOpenStreamsBodyWithFormatHeaders(t *testing.T) {
	var gotReferer, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("Referer")
		gotUA = r.Header.Get("User-Agent")
		_, _ = io.WriteString(w, "raw-audio-bytes")
	}))
	defer server.Close()

	client := New("yt-dlp", time.Minute, WithUserAgent("audiograb-test"))
	body, size, err := client.Open(context.Background(), media.Stream{
		URL:     server.URL + "/140",
		Headers: map[string]string{"Referer": "https://valid.example/"},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(data) != "raw-audio-bytes" {
		t.Fatalf("unexpected body %q", data)
	}
	if size != int64(len("raw-audio-bytes")) {
		t.Fatalf("expected content length as size, got %d", size)
	}
	if gotReferer != "https://valid.example/" || gotUA != "audiograb-test" {
		t.Fatalf("unexpected headers referer=%q ua=%q", gotReferer, gotUA)
	}
}

func TestOpenPrefersExtractorSize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "abc")
	}))
	defer server.Close()

	body, size, err := New("", 0).Open(context.Background(), media.Stream{URL: server.URL, SizeBytes: 999})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	body.Close()
	if size != 999 {
		t.Fatalf("expected extractor size, got %d", size)
	}
}

func TestOpenFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/throttled":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer server.Close()

	client := New("", 0)
	_, _, err := client.Open(context.Background(), media.Stream{URL: server.URL + "/throttled"})
	if !errors.Is(err, services.ErrDownload) || services.PublicMessage(err) != "download throttled by platform" {
		t.Fatalf("expected throttling download error, got %v", err)
	}
	_, _, err = client.Open(context.Background(), media.Stream{URL: server.URL + "/forbidden"})
	if !errors.Is(err, services.ErrDownload) {
		t.Fatalf("expected download error, got %v", err)
	}
	_, _, err = client.Open(context.Background(), media.Stream{URL: "file:///etc/passwd"})
	if !errors.Is(err, services.ErrDownload) {
		t.Fatalf("expected non-http url to be refused, got %v", err)
	}
}

func TestLastLine(t *testing.T) {
	if got := lastLine("WARNING: x\nERROR: Video unavailable\n\n"); got != "ERROR: Video unavailable" {
		t.Fatalf("unexpected last line %q", got)
	}
	if got := lastLine(""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
