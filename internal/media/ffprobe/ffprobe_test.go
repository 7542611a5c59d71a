package ffprobe

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const sampleOutput = `{
  "streams": [{"index": 0, "codec_name": "mp3", "codec_type": "audio", "sample_rate": "44100", "channels": 2, "bit_rate": "192000"}],
  "format": {"format_name": "mp3", "duration": "180.5", "size": "4332000", "bit_rate": "192000"}
}`

func TestInspectDecodesRunnerOutput(t *testing.T) {
	var gotArgs []string
	p := New("", WithRunner(func(_ context.Context, binary string, args ...string) ([]byte, error) {
		if binary != "ffprobe" {
			t.Fatalf("expected default binary, got %q", binary)
		}
		gotArgs = args
		return []byte(sampleOutput), nil
	}))
	result, err := p.Inspect(context.Background(), "/ws/output.mp3")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if gotArgs[len(gotArgs)-1] != "/ws/output.mp3" || gotArgs[len(gotArgs)-2] != "--" {
		t.Fatalf("expected path after --, got %v", gotArgs)
	}
	if result.AudioStreamCount() != 1 || result.VideoStreamCount() != 0 {
		t.Fatalf("unexpected stream counts: %+v", result.Streams)
	}
	if result.DurationSeconds() != 180.5 || result.BitRate() != 192000 {
		t.Fatalf("unexpected format helpers: %v %v", result.DurationSeconds(), result.BitRate())
	}
	if err := result.CheckAudioOnly(); err != nil {
		t.Fatalf("CheckAudioOnly: %v", err)
	}
}

func TestInspectErrors(t *testing.T) {
	p := New("ffprobe", WithRunner(func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("exit status 1")
	}))
	if _, err := p.Inspect(context.Background(), "x.mp3"); err == nil || !strings.Contains(err.Error(), "exit status 1") {
		t.Fatalf("expected runner error, got %v", err)
	}
	if _, err := p.Inspect(context.Background(), " "); err == nil {
		t.Fatal("expected empty path error")
	}
	garbage := New("ffprobe", WithRunner(func(context.Context, string, ...string) ([]byte, error) {
		return []byte("not json"), nil
	}))
	if _, err := garbage.Inspect(context.Background(), "x.mp3"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestCheckAudioOnly(t *testing.T) {
	cover := Result{Streams: []Stream{{CodecType: "audio", CodecName: "mp3"}, {Index: 1, CodecType: "video", CodecName: "mjpeg"}}}
	if err := cover.CheckAudioOnly(); err != nil {
		t.Fatalf("cover art should be allowed: %v", err)
	}
	video := Result{Streams: []Stream{{CodecType: "audio"}, {Index: 1, CodecType: "video", CodecName: "h264"}}}
	if err := video.CheckAudioOnly(); err == nil {
		t.Fatal("expected video stream to be rejected")
	}
	silent := Result{}
	if err := silent.CheckAudioOnly(); err == nil {
		t.Fatal("expected missing audio to be rejected")
	}
}

func TestResultHelpersHandleInvalidNumbers(t *testing.T) {
	result := Result{Format: Format{Duration: "bad", BitRate: "-5"}}
	if result.DurationSeconds() != 0 || result.BitRate() != 0 {
		t.Fatalf("expected zero values, got %v %v", result.DurationSeconds(), result.BitRate())
	}
}
