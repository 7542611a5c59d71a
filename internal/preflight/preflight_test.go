package preflight

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"audiograb/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func stub(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkspaceRoot = filepath.Join(base, "work")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	bin := filepath.Join(base, "bin")
	if err := os.MkdirAll(bin, 0o755); err != nil {
		t.Fatal(err)
	}
	cfg.Extractor.Binary = stub(t, bin, "yt-dlp", `echo 2024.08.06`)
	cfg.Transcoder.FFmpegBinary = stub(t, bin, "ffmpeg", `case "$2" in
-encoders) echo " A....D libmp3lame  libmp3lame MP3 (MPEG audio layer 3)";;
*) echo "ffmpeg version 7.0";;
esac`)
	cfg.Transcoder.FFprobeBinary = stub(t, bin, "ffprobe", `echo "ffprobe version 7.0"`)
	return &cfg
}

func TestRunAllPasses(t *testing.T) {
	cfg := testConfig(t)
	results := RunAll(context.Background(), cfg)
	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d: %+v", len(results), results)
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("expected all checks to pass, got %+v", failed)
	}
	if results[2].Name != "yt-dlp" || results[2].Detail != cfg.Extractor.Binary+" (2024.08.06)" {
		t.Fatalf("unexpected yt-dlp result %+v", results[2])
	}
	if results[5].Name != "FFmpeg libmp3lame" {
		t.Fatalf("expected encoder check last, got %+v", results[5])
	}
}

func TestRunAllReportsMissingRequired(t *testing.T) {
	cfg := testConfig(t)
	cfg.Extractor.Binary = filepath.Join(t.TempDir(), "missing-yt-dlp")
	cfg.Transcoder.FFprobeBinary = filepath.Join(t.TempDir(), "missing-ffprobe")
	cfg.Transcoder.VerifyOutput = false

	failed := Failed(RunAll(context.Background(), cfg))
	if len(failed) != 1 || failed[0].Name != "yt-dlp" {
		t.Fatalf("expected only yt-dlp to fail, got %+v", failed)
	}
}

func TestRunAllSkipsEncoderWhenFFmpegMissing(t *testing.T) {
	cfg := testConfig(t)
	cfg.Transcoder.FFmpegBinary = filepath.Join(t.TempDir(), "missing-ffmpeg")
	results := RunAll(context.Background(), cfg)
	if len(results) != 5 {
		t.Fatalf("expected encoder check skipped, got %+v", results)
	}
	if failed := Failed(results); len(failed) != 1 || failed[0].Name != "FFmpeg" {
		t.Fatalf("expected ffmpeg failure, got %+v", failed)
	}
}

func TestRunAllNilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatalf("expected nil, got %+v", results)
	}
}
