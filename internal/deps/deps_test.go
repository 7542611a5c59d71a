package deps

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := writeScript(t, binDir, "present", `echo ""; echo "present 2024.08.06"`)
	reqs := []Requirement{
		{Name: "Present", Command: present, VersionArgs: []string{"--version"}},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Optional", Command: "also-not-present", Optional: true},
		{Name: "Blank"},
	}

	results := CheckBinaries(context.Background(), reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Path != present {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Version != "present 2024.08.06" {
		t.Fatalf("unexpected version %q", results[0].Version)
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[3].Detail != "command not configured" {
		t.Fatalf("unexpected detail for blank command: %q", results[3].Detail)
	}
	if !results[2].Optional || results[2].Available {
		t.Fatalf("expected optional missing dependency, got %#v", results[2])
	}
}

func TestCheckEncoder(t *testing.T) {
	binDir := t.TempDir()
	withLame := writeScript(t, binDir, "ffmpeg-full", `cat <<'OUT'
Encoders:
 V..... = Video
 ------
 A....D aac                  AAC (Advanced Audio Coding)
 A....D libmp3lame           libmp3lame MP3 (MPEG audio layer 3) (codec mp3)
OUT`)
	withoutLame := writeScript(t, binDir, "ffmpeg-min", `echo " A....D aac  AAC"`)

	if status := CheckEncoder(context.Background(), withLame, "libmp3lame"); !status.Available {
		t.Fatalf("expected libmp3lame found, got %#v", status)
	}
	status := CheckEncoder(context.Background(), withoutLame, "libmp3lame")
	if status.Available || status.Detail != "ffmpeg built without libmp3lame" {
		t.Fatalf("expected missing encoder, got %#v", status)
	}
	if status := CheckEncoder(context.Background(), filepath.Join(binDir, "nope"), "libmp3lame"); status.Available {
		t.Fatal("expected missing binary to fail")
	}
}
