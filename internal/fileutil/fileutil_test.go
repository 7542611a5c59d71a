package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCopyNew(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "output.mp3")
	dst := filepath.Join(dir, "Song.mp3")

	content := []byte("ID3 audio bytes")
	if err := os.WriteFile(src, content, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := CopyNew(src, dst, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("content mismatch: got %q, want %q", got, content)
	}
}

func TestCopyNewRefusesExisting(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	if err := os.WriteFile(src, []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CopyNew(src, dst, 0o644); err == nil {
		t.Fatal("expected error for existing destination")
	}
	got, _ := os.ReadFile(dst)
	if string(got) != "old" {
		t.Fatalf("existing destination was modified: %q", got)
	}
}

func TestCopyNewMissingSource(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "dst")
	if err := CopyNew(filepath.Join(dir, "missing"), dst, 0o644); err == nil {
		t.Fatal("expected error for missing source")
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Fatalf("expected no destination, stat err=%v", err)
	}
}
