package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"audiograb/internal/config"
)

func isolateEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{"PORT", "AUDIOGRAB_BIND", "AUDIOGRAB_WORKSPACE_ROOT", "AUDIOGRAB_MAX_JOBS", "AUDIOGRAB_LOG_LEVEL"} {
		t.Setenv(key, "")
	}
	t.Chdir(t.TempDir())
	return home
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	home := isolateEnv(t)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if resolved != filepath.Join(home, ".config", "audiograb", "config.toml") {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	wantRoot := filepath.Join(home, ".local", "share", "audiograb", "workspaces")
	if cfg.Paths.WorkspaceRoot != wantRoot {
		t.Fatalf("unexpected workspace root: got %q want %q", cfg.Paths.WorkspaceRoot, wantRoot)
	}
	if cfg.Server.Bind != "127.0.0.1:3000" {
		t.Fatalf("unexpected bind: %q", cfg.Server.Bind)
	}
	if cfg.Jobs.MaxConcurrent != 4 {
		t.Fatalf("unexpected max concurrent: %d", cfg.Jobs.MaxConcurrent)
	}
	if cfg.JobTimeout() != 10*time.Minute {
		t.Fatalf("unexpected job timeout: %s", cfg.JobTimeout())
	}
	if cfg.MinFreeBytes() != 256<<20 {
		t.Fatalf("unexpected min free bytes: %d", cfg.MinFreeBytes())
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.Burst != cfg.RateLimit.Requests {
		t.Fatalf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.WorkspaceRoot, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q to exist", dir)
		}
	}
}

func TestLoadReadsFileValues(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "audiograb.toml")
	payload := map[string]any{
		"paths":      map[string]any{"workspace_root": filepath.Join(dir, "ws")},
		"server":     map[string]any{"bind": "0.0.0.0:8080", "allowed_origins": []string{" https://a.example ", ""}},
		"jobs":       map[string]any{"max_concurrent": 2, "timeout_seconds": 30},
		"transcoder": map[string]any{"verify_output": false},
		"logging":    map[string]any{"format": "JSON", "level": "Debug"},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected explicit path to resolve, got %q exists=%v", resolved, exists)
	}
	if cfg.Server.Bind != "0.0.0.0:8080" {
		t.Fatalf("unexpected bind %q", cfg.Server.Bind)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "https://a.example" {
		t.Fatalf("unexpected origins %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Jobs.MaxConcurrent != 2 || cfg.JobTimeout() != 30*time.Second {
		t.Fatalf("unexpected jobs section %+v", cfg.Jobs)
	}
	if cfg.Transcoder.VerifyOutput {
		t.Fatal("expected verify_output to be disabled")
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected normalized logging, got %+v", cfg.Logging)
	}
	if cfg.Extractor.Binary != "yt-dlp" {
		t.Fatalf("expected default extractor binary, got %q", cfg.Extractor.Binary)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[jobs]\nmax_concurrency = 3\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected unknown key to fail parsing")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	isolateEnv(t)
	root := t.TempDir()
	t.Setenv("PORT", "8123")
	t.Setenv("AUDIOGRAB_WORKSPACE_ROOT", root)
	t.Setenv("AUDIOGRAB_MAX_JOBS", "9")
	t.Setenv("AUDIOGRAB_LOG_LEVEL", "WARN")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Bind != ":8123" {
		t.Fatalf("expected PORT override, got %q", cfg.Server.Bind)
	}
	if cfg.Paths.WorkspaceRoot != root {
		t.Fatalf("expected workspace override, got %q", cfg.Paths.WorkspaceRoot)
	}
	if cfg.Jobs.MaxConcurrent != 9 {
		t.Fatalf("expected max jobs override, got %d", cfg.Jobs.MaxConcurrent)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("expected log level override, got %q", cfg.Logging.Level)
	}

	t.Setenv("AUDIOGRAB_BIND", "127.0.0.1:9999")
	cfg, _, _, err = config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Bind != "127.0.0.1:9999" {
		t.Fatalf("expected AUDIOGRAB_BIND to win over PORT, got %q", cfg.Server.Bind)
	}
}

func TestInvalidPortOverride(t *testing.T) {
	isolateEnv(t)
	t.Setenv("PORT", "http")
	if _, _, _, err := config.Load(""); err == nil || !strings.Contains(err.Error(), "PORT") {
		t.Fatalf("expected PORT error, got %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*config.Config){
		"bind":        func(c *config.Config) { c.Server.Bind = "localhost" },
		"concurrency": func(c *config.Config) { c.Jobs.MaxConcurrent = 0 },
		"timeout":     func(c *config.Config) { c.Jobs.TimeoutSeconds = -1 },
		"rate":        func(c *config.Config) { c.RateLimit.Requests = 0 },
		"stale age":   func(c *config.Config) { c.Jobs.StaleWorkspaceMinutes = 5 },
		"stale equal": func(c *config.Config) { c.Jobs.TimeoutSeconds, c.Jobs.StaleWorkspaceMinutes = 600, 10 },
		"format":      func(c *config.Config) { c.Logging.Format = "xml" },
		"level":       func(c *config.Config) { c.Logging.Level = "trace" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.WorkspaceRoot = t.TempDir()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for %s", name)
			}
		})
	}
}

func TestCreateSampleRoundTripsThroughLoad(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Jobs.MaxConcurrent != config.Default().Jobs.MaxConcurrent {
		t.Fatalf("sample diverges from defaults: %d", cfg.Jobs.MaxConcurrent)
	}
	encoded, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(string(encoded), "workspace_root") {
		t.Fatalf("encoded config missing workspace_root: %s", encoded)
	}
}
