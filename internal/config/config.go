package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains filesystem locations.
type Paths struct {
	WorkspaceRoot string `toml:"workspace_root"`
	LogDir        string `toml:"log_dir"`
}

// Server contains HTTP listener settings.
type Server struct {
	Bind           string   `toml:"bind"`
	ServiceName    string   `toml:"service_name"`
	AllowedOrigins []string `toml:"allowed_origins"`
	MaxBodyBytes   int64    `toml:"max_body_bytes"`
}

// Jobs contains admission control and workspace lifetime settings.
type Jobs struct {
	MaxConcurrent         int `toml:"max_concurrent"`
	TimeoutSeconds        int `toml:"timeout_seconds"`
	StaleWorkspaceMinutes int `toml:"stale_workspace_minutes"`
	SweepIntervalMinutes  int `toml:"sweep_interval_minutes"`
	MinFreeMB             int `toml:"min_free_mb"`
}

// Extractor contains yt-dlp settings.
type Extractor struct {
	Binary                string `toml:"binary"`
	ResolveTimeoutSeconds int    `toml:"resolve_timeout_seconds"`
	UserAgent             string `toml:"user_agent"`
}

// Transcoder contains ffmpeg and ffprobe settings.
type Transcoder struct {
	FFmpegBinary   string `toml:"ffmpeg_binary"`
	FFprobeBinary  string `toml:"ffprobe_binary"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	SampleRate     int    `toml:"sample_rate"`
	VerifyOutput   bool   `toml:"verify_output"`
}

// RateLimit contains per-client request throttling settings.
type RateLimit struct {
	Enabled       bool `toml:"enabled"`
	Requests      int  `toml:"requests"`
	WindowSeconds int  `toml:"window_seconds"`
	Burst         int  `toml:"burst"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	File   string `toml:"file"`
}

// Config encapsulates all configuration values for audiograb.
//
// Configuration sections by subsystem:
//   - Paths: workspace root and log directory
//   - Server: HTTP bind address, CORS origins and body limits
//   - Jobs: concurrency limit, job timeout budget, stale workspace sweeping
//   - Extractor: yt-dlp binary and resolve timeout
//   - Transcoder: ffmpeg/ffprobe binaries, timeout and output checks
//   - RateLimit: per-client request budget
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Server     Server     `toml:"server"`
	Jobs       Jobs       `toml:"jobs"`
	Extractor  Extractor  `toml:"extractor"`
	Transcoder Transcoder `toml:"transcoder"`
	RateLimit  RateLimit  `toml:"rate_limit"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/audiograb/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and environment overrides applied. A missing file is not an
// error; defaults are used instead.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("audiograb.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the workspace root and log directory.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkspaceRoot, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// JobTimeout returns the end-to-end budget for a single job.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Jobs.TimeoutSeconds) * time.Second
}

// StaleWorkspaceAge returns the age after which an orphaned workspace is swept.
func (c *Config) StaleWorkspaceAge() time.Duration {
	return time.Duration(c.Jobs.StaleWorkspaceMinutes) * time.Minute
}

// SweepInterval returns how often the daemon sweeps stale workspaces.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Jobs.SweepIntervalMinutes) * time.Minute
}

// MinFreeBytes returns the free space required before a workspace is created.
func (c *Config) MinFreeBytes() uint64 {
	if c.Jobs.MinFreeMB <= 0 {
		return 0
	}
	return uint64(c.Jobs.MinFreeMB) << 20
}

// ResolveTimeout returns the per-call extractor timeout.
func (c *Config) ResolveTimeout() time.Duration {
	return time.Duration(c.Extractor.ResolveTimeoutSeconds) * time.Second
}

// TranscodeTimeout returns the per-call transcoder timeout.
func (c *Config) TranscodeTimeout() time.Duration {
	return time.Duration(c.Transcoder.TimeoutSeconds) * time.Second
}

// RateWindow returns the window the request budget applies to.
func (c *Config) RateWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
