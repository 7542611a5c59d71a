package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeServer(); err != nil {
		return err
	}
	if err := c.normalizeJobs(); err != nil {
		return err
	}
	c.normalizeTools()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("AUDIOGRAB_WORKSPACE_ROOT"); ok && strings.TrimSpace(value) != "" {
		c.Paths.WorkspaceRoot = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.WorkspaceRoot) == "" {
		c.Paths.WorkspaceRoot = defaultWorkspaceRoot
	}
	var err error
	if c.Paths.WorkspaceRoot, err = expandPath(c.Paths.WorkspaceRoot); err != nil {
		return fmt.Errorf("paths.workspace_root: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Logging.File, err = expandPath(strings.TrimSpace(c.Logging.File)); err != nil {
		return fmt.Errorf("logging.file: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() error {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if value, ok := os.LookupEnv("AUDIOGRAB_BIND"); ok && strings.TrimSpace(value) != "" {
		c.Server.Bind = strings.TrimSpace(value)
	} else if value, ok := os.LookupEnv("PORT"); ok && strings.TrimSpace(value) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("PORT must be a valid TCP port, got %q", value)
		}
		c.Server.Bind = fmt.Sprintf(":%d", port)
	}
	if c.Server.Bind == "" {
		c.Server.Bind = defaultBind
	}
	c.Server.ServiceName = strings.TrimSpace(c.Server.ServiceName)
	if c.Server.ServiceName == "" {
		c.Server.ServiceName = defaultServiceName
	}
	origins := make([]string, 0, len(c.Server.AllowedOrigins))
	for _, origin := range c.Server.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	c.Server.AllowedOrigins = origins
	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = defaultMaxBodyBytes
	}
	return nil
}

func (c *Config) normalizeJobs() error {
	if value, ok := os.LookupEnv("AUDIOGRAB_MAX_JOBS"); ok && strings.TrimSpace(value) != "" {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("AUDIOGRAB_MAX_JOBS must be an integer, got %q", value)
		}
		c.Jobs.MaxConcurrent = parsed
	}
	if c.Jobs.SweepIntervalMinutes <= 0 {
		c.Jobs.SweepIntervalMinutes = defaultSweepIntervalMinutes
	}
	return nil
}

func (c *Config) normalizeTools() {
	c.Extractor.Binary = strings.TrimSpace(c.Extractor.Binary)
	if c.Extractor.Binary == "" {
		c.Extractor.Binary = defaultYtdlpBinary
	}
	c.Extractor.UserAgent = strings.TrimSpace(c.Extractor.UserAgent)
	c.Transcoder.FFmpegBinary = strings.TrimSpace(c.Transcoder.FFmpegBinary)
	if c.Transcoder.FFmpegBinary == "" {
		c.Transcoder.FFmpegBinary = defaultFFmpegBinary
	}
	c.Transcoder.FFprobeBinary = strings.TrimSpace(c.Transcoder.FFprobeBinary)
	if c.Transcoder.FFprobeBinary == "" {
		c.Transcoder.FFprobeBinary = defaultFFprobeBinary
	}
	if c.Transcoder.SampleRate <= 0 {
		c.Transcoder.SampleRate = defaultSampleRate
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = c.RateLimit.Requests
	}
}

func (c *Config) normalizeLogging() {
	if value, ok := os.LookupEnv("AUDIOGRAB_LOG_LEVEL"); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = value
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
