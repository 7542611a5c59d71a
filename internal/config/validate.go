package config

import (
	"errors"
	"fmt"
	"net"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateJobs(); err != nil {
		return err
	}
	if err := c.validateTools(); err != nil {
		return err
	}
	if err := c.validateRateLimit(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if _, _, err := net.SplitHostPort(c.Server.Bind); err != nil {
		return fmt.Errorf("server.bind must be host:port, got %q", c.Server.Bind)
	}
	return nil
}

func (c *Config) validateJobs() error {
	if c.Paths.WorkspaceRoot == "" {
		return errors.New("paths.workspace_root must be set")
	}
	if c.Jobs.MaxConcurrent <= 0 {
		return errors.New("jobs.max_concurrent must be positive")
	}
	if c.Jobs.TimeoutSeconds <= 0 {
		return errors.New("jobs.timeout_seconds must be positive")
	}
	if c.Jobs.StaleWorkspaceMinutes <= 0 {
		return errors.New("jobs.stale_workspace_minutes must be positive")
	}
	if c.StaleWorkspaceAge() <= c.JobTimeout() {
		return fmt.Errorf("jobs.stale_workspace_minutes (%d) must exceed jobs.timeout_seconds so live jobs are never swept", c.Jobs.StaleWorkspaceMinutes)
	}
	if c.Jobs.MinFreeMB < 0 {
		return errors.New("jobs.min_free_mb must be zero or positive")
	}
	return nil
}

func (c *Config) validateTools() error {
	if c.Extractor.ResolveTimeoutSeconds <= 0 {
		return errors.New("extractor.resolve_timeout_seconds must be positive")
	}
	if c.Transcoder.TimeoutSeconds <= 0 {
		return errors.New("transcoder.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	if !c.RateLimit.Enabled {
		return nil
	}
	if c.RateLimit.Requests <= 0 {
		return errors.New("rate_limit.requests must be positive when rate_limit.enabled is true")
	}
	if c.RateLimit.WindowSeconds <= 0 {
		return errors.New("rate_limit.window_seconds must be positive when rate_limit.enabled is true")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
