package testsupport

import (
	"path/filepath"
	"testing"

	"audiograb/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	cfg *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The listener binds an ephemeral loopback port and disk-space checks are
// disabled.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkspaceRoot = filepath.Join(base, "workspaces")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Server.Bind = "127.0.0.1:0"
	cfgVal.Jobs.MinFreeMB = 0
	cfgVal.Logging.Level = "error"

	builder := &configBuilder{cfg: &cfgVal}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithMaxJobs sets the admission limit.
func WithMaxJobs(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Jobs.MaxConcurrent = n
	}
}

// WithRateLimit enables per-client throttling at requests per window.
func WithRateLimit(requests int, windowSeconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.RateLimit.Enabled = requests > 0
		b.cfg.RateLimit.Requests = requests
		b.cfg.RateLimit.WindowSeconds = windowSeconds
	}
}

// WithoutRateLimit disables request throttling.
func WithoutRateLimit() ConfigOption {
	return WithRateLimit(0, 0)
}
