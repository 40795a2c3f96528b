package testsupport

import (
	"path/filepath"
	"testing"

	"animate3d/internal/config"
)

// Client credentials every test config and mock service share.
const (
	ClientID     = "test-client"
	ClientSecret = "test-secret"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Polling is fast and jobs never time out unless an option says otherwise.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.API.ClientID = ClientID
	cfgVal.API.ClientSecret = ClientSecret
	cfgVal.API.ServerURL = "http://127.0.0.1:0"
	cfgVal.API.RetryAttempts = 1
	cfgVal.Jobs.PollInterval = 0.01
	cfgVal.Jobs.Timeout = 0
	cfgVal.Jobs.ShutdownGrace = 1
	cfgVal.Download.OutputDir = filepath.Join(base, "downloads")
	cfgVal.Mock.DataDir = filepath.Join(base, "mock")
	cfgVal.Mock.Bind = "127.0.0.1:0"
	cfgVal.Mock.StepsPerJob = 2
	cfgVal.Logging.Level = "debug"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithServerURL points the config at a running service.
func WithServerURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.ServerURL = url
	}
}

// WithBlocking sets the default execution mode.
func WithBlocking(blocking bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Jobs.Blocking = blocking
	}
}

// WithScheduler selects the background scheduler.
func WithScheduler(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Jobs.Scheduler = name
	}
}

// WithTimeout sets the default job timeout in seconds.
func WithTimeout(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Jobs.Timeout = seconds
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Download.OutputDir)
}
