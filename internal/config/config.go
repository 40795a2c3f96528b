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

// API contains connection settings for the remote processing service.
type API struct {
	ServerURL          string `toml:"server_url"`
	ClientID           string `toml:"client_id"`
	ClientSecret       string `toml:"client_secret"`
	RequestTimeout     int    `toml:"request_timeout"`
	TokenRefreshMargin int    `toml:"token_refresh_margin"`
	RetryAttempts      int    `toml:"retry_attempts"`
}

// Jobs contains polling and execution defaults applied to every submission.
type Jobs struct {
	PollInterval  float64 `toml:"poll_interval"`
	Timeout       int     `toml:"timeout"`
	Blocking      bool    `toml:"blocking"`
	Scheduler     string  `toml:"scheduler"`
	ShutdownGrace int     `toml:"shutdown_grace"`
}

// Download contains configuration for fetching job artifacts.
type Download struct {
	OutputDir   string `toml:"output_dir"`
	Concurrency int    `toml:"concurrency"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	JobCompleted   bool   `toml:"job_completed"`
	JobFailed      bool   `toml:"job_failed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	File   string `toml:"file"`
}

// Mock contains configuration for the local development service.
type Mock struct {
	Bind        string `toml:"bind"`
	DataDir     string `toml:"data_dir"`
	StepsPerJob int    `toml:"steps_per_job"`
}

// Config encapsulates all configuration values for animate3d.
//
// Configuration sections by subsystem:
//   - API: service URL, client credentials, and request policy
//   - Jobs: poll interval, timeout, blocking mode, and scheduler
//   - Download: artifact output directory
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and optional file
//   - Mock: local stand-in service used for development
type Config struct {
	API           API           `toml:"api"`
	Jobs          Jobs          `toml:"jobs"`
	Download      Download      `toml:"download"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
	Mock          Mock          `toml:"mock"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and environment fallbacks applied.
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

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("animate3d.toml")
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

// RequestTimeout returns the per-request HTTP timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.API.RequestTimeout) * time.Second
}

// TokenRefreshMargin returns how long before expiry a cached token is refreshed.
func (c *Config) TokenRefreshMargin() time.Duration {
	return time.Duration(c.API.TokenRefreshMargin) * time.Second
}

// PollInterval returns the default delay between status polls.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Jobs.PollInterval * float64(time.Second))
}

// JobTimeout returns the default job timeout. Zero disables the timeout.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Jobs.Timeout) * time.Second
}

// ShutdownGrace returns how long Close waits for background jobs.
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.Jobs.ShutdownGrace) * time.Second
}

// RequireCredentials reports a configuration error when client credentials are absent.
// Commands that never talk to the remote service skip this check.
func (c *Config) RequireCredentials() error {
	if strings.TrimSpace(c.API.ClientID) != "" && strings.TrimSpace(c.API.ClientSecret) != "" {
		return nil
	}
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = defaultConfigPath
	}
	return fmt.Errorf("api.client_id and api.client_secret are required. Set %s/%s env vars or edit %s (create with 'animate3d config init')",
		envClientID, envClientSecret, defaultPath)
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
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// EnsureDirectories creates the download directory and, when logging to a
// file, the log file's directory.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Download.OutputDir}
	if strings.TrimSpace(c.Logging.File) != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.File))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
