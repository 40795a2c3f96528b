package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable. Client credentials are checked
// separately by RequireCredentials.
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateJobs(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateAPI() error {
	parsed, err := url.Parse(c.API.ServerURL)
	if err != nil {
		return fmt.Errorf("api.server_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("api.server_url must use http or https, got %q", c.API.ServerURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("api.server_url must include a host, got %q", c.API.ServerURL)
	}
	return nil
}

func (c *Config) validateJobs() error {
	if c.Jobs.PollInterval <= 0 {
		return errors.New("jobs.poll_interval must be positive")
	}
	if c.Jobs.Timeout < 0 {
		return errors.New("jobs.timeout must be zero (disabled) or positive")
	}
	switch c.Jobs.Scheduler {
	case SchedulerGoroutine, SchedulerLoop:
	default:
		return fmt.Errorf("jobs.scheduler must be %q or %q, got %q", SchedulerGoroutine, SchedulerLoop, c.Jobs.Scheduler)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
