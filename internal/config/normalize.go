package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeAPI()
	c.normalizeJobs()
	if err := c.normalizeDownload(); err != nil {
		return err
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
	if err := c.normalizeLogging(); err != nil {
		return err
	}
	return c.normalizeMock()
}

func (c *Config) normalizeAPI() {
	if c.API.ClientID == "" {
		if value, ok := os.LookupEnv(envClientID); ok {
			c.API.ClientID = value
		}
	}
	if c.API.ClientSecret == "" {
		if value, ok := os.LookupEnv(envClientSecret); ok {
			c.API.ClientSecret = value
		}
	}
	if value, ok := os.LookupEnv(envServerURL); ok && strings.TrimSpace(value) != "" {
		if c.API.ServerURL == "" || c.API.ServerURL == defaultServerURL {
			c.API.ServerURL = value
		}
	}
	c.API.ClientID = strings.TrimSpace(c.API.ClientID)
	c.API.ClientSecret = strings.TrimSpace(c.API.ClientSecret)
	c.API.ServerURL = strings.TrimRight(strings.TrimSpace(c.API.ServerURL), "/")
	if c.API.ServerURL == "" {
		c.API.ServerURL = defaultServerURL
	}
	if c.API.RequestTimeout <= 0 {
		c.API.RequestTimeout = defaultRequestTimeout
	}
	if c.API.TokenRefreshMargin < 0 {
		c.API.TokenRefreshMargin = defaultTokenRefreshMargin
	}
	if c.API.RetryAttempts <= 0 {
		c.API.RetryAttempts = 1
	}
}

func (c *Config) normalizeJobs() {
	c.Jobs.Scheduler = strings.ToLower(strings.TrimSpace(c.Jobs.Scheduler))
	if c.Jobs.Scheduler == "" {
		c.Jobs.Scheduler = defaultScheduler
	}
	if c.Jobs.ShutdownGrace < 0 {
		c.Jobs.ShutdownGrace = 0
	}
}

func (c *Config) normalizeDownload() error {
	if strings.TrimSpace(c.Download.OutputDir) == "" {
		c.Download.OutputDir = defaultOutputDir
	}
	var err error
	if c.Download.OutputDir, err = expandPath(c.Download.OutputDir); err != nil {
		return fmt.Errorf("download.output_dir: %w", err)
	}
	if c.Download.Concurrency <= 0 {
		c.Download.Concurrency = defaultDownloadConcurrency
	}
	return nil
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if strings.TrimSpace(c.Logging.File) == "" {
		c.Logging.File = ""
		return nil
	}
	var err error
	if c.Logging.File, err = expandPath(c.Logging.File); err != nil {
		return fmt.Errorf("logging.file: %w", err)
	}
	return nil
}

func (c *Config) normalizeMock() error {
	c.Mock.Bind = strings.TrimSpace(c.Mock.Bind)
	if c.Mock.Bind == "" {
		c.Mock.Bind = defaultMockBind
	}
	if strings.TrimSpace(c.Mock.DataDir) == "" {
		c.Mock.DataDir = defaultMockDataDir
	}
	var err error
	if c.Mock.DataDir, err = expandPath(c.Mock.DataDir); err != nil {
		return fmt.Errorf("mock.data_dir: %w", err)
	}
	if c.Mock.StepsPerJob <= 0 {
		c.Mock.StepsPerJob = defaultMockStepsPerJob
	}
	return nil
}
