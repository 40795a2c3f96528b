package config

const (
	defaultConfigPath          = "~/.config/animate3d/config.toml"
	defaultServerURL           = "https://service.deepmotion.com"
	defaultRequestTimeout      = 60
	defaultTokenRefreshMargin  = 60
	defaultRetryAttempts       = 3
	defaultPollInterval        = 5.0
	defaultScheduler           = SchedulerGoroutine
	defaultShutdownGrace       = 30
	defaultOutputDir           = "."
	defaultDownloadConcurrency = 4
	defaultNotifyTimeout       = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultMockBind            = "127.0.0.1:8765"
	defaultMockDataDir         = "~/.local/share/animate3d/mock"
	defaultMockStepsPerJob     = 4

	envClientID     = "ANIMATE3D_CLIENT_ID"
	envClientSecret = "ANIMATE3D_CLIENT_SECRET"
	envServerURL    = "ANIMATE3D_API_SERVER_URL"
)

// Scheduler names accepted by jobs.scheduler.
const (
	SchedulerGoroutine = "goroutine"
	SchedulerLoop      = "loop"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		API: API{
			ServerURL:          defaultServerURL,
			RequestTimeout:     defaultRequestTimeout,
			TokenRefreshMargin: defaultTokenRefreshMargin,
			RetryAttempts:      defaultRetryAttempts,
		},
		Jobs: Jobs{
			PollInterval:  defaultPollInterval,
			Blocking:      true,
			Scheduler:     defaultScheduler,
			ShutdownGrace: defaultShutdownGrace,
		},
		Download: Download{
			OutputDir:   defaultOutputDir,
			Concurrency: defaultDownloadConcurrency,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			JobCompleted:   true,
			JobFailed:      true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Mock: Mock{
			Bind:        defaultMockBind,
			DataDir:     defaultMockDataDir,
			StepsPerJob: defaultMockStepsPerJob,
		},
	}
}
