package client

import (
	"context"
	"log/slog"
	"net/http"

	"animate3d/internal/auth"
	"animate3d/internal/characters"
	"animate3d/internal/config"
	"animate3d/internal/download"
	"animate3d/internal/execution"
	"animate3d/internal/jobs"
	"animate3d/internal/logging"
	"animate3d/internal/multiperson"
	"animate3d/internal/notifications"
	"animate3d/internal/polling"
	"animate3d/internal/rerun"
	"animate3d/internal/services"
	"animate3d/internal/transport"
	"animate3d/internal/upload"
)

// Option customises Client construction.
type Option func(*options)

type options struct {
	httpClient *http.Client
	scheduler  execution.Scheduler
	suspender  polling.Suspender
	notifier   notifications.Service
}

// WithHTTPClient overrides the HTTP client used for every request.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithScheduler overrides the background scheduler chosen by jobs.scheduler.
func WithScheduler(s execution.Scheduler) Option {
	return func(o *options) { o.scheduler = s }
}

// WithSuspender overrides the pause between blocking polls (used in tests).
func WithSuspender(s polling.Suspender) Option {
	return func(o *options) { o.suspender = s }
}

// WithNotifier overrides the notification service built from config.
func WithNotifier(n notifications.Service) Option {
	return func(o *options) { o.notifier = n }
}

// Client is the entry point for submitting and tracking jobs.
type Client struct {
	cfg    *config.Config
	logger *slog.Logger

	tokens     *auth.Manager
	api        *transport.Client
	jobs       *jobs.Service
	submitter  *jobs.Submitter
	controller *execution.Controller
	executor   *notifyingExecutor
	multi      *multiperson.Orchestrator
	reruns     *rerun.Coordinator
	uploader   *upload.Uploader
	downloader *download.Downloader
	characters *characters.Service
	notifier   notifications.Service
}

// New builds a Client from cfg. Client credentials are required.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "client", "new", "config is required", nil)
	}
	if err := cfg.RequireCredentials(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "client", "new", "", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: cfg.RequestTimeout()}
	}
	if o.scheduler == nil {
		if cfg.Jobs.Scheduler == config.SchedulerLoop {
			o.scheduler = execution.NewLoop(logger)
		} else {
			o.scheduler = execution.GoroutineScheduler{}
		}
	}
	if o.notifier == nil {
		o.notifier = notifications.NewService(cfg)
	}

	c := &Client{cfg: cfg, logger: logging.NewComponentLogger(logger, "client"), notifier: o.notifier}
	c.tokens = auth.NewManager(cfg.API.ServerURL, cfg.API.ClientID, cfg.API.ClientSecret, o.httpClient,
		auth.WithMargin(cfg.TokenRefreshMargin()),
		auth.WithLogger(logger),
	)
	c.api = transport.New(cfg.API.ServerURL, c.tokens,
		transport.WithHTTPClient(o.httpClient),
		transport.WithRetryMaxAttempts(cfg.API.RetryAttempts),
		transport.WithLogger(logger),
	)
	c.jobs = jobs.NewService(c.api)
	c.submitter = jobs.NewSubmitter(c.api, logger)

	execOpts := []execution.Option{
		execution.WithScheduler(o.scheduler),
		execution.WithDefaults(cfg.PollInterval(), cfg.JobTimeout()),
		execution.WithLogger(logger),
	}
	if o.suspender != nil {
		execOpts = append(execOpts, execution.WithSuspender(o.suspender))
	}
	c.controller = execution.NewController(c.jobs, execOpts...)
	c.executor = &notifyingExecutor{controller: c.controller, notifier: c.notifier, logger: c.logger}

	c.multi = multiperson.New(c.submitter, c.executor, c.jobs, logger)
	c.reruns = rerun.New(c.jobs, c.submitter, c.executor, logger)
	c.uploader = upload.New(c.api, logger)
	c.downloader = download.New(c.api,
		download.WithConcurrency(cfg.Download.Concurrency),
		download.WithLogger(logger),
	)
	c.characters = characters.New(c.api, c.uploader, logger)
	return c, nil
}

// DefaultRegistration returns a Registration carrying the configured
// execution mode, poll interval and timeout, with no callbacks.
func (c *Client) DefaultRegistration() execution.Registration {
	return execution.Registration{
		PollInterval: c.cfg.PollInterval(),
		Timeout:      c.cfg.JobTimeout(),
		Blocking:     c.cfg.Jobs.Blocking,
	}
}

// Characters returns the character model service.
func (c *Client) Characters() *characters.Service { return c.characters }

// Tokens exposes the token manager for diagnostics.
func (c *Client) Tokens() *auth.Manager { return c.tokens }

// Handle returns the execution handle of a job started by this client.
func (c *Client) Handle(rid string) (*execution.Handle, bool) {
	return c.controller.Handle(rid)
}

// Cancel stops polling a background job. Cancellation takes effect at the
// next poll boundary and no further callbacks are delivered.
func (c *Client) Cancel(rid string) bool {
	return c.controller.Cancel(rid)
}

// Close waits up to jobs.shutdown_grace for background jobs, then cancels
// whatever is still running. Outcome notifications already underway are
// given their own publish timeout. It returns the context error when jobs
// had to be cancelled.
func (c *Client) Close(ctx context.Context) error {
	graceCtx, cancel := context.WithTimeout(ctx, c.cfg.ShutdownGrace())
	defer cancel()
	err := c.controller.Shutdown(graceCtx)

	flushCtx, cancelFlush := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancelFlush()
	if flushErr := c.executor.flush(flushCtx); flushErr != nil {
		c.logger.Warn("outcome notifications still pending at close",
			logging.String(logging.FieldEventType, "notifications_abandoned"),
			logging.Error(flushErr),
		)
	}
	return err
}
