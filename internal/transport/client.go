package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"animate3d/internal/logging"
	"animate3d/internal/services"
)

const (
	defaultTimeout        = 60 * time.Second
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 500 * time.Millisecond
	defaultRetryMaxDelay  = 10 * time.Second
	errorBodyLimit        = 4096

	// HeaderRequestID carries the correlation identifier of each request.
	HeaderRequestID = "X-Request-ID"
)

// HTTPDoer is the subset of *http.Client the transport needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenSource supplies bearer tokens and accepts invalidation after a 401.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// Option customises Client construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithRetryMaxAttempts overrides the retry count for idempotent requests.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) { c.retryMaxAttempts = attempts }
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) { c.sleeper = sleeper }
}

// WithLogger attaches a logger for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logging.NewComponentLogger(logger, "transport") }
}

// Client issues authenticated JSON requests against the service API.
type Client struct {
	baseURL string
	http    HTTPDoer
	tokens  TokenSource
	logger  *slog.Logger

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// New builds a Client rooted at baseURL.
func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:          strings.TrimRight(baseURL, "/"),
		http:             &http.Client{Timeout: defaultTimeout},
		tokens:           tokens,
		logger:           logging.NewNop(),
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.baseURL }

// Get issues an authenticated GET and decodes the JSON response into out.
// GETs are retried on timeouts, 408, 429, and 5xx responses.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

// Post issues an authenticated JSON POST.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, out)
}

// Delete issues an authenticated DELETE.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil, out)
}

// Do issues an authenticated JSON request. A 401 invalidates the cached token
// and the request is replayed once with a fresh one.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		payload = data
	}

	requestID, ok := services.RequestIDFromContext(ctx)
	if !ok {
		requestID = uuid.NewString()
	}

	op := method + " " + path
	attempts := 1
	if method == http.MethodGet {
		attempts = c.retryAttempts()
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.sendWithReauth(ctx, method, path, query, payload, requestID, out)
		if err == nil {
			return nil
		}
		lastErr = err
		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return err
		}
		c.logger.Debug("retrying request",
			logging.String("op", op),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, lastErr)
}

func (c *Client) sendWithReauth(ctx context.Context, method, path string, query url.Values, payload []byte, requestID string, out any) error {
	err := c.send(ctx, method, path, query, payload, requestID, out)
	var apiErr *services.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized && c.tokens != nil {
		c.tokens.Invalidate()
		c.logger.Debug("token rejected, refreshing", logging.String("path", path))
		return c.send(ctx, method, path, query, payload, requestID, out)
	}
	return err
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, payload []byte, requestID string, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderRequestID, requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrTransient, "transport", method+" "+path, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp, method+" "+path)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &services.APIError{
			StatusCode: resp.StatusCode,
			Code:       "invalid_response",
			Message:    fmt.Sprintf("decode response: %v", err),
			Operation:  method + " " + path,
		}
	}
	return nil
}

// Put uploads raw bytes to a pre-signed URL. Signed URLs carry their own
// authorization so no bearer token is attached.
func (c *Client) Put(ctx context.Context, rawURL, contentType string, body io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, rawURL, body)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	if size >= 0 {
		req.ContentLength = size
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "transport", "upload", "request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeAPIError(resp, "PUT signed url")
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Fetch opens a pre-signed download URL. Callers close the returned body.
func (c *Client) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, services.Wrap(services.ErrTransient, "transport", "download", "request failed", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, 0, decodeAPIError(resp, "GET signed url")
	}
	return resp.Body, resp.ContentLength, nil
}

func decodeAPIError(resp *http.Response, op string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	apiErr := &services.APIError{StatusCode: resp.StatusCode, Operation: op}

	var parsed struct {
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		apiErr.Code = strings.Trim(strings.TrimSpace(string(parsed.Code)), `"`)
		apiErr.Message = parsed.Message
		if apiErr.Message == "" {
			apiErr.Message = parsed.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func (c *Client) retryAttempts() int {
	if c.retryMaxAttempts <= 0 {
		return defaultRetryAttempts
	}
	return c.retryMaxAttempts
}

func (c *Client) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	if errors.Is(err, services.ErrAuthentication) {
		return 0, false
	}
	if services.IsRetryable(err) {
		return c.backoffDelay(attempt), true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.backoffDelay(attempt), true
	}
	return 0, false
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	base := c.retryBaseDelay
	maxDelay := c.retryMaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	if base <= 0 {
		return 0
	}
	if attempt <= 0 {
		attempt = 1
	}
	// attempt 1 -> base, attempt 2 -> base*2, attempt 3 -> base*4, ...
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			return maxDelay
		}
		delay *= 2
	}
	return min(delay, maxDelay)
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PathEscape joins escaped path segments under prefix.
func PathEscape(prefix string, segments ...string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(prefix, "/"))
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}
