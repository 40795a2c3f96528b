package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"animate3d/internal/logging"
	"animate3d/internal/services"
)

const (
	// TokenPath is the client-credentials endpoint relative to the API root.
	TokenPath = "/oauth/token"

	defaultMargin  = time.Minute
	refreshTimeout = 30 * time.Second
	refreshKey     = "token"
)

// Token is a bearer credential and its expiry. A zero Expiry never expires.
type Token struct {
	Value  string
	Expiry time.Time
}

// Fetcher obtains a fresh token from the identity endpoint.
type Fetcher interface {
	Fetch(ctx context.Context) (Token, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) (Token, error)

func (f FetcherFunc) Fetch(ctx context.Context) (Token, error) { return f(ctx) }

// Option customises Manager construction.
type Option func(*Manager)

// WithFetcher replaces the client-credentials fetcher (used in tests).
func WithFetcher(f Fetcher) Option {
	return func(m *Manager) { m.fetcher = f }
}

// WithMargin sets how long before expiry a cached token is refreshed.
func WithMargin(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.margin = d
		}
	}
}

// WithClock overrides time.Now (used in tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger attaches a logger for refresh events.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logging.NewComponentLogger(logger, "auth") }
}

// Manager caches a bearer token and refreshes it before expiry. Concurrent
// callers that find the token stale share one in-flight refresh.
type Manager struct {
	fetcher Fetcher
	margin  time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu    sync.RWMutex
	token Token

	group     singleflight.Group
	refreshes atomic.Int64
}

// NewManager builds a Manager that exchanges client credentials at
// serverURL+TokenPath. httpClient may be nil.
func NewManager(serverURL, clientID, clientSecret string, httpClient *http.Client, opts ...Option) *Manager {
	m := &Manager{
		fetcher: &clientCredentialsFetcher{
			config: clientcredentials.Config{
				ClientID:     clientID,
				ClientSecret: clientSecret,
				TokenURL:     strings.TrimRight(serverURL, "/") + TokenPath,
				AuthStyle:    oauth2.AuthStyleInHeader,
			},
			httpClient: httpClient,
		},
		margin: defaultMargin,
		now:    time.Now,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Token returns a valid bearer token, refreshing it when it is missing or
// within the safety margin of its expiry.
func (m *Manager) Token(ctx context.Context) (string, error) {
	if value, ok := m.cached(); ok {
		return value, nil
	}

	// The refresh runs detached from any single caller so one cancelled
	// waiter does not fail the others.
	detached := context.WithoutCancel(ctx)
	result := m.group.DoChan(refreshKey, func() (any, error) {
		if value, ok := m.cached(); ok {
			return value, nil
		}
		return m.refresh(detached)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached token so the next call refreshes. The transport
// calls this after the service rejects a token.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.token = Token{}
	m.mu.Unlock()
}

// Refreshes reports how many successful refreshes have happened.
func (m *Manager) Refreshes() int64 {
	return m.refreshes.Load()
}

func (m *Manager) cached() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token.Value == "" {
		return "", false
	}
	if !m.token.Expiry.IsZero() && m.token.Expiry.Sub(m.now()) <= m.margin {
		return "", false
	}
	return m.token.Value, true
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	token, err := m.fetcher.Fetch(ctx)
	if err == nil && token.Value == "" {
		err = errors.New("identity endpoint returned an empty token")
	}
	if err != nil {
		logging.ErrorWithContext(m.logger, "token refresh failed", "token_refresh_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check api.client_id and api.client_secret"),
		)
		return "", services.Wrap(services.ErrAuthentication, "auth", "refresh token", "", err)
	}

	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	m.refreshes.Add(1)

	m.logger.Debug("token refreshed",
		logging.String(logging.FieldEventType, "token_refreshed"),
		logging.Any("expires_at", token.Expiry),
	)
	return token.Value, nil
}

type clientCredentialsFetcher struct {
	config     clientcredentials.Config
	httpClient *http.Client
}

func (f *clientCredentialsFetcher) Fetch(ctx context.Context) (Token, error) {
	if f.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
	}
	tok, err := f.config.Token(ctx)
	if err != nil {
		return Token{}, err
	}
	return Token{Value: tok.AccessToken, Expiry: tok.Expiry}, nil
}
