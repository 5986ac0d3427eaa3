// Package auth acquires and caches the bearer credential used for every call
// to the document store.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/leefowlercu/cmxbatch/internal/metrics"
)

const (
	// DefaultMargin is subtracted from the declared expiry before a token is
	// considered stale.
	DefaultMargin = 30 * time.Second

	// DefaultLifetime applies when neither expires_in nor a JWT exp claim is
	// available.
	DefaultLifetime = 5 * time.Minute
)

// Token is a bearer credential.
type Token struct {
	AccessToken string
	TokenType   string
	Expiry      time.Time
}

// Header returns the Authorization header value.
func (t Token) Header() string {
	typ := t.TokenType
	if typ == "" || typ == "bearer" {
		typ = "Bearer"
	}
	return typ + " " + t.AccessToken
}

// fresh reports whether the token is usable at now with margin to spare.
func (t Token) fresh(now time.Time, margin time.Duration) bool {
	return t.AccessToken != "" && now.Add(margin).Before(t.Expiry)
}

// Config describes the client-credentials exchange.
type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string

	// Margin is subtracted from the expiry. Zero uses DefaultMargin.
	Margin time.Duration
}

// Manager caches a token and refreshes it at most once at a time.
type Manager struct {
	oauth      clientcredentials.Config
	httpClient *http.Client
	margin     time.Duration
	now        func() time.Time
	logger     *slog.Logger

	mu     sync.RWMutex
	cached Token

	group singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient sets the client used for the token exchange.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) {
		if client != nil {
			m.httpClient = client
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a Manager for cfg.
func NewManager(cfg Config, opts ...Option) *Manager {
	margin := cfg.Margin
	if margin <= 0 {
		margin = DefaultMargin
	}

	m := &Manager{
		oauth: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		httpClient: &http.Client{Timeout: 30 * time.Second},
		margin:     margin,
		now:        time.Now,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Acquire returns a valid token, exchanging credentials when the cached one
// is missing or about to expire. Concurrent callers share one exchange.
func (m *Manager) Acquire(ctx context.Context) (Token, error) {
	m.mu.RLock()
	tok := m.cached
	m.mu.RUnlock()

	if tok.fresh(m.now(), m.margin) {
		return tok, nil
	}

	v, err, _ := m.group.Do("token", func() (any, error) {
		// Another caller may have refreshed while we waited.
		m.mu.RLock()
		current := m.cached
		m.mu.RUnlock()
		if current.fresh(m.now(), m.margin) {
			return current, nil
		}

		refreshed, err := m.exchange(ctx)
		metrics.RecordTokenRefresh(err)
		if err != nil {
			return Token{}, err
		}

		m.mu.Lock()
		m.cached = refreshed
		m.mu.Unlock()

		m.logger.Debug("access token refreshed", "expires", refreshed.Expiry)
		return refreshed, nil
	})
	if err != nil {
		return Token{}, err
	}
	return v.(Token), nil
}

// Invalidate drops the cached token so the next Acquire exchanges again.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.cached = Token{}
	m.mu.Unlock()
}

func (m *Manager) exchange(ctx context.Context) (Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)

	raw, err := m.oauth.Token(ctx)
	if err != nil {
		return Token{}, classify(err)
	}

	tok := Token{
		AccessToken: raw.AccessToken,
		TokenType:   raw.TokenType,
		Expiry:      raw.Expiry,
	}
	if tok.Expiry.IsZero() {
		tok.Expiry = m.expiryFromClaims(raw.AccessToken)
	}
	return tok, nil
}

// expiryFromClaims reads exp from a JWT access token without verifying it.
// Opaque tokens get DefaultLifetime.
func (m *Manager) expiryFromClaims(access string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(access, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return m.now().Add(DefaultLifetime)
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		status := retrieveErr.Response.StatusCode
		if status >= 500 || status == http.StatusTooManyRequests {
			return &TransientAuthError{Status: status, Err: err}
		}
		return &AuthError{Status: status, Err: err}
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) || errors.Is(err, context.DeadlineExceeded) {
		return &TransientAuthError{Err: err}
	}

	return &AuthError{Err: err}
}
