package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	// Endpoint is the OAuth2 token endpoint of the Apple authorization server.
	Endpoint = "https://account.apple.com/auth/oauth2/token"

	// Scope is the OAuth2 scope requested for the business API.
	Scope = "business.api"

	clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

	maxErrorBody = 1 << 20
)

var _ Source = StaticSource("")

// Source supplies a bearer token for API requests.
type Source interface {
	// Token returns a bearer token valid at the time of the call.
	Token(ctx context.Context) (string, error)
}

// StaticSource is a Source that always returns the same token.
type StaticSource string

// Token implements Source.
func (s StaticSource) Token(context.Context) (string, error) {
	if s == "" {
		return "", errors.New("empty access token")
	}
	return string(s), nil
}

// AccessToken is a bearer token and the time it stops being usable.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// Valid reports whether the token is present and unexpired at now.
func (t AccessToken) Valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

// Option represents a functional option for TokenProvider configuration.
type Option func(*TokenProvider)

// WithLogger sets a custom slog.Logger.
// If not set, logging is disabled (io.Discard).
func WithLogger(l *slog.Logger) Option {
	return func(tp *TokenProvider) {
		if l != nil {
			tp.logger = l
		}
	}
}

// WithHTTPClient sets the HTTP client used for the token exchange.
func WithHTTPClient(c *http.Client) Option {
	return func(tp *TokenProvider) {
		if c != nil {
			tp.httpClient = c
		}
	}
}

// WithEndpoint overrides the token endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(tp *TokenProvider) {
		tp.endpoint = endpoint
	}
}

// WithScope overrides the requested OAuth2 scope.
func WithScope(scope string) Option {
	return func(tp *TokenProvider) {
		tp.scope = scope
	}
}

// WithClock sets the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(tp *TokenProvider) {
		if now != nil {
			tp.now = now
		}
	}
}

// tokenResponse is the successful token endpoint response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// errorResponse is the OAuth2 error body.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// TokenProvider exchanges client assertions for access tokens and caches
// the most recent token until it expires. One provider serves one set of
// credentials.
type TokenProvider struct {
	mu      sync.RWMutex  // mu protects current.
	current AccessToken   // current is the cached access token.
	refresh chan struct{} // refresh admits one token exchange at a time.

	logger     *slog.Logger
	httpClient *http.Client
	endpoint   string
	scope      string
	now        func() time.Time
}

// NewProvider creates a TokenProvider with an empty cache.
// Logging is disabled by default unless WithLogger is specified.
func NewProvider(opts ...Option) *TokenProvider {
	tp := &TokenProvider{
		refresh:    make(chan struct{}, 1),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		httpClient: http.DefaultClient,
		endpoint:   Endpoint,
		scope:      Scope,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(tp)
	}

	return tp
}

// GetAccessToken returns the cached access token if it is still valid, or
// exchanges assertion for a new one.
//
// Concurrent callers that miss the cache wait for a single exchange and
// then reuse its result.
func (p *TokenProvider) GetAccessToken(ctx context.Context, assertion, clientID string) (string, error) {
	if tok, ok := p.Cached(); ok {
		return tok.Value, nil
	}

	select {
	case p.refresh <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-p.refresh }()

	// Re-check cache after winning the refresh slot
	if tok, ok := p.Cached(); ok {
		return tok.Value, nil
	}

	requestedAt := p.now()
	resp, err := p.exchange(ctx, assertion, clientID)
	if err != nil {
		return "", err
	}

	tok := AccessToken{
		Value:     resp.AccessToken,
		ExpiresAt: requestedAt.Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
	p.mu.Lock()
	p.current = tok
	p.mu.Unlock()

	p.logger.Info("Access token acquired", "expires_at", tok.ExpiresAt)

	return tok.Value, nil
}

// Cached returns the cached token if it is valid now.
func (p *TokenProvider) Cached() (AccessToken, bool) {
	now := p.now()
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current.Valid(now) {
		return p.current, true
	}
	return AccessToken{}, false
}

// Invalidate drops the cached token so the next call performs an exchange.
func (p *TokenProvider) Invalidate() {
	p.mu.Lock()
	p.current = AccessToken{}
	p.mu.Unlock()
}

// Source binds an assertion and client ID to the provider.
func (p *TokenProvider) Source(assertion, clientID string) Source {
	return &providerSource{p: p, assertion: assertion, clientID: clientID}
}

type providerSource struct {
	p         *TokenProvider
	assertion string
	clientID  string
}

func (s *providerSource) Token(ctx context.Context) (string, error) {
	return s.p.GetAccessToken(ctx, s.assertion, s.clientID)
}

func (p *TokenProvider) exchange(ctx context.Context, assertion, clientID string) (*tokenResponse, error) {
	form := url.Values{
		"grant_type":            {"client_credentials"},
		"client_id":             {clientID},
		"client_assertion_type": {clientAssertionType},
		"client_assertion":      {assertion},
		"scope":                 {p.scope},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		authErr := &AuthenticationError{StatusCode: resp.StatusCode}
		var e errorResponse
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			authErr.Code = e.Error
			authErr.Description = e.ErrorDescription
		} else {
			authErr.Body = string(body)
		}
		p.logger.Warn("Token exchange rejected", "status", resp.StatusCode, "error", authErr.Code)
		return nil, authErr
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, errors.New("token response has no access_token")
	}
	return &tr, nil
}
