// Package business provides a client for the Apple Business Manager API,
// authenticating every request with a bearer token.
package business

import (
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptrace"
	"sort"
	"strings"
	"time"

	"github.com/takimoto3/appleapi-business/token"
	"golang.org/x/net/http2"
)

// OptionOrder defines the execution order for Client options.
// Options are applied in ascending order of these constants.
type OptionOrder int

const (
	Logger OptionOrder = iota + 1
	UserAgent
	Transport
	Metrics // Wraps whatever Transport set
	ClientTimeout
	ClientTrace // Depends on Logger being already set
)

// HTTPClientInitializer is a function that returns a configured *http.Client.
type HTTPClientInitializer func() (*http.Client, error)

// DefaultHTTPClientInitializer returns an HTTP client with HTTP/2 enabled and
// no client timeout, so the transport defaults apply.
func DefaultHTTPClientInitializer() HTTPClientInitializer {
	return func() (*http.Client, error) {
		// Clone the default transport to customize settings safely
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		tr.MaxIdleConnsPerHost = 10
		tr.ForceAttemptHTTP2 = true
		return &http.Client{Transport: tr}, nil
	}
}

// ConfigureHTTPClientInitializer builds HTTP/2 capable clients from cfg.
func ConfigureHTTPClientInitializer(cfg *HTTPConfig) HTTPClientInitializer {
	return func() (*http.Client, error) {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.TLSConfig != nil {
			tr.TLSClientConfig = cfg.TLSConfig.Clone()
		}
		tr.MaxConnsPerHost = cfg.MaxConnsPerHost
		tr.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
		tr.IdleConnTimeout = cfg.IdleConnTimeout
		tr.DialContext = (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: cfg.KeepAlive,
		}).DialContext

		tr2, err := http2.ConfigureTransports(tr)
		if err != nil {
			return nil, err
		}
		tr2.ReadIdleTimeout = cfg.ReadIdleTimeout

		return &http.Client{Transport: tr, Timeout: cfg.Timeout}, nil
	}
}

// Client performs authenticated requests against the business API.
type Client struct {
	Host        string                 // Base URL including the version path, e.g. DefaultHost
	HTTPClient  *http.Client           // Underlying HTTP client
	TokenSource token.Source           // Supplies the bearer token for each request
	Logger      *slog.Logger           // Structured logger
	Trace       *httptrace.ClientTrace // HTTP request trace hooks
	UserAgent   string                 // User-Agent header; empty keeps Go's default
}

// Option configures a Client. Options run in OptionOrder regardless of the
// order they are passed in.
type Option struct {
	f     func(*Client)
	order OptionOrder
}

func option(order OptionOrder, f func(*Client)) Option {
	return Option{f: f, order: order}
}

// WithLogger sets the logger used for request and trace logging.
func WithLogger(logger *slog.Logger) Option {
	return option(Logger, func(c *Client) {
		if logger != nil {
			c.Logger = logger
		}
	})
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return option(UserAgent, func(c *Client) { c.UserAgent = ua })
}

// WithTransport replaces the transport built by the initializer.
func WithTransport(tr http.RoundTripper) Option {
	return option(Transport, func(c *Client) {
		if tr != nil {
			c.HTTPClient.Transport = tr
		}
	})
}

// WithMetrics records request counts and latencies in m.
func WithMetrics(m *RequestMetrics) Option {
	return option(Metrics, func(c *Client) {
		if m != nil {
			c.HTTPClient.Transport = m.RoundTripper(c.HTTPClient.Transport)
		}
	})
}

// WithClientTimeout bounds each request, including reading the body.
func WithClientTimeout(timeout time.Duration) Option {
	return option(ClientTimeout, func(c *Client) { c.HTTPClient.Timeout = timeout })
}

// WithClientTrace installs the trace built by f from the client's logger.
func WithClientTrace(f func(*slog.Logger) *httptrace.ClientTrace) Option {
	return option(ClientTrace, func(c *Client) {
		if tr := f(c.Logger); tr != nil {
			c.Trace = tr
		}
	})
}

// NewClient creates a new Client with a custom HTTP initializer and options.
// An empty host selects DefaultHost.
func NewClient(initializer HTTPClientInitializer, host string, ts token.Source, opts ...Option) (*Client, error) {
	cli, err := initializer()
	if err != nil {
		return nil, err
	}
	if host == "" {
		host = DefaultHost
	}
	c := &Client{
		Host:        strings.TrimRight(host, "/"),
		HTTPClient:  cli,
		TokenSource: ts,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	sort.SliceStable(opts, func(i, j int) bool {
		return opts[i].order < opts[j].order
	})
	for _, opt := range opts {
		opt.f(c)
	}

	return c, nil
}

// CloseIdleConnections closes idle connections in the HTTP client.
func (c *Client) CloseIdleConnections() {
	c.HTTPClient.CloseIdleConnections()
}

// Do sends an HTTP request with a Bearer token and optional HTTP trace.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.Trace != nil {
		req = req.WithContext(httptrace.WithClientTrace(req.Context(), c.Trace))
	}
	if c.TokenSource == nil {
		return nil, fmt.Errorf("no token source configured")
	}
	bearer, err := c.TokenSource.Token(req.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to obtain access token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	return c.HTTPClient.Do(req)
}
