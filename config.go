package business

import (
	"crypto/tls"
	"time"
)

// DefaultHost is the base URL of the Apple Business Manager API.
const DefaultHost = "https://api-business.apple.com/v1"

// HTTPConfig tunes the transport built by ConfigureHTTPClientInitializer.
type HTTPConfig struct {
	Timeout             time.Duration // whole request, including reading the body; 0 disables
	DialTimeout         time.Duration
	KeepAlive           time.Duration
	IdleConnTimeout     time.Duration
	ReadIdleTimeout     time.Duration // HTTP/2 health check PING after this much silence
	MaxConnsPerHost     int           // 0 means unlimited
	MaxIdleConnsPerHost int
	TLSConfig           *tls.Config
}

// DefaultHTTPConfig returns the settings abmctl uses when the config file
// has no http section. Device listings page slowly, so there is no overall
// request timeout.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		DialTimeout:         30 * time.Second,
		KeepAlive:           30 * time.Second,
		IdleConnTimeout:     90 * time.Second,
		ReadIdleTimeout:     15 * time.Second,
		MaxConnsPerHost:     10,
		MaxIdleConnsPerHost: 10,
		TLSConfig:           &tls.Config{MinVersion: tls.VersionTLS12},
	}
}
