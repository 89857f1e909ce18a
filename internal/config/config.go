// Package config loads and saves the abmctl configuration file.
//
// The file is located by the --config flag or, when the flag is empty, the
// ABM_CONFIG environment variable. There is no other discovery. Flags given
// on the command line override values read from the file.
//
// The file records where the private key lives, never the key itself.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	business "github.com/takimoto3/appleapi-business"
	"github.com/takimoto3/appleapi-business/token"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "ABM_CONFIG"

// Config holds the service account settings used by abmctl.
type Config struct {
	// ClientID is the service account client ID, e.g. BUSINESSAPI.xxxx.
	ClientID string `yaml:"client_id"`

	// KeyID identifies the public key registered for the account.
	KeyID string `yaml:"key_id"`

	// PrivateKeyPath is the PEM file holding the P-256 private key.
	// ${HOME} and other ${VAR} references are expanded.
	PrivateKeyPath string `yaml:"private_key_path"`

	// APIHost is the API base URL including the version path.
	// Default: https://api-business.apple.com/v1
	APIHost string `yaml:"api_host,omitempty"`

	// TokenEndpoint is the OAuth2 token endpoint.
	// Default: https://account.apple.com/auth/oauth2/token
	TokenEndpoint string `yaml:"token_endpoint,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	// Default: warn
	LogLevel string `yaml:"log_level,omitempty"`

	// HTTP overrides the transport defaults. Unset fields keep
	// business.DefaultHTTPConfig values.
	HTTP *HTTPSettings `yaml:"http,omitempty"`
}

// HTTPSettings is the optional http section of the config file. Durations
// are written as Go duration strings such as "30s".
type HTTPSettings struct {
	Timeout             time.Duration `yaml:"timeout,omitempty"`
	DialTimeout         time.Duration `yaml:"dial_timeout,omitempty"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout,omitempty"`
	ReadIdleTimeout     time.Duration `yaml:"read_idle_timeout,omitempty"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host,omitempty"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host,omitempty"`
}

// Default returns a Config with the production endpoints and no credentials.
func Default() *Config {
	return &Config{
		APIHost:       business.DefaultHost,
		TokenEndpoint: token.Endpoint,
		LogLevel:      "warn",
	}
}

// Path returns flagValue, or the ABM_CONFIG environment variable when the
// flag is empty.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(EnvVar)
}

// Load reads the file at path over the defaults. An empty path returns the
// defaults, so every setting must then come from flags.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVariables expands ${VAR} and ${VAR:-default} in the key path.
func (c *Config) expandVariables() {
	c.PrivateKeyPath = varPattern.ReplaceAllStringFunc(c.PrivateKeyPath, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate reports every missing or malformed setting.
func (c *Config) Validate() error {
	var errs []error
	if c.ClientID == "" {
		errs = append(errs, errors.New("client_id is required"))
	}
	if c.KeyID == "" {
		errs = append(errs, errors.New("key_id is required"))
	}
	if c.PrivateKeyPath == "" {
		errs = append(errs, errors.New("private_key_path is required"))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if h := c.HTTP; h != nil {
		if h.Timeout < 0 || h.DialTimeout < 0 || h.IdleConnTimeout < 0 || h.ReadIdleTimeout < 0 {
			errs = append(errs, errors.New("http durations must not be negative"))
		}
		if h.MaxConnsPerHost < 0 || h.MaxIdleConnsPerHost < 0 {
			errs = append(errs, errors.New("http connection limits must not be negative"))
		}
	}
	return errors.Join(errs...)
}

// HTTPConfig merges the http section over business.DefaultHTTPConfig.
func (c *Config) HTTPConfig() business.HTTPConfig {
	hc := business.DefaultHTTPConfig()
	h := c.HTTP
	if h == nil {
		return hc
	}
	if h.Timeout > 0 {
		hc.Timeout = h.Timeout
	}
	if h.DialTimeout > 0 {
		hc.DialTimeout = h.DialTimeout
	}
	if h.IdleConnTimeout > 0 {
		hc.IdleConnTimeout = h.IdleConnTimeout
	}
	if h.ReadIdleTimeout > 0 {
		hc.ReadIdleTimeout = h.ReadIdleTimeout
	}
	if h.MaxConnsPerHost > 0 {
		hc.MaxConnsPerHost = h.MaxConnsPerHost
	}
	if h.MaxIdleConnsPerHost > 0 {
		hc.MaxIdleConnsPerHost = h.MaxIdleConnsPerHost
	}
	return hc
}

// Level parses LogLevel. An empty value is warn.
func (c *Config) Level() (slog.Level, error) {
	if c.LogLevel == "" {
		return slog.LevelWarn, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return level, nil
}

// Save writes c to path with owner-only permissions, creating the parent
// directory if needed.
func Save(path string, c *Config) error {
	if path == "" {
		return fmt.Errorf("no config path: use --config or set %s", EnvVar)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}
