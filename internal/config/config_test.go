package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "https://api-business.apple.com/v1", cfg.APIHost)
	assert.Equal(t, "https://account.apple.com/auth/oauth2/token", cfg.TokenEndpoint)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Empty(t, cfg.ClientID)
}

func TestPath(t *testing.T) {
	t.Setenv(EnvVar, "/env/abm.yaml")
	assert.Equal(t, "/flag/abm.yaml", Path("/flag/abm.yaml"))
	assert.Equal(t, "/env/abm.yaml", Path(""))

	t.Setenv(EnvVar, "")
	assert.Empty(t, Path(""))
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	t.Setenv("ABM_TEST_HOME", "/home/ops")
	path := filepath.Join(t.TempDir(), "abm.yaml")
	content := `
client_id: BUSINESSAPI.abc
key_id: kid1
private_key_path: ${ABM_TEST_HOME}/keys/abm.pem
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "BUSINESSAPI.abc", cfg.ClientID)
	assert.Equal(t, "kid1", cfg.KeyID)
	assert.Equal(t, "/home/ops/keys/abm.pem", cfg.PrivateKeyPath)
	assert.Equal(t, "https://api-business.apple.com/v1", cfg.APIHost, "unset keys keep defaults")

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_VariableDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("private_key_path: ${ABM_TEST_UNSET:-/etc/abm}/key.pem\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/etc/abm/key.pem", cfg.PrivateKeyPath)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("client_id: [unterminated"), 0o600))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "parsing config")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "loud"
	err := cfg.Validate()
	require.Error(t, err)
	for _, msg := range []string{"client_id is required", "key_id is required", "private_key_path is required", `invalid log_level "loud"`} {
		assert.ErrorContains(t, err, msg)
	}

	cfg = &Config{ClientID: "c", KeyID: "k", PrivateKeyPath: "/k.pem"}
	assert.NoError(t, cfg.Validate())
}

func TestSave_RoundTripAndPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "abm.yaml")
	in := &Config{
		ClientID:       "BUSINESSAPI.abc",
		KeyID:          "kid1",
		PrivateKeyPath: "/keys/abm.pem",
		APIHost:        "https://example.test/v1",
		TokenEndpoint:  "https://example.test/token",
		LogLevel:       "info",
		HTTP:           &HTTPSettings{Timeout: 45 * time.Second, MaxConnsPerHost: 4},
	}
	require.NoError(t, Save(path, in))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "PRIVATE KEY")
	assert.Contains(t, string(data), "private_key_path: /keys/abm.pem")
	assert.Contains(t, string(data), "timeout: 45s")

	out, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestSave_NoPath(t *testing.T) {
	assert.ErrorContains(t, Save("", Default()), EnvVar)
}

func TestLoad_HTTPSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abm.yaml")
	content := `
http:
  timeout: 2m
  read_idle_timeout: 5s
  max_conns_per_host: 20
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	hc := cfg.HTTPConfig()
	assert.Equal(t, 2*time.Minute, hc.Timeout)
	assert.Equal(t, 5*time.Second, hc.ReadIdleTimeout)
	assert.Equal(t, 20, hc.MaxConnsPerHost)
	assert.Equal(t, 30*time.Second, hc.DialTimeout, "unset fields keep defaults")
	assert.Equal(t, 10, hc.MaxIdleConnsPerHost)
}

func TestHTTPConfig_NoSection(t *testing.T) {
	hc := Default().HTTPConfig()
	assert.Zero(t, hc.Timeout)
	assert.Equal(t, 10, hc.MaxConnsPerHost)
	assert.NotNil(t, hc.TLSConfig)
}

func TestValidate_HTTPSection(t *testing.T) {
	cfg := &Config{ClientID: "c", KeyID: "k", PrivateKeyPath: "/k.pem",
		HTTP: &HTTPSettings{Timeout: -time.Second, MaxIdleConnsPerHost: -1}}
	err := cfg.Validate()
	assert.ErrorContains(t, err, "http durations must not be negative")
	assert.ErrorContains(t, err, "http connection limits must not be negative")
}
