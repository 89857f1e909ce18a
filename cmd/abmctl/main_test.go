package main

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/csv"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takimoto3/appleapi-business/internal/config"
)

type testEnv struct {
	dir        string
	configPath string
	exchanges  atomic.Int32
	lastBody   atomic.Value
}

// newTestEnv writes a key and config pointing at stub token and API servers.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{dir: t.TempDir()}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	keyPath := filepath.Join(env.dir, "abm.pem")
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0o600))

	authSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.exchanges.Add(1)
		io.WriteString(w, `{"access_token":"tok123","token_type":"Bearer","expires_in":3600}`)
	}))
	t.Cleanup(authSrv.Close)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/orgDevices", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":[{"id":"d1","type":"orgDevices","attributes":{"serialNumber":"S1","deviceModel":"iPhone 15","productFamily":"iPhone","status":"ASSIGNED"}}]}`)
	})
	mux.HandleFunc("GET /v1/orgDevices/{id}/appleCareCoverage", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("GET /v1/orgDevices/{id}/relationships/assignedServer", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":{"type":"mdmServers","id":"srv1"}}`)
	})
	mux.HandleFunc("GET /v1/mdmServers", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":[{"id":"srv1","type":"mdmServers","attributes":{"serverName":"Main"}}]}`)
	})
	mux.HandleFunc("POST /v1/orgDeviceActivities", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		env.lastBody.Store(string(body))
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"data":{"id":"act1","type":"orgDeviceActivities"}}`)
	})
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok123" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(apiSrv.Close)

	env.configPath = filepath.Join(env.dir, "abm.yaml")
	require.NoError(t, config.Save(env.configPath, &config.Config{
		ClientID:       "BUSINESSAPI.abc",
		KeyID:          "kid1",
		PrivateKeyPath: keyPath,
		APIHost:        apiSrv.URL + "/v1",
		TokenEndpoint:  authSrv.URL,
		LogLevel:       "error",
	}))
	return env
}

func (env *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), append([]string{"--config", env.configPath}, args...), &stdout, &stderr)
	return stdout.String(), err
}

func TestRun_Assertion(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "assertion")
	require.NoError(t, err)

	var got assertionOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "BUSINESSAPI.abc", got.ClientID)
	assert.Equal(t, "kid1", got.KeyID)
	assert.Len(t, strings.Split(got.Assertion, "."), 3)
	assert.Equal(t, 180*24.0, got.ExpiresAt.Sub(got.IssuedAt).Hours())
	assert.Zero(t, env.exchanges.Load(), "assertion must not contact the token endpoint")
}

func TestRun_Token(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "token")
	require.NoError(t, err)

	var got tokenOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "tok123", got.AccessToken)
	assert.False(t, got.ExpiresAt.IsZero())
}

func TestRun_Devices(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "devices")
	require.NoError(t, err)

	var got []struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "d1", got[0].ID)
}

func TestRun_DevicesCSV(t *testing.T) {
	env := newTestEnv(t)
	csvPath := filepath.Join(env.dir, "devices.csv")
	out, err := env.run(t, "devices", "--csv", csvPath)
	require.NoError(t, err)
	assert.Empty(t, out)

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Serial Number", "Model", "Product Family", "Product Type", "Status", "ID"},
		{"S1", "iPhone 15", "iPhone", "", "ASSIGNED", "d1"},
	}, records)
}

func TestRun_CoverageMissingPrintsNull(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "coverage", "d1")
	require.NoError(t, err)
	assert.Equal(t, "null\n", out)
}

func TestRun_AssignedServer(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "assigned-server", "d1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"device_id":"d1","server_id":"srv1","assigned":true}`, out)
}

func TestRun_AssignAndUnassign(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "assign", "--server", "srv1", "d1", "d2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"activity_id":"act1"}`, out)
	assert.Contains(t, env.lastBody.Load(), `"ASSIGN_DEVICES"`)

	_, err = env.run(t, "unassign", "d1")
	require.NoError(t, err)
	assert.Contains(t, env.lastBody.Load(), `"UNASSIGN_DEVICES"`)

	_, err = env.run(t, "assign", "d1")
	assert.ErrorContains(t, err, "--server is required")

	_, err = env.run(t, "unassign")
	assert.ErrorContains(t, err, "no device IDs")
}

func TestRun_Connect(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "connect")
	require.NoError(t, err)

	var got connectOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 1, got.Devices)
	assert.Equal(t, 1, got.Servers)
	assert.Equal(t, int32(1), env.exchanges.Load(), "token is exchanged once per invocation")
}

func TestRun_MetricsTextfile(t *testing.T) {
	env := newTestEnv(t)
	metricsPath := filepath.Join(env.dir, "abm.prom")
	_, err := env.run(t, "--metrics-textfile", metricsPath, "servers")
	require.NoError(t, err)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `abm_client_requests_total{code="200",method="get"} 1`)
	assert.Contains(t, string(data), `abm_client_requests_total{code="200",method="post"} 1`, "token exchange is counted")
}

func TestRun_MetricsTextfileOnFailure(t *testing.T) {
	env := newTestEnv(t)
	metricsPath := filepath.Join(env.dir, "abm.prom")
	_, err := env.run(t, "--metrics-textfile", metricsPath, "device", "nope")
	require.Error(t, err)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err, "metrics are written for a failed command")
	assert.Contains(t, string(data), `abm_client_requests_total{code="404",method="get"} 1`)
}

func TestRun_HTTPSectionApplied(t *testing.T) {
	env := newTestEnv(t)
	cfg, err := config.Load(env.configPath)
	require.NoError(t, err)
	cfg.HTTP = &config.HTTPSettings{Timeout: 10 * time.Second, MaxConnsPerHost: 2}
	require.NoError(t, config.Save(env.configPath, cfg))

	out, err := env.run(t, "servers")
	require.NoError(t, err)
	assert.Contains(t, out, "srv1")
}

func TestRun_FlagsOverrideConfig(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, "--key-file", filepath.Join(env.dir, "missing.pem"), "assertion")
	assert.ErrorContains(t, err, "missing.pem")
}

func TestRun_SaveConfig(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, "--key-id", "kid2", "save-config")
	require.NoError(t, err)

	cfg, err := config.Load(env.configPath)
	require.NoError(t, err)
	assert.Equal(t, "kid2", cfg.KeyID)
}

func TestRun_Errors(t *testing.T) {
	tests := map[string]struct {
		args    []string
		wantErr string
	}{
		"NoSubcommand":  {nil, "subcommand required"},
		"Unknown":       {[]string{"reboot"}, `unknown subcommand: "reboot"`},
		"MissingID":     {[]string{"device"}, "exactly one ID argument required"},
		"NoCredentials": {[]string{"assertion"}, "client_id is required"},
	}

	t.Setenv(config.EnvVar, "")
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := run(context.Background(), tt.args, io.Discard, io.Discard)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestRun_Help(t *testing.T) {
	var stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"--help"}, io.Discard, &stderr))
	assert.Contains(t, stderr.String(), "Usage: abmctl")
	assert.Contains(t, stderr.String(), "--metrics-textfile")
}
