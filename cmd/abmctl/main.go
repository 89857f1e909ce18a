// abmctl is a command-line client for the Apple Business Manager API.
//
// It signs a client assertion from the configured service account key,
// exchanges it for an access token and runs one API operation per
// invocation, printing the result as JSON on stdout. Logs go to stderr.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptrace"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	business "github.com/takimoto3/appleapi-business"
	"github.com/takimoto3/appleapi-business/internal/config"
	"github.com/takimoto3/appleapi-business/internal/export"
	"github.com/takimoto3/appleapi-business/token"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are accepted before the subcommand.
type globalFlags struct {
	configPath      string
	clientID        string
	keyID           string
	keyFile         string
	apiHost         string
	tokenEndpoint   string
	logLevel        string
	metricsTextfile string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var gf globalFlags
	flagSet := pflag.NewFlagSet("abmctl", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&gf.configPath, "config", "", "path to the YAML config file (default: $"+config.EnvVar+")")
	flagSet.StringVar(&gf.clientID, "client-id", "", "service account client ID")
	flagSet.StringVar(&gf.keyID, "key-id", "", "key ID of the registered public key")
	flagSet.StringVar(&gf.keyFile, "key-file", "", "PEM file holding the P-256 private key")
	flagSet.StringVar(&gf.apiHost, "api-host", "", "API base URL")
	flagSet.StringVar(&gf.tokenEndpoint, "token-endpoint", "", "OAuth2 token endpoint")
	flagSet.StringVar(&gf.logLevel, "log-level", "", "debug, info, warn or error")
	flagSet.StringVar(&gf.metricsTextfile, "metrics-textfile", "", "write request metrics to this file on exit")
	flagSet.BoolP("help", "h", false, "show help")
	flagSet.Usage = func() { printUsage(stderr, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printUsage(stderr, flagSet)
		return nil
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printUsage(stderr, flagSet)
		return fmt.Errorf("subcommand required")
	}

	configPath := config.Path(gf.configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyOverrides(cfg, flagSet, &gf)

	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	a := &app{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		stdout:     stdout,
		registry:   prometheus.NewRegistry(),
	}
	err = a.dispatch(ctx, rest[0], rest[1:])

	// Written even when dispatch failed.
	if gf.metricsTextfile != "" {
		if werr := prometheus.WriteToTextfile(gf.metricsTextfile, a.registry); werr != nil {
			err = errors.Join(err, fmt.Errorf("writing metrics: %w", werr))
		}
	}
	return err
}

// applyOverrides copies every flag given on the command line over cfg.
func applyOverrides(cfg *config.Config, fs *pflag.FlagSet, gf *globalFlags) {
	overrides := map[string]struct {
		value  string
		target *string
	}{
		"client-id":      {gf.clientID, &cfg.ClientID},
		"key-id":         {gf.keyID, &cfg.KeyID},
		"key-file":       {gf.keyFile, &cfg.PrivateKeyPath},
		"api-host":       {gf.apiHost, &cfg.APIHost},
		"token-endpoint": {gf.tokenEndpoint, &cfg.TokenEndpoint},
		"log-level":      {gf.logLevel, &cfg.LogLevel},
	}
	for name, o := range overrides {
		if fs.Changed(name) {
			*o.target = o.value
		}
	}
}

func printUsage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintf(w, `Usage: abmctl [flags] <subcommand> [args]

Subcommands:
  assertion                        Sign a client assertion and print it with its claims
  token                            Exchange the assertion for an access token
  devices [--csv FILE]             List all organization devices
  device ID                        Show one device
  coverage ID                      Show the AppleCare coverage of a device
  assigned-server ID               Show the MDM server a device is assigned to
  servers                          List MDM servers
  server-devices MDM_ID            List the device IDs assigned to an MDM server
  assign --server MDM_ID ID...     Assign devices to an MDM server
  unassign ID...                   Unassign devices from their MDM server
  activity ID                      Show the status of a device activity
  connect                          Fetch a token, devices and servers in sequence
  save-config                      Write the effective settings to the config file

Flags:
%s`, fs.FlagUsages())
}

// app holds the state shared by the subcommands of one invocation.
type app struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
	stdout     io.Writer
	registry   *prometheus.Registry

	metrics   *business.RequestMetrics
	provider  *token.TokenProvider
	assertion string
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "assertion":
		return a.runAssertion()
	case "token":
		return a.runToken(ctx)
	case "devices":
		return a.runDevices(ctx, args)
	case "device":
		return a.withID(args, func(id string) error { return a.runDevice(ctx, id) })
	case "coverage":
		return a.withID(args, func(id string) error { return a.runCoverage(ctx, id) })
	case "assigned-server":
		return a.withID(args, func(id string) error { return a.runAssignedServer(ctx, id) })
	case "servers":
		return a.runServers(ctx)
	case "server-devices":
		return a.withID(args, func(id string) error { return a.runServerDevices(ctx, id) })
	case "assign":
		return a.runAssign(ctx, args)
	case "unassign":
		return a.runUnassign(ctx, args)
	case "activity":
		return a.withID(args, func(id string) error { return a.runActivity(ctx, id) })
	case "connect":
		return a.runConnect(ctx)
	case "save-config":
		return a.runSaveConfig()
	default:
		return fmt.Errorf("unknown subcommand: %q", cmd)
	}
}

func (a *app) withID(args []string, f func(string) error) error {
	if len(args) != 1 || args[0] == "" {
		return fmt.Errorf("exactly one ID argument required")
	}
	return f(args[0])
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// signAssertion reads the key and signs a fresh assertion. The assertion is
// kept for the rest of the invocation.
func (a *app) signAssertion() (string, error) {
	if a.assertion != "" {
		return a.assertion, nil
	}
	if err := a.cfg.Validate(); err != nil {
		return "", err
	}
	pemText, err := token.ReadKeyFile(a.cfg.PrivateKeyPath)
	if err != nil {
		return "", err
	}
	assertion, err := token.SignAssertion(token.Credentials{
		ClientID:      a.cfg.ClientID,
		KeyID:         a.cfg.KeyID,
		PrivateKeyPEM: pemText,
	}, time.Now())
	if err != nil {
		return "", fmt.Errorf("signing assertion: %w", err)
	}
	a.assertion = assertion
	return assertion, nil
}

func (a *app) requestMetrics() (*business.RequestMetrics, error) {
	if a.metrics == nil {
		m, err := business.NewRequestMetrics(a.registry)
		if err != nil {
			return nil, err
		}
		a.metrics = m
	}
	return a.metrics, nil
}

func (a *app) tokenProvider() (*token.TokenProvider, error) {
	if a.provider != nil {
		return a.provider, nil
	}
	m, err := a.requestMetrics()
	if err != nil {
		return nil, err
	}
	hc, err := a.httpClientInitializer()()
	if err != nil {
		return nil, err
	}
	hc.Transport = m.RoundTripper(hc.Transport)
	a.provider = token.NewProvider(
		token.WithLogger(a.logger),
		token.WithEndpoint(a.cfg.TokenEndpoint),
		token.WithHTTPClient(hc),
	)
	return a.provider, nil
}

// httpClientInitializer builds clients from the http section of the config.
func (a *app) httpClientInitializer() business.HTTPClientInitializer {
	hc := a.cfg.HTTPConfig()
	return business.ConfigureHTTPClientInitializer(&hc)
}

func (a *app) client() (*business.Client, error) {
	assertion, err := a.signAssertion()
	if err != nil {
		return nil, err
	}
	provider, err := a.tokenProvider()
	if err != nil {
		return nil, err
	}
	m, err := a.requestMetrics()
	if err != nil {
		return nil, err
	}
	return business.NewClient(a.httpClientInitializer(), a.cfg.APIHost,
		provider.Source(assertion, a.cfg.ClientID),
		business.WithLogger(a.logger),
		business.WithUserAgent("abmctl"),
		business.WithMetrics(m),
		business.WithClientTrace(func(l *slog.Logger) *httptrace.ClientTrace {
			return business.DefaultClientTrace(l, slog.LevelDebug)
		}),
	)
}

type assertionOutput struct {
	Assertion string    `json:"assertion"`
	ClientID  string    `json:"client_id"`
	KeyID     string    `json:"key_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *app) runAssertion() error {
	assertion, err := a.signAssertion()
	if err != nil {
		return err
	}
	info, err := token.InspectAssertion(assertion)
	if err != nil {
		return err
	}
	return a.printJSON(assertionOutput{
		Assertion: assertion,
		ClientID:  info.ClientID,
		KeyID:     info.KeyID,
		IssuedAt:  info.IssuedAt,
		ExpiresAt: info.ExpiresAt,
	})
}

type tokenOutput struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (a *app) runToken(ctx context.Context) error {
	assertion, err := a.signAssertion()
	if err != nil {
		return err
	}
	provider, err := a.tokenProvider()
	if err != nil {
		return err
	}
	if _, err := provider.GetAccessToken(ctx, assertion, a.cfg.ClientID); err != nil {
		return err
	}
	tok, _ := provider.Cached()
	return a.printJSON(tokenOutput{AccessToken: tok.Value, ExpiresAt: tok.ExpiresAt})
}

func (a *app) runDevices(ctx context.Context, args []string) error {
	var csvPath string
	fs := pflag.NewFlagSet("devices", pflag.ContinueOnError)
	fs.StringVar(&csvPath, "csv", "", "write the devices to this CSV file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := a.client()
	if err != nil {
		return err
	}
	devices, err := c.ListDevices(ctx)
	if err != nil {
		return err
	}
	if csvPath == "" {
		return a.printJSON(devices)
	}

	f, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", csvPath, err)
	}
	if err := export.WriteDevicesCSV(f, devices); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	a.logger.Info("Devices exported", "path", csvPath, "count", len(devices))
	return nil
}

func (a *app) runDevice(ctx context.Context, id string) error {
	c, err := a.client()
	if err != nil {
		return err
	}
	d, err := c.GetDevice(ctx, id)
	if err != nil {
		return err
	}
	return a.printJSON(d)
}

func (a *app) runCoverage(ctx context.Context, id string) error {
	c, err := a.client()
	if err != nil {
		return err
	}
	cov, err := c.GetAppleCareCoverage(ctx, id)
	if errors.Is(err, business.ErrNoCoverageAvailable) {
		a.logger.Info("No coverage", "device", id)
		return a.printJSON(nil)
	}
	if err != nil {
		return err
	}
	return a.printJSON(cov)
}

type assignedServerOutput struct {
	DeviceID string `json:"device_id"`
	ServerID string `json:"server_id,omitempty"`
	Assigned bool   `json:"assigned"`
}

func (a *app) runAssignedServer(ctx context.Context, id string) error {
	c, err := a.client()
	if err != nil {
		return err
	}
	serverID, ok, err := c.GetAssignedServer(ctx, id)
	if err != nil {
		return err
	}
	return a.printJSON(assignedServerOutput{DeviceID: id, ServerID: serverID, Assigned: ok})
}

func (a *app) runServers(ctx context.Context) error {
	c, err := a.client()
	if err != nil {
		return err
	}
	servers, err := c.ListMDMServers(ctx)
	if err != nil {
		return err
	}
	return a.printJSON(servers)
}

func (a *app) runServerDevices(ctx context.Context, id string) error {
	c, err := a.client()
	if err != nil {
		return err
	}
	ids, err := c.GetDevicesForMDM(ctx, id)
	if err != nil {
		return err
	}
	return a.printJSON(ids)
}

type activityOutput struct {
	ActivityID string `json:"activity_id"`
}

func (a *app) runAssign(ctx context.Context, args []string) error {
	var server string
	fs := pflag.NewFlagSet("assign", pflag.ContinueOnError)
	fs.StringVar(&server, "server", "", "MDM server ID (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if server == "" {
		return fmt.Errorf("--server is required; use unassign to remove an assignment")
	}

	c, err := a.client()
	if err != nil {
		return err
	}
	id, err := c.AssignDevices(ctx, fs.Args(), server)
	if err != nil {
		return err
	}
	return a.printJSON(activityOutput{ActivityID: id})
}

func (a *app) runUnassign(ctx context.Context, args []string) error {
	c, err := a.client()
	if err != nil {
		return err
	}
	id, err := c.UnassignDevices(ctx, args)
	if err != nil {
		return err
	}
	return a.printJSON(activityOutput{ActivityID: id})
}

func (a *app) runActivity(ctx context.Context, id string) error {
	c, err := a.client()
	if err != nil {
		return err
	}
	act, err := c.CheckActivityStatus(ctx, id)
	if err != nil {
		return err
	}
	return a.printJSON(act)
}

type connectOutput struct {
	TokenExpiresAt time.Time `json:"token_expires_at"`
	Devices        int       `json:"devices"`
	Servers        int       `json:"servers"`
}

// runConnect performs the token, device and server fetches in order, each
// waiting for the previous one.
func (a *app) runConnect(ctx context.Context) error {
	c, err := a.client()
	if err != nil {
		return err
	}
	if _, err := c.TokenSource.Token(ctx); err != nil {
		return err
	}
	devices, err := c.ListDevices(ctx)
	if err != nil {
		return err
	}
	servers, err := c.ListMDMServers(ctx)
	if err != nil {
		return err
	}
	tok, _ := a.provider.Cached()
	a.logger.Info("Connected", "devices", len(devices), "servers", len(servers))
	return a.printJSON(connectOutput{TokenExpiresAt: tok.ExpiresAt, Devices: len(devices), Servers: len(servers)})
}

func (a *app) runSaveConfig() error {
	if err := config.Save(a.configPath, a.cfg); err != nil {
		return err
	}
	a.logger.Info("Config saved", "path", a.configPath)
	return nil
}
