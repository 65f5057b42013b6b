package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"pkt.systems/pslog"

	caveclient "github.com/sumiya-kuroda/CAVEclient"
	"github.com/sumiya-kuroda/CAVEclient/chunkedgraph"
	"github.com/sumiya-kuroda/CAVEclient/internal/clock"
	"github.com/sumiya-kuroda/CAVEclient/internal/loggingutil"
	"github.com/sumiya-kuroda/CAVEclient/internal/pathutil"
)

const (
	envPrefix    = "CGCLIENT_"
	envLogPrefix = "CGCLIENT_LOG_"
)

// Viper keys. Each is bound to the flag of the same name and to
// CGCLIENT_<KEY> with dashes turned into underscores.
const (
	keyConfig           = "config"
	keyServer           = "server"
	keyTable            = "table"
	keyAPIVersion       = "api-version"
	keyNegotiate        = "negotiate"
	keyToken            = "token"
	keyTokenFile        = "token-file"
	keyRegistry         = "registry"
	keyTimestamp        = "timestamp"
	keyTimeout          = "timeout"
	keyOutput           = "output"
	keyLogLevel         = "log-level"
	keyLogOutput        = "log-output"
	keyOTLPEndpoint     = "otlp-endpoint"
	keyMetricsListen    = "metrics-listen"
	keyProfilingMetrics = "profiling-metrics"
	keyWatchInterval    = "watch-interval"
)

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(
		pslog.WithEnvPrefix(envLogPrefix),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "cgclient")
	cmd := newRootCommand(baseLogger)
	ctx = withSignalCancel(ctx)
	if _, err := cmd.ExecuteContextC(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "cgclient: %s\n", err)
		}
		return 1
	}
	return 0
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}

func mustBindFlag(v *viper.Viper, key, env string, flag *pflag.Flag) {
	if flag == nil {
		panic(fmt.Sprintf("flag for key %s not found", key))
	}
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
	if env != "" {
		if err := v.BindEnv(key, env); err != nil {
			panic(err)
		}
	}
}

func envName(key string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// cli carries the state shared by every subcommand of one invocation.
type cli struct {
	v          *viper.Viper
	baseLogger pslog.Logger
	clock      clock.Clock
	verbose    bool

	cfg        caveclient.Config
	logger     pslog.Logger
	telemetry  *caveclient.Telemetry
	logClosers []io.Closer
	loaded     bool
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	return newRootCommandWith(&cli{v: viper.New(), baseLogger: baseLogger})
}

func newRootCommandWith(c *cli) *cobra.Command {
	if c.v == nil {
		c.v = viper.New()
	}
	if c.baseLogger == nil {
		c.baseLogger = pslog.NoopLogger()
	}
	c.clock = clock.OrReal(c.clock)

	cmd := &cobra.Command{
		Use:           "cgclient",
		Short:         "cgclient queries a chunked-graph segmentation service",
		SilenceErrors: true,
		SilenceUsage:  true,
		Example: `
  # Root object of a supervoxel at the current graph state
  cgclient --server https://minnie.microns-daf.com --table minnie65_public root 88946092073583016

  # Leaves of a root restricted to a bounding box
  cgclient --table fly_v31 leaves 720575940621039145 --bounds 0-1024_0-1024_0-64

  # Poll a supervoxel and report when its root changes
  cgclient --table fly_v31 watch-root 88946092073583016 --interval 1m
`,
	}

	flags := cmd.PersistentFlags()
	flags.StringP(keyConfig, "c", "", "path to YAML config file (defaults to $HOME/.caveclient/"+caveclient.DefaultConfigFileName+")")
	flags.String(keyServer, "", "chunked-graph server base URL (default public deployment)")
	flags.String(keyTable, "", "chunked-graph table (dataset) name")
	flags.String(keyAPIVersion, "latest", "API version (latest or an integer)")
	flags.Bool(keyNegotiate, false, "ask the server for its API versions when --api-version is latest")
	flags.String(keyToken, "", "bearer token (default $CAVE_TOKEN or ~/.cloudvolume/secrets)")
	flags.String(keyTokenFile, "", "JSON secret file holding the token")
	flags.String(keyRegistry, "", "YAML endpoint registry override")
	flags.String(keyTimestamp, "", "default graph timestamp (RFC3339 or unix seconds)")
	flags.Duration(keyTimeout, 0, "per-request HTTP timeout (0 disables)")
	flags.StringP(keyOutput, "o", caveclient.DefaultOutput, "output format (json|yaml)")
	flags.String(keyLogLevel, "none", "log level (trace|debug|info|warn|error|none)")
	flags.String(keyLogOutput, "", "log output path (default stderr)")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "enable trace logging of every request")
	flags.String(keyOTLPEndpoint, "", "OTLP trace collector endpoint (host:port, grpc://, http://)")
	flags.String(keyMetricsListen, "", "serve Prometheus metrics on this address")
	flags.Bool(keyProfilingMetrics, false, "include Go runtime metrics on the Prometheus endpoint")

	for _, key := range []string{
		keyConfig, keyServer, keyTable, keyAPIVersion, keyNegotiate, keyToken, keyTokenFile,
		keyRegistry, keyTimestamp, keyTimeout, keyOutput, keyLogLevel, keyLogOutput,
		keyOTLPEndpoint, keyMetricsListen, keyProfilingMetrics,
	} {
		mustBindFlag(c.v, key, envName(key), flags.Lookup(key))
	}

	cmd.AddCommand(
		newRootIDCommand(c),
		newLeavesCommand(c),
		newChildrenCommand(c),
		newMergeLogCommand(c),
		newChangeLogCommand(c),
		newContactsCommand(c),
		newCloudVolumePathCommand(c),
		newEndpointsCommand(c),
		newWatchRootCommand(c),
		newVersionCommand(),
		newConfigCommand(),
	)
	return cmd
}

func (c *cli) loadConfigFile() (string, error) {
	cfgPath := strings.TrimSpace(c.v.GetString(keyConfig))
	explicit := cfgPath != ""
	if cfgPath == "" {
		if candidate, err := caveclient.DefaultConfigPath(); err == nil {
			cfgPath = candidate
		}
	}
	if cfgPath == "" {
		return "", nil
	}
	expanded, err := pathutil.ExpandUserAndEnv(cfgPath)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return "", nil
		}
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}
	c.v.SetConfigFile(expanded)
	if err := c.v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return expanded, nil
}

// load resolves configuration, logging and telemetry once per invocation.
func (c *cli) load(ctx context.Context) error {
	if c.loaded {
		return nil
	}
	configFile, err := c.loadConfigFile()
	if err != nil {
		return err
	}
	if err := c.setupLogger(); err != nil {
		return err
	}
	if configFile != "" {
		c.logger.Debug("cli.config.loaded", "path", configFile)
	}
	c.cfg = caveclient.Config{
		Server:        c.v.GetString(keyServer),
		Table:         c.v.GetString(keyTable),
		APIVersion:    c.v.GetString(keyAPIVersion),
		Negotiate:     c.v.GetBool(keyNegotiate),
		Token:         c.v.GetString(keyToken),
		TokenFile:     c.v.GetString(keyTokenFile),
		Registry:      c.v.GetString(keyRegistry),
		Timestamp:     c.v.GetString(keyTimestamp),
		Timeout:       c.v.GetDuration(keyTimeout),
		Output:        c.v.GetString(keyOutput),
		WatchInterval: c.v.GetDuration(keyWatchInterval),
		Telemetry: caveclient.TelemetryConfig{
			OTLPEndpoint:     c.v.GetString(keyOTLPEndpoint),
			MetricsListen:    c.v.GetString(keyMetricsListen),
			ProfilingMetrics: c.v.GetBool(keyProfilingMetrics),
		},
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	tel, err := caveclient.SetupTelemetry(ctx, c.cfg.Telemetry, c.logger)
	if err != nil {
		return err
	}
	c.telemetry = tel
	c.loaded = true
	return nil
}

func (c *cli) setupLogger() error {
	levelStr := strings.ToLower(strings.TrimSpace(c.v.GetString(keyLogLevel)))
	if c.verbose {
		levelStr = "trace"
	}
	if levelStr == "" || levelStr == "none" || levelStr == "off" || levelStr == "disabled" {
		c.logger = pslog.NoopLogger()
		return nil
	}
	level, ok := pslog.ParseLevel(levelStr)
	if !ok {
		return fmt.Errorf("invalid log level %q", levelStr)
	}
	logger := c.baseLogger
	if out := strings.TrimSpace(c.v.GetString(keyLogOutput)); out != "" {
		var writer io.Writer
		switch out {
		case "-", "stdout":
			writer = os.Stdout
		case "stderr":
			writer = os.Stderr
		default:
			path, err := pathutil.ExpandUserAndEnv(out)
			if err != nil {
				return err
			}
			f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			c.logClosers = append(c.logClosers, f)
			writer = f
		}
		logger = pslog.LoggerFromEnv(
			pslog.WithEnvPrefix(envLogPrefix),
			pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: level}),
			pslog.WithEnvWriter(writer),
		).With("app", "cgclient")
	}
	c.logger = logger.LogLevel(level)
	return nil
}

// client builds the chunked-graph client for the current invocation.
func (c *cli) client(ctx context.Context) (*chunkedgraph.Client, error) {
	if err := c.load(ctx); err != nil {
		return nil, err
	}
	return caveclient.NewClient(ctx, c.cfg, c.logger,
		chunkedgraph.WithTracerProvider(c.telemetry.TracerProvider()),
		chunkedgraph.WithMeterProvider(c.telemetry.MeterProvider()),
		chunkedgraph.WithClock(c.clock),
	)
}

func (c *cli) subsystem(name string) pslog.Logger {
	return c.logger.With(loggingutil.SubsystemKey, loggingutil.Subsystem("cli", name))
}

// runE wraps a command body so telemetry and log files are released
// whether or not it succeeds.
func (c *cli) runE(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		if closeErr := c.close(cmd.Context()); err == nil {
			err = closeErr
		}
		return err
	}
}

func (c *cli) close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	err := c.telemetry.Shutdown(ctx)
	for _, closer := range c.logClosers {
		_ = closer.Close()
	}
	c.logClosers = nil
	c.telemetry = nil
	c.loaded = false
	return err
}
