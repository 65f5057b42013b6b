package caveclient

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"pkt.systems/pslog"

	"github.com/sumiya-kuroda/CAVEclient/auth"
	"github.com/sumiya-kuroda/CAVEclient/chunkedgraph"
	"github.com/sumiya-kuroda/CAVEclient/endpoints"
	"github.com/sumiya-kuroda/CAVEclient/internal/pathutil"
)

const (
	// DefaultConfigFileName is looked up inside DefaultConfigDir.
	DefaultConfigFileName = "config.yaml"
	// DefaultOutput is the CLI result encoding.
	DefaultOutput = "json"
	// DefaultWatchInterval is the poll period of watch-root.
	DefaultWatchInterval = 30 * time.Second
	// MinWatchInterval keeps watch-root from hammering the service.
	MinWatchInterval = time.Second
)

// Output encodings understood by the CLI.
const (
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// Config carries the settings shared by the CLI and embedders that want
// the same resolution rules for server, credentials and registry.
type Config struct {
	// Server is the chunked-graph base URL. Empty selects the public default.
	Server string
	// Table is the dataset table bound to every request.
	Table string
	// APIVersion is "latest" or an integer.
	APIVersion string
	// Negotiate asks the server for its versions when APIVersion is latest.
	Negotiate bool
	// Token is an explicit bearer token.
	Token string
	// TokenFile points at a JSON secret file holding the token.
	TokenFile string
	// Registry is an optional YAML endpoint registry override.
	Registry string
	// Timestamp is the default graph timestamp, RFC3339 or Unix seconds.
	Timestamp string
	// Timeout bounds each HTTP request; zero disables it.
	Timeout time.Duration
	// Output selects the CLI encoding (json or yaml).
	Output string
	// WatchInterval is the watch-root poll period.
	WatchInterval time.Duration
	// Telemetry configures the optional exporters.
	Telemetry TelemetryConfig
}

// Validate applies defaults and sanity-checks the configuration.
func (c *Config) Validate() error {
	c.Server = strings.TrimSpace(c.Server)
	c.Table = strings.TrimSpace(c.Table)
	if _, err := chunkedgraph.ParseVersion(c.APIVersion); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.Output = strings.ToLower(strings.TrimSpace(c.Output))
	if c.Output == "" {
		c.Output = DefaultOutput
	}
	if !slices.Contains([]string{OutputJSON, OutputYAML}, c.Output) {
		return fmt.Errorf("config: output must be %q or %q", OutputJSON, OutputYAML)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("config: timeout must be >= 0")
	}
	if c.WatchInterval == 0 {
		c.WatchInterval = DefaultWatchInterval
	} else if c.WatchInterval < MinWatchInterval {
		return fmt.Errorf("config: watch interval must be at least %s", MinWatchInterval)
	}
	if _, err := c.DefaultTimestamp(); err != nil {
		return err
	}
	if c.Telemetry.ProfilingMetrics && strings.TrimSpace(c.Telemetry.MetricsListen) == "" {
		return fmt.Errorf("config: profiling metrics require metrics-listen")
	}
	return nil
}

// DefaultTimestamp parses Timestamp. The zero time means unset.
func (c Config) DefaultTimestamp() (time.Time, error) {
	return ParseTimestamp(c.Timestamp)
}

// ParseTimestamp accepts RFC3339 (with or without fractional seconds) or
// decimal Unix seconds. Empty input yields the zero time.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: timestamp %q: want RFC3339 or unix seconds", raw)
	}
	return t.UTC(), nil
}

// ClientOptions translates c into chunkedgraph options. Credentials and the
// registry override are read from disk here.
func (c Config) ClientOptions(logger pslog.Base) ([]chunkedgraph.Option, error) {
	version, err := chunkedgraph.ParseVersion(c.APIVersion)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	ts, err := c.DefaultTimestamp()
	if err != nil {
		return nil, err
	}
	token, err := auth.Load(auth.Options{Token: c.Token, TokenFile: c.TokenFile})
	if err != nil {
		return nil, err
	}
	opts := []chunkedgraph.Option{
		chunkedgraph.WithServerAddress(c.Server),
		chunkedgraph.WithTable(c.Table),
		chunkedgraph.WithAPIVersion(version),
		chunkedgraph.WithAuth(token),
		chunkedgraph.WithDefaultTimestamp(ts),
		chunkedgraph.WithHTTPTimeout(c.Timeout),
		chunkedgraph.WithLogger(logger),
	}
	if path := strings.TrimSpace(c.Registry); path != "" {
		reg, err := endpoints.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: registry: %w", err)
		}
		opts = append(opts, chunkedgraph.WithRegistry(reg))
	}
	return opts, nil
}

// NewClient builds a chunked-graph client from c. Extra options are applied
// after the configured ones.
func NewClient(ctx context.Context, c Config, logger pslog.Base, extra ...chunkedgraph.Option) (*chunkedgraph.Client, error) {
	opts, err := c.ClientOptions(logger)
	if err != nil {
		return nil, err
	}
	opts = append(opts, extra...)
	if c.Negotiate {
		return chunkedgraph.NewNegotiated(ctx, opts...)
	}
	return chunkedgraph.New(opts...)
}

// DefaultConfigDir returns the default configuration directory
// ($HOME/.caveclient). CAVECLIENT_CONFIG_DIR overrides it.
func DefaultConfigDir() (string, error) {
	if override := strings.TrimSpace(os.Getenv("CAVECLIENT_CONFIG_DIR")); override != "" {
		expanded, err := pathutil.ExpandUserAndEnv(override)
		if err != nil {
			return "", err
		}
		return filepath.Abs(expanded)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".caveclient"), nil
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFileName), nil
}
